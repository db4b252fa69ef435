package fitmsg

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tormoder/fit"
	"github.com/tormoder/fit/dyncrc16"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14
)

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

var baseSizes = map[baseType]int{
	baseEnum: 1, baseSint8: 1, baseUint8: 1, baseSint16: 2, baseUint16: 2,
	baseSint32: 4, baseUint32: 4, baseString: 1, baseFloat32: 4, baseFloat64: 8,
	baseUint8z: 1, baseUint16z: 2, baseUint32z: 4, baseByte: 1,
	baseSint64: 8, baseUint64: 8, baseUint64z: 8,
}

type fieldDef struct {
	fieldNumber uint8
	size        uint8
	base        baseType
}

type devFieldDef struct {
	fieldNumber      uint8
	size             uint8
	developerDataIdx uint8
}

type definition struct {
	globalNum uint16
	arch      binary.ByteOrder
	fields    []fieldDef
	devFields []devFieldDef
}

type devFieldKey struct {
	developerDataIdx uint8
	fieldNumber      uint8
}

type devFieldDesc struct {
	name string
	base baseType
}

type decoder struct {
	data           []byte
	definitions    map[uint8]definition
	devDescs       map[devFieldKey]devFieldDesc
	lastTimestamp  uint32
	lastTimeOffset int32
	messages       []Message
}

// DecodeFile reads and decodes one FIT file. The file is fully read and
// closed before decoding.
func DecodeFile(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fit file: %w", err)
	}
	return Decode(data)
}

// Decode parses FIT bytes into the ordered sequence of data messages.
func Decode(data []byte) ([]Message, error) {
	if len(data) < headerSizeNoCRC+2 {
		return nil, fmt.Errorf("fit file too short: %d bytes", len(data))
	}
	headerSize := data[0]
	if headerSize != headerSizeNoCRC && headerSize != headerSizeCRC {
		return nil, fmt.Errorf("invalid fit header size: %d", headerSize)
	}
	if string(data[8:12]) != ".FIT" {
		return nil, fmt.Errorf("invalid fit data type in header: %q", string(data[8:12]))
	}
	dataSize := binary.LittleEndian.Uint32(data[4:8])
	required := int(headerSize) + int(dataSize) + 2
	if len(data) < required {
		return nil, fmt.Errorf("fit file truncated: have %d bytes, need %d", len(data), required)
	}

	stored := binary.LittleEndian.Uint16(data[int(headerSize)+int(dataSize):])
	computed := dyncrc16.Checksum(data[:int(headerSize)+int(dataSize)])
	if stored != computed {
		return nil, fmt.Errorf("fit file CRC mismatch: stored 0x%04X, computed 0x%04X", stored, computed)
	}

	d := &decoder{
		data:        data[headerSize : int(headerSize)+int(dataSize)],
		definitions: make(map[uint8]definition),
		devDescs:    make(map[devFieldKey]devFieldDesc),
	}
	if err := d.run(); err != nil {
		return nil, err
	}
	return d.messages, nil
}

func (d *decoder) run() error {
	pos := 0
	recordIndex := 0
	for pos < len(d.data) {
		recordIndex++
		headerByte := d.data[pos]
		pos++

		switch {
		case headerByte&compressedHeaderMask == compressedHeaderMask:
			local := (headerByte & compressedLocalMesgNumMask) >> 5
			def, ok := d.definitions[local]
			if !ok {
				return fmt.Errorf("missing definition for compressed data message local=%d record=%d", local, recordIndex)
			}
			newPos, err := d.decodeData(recordIndex, pos, headerByte, def, true)
			if err != nil {
				return err
			}
			pos = newPos
		case headerByte&mesgDefinitionMask == mesgDefinitionMask:
			local := headerByte & localMesgNumMask
			def, newPos, err := d.decodeDefinition(recordIndex, pos, headerByte)
			if err != nil {
				return err
			}
			d.definitions[local] = def
			pos = newPos
		default:
			local := headerByte & localMesgNumMask
			def, ok := d.definitions[local]
			if !ok {
				return fmt.Errorf("missing definition for data message local=%d record=%d", local, recordIndex)
			}
			newPos, err := d.decodeData(recordIndex, pos, headerByte, def, false)
			if err != nil {
				return err
			}
			pos = newPos
		}
	}
	return nil
}

func (d *decoder) decodeDefinition(recordIndex, pos int, headerByte uint8) (definition, int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(d.data) {
			return nil, fmt.Errorf("definition record %d truncated", recordIndex)
		}
		out := d.data[pos : pos+n]
		pos += n
		return out, nil
	}

	fixed, err := read(5) // reserved, arch, global (2), field count
	if err != nil {
		return definition{}, 0, err
	}
	var arch binary.ByteOrder
	switch fixed[1] {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		return definition{}, 0, fmt.Errorf("invalid architecture byte %d at record %d", fixed[1], recordIndex)
	}
	def := definition{
		globalNum: arch.Uint16(fixed[2:4]),
		arch:      arch,
	}

	numFields := int(fixed[4])
	def.fields = make([]fieldDef, 0, numFields)
	for i := 0; i < numFields; i++ {
		raw, err := read(3)
		if err != nil {
			return definition{}, 0, err
		}
		def.fields = append(def.fields, fieldDef{
			fieldNumber: raw[0],
			size:        raw[1],
			base:        canonicalBaseType(raw[2]),
		})
	}

	if headerByte&devDataMask == devDataMask {
		countRaw, err := read(1)
		if err != nil {
			return definition{}, 0, err
		}
		devCount := int(countRaw[0])
		def.devFields = make([]devFieldDef, 0, devCount)
		for i := 0; i < devCount; i++ {
			raw, err := read(3)
			if err != nil {
				return definition{}, 0, err
			}
			def.devFields = append(def.devFields, devFieldDef{
				fieldNumber:      raw[0],
				size:             raw[1],
				developerDataIdx: raw[2],
			})
		}
	}
	return def, pos, nil
}

func (d *decoder) decodeData(recordIndex, pos int, headerByte uint8, def definition, compressed bool) (int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(d.data) {
			return nil, fmt.Errorf("data record %d truncated", recordIndex)
		}
		out := d.data[pos : pos+n]
		pos += n
		return out, nil
	}

	msg := Message{
		Index:     recordIndex,
		GlobalNum: def.globalNum,
		Name:      globalMessageName(def.globalNum),
		Fields:    make([]Field, 0, len(def.fields)+len(def.devFields)+1),
	}

	if compressed && d.lastTimestamp != 0 {
		offset := int32(headerByte & compressedTimeMask)
		d.lastTimestamp += uint32((offset - d.lastTimeOffset) & int32(compressedTimeMask))
		d.lastTimeOffset = offset
		msg.Fields = append(msg.Fields, Field{
			Name:  "timestamp",
			Value: fitEpoch.Add(time.Duration(d.lastTimestamp) * time.Second),
		})
	}

	for _, fd := range def.fields {
		raw, err := read(int(fd.size))
		if err != nil {
			return 0, err
		}
		field := decodeField(raw, fd, def.arch, def.globalNum)
		if fd.fieldNumber == 253 {
			if ts, ok := rawTimestamp(raw, fd, def.arch); ok {
				d.lastTimestamp = ts
				d.lastTimeOffset = int32(ts & compressedTimeMask)
			}
		}
		msg.Fields = append(msg.Fields, field)
	}

	for _, ddf := range def.devFields {
		raw, err := read(int(ddf.size))
		if err != nil {
			return 0, err
		}
		msg.Fields = append(msg.Fields, d.decodeDeveloperField(raw, ddf, def.arch))
	}

	if def.globalNum == 206 {
		d.registerFieldDescription(&msg)
	}
	d.messages = append(d.messages, msg)
	return pos, nil
}

func decodeField(raw []byte, fd fieldDef, arch binary.ByteOrder, global uint16) Field {
	sem, _ := semanticForField(global, fd.fieldNumber)
	name := sem.name
	if name == "" {
		name = fmt.Sprintf("field_%d", fd.fieldNumber)
	}
	field := Field{Name: name}

	if fd.base == baseString {
		field.Value = nullTerminatedString(raw)
		field.Invalid = field.Value == ""
		return field
	}

	size, ok := baseSizes[fd.base]
	if !ok || len(raw)%size != 0 {
		field.Value = append([]byte(nil), raw...)
		return field
	}

	count := len(raw) / size
	if count == 1 {
		v, invalid := decodeScalar(raw, fd.base, arch)
		field.Invalid = invalid
		field.Value = applySemantic(v, sem)
		return field
	}

	// Arrays keep raw element values, sentinels included; the array is only
	// absent as a whole if every element is the invalid sentinel.
	if fd.base == baseSint16 {
		values := make([]int16, count)
		allInvalid := true
		for i := 0; i < count; i++ {
			v, invalid := decodeScalar(raw[i*size:(i+1)*size], fd.base, arch)
			values[i] = int16(v.(int64))
			allInvalid = allInvalid && invalid
		}
		field.Value = values
		field.Invalid = allInvalid
		return field
	}
	values := make([]any, count)
	allInvalid := true
	for i := 0; i < count; i++ {
		v, invalid := decodeScalar(raw[i*size:(i+1)*size], fd.base, arch)
		values[i] = v
		allInvalid = allInvalid && invalid
	}
	field.Value = values
	field.Invalid = allInvalid
	return field
}

func (d *decoder) decodeDeveloperField(raw []byte, ddf devFieldDef, arch binary.ByteOrder) Field {
	key := devFieldKey{developerDataIdx: ddf.developerDataIdx, fieldNumber: ddf.fieldNumber}
	desc, ok := d.devDescs[key]
	if !ok {
		return Field{
			Name:  fmt.Sprintf("developer_field_%d_%d", ddf.developerDataIdx, ddf.fieldNumber),
			Value: append([]byte(nil), raw...),
		}
	}
	fd := fieldDef{fieldNumber: ddf.fieldNumber, size: ddf.size, base: desc.base}
	field := decodeField(raw, fd, arch, 0xFFFF)
	field.Name = desc.name
	// Developer channels define their own sentinels; never drop their values.
	field.Invalid = false
	return field
}

func (d *decoder) registerFieldDescription(msg *Message) {
	devIdx, ok1 := fieldUint(msg, "developer_data_index")
	fieldNum, ok2 := fieldUint(msg, "field_definition_number")
	baseID, ok3 := fieldUint(msg, "fit_base_type_id")
	name, ok4 := msg.Field("field_name")
	nameStr, isStr := name.(string)
	if !ok1 || !ok2 || !ok3 || !ok4 || !isStr || nameStr == "" {
		return
	}
	d.devDescs[devFieldKey{developerDataIdx: uint8(devIdx), fieldNumber: uint8(fieldNum)}] = devFieldDesc{
		name: nameStr,
		base: canonicalBaseType(uint8(baseID)),
	}
}

func fieldUint(msg *Message, name string) (uint64, bool) {
	v, ok := msg.Field(name)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case uint64:
		return x, true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	default:
		return 0, false
	}
}

func applySemantic(v any, sem fieldSemantic) any {
	if sem.isTimestamp {
		if raw, ok := v.(uint64); ok {
			return fitEpoch.Add(time.Duration(raw) * time.Second)
		}
		return v
	}
	if sem.scale != 0 {
		switch x := v.(type) {
		case int64:
			return float64(x)/sem.scale - sem.offset
		case uint64:
			return float64(x)/sem.scale - sem.offset
		case float64:
			return x/sem.scale - sem.offset
		}
	}
	return v
}

func decodeScalar(raw []byte, bt baseType, arch binary.ByteOrder) (any, bool) {
	switch bt {
	case baseEnum, baseUint8:
		v := raw[0]
		return uint64(v), v == 0xFF
	case baseSint8:
		v := int8(raw[0])
		return int64(v), v == 0x7F
	case baseSint16:
		v := int16(arch.Uint16(raw))
		return int64(v), v == 0x7FFF
	case baseUint16:
		v := arch.Uint16(raw)
		return uint64(v), v == 0xFFFF
	case baseSint32:
		v := int32(arch.Uint32(raw))
		return int64(v), v == 0x7FFFFFFF
	case baseUint32:
		v := arch.Uint32(raw)
		return uint64(v), v == 0xFFFFFFFF
	case baseFloat32:
		bits := arch.Uint32(raw)
		return float64(math.Float32frombits(bits)), bits == 0xFFFFFFFF
	case baseFloat64:
		bits := arch.Uint64(raw)
		return math.Float64frombits(bits), bits == 0xFFFFFFFFFFFFFFFF
	case baseUint8z:
		v := raw[0]
		return uint64(v), v == 0x00
	case baseUint16z:
		v := arch.Uint16(raw)
		return uint64(v), v == 0x0000
	case baseUint32z:
		v := arch.Uint32(raw)
		return uint64(v), v == 0x00000000
	case baseSint64:
		v := int64(arch.Uint64(raw))
		return v, v == 0x7FFFFFFFFFFFFFFF
	case baseUint64:
		v := arch.Uint64(raw)
		return v, v == 0xFFFFFFFFFFFFFFFF
	case baseUint64z:
		v := arch.Uint64(raw)
		return v, v == 0
	case baseByte:
		return uint64(raw[0]), raw[0] == 0xFF
	default:
		return uint64(raw[0]), false
	}
}

func rawTimestamp(raw []byte, fd fieldDef, arch binary.ByteOrder) (uint32, bool) {
	if fd.base != baseUint32 || len(raw) != 4 {
		return 0, false
	}
	v := arch.Uint32(raw)
	if v == 0xFFFFFFFF {
		return 0, false
	}
	return v, true
}

func canonicalBaseType(b uint8) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}

func globalMessageName(global uint16) string {
	return fmt.Sprint(fit.MesgNum(global))
}

func nullTerminatedString(raw []byte) string {
	for i := range raw {
		if raw[i] == 0x00 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
