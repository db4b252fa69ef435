// Package fitmsg decodes a FIT activity file into its ordered sequence of
// data messages, exposing every field by name. Standard-profile fields are
// named from a built-in table; developer fields are named from the
// field_description messages embedded in the file, which is where
// vendor-specific channels such as the accelerometer sub-arrays live.
package fitmsg

import "time"

// Message is one decoded FIT data message.
type Message struct {
	// Index is the 1-based record index within the file, counting both
	// definition and data records.
	Index     int
	GlobalNum uint16
	Name      string
	Fields    []Field
}

// Field is one decoded field of a data message.
//
// Value holds time.Time for timestamp fields, float64 for scaled quantities,
// int64/uint64/float64/string for other scalars, and []int16 (or []any) for
// arrays. Invalid marks fields whose raw bytes equal the base type's invalid
// sentinel; such fields are treated as absent.
type Field struct {
	Name    string
	Value   any
	Invalid bool
}

// Field returns the named field's value, skipping invalid fields.
func (m *Message) Field(name string) (any, bool) {
	for _, f := range m.Fields {
		if f.Name == name && !f.Invalid {
			return f.Value, true
		}
	}
	return nil, false
}

// Time returns the named field as a time.Time if it decodes as one.
func (m *Message) Time(name string) (time.Time, bool) {
	v, ok := m.Field(name)
	if !ok {
		return time.Time{}, false
	}
	ts, ok := v.(time.Time)
	return ts, ok
}

// fitEpoch is the zero point of FIT timestamps.
var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

type fieldSemantic struct {
	name        string
	scale       float64
	offset      float64
	isTimestamp bool
}

// Field names and scaling for the messages this decoder cares about. Unknown
// fields keep their raw decoded value under a "field_<n>" name.
var semanticsByMessage = map[uint16]map[uint8]fieldSemantic{
	0: { // file_id
		0: {name: "type"},
		1: {name: "manufacturer"},
		2: {name: "product"},
		3: {name: "serial_number"},
		4: {name: "time_created", isTimestamp: true},
	},
	20: { // record
		253: {name: "timestamp", isTimestamp: true},
		0:   {name: "position_lat"},
		1:   {name: "position_long"},
		2:   {name: "altitude", scale: 5, offset: 500},
		3:   {name: "heart_rate"},
		4:   {name: "cadence"},
		5:   {name: "distance", scale: 100},
		6:   {name: "speed", scale: 1000},
		13:  {name: "temperature"},
		73:  {name: "enhanced_speed", scale: 1000},
		78:  {name: "enhanced_altitude", scale: 5, offset: 500},
	},
	21: { // event
		253: {name: "timestamp", isTimestamp: true},
		0:   {name: "event"},
		1:   {name: "event_type"},
	},
	206: { // field_description
		0: {name: "developer_data_index"},
		1: {name: "field_definition_number"},
		2: {name: "fit_base_type_id"},
		3: {name: "field_name"},
		8: {name: "units"},
	},
	207: { // developer_data_id
		3: {name: "developer_data_index"},
	},
}

func semanticForField(global uint16, field uint8) (fieldSemantic, bool) {
	if m, ok := semanticsByMessage[global]; ok {
		if s, ok := m[field]; ok {
			return s, true
		}
	}
	return fieldSemantic{}, false
}
