package roadquality

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roadsense/roadquality/fitmsg"
)

// ExpectedAccelValuesPerMessage is the number of real acceleration samples
// one position message carries (one message covers a one-second window).
const ExpectedAccelValuesPerMessage = 25

// Raw acceleration sentinels used by the recorder.
const (
	accelEndOfData = -32768 // no more real values in this message
	accelUnderflow = -32767 // below measurable range
	accelOverflow  = 32767  // above measurable range
)

// ErrIncompletePosition marks a message that cannot yield positions but is
// not malformed: either it is not a position message at all, or some of the
// expected values are missing (typically no GNSS fix yet while the
// acceleration sensor already records). Such messages are skipped.
var ErrIncompletePosition = errors.New("incomplete position data")

var accelFieldNameRe = regexp.MustCompile(`^accel_z_(\d+)-(\d+)$`)

// FitTrackParser parses one FIT activity file into a Track.
type FitTrackParser struct {
	path string
	log  *zap.Logger

	numOutOfBounds int
}

// NewFitTrackParser returns a parser for the FIT file at path.
func NewFitTrackParser(path string, logger *zap.Logger) *FitTrackParser {
	return &FitTrackParser{
		path: path,
		log:  logger.With(zap.String("file", path)),
	}
}

// Parse decodes the file, extracts positions from its messages and runs the
// continuity diagnostics. Malformed acceleration data is fatal; messages with
// missing position data are skipped.
func (p *FitTrackParser) Parse() (*Track, error) {
	messages, err := fitmsg.DecodeFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}

	var positions []*Position
	for i := range messages {
		ts, lonSemis, latSemis, speed, accels, err := p.extractPositionData(&messages[i])
		if errors.Is(err, ErrIncompletePosition) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", messages[i].Index, err)
		}
		perAccel := time.Second / time.Duration(len(accels))
		for j, accel := range accels {
			positions = append(positions, &Position{
				Timestamp: ts.Add(time.Duration(j) * perAccel),
				Lon:       SemicirclesToDegrees(lonSemis),
				Lat:       SemicirclesToDegrees(latSemis),
				SpeedMPS:  speed,
				AccelMG:   adjustedAccel(accel),
			})
		}
	}

	if p.numOutOfBounds > 0 {
		p.log.Info("out-of-range acceleration values retained",
			zap.Int("count", p.numOutOfBounds))
	}
	checkPositionContinuity(messages, positions, p.log)
	return NewTrack(positions), nil
}

type accelField struct {
	start, end int
	values     []int16
}

func (p *FitTrackParser) extractPositionData(msg *fitmsg.Message) (ts time.Time, lonSemis, latSemis int64, speed float64, accels []float64, err error) {
	ts, haveTS := msg.Time("timestamp")
	lonSemis, haveLon := fieldInt(msg, "position_long")
	latSemis, haveLat := fieldInt(msg, "position_lat")
	speed, haveSpeed := fieldFloat(msg, "enhanced_speed")
	if !haveSpeed {
		speed, haveSpeed = fieldFloat(msg, "speed")
	}
	accelFields, err := collectAccelFields(msg)
	if err != nil {
		return time.Time{}, 0, 0, 0, nil, err
	}

	haveAny := haveLon || haveLat || haveSpeed || len(accelFields) > 0
	haveAll := haveTS && haveLon && haveLat && haveSpeed && len(accelFields) > 0
	if !haveAll {
		if haveAny {
			p.log.Warn("message has partial position data, skipping",
				zap.Int("message", msg.Index),
				zap.Bool("longitude", haveLon), zap.Bool("latitude", haveLat),
				zap.Bool("speed", haveSpeed), zap.Int("accel_fields", len(accelFields)))
		}
		return time.Time{}, 0, 0, 0, nil, ErrIncompletePosition
	}

	if err := validateAccelFields(accelFields); err != nil {
		return time.Time{}, 0, 0, 0, nil, err
	}
	accels, err = p.extractAccels(accelFields)
	if err != nil {
		return time.Time{}, 0, 0, 0, nil, err
	}
	return ts, lonSemis, latSemis, speed, accels, nil
}

// collectAccelFields gathers the acceleration sub-array fields of a message,
// sorted by their start index. A field named like an acceleration channel
// that does not match the accel_z_<start>-<end> pattern is a parse error.
func collectAccelFields(msg *fitmsg.Message) ([]accelField, error) {
	var fields []accelField
	for _, f := range msg.Fields {
		if !strings.HasPrefix(f.Name, "accel") || f.Invalid {
			continue
		}
		start, end, err := accelFieldBounds(f.Name)
		if err != nil {
			return nil, err
		}
		values, ok := f.Value.([]int16)
		if !ok {
			return nil, fmt.Errorf("acceleration field %s does not hold a 16-bit integer array", f.Name)
		}
		fields = append(fields, accelField{start: start, end: end, values: values})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].start < fields[j].start })
	return fields, nil
}

func accelFieldBounds(name string) (int, int, error) {
	m := accelFieldNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid acceleration field name %q", name)
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid acceleration field name %q", name)
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid acceleration field name %q", name)
	}
	return start, end, nil
}

func validateAccelFields(fields []accelField) error {
	if fields[0].start != 0 {
		return errors.New("acceleration fields don't start at 0")
	}
	for i := 0; i+1 < len(fields); i++ {
		if fields[i].end != fields[i+1].start {
			return fmt.Errorf("acceleration fields aren't consecutive: %d-%d followed by %d-%d",
				fields[i].start, fields[i].end, fields[i+1].start, fields[i+1].end)
		}
	}
	return nil
}

// extractAccels decodes the raw sub-array values into milli-g samples. The
// end-of-data sentinel must only be followed by more sentinels; out-of-range
// markers decode to ±Inf and are kept as real samples.
func (p *FitTrackParser) extractAccels(fields []accelField) ([]float64, error) {
	accels := make([]float64, 0, ExpectedAccelValuesPerMessage)
	reachedEnd := false
	for _, f := range fields {
		if len(f.values) != f.end-f.start {
			return nil, fmt.Errorf("acceleration field %d-%d carries %d values", f.start, f.end, len(f.values))
		}
		for _, raw := range f.values {
			if raw == accelEndOfData {
				reachedEnd = true
				continue
			}
			if reachedEnd {
				return nil, errors.New("acceleration value after end-of-data marker")
			}
			accel := parseRawAccel(raw)
			if math.IsInf(accel, 0) {
				p.numOutOfBounds++
			}
			accels = append(accels, accel)
		}
	}
	// The recorder always fills a whole one-second window; any other count
	// means the message is unusable, not that the file is corrupt.
	if len(accels) != ExpectedAccelValuesPerMessage {
		return nil, fmt.Errorf("%w: %d acceleration values", ErrIncompletePosition, len(accels))
	}
	return accels, nil
}

func parseRawAccel(raw int16) float64 {
	switch raw {
	case accelUnderflow:
		return math.Inf(-1)
	case accelOverflow:
		return math.Inf(1)
	default:
		return float64(raw)
	}
}

// adjustedAccel shifts a raw reading so that 0 is the resting baseline. The
// sensor reads -1g in idle.
func adjustedAccel(accel float64) float64 {
	return accel + GravityMilliG
}

func fieldInt(msg *fitmsg.Message, name string) (int64, bool) {
	v, ok := msg.Field(name)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func fieldFloat(msg *fitmsg.Message, name string) (float64, bool) {
	v, ok := msg.Field(name)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
