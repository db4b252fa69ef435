package roadquality

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"
)

// SenseboxParser parses the JSON dump format of the bike-mounted sensor:
// blocks of raw accelerations stamped with milliseconds since device startup,
// plus an ordered list of geolocation fixes that positions are interpolated
// from.
type SenseboxParser struct {
	path string
	log  *zap.Logger

	deviceStartupTime time.Time
	lags              []time.Duration
	numPositions      int
	numOutOfBracket   int
}

// NewSenseboxParser returns a parser for the sensor JSON file at path.
func NewSenseboxParser(path string, logger *zap.Logger) *SenseboxParser {
	return &SenseboxParser{
		path: path,
		log:  logger.With(zap.String("file", path)),
	}
}

type senseboxFile struct {
	RawAccelerationsRecords []senseboxAccelBlock `json:"rawAccelerationsRecords"`
	GeoLocationDatas        []senseboxGeoData    `json:"geoLocationDatas"`
}

type senseboxAccelBlock struct {
	ReceiveTime      string                `json:"receiveTime"`
	RawAccelerations []senseboxAccelSample `json:"rawAccelerations"`
}

type senseboxAccelSample struct {
	MillisSinceDeviceStartup int64 `json:"millisSinceDeviceStartup"`
	// Z is vertical acceleration in m/s²; this sensor reads +1g in idle.
	Z float64 `json:"z"`
}

type senseboxGeoData struct {
	ReceiveTime string  `json:"receiveTime"`
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
	Speed       float64 `json:"speed"`

	ts time.Time
}

// Parse reads the file and reconstructs a track: acceleration samples are
// placed on an absolute timeline derived from the block receive times, then
// geolocated by interpolating between the bracketing geolocation fixes.
func (p *SenseboxParser) Parse() (*Track, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}
	var file senseboxFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s as sensebox data: %w", p.path, err)
	}

	positions, err := p.parseAccelerations(file.RawAccelerationsRecords)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.path, err)
	}
	if err := checkAccelTimestampOrder(positions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.path, err)
	}
	if err := p.addGeolocationData(file.GeoLocationDatas, positions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.path, err)
	}

	p.reportStatus()
	return NewTrack(positions), nil
}

func (p *SenseboxParser) parseAccelerations(blocks []senseboxAccelBlock) ([]*Position, error) {
	var positions []*Position
	for _, block := range blocks {
		receiveTime, err := time.Parse(time.RFC3339Nano, block.ReceiveTime)
		if err != nil {
			return nil, fmt.Errorf("invalid acceleration block receive time %q: %w", block.ReceiveTime, err)
		}
		if len(block.RawAccelerations) == 0 {
			p.log.Warn("empty block of raw accelerations, skipping",
				zap.Time("receive_time", receiveTime))
			continue
		}
		// Assume the data was received the moment the last acceleration of
		// the block was written; that anchors device uptime to wall time.
		last := block.RawAccelerations[len(block.RawAccelerations)-1]
		blockStartup := receiveTime.Add(-time.Duration(last.MillisSinceDeviceStartup) * time.Millisecond)
		if p.deviceStartupTime.IsZero() {
			p.deviceStartupTime = blockStartup
		}
		p.lags = append(p.lags, p.deviceStartupTime.Sub(blockStartup))

		for _, sample := range block.RawAccelerations {
			positions = append(positions, &Position{
				Timestamp: p.deviceStartupTime.Add(time.Duration(sample.MillisSinceDeviceStartup) * time.Millisecond),
				AccelMG:   senseboxAdjustedAccel(sample.Z),
			})
		}
	}
	p.numPositions = len(positions)
	return positions, nil
}

// senseboxAdjustedAccel converts m/s² to milli-g and removes the +1g idle
// baseline of this sensor.
func senseboxAdjustedAccel(accel float64) float64 {
	return accel*100 - GravityMilliG
}

func checkAccelTimestampOrder(positions []*Position) error {
	for i := 0; i+1 < len(positions); i++ {
		if positions[i].Timestamp.After(positions[i+1].Timestamp) {
			return errors.New("acceleration timestamps are out of order")
		}
	}
	return nil
}

func (p *SenseboxParser) addGeolocationData(geodata []senseboxGeoData, positions []*Position) error {
	if err := parseGeolocationTimestamps(geodata); err != nil {
		return err
	}
	if len(geodata) < 2 {
		return errors.New("fewer than 2 geolocation fixes, cannot interpolate")
	}

	bracket := 0 // geodata[bracket], geodata[bracket+1] is the current pair
	for _, position := range positions {
		for bracket+2 < len(geodata) && position.Timestamp.After(geodata[bracket+1].ts) {
			bracket++
		}
		p.interpolateGeodata(&geodata[bracket], &geodata[bracket+1], position)
	}
	return nil
}

func parseGeolocationTimestamps(geodata []senseboxGeoData) error {
	for i := range geodata {
		ts, err := time.Parse(time.RFC3339Nano, geodata[i].ReceiveTime)
		if err != nil {
			return fmt.Errorf("invalid geolocation receive time %q: %w", geodata[i].ReceiveTime, err)
		}
		geodata[i].ts = ts
		if i > 0 && ts.Before(geodata[i-1].ts) {
			return errors.New("geolocation timestamps are out of order")
		}
	}
	return nil
}

// interpolateGeodata fills a position's location from the bracketing fixes,
// clamping to the nearer end when the sample falls outside the bracket.
func (p *SenseboxParser) interpolateGeodata(l, r *senseboxGeoData, position *Position) {
	switch {
	case position.Timestamp.Before(l.ts):
		p.numOutOfBracket++
		position.Lon, position.Lat, position.SpeedMPS = l.Lon, l.Lat, l.Speed
	case position.Timestamp.After(r.ts):
		p.numOutOfBracket++
		position.Lon, position.Lat, position.SpeedMPS = r.Lon, r.Lat, r.Speed
	default:
		span := r.ts.Sub(l.ts)
		fraction := 0.0
		if span > 0 {
			fraction = float64(position.Timestamp.Sub(l.ts)) / float64(span)
		}
		position.Lon = l.Lon + fraction*(r.Lon-l.Lon)
		position.Lat = l.Lat + fraction*(r.Lat-l.Lat)
		position.SpeedMPS = l.Speed + fraction*(r.Speed-l.Speed)
	}
}

func (p *SenseboxParser) reportStatus() {
	numExcessiveLag := 0
	for _, lag := range p.lags {
		// Drift in either direction means the block's clock is inconsistent.
		if math.Abs(lag.Seconds()) > 1 {
			numExcessiveLag++
		}
	}
	if numExcessiveLag > 0 {
		p.log.Warn("acceleration blocks with device clock inconsistency over 1s",
			zap.Int("blocks", numExcessiveLag),
			zap.Int("total_blocks", len(p.lags)))
	}
	if p.numOutOfBracket > 0 {
		percentage := 100 * float64(p.numOutOfBracket) / float64(p.numPositions)
		p.log.Warn("positions outside the geolocation fix range were clamped",
			zap.Int("count", p.numOutOfBracket),
			zap.Int("total", p.numPositions),
			zap.String("of_total", fmt.Sprintf("%.2f%%", percentage)))
	}
}
