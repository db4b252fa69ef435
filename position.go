// Package roadquality turns accelerometer/GPS activity recordings into a
// time-ordered track of geolocated vertical-acceleration samples and computes
// smoothed road-roughness metrics over it.
package roadquality

import (
	"math"
	"time"
)

// GravityMilliG is standard gravity expressed in milli-g. Raw sensor readings
// are baseline-adjusted by this amount so that an idle sensor reads ~0.
const GravityMilliG = 1000.0

// Position is one vertical-acceleration sample at a point in time.
type Position struct {
	Timestamp time.Time
	// Lon and Lat are decimal degrees.
	Lon float64
	Lat float64
	// SpeedMPS is ground speed from the GNSS fix in m/s.
	SpeedMPS float64
	// AccelMG is baseline-adjusted vertical acceleration in milli-g.
	AccelMG float64

	// derived caches analysis results keyed by the exact parameters that
	// produced them. Entries are populated all-or-nothing across a track.
	derived map[MetricKey]float64
}

// MetricKey identifies one derived metric including its parameters.
// Attenuator is compared structurally, so two keys built from equal
// attenuator values address the same cache entry.
type MetricKey struct {
	Metric        string
	WindowSeconds float64
	Attenuator    Attenuator
	Attenuated    bool
}

// Derived returns the cached value for key, if present.
func (p *Position) Derived(key MetricKey) (float64, bool) {
	v, ok := p.derived[key]
	return v, ok
}

func (p *Position) setDerived(key MetricKey, v float64) {
	if p.derived == nil {
		p.derived = make(map[MetricKey]float64, 2)
	}
	p.derived[key] = v
}

// SpeedKPH returns the sample's ground speed in km/h.
func (p *Position) SpeedKPH() float64 {
	return MpsToKph(p.SpeedMPS)
}

// MpsToKph converts meters per second to kilometers per hour.
func MpsToKph(mps float64) float64 {
	return mps * 3.6
}

// SemicirclesToDegrees converts the FIT fixed-point angle encoding, where a
// half circle maps to 2^31, to decimal degrees.
func SemicirclesToDegrees(semicircles int64) float64 {
	return float64(semicircles) * 180.0 / 2147483648.0
}

// DegreesToSemicircles is the inverse of SemicirclesToDegrees.
func DegreesToSemicircles(degrees float64) int64 {
	return int64(math.Round(degrees * 2147483648.0 / 180.0))
}
