package roadquality

import (
	"iter"
	"math"
	"time"
)

const metricRollingAverageAbsoluteAccels = "rolling_average_absolute_accels"

// Track owns the ordered position sequence for one recorded activity. The
// sequence is fixed after construction; only per-position derived caches
// mutate afterwards.
type Track struct {
	positions []*Position

	boundsOnce   bool
	cachedBounds Bounds
}

// Bounds is the geographic bounding box of a track.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// NewTrack builds a track over positions. Positions are expected to be in
// non-decreasing timestamp order; callers validate or log violations.
func NewTrack(positions []*Position) *Track {
	return &Track{positions: positions}
}

// Positions returns the backing position sequence. Callers must not reorder
// or resize it.
func (t *Track) Positions() []*Position {
	return t.positions
}

// Bounds returns the track's bounding box, computed once.
func (t *Track) Bounds() Bounds {
	if t.boundsOnce {
		return t.cachedBounds
	}
	b := Bounds{
		MinLon: math.Inf(1), MinLat: math.Inf(1),
		MaxLon: math.Inf(-1), MaxLat: math.Inf(-1),
	}
	for _, p := range t.positions {
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}
	t.cachedBounds = b
	t.boundsOnce = true
	return b
}

// Timestamps returns the per-position timestamps in order.
func (t *Track) Timestamps() []time.Time {
	out := make([]time.Time, len(t.positions))
	for i, p := range t.positions {
		out[i] = p.Timestamp
	}
	return out
}

// Accels returns the per-position accelerations in milli-g.
func (t *Track) Accels() []float64 {
	out := make([]float64, len(t.positions))
	for i, p := range t.positions {
		out[i] = p.AccelMG
	}
	return out
}

// SpeedsKPH returns the per-position speeds in km/h.
func (t *Track) SpeedsKPH() []float64 {
	out := make([]float64, len(t.positions))
	for i, p := range t.positions {
		out[i] = p.SpeedKPH()
	}
	return out
}

// RollingAverageKey is the derived-data cache key for the rolling average of
// absolute accelerations with the given parameters. attenuator may be nil.
func RollingAverageKey(windowSeconds float64, attenuator *Attenuator) MetricKey {
	key := MetricKey{
		Metric:        metricRollingAverageAbsoluteAccels,
		WindowSeconds: windowSeconds,
	}
	if attenuator != nil {
		key.Attenuator = *attenuator
		key.Attenuated = true
	}
	return key
}

// RollingAverageAbsoluteAccels returns, per position, the mean of |accel|
// over the trailing window of windowSeconds ending at that position. If
// attenuator is non-nil the mean is attenuated by the position's speed.
func (t *Track) RollingAverageAbsoluteAccels(windowSeconds float64, attenuator *Attenuator) []float64 {
	t.EnsureRollingAverageAbsoluteAccels(windowSeconds, attenuator)
	key := RollingAverageKey(windowSeconds, attenuator)
	out := make([]float64, len(t.positions))
	for i, p := range t.positions {
		out[i], _ = p.Derived(key)
	}
	return out
}

// EnsureRollingAverageAbsoluteAccels populates the rolling-average cache for
// every position. The cache check is all-or-nothing: if the first position
// already carries the key, the whole track is assumed populated.
func (t *Track) EnsureRollingAverageAbsoluteAccels(windowSeconds float64, attenuator *Attenuator) {
	key := RollingAverageKey(windowSeconds, attenuator)
	if len(t.positions) == 0 {
		return
	}
	if _, ok := t.positions[0].Derived(key); ok {
		return
	}
	window := time.Duration(windowSeconds * float64(time.Second))

	// Positions are appended in timestamp order and only evicted from the
	// front, so the live window is always the contiguous range [start, i].
	// Out-of-range samples are ±Inf; they are counted instead of summed so
	// the running total stays finite and the mean recovers to finite values
	// once they leave the window.
	start := 0
	sumAbs := 0.0
	infinite := 0
	for i, p := range t.positions {
		if abs := math.Abs(p.AccelMG); math.IsInf(abs, 1) {
			infinite++
		} else {
			sumAbs += abs
		}
		minTS := p.Timestamp.Add(-window)
		for t.positions[start].Timestamp.Before(minTS) {
			if abs := math.Abs(t.positions[start].AccelMG); math.IsInf(abs, 1) {
				infinite--
			} else {
				sumAbs -= abs
			}
			start++
		}
		mean := sumAbs / float64(i-start+1)
		if infinite > 0 {
			mean = math.Inf(1)
		}
		if attenuator != nil {
			mean = attenuator.Attenuate(mean, p.SpeedKPH())
		}
		p.setDerived(key, mean)
	}
}

// TimeSlices partitions the track into contiguous position groups, each
// (except possibly the last) spanning at least the given duration between its
// first and last timestamp. Concatenating the slices reproduces the original
// sequence.
func (t *Track) TimeSlices(durationSeconds float64) iter.Seq[[]*Position] {
	sliceDuration := time.Duration(durationSeconds * float64(time.Second))
	return func(yield func([]*Position) bool) {
		var current []*Position
		for _, p := range t.positions {
			if len(current) > 0 {
				span := current[len(current)-1].Timestamp.Sub(current[0].Timestamp)
				if span >= sliceDuration {
					if !yield(current) {
						return
					}
					current = nil
				}
			}
			current = append(current, p)
		}
		if len(current) > 0 {
			yield(current)
		}
	}
}
