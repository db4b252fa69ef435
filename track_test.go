package roadquality

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trackTestStart = time.Date(2026, 4, 12, 9, 30, 0, 0, time.UTC)

// secondlyPositions builds one position per second starting at trackTestStart,
// one per given acceleration.
func secondlyPositions(accels ...float64) []*Position {
	positions := make([]*Position, len(accels))
	for i, a := range accels {
		positions[i] = &Position{
			Timestamp: trackTestStart.Add(time.Duration(i) * time.Second),
			AccelMG:   a,
		}
	}
	return positions
}

func TestRollingAverageConstantSeries(t *testing.T) {
	track := NewTrack(secondlyPositions(100, 100, 100, 100, 100))

	got := track.RollingAverageAbsoluteAccels(10, nil)
	require.Len(t, got, 5)
	for i, v := range got {
		assert.InDelta(t, 100.0, v, 1e-9, "position %d", i)
	}
}

func TestRollingAverageUsesAbsoluteValues(t *testing.T) {
	track := NewTrack(secondlyPositions(-100, 100, -100))

	got := track.RollingAverageAbsoluteAccels(10, nil)
	for i, v := range got {
		assert.InDelta(t, 100.0, v, 1e-9, "position %d", i)
	}
}

func TestRollingAverageWindowEviction(t *testing.T) {
	track := NewTrack(secondlyPositions(0, 300, 600, 900, 1200))

	// A 2 second trailing window covers at most 3 secondly samples, the
	// boundary sample included.
	got := track.RollingAverageAbsoluteAccels(2, nil)
	want := []float64{0, 150, 300, 600, 900}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "position %d", i)
	}
}

func TestRollingAverageRecoversAfterOutOfRangeSample(t *testing.T) {
	positions := []*Position{
		{Timestamp: trackTestStart, AccelMG: math.Inf(1)},
		{Timestamp: trackTestStart.Add(1 * time.Second), AccelMG: 100},
		{Timestamp: trackTestStart.Add(10 * time.Second), AccelMG: 100},
	}
	track := NewTrack(positions)

	got := track.RollingAverageAbsoluteAccels(2, nil)
	require.Len(t, got, 3)
	assert.True(t, math.IsInf(got[0], 1))
	assert.True(t, math.IsInf(got[1], 1))
	// The out-of-range sample left the window; the mean is finite again.
	assert.InDelta(t, 100.0, got[2], 1e-9)
}

func TestRollingAverageRecoversAfterUnderflowSample(t *testing.T) {
	positions := []*Position{
		{Timestamp: trackTestStart, AccelMG: math.Inf(-1)},
		{Timestamp: trackTestStart.Add(5 * time.Second), AccelMG: 40},
		{Timestamp: trackTestStart.Add(6 * time.Second), AccelMG: 60},
	}
	track := NewTrack(positions)

	got := track.RollingAverageAbsoluteAccels(2, nil)
	require.Len(t, got, 3)
	assert.True(t, math.IsInf(got[0], 1))
	assert.InDelta(t, 40.0, got[1], 1e-9)
	assert.InDelta(t, 50.0, got[2], 1e-9)
}

func TestRollingAverageAttenuated(t *testing.T) {
	positions := secondlyPositions(200, 200)
	positions[0].SpeedMPS = 0
	positions[1].SpeedMPS = 40 / 3.6 // at the cap
	track := NewTrack(positions)

	attenuator := Attenuator{Exponent: 1, SpeedCapKPH: 40, MaxAttenuation: 0.5}
	got := track.RollingAverageAbsoluteAccels(10, &attenuator)
	assert.InDelta(t, 200.0, got[0], 1e-9)
	assert.InDelta(t, 100.0, got[1], 1e-6)
}

func TestRollingAverageMemoization(t *testing.T) {
	track := NewTrack(secondlyPositions(100, 100, 100))

	first := track.RollingAverageAbsoluteAccels(10, nil)
	assert.InDelta(t, 100.0, first[2], 1e-9)

	// A populated cache is reused wholesale; later input mutations must not
	// leak into repeated queries with the same parameters.
	track.Positions()[2].AccelMG = 700
	second := track.RollingAverageAbsoluteAccels(10, nil)
	assert.InDelta(t, 100.0, second[2], 1e-9)

	// Different parameters address a different cache entry and recompute.
	fresh := track.RollingAverageAbsoluteAccels(5, nil)
	assert.InDelta(t, 300.0, fresh[2], 1e-9)
}

func TestRollingAverageKeyDistinguishesAttenuators(t *testing.T) {
	a := Attenuator{Exponent: 1, SpeedCapKPH: 40, MaxAttenuation: 0.5}
	b := Attenuator{Exponent: 2, SpeedCapKPH: 40, MaxAttenuation: 0.5}

	assert.NotEqual(t, RollingAverageKey(10, &a), RollingAverageKey(10, &b))
	assert.NotEqual(t, RollingAverageKey(10, &a), RollingAverageKey(10, nil))
	assert.Equal(t, RollingAverageKey(10, &a), RollingAverageKey(10, &a))
}

func TestTimeSlices(t *testing.T) {
	track := NewTrack(secondlyPositions(0, 1, 2, 3, 4, 5, 6, 7, 8, 9))

	var sizes []int
	var flattened []*Position
	for slice := range track.TimeSlices(3) {
		require.NotEmpty(t, slice)
		sizes = append(sizes, len(slice))
		flattened = append(flattened, slice...)
	}

	// Slices grow until their first-to-last span reaches the duration; the
	// remainder comes out as a short final slice.
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, track.Positions(), flattened)
}

func TestTimeSlicesEmptyTrack(t *testing.T) {
	track := NewTrack(nil)
	for range track.TimeSlices(3) {
		t.Fatal("empty track must yield no slices")
	}
}

func TestBounds(t *testing.T) {
	positions := secondlyPositions(0, 0, 0)
	positions[0].Lon, positions[0].Lat = 13.3, 52.5
	positions[1].Lon, positions[1].Lat = 13.5, 52.4
	positions[2].Lon, positions[2].Lat = 13.4, 52.6
	track := NewTrack(positions)

	want := Bounds{MinLon: 13.3, MinLat: 52.4, MaxLon: 13.5, MaxLat: 52.6}
	assert.Equal(t, want, track.Bounds())
	// Second call hits the cache.
	assert.Equal(t, want, track.Bounds())
}

func TestSpeedConversion(t *testing.T) {
	p := &Position{SpeedMPS: 10}
	assert.InDelta(t, 36.0, p.SpeedKPH(), 1e-9)
}

func TestSemicircleConversion(t *testing.T) {
	assert.InDelta(t, 90.0, SemicirclesToDegrees(1<<30), 1e-9)
	assert.InDelta(t, -180.0, SemicirclesToDegrees(-(1<<31)), 1e-9)
	assert.Equal(t, int64(1<<30), DegreesToSemicircles(90))
}
