package roadquality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttenuator(t *testing.T) {
	tests := []struct {
		spec string
		want Attenuator
	}{
		{"linear,40,0.5", Attenuator{Exponent: 1, SpeedCapKPH: 40, MaxAttenuation: 0.5}},
		{"quadratic,25,1", Attenuator{Exponent: 2, SpeedCapKPH: 25, MaxAttenuation: 1}},
		{"cubic,60,0", Attenuator{Exponent: 3, SpeedCapKPH: 60, MaxAttenuation: 0}},
	}
	for _, tt := range tests {
		got, err := ParseAttenuator(tt.spec)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, got, tt.spec)
		assert.Equal(t, tt.spec, got.Spec())
	}
}

func TestParseAttenuatorRejectsInvalidSpecs(t *testing.T) {
	for _, spec := range []string{
		"",
		"linear,40",
		"linear,40,0.5,extra",
		"exponential,40,0.5",
		"linear,0,0.5",
		"linear,-10,0.5",
		"linear,40,1.5",
		"linear,40,-0.1",
		"linear,fast,0.5",
	} {
		_, err := ParseAttenuator(spec)
		assert.Error(t, err, spec)
	}
}

func TestAttenuate(t *testing.T) {
	a := Attenuator{Exponent: 1, SpeedCapKPH: 40, MaxAttenuation: 0.5}

	assert.InDelta(t, 100.0, a.Attenuate(100, 0), 1e-9)
	assert.InDelta(t, 75.0, a.Attenuate(100, 20), 1e-9)
	assert.InDelta(t, 50.0, a.Attenuate(100, 40), 1e-9)
	// Faster than the cap attenuates no further.
	assert.InDelta(t, 50.0, a.Attenuate(100, 120), 1e-9)
}

func TestAttenuateNonlinear(t *testing.T) {
	quadratic := Attenuator{Exponent: 2, SpeedCapKPH: 40, MaxAttenuation: 0.5}
	// At half the cap the quadratic curve attenuates by a quarter of max.
	assert.InDelta(t, 87.5, quadratic.Attenuate(100, 20), 1e-9)

	cubic := Attenuator{Exponent: 3, SpeedCapKPH: 40, MaxAttenuation: 0.8}
	assert.InDelta(t, 90.0, cubic.Attenuate(100, 20), 1e-9)
}
