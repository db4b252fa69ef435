package roadquality

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Attenuator reduces an acceleration reading as a function of speed, modeling
// the assumption that high-speed road noise says less about road quality.
//
// An acceleration a at speed v (km/h) attenuates to
//
//	(1 - min(1, v/cap)^exp * att) * a
//
// where cap is the speed at which maximum attenuation is reached (faster gets
// the same attenuation), exp makes the curve nonlinear, and att is the
// attenuation fraction applied at the cap.
//
// Attenuator is a value type; structural equality makes it usable directly in
// MetricKey cache keys.
type Attenuator struct {
	Exponent    int
	SpeedCapKPH float64
	// MaxAttenuation is the fraction removed at the speed cap, in [0, 1].
	MaxAttenuation float64
}

var attenuationMethods = []struct {
	name     string
	exponent int
}{
	{"linear", 1},
	{"quadratic", 2},
	{"cubic", 3},
}

// ParseAttenuator parses a "(linear|quadratic|cubic),<speed cap>,<att>"
// specification, e.g. "linear,40,0.5".
func ParseAttenuator(spec string) (Attenuator, error) {
	args := strings.Split(spec, ",")
	if len(args) != 3 {
		return Attenuator{}, fmt.Errorf("invalid attenuation spec %q: want \"(linear|quadratic|cubic),<speed cap>,<att>\"", spec)
	}
	exponent := 0
	for _, m := range attenuationMethods {
		if m.name == args[0] {
			exponent = m.exponent
			break
		}
	}
	if exponent == 0 {
		return Attenuator{}, fmt.Errorf("invalid attenuation method %q", args[0])
	}
	speedCap, err := strconv.ParseFloat(args[1], 64)
	if err != nil || speedCap <= 0 {
		return Attenuator{}, fmt.Errorf("invalid attenuation speed cap %q", args[1])
	}
	att, err := strconv.ParseFloat(args[2], 64)
	if err != nil || att < 0 || att > 1 {
		return Attenuator{}, fmt.Errorf("invalid attenuation fraction %q: must be in [0, 1]", args[2])
	}
	return Attenuator{Exponent: exponent, SpeedCapKPH: speedCap, MaxAttenuation: att}, nil
}

// Spec renders the attenuator back into its textual specification.
func (a Attenuator) Spec() string {
	method := "linear"
	for _, m := range attenuationMethods {
		if m.exponent == a.Exponent {
			method = m.name
		}
	}
	return fmt.Sprintf("%s,%g,%g", method, a.SpeedCapKPH, a.MaxAttenuation)
}

// Attenuate applies the speed-dependent attenuation curve to accel at the
// given speed in km/h.
func (a Attenuator) Attenuate(accel, speedKPH float64) float64 {
	attenuation := math.Pow(cappedFraction(speedKPH, a.SpeedCapKPH), float64(a.Exponent)) * a.MaxAttenuation
	return (1 - attenuation) * accel
}

func cappedFraction(value, reference float64) float64 {
	return math.Min(1, value/reference)
}
