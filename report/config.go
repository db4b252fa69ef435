// Package report renders a parsed track into charts, a map overlay and
// exportable sample data.
package report

import (
	"errors"
	"fmt"

	"github.com/roadsense/roadquality"
)

// Config carries the analysis parameters shared by all outputs.
type Config struct {
	// TrackTimeSliceSeconds is the chunk duration for continuous road-quality
	// analysis; each chunk is averaged and drawn as one map segment.
	TrackTimeSliceSeconds float64
	// SpikeTimeSliceSeconds is the chunk duration for spike detection; only
	// the maximum absolute acceleration of a chunk decides whether it spikes.
	SpikeTimeSliceSeconds float64
	// RollingAverageWindowSeconds is the lookback for the per-position
	// rolling average of absolute acceleration.
	RollingAverageWindowSeconds float64

	// TrackLowerLimitMG and TrackUpperLimitMG bound the color scale of the
	// map overlay: at or below the lower limit the road is excellent, at or
	// above the upper limit maximally bad.
	TrackLowerLimitMG float64
	TrackUpperLimitMG float64

	PlotSpikes        bool
	SpikeLowerLimitMG float64
	SpikeUpperLimitMG float64

	Attenuator roadquality.Attenuator
}

// DefaultConfig returns the analysis defaults.
func DefaultConfig() Config {
	return Config{
		TrackTimeSliceSeconds:       5,
		SpikeTimeSliceSeconds:       1,
		RollingAverageWindowSeconds: 10,
		TrackLowerLimitMG:           100,
		TrackUpperLimitMG:           300,
		PlotSpikes:                  true,
		SpikeLowerLimitMG:           3000,
		SpikeUpperLimitMG:           4000,
		Attenuator:                  roadquality.Attenuator{Exponent: 1, SpeedCapKPH: 40, MaxAttenuation: 0.5},
	}
}

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	if c.TrackTimeSliceSeconds <= 0 {
		return errors.New("track time slice must be positive")
	}
	if c.SpikeTimeSliceSeconds <= 0 {
		return errors.New("spike time slice must be positive")
	}
	if c.RollingAverageWindowSeconds <= 0 {
		return errors.New("rolling average window must be positive")
	}
	if c.TrackLowerLimitMG >= c.TrackUpperLimitMG {
		return errors.New("track lower limit must be below the upper limit")
	}
	if c.SpikeLowerLimitMG >= c.SpikeUpperLimitMG {
		return errors.New("spike lower limit must be below the upper limit")
	}
	if c.Attenuator.Exponent < 1 || c.Attenuator.Exponent > 3 {
		return errors.New("attenuator exponent must be 1, 2 or 3")
	}
	if c.Attenuator.SpeedCapKPH <= 0 {
		return errors.New("attenuator speed cap must be positive")
	}
	if c.Attenuator.MaxAttenuation < 0 || c.Attenuator.MaxAttenuation > 1 {
		return errors.New("attenuator max attenuation must be in [0, 1]")
	}
	return nil
}

// String renders the configuration for chart subtitles and summaries.
func (c Config) String() string {
	return fmt.Sprintf(
		"time slice: %gs (track)/%gs (spikes); roll. avg. lookback: %gs; track range: %gmg-%gmg; spike range: %gmg-%gmg; attenuation: %s",
		c.TrackTimeSliceSeconds, c.SpikeTimeSliceSeconds, c.RollingAverageWindowSeconds,
		c.TrackLowerLimitMG, c.TrackUpperLimitMG,
		c.SpikeLowerLimitMG, c.SpikeUpperLimitMG,
		c.Attenuator.Spec())
}
