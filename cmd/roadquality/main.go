package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/roadsense/roadquality"
	"github.com/roadsense/roadquality/report"
)

func main() {
	defaults := report.DefaultConfig()
	var (
		save        = flag.Bool("save", false, "Write outputs next to each input file instead of only parsing")
		saveSuffix  = flag.String("save-suffix", "", "Suffix inserted before output extensions")
		format      = flag.String("format", "parquet", "Sample export format: parquet|csv")
		trackSlice  = flag.Float64("track-time-slice", defaults.TrackTimeSliceSeconds, "Track map segment duration in seconds")
		spikeSlice  = flag.Float64("spike-time-slice", defaults.SpikeTimeSliceSeconds, "Spike detection segment duration in seconds")
		rollWindow  = flag.Float64("rolling-average-window-duration", defaults.RollingAverageWindowSeconds, "Rolling average lookback in seconds")
		trackLower  = flag.Float64("track-lower-limit", defaults.TrackLowerLimitMG, "Roughness color scale lower bound in milli-g")
		trackUpper  = flag.Float64("track-upper-limit", defaults.TrackUpperLimitMG, "Roughness color scale upper bound in milli-g")
		noSpikes    = flag.Bool("no-spikes", false, "Disable spike markers on the map overlay")
		spikeLower  = flag.Float64("spike-lower-limit", defaults.SpikeLowerLimitMG, "Spike detection threshold in milli-g")
		spikeUpper  = flag.Float64("spike-upper-limit", defaults.SpikeUpperLimitMG, "Spike marker size saturation in milli-g")
		attenuation = flag.String("attenuation", defaults.Attenuator.Spec(), "Speed attenuation as <linear|quadratic|cubic>,<speed cap km/h>,<max attenuation>")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] activity.fit [more files...]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "Analyzes road roughness from .fit or sensor .json recordings.\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "roadquality: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	attenuator, err := roadquality.ParseAttenuator(*attenuation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roadquality: %v\n", err)
		os.Exit(2)
	}

	cfg := report.Config{
		TrackTimeSliceSeconds:       *trackSlice,
		SpikeTimeSliceSeconds:       *spikeSlice,
		RollingAverageWindowSeconds: *rollWindow,
		TrackLowerLimitMG:           *trackLower,
		TrackUpperLimitMG:           *trackUpper,
		PlotSpikes:                  !*noSpikes,
		SpikeLowerLimitMG:           *spikeLower,
		SpikeUpperLimitMG:           *spikeUpper,
		Attenuator:                  attenuator,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "roadquality: %v\n", err)
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		if err := analyzeFile(path, cfg, *save, *saveSuffix, *format, logger); err != nil {
			logger.Error("analysis failed", zap.String("file", path), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func analyzeFile(path string, cfg report.Config, save bool, saveSuffix, format string, logger *zap.Logger) error {
	track, err := parseTrack(path, logger)
	if err != nil {
		return err
	}
	if !save {
		return nil
	}
	_, err = report.Generate(track, path, cfg, report.Options{
		SaveSuffix: saveSuffix,
		Format:     format,
	}, logger)
	return err
}

func parseTrack(path string, logger *zap.Logger) (*roadquality.Track, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fit":
		return roadquality.NewFitTrackParser(path, logger).Parse()
	case ".json":
		return roadquality.NewSenseboxParser(path, logger).Parse()
	default:
		return nil, fmt.Errorf("unsupported file type %q (expected .fit or .json)", filepath.Ext(path))
	}
}
