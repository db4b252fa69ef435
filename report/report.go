package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/roadsense/roadquality"
)

// Options controls where and in which shape outputs are written.
type Options struct {
	// SaveSuffix is inserted between the input path and the output extension,
	// so repeated runs with different parameters can coexist.
	SaveSuffix string
	// Format selects the sample export encoding, parquet or csv.
	Format string
}

// Result lists the files one report run produced.
type Result struct {
	ChartPaths  []string
	MapPath     string
	SamplesPath string
	SummaryPath string
}

// Generate writes all configured outputs for a parsed track: dynamics charts,
// the map overlay, the per-position sample export and a summary digest.
// Output files are named after inputPath plus the save suffix.
func Generate(track *roadquality.Track, inputPath string, cfg Config, opts Options, log *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	format := opts.Format
	if format == "" {
		format = "parquet"
	}

	basePath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + opts.SaveSuffix

	result := &Result{}
	var err error

	result.ChartPaths, err = writeDynamicsCharts(track, basePath, cfg)
	if err != nil {
		return nil, err
	}
	result.MapPath, err = writeMapOverlay(track, basePath, cfg)
	if err != nil {
		return nil, err
	}
	result.SamplesPath, err = writeSamples(basePath, format, buildSampleRows(track, cfg))
	if err != nil {
		return nil, err
	}
	result.SummaryPath = basePath + ".summary.json"
	if err := writeJSON(result.SummaryPath, buildSummary(track, inputPath, cfg)); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	log.Info("report written",
		zap.String("file", inputPath),
		zap.Strings("charts", result.ChartPaths),
		zap.String("map", result.MapPath),
		zap.String("samples", result.SamplesPath),
		zap.String("summary", result.SummaryPath))
	return result, nil
}
