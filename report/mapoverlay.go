package report

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/roadsense/roadquality"
)

// Road-quality color ramp, green (smooth) to red (rough).
var roughnessColors = []string{"#1a9850", "#66bd63", "#a6d96a", "#fee08b", "#fdae61", "#f46d43", "#d73027"}

// writeMapOverlay renders the track as a roughness-colored scatter over
// lon/lat axes. Each point is one track time slice colored by its average
// rolling roughness; spike markers are added on top, sized by how far the
// slice's worst sample exceeds the spike threshold.
func writeMapOverlay(track *roadquality.Track, basePath string, cfg Config) (string, error) {
	if len(track.Positions()) == 0 {
		return "", fmt.Errorf("track has no positions to map")
	}
	attenuator := cfg.Attenuator
	track.EnsureRollingAverageAbsoluteAccels(cfg.RollingAverageWindowSeconds, &attenuator)
	key := roadquality.RollingAverageKey(cfg.RollingAverageWindowSeconds, &attenuator)

	var points []opts.ScatterData
	for slice := range track.TimeSlices(cfg.TrackTimeSliceSeconds) {
		lon, lat := sliceCenter(slice)
		points = append(points, opts.ScatterData{Value: []interface{}{lon, lat, sliceMeanMetric(slice, key)}})
	}

	bounds := track.Bounds()
	lonPad := (bounds.MaxLon - bounds.MinLon) * 0.05
	latPad := (bounds.MaxLat - bounds.MinLat) * 0.05

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Road quality", Width: "1200px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Road quality", Subtitle: cfg.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Min: bounds.MinLon - lonPad, Max: bounds.MaxLon + lonPad,
			Name: "Longitude", NameLocation: "middle", NameGap: 25,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min: bounds.MinLat - latPad, Max: bounds.MaxLat + latPad,
			Name: "Latitude", NameLocation: "middle", NameGap: 35,
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(cfg.TrackLowerLimitMG),
			Max:        float32(cfg.TrackUpperLimitMG),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: roughnessColors},
		}),
	)
	scatter.AddSeries("roughness", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	if cfg.PlotSpikes {
		addSpikeSeries(scatter, track, cfg)
	}

	path := basePath + ".map.html"
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create map overlay: %w", err)
	}
	defer f.Close()
	if err := scatter.Render(f); err != nil {
		return "", fmt.Errorf("render map overlay: %w", err)
	}
	return path, nil
}

// addSpikeSeries marks slices whose worst absolute acceleration reaches the
// spike threshold. Marker size scales with how far above the lower limit the
// spike goes, saturating at the upper limit.
func addSpikeSeries(scatter *charts.Scatter, track *roadquality.Track, cfg Config) {
	var points []opts.ScatterData
	for slice := range track.TimeSlices(cfg.SpikeTimeSliceSeconds) {
		maxAbs := 0.0
		for _, p := range slice {
			if a := math.Abs(p.AccelMG); a > maxAbs {
				maxAbs = a
			}
		}
		if maxAbs < cfg.SpikeLowerLimitMG {
			continue
		}
		over := math.Min(1, (maxAbs-cfg.SpikeLowerLimitMG)/(cfg.SpikeUpperLimitMG-cfg.SpikeLowerLimitMG))
		lon, lat := sliceCenter(slice)
		points = append(points, opts.ScatterData{
			Value:      []interface{}{lon, lat},
			Symbol:     "triangle",
			SymbolSize: int(5 + 10*over),
		})
	}
	scatter.AddSeries("spikes", points,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000000"}))
}

// sliceCenter reduces a time slice to its mean longitude and latitude.
func sliceCenter(slice []*roadquality.Position) (lon, lat float64) {
	lons := make([]float64, 0, len(slice))
	lats := make([]float64, 0, len(slice))
	for _, p := range slice {
		lons = append(lons, p.Lon)
		lats = append(lats, p.Lat)
	}
	return stat.Mean(lons, nil), stat.Mean(lats, nil)
}

// sliceMeanMetric averages the slice's finite cached values under key.
func sliceMeanMetric(slice []*roadquality.Position, key roadquality.MetricKey) float64 {
	var metrics []float64
	for _, p := range slice {
		if v, ok := p.Derived(key); ok && !math.IsInf(v, 0) && !math.IsNaN(v) {
			metrics = append(metrics, v)
		}
	}
	if len(metrics) == 0 {
		return 0
	}
	return stat.Mean(metrics, nil)
}
