package report

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/roadsense/roadquality"
)

var (
	colorRaw        = color.Black
	colorAttenuated = color.RGBA{B: 0xFF, A: 0xFF}
	colorThreshold  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
)

// writeDynamicsCharts renders the three time-series charts of a track: raw
// acceleration, speed, and the rolling average of absolute acceleration with
// and without attenuation. One PNG per chart, named basePath plus a
// chart-specific extension.
func writeDynamicsCharts(track *roadquality.Track, basePath string, cfg Config) ([]string, error) {
	tss := track.Timestamps()
	if len(tss) == 0 {
		return nil, fmt.Errorf("track has no positions to chart")
	}

	accelPath := basePath + ".accel.png"
	if err := saveChart(accelPath, "Vertical acceleration", "mg", []series{
		{name: "Raw acceleration", color: colorRaw, xs: tss, ys: track.Accels()},
	}, []float64{
		cfg.SpikeLowerLimitMG, cfg.SpikeUpperLimitMG,
		-cfg.SpikeLowerLimitMG, -cfg.SpikeUpperLimitMG,
	}); err != nil {
		return nil, fmt.Errorf("write acceleration chart: %w", err)
	}

	speedPath := basePath + ".speed.png"
	if err := saveChart(speedPath, "Speed", "km/h", []series{
		{name: "Speed", color: colorRaw, xs: tss, ys: track.SpeedsKPH()},
	}, []float64{cfg.Attenuator.SpeedCapKPH}); err != nil {
		return nil, fmt.Errorf("write speed chart: %w", err)
	}

	attenuator := cfg.Attenuator
	rollingPath := basePath + ".rolling.png"
	if err := saveChart(rollingPath, "Rolling average absolute acceleration", "mg", []series{
		{
			name:  "Absolute acceleration",
			color: colorRaw,
			xs:    tss,
			ys:    track.RollingAverageAbsoluteAccels(cfg.RollingAverageWindowSeconds, nil),
		},
		{
			name:  "Attenuated absolute acceleration",
			color: colorAttenuated,
			xs:    tss,
			ys:    track.RollingAverageAbsoluteAccels(cfg.RollingAverageWindowSeconds, &attenuator),
		},
	}, []float64{cfg.TrackLowerLimitMG, cfg.TrackUpperLimitMG}); err != nil {
		return nil, fmt.Errorf("write rolling average chart: %w", err)
	}

	return []string{accelPath, speedPath, rollingPath}, nil
}

type series struct {
	name  string
	color color.Color
	xs    []time.Time
	ys    []float64
}

func saveChart(path, title, yLabel string, lines []series, thresholds []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = yLabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}

	var minX, maxX float64
	for _, s := range lines {
		pts := make(plotter.XYs, 0, len(s.xs))
		for i, ts := range s.xs {
			y := s.ys[i]
			if math.IsInf(y, 0) || math.IsNaN(y) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(ts.UnixNano()) / 1e9, Y: y})
		}
		if len(pts) == 0 {
			continue
		}
		if minX == 0 || pts[0].X < minX {
			minX = pts[0].X
		}
		if pts[len(pts)-1].X > maxX {
			maxX = pts[len(pts)-1].X
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	for _, y := range thresholds {
		line, err := plotter.NewLine(plotter.XYs{{X: minX, Y: y}, {X: maxX, Y: y}})
		if err != nil {
			return err
		}
		line.Color = colorThreshold
		line.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
		p.Add(line)
	}

	return p.Save(12*vg.Inch, 4*vg.Inch, path)
}
