package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/roadsense/roadquality"
)

type sampleRow struct {
	TSUTCISO            string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Lon                 float64 `parquet:"name=lon, type=DOUBLE"`
	Lat                 float64 `parquet:"name=lat, type=DOUBLE"`
	SpeedMPS            float64 `parquet:"name=speed_mps, type=DOUBLE"`
	SpeedKPH            float64 `parquet:"name=speed_kph, type=DOUBLE"`
	AccelMG             float64 `parquet:"name=accel_mg, type=DOUBLE"`
	RollingAccelMG      float64 `parquet:"name=rolling_accel_mg, type=DOUBLE"`
	RollingAttenuatedMG float64 `parquet:"name=rolling_attenuated_mg, type=DOUBLE"`
}

func buildSampleRows(track *roadquality.Track, cfg Config) []sampleRow {
	attenuator := cfg.Attenuator
	raw := track.RollingAverageAbsoluteAccels(cfg.RollingAverageWindowSeconds, nil)
	attenuated := track.RollingAverageAbsoluteAccels(cfg.RollingAverageWindowSeconds, &attenuator)

	positions := track.Positions()
	rows := make([]sampleRow, len(positions))
	for i, p := range positions {
		rows[i] = sampleRow{
			TSUTCISO:            p.Timestamp.UTC().Format(time.RFC3339Nano),
			Lon:                 p.Lon,
			Lat:                 p.Lat,
			SpeedMPS:            p.SpeedMPS,
			SpeedKPH:            p.SpeedKPH(),
			AccelMG:             p.AccelMG,
			RollingAccelMG:      raw[i],
			RollingAttenuatedMG: attenuated[i],
		}
	}
	return rows
}

func writeSamplesParquet(path string, rows []sampleRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func writeSamplesCSV(path string, rows []sampleRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"ts_utc_iso", "lon", "lat", "speed_mps", "speed_kph",
		"accel_mg", "rolling_accel_mg", "rolling_attenuated_mg",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.TSUTCISO,
			formatFloat(row.Lon),
			formatFloat(row.Lat),
			formatFloat(row.SpeedMPS),
			formatFloat(row.SpeedKPH),
			formatFloat(row.AccelMG),
			formatFloat(row.RollingAccelMG),
			formatFloat(row.RollingAttenuatedMG),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Summary is the per-track analysis digest written next to the sample data.
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`
	SourceFile  string    `json:"source_file"`

	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	SpanS     float64   `json:"span_s"`
	Positions int       `json:"positions"`

	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`

	Config string `json:"config"`
}

func buildSummary(track *roadquality.Track, inputPath string, cfg Config) Summary {
	positions := track.Positions()
	bounds := track.Bounds()
	summary := Summary{
		GeneratedAt: time.Now().UTC(),
		SourceFile:  inputPath,
		Positions:   len(positions),
		MinLon:      bounds.MinLon,
		MinLat:      bounds.MinLat,
		MaxLon:      bounds.MaxLon,
		MaxLat:      bounds.MaxLat,
		Config:      cfg.String(),
	}
	if len(positions) > 0 {
		summary.Start = positions[0].Timestamp
		summary.End = positions[len(positions)-1].Timestamp
		summary.SpanS = summary.End.Sub(summary.Start).Seconds()
	}
	return summary
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSamples(basePath, format string, rows []sampleRow) (string, error) {
	switch format {
	case "parquet":
		path := basePath + ".samples.parquet"
		if err := writeSamplesParquet(path, rows); err != nil {
			return "", fmt.Errorf("write samples parquet: %w", err)
		}
		return path, nil
	case "csv":
		path := basePath + ".samples.csv"
		if err := writeSamplesCSV(path, rows); err != nil {
			return "", fmt.Errorf("write samples csv: %w", err)
		}
		return path, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
}
