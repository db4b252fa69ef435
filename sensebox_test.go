package roadquality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var senseboxTestTime = time.Date(2026, 5, 3, 14, 0, 0, 0, time.UTC)

func writeSenseboxFile(t *testing.T, file senseboxFile) string {
	t.Helper()
	data, err := json.Marshal(file)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "recording.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func senseboxTimeString(ts time.Time) string {
	return ts.Format(time.RFC3339Nano)
}

func TestSenseboxParseAnchorsAndInterpolates(t *testing.T) {
	// Block received at T, last sample at uptime 2000ms: device startup is
	// anchored to T-2s, so the samples land at T-1s, T-500ms and T.
	file := senseboxFile{
		RawAccelerationsRecords: []senseboxAccelBlock{{
			ReceiveTime: senseboxTimeString(senseboxTestTime),
			RawAccelerations: []senseboxAccelSample{
				{MillisSinceDeviceStartup: 1000, Z: 11},
				{MillisSinceDeviceStartup: 1500, Z: 12},
				{MillisSinceDeviceStartup: 2000, Z: 13},
			},
		}},
		GeoLocationDatas: []senseboxGeoData{
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(-time.Second)), Lon: 13.0, Lat: 52.0, Speed: 4},
			{ReceiveTime: senseboxTimeString(senseboxTestTime), Lon: 14.0, Lat: 53.0, Speed: 8},
		},
	}

	track, err := NewSenseboxParser(writeSenseboxFile(t, file), zap.NewNop()).Parse()
	require.NoError(t, err)

	positions := track.Positions()
	require.Len(t, positions, 3)

	assert.Equal(t, senseboxTestTime.Add(-time.Second), positions[0].Timestamp)
	assert.Equal(t, senseboxTestTime.Add(-500*time.Millisecond), positions[1].Timestamp)
	assert.Equal(t, senseboxTestTime, positions[2].Timestamp)

	// z is m/s² with gravity included; 11 m/s² is 100 mg above the baseline.
	assert.InDelta(t, 100.0, positions[0].AccelMG, 1e-9)
	assert.InDelta(t, 200.0, positions[1].AccelMG, 1e-9)
	assert.InDelta(t, 300.0, positions[2].AccelMG, 1e-9)

	// The middle sample sits halfway between the two fixes.
	assert.InDelta(t, 13.5, positions[1].Lon, 1e-9)
	assert.InDelta(t, 52.5, positions[1].Lat, 1e-9)
	assert.InDelta(t, 6.0, positions[1].SpeedMPS, 1e-9)

	// The boundary samples coincide with the fixes.
	assert.InDelta(t, 13.0, positions[0].Lon, 1e-9)
	assert.InDelta(t, 14.0, positions[2].Lon, 1e-9)
}

func TestSenseboxClampsOutsideFixRange(t *testing.T) {
	file := senseboxFile{
		RawAccelerationsRecords: []senseboxAccelBlock{{
			ReceiveTime: senseboxTimeString(senseboxTestTime),
			RawAccelerations: []senseboxAccelSample{
				{MillisSinceDeviceStartup: 1000, Z: 10},
				{MillisSinceDeviceStartup: 2000, Z: 10},
			},
		}},
		// Both fixes lie after every sample.
		GeoLocationDatas: []senseboxGeoData{
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(time.Second)), Lon: 13.0, Lat: 52.0, Speed: 4},
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(2 * time.Second)), Lon: 14.0, Lat: 53.0, Speed: 8},
		},
	}

	track, err := NewSenseboxParser(writeSenseboxFile(t, file), zap.NewNop()).Parse()
	require.NoError(t, err)

	for _, p := range track.Positions() {
		assert.InDelta(t, 13.0, p.Lon, 1e-9)
		assert.InDelta(t, 52.0, p.Lat, 1e-9)
		assert.InDelta(t, 4.0, p.SpeedMPS, 1e-9)
	}
}

func TestSenseboxSkipsEmptyBlocks(t *testing.T) {
	file := senseboxFile{
		RawAccelerationsRecords: []senseboxAccelBlock{
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(-time.Minute))},
			{
				ReceiveTime: senseboxTimeString(senseboxTestTime),
				RawAccelerations: []senseboxAccelSample{
					{MillisSinceDeviceStartup: 1000, Z: 10},
				},
			},
		},
		GeoLocationDatas: []senseboxGeoData{
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(-time.Second)), Lon: 13.0, Lat: 52.0},
			{ReceiveTime: senseboxTimeString(senseboxTestTime), Lon: 13.0, Lat: 52.0},
		},
	}

	track, err := NewSenseboxParser(writeSenseboxFile(t, file), zap.NewNop()).Parse()
	require.NoError(t, err)
	assert.Len(t, track.Positions(), 1)
}

func TestSenseboxOutOfOrderAccelsFatal(t *testing.T) {
	// The second block's receive time anchors its samples before the first
	// block's, which breaks the timeline.
	file := senseboxFile{
		RawAccelerationsRecords: []senseboxAccelBlock{
			{
				ReceiveTime: senseboxTimeString(senseboxTestTime),
				RawAccelerations: []senseboxAccelSample{
					{MillisSinceDeviceStartup: 1000, Z: 10},
				},
			},
			{
				ReceiveTime: senseboxTimeString(senseboxTestTime),
				RawAccelerations: []senseboxAccelSample{
					{MillisSinceDeviceStartup: 500, Z: 10},
				},
			},
		},
		GeoLocationDatas: []senseboxGeoData{
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(-time.Second))},
			{ReceiveTime: senseboxTimeString(senseboxTestTime)},
		},
	}

	_, err := NewSenseboxParser(writeSenseboxFile(t, file), zap.NewNop()).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}

func TestSenseboxOutOfOrderGeolocationsFatal(t *testing.T) {
	file := senseboxFile{
		RawAccelerationsRecords: []senseboxAccelBlock{{
			ReceiveTime: senseboxTimeString(senseboxTestTime),
			RawAccelerations: []senseboxAccelSample{
				{MillisSinceDeviceStartup: 1000, Z: 10},
			},
		}},
		GeoLocationDatas: []senseboxGeoData{
			{ReceiveTime: senseboxTimeString(senseboxTestTime)},
			{ReceiveTime: senseboxTimeString(senseboxTestTime.Add(-time.Second))},
		},
	}

	_, err := NewSenseboxParser(writeSenseboxFile(t, file), zap.NewNop()).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}

func TestSenseboxTooFewFixesFatal(t *testing.T) {
	file := senseboxFile{
		RawAccelerationsRecords: []senseboxAccelBlock{{
			ReceiveTime: senseboxTimeString(senseboxTestTime),
			RawAccelerations: []senseboxAccelSample{
				{MillisSinceDeviceStartup: 1000, Z: 10},
			},
		}},
		GeoLocationDatas: []senseboxGeoData{
			{ReceiveTime: senseboxTimeString(senseboxTestTime)},
		},
	}

	_, err := NewSenseboxParser(writeSenseboxFile(t, file), zap.NewNop()).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fewer than 2 geolocation fixes")
}

func TestSenseboxRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewSenseboxParser(path, zap.NewNop()).Parse()
	require.Error(t, err)
}
