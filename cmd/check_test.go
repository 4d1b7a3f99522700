package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozinsight/ozcheck/internal/checker"
	"github.com/ozinsight/ozcheck/internal/zone"
)

func TestParseCoords(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{name: "two args", args: []string{"27.9506", "-82.4572"}, lat: 27.9506, lng: -82.4572},
		{name: "comma pair", args: []string{"27.9506,-82.4572"}, lat: 27.9506, lng: -82.4572},
		{name: "comma pair with space", args: []string{"40.7484, -73.9857"}, lat: 40.7484, lng: -73.9857},
		{name: "single value", args: []string{"27.9506"}, wantErr: true},
		{name: "bad latitude", args: []string{"north", "-82.4"}, wantErr: true},
		{name: "bad longitude", args: []string{"27.9", "west"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng, err := parseCoords(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, checker.ErrInvalidCoordinates)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.lat, lat, 1e-9)
			assert.InDelta(t, tt.lng, lng, 1e-9)
		})
	}
}

func TestPrintResult_Human(t *testing.T) {
	var out, errOut bytes.Buffer
	res := &checker.Result{
		Success:        true,
		IsInZone:       true,
		Identifier:     "12057005100",
		Attributes:     &zone.Attributes{State: "Florida", County: "057"},
		Point:          zone.Point{Latitude: 27.95, Longitude: -82.45},
		MatchedAddress: "601 E KENNEDY BLVD, TAMPA, FL, 33602",
		GeocodeSource:  "census",
	}
	require.NoError(t, printResult(&out, &errOut, res, nil, false))

	text := out.String()
	assert.Contains(t, text, "IN an Opportunity Zone")
	assert.Contains(t, text, "12057005100")
	assert.Contains(t, text, "county 057, Florida")
	assert.Contains(t, text, "(census)")
	assert.Empty(t, errOut.String())
}

func TestPrintResult_NotInZone(t *testing.T) {
	var out, errOut bytes.Buffer
	res := &checker.Result{Success: true, Point: zone.Point{Latitude: 30, Longitude: -90}}
	require.NoError(t, printResult(&out, &errOut, res, nil, false))
	assert.Contains(t, out.String(), "NOT in an Opportunity Zone")
	assert.NotContains(t, out.String(), "Census tract")
}

func TestPrintResult_JSON(t *testing.T) {
	var out, errOut bytes.Buffer
	res := &checker.Result{Success: true, IsInZone: true, Identifier: "12057005100", Point: zone.Point{Latitude: 27.95, Longitude: -82.45}}
	require.NoError(t, printResult(&out, &errOut, res, nil, true))

	m := decodeJSON(t, out.Bytes())
	assert.Equal(t, true, m["isOpportunityZone"])
	assert.Equal(t, "12057005100", m["geoid"])
}

func TestPrintResult_ErrorPrintsUserMessage(t *testing.T) {
	var out, errOut bytes.Buffer
	err := printResult(&out, &errOut, nil, checker.ErrAddressNotFound, false)
	require.ErrorIs(t, err, checker.ErrAddressNotFound)
	assert.Contains(t, errOut.String(), "No address match found")
	assert.Empty(t, out.String())
}

func TestRunBatch_Coords(t *testing.T) {
	dir := useTestConfig(t, nil)
	raw := filepath.Join(dir, "raw.geojson")
	require.NoError(t, os.WriteFile(raw, []byte(arcgisPage), 0o644))
	var buildOut bytes.Buffer
	require.NoError(t, runBuild(&buildOut, raw, checkerPath(), configOptions(), ""))

	ctx := context.Background()
	c, _, closeFn, err := newChecker()
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, c.Initialize(ctx))

	input := filepath.Join(dir, "in.csv")
	output := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,lat,lng\ntampa,27.95,-82.45\nnola,30.0,-90.0\nbad,95,0\n"), 0o644))

	var summary bytes.Buffer
	require.NoError(t, runBatch(ctx, c, input, output, 2, &summary))
	assert.Contains(t, summary.String(), "Checked 3 rows: 1 in a zone, 1 not, 1 failed")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[1]), "tampa,")
	assert.Contains(t, string(lines[1]), "12057005100")
	assert.Contains(t, string(lines[2]), "nola,")
	assert.Contains(t, string(lines[3]), "Invalid coordinates")
}

func TestRunBatch_MissingInput(t *testing.T) {
	dir := useTestConfig(t, nil)
	c := checker.New(checker.FileSource{Path: filepath.Join(dir, "none.geojson")})
	err := runBatch(context.Background(), c, filepath.Join(dir, "missing.csv"), "", 1, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCoordinateCheck_LeavesCacheUnopened(t *testing.T) {
	dir := useTestConfig(t, map[string]string{"OZCHECK_CACHE_DRIVER": "sqlite"})
	raw := filepath.Join(dir, "raw.geojson")
	require.NoError(t, os.WriteFile(raw, []byte(arcgisPage), 0o644))
	require.NoError(t, runBuild(&bytes.Buffer{}, raw, checkerPath(), configOptions(), ""))

	ctx := context.Background()
	require.NoError(t, withChecker(ctx, func(ctx context.Context, c *checker.Checker) error {
		res, err := c.CheckCoordinates(ctx, 27.95, -82.45)
		require.NoError(t, err)
		assert.True(t, res.IsInZone)
		return nil
	}))
	assert.NoFileExists(t, filepath.Join(dir, cfg.Cache.DSN))
}
