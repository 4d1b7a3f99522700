package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozinsight/ozcheck/internal/config"
)

// arcgisPage is a single short page holding a Tampa tract and a Manhattan
// tract.
const arcgisPage = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"GEOID10": "12057005100", "STATE_NAME": "Florida", "STATE": "12", "COUNTY": "057", "TRACT": "005100"},
			"geometry": {"type": "Polygon", "coordinates": [[[-82.5, 27.9], [-82.4, 27.9], [-82.4, 28.0], [-82.5, 28.0], [-82.5, 27.9]]]}
		},
		{
			"type": "Feature",
			"properties": {"GEOID10": "36061007600", "STATE_NAME": "New York", "STATE": "36", "COUNTY": "061", "TRACT": "007600"},
			"geometry": {"type": "Polygon", "coordinates": [[[-74.0, 40.7], [-73.9, 40.7], [-73.9, 40.8], [-74.0, 40.8], [-74.0, 40.7]]]}
		}
	]
}`

// newArcGISServer serves arcgisPage for every query.
func newArcGISServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(arcgisPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// useTestConfig loads config from an empty temp dir with env overrides and
// installs it as the command config.
func useTestConfig(t *testing.T, env map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OZCHECK_CACHE_DRIVER", "none")
	t.Setenv("OZCHECK_SOURCE_RETRY_DELAY", "1ms")
	for k, v := range env {
		t.Setenv(k, v)
	}

	c, err := config.Load()
	require.NoError(t, err)
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return dir
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}
