package checker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// testDocument holds four tracts: a Tampa square, a second Tampa square
// overlapping the first, a Manhattan square with a hole and a degenerate
// ring near (0,0).
const testDocument = `{
  "type": "FeatureCollection",
  "properties": {"generatedAt": "2026-03-01T00:00:00Z", "totalFeatures": 4},
  "features": [
    {"type": "Feature", "properties": {"geoid": "12057005100"},
     "geometry": {"type": "Polygon", "coordinates": [[[-82.5,27.9],[-82.4,27.9],[-82.4,28.0],[-82.5,28.0],[-82.5,27.9]]]}},
    {"type": "Feature", "properties": {"geoid": "12057005200"},
     "geometry": {"type": "Polygon", "coordinates": [[[-82.45,27.95],[-82.35,27.95],[-82.35,28.05],[-82.45,28.05],[-82.45,27.95]]]}},
    {"type": "Feature", "properties": {"geoid": "36061007600"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[
        [[-74.0,40.7],[-73.9,40.7],[-73.9,40.8],[-74.0,40.8],[-74.0,40.7]],
        [[-73.97,40.73],[-73.93,40.73],[-73.93,40.77],[-73.97,40.77],[-73.97,40.73]]
     ]]}},
    {"type": "Feature", "properties": {"geoid": "01001020100"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[0,0]]]}}
  ]
}`

func writeDocument(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opportunity-zones.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newReadyChecker(t *testing.T, opts ...Option) *Checker {
	t.Helper()
	c := New(FileSource{Path: writeDocument(t, testDocument)}, opts...)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

// gatedSource blocks Open until release is closed and counts opens.
type gatedSource struct {
	release chan struct{}
	opens   atomic.Int32
	failN   int32
}

func (s *gatedSource) Open(ctx context.Context) (io.ReadCloser, error) {
	n := s.opens.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= s.failN {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(testDocument)), nil
}

func (s *gatedSource) String() string { return "gated" }

type stubGeocoder struct {
	mu      sync.Mutex
	results map[string]*geocode.Result
	err     error
	delay   time.Duration
	calls   int
}

func (s *stubGeocoder) Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.results[addr.Text()]; ok {
		return r, nil
	}
	return &geocode.Result{Source: "census"}, nil
}
