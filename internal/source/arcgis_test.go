package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozinsight/ozcheck/internal/zone"
)

// stubFetcher serves pages of synthetic features from a fixed total.
type stubFetcher struct {
	mu     sync.Mutex
	total  int
	failAt map[int]int // offset -> remaining failures
	urls   []string
	arcErr bool
}

func (s *stubFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	offset, _ := strconv.Atoi(u.Query().Get("resultOffset"))
	count, _ := strconv.Atoi(u.Query().Get("resultRecordCount"))

	if n := s.failAt[offset]; n > 0 {
		s.failAt[offset] = n - 1
		return nil, errors.New("connection reset by peer")
	}
	if s.arcErr {
		return io.NopCloser(bytes.NewBufferString(`{"error":{"code":400,"message":"Invalid query"}}`)), nil
	}

	n := max(0, min(count, s.total-offset))
	return io.NopCloser(bytes.NewReader(pageJSON(offset, n))), nil
}

func (s *stubFetcher) DownloadToFile(context.Context, string, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func pageJSON(offset, n int) []byte {
	features := make([]zone.RawFeature, n)
	for i := range n {
		features[i] = zone.RawFeature{
			Type:       "Feature",
			Properties: map[string]any{"GEOID10": fmt.Sprintf("%011d", offset+i)},
			Geometry:   json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
		}
	}
	data, _ := json.Marshal(map[string]any{"type": "FeatureCollection", "features": features})
	return data
}

func fastOptions() ArcGISOptions {
	return ArcGISOptions{
		BaseURL:    "https://example.test/query",
		PageSize:   2000,
		PageDelay:  0,
		RetryDelay: time.Millisecond,
	}
}

func TestArcGIS_PageURL(t *testing.T) {
	a := NewArcGIS(&stubFetcher{}, ArcGISOptions{})
	assert.Equal(t,
		DefaultArcGISURL+"?outFields=*&where=1%3D1&f=geojson&resultRecordCount=2000&resultOffset=4000",
		a.PageURL(4000))
}

func TestArcGIS_FetchAll_Paginates(t *testing.T) {
	f := &stubFetcher{total: 4500}
	res, err := NewArcGIS(f, fastOptions()).FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Features, 4500)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.Requests)
	assert.False(t, res.Partial)
	assert.Equal(t, "00000004499", res.Features[4499].Properties["GEOID10"])
	assert.Contains(t, f.urls[2], "resultOffset=4000")
}

func TestArcGIS_FetchAll_ExactMultipleEndsOnEmptyPage(t *testing.T) {
	f := &stubFetcher{total: 4000}
	res, err := NewArcGIS(f, fastOptions()).FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Features, 4000)
	assert.Equal(t, 3, res.Requests)
}

func TestArcGIS_FetchAll_RetriesOnce(t *testing.T) {
	f := &stubFetcher{total: 2500, failAt: map[int]int{2000: 1}}
	res, err := NewArcGIS(f, fastOptions()).FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Features, 2500)
	assert.Equal(t, 3, res.Requests)
	assert.False(t, res.Partial)
}

func TestArcGIS_FetchAll_PartialAfterSecondFailure(t *testing.T) {
	f := &stubFetcher{total: 4500, failAt: map[int]int{2000: 2}}
	res, err := NewArcGIS(f, fastOptions()).FetchAll(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Len(t, res.Features, 2000)
	assert.Equal(t, 3, res.Requests)

	var fe *zone.FetchError
	require.ErrorAs(t, res.Err, &fe)
	assert.Equal(t, 2000, fe.Offset)
}

func TestArcGIS_FetchAll_ServiceErrorBody(t *testing.T) {
	f := &stubFetcher{total: 10, arcErr: true}
	res, err := NewArcGIS(f, fastOptions()).FetchAll(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Empty(t, res.Features)
	assert.Contains(t, res.Err.Error(), "Invalid query")
}

func TestArcGIS_FetchAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOptions()
	opts.PageDelay = time.Hour
	_, err := NewArcGIS(&stubFetcher{total: 5000}, opts).FetchAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
