package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozinsight/ozcheck/internal/resilience"
)

const censusMatch = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -82.4572, "y": 27.9506},
			"matchedAddress": "601 E KENNEDY BLVD, TAMPA, FL, 33602"
		}]
	}
}`

const censusNoMatch = `{"result": {"addressMatches": []}}`

const googleMatch = `{
	"status": "OK",
	"results": [{
		"formatted_address": "Empire State Building, New York, NY 10001, USA",
		"geometry": {"location": {"lat": 40.7484, "lng": -73.9857}, "location_type": "GEOMETRIC_CENTER"}
	}]
}`

func TestAddressInput_Text(t *testing.T) {
	assert.Equal(t, "601 E Kennedy Blvd, Tampa, FL", AddressInput{OneLine: "  601 E Kennedy Blvd, Tampa, FL "}.Text())
	assert.Equal(t, "601 E Kennedy Blvd, Tampa, FL, 33602",
		AddressInput{Street: "601 E Kennedy Blvd", City: "Tampa", State: "FL", ZipCode: "33602"}.Text())
	assert.Equal(t, "Tampa, FL", AddressInput{City: "Tampa", State: " FL"}.Text())
}

func TestCensusGeocode_Success(t *testing.T) {
	var gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		assert.Equal(t, censusBenchmark, r.URL.Query().Get("benchmark"))
		_, _ = io.WriteString(w, censusMatch)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL, "", "")
	result, err := g.geocodeCensus(context.Background(), AddressInput{OneLine: "601 E Kennedy Blvd, Tampa, FL"})
	require.NoError(t, err)
	assert.Equal(t, "601 E Kennedy Blvd, Tampa, FL", gotAddress)
	assert.True(t, result.Matched)
	assert.InDelta(t, 27.9506, result.Latitude, 0.0001)
	assert.InDelta(t, -82.4572, result.Longitude, 0.0001)
	assert.Equal(t, "601 E KENNEDY BLVD, TAMPA, FL, 33602", result.FormattedAddress)
	assert.Equal(t, "census", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
}

func TestCensusGeocode_NoMatch(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, censusNoMatch)

	result, err := newTestGeocoder(srv.URL, "", "").geocodeCensus(context.Background(), AddressInput{OneLine: "Raymond James Stadium"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, "census", result.Source)
}

func TestCensusGeocode_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := jsonServer(t, tt.status, `{}`)
			_, err := newTestGeocoder(srv.URL, "", "").geocodeCensus(context.Background(), AddressInput{OneLine: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestCensusGeocode_MalformedBody(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `not json`)
	_, err := newTestGeocoder(srv.URL, "", "").geocodeCensus(context.Background(), AddressInput{OneLine: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census parse response")
}

func TestGoogleGeocode_Statuses(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		matched   bool
		wantErr   bool
		transient bool
	}{
		{"ok", googleMatch, true, false, false},
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`, false, false, false},
		{"over limit", `{"status":"OVER_QUERY_LIMIT"}`, false, true, true},
		{"denied", `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := jsonServer(t, http.StatusOK, tt.body)
			g := newTestGeocoder("", srv.URL, "test-key")

			result, err := g.geocodeGoogle(context.Background(), AddressInput{OneLine: "Empire State Building"})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.transient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.matched, result.Matched)
			assert.Equal(t, "google", result.Source)
		})
	}
}

func TestGoogleGeocode_Match(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, googleMatch)
	result, err := newTestGeocoder("", srv.URL, "k").geocodeGoogle(context.Background(), AddressInput{OneLine: "Empire State Building"})
	require.NoError(t, err)
	assert.Equal(t, "Empire State Building, New York, NY 10001, USA", result.FormattedAddress)
	assert.Equal(t, "centroid", result.Quality)
	assert.InDelta(t, 40.7484, result.Latitude, 0.0001)
}

func TestGoogleGeocode_NoKey(t *testing.T) {
	_, err := newTestGeocoder("", "", "").geocodeGoogle(context.Background(), AddressInput{OneLine: "x"})
	require.Error(t, err)
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	assert.Equal(t, "rooftop", googleLocationTypeToQuality("ROOFTOP"))
	assert.Equal(t, "range", googleLocationTypeToQuality("range_interpolated"))
	assert.Equal(t, "centroid", googleLocationTypeToQuality("GEOMETRIC_CENTER"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("APPROXIMATE"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality(""))
}

func TestGeocode_CensusMatch_NoGoogleCall(t *testing.T) {
	var googleCalled atomic.Int32
	census := jsonServer(t, http.StatusOK, censusMatch)
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		googleCalled.Add(1)
		_, _ = io.WriteString(w, googleMatch)
	}))
	defer google.Close()

	result, err := newTestGeocoder(census.URL, google.URL, "k").Geocode(context.Background(), AddressInput{OneLine: "601 E Kennedy Blvd, Tampa, FL"})
	require.NoError(t, err)
	assert.Equal(t, "census", result.Source)
	assert.Zero(t, googleCalled.Load())
}

func TestGeocode_GoogleFallbackOnNoMatch(t *testing.T) {
	census := jsonServer(t, http.StatusOK, censusNoMatch)
	google := jsonServer(t, http.StatusOK, googleMatch)

	result, err := newTestGeocoder(census.URL, google.URL, "k").Geocode(context.Background(), AddressInput{OneLine: "Empire State Building"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
}

func TestGeocode_NoMatchIsNotAnError(t *testing.T) {
	census := jsonServer(t, http.StatusOK, censusNoMatch)

	result, err := newTestGeocoder(census.URL, "", "").Geocode(context.Background(), AddressInput{OneLine: "Nowhere"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_CensusDownGoogleNoMatch(t *testing.T) {
	census := jsonServer(t, http.StatusBadGateway, `{}`)
	google := jsonServer(t, http.StatusOK, `{"status":"ZERO_RESULTS","results":[]}`)

	_, err := newTestGeocoder(census.URL, google.URL, "k").Geocode(context.Background(), AddressInput{OneLine: "Nowhere"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeocode_CensusNoMatchGoogleDown(t *testing.T) {
	census := jsonServer(t, http.StatusOK, censusNoMatch)
	google := jsonServer(t, http.StatusServiceUnavailable, `{}`)

	result, err := newTestGeocoder(census.URL, google.URL, "k").Geocode(context.Background(), AddressInput{OneLine: "Raymond James Stadium"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "census found no match")
}

func TestGeocode_CensusNoMatchGoogleDownNotCached(t *testing.T) {
	census := jsonServer(t, http.StatusOK, censusNoMatch)
	google := jsonServer(t, http.StatusServiceUnavailable, `{}`)
	cache := newMemCache()
	c := NewCachedClient(newTestGeocoder(census.URL, google.URL, "k"), cache)

	for range 2 {
		_, err := c.Geocode(context.Background(), AddressInput{OneLine: "Raymond James Stadium"})
		require.Error(t, err)
	}
	assert.Zero(t, cache.puts)
	assert.Empty(t, cache.entries)
}

func TestGeocode_AllProvidersFail(t *testing.T) {
	census := jsonServer(t, http.StatusServiceUnavailable, `{}`)

	_, err := newTestGeocoder(census.URL, "", "").Geocode(context.Background(), AddressInput{OneLine: "601 E Kennedy Blvd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestGeocode_EmptyAddress(t *testing.T) {
	_, err := newTestGeocoder("", "", "").Geocode(context.Background(), AddressInput{OneLine: "   "})
	require.Error(t, err)
}

func TestGeocode_BreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer census.Close()

	g := newTestGeocoder(census.URL, "", "")
	g.breakers = resilience.NewServiceBreakers(resilience.FromCircuitConfig(2, time.Minute))

	for range 4 {
		_, err := g.Geocode(context.Background(), AddressInput{OneLine: "601 E Kennedy Blvd"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load(), "open circuit short-circuits later calls")
	assert.Equal(t, resilience.CircuitOpen, g.breakers.Get("census").State())

	_, err := g.Geocode(context.Background(), AddressInput{OneLine: "601 E Kennedy Blvd"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	sb := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	c := NewClient(WithGoogleAPIKey("k"), WithHTTPClient(hc), WithRateLimit(2), WithBreakers(sb))

	g, ok := c.(*geocoder)
	require.True(t, ok)
	assert.Equal(t, "k", g.googleKey)
	assert.Same(t, hc, g.httpClient)
	assert.Same(t, sb, g.breakers)
	assert.Equal(t, 2, g.censusLimiter.Burst())
}
