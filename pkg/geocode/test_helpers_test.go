package geocode

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient creates an HTTP client that rewrites requests to test servers.
// Keys of routes are URL prefixes, values the test server URLs replacing them.
func newRewriteClient(routes map[string]string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:   http.DefaultTransport,
			routes: routes,
		},
	}
}

type rewriteTransport struct {
	base   http.RoundTripper
	routes map[string]string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	for prefix, target := range t.routes {
		if !strings.HasPrefix(origURL, prefix) {
			continue
		}
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(target + origURL[len(prefix):])
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// jsonServer serves body with the given status.
func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestGeocoder wires a geocoder to test servers. An empty URL leaves the
// provider pointed at its real endpoint.
func newTestGeocoder(censusURL, googleURL, googleKey string) *geocoder {
	routes := map[string]string{}
	if censusURL != "" {
		routes[censusOneLineURL] = censusURL
	}
	if googleURL != "" {
		routes[googleGeocodeURL] = googleURL
	}
	return &geocoder{
		httpClient:    newRewriteClient(routes),
		googleKey:     googleKey,
		censusLimiter: newTestLimiter(),
		googleLimiter: newTestLimiter(),
	}
}
