// Package geocode provides address geocoding via Census Geocoder (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ozinsight/ozcheck/internal/resilience"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a single address. An unmatched address is a Result
	// with Matched=false, not an error. An error means no provider could give
	// a definitive answer.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput represents an address to geocode. OneLine takes precedence
// over the structured fields when set.
type AddressInput struct {
	ID      string // Optional identifier for batch correlation
	OneLine string
	Street  string
	City    string
	State   string
	ZipCode string
}

// Text returns the single-line form of the address.
func (a AddressInput) Text() string {
	if s := strings.TrimSpace(a.OneLine); s != "" {
		return s
	}
	return formatOneLine(a)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude         float64 `json:"lat"`
	Longitude        float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Source           string  `json:"source"`  // "census" or "google"
	Quality          string  `json:"quality"` // "rooftop", "range", "centroid", "approximate"
	Matched          bool    `json:"matched"`
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for each provider.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := max(1, int(rps))
		g.censusLimiter = rate.NewLimiter(rate.Limit(rps), burst)
		g.googleLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreakers routes provider calls through per-provider circuit breakers.
func WithBreakers(sb *resilience.ServiceBreakers) Option {
	return func(g *geocoder) {
		g.breakers = sb
	}
}

type geocoder struct {
	httpClient    *http.Client
	googleKey     string
	censusLimiter *rate.Limiter
	googleLimiter *rate.Limiter
	breakers      *resilience.ServiceBreakers
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		censusLimiter: rate.NewLimiter(10, 10),
		googleLimiter: rate.NewLimiter(10, 10),
		breakers:      resilience.NewServiceBreakers(resilience.FromCircuitConfig(5, 30*time.Second)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type providerFunc func(ctx context.Context, addr AddressInput) (*Result, error)

type provider struct {
	name string
	fn   providerFunc
}

// Geocode tries Census first, then Google if configured. It returns an error
// when no provider matched and at least one of them failed.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	if addr.Text() == "" {
		return nil, eris.New("geocode: empty address")
	}

	providers := []provider{{"census", g.geocodeCensus}}
	if g.googleKey != "" {
		providers = append(providers, provider{"google", g.geocodeGoogle})
	}

	var lastErr error
	var noMatch *Result
	for _, p := range providers {
		result, err := g.call(ctx, p.name, p.fn, addr)
		if err != nil {
			zap.L().Debug("geocode: provider error, trying next",
				zap.String("provider", p.name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if result.Matched {
			return result, nil
		}
		if noMatch == nil {
			noMatch = result
		}
	}

	switch {
	case lastErr == nil:
		return noMatch, nil
	case noMatch == nil:
		return nil, eris.Wrap(lastErr, "geocode: all providers failed")
	default:
		// A no-match is only definitive when every provider answered.
		return nil, eris.Wrapf(lastErr, "geocode: %s found no match and a fallback failed", noMatch.Source)
	}
}

func (g *geocoder) call(ctx context.Context, name string, fn providerFunc, addr AddressInput) (*Result, error) {
	if g.breakers == nil {
		return fn(ctx, addr)
	}
	return resilience.ExecuteVal(ctx, g.breakers.Get(name), func(ctx context.Context) (*Result, error) {
		return fn(ctx, addr)
	})
}

// statusError classifies a non-200 provider response. Throttling and server
// errors are transient so they count against the circuit breaker.
func statusError(name string, code int) error {
	err := eris.Errorf("geocode: %s returned status %d", name, code)
	if resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}
