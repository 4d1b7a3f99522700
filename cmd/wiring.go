package main

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/checker"
	"github.com/ozinsight/ozcheck/internal/fetcher"
	"github.com/ozinsight/ozcheck/internal/resilience"
	"github.com/ozinsight/ozcheck/internal/store"
	"github.com/ozinsight/ozcheck/internal/zone"
	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// newFetcher returns the HTTP fetcher used for dataset and document
// downloads. Retries are left to the callers.
func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Source.UserAgent,
		Timeout:    cfg.Source.Timeout,
		MaxRetries: 1,
	})
}

// newGeocoder builds the census/google client, wrapped in the configured
// result cache. The cache is opened on the first address lookup. The returned
// func releases it.
func newGeocoder() (geocode.Client, *resilience.ServiceBreakers, func()) {
	breakers := resilience.NewServiceBreakers(
		resilience.FromCircuitConfig(cfg.Geocode.CircuitThreshold, cfg.Geocode.CircuitReset))

	var client geocode.Client = geocode.NewClient(
		geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithBreakers(breakers),
	)

	switch strings.ToLower(cfg.Cache.Driver) {
	case "", "none":
		return client, breakers, func() {}
	}
	cache := store.NewLazy(openCache)
	return geocode.NewCachedClient(client, cache), breakers, func() { _ = cache.Close() }
}

func openCache(ctx context.Context) (store.Cache, error) {
	return store.Open(ctx, store.Config{
		Driver: cfg.Cache.Driver,
		DSN:    cfg.Cache.DSN,
		TTL:    cfg.Cache.TTL(),
		Pool:   &store.PoolConfig{MaxConns: cfg.Cache.MaxConns, MinConns: cfg.Cache.MinConns},
	})
}

func loadLookup(path string) (*zone.LookupIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open lookup %s", path)
	}
	defer f.Close() //nolint:errcheck
	idx, err := zone.ReadLookupIndex(f)
	if err != nil {
		return nil, &zone.ParseError{Source: path, Err: err}
	}
	return idx, nil
}

// newChecker wires an uninitialized Checker from config.
func newChecker() (*checker.Checker, *resilience.ServiceBreakers, func(), error) {
	geo, breakers, closeGeo := newGeocoder()

	opts := []checker.Option{
		checker.WithGeocoder(geo),
		checker.WithGeocodeTimeout(cfg.Geocode.Timeout),
		checker.WithSpatialIndex(cfg.Checker.SpatialIndex),
	}
	if cfg.Checker.Lookup != "" {
		idx, err := loadLookup(cfg.Checker.Lookup)
		if err != nil {
			closeGeo()
			return nil, nil, nil, err
		}
		zap.L().Info("lookup index loaded", zap.String("path", cfg.Checker.Lookup), zap.Int("tracts", len(idx.ByIdentifier)))
		opts = append(opts, checker.WithLookup(idx))
	}

	c := checker.New(checker.NewSource(cfg.Checker.Document, newFetcher()), opts...)
	return c, breakers, closeGeo, nil
}
