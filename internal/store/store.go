// Package store persists geocode results so repeated address checks skip the
// remote geocoders. SQLite serves single-host use; Postgres lets several
// API instances share one cache.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// Cache is a geocode.Cache with a lifecycle.
type Cache interface {
	geocode.Cache
	Migrate(ctx context.Context) error
	Purge(ctx context.Context) (int64, error)
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	Driver string // sqlite, postgres or none
	DSN    string
	TTL    time.Duration // zero keeps entries forever
	Pool   *PoolConfig
}

// Open connects to the configured backend and migrates it. Driver "none"
// (or empty) returns a nil Cache and no error.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		c, err = NewSQLite(cfg.DSN, cfg.TTL)
	case "postgres", "postgresql":
		c, err = NewPostgres(ctx, cfg.DSN, cfg.TTL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown cache driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Migrate(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// cutoff returns the oldest cached_at still considered fresh.
func cutoff(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(-ttl)
}
