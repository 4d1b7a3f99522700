package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// Pool is the subset of pgxpool.Pool used by PostgresCache. pgxmock pools
// satisfy it as well.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCache implements Cache using pgxpool.
type PostgresCache struct {
	pool Pool
	ttl  time.Duration
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresCache with a connection pool.
func NewPostgres(ctx context.Context, connString string, ttl time.Duration, poolCfg *PoolConfig) (*PostgresCache, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresWithPool(pool, ttl), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool, ttl time.Duration) *PostgresCache {
	return &PostgresCache{pool: pool, ttl: ttl, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash      TEXT PRIMARY KEY,
	latitude          DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
	formatted_address TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	quality           TEXT NOT NULL DEFAULT '',
	matched           BOOLEAN NOT NULL DEFAULT false,
	cached_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

func (s *PostgresCache) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresCache) Close() error {
	s.pool.Close()
	return nil
}

// Get returns the cached result for key. Entries older than the TTL are misses.
func (s *PostgresCache) Get(ctx context.Context, key string) (*geocode.Result, bool, error) {
	var r geocode.Result
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude, formatted_address, source, quality, matched
		 FROM geocode_cache WHERE address_hash = $1 AND cached_at > $2`,
		key, cutoff(s.now(), s.ttl),
	).Scan(&r.Latitude, &r.Longitude, &r.FormattedAddress, &r.Source, &r.Quality, &r.Matched)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get geocode")
	}
	return &r, true, nil
}

// Put upserts result under key.
func (s *PostgresCache) Put(ctx context.Context, key string, result *geocode.Result) error {
	if result == nil {
		return eris.New("postgres: put nil geocode result")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (address_hash, latitude, longitude, formatted_address, source, quality, matched, cached_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			formatted_address = EXCLUDED.formatted_address,
			source = EXCLUDED.source,
			quality = EXCLUDED.quality,
			matched = EXCLUDED.matched,
			cached_at = EXCLUDED.cached_at`,
		key, result.Latitude, result.Longitude, result.FormattedAddress, result.Source, result.Quality, result.Matched, s.now(),
	)
	return eris.Wrap(err, "postgres: put geocode")
}

// Purge deletes entries older than the TTL and reports how many were removed.
func (s *PostgresCache) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM geocode_cache WHERE cached_at <= $1`, cutoff(s.now(), s.ttl))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge geocode cache")
	}
	return tag.RowsAffected(), nil
}
