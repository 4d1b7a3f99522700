package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// SQLiteCache implements Cache using modernc.org/sqlite.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, ttl time.Duration) (*SQLiteCache, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash      TEXT PRIMARY KEY,
	latitude          REAL NOT NULL DEFAULT 0,
	longitude         REAL NOT NULL DEFAULT 0,
	formatted_address TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	quality           TEXT NOT NULL DEFAULT '',
	matched           INTEGER NOT NULL DEFAULT 0,
	cached_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

func (s *SQLiteCache) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

// Get returns the cached result for key. Entries older than the TTL are misses.
func (s *SQLiteCache) Get(ctx context.Context, key string) (*geocode.Result, bool, error) {
	var (
		r       geocode.Result
		matched int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, formatted_address, source, quality, matched
		 FROM geocode_cache WHERE address_hash = ? AND cached_at > ?`,
		key, unixOrZero(cutoff(s.now(), s.ttl)),
	).Scan(&r.Latitude, &r.Longitude, &r.FormattedAddress, &r.Source, &r.Quality, &matched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get geocode")
	}
	r.Matched = matched != 0
	return &r, true, nil
}

// Put upserts result under key.
func (s *SQLiteCache) Put(ctx context.Context, key string, result *geocode.Result) error {
	if result == nil {
		return eris.New("sqlite: put nil geocode result")
	}
	matched := 0
	if result.Matched {
		matched = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (address_hash, latitude, longitude, formatted_address, source, quality, matched, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			formatted_address = excluded.formatted_address,
			source = excluded.source,
			quality = excluded.quality,
			matched = excluded.matched,
			cached_at = excluded.cached_at`,
		key, result.Latitude, result.Longitude, result.FormattedAddress, result.Source, result.Quality, matched, s.now().Unix(),
	)
	return eris.Wrap(err, "sqlite: put geocode")
}

// Purge deletes entries older than the TTL and reports how many were removed.
func (s *SQLiteCache) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE cached_at <= ?`, cutoff(s.now(), s.ttl).Unix())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge geocode cache")
	}
	return res.RowsAffected()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
