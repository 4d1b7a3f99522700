package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Cache stores geocode results by address key. Implementations apply their
// own expiry; an expired entry is reported as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, result *Result) error
}

// CacheKey returns SHA-256 hex of the normalized address for cache lookup.
func CacheKey(addr AddressInput) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(addr.Text())), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// CachedClient decorates a Client with a result cache. Unmatched results are
// cached too; errors never are.
type CachedClient struct {
	inner Client
	cache Cache
}

// NewCachedClient wraps inner with cache.
func NewCachedClient(inner Client, cache Cache) *CachedClient {
	return &CachedClient{inner: inner, cache: cache}
}

// Geocode implements Client. Cache failures are logged and fall through to
// the wrapped client.
func (c *CachedClient) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := CacheKey(addr)

	cached, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		zap.L().Warn("geocode cache read failed", zap.Error(err))
	case ok:
		zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", cached.Matched))
		return cached, nil
	}

	result, err := c.inner.Geocode(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, result); err != nil {
		zap.L().Warn("geocode cache write failed", zap.Error(err))
	}
	return result, nil
}
