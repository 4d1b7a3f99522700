package store

import (
	"context"
	"sync"

	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// Lazy is a geocode.Cache that opens its backend on first use, so commands
// that never geocode never touch the cache database.
type Lazy struct {
	open func(context.Context) (Cache, error)

	mu     sync.Mutex
	opened bool
	cache  Cache
	err    error
}

var _ geocode.Cache = (*Lazy)(nil)

// NewLazy returns a Lazy cache backed by open. A nil Cache from open makes
// every lookup a miss.
func NewLazy(open func(context.Context) (Cache, error)) *Lazy {
	return &Lazy{open: open}
}

func (l *Lazy) backend(ctx context.Context) (Cache, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.opened {
		l.opened = true
		l.cache, l.err = l.open(ctx)
	}
	return l.cache, l.err
}

// Get implements geocode.Cache.
func (l *Lazy) Get(ctx context.Context, key string) (*geocode.Result, bool, error) {
	c, err := l.backend(ctx)
	if err != nil || c == nil {
		return nil, false, err
	}
	return c.Get(ctx, key)
}

// Put implements geocode.Cache.
func (l *Lazy) Put(ctx context.Context, key string, r *geocode.Result) error {
	c, err := l.backend(ctx)
	if err != nil || c == nil {
		return err
	}
	return c.Put(ctx, key, r)
}

// Opened reports whether the backend has been opened.
func (l *Lazy) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}

// Close closes the backend if it was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache == nil {
		return nil
	}
	err := l.cache.Close()
	l.cache = nil
	return err
}
