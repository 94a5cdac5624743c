// Package cache stores serialized query results keyed by request fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/kham/internal/config"
)

// Cache is a byte-oriented key/value cache. Get misses on any backend failure; callers
// always fall back to computing the value.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Stats reports hit and miss counts.
type Stats struct {
	Type    string `json:"type"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Entries int    `json:"entries"`
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// New builds the cache selected by cfg.Type.
func New(cfg config.CacheConfig, logger *zap.Logger) (Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewLRU(cfg.Size, cfg.TTL), nil
	case "redis":
		return NewRedis(cfg.Redis, cfg.TTL, logger)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}

// Key hashes parts into a fixed-length key.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%x", sum[:16])
}

// Loader collapses concurrent computations of the same key.
type Loader struct {
	cache   Cache
	timeout time.Duration
	group   singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithComputeTimeout bounds each shared computation.
func WithComputeTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// NewLoader wraps c.
func NewLoader(c Cache, opts ...LoaderOption) *Loader {
	l := &Loader{cache: c}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cache returns the wrapped cache.
func (l *Loader) Cache() Cache { return l.cache }

// GetOrCompute returns the cached value for key, or runs compute once for all concurrent
// callers and stores its result. cached reports whether the value came from the cache.
//
// compute runs on a context that keeps the values of the caller that started it but none
// of its cancellation; it ends only when the compute timeout expires. Each caller stops
// waiting when its own ctx ends and gets ctx.Err(), while the computation carries on for
// the callers still waiting.
func (l *Loader) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error)) (value []byte, cached bool, err error) {
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (interface{}, error) {
		cctx := shared
		if l.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(shared, l.timeout)
			defer cancel()
		}
		if v, ok := l.cache.Get(cctx, key); ok {
			return v, nil
		}
		v, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(cctx, key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte)        {}
func (Noop) Invalidate(context.Context) error           { return nil }
func (Noop) Stats() Stats                               { return Stats{Type: "none"} }
func (Noop) Close() error                               { return nil }
