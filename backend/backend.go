// Package backend adapts physical stores to the uniform operations the
// cache engine and invalidator are written against. Three adapters ship:
// an in-process map (Memory), a memcached-protocol store (Memcached), and
// Redis. All adapters encode values with msgpack before they are stored, so
// a payload read back is always a fresh copy; Decode recovers typed values.
//
// Error philosophy: read and write failures are returned to the caller,
// which decides whether to degrade (the invalidation layer absorbs them,
// the result cache propagates them as misses). Adapters never panic.
package backend

import (
	"context"
	"errors"
	"time"
)

// TTL sentinels, following the convention Go cache libraries standardized.
const (
	// NoExpiration stores an entry that never expires. Adapters map it to
	// the store's native "forever" representation.
	NoExpiration time.Duration = -1
	// DefaultExpiration resolves to the adapter's configured default TTL.
	DefaultExpiration time.Duration = 0
)

// DefaultQueryTimeout bounds each network round trip for adapters that
// support per-operation deadlines.
const DefaultQueryTimeout = 5 * time.Second

// DefaultTTL is the adapter-level default entry lifetime when none is
// configured.
const DefaultTTL = 5 * time.Minute

// ErrClosed is returned by operations on a closed adapter.
var ErrClosed = errors.New("backend: closed")

// Backend is the uniform store contract.
//
// Get reports absence via the second return, never as an error. GetMany
// omits absent keys from its result map. Add stores only when the key is
// not already present and reports whether it stored, which is what keeps
// two racing cache fills from overwriting each other. Delete and
// DeleteMany are idempotent: removing an absent key is not an error.
// Clear drops every entry in the store.
type Backend interface {
	Get(ctx context.Context, key string) (any, bool, error)
	GetMany(ctx context.Context, keys []string) (map[string]any, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error
	Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
	Close() error
}

// config carries the tunables shared by the adapters. Individual adapters
// ignore options that do not apply to them.
type config struct {
	defaultTTL   time.Duration
	queryTimeout time.Duration
	sweep        time.Duration
}

func defaultConfig() config {
	return config{
		defaultTTL:   DefaultTTL,
		queryTimeout: DefaultQueryTimeout,
		sweep:        time.Minute,
	}
}

// Option customizes an adapter at construction time.
type Option func(*config)

// WithDefaultTTL sets the lifetime applied when a caller passes
// DefaultExpiration. NoExpiration is a valid default.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) {
		c.defaultTTL = d
	}
}

// WithQueryTimeout bounds each store round trip for network adapters.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// WithSweepInterval sets how often the Memory adapter evicts expired
// entries. Zero or negative disables the background sweep; expired entries
// are then only dropped lazily on read.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		c.sweep = d
	}
}

// resolveTTL maps the DefaultExpiration sentinel to the configured default.
// Any negative result means "never expire".
func (c config) resolveTTL(ttl time.Duration) time.Duration {
	if ttl == DefaultExpiration {
		return c.defaultTTL
	}
	return ttl
}
