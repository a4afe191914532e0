package cache

import (
	"strings"
	"time"

	"github.com/goliatone/go-query-cache/backend"
)

// Strategy selects how invalidation bookkeeping is stored.
type Strategy string

const (
	// StrategyGeneric stores flush lists through the payload backend,
	// merging with a read-modify-write union. Works with every backend;
	// concurrent unions of the same list can lose members.
	StrategyGeneric Strategy = "generic"
	// StrategyRedis stores flush lists as native Redis sets, which makes
	// the union atomic.
	StrategyRedis Strategy = "redis"
	// StrategyNull never records flush lists. Entries only leave the cache
	// by TTL or by direct row-key invalidation.
	StrategyNull Strategy = "null"
)

// CreateMode selects what newly created rows invalidate.
type CreateMode string

const (
	// CreateModeNone treats creates like updates: invalidation reaches only
	// queries connected through foreign-key edges.
	CreateModeNone CreateMode = ""
	// CreateModeWholeModel additionally drops every cached query over the
	// created row's entity type.
	CreateModeWholeModel CreateMode = "whole-model"
)

// TTL sentinels understood by the engine.
const (
	// Forever stores entries without expiry.
	Forever = backend.NoExpiration
	// NoCache disables cache interaction entirely for the operation it
	// configures. It is resolved by the engine and never reaches a backend.
	NoCache time.Duration = -2
)

// Config exposes the engine's configuration surface.
type Config struct {
	// Prefix namespaces every derived key. Must not contain characters the
	// memcached protocol rejects (spaces, newlines).
	Prefix string

	// Enabled is the master switch. When false every operation passes
	// straight through to its producer with zero cache interaction.
	Enabled bool

	// DefaultTTL applies to queries that do not set their own TTL.
	// Forever and NoCache are valid defaults.
	DefaultTTL time.Duration

	// CountTTL applies to cached row counts. Counts are cheap to recompute,
	// so they are off by default: both zero and NoCache leave them uncached.
	CountTTL time.Duration

	// CacheEmpty stores empty result sets. Off by default: a query matching
	// nothing is usually about to match something.
	CacheEmpty bool

	// FetchByID caches rows individually and only the list of matching ids
	// per query, so overlapping queries share row payloads.
	FetchByID bool

	// Strategy selects the invalidation bookkeeping store. Empty means
	// StrategyGeneric.
	Strategy Strategy

	// InvalidateOnCreate selects what a newly created row invalidates.
	InvalidateOnCreate CreateMode
}

// DefaultConfig returns a Config populated with working defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:     "qc",
		Enabled:    true,
		DefaultTTL: backend.DefaultTTL,
		CountTTL:   NoCache,
		Strategy:   StrategyGeneric,
	}
}

// Validate checks whether the configuration values are valid. Constructors
// call it so a bad value fails at startup, not at first use.
func (c Config) Validate() error {
	if c.Prefix == "" {
		return &ConfigError{Field: "Prefix", Message: "must not be empty"}
	}
	if strings.ContainsAny(c.Prefix, " \n") {
		return &ConfigError{Field: "Prefix", Message: "must not contain whitespace"}
	}
	if c.DefaultTTL < 0 && c.DefaultTTL != Forever && c.DefaultTTL != NoCache {
		return &ConfigError{Field: "DefaultTTL", Message: "must be non-negative or a TTL sentinel"}
	}
	if c.CountTTL < 0 && c.CountTTL != Forever && c.CountTTL != NoCache {
		return &ConfigError{Field: "CountTTL", Message: "must be non-negative or a TTL sentinel"}
	}
	switch c.Strategy {
	case "", StrategyGeneric, StrategyRedis, StrategyNull:
	default:
		return &ConfigError{Field: "Strategy", Message: "unknown strategy " + string(c.Strategy)}
	}
	switch c.InvalidateOnCreate {
	case CreateModeNone, CreateModeWholeModel:
	default:
		return &ConfigError{Field: "InvalidateOnCreate", Message: "unknown mode " + string(c.InvalidateOnCreate)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
