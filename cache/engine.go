package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cachekey"
	"github.com/goliatone/go-query-cache/logging"
)

// Invalidator is the engine's view of the invalidation layer: registering
// the dependency edges of cached results and finding stale entries on
// writes. Satisfied by every invalidation strategy.
type Invalidator interface {
	CacheObjects(ctx context.Context, entity string, objs []cachekey.Entity, queryKey, queryFlush string) error
	AddToFlushLists(ctx context.Context, lists map[string][]string) error
	InvalidateObjects(ctx context.Context, objs []cachekey.Entity, newInstance bool) error
	InvalidateModel(ctx context.Context, entity string) error
}

// Engine evaluates queries with cache semantics: results are served from
// the backend when present, captured and registered for invalidation when
// not. One engine is built at startup and shared by every call site; it
// holds no per-request state.
type Engine struct {
	cfg   Config
	store backend.Backend
	inv   Invalidator
	maker cachekey.Maker
	log   logging.Logger
}

// EngineOption customizes an Engine at construction time.
type EngineOption func(*Engine)

// WithLogger installs a logger for degraded cache operations.
func WithLogger(log logging.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine validates cfg and builds an engine over the given payload
// backend and invalidation strategy.
func NewEngine(cfg Config, store backend.Backend, inv Invalidator, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		store: store,
		inv:   inv,
		maker: cachekey.NewMaker(cfg.Prefix),
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Maker returns the key maker the engine derives all keys with.
func (e *Engine) Maker() cachekey.Maker { return e.maker }

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) enabled() bool {
	return e != nil && e.cfg.Enabled
}

// effectiveTTL resolves a per-query TTL against the configured default, so
// the "use default" zero value never crosses a serialization boundary. The
// result may still be the NoCache sentinel, which callers check before any
// backend interaction.
func (e *Engine) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return e.cfg.DefaultTTL
	}
	return ttl
}

// fill is the write side of a cache miss: store the materialized payload
// under the query key and register the result's dependency edges. Failures
// degrade to a log line since the rows were already delivered to the
// caller.
func (e *Engine) fill(ctx context.Context, entity, text, queryKey string, payload any, objs []cachekey.Entity, ttl time.Duration) {
	if _, err := e.store.Add(ctx, queryKey, payload, ttl); err != nil {
		e.log.Warn("cache fill failed", "key", queryKey, "error", err)
		return
	}
	if err := e.inv.CacheObjects(ctx, entity, objs, queryKey, e.maker.FlushKey(text)); err != nil {
		e.log.Warn("dependency registration failed", "key", queryKey, "error", err)
	}
}

// Invalidate finds and drops every cache entry that depends on the given
// rows. Call it after updating or deleting rows.
func (e *Engine) Invalidate(ctx context.Context, objs ...Cacheable) error {
	return e.invalidate(ctx, objs, false)
}

// InvalidateCreated is Invalidate for rows that were just created. When the
// whole-model mode is configured it additionally drops every cached query
// over the rows' entity types, since a brand-new row cannot appear in any
// existing cached result yet makes list queries stale.
func (e *Engine) InvalidateCreated(ctx context.Context, objs ...Cacheable) error {
	return e.invalidate(ctx, objs, true)
}

func (e *Engine) invalidate(ctx context.Context, objs []Cacheable, created bool) error {
	if !e.enabled() || len(objs) == 0 {
		return nil
	}
	refs := make([]cachekey.Entity, len(objs))
	for i, obj := range objs {
		refs[i] = obj
	}
	return e.inv.InvalidateObjects(ctx, refs, created)
}

// InvalidateModel drops every cached query over one entity type. Only
// effective when the whole-model mode registered the sentinel edges.
func (e *Engine) InvalidateModel(ctx context.Context, entity string) error {
	if !e.enabled() {
		return nil
	}
	return e.inv.InvalidateModel(ctx, entity)
}
