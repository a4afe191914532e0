package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cachekey"
)

// Dependency names the thing a memoized computation depends on, resolved
// once at the call site rather than probed at run time. The zero value
// declares no usable dependency; CachedWith then logs a warning and runs
// the computation uncached.
type Dependency struct {
	resolve func(m cachekey.Maker) (material, flushKey string, err error)
}

// OnQuery ties a computation to a query: the composite key folds in the
// query's own cache key, and the entry registers in the query's flush list,
// so invalidating the query drops the computation too.
func OnQuery[T Cacheable](q Query[T]) Dependency {
	return Dependency{resolve: func(m cachekey.Maker) (string, string, error) {
		text, err := q.Text()
		if err != nil {
			return "", "", err
		}
		return m.QueryKey(text, q.DB), m.FlushKey(text), nil
	}}
}

// OnEntity ties a computation to a single row.
func OnEntity(obj cachekey.Entity) Dependency {
	if obj == nil {
		return Dependency{}
	}
	return Dependency{resolve: func(m cachekey.Maker) (string, string, error) {
		ref := obj.CacheRef()
		return m.ObjectKey(ref), m.FlushKeyForRef(ref), nil
	}}
}

// Cached memoizes fn under the given key material. The active locale from
// the context is folded into the key, so locale-dependent computations keep
// one entry per language. The result participates in no flush list; it
// leaves the cache by TTL only. Errors from fn propagate and are never
// stored.
func Cached[R any](ctx context.Context, e *Engine, key string, ttl time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	if !e.enabled() {
		return fn(ctx)
	}
	ttl = e.effectiveTTL(ttl)
	if ttl == NoCache {
		return fn(ctx)
	}
	return getOrCompute(ctx, e, e.maker.FunctionKey(key, LocaleFromContext(ctx)), ttl, fn)
}

// CachedWith memoizes fn like Cached and additionally registers the entry
// in the dependency's flush list, so invalidating the dependency drops the
// memoized value. An unusable dependency (the zero value, or one whose key
// cannot be derived) degrades to running fn directly, uncached.
func CachedWith[R any](ctx context.Context, e *Engine, dep Dependency, fn func(ctx context.Context) (R, error), key string, ttl time.Duration) (R, error) {
	if !e.enabled() {
		return fn(ctx)
	}
	ttl = e.effectiveTTL(ttl)
	if ttl == NoCache {
		return fn(ctx)
	}
	if dep.resolve == nil {
		e.log.Warn("memoization dependency unusable, caching off", "key", key)
		return fn(ctx)
	}
	material, flush, err := dep.resolve(e.maker)
	if err != nil {
		e.log.Warn("memoization dependency key failed, caching off", "key", key, "error", err)
		return fn(ctx)
	}
	fullKey := e.maker.FunctionKey(key+":"+material, LocaleFromContext(ctx))
	if err := e.inv.AddToFlushLists(ctx, map[string][]string{flush: {fullKey}}); err != nil {
		e.log.Warn("memoization registration failed", "key", fullKey, "error", err)
	}
	return getOrCompute(ctx, e, fullKey, ttl, fn)
}

// getOrCompute is the shared read-compute-store path. Memoized values are
// written with a plain set; when computations race, the last one wins.
func getOrCompute[R any](ctx context.Context, e *Engine, key string, ttl time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.log.Warn("memoized read failed, recomputing", "key", key, "error", err)
	} else if ok {
		value, err := backend.Decode[R](raw)
		if err == nil {
			return value, nil
		}
		e.log.Warn("memoized payload decode failed, recomputing", "key", key, "error", err)
	}
	value, err := fn(ctx)
	if err != nil {
		return value, err
	}
	if err := e.store.Set(ctx, key, value, ttl); err != nil {
		e.log.Warn("memoized write failed", "key", key, "error", err)
	}
	return value, nil
}
