package cache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cachekey"
)

// ErrEmptyResult signals that a query provably matches no rows, discovered
// while rendering its canonical text (an empty IN-list, for example). It is
// a control-flow signal, not a failure: caching is bypassed and the row
// producer runs normally, legitimately returning nothing.
var ErrEmptyResult = errors.New("cache: query matches no rows")

// Query describes one cacheable query. Text and Rows are required; IDs and
// ByIDs are only consulted when the fetch-by-id strategy is configured.
type Query[T Cacheable] struct {
	// Entity tags the queried row type, e.g. "testapp.addon".
	Entity string

	// DB tags the shard the query runs against, so replica and primary
	// results never share an entry.
	DB string

	// Text renders the canonical fully bound query text. It is used only as
	// opaque key material, never parsed. Returning ErrEmptyResult marks the
	// query as provably empty.
	Text func() (string, error)

	// Rows produces the hydrated result rows, in result order.
	Rows func(ctx context.Context) iter.Seq2[T, error]

	// IDs produces only the primary keys the query matches.
	IDs func(ctx context.Context) ([]string, error)

	// ByIDs produces the rows for exactly the given primary keys, with the
	// original query's ordering and limits cleared. Row order is
	// unspecified; results are reassembled by id.
	ByIDs func(ctx context.Context, ids []string) iter.Seq2[T, error]

	// TTL overrides the entry lifetime for this query. Zero resolves to
	// Config.DefaultTTL; Forever and NoCache are honored as sentinels.
	TTL time.Duration
}

// Cache returns a copy of the query with the given TTL.
func (q Query[T]) Cache(ttl time.Duration) Query[T] {
	q.TTL = ttl
	return q
}

// NoCache returns a copy of the query that bypasses the cache entirely.
func (q Query[T]) NoCache() Query[T] {
	q.TTL = NoCache
	return q
}

// All evaluates the query with cache semantics and returns its rows as a
// lazy sequence. A hit yields the stored rows verbatim, each marked as
// cache-sourced. A miss streams rows from the producer to the caller while
// buffering them, and on clean exhaustion stores the buffer (idempotently,
// so racing identical queries keep exactly one payload) and registers its
// dependency edges for invalidation. A producer error propagates unchanged
// and discards the partial buffer, as does abandoning the sequence early.
func All[T Cacheable](ctx context.Context, e *Engine, q Query[T]) iter.Seq2[T, error] {
	if !e.enabled() {
		return q.Rows(ctx)
	}
	ttl := e.effectiveTTL(q.TTL)
	if ttl == NoCache {
		return q.Rows(ctx)
	}
	text, err := q.Text()
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			return q.Rows(ctx)
		}
		return errSeq[T](fmt.Errorf("cache: render query text: %w", err))
	}
	if e.cfg.FetchByID && q.IDs != nil && q.ByIDs != nil {
		return fetchByID(ctx, e, q, text, ttl)
	}

	queryKey := e.maker.QueryKey(text, q.DB)
	raw, ok, err := e.store.Get(ctx, queryKey)
	if err != nil {
		e.log.Warn("cache read failed, treating as miss", "key", queryKey, "error", err)
		ok = false
	}
	if ok {
		rows, err := backend.Decode[[]T](raw)
		if err == nil {
			return fromCache(rows)
		}
		e.log.Warn("cache payload decode failed, treating as miss", "key", queryKey, "error", err)
	}
	return fillAndYield(ctx, e, q, text, queryKey, ttl)
}

// Count evaluates the query's row count with cache semantics. Counts use
// the separately configured count TTL and are disabled by default; the
// cached value rides the query's flush list, so invalidating the query
// drops its count too.
func Count[T Cacheable](ctx context.Context, e *Engine, q Query[T], produce func(ctx context.Context) (int, error)) (int, error) {
	if !e.enabled() {
		return produce(ctx)
	}
	ttl := e.cfg.CountTTL
	if ttl == 0 || ttl == NoCache {
		return produce(ctx)
	}
	text, err := q.Text()
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache: render query text: %w", err)
	}
	return CachedWith(ctx, e, OnQuery(q), produce, "count:"+text, ttl)
}

// fromCache yields stored rows verbatim, marked as cache-sourced.
func fromCache[T Cacheable](rows []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, row := range rows {
			row.SetFromCache(true)
			if !yield(row, nil) {
				return
			}
		}
	}
}

func errSeq[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// fillAndYield is the miss path: stream rows to the caller while buffering,
// then cache the buffer once the producer is cleanly exhausted. Empty
// results are only written when configured.
func fillAndYield[T Cacheable](ctx context.Context, e *Engine, q Query[T], text, queryKey string, ttl time.Duration) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var buffered []T
		for row, err := range q.Rows(ctx) {
			if err != nil {
				yield(row, err)
				return
			}
			if !yield(row, nil) {
				return
			}
			buffered = append(buffered, row)
		}
		if len(buffered) == 0 && !e.cfg.CacheEmpty {
			return
		}
		e.fill(ctx, q.Entity, text, queryKey, buffered, entities(buffered), ttl)
	}
}

func entities[T Cacheable](rows []T) []cachekey.Entity {
	objs := make([]cachekey.Entity, len(rows))
	for i, row := range rows {
		objs[i] = row
	}
	return objs
}
