package cache

import (
	"context"
	"iter"
	"time"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cachekey"
)

// fetchByID is the id-batching strategy: the query key stores only the list
// of matching primary keys, while rows are cached individually under byid
// keys. Overlapping queries then share row payloads instead of each holding
// a full duplicate copy, and a row refetch costs at most one extra query
// restricted to the ids the cache was missing.
func fetchByID[T Cacheable](ctx context.Context, e *Engine, q Query[T], text string, ttl time.Duration) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		queryKey := e.maker.QueryKey(text, q.DB)
		ids, hit := cachedIDList(ctx, e, queryKey)
		if !hit {
			fresh, err := q.IDs(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			ids = fresh
		}

		rows, err := assembleRows(ctx, e, q, ids)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}

		// Original id order, not DB-returned order. An id whose row
		// vanished between the id query and the byid fetch is skipped.
		for _, id := range ids {
			row, ok := rows[id]
			if !ok {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}

		if hit {
			return
		}
		if len(ids) == 0 && !e.cfg.CacheEmpty {
			return
		}
		objs := make([]cachekey.Entity, 0, len(rows))
		for _, id := range ids {
			if row, ok := rows[id]; ok {
				objs = append(objs, row)
			}
		}
		e.fill(ctx, q.Entity, text, queryKey, ids, objs, ttl)
	}
}

// cachedIDList reads the query's cached id list. Backend and decode
// failures degrade to a miss.
func cachedIDList(ctx context.Context, e *Engine, queryKey string) ([]string, bool) {
	raw, ok, err := e.store.Get(ctx, queryKey)
	if err != nil {
		e.log.Warn("cache read failed, treating as miss", "key", queryKey, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	ids, err := backend.Decode[[]string](raw)
	if err != nil {
		e.log.Warn("cache payload decode failed, treating as miss", "key", queryKey, "error", err)
		return nil, false
	}
	return ids, true
}

// assembleRows resolves ids to rows: bulk-read the byid entries, fetch the
// missing ids with one narrowed query, and write the fetched rows back as
// byid entries with the default TTL. Rows served from the cache are marked
// cache-sourced; freshly fetched ones are not.
func assembleRows[T Cacheable](ctx context.Context, e *Engine, q Query[T], ids []string) (map[string]T, error) {
	rows := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return rows, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = e.maker.ByIDKey(cachekey.Ref{Entity: q.Entity, PK: id, DB: q.DB})
	}
	found, err := e.store.GetMany(ctx, keys)
	if err != nil {
		e.log.Warn("byid read failed, treating all as missing", "error", err)
		found = map[string]any{}
	}

	var missing []string
	for i, id := range ids {
		raw, ok := found[keys[i]]
		if !ok {
			missing = append(missing, id)
			continue
		}
		row, err := backend.Decode[T](raw)
		if err != nil {
			e.log.Warn("byid payload decode failed, refetching", "key", keys[i], "error", err)
			missing = append(missing, id)
			continue
		}
		row.SetFromCache(true)
		rows[id] = row
	}
	if len(missing) == 0 {
		return rows, nil
	}

	filled := make(map[string]any, len(missing))
	for row, err := range q.ByIDs(ctx, missing) {
		if err != nil {
			return nil, err
		}
		ref := row.CacheRef()
		rows[ref.PK] = row
		filled[e.maker.ByIDKey(ref)] = row
	}
	if byidTTL := e.effectiveTTL(backend.DefaultExpiration); byidTTL != NoCache && len(filled) > 0 {
		if err := e.store.SetMany(ctx, filled, byidTTL); err != nil {
			e.log.Warn("byid write failed", "error", err)
		}
	}
	return rows, nil
}
