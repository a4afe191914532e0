// Package cache implements the invalidation-tracking query cache engine.
//
// # Overview
//
// The engine sits between query code and its backing store. It serves
// previously computed result sets from a shared cache backend and, for
// every result it stores, records which rows the result depends on, so a
// later write to any of those rows (or to a row they reference by foreign
// key) drops exactly the entries that could be stale.
//
// The package exports:
//
//   - Engine: one per process, built from a Config, a backend.Backend and
//     an invalidation strategy
//   - Query[T]: a descriptor pairing key material with row producers
//   - All / Count: query evaluation with cache semantics
//   - Cached / CachedWith: function memoization, optionally riding a
//     dependency's flush list
//
// # Basic Usage
//
// Build the engine once at startup and share it:
//
//	store := backend.NewMemory(ctx)
//	inv := invalidation.New(store, cachekey.NewMaker(cfg.Prefix))
//	engine, err := cache.NewEngine(cfg, store, inv)
//
// Describe a query and iterate it:
//
//	q := cache.Query[*Addon]{
//		Entity: "testapp.addon",
//		DB:     "default",
//		Text:   func() (string, error) { return boundSQL, nil },
//		Rows:   func(ctx context.Context) iter.Seq2[*Addon, error] { ... },
//	}
//	for addon, err := range cache.All(ctx, engine, q) {
//		...
//	}
//
// The first evaluation streams rows from the producer and caches them; the
// second serves them from the backend with FromCache reporting true.
//
// # Invalidation
//
// After writing rows, tell the engine:
//
//	engine.Invalidate(ctx, addon)        // update or delete
//	engine.InvalidateCreated(ctx, addon) // create
//
// Every cached query whose result contained the row, or joined a row it
// references, is dropped. InvalidateCreated additionally drops all cached
// queries over the row's entity type when Config.InvalidateOnCreate is
// CreateModeWholeModel.
//
// # TTL Sentinels
//
// A Query with a zero TTL uses Config.DefaultTTL. Forever stores without
// expiry. NoCache bypasses the cache for one evaluation with zero backend
// interaction:
//
//	cache.All(ctx, engine, q.NoCache())
//	cache.All(ctx, engine, q.Cache(10*time.Minute))
//
// # Error Handling
//
// Errors from row producers always propagate unchanged, and a partial
// result is never cached. Errors from the cache backend degrade: reads
// fall back to the producer, writes are logged and dropped. A query whose
// Text reports ErrEmptyResult bypasses caching entirely.
//
// # See Also
//
// Package backend for the store adapters, package invalidation for the
// three bookkeeping strategies, and package repositorycache for the
// go-repository-bun decorator built on this engine.
package cache
