// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// This package implements the repository decorator pattern on top of the cache
// engine. The cached repository wraps a base repository, evaluates read
// operations through the cache, and turns write operations into invalidation:
// updating or deleting a record drops every cached query that record (or a
// record related to it by foreign key) participates in.
//
// # Key Features
//
//   - **Type-safe caching**: Go generics keep record types intact through the cache
//   - **Dependency-tracked invalidation**: writes invalidate exactly the queries
//     their rows were registered in, via flush lists
//   - **Transaction awareness**: transactional reads bypass the cache entirely
//   - **Pluggable key strategy**: query text built via the KeySerializer interface
//
// # Basic Usage
//
// Create a cached repository by wrapping an existing repository:
//
//	store := backend.NewMemory(ctx)
//	inv := invalidation.New(store, cachekey.NewMaker(cfg.Prefix))
//	engine, err := cache.NewEngine(cfg, store, inv)
//	if err != nil {
//		return err
//	}
//
//	cached := repositorycache.New(base, engine)
//
//	// Use exactly like your base repository
//	user, err := cached.GetByID(ctx, "user-123")
//	users, total, err := cached.List(ctx, repository.Where("active", true))
//
// Record types must implement cache.Cacheable: their CacheRef names the row
// identity invalidation is tracked under, and RelatedRefs names the rows they
// reference by foreign key.
//
// # Cached vs Pass-through Operations
//
// ## Cached Operations
//
//   - Get, GetByID, GetByIdentifier
//   - List, Count, Raw
//
// ## Pass-through Operations
//
//   - All write operations (Create, Update, Upsert, Delete and variants),
//     which additionally invalidate on success
//   - All transaction-based operations (*Tx methods); transactional writes
//     still invalidate, since the cache cannot observe the commit
//
// # Invalidation Behavior
//
//   - Update/Delete/ForceDelete invalidate through the written record's flush
//     lists, reaching every cached query it was part of.
//   - Create/Upsert/GetOrCreate invalidate as creates: with whole-model mode
//     configured, every cached query over the entity type is dropped, since a
//     brand-new row cannot be part of any existing cached result.
//   - DeleteMany/DeleteWhere never see the affected rows and fall back to
//     whole-model invalidation.
//
// # Query Text
//
// Each read serializes its method name and arguments into opaque query text;
// the engine derives the cache key from a digest of that text. Criteria are
// function values and serialize by pointer identity: package-level criteria
// helpers reused across calls produce stable text, inline closures do not.
// Raw is keyed by its SQL string and bound arguments, which makes it the most
// precise read to cache.
//
// # Error Handling
//
// Errors from the base repository are propagated unchanged and never cached.
// Cache and invalidation failures degrade to log lines; a write whose
// invalidation failed still reports success.
//
// # See Also
//
// For engine configuration and TTL sentinels, see the cache package. For
// wiring backends and invalidation strategies, see the pkg/di package.
package repositorycache
