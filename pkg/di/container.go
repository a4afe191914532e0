// Package di assembles the cache components into a ready-to-use container:
// pick a payload backend and an invalidation strategy in a declarative
// config, and get back a shared engine plus a factory for cached
// repositories.
package di

import (
	"context"

	"github.com/bradfitz/gomemcache/memcache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/cachekey"
	"github.com/goliatone/go-query-cache/invalidation"
	"github.com/goliatone/go-query-cache/logging"
	"github.com/goliatone/go-query-cache/repositorycache"
)

// BackendKind selects the payload store the container builds.
type BackendKind string

const (
	// BackendMemory is the in-process store. The default.
	BackendMemory BackendKind = "memory"
	// BackendRedis stores payloads in Redis; requires Config.Redis.
	BackendRedis BackendKind = "redis"
	// BackendMemcached stores payloads in memcached; requires
	// Config.Memcached.
	BackendMemcached BackendKind = "memcached"
)

// Config bundles everything the container needs: the cache configuration
// plus the concrete clients the selected backend and strategy depend on.
type Config struct {
	// Cache is the engine configuration. The zero value is replaced with
	// cache.DefaultConfig.
	Cache cache.Config

	// Backend selects the payload store. Empty means BackendMemory.
	Backend BackendKind

	// Redis backs the Redis payload store and the Redis invalidation
	// strategy. Required when either is selected.
	Redis *redis.Client

	// Memcached backs the memcached payload store. Required when it is
	// selected.
	Memcached *memcache.Client

	// Logger receives degraded-operation warnings from every component.
	// Nil keeps them silent.
	Logger logging.Logger

	// BackendOptions tune the constructed payload store (default TTL,
	// query timeout, memory sweep interval).
	BackendOptions []backend.Option
}

// Container holds the assembled singletons: one payload store, one
// invalidation strategy, and one engine, shared by every repository it
// builds. Build one container at startup and keep it for the process
// lifetime.
type Container struct {
	config Config
	store  backend.Backend
	engine *cache.Engine
	close  func() error
}

// NewContainer validates config, builds the selected backend and
// invalidation strategy, and assembles the engine. Configuration problems
// surface here as *cache.ConfigError, before any traffic flows.
func NewContainer(config Config) (*Container, error) {
	if config.Cache == (cache.Config{}) {
		config.Cache = cache.DefaultConfig()
	}
	if err := config.Cache.Validate(); err != nil {
		return nil, err
	}

	store, closeStore, err := buildBackend(config)
	if err != nil {
		return nil, err
	}

	inv, err := buildInvalidator(config, store)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	engine, err := cache.NewEngine(config.Cache, store, inv, cache.WithLogger(config.Logger))
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	return &Container{
		config: config,
		store:  store,
		engine: engine,
		close:  closeStore,
	}, nil
}

// NewContainerWithDefaults builds a container over the in-process backend
// with the default configuration. Convenient for tests and single-process
// deployments.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(Config{})
}

func buildBackend(config Config) (backend.Backend, func() error, error) {
	switch config.Backend {
	case "", BackendMemory:
		mem := backend.NewMemory(context.Background(), config.BackendOptions...)
		return mem, mem.Close, nil
	case BackendRedis:
		if config.Redis == nil {
			return nil, nil, &cache.ConfigError{Field: "Redis", Message: "redis backend requires a client"}
		}
		return backend.NewRedis(config.Redis, config.BackendOptions...), nil, nil
	case BackendMemcached:
		if config.Memcached == nil {
			return nil, nil, &cache.ConfigError{Field: "Memcached", Message: "memcached backend requires a client"}
		}
		return backend.NewMemcached(config.Memcached, config.BackendOptions...), nil, nil
	default:
		return nil, nil, &cache.ConfigError{Field: "Backend", Message: "unknown backend " + string(config.Backend)}
	}
}

func buildInvalidator(config Config, store backend.Backend) (*invalidation.Invalidator, error) {
	maker := cachekey.NewMaker(config.Cache.Prefix)
	opts := []invalidation.Option{
		invalidation.WithFetchByID(config.Cache.FetchByID),
		invalidation.WithWholeModel(config.Cache.InvalidateOnCreate == cache.CreateModeWholeModel),
	}
	if config.Logger != nil {
		opts = append(opts, invalidation.WithLogger(config.Logger))
	}

	switch config.Cache.Strategy {
	case "", cache.StrategyGeneric:
		return invalidation.New(store, maker, opts...), nil
	case cache.StrategyRedis:
		if config.Redis == nil {
			return nil, &cache.ConfigError{Field: "Redis", Message: "redis invalidation strategy requires a client"}
		}
		return invalidation.NewRedis(config.Redis, store, maker, opts...), nil
	case cache.StrategyNull:
		return invalidation.NewNull(store, maker, opts...), nil
	default:
		// Unreachable: Validate caught unknown strategies already.
		return nil, &cache.ConfigError{Field: "Strategy", Message: "unknown strategy " + string(config.Cache.Strategy)}
	}
}

// Engine returns the shared cache engine, for use outside the repository
// decorator (query helpers, memoization).
func (c *Container) Engine() *cache.Engine {
	return c.engine
}

// Store returns the payload backend, for advanced use and tests.
func (c *Container) Store() backend.Backend {
	return c.store
}

// Config returns a copy of the configuration the container was built with.
func (c *Container) Config() Config {
	return c.config
}

// Close releases resources owned by the container, which today is the
// in-process backend's sweeper. Clients passed in through Config belong to
// the caller and are left open.
func (c *Container) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// NewCachedRepository wraps base in the caching decorator wired to the
// container's engine.
//
// Since Go methods cannot have type parameters, this is a package-level
// function rather than a Container method.
// Example: NewCachedRepository(container, baseUserRepository)
func NewCachedRepository[T cache.Cacheable](container *Container, base repository.Repository[T], opts ...repositorycache.Option[T]) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.engine, opts...)
}
