package cache

import "github.com/goliatone/go-query-cache/cachekey"

// Cacheable is implemented by row types the engine can cache: the identity
// surface of cachekey.Entity plus an observable flag reporting whether an
// instance was served from the cache or freshly computed. The flag exists
// for testability and debug surfacing; nothing in the engine reads it back.
type Cacheable interface {
	cachekey.Entity
	SetFromCache(bool)
	FromCache() bool
}
