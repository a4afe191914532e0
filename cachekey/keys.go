// Package cachekey derives the namespaced, length-bounded keys under which
// query results, rows, and bookkeeping flush lists are stored.
//
// Every derived key has the shape <prefix>[:<namespace>]:<digest>, where the
// digest is the first 128 bits of a SHA-256 over the raw key material.
// Material is hashed unconditionally: bound SQL text and arbitrary primary
// keys may contain whitespace and easily exceed memcached's 250-byte key
// limit, and a fixed-width digest sidesteps both.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Namespace segments placed between prefix and digest.
const (
	flushSegment = "flush"
	byIDSegment  = "byid"
)

// Reserved identity for whole-entity-type flush keys. The dummy primary key
// and shard tag can never resolve to a real row.
const (
	allPKs = "all-pks"
	allDBs = "all-dbs"
)

// Ref identifies a single row: its entity type tag (e.g. "addons.addon"),
// primary key, and the database shard it belongs to. DB may be empty when
// the caller does not distinguish shards.
type Ref struct {
	Entity string
	PK     string
	DB     string
}

// material renders the row identity as raw key material, e.g.
// "o:addons.addon:2" or "o:addons.addon:2:default".
func (r Ref) material() string {
	parts := []string{"o", r.Entity, r.PK}
	if r.DB != "" {
		parts = append(parts, r.DB)
	}
	return strings.Join(parts, ":")
}

// Entity is implemented by row types that participate in caching. CacheRef
// reports the row's own identity. RelatedRefs reports the identity of every
// row it references by foreign key, which is what lets a write to a related
// row invalidate cached queries over this one.
type Entity interface {
	CacheRef() Ref
	RelatedRefs() []Ref
}

// Maker derives cache keys under a fixed namespace prefix.
type Maker struct {
	prefix string
}

// NewMaker returns a Maker deriving all keys under prefix.
func NewMaker(prefix string) Maker {
	return Maker{prefix: prefix}
}

// Prefix returns the namespace prefix keys are derived under.
func (m Maker) Prefix() string { return m.prefix }

// digest collapses arbitrary key material into the first 128 bits of a
// SHA-256, hex encoded.
func digest(material string) string {
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:16])
}

// Key derives an ordinary cache key from raw material.
func (m Maker) Key(material string) string {
	return m.prefix + ":" + digest(material)
}

// KeyWithLocale folds a locale tag into the derived key so callers keep one
// entry per language. An empty locale is equivalent to Key.
func (m Maker) KeyWithLocale(material, locale string) string {
	if locale == "" {
		return m.Key(material)
	}
	return m.Key(material + ":" + locale)
}

// QueryKey derives the cache key for a query's result set. The bound query
// text is treated as opaque material, never parsed. The shard tag keeps
// replica and primary results apart so cached rows are never hydrated into
// the wrong database's identity space.
func (m Maker) QueryKey(queryText, db string) string {
	return m.Key("qs:" + queryText + "::db:" + db)
}

// ObjectKey derives the cache key for a single row.
func (m Maker) ObjectKey(ref Ref) string {
	return m.Key(ref.material())
}

// FlushKey derives the flush-list key for arbitrary key material. Flush
// lists live in their own namespace so bookkeeping never collides with a
// payload stored under the same logical identity.
func (m Maker) FlushKey(material string) string {
	return m.prefix + ":" + flushSegment + ":" + digest(material)
}

// FlushKeyForRef derives the flush-list key for a row. The shard tag is
// dropped first: a write on any shard must invalidate every shard's cached
// copies of the row.
func (m Maker) FlushKeyForRef(ref Ref) string {
	ref.DB = ""
	return m.FlushKey(ref.material())
}

// ByIDKey derives the per-row payload key used by the fetch-by-id strategy.
// Unlike flush keys it keeps the shard tag: the entry holds a row hydrated
// from one specific shard.
func (m Maker) ByIDKey(ref Ref) string {
	return m.prefix + ":" + byIDSegment + ":" + digest(ref.material())
}

// ModelFlushKey derives the whole-entity-type sentinel flush key for an
// entity type, built from a reserved identity no real row can produce.
func (m Maker) ModelFlushKey(entity string) string {
	return m.FlushKey(Ref{Entity: entity, PK: allPKs, DB: allDBs}.material())
}

// FunctionKey derives the key for a memoized computation. Memoized values
// are often rendered, locale-dependent text, so the locale tag is folded in
// whenever present.
func (m Maker) FunctionKey(material, locale string) string {
	return m.KeyWithLocale("f:"+material, locale)
}

// IsFlushKey reports whether key addresses a flush list. Invalidation uses
// this to partition discovered list members into further lists to expand
// versus payload keys to delete.
func (m Maker) IsFlushKey(key string) bool {
	return strings.HasPrefix(key, m.prefix+":"+flushSegment+":")
}
