// Package testsupport provides the shared fixtures used by the test
// suites: a pair of cacheable entities with a foreign-key relationship, a
// backend wrapper that records storage traffic, and fixture-file helpers.
package testsupport

import (
	"strconv"

	"github.com/goliatone/go-query-cache/cachekey"
)

// Entity type tags for the fixture entities.
const (
	UserEntity  = "testapp.user"
	AddonEntity = "testapp.addon"
)

// User is a cacheable row with no outgoing references.
type User struct {
	ID   int64
	Name string
	DB   string

	fromCache bool
}

func (u *User) CacheRef() cachekey.Ref {
	return cachekey.Ref{Entity: UserEntity, PK: strconv.FormatInt(u.ID, 10), DB: u.DB}
}

func (u *User) RelatedRefs() []cachekey.Ref { return nil }

func (u *User) SetFromCache(v bool) { u.fromCache = v }
func (u *User) FromCache() bool     { return u.fromCache }

// Addon references two users, exercising multi-edge foreign-key cascades.
type Addon struct {
	ID        int64
	Val       int
	Author1ID int64
	Author2ID int64
	DB        string

	fromCache bool
}

func (a *Addon) CacheRef() cachekey.Ref {
	return cachekey.Ref{Entity: AddonEntity, PK: strconv.FormatInt(a.ID, 10), DB: a.DB}
}

// RelatedRefs reports the authors. A zero author id is an unset reference
// and contributes no edge.
func (a *Addon) RelatedRefs() []cachekey.Ref {
	refs := make([]cachekey.Ref, 0, 2)
	if a.Author1ID != 0 {
		refs = append(refs, cachekey.Ref{Entity: UserEntity, PK: strconv.FormatInt(a.Author1ID, 10), DB: a.DB})
	}
	if a.Author2ID != 0 {
		refs = append(refs, cachekey.Ref{Entity: UserEntity, PK: strconv.FormatInt(a.Author2ID, 10), DB: a.DB})
	}
	return refs
}

func (a *Addon) SetFromCache(v bool) { a.fromCache = v }
func (a *Addon) FromCache() bool     { return a.fromCache }

var (
	_ cachekey.Entity = (*User)(nil)
	_ cachekey.Entity = (*Addon)(nil)
)
