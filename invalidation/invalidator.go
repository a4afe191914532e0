// Package invalidation tracks which cache entries depend on which rows and
// deletes every dependent entry when rows change.
//
// Bookkeeping lives in flush lists: one set per row (or per entity type)
// holding the keys that must die when that subject changes. Registration
// writes the lists when a query result is cached; invalidation walks them
// transitively and deletes both the discovered payloads and the lists
// themselves. The three strategies (generic, Redis-native, null) share one
// walker and differ only in how the lists are stored.
package invalidation

import (
	"context"
	"fmt"
	"sort"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cachekey"
	"github.com/goliatone/go-query-cache/logging"
)

// Invalidator finds and deletes stale cache entries for changed rows, and
// registers the dependency edges of freshly cached query results.
type Invalidator struct {
	store backend.Backend
	lists FlushListStore
	maker cachekey.Maker
	log   logging.Logger

	fetchByID  bool
	wholeModel bool
}

// Option customizes an Invalidator at construction time.
type Option func(*Invalidator)

// WithLogger installs a logger for degraded operations.
func WithLogger(log logging.Logger) Option {
	return func(inv *Invalidator) {
		if log != nil {
			inv.log = log
		}
	}
}

// WithFetchByID also registers per-row byid payload keys in flush lists, so
// row writes drop the entries maintained by the fetch-by-id strategy.
func WithFetchByID(enabled bool) Option {
	return func(inv *Invalidator) {
		inv.fetchByID = enabled
	}
}

// WithWholeModel links every cached query to its entity type's sentinel
// flush key and seeds that key into the search when a new row is created.
func WithWholeModel(enabled bool) Option {
	return func(inv *Invalidator) {
		inv.wholeModel = enabled
	}
}

func newInvalidator(store backend.Backend, maker cachekey.Maker, opts []Option) *Invalidator {
	inv := &Invalidator{
		store: store,
		maker: maker,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// New returns the generic strategy: flush lists stored through the same
// backend as payloads, merged with a read-modify-write union.
func New(store backend.Backend, maker cachekey.Maker, opts ...Option) *Invalidator {
	inv := newInvalidator(store, maker, opts)
	inv.lists = &genericLists{store: store}
	return inv
}

// NewNull returns the no-op registration strategy: flush lists are never
// written, so cached results are only ever dropped by TTL or by the direct
// row keys of an explicit invalidation.
func NewNull(store backend.Backend, maker cachekey.Maker, opts ...Option) *Invalidator {
	inv := newInvalidator(store, maker, opts)
	inv.lists = nullLists{&genericLists{store: store}}
	return inv
}

// CacheObjects registers the dependency edges for a freshly cached query
// result. Every result row's flush list gains the query's flush key, the
// query's own flush list gains the query key, and each row's related rows
// gain an edge back to the row, so a write anywhere in that graph reaches
// the query. entity names the queried type; it matters even for empty
// results when whole-model linkage is on.
func (inv *Invalidator) CacheObjects(ctx context.Context, entity string, objs []cachekey.Entity, queryKey, queryFlush string) error {
	lists := make(map[string]map[string]struct{})
	add := func(list, member string) {
		if lists[list] == nil {
			lists[list] = make(map[string]struct{})
		}
		lists[list][member] = struct{}{}
	}

	add(queryFlush, queryKey)
	for _, obj := range objs {
		own := obj.CacheRef()
		objFlush := inv.maker.FlushKeyForRef(own)
		if objFlush != queryFlush {
			add(objFlush, queryFlush)
		}
		if inv.fetchByID {
			add(objFlush, inv.maker.ByIDKey(own))
		}
		for _, rel := range obj.RelatedRefs() {
			relFlush := inv.maker.FlushKeyForRef(rel)
			if relFlush != objFlush && relFlush != queryFlush {
				add(relFlush, objFlush)
			}
		}
	}
	if inv.wholeModel {
		add(inv.maker.ModelFlushKey(entity), queryFlush)
	}

	return inv.lists.Union(ctx, flatten(lists))
}

// AddToFlushLists merges members into the named flush lists. Used by the
// memoization helpers to hang function keys off an object's list.
func (inv *Invalidator) AddToFlushLists(ctx context.Context, lists map[string][]string) error {
	if len(lists) == 0 {
		return nil
	}
	return inv.lists.Union(ctx, lists)
}

// InvalidateObjects finds and deletes every cache entry that depends on the
// given rows: each row's own payload keys and its related rows' keys are
// dropped directly, and the flush-list graph is expanded transitively from
// the rows' flush keys. newInstance marks rows that were just created, which
// additionally seeds the whole-model sentinel when that mode is on.
func (inv *Invalidator) InvalidateObjects(ctx context.Context, objs []cachekey.Entity, newInstance bool) error {
	if len(objs) == 0 {
		return nil
	}
	objKeys := make(map[string]struct{})
	flushKeys := make(map[string]struct{})
	for _, obj := range objs {
		refs := append([]cachekey.Ref{obj.CacheRef()}, obj.RelatedRefs()...)
		for _, ref := range refs {
			objKeys[inv.maker.ObjectKey(ref)] = struct{}{}
			flushKeys[inv.maker.FlushKeyForRef(ref)] = struct{}{}
		}
		if newInstance && inv.wholeModel {
			flushKeys[inv.maker.ModelFlushKey(obj.CacheRef().Entity)] = struct{}{}
		}
	}
	return inv.invalidate(ctx, objKeys, flushKeys)
}

// InvalidateModel drops everything reachable from an entity type's sentinel
// flush key. Only useful when whole-model linkage is on; otherwise the
// sentinel list is empty and this is a no-op.
func (inv *Invalidator) InvalidateModel(ctx context.Context, entity string) error {
	flushKeys := map[string]struct{}{
		inv.maker.ModelFlushKey(entity): {},
	}
	return inv.invalidate(ctx, map[string]struct{}{}, flushKeys)
}

// Clear drops every payload and every flush list. An operational reset, not
// part of per-request invalidation.
func (inv *Invalidator) Clear(ctx context.Context) error {
	if err := inv.lists.Clear(ctx); err != nil {
		return fmt.Errorf("invalidation: clear flush lists: %w", err)
	}
	if err := inv.store.Clear(ctx); err != nil {
		return fmt.Errorf("invalidation: clear payloads: %w", err)
	}
	return nil
}

// invalidate expands the flush-list graph from the seed sets and deletes
// every discovered payload key and flush list.
func (inv *Invalidator) invalidate(ctx context.Context, objKeys, flushKeys map[string]struct{}) error {
	if err := inv.expand(ctx, objKeys, flushKeys); err != nil {
		return err
	}
	if len(objKeys) > 0 {
		if err := inv.store.DeleteMany(ctx, sorted(objKeys)); err != nil {
			return fmt.Errorf("invalidation: delete payloads: %w", err)
		}
	}
	if len(flushKeys) > 0 {
		if err := inv.lists.DeleteMany(ctx, sorted(flushKeys)); err != nil {
			return fmt.Errorf("invalidation: delete flush lists: %w", err)
		}
	}
	return nil
}

// expand grows objKeys and flushKeys to the fixed point of the flush-list
// graph. Members that are themselves flush keys are expanded in the next
// round unless already visited; everything else is a payload key. The
// visited set only grows and is bounded by the keys in the store, so the
// walk terminates even on cyclic dependency graphs.
func (inv *Invalidator) expand(ctx context.Context, objKeys, flushKeys map[string]struct{}) error {
	searchKeys := sorted(flushKeys)
	for len(searchKeys) > 0 {
		found, err := inv.lists.ReadMany(ctx, searchKeys)
		if err != nil {
			return fmt.Errorf("invalidation: read flush lists: %w", err)
		}
		var next []string
		for _, members := range found {
			for _, member := range members {
				if !inv.maker.IsFlushKey(member) {
					objKeys[member] = struct{}{}
					continue
				}
				if _, seen := flushKeys[member]; !seen {
					flushKeys[member] = struct{}{}
					next = append(next, member)
				}
			}
		}
		sort.Strings(next)
		searchKeys = next
	}
	return nil
}

func flatten(lists map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(lists))
	for key, members := range lists {
		out[key] = sorted(members)
	}
	return out
}

func sorted(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
