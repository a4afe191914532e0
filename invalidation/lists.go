package invalidation

import (
	"context"
	"fmt"
	"sort"

	"github.com/goliatone/go-query-cache/backend"
)

// FlushListStore maintains the flush-key → member-set mapping. Union merges
// members into each named list, never overwriting other members. ReadMany
// omits absent lists from its result: a missing flush list means "nothing
// depends on this subject", never an error. Clear drops all bookkeeping.
type FlushListStore interface {
	Union(ctx context.Context, lists map[string][]string) error
	ReadMany(ctx context.Context, keys []string) (map[string][]string, error)
	DeleteMany(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
}

// genericLists stores flush lists as ordinary values in the payload
// backend. Lists never expire on their own; they are deleted by the
// invalidation sweep that consumes them.
type genericLists struct {
	store backend.Backend
}

func (g *genericLists) Union(ctx context.Context, lists map[string][]string) error {
	keys := make([]string, 0, len(lists))
	for key := range lists {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	existing, err := g.store.GetMany(ctx, keys)
	if err != nil {
		return fmt.Errorf("invalidation: read flush lists: %w", err)
	}

	merged := make(map[string]any, len(lists))
	for key, members := range lists {
		set := make(map[string]struct{}, len(members))
		if raw, ok := existing[key]; ok {
			current, err := backend.Decode[[]string](raw)
			if err != nil {
				return fmt.Errorf("invalidation: flush list %s: %w", key, err)
			}
			for _, member := range current {
				set[member] = struct{}{}
			}
		}
		for _, member := range members {
			set[member] = struct{}{}
		}
		merged[key] = sorted(set)
	}

	// Two callers that union the same list concurrently can both read
	// before either writes, and the second write then drops the first
	// caller's members. The Redis strategy closes this race with native
	// set union; here it is an accepted weakness.
	if err := g.store.SetMany(ctx, merged, backend.NoExpiration); err != nil {
		return fmt.Errorf("invalidation: write flush lists: %w", err)
	}
	return nil
}

func (g *genericLists) ReadMany(ctx context.Context, keys []string) (map[string][]string, error) {
	raw, err := g.store.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	found := make(map[string][]string, len(raw))
	for key, value := range raw {
		members, err := backend.Decode[[]string](value)
		if err != nil {
			return nil, fmt.Errorf("invalidation: flush list %s: %w", key, err)
		}
		if len(members) > 0 {
			found[key] = members
		}
	}
	return found, nil
}

func (g *genericLists) DeleteMany(ctx context.Context, keys []string) error {
	return g.store.DeleteMany(ctx, keys)
}

func (g *genericLists) Clear(ctx context.Context) error {
	return g.store.Clear(ctx)
}

var _ FlushListStore = (*genericLists)(nil)

// nullLists never records anything. Reads and deletes fall through to the
// generic behavior, which finds nothing because nothing was written.
type nullLists struct {
	*genericLists
}

func (nullLists) Union(context.Context, map[string][]string) error { return nil }

var _ FlushListStore = nullLists{}
