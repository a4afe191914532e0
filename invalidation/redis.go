package invalidation

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-query-cache/backend"
	"github.com/goliatone/go-query-cache/cachekey"
	"github.com/goliatone/go-query-cache/logging"
)

// NewRedis returns the Redis-native strategy: flush lists are Redis sets
// mutated with SADD, which closes the generic strategy's lost-update race.
// Payloads still live in store, which may be any backend.
//
// Every Redis operation here fails open: an unreachable server is logged
// and treated as an empty list or a skipped write, never surfaced to the
// caller, since a slightly stale cache is preferred over failing the write
// that triggered invalidation.
func NewRedis(client *redis.Client, store backend.Backend, maker cachekey.Maker, opts ...Option) *Invalidator {
	inv := newInvalidator(store, maker, opts)
	inv.lists = &redisLists{client: client, log: inv.log}
	return inv
}

type redisLists struct {
	client *redis.Client
	log    logging.Logger
}

// safeKey rejects keys the wire protocol cannot carry. Derived keys are
// digest-based and always clean; this guards raw keys handed in by callers.
func (r *redisLists) safeKey(key string) string {
	if strings.ContainsAny(key, " \n") {
		r.log.Warn("dropping protocol-unsafe flush key", "key", key)
		return ""
	}
	return key
}

func (r *redisLists) Union(ctx context.Context, lists map[string][]string) error {
	pipe := r.client.Pipeline()
	queued := false
	for key, members := range lists {
		key = r.safeKey(key)
		if key == "" || len(members) == 0 {
			continue
		}
		args := make([]interface{}, len(members))
		for i, member := range members {
			args[i] = member
		}
		pipe.SAdd(ctx, key, args...)
		queued = true
	}
	if !queued {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("flush list union failed", "error", err)
	}
	return nil
}

func (r *redisLists) ReadMany(ctx context.Context, keys []string) (map[string][]string, error) {
	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringSliceCmd, len(keys))
	for _, key := range keys {
		key = r.safeKey(key)
		if key == "" {
			continue
		}
		cmds[key] = pipe.SMembers(ctx, key)
	}
	if len(cmds) == 0 {
		return map[string][]string{}, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("flush list read failed", "error", err)
		return map[string][]string{}, nil
	}
	found := make(map[string][]string, len(cmds))
	for key, cmd := range cmds {
		members, err := cmd.Result()
		if err != nil || len(members) == 0 {
			continue
		}
		found[key] = members
	}
	return found, nil
}

func (r *redisLists) DeleteMany(ctx context.Context, keys []string) error {
	clean := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = r.safeKey(key); key != "" {
			clean = append(clean, key)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, clean...).Err(); err != nil {
		r.log.Error("flush list delete failed", "error", err)
	}
	return nil
}

func (r *redisLists) Clear(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		r.log.Error("flush list clear failed", "error", err)
	}
	return nil
}

var _ FlushListStore = (*redisLists)(nil)
