package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis adapts a go-redis client to the Backend contract. The adapter does
// not own the client; Close leaves it open for the caller.
type Redis struct {
	client *redis.Client
	cfg    config
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client, opts ...Option) *Redis {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Redis{client: client, cfg: cfg}
}

// redisTTL maps the TTL sentinels to Redis expirations, where zero means
// "no expiry" natively.
func (r *Redis) redisTTL(ttl time.Duration) time.Duration {
	ttl = r.cfg.resolveTTL(ttl)
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (r *Redis) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.queryTimeout)
}

func (r *Redis) Get(ctx context.Context, key string) (any, bool, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("backend: redis get: %w", err)
	}
	return data, true, nil
}

func (r *Redis) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("backend: redis mget: %w", err)
	}
	found := make(map[string]any, len(keys))
	for i, value := range values {
		if value == nil {
			continue
		}
		// go-redis returns MGET values as strings.
		if s, ok := value.(string); ok {
			found[keys[i]] = []byte(s)
		}
	}
	return found, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := Encode(value)
	if err != nil {
		return err
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.client.Set(ctx, key, data, r.redisTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("backend: redis set: %w", err)
	}
	return nil
}

func (r *Redis) SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	encoded := make(map[string][]byte, len(items))
	for key, value := range items {
		data, err := Encode(value)
		if err != nil {
			return err
		}
		encoded[key] = data
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	pipe := r.client.Pipeline()
	expire := r.redisTTL(ttl)
	for key, data := range encoded {
		pipe.Set(ctx, key, data, expire)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backend: redis pipeline set: %w", err)
	}
	return nil
}

func (r *Redis) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := Encode(value)
	if err != nil {
		return false, err
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	added, err := r.client.SetNX(ctx, key, data, r.redisTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("backend: redis setnx: %w", err)
	}
	return added, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.DeleteMany(ctx, []string{key})
}

func (r *Redis) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("backend: redis del: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("backend: redis flushdb: %w", err)
	}
	return nil
}

// Close releases nothing: the client is owned by the caller.
func (r *Redis) Close() error { return nil }

var _ Backend = (*Redis)(nil)
