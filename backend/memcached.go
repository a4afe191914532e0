package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcached adapts a gomemcache client to the Backend contract.
//
// The memcached wire protocol encodes "never expire" as a literal zero
// timeout, so the NoExpiration sentinel maps to 0 on the wire. Because of
// that double meaning, a positive sub-second TTL must not round down to 0
// seconds, or a short-lived entry would silently become immortal; such TTLs
// are clamped up to one second instead.
type Memcached struct {
	client *memcache.Client
	cfg    config
}

// NewMemcached wraps an existing memcached client.
func NewMemcached(client *memcache.Client, opts ...Option) *Memcached {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Memcached{client: client, cfg: cfg}
}

// wireSeconds maps a TTL to the memcached expiration field.
func wireSeconds(ttl time.Duration) int32 {
	if ttl < 0 {
		return 0
	}
	secs := int32(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

func (m *Memcached) seconds(ttl time.Duration) int32 {
	return wireSeconds(m.cfg.resolveTTL(ttl))
}

func (m *Memcached) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("backend: memcached get: %w", err)
	}
	return item.Value, true, nil
}

func (m *Memcached) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	items, err := m.client.GetMulti(keys)
	if err != nil {
		return nil, fmt.Errorf("backend: memcached getmulti: %w", err)
	}
	found := make(map[string]any, len(items))
	for key, item := range items {
		found[key] = item.Value
	}
	return found, nil
}

func (m *Memcached) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(value)
	if err != nil {
		return err
	}
	item := &memcache.Item{Key: key, Value: data, Expiration: m.seconds(ttl)}
	if err := m.client.Set(item); err != nil {
		return fmt.Errorf("backend: memcached set: %w", err)
	}
	return nil
}

func (m *Memcached) SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	for key, value := range items {
		if err := m.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memcached) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := Encode(value)
	if err != nil {
		return false, err
	}
	item := &memcache.Item{Key: key, Value: data, Expiration: m.seconds(ttl)}
	err = m.client.Add(item)
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backend: memcached add: %w", err)
	}
	return true, nil
}

func (m *Memcached) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backend: memcached delete: %w", err)
	}
	return nil
}

func (m *Memcached) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := m.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memcached) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.client.FlushAll(); err != nil {
		return fmt.Errorf("backend: memcached flush: %w", err)
	}
	return nil
}

// Close releases nothing: gomemcache clients hold no persistent resources
// requiring shutdown.
func (m *Memcached) Close() error { return nil }

var _ Backend = (*Memcached)(nil)
