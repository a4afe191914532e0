package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// memoryEntry is one stored value. A zero expires time means the entry
// never expires.
type memoryEntry struct {
	data    []byte
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Memory is the in-process adapter: a sharded concurrent map plus a
// background sweep that evicts expired entries. Shared state is only
// process-wide, so it is suitable for tests and single-process deployments.
type Memory struct {
	entries *xsync.MapOf[string, memoryEntry]
	cfg     config

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

// NewMemory builds the in-process adapter. The context bounds the
// background sweep goroutine; Close also stops it.
func NewMemory(ctx context.Context, opts ...Option) *Memory {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &Memory{
		entries: xsync.NewMapOf[string, memoryEntry](),
		cfg:     cfg,
		cancel:  cancel,
	}
	if cfg.sweep > 0 {
		m.wg.Add(1)
		go m.run(ctx, cfg.sweep)
	}
	return m
}

func (m *Memory) run(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Memory) sweep(now time.Time) {
	m.entries.Range(func(key string, entry memoryEntry) bool {
		if entry.expired(now) {
			m.entries.Delete(key)
		}
		return true
	})
}

func (m *Memory) expiresAt(ttl time.Duration) time.Time {
	ttl = m.cfg.resolveTTL(ttl)
	if ttl < 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (m *Memory) Get(_ context.Context, key string) (any, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}
	entry, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		m.entries.Delete(key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

func (m *Memory) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	found := make(map[string]any, len(keys))
	for _, key := range keys {
		value, ok, err := m.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			found[key] = value
		}
	}
	return found, nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	data, err := Encode(value)
	if err != nil {
		return err
	}
	m.entries.Store(key, memoryEntry{data: data, expires: m.expiresAt(ttl)})
	return nil
}

func (m *Memory) SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	for key, value := range items {
		if err := m.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Add(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	data, err := Encode(value)
	if err != nil {
		return false, err
	}
	now := time.Now()
	added := false
	m.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if loaded && !old.expired(now) {
			return old, false
		}
		added = true
		return memoryEntry{data: data, expires: m.expiresAt(ttl)}, false
	})
	return added, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.entries.Delete(key)
	return nil
}

func (m *Memory) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := m.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.entries.Clear()
	return nil
}

// Len reports the number of live entries, expired ones included until the
// next sweep. Used by tests.
func (m *Memory) Len() int {
	return m.entries.Size()
}

// Close stops the sweep goroutine. Further operations return ErrClosed.
func (m *Memory) Close() error {
	m.once.Do(func() {
		m.closed.Store(true)
		m.cancel()
		m.wg.Wait()
	})
	return nil
}

var _ Backend = (*Memory)(nil)
