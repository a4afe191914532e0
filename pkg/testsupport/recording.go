package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/backend"
)

// RecordingBackend wraps a Backend and counts calls per operation, so tests
// can assert how much storage traffic an operation produced, or that it
// produced none at all.
type RecordingBackend struct {
	backend.Backend

	mu    sync.Mutex
	calls map[string]int
}

// NewRecordingBackend wraps inner with call counting.
func NewRecordingBackend(inner backend.Backend) *RecordingBackend {
	return &RecordingBackend{Backend: inner, calls: make(map[string]int)}
}

func (r *RecordingBackend) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
}

// Calls returns the recorded call count for one operation name
// ("get", "getMany", "set", "setMany", "add", "delete", "deleteMany",
// "clear").
func (r *RecordingBackend) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// TotalCalls returns the recorded call count across all operations.
func (r *RecordingBackend) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

// Reset clears the recorded counts.
func (r *RecordingBackend) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]int)
}

func (r *RecordingBackend) Get(ctx context.Context, key string) (any, bool, error) {
	r.record("get")
	return r.Backend.Get(ctx, key)
}

func (r *RecordingBackend) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	r.record("getMany")
	return r.Backend.GetMany(ctx, keys)
}

func (r *RecordingBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	r.record("set")
	return r.Backend.Set(ctx, key, value, ttl)
}

func (r *RecordingBackend) SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	r.record("setMany")
	return r.Backend.SetMany(ctx, items, ttl)
}

func (r *RecordingBackend) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	r.record("add")
	return r.Backend.Add(ctx, key, value, ttl)
}

func (r *RecordingBackend) Delete(ctx context.Context, key string) error {
	r.record("delete")
	return r.Backend.Delete(ctx, key)
}

func (r *RecordingBackend) DeleteMany(ctx context.Context, keys []string) error {
	r.record("deleteMany")
	return r.Backend.DeleteMany(ctx, keys)
}

func (r *RecordingBackend) Clear(ctx context.Context) error {
	r.record("clear")
	return r.Backend.Clear(ctx)
}

var _ backend.Backend = (*RecordingBackend)(nil)
