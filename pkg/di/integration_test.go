package di

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/repositorycache"
)

// memRepository is a stateful in-memory repository: rows live in a slice,
// writes mutate it, and every base call is counted so tests can observe
// what the cache absorbed end to end.
type memRepository[T cache.Cacheable] struct {
	mu    sync.Mutex
	rows  []T
	calls map[string]int
}

func newMemRepository[T cache.Cacheable](rows ...T) *memRepository[T] {
	return &memRepository[T]{rows: rows, calls: make(map[string]int)}
}

func (m *memRepository[T]) track(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

func (m *memRepository[T]) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *memRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.track("GetByID")
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.CacheRef().PK == id {
			return row, nil
		}
	}
	var zero T
	return zero, sql.ErrNoRows
}

func (m *memRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	m.track("GetByIdentifier")
	return m.GetByID(ctx, identifier)
}

func (m *memRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	m.track("Get")
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		var zero T
		return zero, sql.ErrNoRows
	}
	return m.rows[0], nil
}

func (m *memRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.track("List")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]T(nil), m.rows...)
	return out, len(out), nil
}

func (m *memRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.track("Count")
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.track("Create")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, record)
	return record, nil
}

func (m *memRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.track("Update")
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := record.CacheRef().PK
	for i, row := range m.rows {
		if row.CacheRef().PK == pk {
			m.rows[i] = record
			break
		}
	}
	return record, nil
}

func (m *memRepository[T]) Delete(ctx context.Context, record T) error {
	m.track("Delete")
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := record.CacheRef().PK
	for i, row := range m.rows {
		if row.CacheRef().PK == pk {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetTx not used in integration tests")
}

func (m *memRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetByIDTx not used in integration tests")
}

func (m *memRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetByIdentifierTx not used in integration tests")
}

func (m *memRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	panic("ListTx not used in integration tests")
}

func (m *memRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	panic("CountTx not used in integration tests")
}

func (m *memRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	panic("CreateTx not used in integration tests")
}

func (m *memRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	panic("CreateMany not used in integration tests")
}

func (m *memRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	panic("CreateManyTx not used in integration tests")
}

func (m *memRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	panic("GetOrCreate not used in integration tests")
}

func (m *memRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	panic("GetOrCreateTx not used in integration tests")
}

func (m *memRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("UpdateTx not used in integration tests")
}

func (m *memRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpdateMany not used in integration tests")
}

func (m *memRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpdateManyTx not used in integration tests")
}

func (m *memRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("Upsert not used in integration tests")
}

func (m *memRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("UpsertTx not used in integration tests")
}

func (m *memRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpsertMany not used in integration tests")
}

func (m *memRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpsertManyTx not used in integration tests")
}

func (m *memRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	panic("DeleteTx not used in integration tests")
}

func (m *memRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	panic("DeleteMany not used in integration tests")
}

func (m *memRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	panic("DeleteManyTx not used in integration tests")
}

func (m *memRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	panic("DeleteWhere not used in integration tests")
}

func (m *memRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	panic("DeleteWhereTx not used in integration tests")
}

func (m *memRepository[T]) ForceDelete(ctx context.Context, record T) error {
	panic("ForceDelete not used in integration tests")
}

func (m *memRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	panic("ForceDeleteTx not used in integration tests")
}

func (m *memRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	m.track("Raw")
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.rows...), nil
}

func (m *memRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	panic("RawTx not used in integration tests")
}

func (m *memRepository[T]) Handlers() repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{}
}

var _ repository.Repository[*testsupport.User] = (*memRepository[*testsupport.User])(nil)

func seedUsers() []*testsupport.User {
	return []*testsupport.User{
		{ID: 1, Name: "clouseroo", DB: "default"},
		{ID: 2, Name: "jbalogh", DB: "default"},
	}
}

func seedAddons() []*testsupport.Addon {
	return []*testsupport.Addon{
		{ID: 10, Val: 42, Author1ID: 1, Author2ID: 2, DB: "default"},
	}
}

func TestContainerEndToEnd(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults: %v", err)
	}
	t.Cleanup(func() { container.Close() })

	users := newMemRepository(seedUsers()...)
	addons := newMemRepository(seedAddons()...)
	cachedUsers := NewCachedRepository(container, users,
		repositorycache.WithEntityName[*testsupport.User](testsupport.UserEntity))
	cachedAddons := NewCachedRepository(container, addons,
		repositorycache.WithEntityName[*testsupport.Addon](testsupport.AddonEntity))

	for i := 0; i < 2; i++ {
		rows, total, err := cachedAddons.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(rows) != 1 || total != 1 || rows[0].Val != 42 {
			t.Fatalf("List = %d rows, total %d; want the seeded addon", len(rows), total)
		}
	}
	if got := addons.callCount("List"); got != 1 {
		t.Errorf("base List calls = %d, want 1", got)
	}

	for i := 0; i < 2; i++ {
		addon, err := cachedAddons.GetByID(ctx, "10")
		if err != nil || addon.ID != 10 {
			t.Fatalf("GetByID = %v, %v; want addon 10", addon, err)
		}
	}
	if got := addons.callCount("GetByID"); got != 1 {
		t.Errorf("base GetByID calls = %d, want 1", got)
	}

	// Renaming an author invalidates the addon queries through the
	// foreign-key edges, without the addon rows ever being written.
	if _, err := cachedUsers.Update(ctx, &testsupport.User{ID: 2, Name: "renamed", DB: "default"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := cachedAddons.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := addons.callCount("List"); got != 2 {
		t.Errorf("base List calls = %d, want 2 after the author write", got)
	}
	if _, err := cachedAddons.GetByID(ctx, "10"); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got := addons.callCount("GetByID"); got != 2 {
		t.Errorf("base GetByID calls = %d, want 2 after the author write", got)
	}
}

func TestContainerRedisEndToEnd(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Strategy = cache.StrategyRedis
	container, err := NewContainer(Config{
		Cache:   cacheCfg,
		Backend: BackendRedis,
		Redis:   client,
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() { container.Close() })

	users := newMemRepository(seedUsers()...)
	cached := NewCachedRepository(container, users,
		repositorycache.WithEntityName[*testsupport.User](testsupport.UserEntity))

	for i := 0; i < 2; i++ {
		user, err := cached.GetByID(ctx, "1")
		if err != nil || user.Name != "clouseroo" {
			t.Fatalf("GetByID = %v, %v; want clouseroo", user, err)
		}
	}
	if got := users.callCount("GetByID"); got != 1 {
		t.Fatalf("base GetByID calls = %d, want 1", got)
	}

	if _, err := cached.Update(ctx, &testsupport.User{ID: 1, Name: "renamed", DB: "default"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	user, err := cached.GetByID(ctx, "1")
	if err != nil || user.Name != "renamed" {
		t.Fatalf("GetByID = %v, %v; want the renamed row", user, err)
	}
	if got := users.callCount("GetByID"); got != 2 {
		t.Errorf("base GetByID calls = %d, want 2 after the write", got)
	}
}

func TestContainerNullStrategyKeepsReadsCached(t *testing.T) {
	ctx := context.Background()
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Strategy = cache.StrategyNull
	container, err := NewContainer(Config{Cache: cacheCfg})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() { container.Close() })

	users := newMemRepository(seedUsers()...)
	cached := NewCachedRepository(container, users,
		repositorycache.WithEntityName[*testsupport.User](testsupport.UserEntity))

	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := cached.Update(ctx, &testsupport.User{ID: 1, Name: "renamed", DB: "default"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := users.callCount("List"); got != 1 {
		t.Errorf("base List calls = %d, want 1: the null strategy records no flush lists, so writes cannot find the entry", got)
	}
}

func TestContainerCreateModes(t *testing.T) {
	tests := []struct {
		name      string
		mode      cache.CreateMode
		wantLists int
	}{
		{"create reaches nothing without edges", cache.CreateModeNone, 1},
		{"whole-model create drops entity queries", cache.CreateModeWholeModel, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cacheCfg := cache.DefaultConfig()
			cacheCfg.InvalidateOnCreate = tt.mode
			container, err := NewContainer(Config{Cache: cacheCfg})
			if err != nil {
				t.Fatalf("NewContainer: %v", err)
			}
			t.Cleanup(func() { container.Close() })

			users := newMemRepository(seedUsers()...)
			cached := NewCachedRepository(container, users,
				repositorycache.WithEntityName[*testsupport.User](testsupport.UserEntity))

			if _, _, err := cached.List(ctx); err != nil {
				t.Fatalf("List: %v", err)
			}
			if _, err := cached.Create(ctx, &testsupport.User{ID: 3, Name: "fligtar", DB: "default"}); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, _, err := cached.List(ctx); err != nil {
				t.Fatalf("List: %v", err)
			}
			if got := users.callCount("List"); got != tt.wantLists {
				t.Errorf("base List calls = %d, want %d", got, tt.wantLists)
			}
		})
	}
}

func TestContainerEngineMemoization(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults: %v", err)
	}
	t.Cleanup(func() { container.Close() })

	runs := 0
	fn := func(ctx context.Context) (int, error) {
		runs++
		return 41, nil
	}
	for i := 0; i < 2; i++ {
		got, err := cache.Cached(ctx, container.Engine(), "answer", time.Minute, fn)
		if err != nil || got != 41 {
			t.Fatalf("Cached = %d, %v; want 41, nil", got, err)
		}
	}
	if runs != 1 {
		t.Errorf("computation runs = %d, want 1", runs)
	}
}
