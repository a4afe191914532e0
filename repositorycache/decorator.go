package repositorycache

import (
	"context"
	"database/sql"
	"iter"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/logging"
)

// CachedRepository decorates a go-repository-bun repository with query
// caching and write-through invalidation. Reads are evaluated through the
// cache engine under query text built from the method name and its
// arguments; writes pass through to the base repository and then invalidate
// every cached query the written rows participate in.
type CachedRepository[T cache.Cacheable] struct {
	base   repository.Repository[T]
	engine *cache.Engine
	keys   KeySerializer
	log    logging.Logger

	entity string
	db     string
}

// Option customizes a CachedRepository at construction time.
type Option[T cache.Cacheable] func(*CachedRepository[T])

// WithKeySerializer replaces the default reflection-based serializer.
func WithKeySerializer[T cache.Cacheable](keys KeySerializer) Option[T] {
	return func(c *CachedRepository[T]) {
		if keys != nil {
			c.keys = keys
		}
	}
}

// WithEntityName overrides the entity tag derived from T's type name.
// It must match the tag the records report in their CacheRef.
func WithEntityName[T cache.Cacheable](entity string) Option[T] {
	return func(c *CachedRepository[T]) {
		if entity != "" {
			c.entity = entity
		}
	}
}

// WithDB tags every cached query with the given shard name so results read
// from different databases never share an entry.
func WithDB[T cache.Cacheable](db string) Option[T] {
	return func(c *CachedRepository[T]) {
		c.db = db
	}
}

// WithRepositoryLogger installs a logger for degraded invalidation. Write
// results are never withheld because invalidation failed.
func WithRepositoryLogger[T cache.Cacheable](log logging.Logger) Option[T] {
	return func(c *CachedRepository[T]) {
		if log != nil {
			c.log = log
		}
	}
}

// New wraps base with caching through the given engine.
func New[T cache.Cacheable](base repository.Repository[T], engine *cache.Engine, opts ...Option[T]) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:   base,
		engine: engine,
		keys:   NewDefaultKeySerializer(),
		log:    logging.Nop(),
		entity: entityName[T](),
		db:     "default",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entityName derives the default entity tag from T's type name, e.g.
// *UserProfile becomes "user_profile".
func entityName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return toSnake(t.Name())
}

// queryText renders the cache text for one repository operation. The entity
// tag leads so two repositories over different types never collide on the
// same method and arguments.
func (c *CachedRepository[T]) queryText(op string, args ...any) string {
	return c.keys.SerializeKey(c.entity+":"+op, args...)
}

func (c *CachedRepository[T]) query(text string, rows func(ctx context.Context) iter.Seq2[T, error]) cache.Query[T] {
	return cache.Query[T]{
		Entity: c.entity,
		DB:     c.db,
		Text:   func() (string, error) { return text, nil },
		Rows:   rows,
	}
}

// Get retrieves a single record matching the criteria, through the cache.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	q := c.query(c.queryText("get", criteria), oneRow(func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	}))
	return firstRow(ctx, c.engine, q)
}

// GetByID retrieves a record by primary key, through the cache.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	q := c.query(c.queryText("get_by_id", id, criteria), oneRow(func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	}))
	return firstRow(ctx, c.engine, q)
}

// GetByIdentifier retrieves a record by its natural identifier, through the
// cache.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	q := c.query(c.queryText("get_by_identifier", identifier, criteria), oneRow(func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}))
	return firstRow(ctx, c.engine, q)
}

// List retrieves the records matching the criteria plus the total count.
// Rows are cached under the query text; the total rides the count cache,
// which keys off the same text, so with counts uncached a row hit still
// issues one count query.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	var (
		produced bool
		total    int
	)
	q := c.query(c.queryText("list", criteria), func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			records, n, err := c.base.List(ctx, criteria...)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			produced, total = true, n
			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	})
	records, err := collectRows(ctx, c.engine, q)
	if err != nil {
		return nil, 0, err
	}
	n, err := cache.Count(ctx, c.engine, q, func(ctx context.Context) (int, error) {
		if produced {
			return total, nil
		}
		return c.base.Count(ctx, criteria...)
	})
	if err != nil {
		return nil, 0, err
	}
	return records, n, nil
}

// Count returns the number of records matching the criteria. It keys off
// the same query text as List, so a direct count and a list total share one
// cache entry and one flush list.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	q := c.query(c.queryText("list", criteria), nil)
	return cache.Count(ctx, c.engine, q, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// Raw executes a raw SQL query through the cache, keyed by the statement
// text and its bound arguments.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	q := c.query(c.queryText("raw", sql, args), func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			records, err := c.base.Raw(ctx, sql, args...)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	})
	return collectRows(ctx, c.engine, q)
}

// Create inserts a record and invalidates as a create, which in whole-model
// mode also drops every cached query over the entity type.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result)
	}
	return result, err
}

// CreateTx inserts a record within a transaction.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result)
	}
	return result, err
}

// CreateMany inserts multiple records.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result...)
	}
	return result, err
}

// CreateManyTx inserts multiple records within a transaction.
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result...)
	}
	return result, err
}

// GetOrCreate returns the matching record, creating it when absent. It may
// have inserted, so it invalidates as a create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateCreated(ctx, result)
	}
	return result, err
}

// GetOrCreateTx is GetOrCreate within a transaction.
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateCreated(ctx, result)
	}
	return result, err
}

// Update updates a record and invalidates everything it participates in.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidate(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction.
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidate(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records.
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidate(ctx, result...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction.
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidate(ctx, result...)
	}
	return result, err
}

// Upsert inserts or updates a record. It may have inserted, so it
// invalidates as a create.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction.
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records.
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction.
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateCreated(ctx, result...)
	}
	return result, err
}

// Delete deletes a record and invalidates everything it participates in.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidate(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction.
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidate(ctx, record)
	}
	return err
}

// DeleteMany deletes records matching the criteria. The deleted rows are
// never seen, so it falls back to the whole-model sentinel, which reaches
// cached queries only when whole-model linkage is on.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateModel(ctx)
	}
	return err
}

// DeleteManyTx deletes records matching the criteria within a transaction.
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateModel(ctx)
	}
	return err
}

// DeleteWhere deletes records matching the criteria, invalidating like
// DeleteMany.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateModel(ctx)
	}
	return err
}

// DeleteWhereTx deletes records matching the criteria within a transaction.
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateModel(ctx)
	}
	return err
}

// ForceDelete deletes a record bypassing soft delete.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidate(ctx, record)
	}
	return err
}

// ForceDeleteTx deletes a record bypassing soft delete within a transaction.
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidate(ctx, record)
	}
	return err
}

// GetTx reads within a transaction, bypassing the cache: the transaction
// may see uncommitted state that must not populate shared entries.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx reads by primary key within a transaction, bypassing the cache.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx lists within a transaction, bypassing the cache.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx counts within a transaction, bypassing the cache.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx reads by identifier within a transaction, bypassing the
// cache.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// RawTx executes a raw SQL query within a transaction, bypassing the cache.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository.
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

func (c *CachedRepository[T]) invalidate(ctx context.Context, records ...T) {
	if err := c.engine.Invalidate(ctx, cacheables(records)...); err != nil {
		c.log.Warn("invalidation failed", "entity", c.entity, "error", err)
	}
}

func (c *CachedRepository[T]) invalidateCreated(ctx context.Context, records ...T) {
	if err := c.engine.InvalidateCreated(ctx, cacheables(records)...); err != nil {
		c.log.Warn("invalidation failed", "entity", c.entity, "error", err)
	}
}

func (c *CachedRepository[T]) invalidateModel(ctx context.Context) {
	if err := c.engine.InvalidateModel(ctx, c.entity); err != nil {
		c.log.Warn("model invalidation failed", "entity", c.entity, "error", err)
	}
}

func cacheables[T cache.Cacheable](records []T) []cache.Cacheable {
	objs := make([]cache.Cacheable, len(records))
	for i, rec := range records {
		objs[i] = rec
	}
	return objs
}

// oneRow adapts a single-record fetch into a row producer.
func oneRow[T cache.Cacheable](fetch func(ctx context.Context) (T, error)) func(ctx context.Context) iter.Seq2[T, error] {
	return func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			yield(fetch(ctx))
		}
	}
}

// firstRow evaluates the query and returns its first row. A cached empty
// result reports sql.ErrNoRows, matching what the base repository returns
// for a missing record.
func firstRow[T cache.Cacheable](ctx context.Context, e *cache.Engine, q cache.Query[T]) (T, error) {
	for row, err := range cache.All(ctx, e, q) {
		return row, err
	}
	var zero T
	return zero, sql.ErrNoRows
}

func collectRows[T cache.Cacheable](ctx context.Context, e *cache.Engine, q cache.Query[T]) ([]T, error) {
	var records []T
	for row, err := range cache.All(ctx, e, q) {
		if err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	return records, nil
}
