package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/observability"
	"storefront-catalog/internal/query"

	"go.uber.org/zap"
)

// RowScanner is satisfied by *sql.Row and *sql.Rows
type RowScanner interface {
	Scan(dest ...any) error
}

// Mapper binds a record type to its table.
type Mapper[T any] interface {
	Table() string
	// Namespace is the cache namespace of point lookups, e.g. "catalog:product".
	Namespace() string
	// Columns lists the stored columns; the first one is the primary key.
	Columns() []string
	Scan(row RowScanner) (*T, error)
	// Values returns one value per column, in Columns order.
	Values(rec *T) ([]any, error)
	ID(rec *T) string
}

// FindOptions paginates a Find call. Sorting comes from the query.Spec.
type FindOptions struct {
	Page  int
	Limit int
}

func (o FindOptions) offset() int {
	if o.Page < 1 || o.Limit < 1 {
		return 0
	}
	if o.Page-1 > math.MaxInt/o.Limit {
		return math.MaxInt
	}
	return (o.Page - 1) * o.Limit
}

// Options configures a Repository
type Options struct {
	PointTTL     time.Duration
	QueryTimeout time.Duration
	Metrics      *observability.Collector
}

// Repository is the generic persistence layer: cached point lookups, paginated finds
// and writes that invalidate the point-lookup entry of the written id.
// List and facet caches are not touched here; they expire by TTL.
type Repository[T any] struct {
	db     *sql.DB
	cache  cache.Store
	mapper Mapper[T]
	opts   Options
	logger *zap.Logger
}

// New creates a new Repository for the mapper's table
func New[T any](db *sql.DB, store cache.Store, mapper Mapper[T], opts Options, logger *zap.Logger) *Repository[T] {
	if opts.PointTTL <= 0 {
		opts.PointTTL = 300 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	return &Repository[T]{
		db:     db,
		cache:  store,
		mapper: mapper,
		opts:   opts,
		logger: logger,
	}
}

func (r *Repository[T]) pointKey(id string) string {
	return cache.PointKey(r.mapper.Namespace(), id)
}

// exec runs fn with the store timeout and records the outcome.
// Any error other than ErrNotFound is wrapped in a StorageError.
func (r *Repository[T]) exec(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if errors.Is(err, ErrNotFound) {
		r.opts.Metrics.RecordStoreOperation(op, r.mapper.Table(), nil, time.Since(start))
		return err
	}
	r.opts.Metrics.RecordStoreOperation(op, r.mapper.Table(), err, time.Since(start))
	if err != nil {
		return &StorageError{Op: op, Table: r.mapper.Table(), Err: err}
	}
	return nil
}

func (r *Repository[T]) selectList() string {
	return strings.Join(r.mapper.Columns(), ", ")
}

func (r *Repository[T]) idColumn() string {
	return r.mapper.Columns()[0]
}

// FindByID returns the record with the given id. With useCache a hit is returned without
// touching the store, and a miss populates the cache with the point TTL.
func (r *Repository[T]) FindByID(ctx context.Context, id string, useCache bool) (*T, error) {
	key := r.pointKey(id)
	if useCache {
		var cached T
		if cache.GetJSON(ctx, r.cache, key, &cached) {
			return &cached, nil
		}
	}

	var rec *T
	err := r.exec(ctx, "find_by_id", func(ctx context.Context) error {
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", r.selectList(), r.mapper.Table(), r.idColumn())
		var err error
		rec, err = r.mapper.Scan(r.db.QueryRowContext(ctx, q, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if useCache {
		cache.SetJSON(ctx, r.cache, key, rec, r.opts.PointTTL)
	}
	return rec, nil
}

// Find returns one page of the records matching spec and the total number of matches.
// A page past the end or an empty match set is an empty slice, not an error.
func (r *Repository[T]) Find(ctx context.Context, spec query.Spec, opts FindOptions) ([]*T, int, error) {
	total, err := r.Count(ctx, spec.Query)
	if err != nil {
		return nil, 0, err
	}

	records := []*T{}
	if total == 0 || opts.offset() >= total {
		return records, total, nil
	}

	where, orderBy, args := spec.SQL()
	q := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		r.selectList(), r.mapper.Table(), where, orderBy, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.offset())

	err = r.exec(ctx, "find", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := r.mapper.Scan(rows)
			if err != nil {
				return fmt.Errorf("failed to scan record: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Count returns the number of records matching q
func (r *Repository[T]) Count(ctx context.Context, q query.Query) (int, error) {
	where, args := q.Where()
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", r.mapper.Table(), where)

	var total int
	err := r.exec(ctx, "count", func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, stmt, args...).Scan(&total)
	})
	return total, err
}

// Create inserts rec and returns the stored record
func (r *Repository[T]) Create(ctx context.Context, rec *T) (*T, error) {
	values, err := r.mapper.Values(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	cols := r.mapper.Columns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.mapper.Table(), strings.Join(cols, ", "), strings.Join(placeholders, ", "), r.selectList())

	var created *T
	err = r.exec(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = r.mapper.Scan(r.db.QueryRowContext(ctx, stmt, values...))
		return err
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, r.mapper.ID(created))
	return created, nil
}

// Update sets the given columns of the record with the given id and returns the stored record.
// Unknown columns are rejected before the store is contacted.
func (r *Repository[T]) Update(ctx context.Context, id string, patch map[string]any) (*T, error) {
	if len(patch) == 0 {
		return r.FindByID(ctx, id, false)
	}

	writable := make(map[string]bool, len(r.mapper.Columns()))
	for _, c := range r.mapper.Columns()[1:] {
		writable[c] = true
	}

	cols := make([]string, 0, len(patch))
	for c := range patch {
		if !writable[c] {
			return nil, fmt.Errorf("failed to update %s: unknown column %q", r.mapper.Table(), c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		args = append(args, patch[c])
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		r.mapper.Table(), strings.Join(sets, ", "), r.idColumn(), len(args), r.selectList())

	var updated *T
	err := r.exec(ctx, "update", func(ctx context.Context) error {
		var err error
		updated, err = r.mapper.Scan(r.db.QueryRowContext(ctx, stmt, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, id)
	return updated, nil
}

// Delete removes the record with the given id
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.mapper.Table(), r.idColumn())

	err := r.exec(ctx, "delete", func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, stmt, id)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidate(ctx, id)
	return nil
}

// invalidate drops the point-lookup entry synchronously so the next FindByID reads the store.
func (r *Repository[T]) invalidate(ctx context.Context, id string) {
	if !r.cache.Delete(ctx, r.pointKey(id)) {
		r.logger.Warn("Failed to invalidate cached record",
			zap.String("table", r.mapper.Table()),
			zap.String("id", id),
		)
	}
}
