package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/query"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const productsTable = "products"

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID, useCache bool) (*domain.Product, error)
	Find(ctx context.Context, spec query.Spec, opts FindOptions) ([]*domain.Product, int, error)
	// Facets aggregates the refinable dimensions of the products matching q in one query.
	Facets(ctx context.Context, q query.Query) (domain.FacetSummary, error)
	// Categories lists the distinct categories of active products, sorted.
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type productRepository struct {
	*Repository[domain.Product]
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB, store cache.Store, opts Options, logger *zap.Logger) ProductRepository {
	return &productRepository{
		Repository: New[domain.Product](db, store, productMapper{}, opts, logger),
		db:         db,
	}
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID, useCache bool) (*domain.Product, error) {
	return r.Repository.FindByID(ctx, id.String(), useCache)
}

// Update loads the current record from the store, applies the patch and writes every
// column back. The patched product is validated before anything is written.
func (r *productRepository) Update(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error) {
	current, err := r.Repository.FindByID(ctx, id.String(), false)
	if err != nil {
		return nil, err
	}

	patch.Apply(current)
	if err := current.Validate(); err != nil {
		return nil, err
	}
	current.UpdatedAt = time.Now().UTC()

	values, err := productMapper{}.Values(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode product: %w", err)
	}

	columns := make(map[string]any, len(productColumns)-1)
	for i, c := range productColumns {
		if c == "id" || c == "created_at" {
			continue
		}
		columns[c] = values[i]
	}

	return r.Repository.Update(ctx, id.String(), columns)
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.Repository.Delete(ctx, id.String())
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	return r.Repository.Create(ctx, product)
}

// Facets computes brands, categories, the price range and the average rating in a single
// aggregation. An empty match set yields empty lists and a zero price range.
func (r *productRepository) Facets(ctx context.Context, q query.Query) (domain.FacetSummary, error) {
	where, args := q.Where()
	stmt := fmt.Sprintf(`
		SELECT
			COALESCE(json_agg(DISTINCT brand ORDER BY brand) FILTER (WHERE brand <> ''), '[]'),
			COALESCE(json_agg(DISTINCT category ORDER BY category) FILTER (WHERE category <> ''), '[]'),
			COALESCE(MIN(price), 0),
			COALESCE(MAX(price), 0),
			COALESCE(AVG(rating_average), 0)
		FROM %s
		%s
	`, productsTable, where)

	facets := domain.EmptyFacets()
	err := r.exec(ctx, "facets", func(ctx context.Context) error {
		var brands, categories []byte
		err := r.db.QueryRowContext(ctx, stmt, args...).Scan(
			&brands,
			&categories,
			&facets.PriceRange.Min,
			&facets.PriceRange.Max,
			&facets.AverageRating,
		)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(brands, &facets.Brands); err != nil {
			return fmt.Errorf("failed to decode brand facet: %w", err)
		}
		if err := json.Unmarshal(categories, &facets.Categories); err != nil {
			return fmt.Errorf("failed to decode category facet: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.EmptyFacets(), err
	}

	facets.AverageRating = roundTo(facets.AverageRating, 2)
	return facets, nil
}

func (r *productRepository) Categories(ctx context.Context) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT DISTINCT category FROM %s WHERE is_active = TRUE AND category <> '' ORDER BY category`, productsTable)

	categories := []string{}
	err := r.exec(ctx, "categories", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, stmt)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c string
			if err := rows.Scan(&c); err != nil {
				return fmt.Errorf("failed to scan category: %w", err)
			}
			categories = append(categories, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}
