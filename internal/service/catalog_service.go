package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/query"
	"storefront-catalog/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// CatalogService defines the catalog operations exposed over HTTP
type CatalogService interface {
	GetProducts(ctx context.Context, filters url.Values) (*domain.ProductPage, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error)
	GetCategories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// CatalogOptions holds the tunables of the catalog service
type CatalogOptions struct {
	Limits       domain.PageLimits
	RelatedLimit int

	ListTTL     time.Duration
	FacetTTL    time.Duration
	CategoryTTL time.Duration

	// NativeTextSearch lets the store match and score search terms.
	NativeTextSearch bool
	// CoalesceMisses collapses concurrent list and facet misses for one key into a single store query.
	CoalesceMisses bool
}

// DefaultCatalogOptions returns the options used when nothing is configured
func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{
		Limits:       domain.DefaultPageLimits,
		RelatedLimit: 4,
		ListTTL:      300 * time.Second,
		FacetTTL:     90 * time.Second,
		CategoryTTL:  600 * time.Second,
	}
}

// listKey is the shape hashed into catalog:list keys
type listKey struct {
	Spec  query.Spec `json:"spec"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

type catalogService struct {
	products repository.ProductRepository
	cache    cache.Store
	builder  *query.Builder
	facets   *FacetAggregator
	scorer   SearchScorer
	opts     CatalogOptions
	group    *singleflight.Group
	logger   *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(products repository.ProductRepository, store cache.Store, opts CatalogOptions, logger *zap.Logger) CatalogService {
	// redis keeps a key forever when SET is given no TTL
	defaults := DefaultCatalogOptions()
	if opts.ListTTL <= 0 {
		opts.ListTTL = defaults.ListTTL
	}
	if opts.FacetTTL <= 0 {
		opts.FacetTTL = defaults.FacetTTL
	}
	if opts.CategoryTTL <= 0 {
		opts.CategoryTTL = defaults.CategoryTTL
	}

	s := &catalogService{
		products: products,
		cache:    store,
		builder:  query.NewBuilder(opts.NativeTextSearch),
		facets:   NewFacetAggregator(products, store, opts.FacetTTL, opts.CoalesceMisses, logger),
		opts:     opts,
		logger:   logger,
	}
	if opts.CoalesceMisses {
		s.group = &singleflight.Group{}
	}
	return s
}

// GetProducts returns one page of active products matching the raw query parameters,
// along with the facets of the unrefined query. Invalid parameters are coerced, never rejected.
func (s *catalogService) GetProducts(ctx context.Context, filters url.Values) (*domain.ProductPage, error) {
	criteria := domain.ParseFilterCriteria(filters, s.opts.Limits)
	spec := s.builder.Build(criteria)

	key, err := cache.ShapeKey(cache.ListNamespace, listKey{Spec: spec, Page: criteria.Page, Limit: criteria.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to build list cache key: %w", err)
	}

	var cached domain.ProductPage
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	if s.group == nil {
		return s.loadProducts(ctx, key, criteria, spec)
	}

	// the shared load must outlive the caller that started it; the store bounds it with its own timeouts
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.loadProducts(context.WithoutCancel(ctx), key, criteria, spec)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Coalesced list cache miss", zap.String("key", key))
	}
	return v.(*domain.ProductPage), nil
}

// loadProducts queries the page and its facets concurrently and caches the assembled page.
// A facet failure degrades to empty facets; such a page is returned but not cached.
func (s *catalogService) loadProducts(ctx context.Context, key string, criteria domain.FilterCriteria, spec query.Spec) (*domain.ProductPage, error) {
	var (
		records       []*domain.Product
		total         int
		facets        domain.FacetSummary
		facetsDegrade bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		records, total, err = s.products.Find(gctx, spec, repository.FindOptions{Page: criteria.Page, Limit: criteria.Limit})
		if err != nil {
			return err
		}
		if criteria.HasSearch() && !s.builder.NativeTextSearch() {
			records = s.scorer.Rank(records, criteria.Search)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		facets, err = s.facets.ComputeFacets(gctx, spec.Query)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("Failed to compute facets, returning empty facets", zap.Error(err))
			}
			facets = domain.EmptyFacets()
			facetsDegrade = true
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	page := &domain.ProductPage{
		PaginatedResult: domain.NewPaginatedResult(records, criteria.Page, criteria.Limit, total),
		Filters:         facets,
	}

	if !facetsDegrade {
		cache.SetJSON(ctx, s.cache, key, page, s.opts.ListTTL)
	}
	return page, nil
}

// GetProductByID returns an active product with up to RelatedLimit products of the same
// category. Related products are best effort: a failure there leaves the list empty.
func (s *catalogService) GetProductByID(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error) {
	product, err := s.products.FindByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}

	detail := &domain.ProductDetail{
		Product:         product,
		RelatedProducts: []*domain.Product{},
	}

	if s.opts.RelatedLimit <= 0 || product.Category == "" {
		return detail, nil
	}

	related, _, err := s.products.Find(ctx, query.RelatedSpec(product.Category, product.ID),
		repository.FindOptions{Page: 1, Limit: s.opts.RelatedLimit})
	if err != nil {
		s.logger.Warn("Failed to load related products",
			zap.String("product_id", id.String()),
			zap.Error(err),
		)
		return detail, nil
	}
	if len(related) > 0 {
		detail.RelatedProducts = related
	}

	return detail, nil
}

// GetCategories returns the distinct categories of active products
func (s *catalogService) GetCategories(ctx context.Context) ([]string, error) {
	key := cache.CategoriesKey()

	var categories []string
	if cache.GetJSON(ctx, s.cache, key, &categories) && categories != nil {
		return categories, nil
	}

	categories, err := s.products.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	cache.SetJSON(ctx, s.cache, key, categories, s.opts.CategoryTTL)
	return categories, nil
}

// CreateProduct stores a new product built from in
func (s *catalogService) CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	product := domain.NewProduct(in)
	if err := product.Validate(); err != nil {
		return nil, err
	}

	created, err := s.products.Create(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", created.ID.String()))
	return created, nil
}

// UpdateProduct applies patch to the product. List and facet pages that include it
// stay stale until their TTL expires.
func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error) {
	updated, err := s.products.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrProductNotFound
		case errors.Is(err, domain.ErrInvalidProduct):
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated", zap.String("product_id", id.String()))
	return updated, nil
}

// DeleteProduct removes the product
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}
