package service

import (
	"context"
	"time"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/query"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FacetSource runs the facet aggregation against the store
type FacetSource interface {
	Facets(ctx context.Context, q query.Query) (domain.FacetSummary, error)
}

// FacetAggregator computes the facets of a base query and caches them under catalog:facets.
type FacetAggregator struct {
	source FacetSource
	cache  cache.Store
	ttl    time.Duration
	group  *singleflight.Group // nil unless miss coalescing is enabled
	logger *zap.Logger
}

// NewFacetAggregator creates a new FacetAggregator
func NewFacetAggregator(source FacetSource, store cache.Store, ttl time.Duration, coalesce bool, logger *zap.Logger) *FacetAggregator {
	if ttl <= 0 {
		ttl = DefaultCatalogOptions().FacetTTL
	}
	a := &FacetAggregator{
		source: source,
		cache:  store,
		ttl:    ttl,
		logger: logger,
	}
	if coalesce {
		a.group = &singleflight.Group{}
	}
	return a
}

// ComputeFacets returns the brands, categories, price range and average rating of the
// products matching base. The refinable dimensions of base are ignored.
func (a *FacetAggregator) ComputeFacets(ctx context.Context, base query.Query) (domain.FacetSummary, error) {
	base = base.Base()

	key, err := cache.ShapeKey(cache.FacetNamespace, base)
	if err != nil {
		return domain.EmptyFacets(), err
	}

	var facets domain.FacetSummary
	if cache.GetJSON(ctx, a.cache, key, &facets) {
		return facets, nil
	}

	load := func(ctx context.Context) (domain.FacetSummary, error) {
		facets, err := a.source.Facets(ctx, base)
		if err != nil {
			return domain.EmptyFacets(), err
		}
		cache.SetJSON(ctx, a.cache, key, facets, a.ttl)
		return facets, nil
	}

	if a.group == nil {
		return load(ctx)
	}

	v, err, shared := a.group.Do(key, func() (interface{}, error) {
		return load(context.WithoutCancel(ctx))
	})
	if shared {
		a.logger.Debug("Coalesced facet cache miss", zap.String("key", key))
	}
	return v.(domain.FacetSummary), err
}
