package domain

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SortOption is the catalog ordering requested by the client
type SortOption string

const (
	SortRelevance  SortOption = "relevance"
	SortPriceAsc   SortOption = "price-asc"
	SortPriceDesc  SortOption = "price-desc"
	SortRating     SortOption = "rating"
	SortPopularity SortOption = "popularity"
	SortDiscount   SortOption = "discount"
	SortNewest     SortOption = "newest"
	SortNameAsc    SortOption = "name-asc"
	SortNameDesc   SortOption = "name-desc"
)

// CategoryAll is the sentinel category that disables category filtering.
const CategoryAll = "all"

var sortAliases = map[string]SortOption{
	"relevance":  SortRelevance,
	"price-asc":  SortPriceAsc,
	"price-low":  SortPriceAsc,
	"price-desc": SortPriceDesc,
	"price-high": SortPriceDesc,
	"rating":     SortRating,
	"popularity": SortPopularity,
	"discount":   SortDiscount,
	"newest":     SortNewest,
	"name-asc":   SortNameAsc,
	"name-desc":  SortNameDesc,
}

// ParseSortOption maps a raw sort value to a SortOption; unknown values fall back to relevance.
func ParseSortOption(raw string) SortOption {
	if opt, ok := sortAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return opt
	}
	return SortRelevance
}

// FilterCriteria is the validated form of a catalog list request
type FilterCriteria struct {
	Category  string
	Search    string
	Brands    []string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	Sort      SortOption
	Page      int
	Limit     int
}

// PageLimits bounds the page size accepted from clients.
type PageLimits struct {
	Default int
	Max     int
}

var DefaultPageLimits = PageLimits{Default: 20, Max: 100}

// HasSearch reports whether a free-text term is present.
func (f FilterCriteria) HasSearch() bool {
	return f.Search != ""
}

// Offset is the number of records skipped before the requested page.
func (f FilterCriteria) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ParseFilterCriteria coerces raw query parameters into a FilterCriteria.
// Nothing is rejected: out-of-range numbers are clamped and unparsable ones dropped.
func ParseFilterCriteria(values url.Values, limits PageLimits) FilterCriteria {
	if limits.Max < 1 {
		limits.Max = DefaultPageLimits.Max
	}
	if limits.Default < 1 || limits.Default > limits.Max {
		limits.Default = min(DefaultPageLimits.Default, limits.Max)
	}

	f := FilterCriteria{
		Search: strings.TrimSpace(values.Get("search")),
		Sort:   ParseSortOption(values.Get("sort")),
		Page:   1,
		Limit:  limits.Default,
	}

	if category := strings.TrimSpace(values.Get("category")); !strings.EqualFold(category, CategoryAll) {
		f.Category = category
	}

	f.Brands = parseBrands(values["brand"])

	f.MinPrice = parseNonNegative(values.Get("minPrice"))
	f.MaxPrice = parseNonNegative(values.Get("maxPrice"))
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		f.MinPrice, f.MaxPrice = f.MaxPrice, f.MinPrice
	}

	rawRating := values.Get("rating")
	if rawRating == "" {
		rawRating = values.Get("minRating")
	}
	if rating := parseNonNegative(rawRating); rating != nil {
		if *rating > 5 {
			*rating = 5
		}
		if *rating > 0 {
			f.MinRating = rating
		}
	}

	if limit, err := strconv.Atoi(strings.TrimSpace(values.Get("limit"))); err == nil {
		f.Limit = max(1, min(limit, limits.Max))
	}

	// pages are capped so that Offset cannot overflow; such a page is simply past the end
	if page, err := strconv.Atoi(strings.TrimSpace(values.Get("page"))); err == nil && page > 1 {
		f.Page = min(page, math.MaxInt/f.Limit)
	}

	return f
}

// parseBrands accepts repeated and comma separated brand parameters and returns a sorted set.
func parseBrands(raw []string) []string {
	seen := make(map[string]struct{})
	for _, value := range raw {
		for _, brand := range strings.Split(value, ",") {
			brand = strings.TrimSpace(brand)
			if brand == "" || strings.EqualFold(brand, CategoryAll) {
				continue
			}
			seen[brand] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	brands := make([]string, 0, len(seen))
	for brand := range seen {
		brands = append(brands, brand)
	}
	sort.Strings(brands)
	return brands
}

func parseNonNegative(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v < 0 {
		v = 0
	}
	return &v
}
