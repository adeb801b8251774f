package query

import (
	"storefront-catalog/internal/domain"

	"github.com/google/uuid"
)

// Field is a sortable product column
type Field string

const (
	FieldPrice         Field = "price"
	FieldRatingAverage Field = "rating_average"
	FieldRatingCount   Field = "rating_count"
	FieldDiscount      Field = "discount"
	FieldCreatedAt     Field = "created_at"
	FieldName          Field = "name"
	FieldID            Field = "id"

	// FieldTextScore orders by the store's full-text match score and requires a search term.
	FieldTextScore Field = "text_score"
)

// SortField is one ORDER BY term
type SortField struct {
	Field Field `json:"field"`
	Desc  bool  `json:"desc,omitempty"`
}

// Sort is an ordered list of sort terms, most significant first
type Sort []SortField

// Query is the store-native filter for active catalog products.
// Its JSON encoding is stable and is used to derive cache keys.
type Query struct {
	ActiveOnly    bool       `json:"activeOnly"`
	Category      string     `json:"category,omitempty"`
	CategoryExact string     `json:"categoryExact,omitempty"`
	Search        string     `json:"search,omitempty"`
	TextSearch    bool       `json:"textSearch,omitempty"`
	Brands        []string   `json:"brands,omitempty"`
	MinPrice      *float64   `json:"minPrice,omitempty"`
	MaxPrice      *float64   `json:"maxPrice,omitempty"`
	MinRating     *float64   `json:"minRating,omitempty"`
	ExcludeID     *uuid.UUID `json:"excludeId,omitempty"`
}

// Base drops the refinable dimensions (brand, price, rating) and keeps category and search.
func (q Query) Base() Query {
	q.Brands = nil
	q.MinPrice = nil
	q.MaxPrice = nil
	q.MinRating = nil
	return q
}

// Spec is a built query with its ordering
type Spec struct {
	Query Query `json:"query"`
	Sort  Sort  `json:"sort"`
}

// Builder translates FilterCriteria into a Spec.
type Builder struct {
	nativeTextSearch bool
}

// NewBuilder creates a Builder. With nativeTextSearch the search term is matched by the
// store's full-text index and relevance ordering uses its score.
func NewBuilder(nativeTextSearch bool) *Builder {
	return &Builder{nativeTextSearch: nativeTextSearch}
}

// NativeTextSearch reports whether relevance is scored by the store.
func (b *Builder) NativeTextSearch() bool {
	return b.nativeTextSearch
}

// Build is pure: identical criteria always produce identical specs.
func (b *Builder) Build(f domain.FilterCriteria) Spec {
	q := Query{
		ActiveOnly: true,
		Category:   f.Category,
		Search:     f.Search,
		TextSearch: b.nativeTextSearch && f.HasSearch(),
		MinPrice:   f.MinPrice,
		MaxPrice:   f.MaxPrice,
		MinRating:  f.MinRating,
	}
	if len(f.Brands) > 0 {
		q.Brands = append([]string(nil), f.Brands...)
	}

	return Spec{
		Query: q,
		Sort:  SortFor(f.Sort, q.TextSearch),
	}
}

// SortFor returns the ordering of a sort option. textScore puts the full-text match score
// ahead of the relevance tie-breaks.
func SortFor(opt domain.SortOption, textScore bool) Sort {
	switch opt {
	case domain.SortPriceAsc:
		return Sort{{Field: FieldPrice}}
	case domain.SortPriceDesc:
		return Sort{{Field: FieldPrice, Desc: true}}
	case domain.SortRating:
		return Sort{{Field: FieldRatingAverage, Desc: true}, {Field: FieldRatingCount, Desc: true}}
	case domain.SortPopularity:
		return Sort{{Field: FieldRatingCount, Desc: true}, {Field: FieldRatingAverage, Desc: true}}
	case domain.SortDiscount:
		return Sort{{Field: FieldDiscount, Desc: true}}
	case domain.SortNewest:
		return Sort{{Field: FieldCreatedAt, Desc: true}}
	case domain.SortNameAsc:
		return Sort{{Field: FieldName}}
	case domain.SortNameDesc:
		return Sort{{Field: FieldName, Desc: true}}
	}

	relevance := Sort{{Field: FieldRatingAverage, Desc: true}, {Field: FieldRatingCount, Desc: true}}
	if textScore {
		return append(Sort{{Field: FieldTextScore, Desc: true}}, relevance...)
	}
	return relevance
}

// RelatedSpec selects active products of the same category as id, best rated first.
func RelatedSpec(category string, id uuid.UUID) Spec {
	return Spec{
		Query: Query{
			ActiveOnly:    true,
			CategoryExact: category,
			ExcludeID:     &id,
		},
		Sort: SortFor(domain.SortRating, false),
	}
}
