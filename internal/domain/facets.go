package domain

// PriceRange is the inclusive price span of a result set
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FacetSummary lists the refinements available within a base query
type FacetSummary struct {
	Brands        []string   `json:"brands"`
	Categories    []string   `json:"categories"`
	PriceRange    PriceRange `json:"priceRange"`
	AverageRating float64    `json:"averageRating"`
}

// EmptyFacets is the summary of a base query that matches nothing.
func EmptyFacets() FacetSummary {
	return FacetSummary{
		Brands:     []string{},
		Categories: []string{},
	}
}
