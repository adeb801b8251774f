package domain

// Pagination describes the page returned for a list query
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes pages as ceil(total/limit); zero total yields zero pages.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 && total > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}
}

// PaginatedResult is a page-bounded slice of records
type PaginatedResult[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPaginatedResult never returns a nil Data slice so empty pages encode as [].
func NewPaginatedResult[T any](data []T, page, limit, total int) PaginatedResult[T] {
	if data == nil {
		data = []T{}
	}
	return PaginatedResult[T]{
		Data:       data,
		Pagination: NewPagination(page, limit, total),
	}
}

// ProductPage is a catalog list response: one page of products plus the facets of the base query.
type ProductPage struct {
	PaginatedResult[*Product]
	Filters FacetSummary `json:"filters"`
}
