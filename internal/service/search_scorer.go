package service

import (
	"sort"
	"strings"

	"storefront-catalog/internal/domain"
)

const (
	nameMatchScore  = 10
	brandMatchScore = 5
)

// SearchScorer re-ranks a page of search results when the store has no relevance score.
// It only looks at name and brand prefixes.
type SearchScorer struct{}

// Score returns +10 when the name starts with term and +5 when the brand does, ignoring case.
func (SearchScorer) Score(p *domain.Product, term string) int {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return 0
	}

	score := 0
	if strings.HasPrefix(strings.ToLower(p.Name), term) {
		score += nameMatchScore
	}
	if strings.HasPrefix(strings.ToLower(p.Brand), term) {
		score += brandMatchScore
	}
	return score
}

// Rank orders products by score, highest first. The sort is stable so products with
// equal scores keep the order the store returned them in.
func (s SearchScorer) Rank(products []*domain.Product, term string) []*domain.Product {
	if strings.TrimSpace(term) == "" || len(products) < 2 {
		return products
	}

	scores := make(map[*domain.Product]int, len(products))
	for _, p := range products {
		scores[p] = s.Score(p, term)
	}

	ranked := append([]*domain.Product(nil), products...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	return ranked
}
