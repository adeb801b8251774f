package repository

import (
	"encoding/json"
	"fmt"
	"math"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/domain"
)

var productColumns = []string{
	"id",
	"name",
	"description",
	"category",
	"brand",
	"price",
	"original_price",
	"discount",
	"rating_average",
	"rating_count",
	"inventory_quantity",
	"inventory_reserved",
	"images",
	"is_active",
	"created_at",
	"updated_at",
}

// productMapper maps domain.Product onto the products table
type productMapper struct{}

func (productMapper) Table() string     { return productsTable }
func (productMapper) Namespace() string { return cache.ProductNamespace }
func (productMapper) Columns() []string { return productColumns }

func (productMapper) ID(p *domain.Product) string {
	return p.ID.String()
}

func (productMapper) Scan(row RowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var images []byte
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.Brand,
		&p.Price,
		&p.OriginalPrice,
		&p.Discount,
		&p.Rating.Average,
		&p.Rating.Count,
		&p.Inventory.Quantity,
		&p.Inventory.Reserved,
		&images,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Images = []domain.Image{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to decode product images: %w", err)
		}
	}
	return p, nil
}

func (productMapper) Values(p *domain.Product) ([]any, error) {
	images := p.Images
	if images == nil {
		images = []domain.Image{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return nil, err
	}

	return []any{
		p.ID,
		p.Name,
		p.Description,
		p.Category,
		p.Brand,
		p.Price,
		p.OriginalPrice,
		p.Discount,
		p.Rating.Average,
		p.Rating.Count,
		p.Inventory.Quantity,
		p.Inventory.Reserved,
		string(encoded),
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	}, nil
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
