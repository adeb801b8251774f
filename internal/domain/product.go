package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidProduct = errors.New("invalid product")

// Product represents a product in the catalog
type Product struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Brand         string    `json:"brand"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"originalPrice"`
	Discount      int       `json:"discount"`
	Rating        Rating    `json:"rating"`
	Inventory     Inventory `json:"inventory"`
	Images        []Image   `json:"images"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type Inventory struct {
	Quantity int `json:"quantity"`
	Reserved int `json:"reserved"`
}

type Image struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"isPrimary"`
}

// ProductDetail is a product with its best-effort related products.
type ProductDetail struct {
	*Product
	RelatedProducts []*Product `json:"relatedProducts"`
}

// ProductInput is the payload accepted when creating a product.
type ProductInput struct {
	Name          string       `json:"name" validate:"required,max=255"`
	Description   string       `json:"description"`
	Category      string       `json:"category" validate:"required,max=100"`
	Brand         string       `json:"brand" validate:"max=100"`
	Price         float64      `json:"price" validate:"gte=0"`
	OriginalPrice float64      `json:"originalPrice" validate:"gte=0"`
	Rating        *Rating      `json:"rating"`
	Inventory     Inventory    `json:"inventory"`
	Images        []ImageInput `json:"images" validate:"dive"`
	IsActive      *bool        `json:"isActive"`
}

type ImageInput struct {
	URL       string `json:"url" validate:"required,url"`
	IsPrimary bool   `json:"isPrimary"`
}

// ProductPatch carries the fields of a partial update; nil fields are left unchanged.
type ProductPatch struct {
	Name          *string       `json:"name" validate:"omitempty,min=1,max=255"`
	Description   *string       `json:"description"`
	Category      *string       `json:"category" validate:"omitempty,min=1,max=100"`
	Brand         *string       `json:"brand" validate:"omitempty,max=100"`
	Price         *float64      `json:"price" validate:"omitempty,gte=0"`
	OriginalPrice *float64      `json:"originalPrice" validate:"omitempty,gte=0"`
	Rating        *Rating       `json:"rating"`
	Inventory     *Inventory    `json:"inventory"`
	Images        *[]ImageInput `json:"images" validate:"omitempty,dive"`
	IsActive      *bool         `json:"isActive"`
}

// NewProduct builds a normalized product from a create payload.
func NewProduct(in ProductInput) *Product {
	p := &Product{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Category:      strings.TrimSpace(in.Category),
		Brand:         strings.TrimSpace(in.Brand),
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		Inventory:     in.Inventory,
		Images:        toImages(in.Images),
		IsActive:      true,
	}
	if in.Rating != nil {
		p.Rating = *in.Rating
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.Normalize()
	return p
}

// Apply merges the non-nil patch fields into p and re-derives the display fields.
func (patch ProductPatch) Apply(p *Product) {
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Brand != nil {
		p.Brand = strings.TrimSpace(*patch.Brand)
	}
	if patch.Price != nil {
		p.Price = *patch.Price
		// a new price without a new original price restarts the discount from scratch
		if patch.OriginalPrice == nil {
			p.OriginalPrice = 0
		}
	}
	if patch.OriginalPrice != nil {
		p.OriginalPrice = *patch.OriginalPrice
	}
	if patch.Rating != nil {
		p.Rating = *patch.Rating
	}
	if patch.Inventory != nil {
		p.Inventory = *patch.Inventory
	}
	if patch.Images != nil {
		p.Images = toImages(*patch.Images)
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	p.Normalize()
}

// Normalize derives originalPrice/discount and keeps at most one primary image.
func (p *Product) Normalize() {
	if p.OriginalPrice > p.Price && p.OriginalPrice > 0 {
		p.Discount = int(math.Round((p.OriginalPrice - p.Price) / p.OriginalPrice * 100))
	} else {
		p.OriginalPrice = p.Price
		p.Discount = 0
	}

	primarySeen := false
	for i := range p.Images {
		if p.Images[i].IsPrimary {
			if primarySeen {
				p.Images[i].IsPrimary = false
			}
			primarySeen = true
		}
	}
	if p.Images == nil {
		p.Images = []Image{}
	}
}

// Validate checks the invariants the store relies on.
func (p *Product) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Price < 0:
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidProduct)
	case p.Rating.Average < 0 || p.Rating.Average > 5:
		return fmt.Errorf("%w: rating average must be within [0,5]", ErrInvalidProduct)
	case p.Rating.Count < 0:
		return fmt.Errorf("%w: rating count must be >= 0", ErrInvalidProduct)
	case p.Inventory.Quantity < 0 || p.Inventory.Reserved < 0:
		return fmt.Errorf("%w: inventory must be >= 0", ErrInvalidProduct)
	}
	return nil
}

// PrimaryImage returns the primary image, falling back to the first one.
func (p *Product) PrimaryImage() (Image, bool) {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img, true
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0], true
	}
	return Image{}, false
}

func toImages(in []ImageInput) []Image {
	images := make([]Image, 0, len(in))
	for _, img := range in {
		images = append(images, Image{URL: img.URL, IsPrimary: img.IsPrimary})
	}
	return images
}
