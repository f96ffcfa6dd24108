package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the slice of the catalog a cart needs
type Product struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url"`
	Available bool            `json:"available"`
}

// Catalog looks products up in the product service.
// Returns model.ErrProductNotFound for unknown ids.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}
