package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"food-ordering-backend/internal/domains/cart/model"
)

// StaticCatalog serves products from memory. Used in development and tests.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
}

func NewStaticCatalog(products ...Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[uuid.UUID]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// DefaultMenu is a small seeded menu for local runs
func DefaultMenu() *StaticCatalog {
	return NewStaticCatalog(
		Product{ID: uuid.MustParse("7b1f3c2a-1d6e-4b1a-9f3e-0c1a2b3c4d01"), Name: "Margherita Pizza", Price: decimal.RequireFromString("12.50"), Available: true},
		Product{ID: uuid.MustParse("7b1f3c2a-1d6e-4b1a-9f3e-0c1a2b3c4d02"), Name: "Pad Thai", Price: decimal.RequireFromString("10.90"), Available: true},
		Product{ID: uuid.MustParse("7b1f3c2a-1d6e-4b1a-9f3e-0c1a2b3c4d03"), Name: "Caesar Salad", Price: decimal.RequireFromString("8.00"), Available: true},
		Product{ID: uuid.MustParse("7b1f3c2a-1d6e-4b1a-9f3e-0c1a2b3c4d04"), Name: "Seasonal Soup", Price: decimal.RequireFromString("6.50"), Available: false},
	)
}

func (c *StaticCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *StaticCatalog) GetProduct(_ context.Context, id uuid.UUID) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &p, nil
}
