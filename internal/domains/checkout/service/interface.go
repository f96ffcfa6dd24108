package service

import (
	"context"

	cartModel "food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/internal/domains/checkout/model"
)

// CheckoutService turns a cart into a pending order with a payment intent
type CheckoutService interface {
	// Checkout runs the saga. The same idempotency key returns the stored
	// result once an attempt has completed. An empty key falls back to the
	// cart version.
	Checkout(ctx context.Context, owner cartModel.Owner, idempotencyKey string, req model.CheckoutRequest) (*model.Result, error)

	// RecoverStuck fails attempts abandoned mid-flight and compensates them
	RecoverStuck(ctx context.Context, limit int) (int, error)
}
