package service

import (
	"context"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/cart/model"
)

type ServiceInterface interface {
	// GetCart returns the owner's cart with fresh totals, creating an empty one if needed
	GetCart(ctx context.Context, owner model.Owner) (*model.Cart, error)

	// GetByID returns a cart with fresh totals
	GetByID(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)

	// AddItem snapshots name/price/image from the catalog; an existing line gains quantity
	AddItem(ctx context.Context, owner model.Owner, req model.AddItemRequest) (*model.Cart, error)

	// UpdateQuantity sets a line's quantity; 0 removes it
	UpdateQuantity(ctx context.Context, owner model.Owner, productID uuid.UUID, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, owner model.Owner, productID uuid.UUID) (*model.Cart, error)

	// ApplyCoupon validates only; the usage slot is taken at checkout
	ApplyCoupon(ctx context.Context, owner model.Owner, code string) (*model.Cart, error)
	RemoveCoupon(ctx context.Context, owner model.Owner) (*model.Cart, error)

	// Recalculate refreshes cart.Totals from items and the attached coupon
	Recalculate(ctx context.Context, cart *model.Cart) error

	// Clear empties a consumed cart after checkout
	Clear(ctx context.Context, cartID uuid.UUID) error

	// MergeGuestCart folds the session cart into the user's cart on login
	MergeGuestCart(ctx context.Context, sessionID string, userID uuid.UUID) error
}
