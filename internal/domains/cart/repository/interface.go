package repository

import (
	"context"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/cart/model"
)

type RepositoryInterface interface {
	// GetByID loads the cart with its items ordered by position
	GetByID(ctx context.Context, id uuid.UUID) (*model.Cart, error)
	GetByOwner(ctx context.Context, owner model.Owner) (*model.Cart, error)

	Create(ctx context.Context, cart *model.Cart) error

	// Save writes items and coupon when cart.Version still matches the row,
	// then bumps cart.Version. Returns model.ErrVersionConflict otherwise.
	Save(ctx context.Context, cart *model.Cart) error

	// Clear empties the cart and drops its coupon regardless of version
	Clear(ctx context.Context, id uuid.UUID) error

	// AssignToUser turns a guest cart into the user's cart
	AssignToUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	Delete(ctx context.Context, id uuid.UUID) error
}
