package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/checkout/model"
)

// AttemptRepository persists checkout progress. All methods join the tx in ctx.
type AttemptRepository interface {
	// Claim inserts the (cart, key) attempt, or takes over a failed one.
	// claimed is false when the attempt exists and is completed or in progress.
	Claim(ctx context.Context, cartID uuid.UUID, key string, couponCode *string) (attempt *model.Attempt, claimed bool, err error)

	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)

	MarkCouponRedeemed(ctx context.Context, id uuid.UUID) error
	MarkOrderCreated(ctx context.Context, id, orderID uuid.UUID, orderNumber string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, intentID, clientSecret string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorCode string) error

	// MarkCouponReleased flips coupon_released once; false means it was
	// never redeemed or already released
	MarkCouponReleased(ctx context.Context, id uuid.UUID) (bool, error)

	// ListStuck returns in-progress attempts not touched since before
	ListStuck(ctx context.Context, before time.Time, limit int) ([]*model.Attempt, error)
}
