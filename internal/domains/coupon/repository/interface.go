package repository

import (
	"context"

	"food-ordering-backend/internal/domains/coupon/model"
)

// Repository is the coupon ledger store. Usage counters only move
// through the conditional increment/decrement methods.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*model.Coupon, error)
	List(ctx context.Context, offset, limit int) ([]*model.Coupon, int, error)
	Create(ctx context.Context, coupon *model.Coupon) error
	UpdateStatus(ctx context.Context, code string, isActive bool) error

	// IncrementUsage returns false when no slot is left or the coupon is inactive
	IncrementUsage(ctx context.Context, code string) (bool, error)

	// DecrementUsage returns false when used_count is already 0
	DecrementUsage(ctx context.Context, code string) (bool, error)
}
