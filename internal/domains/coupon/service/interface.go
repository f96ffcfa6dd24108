package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"food-ordering-backend/internal/domains/coupon/model"
)

// Ledger is what cart and checkout need from coupons
type Ledger interface {
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal, userID *uuid.UUID) (*model.ValidationResult, error)

	// Redeem consumes one usage slot. false means the slot was taken
	// between validation and redemption; the caller must re-validate.
	Redeem(ctx context.Context, code string) (bool, error)

	// Release gives a slot back. Never drops below zero.
	Release(ctx context.Context, code string) error
}

type ServiceInterface interface {
	Ledger

	// Admin methods
	Create(ctx context.Context, req *model.CreateCouponRequest) (*model.Coupon, error)
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	List(ctx context.Context, page, limit int) ([]*model.Coupon, int, error)
	SetActive(ctx context.Context, code string, isActive bool) error
}
