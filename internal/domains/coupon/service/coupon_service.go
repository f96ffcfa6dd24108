package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"food-ordering-backend/internal/domains/coupon/model"
	"food-ordering-backend/internal/domains/coupon/repository"
	"food-ordering-backend/pkg/logger"
)

type couponService struct {
	repo       repository.Repository
	calculator *DiscountCalculator
	now        func() time.Time
}

func NewCouponService(repo repository.Repository) ServiceInterface {
	return &couponService{
		repo:       repo,
		calculator: NewDiscountCalculator(),
		now:        time.Now,
	}
}

// Validate checks, in order: exists, active, not expired, has a free slot,
// cart total reaches the minimum. It never consumes a slot.
func (s *couponService) Validate(
	ctx context.Context,
	code string,
	cartTotal decimal.Decimal,
	userID *uuid.UUID,
) (*model.ValidationResult, error) {
	code = model.NormalizeCode(code)

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrCouponNotFound) {
			return model.Invalid(code, model.ReasonNotFound), nil
		}
		return nil, fmt.Errorf("validate coupon: %w", err)
	}

	switch {
	case !coupon.IsActive:
		return model.Invalid(code, model.ReasonInactive), nil
	case coupon.IsExpired(s.now()):
		return model.Invalid(code, model.ReasonExpired), nil
	case coupon.IsExhausted():
		return model.Invalid(code, model.ReasonUsageExhausted), nil
	case cartTotal.LessThan(coupon.MinCartAmount):
		return model.Invalid(code, model.ReasonBelowMinimum), nil
	}

	result := &model.ValidationResult{
		Valid:          true,
		Code:           code,
		DiscountAmount: s.calculator.Calculate(coupon, cartTotal),
	}

	logger.Debug("Coupon validated", map[string]interface{}{
		"code":       code,
		"cart_total": cartTotal.String(),
		"discount":   result.DiscountAmount.String(),
		"user_id":    userID,
	})

	return result, nil
}

func (s *couponService) Redeem(ctx context.Context, code string) (bool, error) {
	code = model.NormalizeCode(code)

	ok, err := s.repo.IncrementUsage(ctx, code)
	if err != nil {
		return false, fmt.Errorf("redeem coupon %s: %w", code, err)
	}

	if !ok {
		logger.Info("Coupon redemption lost", map[string]interface{}{
			"code": code,
		})
	}
	return ok, nil
}

func (s *couponService) Release(ctx context.Context, code string) error {
	code = model.NormalizeCode(code)

	ok, err := s.repo.DecrementUsage(ctx, code)
	if err != nil {
		return fmt.Errorf("release coupon %s: %w", code, err)
	}

	if !ok {
		logger.Warn("Coupon release skipped, used_count already zero", map[string]interface{}{
			"code": code,
		})
	}
	return nil
}

// =====================================================
// ADMIN
// =====================================================

func (s *couponService) Create(ctx context.Context, req *model.CreateCouponRequest) (*model.Coupon, error) {
	coupon := req.ToCoupon()

	if err := s.repo.Create(ctx, coupon); err != nil {
		if errors.Is(err, model.ErrDuplicateCode) {
			return nil, model.NewDuplicateCodeError(coupon.Code)
		}
		return nil, &model.AppError{
			Code:       model.ErrCodeInternalError,
			Message:    "failed to create coupon",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}

	logger.Info("Coupon created", map[string]interface{}{
		"code":            coupon.Code,
		"discount_type":   coupon.DiscountType,
		"max_usage_count": coupon.MaxUsageCount,
	})
	return coupon, nil
}

func (s *couponService) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrCouponNotFound) {
			return nil, model.NewNotFoundError(model.NormalizeCode(code))
		}
		return nil, err
	}
	return coupon, nil
}

func (s *couponService) List(ctx context.Context, page, limit int) ([]*model.Coupon, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, (page-1)*limit, limit)
}

// SetActive toggles a coupon. Used coupons are deactivated, never deleted.
func (s *couponService) SetActive(ctx context.Context, code string, isActive bool) error {
	if err := s.repo.UpdateStatus(ctx, code, isActive); err != nil {
		if errors.Is(err, model.ErrCouponNotFound) {
			return model.NewNotFoundError(model.NormalizeCode(code))
		}
		return err
	}

	logger.Info("Coupon status updated", map[string]interface{}{
		"code":      model.NormalizeCode(code),
		"is_active": isActive,
	})
	return nil
}
