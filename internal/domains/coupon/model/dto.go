package model

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var codePattern = regexp.MustCompile("^[A-Z0-9_-]+$")

// CreateCouponRequest is the admin payload for a new coupon
type CreateCouponRequest struct {
	Code              string           `json:"code"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MinCartAmount     decimal.Decimal  `json:"min_cart_amount"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	ExpiresAt         *time.Time       `json:"expires_at"`
	MaxUsageCount     int              `json:"max_usage_count"`
	IsActive          *bool            `json:"is_active"`
}

func (r CreateCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code,
			validation.Required,
			validation.Length(3, 50),
			validation.Match(codePattern).Error("must contain only A-Z, 0-9, '-' or '_'"),
		),
		validation.Field(&r.DiscountType,
			validation.Required,
			validation.In(string(DiscountTypeFixed), string(DiscountTypePercentage)),
		),
		validation.Field(&r.DiscountValue, validation.By(r.validateDiscountValue)),
		validation.Field(&r.MinCartAmount, validation.By(nonNegative)),
		validation.Field(&r.MaxDiscountAmount, validation.By(r.validateMaxDiscount)),
		validation.Field(&r.ExpiresAt, validation.By(futureTime)),
		validation.Field(&r.MaxUsageCount, validation.Required, validation.Min(1)),
	)
}

func (r CreateCouponRequest) validateDiscountValue(value interface{}) error {
	v, _ := value.(decimal.Decimal)
	if !v.IsPositive() {
		return errors.New("must be greater than 0")
	}
	if r.DiscountType == string(DiscountTypePercentage) && v.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("percentage must not exceed 100")
	}
	return nil
}

func (r CreateCouponRequest) validateMaxDiscount(value interface{}) error {
	v, _ := value.(*decimal.Decimal)
	if v == nil {
		return nil
	}
	if r.DiscountType != string(DiscountTypePercentage) {
		return errors.New("only percentage coupons take a cap")
	}
	if !v.IsPositive() {
		return errors.New("must be greater than 0")
	}
	return nil
}

func nonNegative(value interface{}) error {
	v, _ := value.(decimal.Decimal)
	if v.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func futureTime(value interface{}) error {
	v, _ := value.(*time.Time)
	if v != nil && !v.After(time.Now()) {
		return errors.New("must be in the future")
	}
	return nil
}

// ToCoupon maps the request onto a new coupon entity
func (r CreateCouponRequest) ToCoupon() *Coupon {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &Coupon{
		Code:              NormalizeCode(r.Code),
		DiscountType:      DiscountType(r.DiscountType),
		DiscountValue:     r.DiscountValue,
		MinCartAmount:     r.MinCartAmount,
		MaxDiscountAmount: r.MaxDiscountAmount,
		ExpiresAt:         r.ExpiresAt,
		IsActive:          active,
		MaxUsageCount:     r.MaxUsageCount,
	}
}

// ValidateCouponRequest lets a client preview a coupon against a total
type ValidateCouponRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cart_total"`
}

func (r ValidateCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.CartTotal, validation.By(nonNegative)),
	)
}

type UpdateStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

func (r UpdateStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IsActive, validation.NotNil),
	)
}
