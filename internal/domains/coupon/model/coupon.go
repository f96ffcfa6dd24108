package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

// Coupon is referenced by code from carts and orders, never by id
type Coupon struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	DiscountType      DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MinCartAmount     decimal.Decimal  `json:"min_cart_amount"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"` // percentage only
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	IsActive          bool             `json:"is_active"`
	MaxUsageCount     int              `json:"max_usage_count"`
	UsedCount         int              `json:"used_count"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (c *Coupon) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

func (c *Coupon) IsExhausted() bool {
	return c.UsedCount >= c.MaxUsageCount
}

// NormalizeCode trims and upper-cases a user supplied code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Reason explains why a coupon does not apply
type Reason string

const (
	ReasonNotFound       Reason = "NotFound"
	ReasonInactive       Reason = "Inactive"
	ReasonExpired        Reason = "Expired"
	ReasonUsageExhausted Reason = "UsageExhausted"
	ReasonBelowMinimum   Reason = "BelowMinimum"
)

// ValidationResult is the outcome of checking a coupon against a cart total.
// An invalid coupon is a result, not an error.
type ValidationResult struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Reason         Reason          `json:"reason,omitempty"`
}

func Invalid(code string, reason Reason) *ValidationResult {
	return &ValidationResult{
		Code:           code,
		DiscountAmount: decimal.Zero,
		Reason:         reason,
	}
}
