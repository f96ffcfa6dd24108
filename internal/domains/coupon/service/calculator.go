package service

import (
	"github.com/shopspring/decimal"

	"food-ordering-backend/internal/domains/coupon/model"
	"food-ordering-backend/internal/shared/utils"
)

var hundred = decimal.NewFromInt(100)

// DiscountCalculator computes the discount a coupon grants on a cart total
type DiscountCalculator struct{}

func NewDiscountCalculator() *DiscountCalculator {
	return &DiscountCalculator{}
}

// Calculate returns the discount rounded half-up to cents.
//
//   - percentage: min(total × pct / 100, max_discount_amount)
//   - fixed:      min(discount_value, total)
//
// The result never exceeds cartTotal.
func (c *DiscountCalculator) Calculate(coupon *model.Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	if !cartTotal.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal

	switch coupon.DiscountType {
	case model.DiscountTypePercentage:
		discount = cartTotal.Mul(coupon.DiscountValue).Div(hundred)
		if coupon.MaxDiscountAmount != nil && discount.GreaterThan(*coupon.MaxDiscountAmount) {
			discount = *coupon.MaxDiscountAmount
		}

	case model.DiscountTypeFixed:
		discount = coupon.DiscountValue

	default:
		return decimal.Zero
	}

	if discount.GreaterThan(cartTotal) {
		discount = cartTotal
	}

	return utils.RoundMoney(discount)
}
