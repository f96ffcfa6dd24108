package model

import (
	"github.com/shopspring/decimal"

	"food-ordering-backend/internal/shared/utils"
)

// Pricing holds the charges applied on top of the items
type Pricing struct {
	TaxRate     decimal.Decimal // 0.08 = 8%
	DeliveryFee decimal.Decimal // flat, charged on non-empty carts
	Currency    string
}

type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	CouponCode   *string         `json:"coupon_code,omitempty"`
	CouponReason string          `json:"coupon_reason,omitempty"` // set when the attached coupon no longer applies
}

// CouponValid reports whether the attached coupon currently grants a discount
func (t Totals) CouponValid() bool {
	return t.CouponCode != nil && t.CouponReason == ""
}

// CalculateTotals is pure: same items, discount and pricing give the same totals.
//
//	subtotal = Σ price × qty
//	tax      = (subtotal − discount) × rate
//	total    = max(0, subtotal − discount + tax + fee)
func CalculateTotals(items []CartItem, discount decimal.Decimal, pricing Pricing) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = utils.RoundMoney(subtotal)

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	fee := decimal.Zero
	if len(items) > 0 {
		fee = pricing.DeliveryFee
	}

	tax := utils.RoundMoney(subtotal.Sub(discount).Mul(pricing.TaxRate))

	total := subtotal.Sub(discount).Add(tax).Add(fee)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:    subtotal,
		Discount:    discount,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       total,
		Currency:    pricing.Currency,
	}
}
