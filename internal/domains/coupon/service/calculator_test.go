package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"food-ordering-backend/internal/domains/coupon/model"
)

func TestDiscountCalculator_Calculate(t *testing.T) {
	calc := NewDiscountCalculator()
	capAmount := dec("50")

	tests := []struct {
		name   string
		coupon *model.Coupon
		total  string
		want   string
	}{
		{
			name:   "fixed below total",
			coupon: &model.Coupon{DiscountType: model.DiscountTypeFixed, DiscountValue: dec("20")},
			total:  "150",
			want:   "20",
		},
		{
			name:   "fixed never exceeds total",
			coupon: &model.Coupon{DiscountType: model.DiscountTypeFixed, DiscountValue: dec("20")},
			total:  "12.50",
			want:   "12.50",
		},
		{
			name:   "percentage capped",
			coupon: &model.Coupon{DiscountType: model.DiscountTypePercentage, DiscountValue: dec("15"), MaxDiscountAmount: &capAmount},
			total:  "500",
			want:   "50",
		},
		{
			name:   "percentage under cap",
			coupon: &model.Coupon{DiscountType: model.DiscountTypePercentage, DiscountValue: dec("15"), MaxDiscountAmount: &capAmount},
			total:  "100",
			want:   "15",
		},
		{
			name:   "percentage rounds half up to cents",
			coupon: &model.Coupon{DiscountType: model.DiscountTypePercentage, DiscountValue: dec("10")},
			total:  "10.05",
			want:   "1.01",
		},
		{
			name:   "unknown type",
			coupon: &model.Coupon{DiscountType: "bogus", DiscountValue: dec("10")},
			total:  "100",
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Calculate(tt.coupon, dec(tt.total))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}
