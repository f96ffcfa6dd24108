package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (a DeliveryAddress) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.RecipientName, validation.Required, validation.Length(1, 100)),
		validation.Field(&a.Phone, validation.Required, validation.Length(6, 20)),
		validation.Field(&a.Line1, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.Line2, validation.Length(0, 200)),
		validation.Field(&a.City, validation.Required, validation.Length(1, 100)),
		validation.Field(&a.PostalCode, validation.Required, validation.Length(2, 20)),
		validation.Field(&a.Notes, validation.Length(0, 500)),
	)
}

// =====================================================
// CREATE ORDER INPUT (checkout)
// =====================================================

// CreateOrderInput is the frozen cart handed over by checkout
type CreateOrderInput struct {
	CartID          uuid.UUID
	UserID          *uuid.UUID
	SessionID       *string
	Items           []OrderItem
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxAmount       decimal.Decimal
	DeliveryFee     decimal.Decimal
	Total           decimal.Decimal
	Currency        string
	CouponCode      *string
	DeliveryAddress DeliveryAddress
}

// =====================================================
// UPDATE ORDER STATUS REQUEST (Admin)
// =====================================================
type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (req UpdateOrderStatusRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Status, validation.Required, validation.In(
			string(OrderStatusConfirmed),
			string(OrderStatusPreparing),
			string(OrderStatusOutForDelivery),
			string(OrderStatusDelivered),
			string(OrderStatusCancelled),
		)),
		validation.Field(&req.Reason, validation.Length(0, 500)),
	)
}

// =====================================================
// LIST
// =====================================================
type OrderListItem struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
}
