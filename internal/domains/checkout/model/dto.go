package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	orderModel "food-ordering-backend/internal/domains/order/model"
)

// IdempotencyHeader lets clients retry a checkout safely
const IdempotencyHeader = "Idempotency-Key"

// CheckoutRequest is the body of POST /checkout
type CheckoutRequest struct {
	CartID          string                     `json:"cartId"`
	DeliveryAddress orderModel.DeliveryAddress `json:"deliveryAddress"`
}

func (r CheckoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CartID, validation.Required, is.UUID),
		validation.Field(&r.DeliveryAddress),
	)
}

// PaymentHandle is what the client needs to confirm payment
type PaymentHandle struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// Result is returned by a successful checkout
type Result struct {
	OrderID       uuid.UUID     `json:"orderId"`
	OrderNumber   string        `json:"orderNumber"`
	PaymentHandle PaymentHandle `json:"paymentHandle"`
}
