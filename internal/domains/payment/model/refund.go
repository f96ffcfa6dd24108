package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundOrderRequest is the admin request body. Refunds are always full.
type RefundOrderRequest struct {
	Reason string `json:"reason"`
}

func (r RefundOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Required, validation.Length(3, 500)),
	)
}

// RefundResult describes a completed refund
type RefundResult struct {
	OrderID    uuid.UUID       `json:"orderId"`
	PaymentID  uuid.UUID       `json:"paymentId"`
	RefundID   string          `json:"refundId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason"`
	RefundedAt time.Time       `json:"refundedAt"`
}

func (p *Payment) RefundResult() *RefundResult {
	r := &RefundResult{
		OrderID:   p.OrderID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}
	if p.RefundID != nil {
		r.RefundID = *p.RefundID
	}
	if p.RefundReason != nil {
		r.Reason = *p.RefundReason
	}
	if p.RefundedAt != nil {
		r.RefundedAt = *p.RefundedAt
	}
	return r
}
