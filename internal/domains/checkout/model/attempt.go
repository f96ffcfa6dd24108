package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus records how far a checkout got
type AttemptStatus string

const (
	AttemptStarted        AttemptStatus = "started"
	AttemptCouponRedeemed AttemptStatus = "coupon_redeemed"
	AttemptOrderCreated   AttemptStatus = "order_created"
	AttemptCompleted      AttemptStatus = "completed"
	AttemptFailed         AttemptStatus = "failed"
)

func (s AttemptStatus) InProgress() bool {
	return s == AttemptStarted || s == AttemptCouponRedeemed || s == AttemptOrderCreated
}

// Attempt is one checkout try for a cart, keyed by (cart id, idempotency key)
type Attempt struct {
	ID              uuid.UUID
	CartID          uuid.UUID
	IdempotencyKey  string
	Status          AttemptStatus
	CouponCode      *string
	CouponRedeemed  bool
	CouponReleased  bool
	OrderID         *uuid.UUID
	OrderNumber     *string
	PaymentIntentID *string
	ClientSecret    *string
	ErrorCode       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OwesCoupon is true while a redeemed slot has neither been released nor
// handed to an order
func (a *Attempt) OwesCoupon() bool {
	return a.CouponRedeemed && !a.CouponReleased && a.OrderID == nil
}

// Result rebuilds the stored response of a completed attempt
func (a *Attempt) Result() *Result {
	if a.Status != AttemptCompleted || a.OrderID == nil {
		return nil
	}
	r := &Result{OrderID: *a.OrderID}
	if a.OrderNumber != nil {
		r.OrderNumber = *a.OrderNumber
	}
	if a.PaymentIntentID != nil {
		r.PaymentHandle.IntentID = *a.PaymentIntentID
	}
	if a.ClientSecret != nil {
		r.PaymentHandle.ClientSecret = *a.ClientSecret
	}
	return r
}
