package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment lifecycle
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// orderTransitions: forward one step at a time, cancelled from any non-terminal state
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is tracked independently of OrderStatus
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// paymentTransitions: failed -> processing is a payment retry,
// failed -> succeeded a card retried client-side on the same intent.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusFailed:     {PaymentStatusProcessing, PaymentStatusSucceeded},
	PaymentStatusSucceeded:  {PaymentStatusRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

// DeliveryAddress is stored as JSONB on the order
type DeliveryAddress struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2,omitempty"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	Notes         string `json:"notes,omitempty"`
}

// Order is an immutable snapshot of a cart plus mutable status fields
type Order struct {
	ID          uuid.UUID  `json:"id"`
	OrderNumber string     `json:"order_number"`
	CartID      uuid.UUID  `json:"cart_id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	SessionID   *string    `json:"-"`

	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	// Pricing
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	CouponCode     *string         `json:"coupon_code,omitempty"`

	DeliveryAddress DeliveryAddress `json:"delivery_address"`
	Items           []OrderItem     `json:"items"`

	NeedsReview        bool       `json:"needs_review"`
	ReviewReason       *string    `json:"review_reason,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CouponReleasedAt   *time.Time `json:"-"`
	PaymentDeadlineAt  time.Time  `json:"payment_deadline_at"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Version int `json:"version"`
}

// OrderItem is a frozen copy of a cart line
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"image_url"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// StatusHistory records every status change
type StatusHistory struct {
	ID         uuid.UUID    `json:"id"`
	OrderID    uuid.UUID    `json:"order_id"`
	FromStatus *OrderStatus `json:"from_status,omitempty"`
	ToStatus   OrderStatus  `json:"to_status"`
	Reason     *string      `json:"reason,omitempty"`
	ChangedBy  string       `json:"changed_by"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Who changed an order
const (
	ChangedBySystem   = "system"
	ChangedByCheckout = "checkout"
	ChangedByPayment  = "payment"
)

// Cancellation reasons
const (
	ReasonGatewayUnavailable = "gateway_unavailable"
	ReasonPaymentTimeout     = "payment_timeout"
	ReasonCheckoutAbandoned  = "checkout_abandoned"
)

// Review reasons
const (
	ReviewAmountMismatch   = "payment_amount_mismatch"
	ReviewPaidAfterCancel  = "payment_succeeded_after_cancellation"
	ReviewCurrencyMismatch = "payment_currency_mismatch"
)

// Transition validates and applies a status change, stamping timestamps.
// Returns the history row to persist.
func (o *Order) Transition(next OrderStatus, reason, changedBy string, now time.Time) (*StatusHistory, error) {
	if !o.Status.CanTransitionTo(next) {
		return nil, NewInvalidTransitionError(o.Status, next)
	}

	from := o.Status
	o.Status = next
	o.UpdatedAt = now

	switch next {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
		if reason != "" {
			o.CancellationReason = &reason
		}
	}

	h := &StatusHistory{
		ID:         uuid.New(),
		OrderID:    o.ID,
		FromStatus: &from,
		ToStatus:   next,
		ChangedBy:  changedBy,
		CreatedAt:  now,
	}
	if reason != "" {
		h.Reason = &reason
	}
	return h, nil
}

// SetPaymentStatus validates and applies a payment status change
func (o *Order) SetPaymentStatus(next PaymentStatus, now time.Time) error {
	if o.PaymentStatus == next {
		return nil
	}
	if !o.PaymentStatus.CanTransitionTo(next) {
		return NewInvalidPaymentTransitionError(o.PaymentStatus, next)
	}
	o.PaymentStatus = next
	o.UpdatedAt = now
	return nil
}

// FlagForReview marks the order for manual handling. Never auto-resolved.
func (o *Order) FlagForReview(reason string, now time.Time) {
	o.NeedsReview = true
	o.ReviewReason = &reason
	o.UpdatedAt = now
}

// ResolveReview clears the review flag once staff have acted on it
func (o *Order) ResolveReview(now time.Time) {
	o.NeedsReview = false
	o.ReviewReason = nil
	o.UpdatedAt = now
}

func (o *Order) IsOwnedBy(userID *uuid.UUID, sessionID string) bool {
	if userID != nil && o.UserID != nil {
		return *o.UserID == *userID
	}
	if sessionID != "" && o.SessionID != nil {
		return *o.SessionID == sessionID
	}
	return false
}

func (o *Order) PaymentDeadlinePassed(now time.Time) bool {
	return !now.Before(o.PaymentDeadlineAt)
}

// LockKey serializes every writer of one order (webhooks, deadline expiry, admin)
func LockKey(orderID uuid.UUID) string {
	return "lock:order:" + orderID.String()
}
