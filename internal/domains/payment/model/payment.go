package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status mirrors the gateway intent lifecycle
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusSucceeded             Status = "succeeded"
	StatusFailed                Status = "failed"
	StatusRequiresReview        Status = "requires_review"
	StatusRefunded              Status = "refunded"
)

var statusTransitions = map[Status][]Status{
	StatusRequiresPaymentMethod: {StatusSucceeded, StatusFailed, StatusRequiresReview},
	StatusFailed:                {StatusRequiresPaymentMethod, StatusSucceeded, StatusRequiresReview},
	StatusSucceeded:             {StatusRefunded},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment links an order to a gateway intent
type Payment struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	IntentID     string          `json:"intent_id"`
	ClientSecret string          `json:"-"`
	Amount       decimal.Decimal `json:"amount"`
	AmountMinor  int64           `json:"amount_minor"`
	Currency     string          `json:"currency"`
	Status       Status          `json:"status"`
	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	SucceededAt  *time.Time      `json:"succeeded_at,omitempty"`
	FailedAt     *time.Time      `json:"failed_at,omitempty"`

	RefundID     *string    `json:"refund_id,omitempty"`
	RefundReason *string    `json:"refund_reason,omitempty"`
	RefundedBy   *uuid.UUID `json:"refunded_by,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
}

// MarkRefunded moves a succeeded payment to refunded
func (p *Payment) MarkRefunded(refundID, reason string, adminID uuid.UUID, now time.Time) error {
	if !p.Status.CanTransitionTo(StatusRefunded) {
		return NewRefundNotAllowedError(fmt.Sprintf("payment is %s", p.Status))
	}
	p.Status = StatusRefunded
	p.RefundID = &refundID
	p.RefundReason = &reason
	p.RefundedBy = &adminID
	p.RefundedAt = &now
	p.UpdatedAt = now
	return nil
}

// Handle is what the client needs to confirm the payment.
// Never contains the gateway secret key.
type Handle struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

func (p *Payment) Handle() Handle {
	return Handle{IntentID: p.IntentID, ClientSecret: p.ClientSecret}
}

// =====================================================
// GATEWAY EVENTS
// =====================================================

// Gateway event types
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

// GatewayEvent is one webhook callback after signature verification
type GatewayEvent struct {
	EventID   string
	IntentID  string
	EventType string
	Created   int64
	Payload   json.RawMessage
}

// MarkerKey identifies the event for idempotency.
// Gateways without unique event ids fall back to intent, type and the
// event's creation time: a retried payment reuses its intent, so a second
// failure must not collide with the first.
func (e GatewayEvent) MarkerKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.IntentID + ":" + e.EventType + ":" + strconv.FormatInt(e.Created, 10)
}

// WebhookBody is the gateway callback document
type WebhookBody struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// EventData is the intent snapshot inside a webhook
type EventData struct {
	IntentID     string `json:"intent_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ParseWebhook turns a raw verified body into a GatewayEvent
func ParseWebhook(raw []byte) (GatewayEvent, error) {
	var body WebhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return GatewayEvent{}, ErrMalformedEvent
	}

	var data EventData
	if len(body.Data) > 0 {
		if err := json.Unmarshal(body.Data, &data); err != nil {
			return GatewayEvent{}, ErrMalformedEvent
		}
	}
	if body.Type == "" || data.IntentID == "" {
		return GatewayEvent{}, ErrMalformedEvent
	}

	return GatewayEvent{
		EventID:   body.ID,
		IntentID:  data.IntentID,
		EventType: body.Type,
		Created:   body.Created,
		Payload:   body.Data,
	}, nil
}

// Outcome tells the caller whether the event is done
type Outcome int

const (
	Ack Outcome = iota
	Retry
)

func (o Outcome) String() string {
	if o == Ack {
		return "ack"
	}
	return "retry"
}

// InboxEvent is a persisted webhook awaiting processing
type InboxEvent struct {
	ID          uuid.UUID
	EventKey    string
	EventID     string
	IntentID    string
	EventType   string
	Created     int64
	Payload     json.RawMessage
	ReceivedAt  time.Time
	ProcessedAt *time.Time
	Outcome     *string
	Attempts    int
	LastError   *string
}

func (e *InboxEvent) GatewayEvent() GatewayEvent {
	return GatewayEvent{
		EventID:   e.EventID,
		IntentID:  e.IntentID,
		EventType: e.EventType,
		Created:   e.Created,
		Payload:   e.Payload,
	}
}
