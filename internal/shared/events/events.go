package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Message types carried on the broker
const (
	TypeOrderCreated     = "OrderCreated"
	TypeOrderConfirmed   = "OrderConfirmed"
	TypeOrderCancelled   = "OrderCancelled"
	TypePaymentSucceeded = "PaymentSucceeded"
	TypePaymentFailed    = "PaymentFailed"
	TypePaymentRefunded  = "PaymentRefunded"
)

var ErrMalformedEnvelope = errors.New("malformed message envelope")

// Message is one broker message. Body is the wire form:
// a flat JSON object {messageId, createdAt, messageType, ...payload}.
type Message struct {
	MessageID   uuid.UUID
	CreatedAt   time.Time
	MessageType string
	AggregateID string
	Body        []byte
}

// Publisher durably records a message for at-least-once delivery.
// Implementations join the transaction carried by ctx.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler consumes one decoded message
type Handler func(ctx context.Context, msg Message) error

type header struct {
	MessageID   uuid.UUID `json:"messageId"`
	CreatedAt   time.Time `json:"createdAt"`
	MessageType string    `json:"messageType"`
}

// New builds a message whose body is payload flattened into the envelope
func New(messageType, aggregateID string, payload interface{}) (Message, error) {
	msg := Message{
		MessageID:   uuid.New(),
		CreatedAt:   time.Now().UTC(),
		MessageType: messageType,
		AggregateID: aggregateID,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", messageType, err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("%s payload must be a JSON object: %w", messageType, err)
	}

	fields["messageId"], _ = json.Marshal(msg.MessageID)
	fields["createdAt"], _ = json.Marshal(msg.CreatedAt)
	fields["messageType"], _ = json.Marshal(msg.MessageType)

	if msg.Body, err = json.Marshal(fields); err != nil {
		return Message{}, fmt.Errorf("marshal %s envelope: %w", messageType, err)
	}

	return msg, nil
}

// Decode reads the envelope fields out of a wire body
func Decode(body []byte) (Message, error) {
	var h header
	if err := json.Unmarshal(body, &h); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if h.MessageID == uuid.Nil || h.MessageType == "" {
		return Message{}, fmt.Errorf("%w: missing messageId or messageType", ErrMalformedEnvelope)
	}

	return Message{
		MessageID:   h.MessageID,
		CreatedAt:   h.CreatedAt,
		MessageType: h.MessageType,
		Body:        body,
	}, nil
}

// DecodePayload unmarshals the payload fields of msg into dest
func (m Message) DecodePayload(dest interface{}) error {
	return json.Unmarshal(m.Body, dest)
}

// =====================================================
// PAYLOADS
// =====================================================

type OrderItemPayload struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type OrderCreated struct {
	OrderID     uuid.UUID          `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	UserID      *uuid.UUID         `json:"userId,omitempty"`
	Total       decimal.Decimal    `json:"total"`
	Currency    string             `json:"currency"`
	CouponCode  *string            `json:"couponCode,omitempty"`
	Items       []OrderItemPayload `json:"items"`
}

type OrderConfirmed struct {
	OrderID     uuid.UUID  `json:"orderId"`
	OrderNumber string     `json:"orderNumber"`
	UserID      *uuid.UUID `json:"userId,omitempty"`
	ConfirmedAt time.Time  `json:"confirmedAt"`
}

type OrderCancelled struct {
	OrderID     uuid.UUID  `json:"orderId"`
	OrderNumber string     `json:"orderNumber"`
	UserID      *uuid.UUID `json:"userId,omitempty"`
	Reason      string     `json:"reason"`
}

type PaymentSucceeded struct {
	OrderID     uuid.UUID       `json:"orderId"`
	PaymentID   uuid.UUID       `json:"paymentId"`
	IntentID    string          `json:"intentId"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amountMinor"`
	Currency    string          `json:"currency"`
}

type PaymentFailed struct {
	OrderID      uuid.UUID  `json:"orderId"`
	PaymentID    uuid.UUID  `json:"paymentId"`
	IntentID     string     `json:"intentId"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	ErrorCode    string     `json:"errorCode"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type PaymentRefunded struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	PaymentID   uuid.UUID       `json:"paymentId"`
	UserID      *uuid.UUID      `json:"userId,omitempty"`
	RefundID    string          `json:"refundId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason"`
}
