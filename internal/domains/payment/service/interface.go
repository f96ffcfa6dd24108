package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	orderModel "food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/domains/payment/gateway"
	"food-ordering-backend/internal/domains/payment/model"
)

// PaymentService defines payment operations used by checkout, handlers and jobs
type PaymentService interface {
	// RequestIntent asks the gateway for an intent, bounded by the configured timeout
	RequestIntent(ctx context.Context, order *orderModel.Order) (*gateway.Intent, error)

	// RecordIntent stores the payment row for a fresh intent. Joins the tx in ctx.
	RecordIntent(ctx context.Context, order *orderModel.Order, intent *gateway.Intent) (*model.Payment, error)

	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)

	// RetryPayment re-issues the intent of a pending order whose payment failed
	RetryPayment(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID, sessionID string) (*model.Handle, error)

	// IngestWebhook verifies and durably stores a gateway callback
	IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) error

	// ProcessInboxEvent runs the reconciler on a stored event
	ProcessInboxEvent(ctx context.Context, eventKey string) (model.Outcome, error)

	// RetryUnprocessed reprocesses stored events older than minAge
	RetryUnprocessed(ctx context.Context, minAge time.Duration, limit int) (int, error)
}

// RefundService returns captured money on staff request
type RefundService interface {
	// RefundOrder refunds the full payment of a cancelled or delivered order
	RefundOrder(ctx context.Context, orderID uuid.UUID, adminID uuid.UUID, req model.RefundOrderRequest) (*model.RefundResult, error)
}

// EventEnqueuer hands a stored gateway event to the background worker
type EventEnqueuer interface {
	EnqueueGatewayEvent(ctx context.Context, eventKey string) error
}
