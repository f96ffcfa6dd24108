package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/payment/model"
)

// PaymentRepository persists payments. Joins the transaction in ctx.
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)

	// Update writes status, intent and error columns
	Update(ctx context.Context, payment *model.Payment) error
}

// InboxRepository stores raw webhook events before processing
type InboxRepository interface {
	// Save inserts the event. false when the same event key was already stored.
	Save(ctx context.Context, event *model.InboxEvent) (bool, error)

	GetByKey(ctx context.Context, eventKey string) (*model.InboxEvent, error)
	MarkProcessed(ctx context.Context, eventKey string, outcome string, at time.Time) error
	MarkAttemptFailed(ctx context.Context, eventKey string, cause string) error

	// ListUnprocessed returns events received before olderThan and not yet processed
	ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// MarkerRepository records which gateway events have taken effect
type MarkerRepository interface {
	Exists(ctx context.Context, eventKey string) (bool, error)

	// Insert returns false when the marker already existed
	Insert(ctx context.Context, eventKey, intentID, eventType string) (bool, error)
}
