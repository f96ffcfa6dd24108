package gateway

import (
	"context"

	"github.com/google/uuid"
)

// =====================================================
// GATEWAY INTERFACE
// =====================================================

// Intent is the gateway-side payment object for one order
type Intent struct {
	IntentID     string
	ClientSecret string
}

// RefundRequest is always for the full captured amount
type RefundRequest struct {
	PaymentID   uuid.UUID
	IntentID    string
	AmountMinor int64
	Currency    string
	Reason      string
}

type Refund struct {
	RefundID string
	Status   string
}

// Gateway wraps the external payment processor
type Gateway interface {
	// CreateIntent is idempotent per order: the same order id
	// always maps to the same intent on the processor side.
	CreateIntent(ctx context.Context, orderID uuid.UUID, amountMinor int64, currency string) (*Intent, error)

	// Refund returns captured money for a succeeded intent. Idempotent per payment.
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)

	// VerifyWebhookSignature checks the signature header against the raw body
	VerifyWebhookSignature(payload []byte, header string) bool
}

// IdempotencyKey is sent with every intent creation request
func IdempotencyKey(orderID uuid.UUID) string {
	return "order-" + orderID.String()
}

// RefundIdempotencyKey is sent with every refund request
func RefundIdempotencyKey(paymentID uuid.UUID) string {
	return "refund-" + paymentID.String()
}
