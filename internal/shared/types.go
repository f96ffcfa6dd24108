package shared

import (
	"time"

	"github.com/google/uuid"
)

// Asynq task types
const (
	TypeProcessGatewayEvent     = "payment:process_gateway_event"
	TypeRetryGatewayEvents      = "payment:retry_gateway_events"
	TypePaymentDeadline         = "order:payment_deadline"
	TypeExpireUnpaidOrders      = "order:expire_unpaid"
	TypeRecoverCheckoutAttempts = "checkout:recover_attempts"
	TypeCleanupNotifications    = "notification:cleanup_old"
)

// Asynq queues
const (
	QueueCritical    = "critical"
	QueuePayment     = "payment"
	QueueDefault     = "default"
	QueueMaintenance = "low"
)

// GatewayEventPayload points at a persisted gateway_events row
type GatewayEventPayload struct {
	EventKey string `json:"eventKey"`
}

// PaymentDeadlinePayload fires once the payment window of an order closes
type PaymentDeadlinePayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	DeadlineAt  time.Time `json:"deadlineAt"`
}

// SweepPayload bounds periodic maintenance jobs
type SweepPayload struct {
	Limit int `json:"limit"`
}
