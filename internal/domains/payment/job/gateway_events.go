package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/domains/payment/service"
	"food-ordering-backend/internal/shared"
	"food-ordering-backend/internal/shared/utils"
	"food-ordering-backend/pkg/logger"
)

// Enqueuer is the slice of *asynq.Client used here
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ================================================
// ENQUEUE
// ================================================

type GatewayEventEnqueuer struct {
	client Enqueuer
}

func NewGatewayEventEnqueuer(client Enqueuer) *GatewayEventEnqueuer {
	return &GatewayEventEnqueuer{client: client}
}

func (e *GatewayEventEnqueuer) EnqueueGatewayEvent(ctx context.Context, eventKey string) error {
	task, err := utils.MarshalTask(shared.TypeProcessGatewayEvent, shared.GatewayEventPayload{EventKey: eventKey})
	if err != nil {
		return err
	}

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueuePayment),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
		asynq.TaskID("gateway-event:"+eventKey),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue gateway event: %w", err)
	}
	return nil
}

// ================================================
// PROCESS ONE EVENT
// ================================================

// ProcessGatewayEventHandler runs the reconciler for one stored webhook.
// Retry outcomes surface as errors so asynq backs off and redelivers.
type ProcessGatewayEventHandler struct {
	payments service.PaymentService
}

func NewProcessGatewayEventHandler(payments service.PaymentService) *ProcessGatewayEventHandler {
	return &ProcessGatewayEventHandler{payments: payments}
}

func (h *ProcessGatewayEventHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.GatewayEventPayload
	if err := utils.UnmarshalTask(t, &payload); err != nil {
		return err
	}

	outcome, err := h.payments.ProcessInboxEvent(ctx, payload.EventKey)
	if err != nil {
		logger.Warn("Gateway event processing will be retried", map[string]interface{}{
			"event_key": payload.EventKey,
			"error":     err.Error(),
		})
		return err
	}

	logger.Info("Gateway event processed", map[string]interface{}{
		"event_key": payload.EventKey,
		"outcome":   outcome.String(),
	})
	return nil
}

// ================================================
// PERIODIC RETRY SWEEP
// ================================================

// RetryGatewayEventsHandler picks up stored events whose task was lost
// or exhausted its retries.
type RetryGatewayEventsHandler struct {
	payments service.PaymentService
	minAge   time.Duration
}

func NewRetryGatewayEventsHandler(payments service.PaymentService, minAge time.Duration) *RetryGatewayEventsHandler {
	return &RetryGatewayEventsHandler{payments: payments, minAge: minAge}
}

func (h *RetryGatewayEventsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload := shared.SweepPayload{Limit: 50}
	if len(t.Payload()) > 0 {
		if err := utils.UnmarshalTask(t, &payload); err != nil {
			return err
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 50
	}

	count, err := h.payments.RetryUnprocessed(ctx, h.minAge, payload.Limit)
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Info("Retried gateway events", map[string]interface{}{
			"processed": count,
		})
	}
	return nil
}
