package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/domains/order/service"
	"food-ordering-backend/internal/shared"
	"food-ordering-backend/internal/shared/utils"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/logger"
)

// ================================================
// PAYMENT DEADLINE
// ================================================

// Enqueuer is the slice of *asynq.Client used here
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DeadlineScheduler arms one delayed task per order
type DeadlineScheduler struct {
	client Enqueuer
}

func NewDeadlineScheduler(client Enqueuer) *DeadlineScheduler {
	return &DeadlineScheduler{client: client}
}

func (s *DeadlineScheduler) SchedulePaymentDeadline(ctx context.Context, orderID uuid.UUID, orderNumber string, deadline time.Time) error {
	task, err := utils.MarshalTask(shared.TypePaymentDeadline, shared.PaymentDeadlinePayload{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		DeadlineAt:  deadline,
	})
	if err != nil {
		return err
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueCritical),
		asynq.MaxRetry(5),
		asynq.ProcessAt(deadline),
		asynq.TaskID("deadline:"+orderID.String()),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue payment deadline: %w", err)
	}

	logger.Info("Scheduled payment deadline", map[string]interface{}{
		"order_id":     orderID.String(),
		"order_number": orderNumber,
		"deadline_at":  deadline,
	})
	return nil
}

// PaymentDeadlineHandler cancels an order whose payment window closed
type PaymentDeadlineHandler struct {
	orders service.OrderService
}

func NewPaymentDeadlineHandler(orders service.OrderService) *PaymentDeadlineHandler {
	return &PaymentDeadlineHandler{orders: orders}
}

func (h *PaymentDeadlineHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.PaymentDeadlinePayload
	if err := utils.UnmarshalTask(t, &payload); err != nil {
		return err
	}

	expired, err := h.orders.ExpireUnpaid(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			// a webhook is touching this order right now
			return fmt.Errorf("order %s busy: %w", payload.OrderID, err)
		}
		logger.ErrorWithFields("Payment deadline processing failed", err, map[string]interface{}{
			"order_id": payload.OrderID.String(),
		})
		return fmt.Errorf("expire order %s: %w", payload.OrderID, err)
	}

	logger.Info("Payment deadline processed", map[string]interface{}{
		"order_id":     payload.OrderID.String(),
		"order_number": payload.OrderNumber,
		"expired":      expired,
	})
	return nil
}

// ExpireUnpaidOrdersHandler is the periodic safety net for deadline tasks
// that were never enqueued or exhausted their retries.
type ExpireUnpaidOrdersHandler struct {
	orders service.OrderService
}

func NewExpireUnpaidOrdersHandler(orders service.OrderService) *ExpireUnpaidOrdersHandler {
	return &ExpireUnpaidOrdersHandler{orders: orders}
}

func (h *ExpireUnpaidOrdersHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload := shared.SweepPayload{Limit: 100}
	if len(t.Payload()) > 0 {
		if err := utils.UnmarshalTask(t, &payload); err != nil {
			return err
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}

	count, err := h.orders.ExpireOverdue(ctx, payload.Limit)
	if err != nil {
		return fmt.Errorf("expire overdue orders: %w", err)
	}

	if count > 0 {
		logger.Info("Expired unpaid orders", map[string]interface{}{
			"count": count,
		})
	}
	return nil
}
