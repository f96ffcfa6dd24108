package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	orderModel "food-ordering-backend/internal/domains/order/model"
	orderService "food-ordering-backend/internal/domains/order/service"
	"food-ordering-backend/internal/domains/payment/gateway"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/domains/payment/repository"
	"food-ordering-backend/internal/shared/utils"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

// =====================================================
// PAYMENT SERVICE IMPLEMENTATION
// =====================================================
type paymentService struct {
	gateway        gateway.Gateway
	payments       repository.PaymentRepository
	inbox          repository.InboxRepository
	reconciler     *Reconciler
	orders         orderService.OrderService
	enqueuer       EventEnqueuer
	tx             database.TxManager
	gatewayTimeout time.Duration
	now            func() time.Time
}

func NewPaymentService(
	gw gateway.Gateway,
	payments repository.PaymentRepository,
	inbox repository.InboxRepository,
	reconciler *Reconciler,
	orders orderService.OrderService,
	enqueuer EventEnqueuer,
	tx database.TxManager,
	gatewayTimeout time.Duration,
) PaymentService {
	return &paymentService{
		gateway:        gw,
		payments:       payments,
		inbox:          inbox,
		reconciler:     reconciler,
		orders:         orders,
		enqueuer:       enqueuer,
		tx:             tx,
		gatewayTimeout: gatewayTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// =====================================================
// INTENTS
// =====================================================

func (s *paymentService) RequestIntent(ctx context.Context, order *orderModel.Order) (*gateway.Intent, error) {
	if s.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
	}

	intent, err := s.gateway.CreateIntent(ctx, order.ID, utils.ToMinorUnits(order.Total), order.Currency)
	if err != nil {
		logger.ErrorWithFields("Payment intent creation failed", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
		return nil, model.NewGatewayUnavailableError(err)
	}
	return intent, nil
}

func (s *paymentService) RecordIntent(ctx context.Context, order *orderModel.Order, intent *gateway.Intent) (*model.Payment, error) {
	now := s.now()
	payment := &model.Payment{
		ID:           uuid.New(),
		OrderID:      order.ID,
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		Amount:       utils.RoundMoney(order.Total),
		AmountMinor:  utils.ToMinorUnits(order.Total),
		Currency:     order.Currency,
		Status:       model.StatusRequiresPaymentMethod,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

// RetryPayment only applies to failed payments of pending orders
// still inside their payment window.
func (s *paymentService) RetryPayment(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID, sessionID string) (*model.Handle, error) {
	// Step 1: order checks
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOwnedBy(userID, sessionID) {
		return nil, orderModel.ErrOrderNotFound
	}
	if order.Status != orderModel.OrderStatusPending {
		return nil, model.NewRetryNotAllowedError("order is no longer awaiting payment")
	}
	if order.PaymentStatus != orderModel.PaymentStatusFailed {
		return nil, model.NewRetryNotAllowedError("payment has not failed")
	}
	if order.PaymentDeadlinePassed(s.now()) {
		return nil, model.NewRetryNotAllowedError("payment window has closed")
	}

	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Step 2: same idempotency key, so usually the same intent comes back
	intent, err := s.RequestIntent(ctx, order)
	if err != nil {
		return nil, err
	}

	// Step 3: failed -> requires_payment_method, order failed -> processing
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		payment.IntentID = intent.IntentID
		payment.ClientSecret = intent.ClientSecret
		payment.Status = model.StatusRequiresPaymentMethod
		payment.ErrorCode = nil
		payment.ErrorMessage = nil
		payment.UpdatedAt = s.now()
		if err := s.payments.Update(ctx, payment); err != nil {
			return err
		}
		return s.orders.MarkPaymentProcessing(ctx, orderID)
	})
	if err != nil {
		return nil, fmt.Errorf("record payment retry: %w", err)
	}

	logger.Info("Payment retry issued", map[string]interface{}{
		"order_id":  orderID.String(),
		"intent_id": intent.IntentID,
	})

	handle := payment.Handle()
	return &handle, nil
}

// =====================================================
// WEBHOOK INBOX
// =====================================================

func (s *paymentService) IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	// Step 1: signature
	if !s.gateway.VerifyWebhookSignature(payload, signatureHeader) {
		return model.ErrInvalidSignature
	}

	// Step 2: envelope
	ev, err := model.ParseWebhook(payload)
	if err != nil {
		return err
	}

	// Step 3: persist before acknowledging
	inboxEvent := &model.InboxEvent{
		ID:         uuid.New(),
		EventKey:   ev.MarkerKey(),
		EventID:    ev.EventID,
		IntentID:   ev.IntentID,
		EventType:  ev.EventType,
		Created:    ev.Created,
		Payload:    ev.Payload,
		ReceivedAt: s.now(),
	}
	inserted, err := s.inbox.Save(ctx, inboxEvent)
	if err != nil {
		return err
	}
	if !inserted {
		logger.Debug("Duplicate webhook delivery", map[string]interface{}{
			"event_key": inboxEvent.EventKey,
		})
		return nil
	}

	// Step 4: hand off; the retry sweep covers enqueue failures
	if err := s.enqueuer.EnqueueGatewayEvent(ctx, inboxEvent.EventKey); err != nil {
		logger.ErrorWithFields("Failed to enqueue gateway event", err, map[string]interface{}{
			"event_key": inboxEvent.EventKey,
		})
	}

	return nil
}

func (s *paymentService) ProcessInboxEvent(ctx context.Context, eventKey string) (model.Outcome, error) {
	stored, err := s.inbox.GetByKey(ctx, eventKey)
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			return model.Ack, nil
		}
		return model.Retry, err
	}
	if stored.ProcessedAt != nil {
		return model.Ack, nil
	}

	outcome, err := s.reconciler.HandleGatewayEvent(ctx, stored.GatewayEvent())
	if outcome == model.Retry {
		cause := "retry requested"
		if err != nil {
			cause = err.Error()
		}
		if markErr := s.inbox.MarkAttemptFailed(ctx, eventKey, cause); markErr != nil {
			logger.Error("Failed to record gateway event attempt", markErr)
		}
		if err == nil {
			err = fmt.Errorf("gateway event %s: retry requested", eventKey)
		}
		return model.Retry, err
	}

	if err := s.inbox.MarkProcessed(ctx, eventKey, outcome.String(), s.now()); err != nil {
		// the marker makes reprocessing harmless
		return model.Retry, err
	}
	return model.Ack, nil
}

func (s *paymentService) RetryUnprocessed(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	keys, err := s.inbox.ListUnprocessed(ctx, s.now().Add(-minAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed gateway events: %w", err)
	}

	processed := 0
	for _, key := range keys {
		outcome, err := s.ProcessInboxEvent(ctx, key)
		if err != nil {
			logger.Warn("Gateway event still failing", map[string]interface{}{
				"event_key": key,
				"error":     err.Error(),
			})
			continue
		}
		if outcome == model.Ack {
			processed++
		}
	}
	return processed, nil
}
