package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	orderModel "food-ordering-backend/internal/domains/order/model"
	orderRepo "food-ordering-backend/internal/domains/order/repository"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/domains/payment/repository"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/internal/shared/utils"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

// errAlreadyApplied aborts the transaction when a concurrent delivery won the marker
var errAlreadyApplied = errors.New("gateway event already applied")

// =====================================================
// PAYMENT RECONCILER
// =====================================================

// Reconciler applies gateway events to payments and orders exactly once
type Reconciler struct {
	markers   repository.MarkerRepository
	payments  repository.PaymentRepository
	orders    orderRepo.OrderRepository
	publisher events.Publisher
	tx        database.TxManager
	locker    cache.Locker
	lockTTL   time.Duration
	now       func() time.Time
}

func NewReconciler(
	markers repository.MarkerRepository,
	payments repository.PaymentRepository,
	orders orderRepo.OrderRepository,
	publisher events.Publisher,
	tx database.TxManager,
	locker cache.Locker,
	lockTTL time.Duration,
) *Reconciler {
	return &Reconciler{
		markers:   markers,
		payments:  payments,
		orders:    orders,
		publisher: publisher,
		tx:        tx,
		locker:    locker,
		lockTTL:   lockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleGatewayEvent returns Ack when the event took effect or never will,
// Retry when it must be delivered again.
func (r *Reconciler) HandleGatewayEvent(ctx context.Context, ev model.GatewayEvent) (model.Outcome, error) {
	key := ev.MarkerKey()

	// Step 1: idempotency marker
	done, err := r.markers.Exists(ctx, key)
	if err != nil {
		return model.Retry, err
	}
	if done {
		logger.Debug("Gateway event already processed", map[string]interface{}{
			"event_key": key,
		})
		return model.Ack, nil
	}

	// Step 2: unknown types are acknowledged with a marker only
	if ev.EventType != model.EventPaymentSucceeded && ev.EventType != model.EventPaymentFailed {
		if _, err := r.markers.Insert(ctx, key, ev.IntentID, ev.EventType); err != nil {
			return model.Retry, err
		}
		logger.Info("Ignoring unknown gateway event type", map[string]interface{}{
			"event_key":  key,
			"event_type": ev.EventType,
		})
		return model.Ack, nil
	}

	var data model.EventData
	if err := json.Unmarshal(ev.Payload, &data); err != nil {
		// never going to parse; do not retry forever
		logger.ErrorWithFields("Malformed gateway event payload", err, map[string]interface{}{
			"event_key": key,
		})
		return model.Ack, nil
	}

	// Step 3: the payment row must exist before its events can apply
	payment, err := r.payments.GetByIntentID(ctx, ev.IntentID)
	if err != nil {
		return model.Retry, fmt.Errorf("load payment for intent %s: %w", ev.IntentID, err)
	}

	// Step 4: serialize per order
	lock, err := r.locker.Acquire(ctx, orderModel.LockKey(payment.OrderID), r.lockTTL)
	if err != nil {
		return model.Retry, fmt.Errorf("lock order %s: %w", payment.OrderID, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	// Step 5: apply in one transaction with the marker
	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted, err := r.markers.Insert(ctx, key, ev.IntentID, ev.EventType)
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyApplied
		}

		// reload under the lock
		payment, err := r.payments.GetByIntentID(ctx, ev.IntentID)
		if err != nil {
			return err
		}
		order, err := r.orders.GetByID(ctx, payment.OrderID)
		if err != nil {
			return err
		}

		if ev.EventType == model.EventPaymentSucceeded {
			return r.applySucceeded(ctx, key, payment, order, data)
		}
		return r.applyFailed(ctx, key, payment, order, data)
	})
	if err != nil {
		if errors.Is(err, errAlreadyApplied) {
			return model.Ack, nil
		}
		return model.Retry, err
	}

	return model.Ack, nil
}

// advancePayment moves the order payment status to next, passing through
// processing when the intent was created but never recorded as such.
func advancePayment(order *orderModel.Order, next orderModel.PaymentStatus, now time.Time) error {
	if order.PaymentStatus == orderModel.PaymentStatusPending {
		if err := order.SetPaymentStatus(orderModel.PaymentStatusProcessing, now); err != nil {
			return err
		}
	}
	return order.SetPaymentStatus(next, now)
}

func (r *Reconciler) applySucceeded(
	ctx context.Context,
	key string,
	payment *model.Payment,
	order *orderModel.Order,
	data model.EventData,
) error {
	now := r.now()

	switch payment.Status {
	case model.StatusSucceeded, model.StatusRefunded, model.StatusRequiresReview:
		// another event id for an outcome already applied
		logger.Info("Payment already settled, marker only", map[string]interface{}{
			"event_key": key,
			"status":    string(payment.Status),
		})
		return nil
	}

	// Step 1: data integrity
	if data.Amount != payment.AmountMinor || !strings.EqualFold(data.Currency, payment.Currency) {
		payment.Status = model.StatusRequiresReview
		payment.UpdatedAt = now
		if err := r.payments.Update(ctx, payment); err != nil {
			return err
		}

		reason := orderModel.ReviewAmountMismatch
		if !strings.EqualFold(data.Currency, payment.Currency) {
			reason = orderModel.ReviewCurrencyMismatch
		}
		order.FlagForReview(reason, now)
		if err := r.orders.Update(ctx, order, nil); err != nil {
			return err
		}

		logger.Warn("Payment amount mismatch, order flagged for review", map[string]interface{}{
			"order_id":        order.ID.String(),
			"expected_amount": payment.AmountMinor,
			"received_amount": data.Amount,
			"expected_ccy":    payment.Currency,
			"received_ccy":    data.Currency,
		})
		return nil
	}

	// Step 2: payment
	payment.Status = model.StatusSucceeded
	payment.SucceededAt = &now
	payment.ErrorCode = nil
	payment.ErrorMessage = nil
	payment.UpdatedAt = now
	if err := r.payments.Update(ctx, payment); err != nil {
		return err
	}

	// Step 3: order
	if err := advancePayment(order, orderModel.PaymentStatusSucceeded, now); err != nil {
		return err
	}

	var history *orderModel.StatusHistory
	confirm := false
	switch order.Status {
	case orderModel.OrderStatusPending:
		h, err := order.Transition(orderModel.OrderStatusConfirmed, "", orderModel.ChangedByPayment, now)
		if err != nil {
			return err
		}
		history = h
		confirm = true
	case orderModel.OrderStatusCancelled:
		// money captured for an order we no longer fulfil
		order.FlagForReview(orderModel.ReviewPaidAfterCancel, now)
		logger.Warn("Payment succeeded after cancellation, refund required", map[string]interface{}{
			"order_id":  order.ID.String(),
			"intent_id": payment.IntentID,
		})
	}

	if err := r.orders.Update(ctx, order, history); err != nil {
		return err
	}

	// Step 4: events, PaymentSucceeded always precedes OrderConfirmed
	if err := r.publish(ctx, events.TypePaymentSucceeded, order.ID.String(), events.PaymentSucceeded{
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		IntentID:    payment.IntentID,
		Amount:      utils.FromMinorUnits(payment.AmountMinor),
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
	}); err != nil {
		return err
	}

	if confirm {
		if err := r.publish(ctx, events.TypeOrderConfirmed, order.ID.String(), events.OrderConfirmed{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			ConfirmedAt: now,
		}); err != nil {
			return err
		}
	}

	logger.Info("Payment succeeded", map[string]interface{}{
		"order_id":  order.ID.String(),
		"intent_id": payment.IntentID,
		"confirmed": confirm,
	})
	return nil
}

func (r *Reconciler) applyFailed(
	ctx context.Context,
	key string,
	payment *model.Payment,
	order *orderModel.Order,
	data model.EventData,
) error {
	now := r.now()

	// a terminal success is never overwritten by a late failure
	if payment.Status != model.StatusRequiresPaymentMethod && payment.Status != model.StatusFailed {
		logger.Info("Late payment failure ignored", map[string]interface{}{
			"event_key": key,
			"status":    string(payment.Status),
		})
		return nil
	}

	// Step 1: payment
	code := data.ErrorCode
	if code == "" {
		code = "payment_failed"
	}
	payment.Status = model.StatusFailed
	payment.ErrorCode = &code
	if data.ErrorMessage != "" {
		payment.ErrorMessage = &data.ErrorMessage
	}
	payment.FailedAt = &now
	payment.UpdatedAt = now
	if err := r.payments.Update(ctx, payment); err != nil {
		return err
	}

	// Step 2: order payment status only, the status stays pending
	if order.PaymentStatus == orderModel.PaymentStatusPending || order.PaymentStatus == orderModel.PaymentStatusProcessing {
		if err := advancePayment(order, orderModel.PaymentStatusFailed, now); err != nil {
			return err
		}
		if err := r.orders.Update(ctx, order, nil); err != nil {
			return err
		}
	}

	// Step 3: event
	if err := r.publish(ctx, events.TypePaymentFailed, order.ID.String(), events.PaymentFailed{
		OrderID:      order.ID,
		PaymentID:    payment.ID,
		IntentID:     payment.IntentID,
		UserID:       order.UserID,
		ErrorCode:    code,
		ErrorMessage: data.ErrorMessage,
	}); err != nil {
		return err
	}

	logger.Info("Payment failed", map[string]interface{}{
		"order_id":   order.ID.String(),
		"intent_id":  payment.IntentID,
		"error_code": code,
	})
	return nil
}

func (r *Reconciler) publish(ctx context.Context, messageType, aggregateID string, payload interface{}) error {
	msg, err := events.New(messageType, aggregateID, payload)
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", messageType, err)
	}
	return nil
}
