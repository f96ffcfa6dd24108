package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	orderModel "food-ordering-backend/internal/domains/order/model"
	orderRepo "food-ordering-backend/internal/domains/order/repository"
	"food-ordering-backend/internal/domains/payment/gateway"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/domains/payment/repository"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

// =====================================================
// REFUND SERVICE IMPLEMENTATION
// =====================================================

type RefundConfig struct {
	LockTTL        time.Duration
	GatewayTimeout time.Duration
}

type refundService struct {
	gateway   gateway.Gateway
	payments  repository.PaymentRepository
	orders    orderRepo.OrderRepository
	publisher events.Publisher
	tx        database.TxManager
	locker    cache.Locker
	cfg       RefundConfig
	now       func() time.Time
}

func NewRefundService(
	gw gateway.Gateway,
	payments repository.PaymentRepository,
	orders orderRepo.OrderRepository,
	publisher events.Publisher,
	tx database.TxManager,
	locker cache.Locker,
	cfg RefundConfig,
) RefundService {
	return &refundService{
		gateway:   gw,
		payments:  payments,
		orders:    orders,
		publisher: publisher,
		tx:        tx,
		locker:    locker,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// refundableOrder: money is only returned for orders that will not be fulfilled
// or were already delivered and disputed
func refundableOrder(status orderModel.OrderStatus) bool {
	return status == orderModel.OrderStatusCancelled || status == orderModel.OrderStatusDelivered
}

// RefundOrder returns the full captured amount of an order.
//
// Business Logic:
// 1. Validate request and lock the order against webhooks and expiry
// 2. Payment must be succeeded, order cancelled or delivered
// 3. Gateway refund, idempotent per payment
// 4. Payment and order move to refunded, review flag cleared, PaymentRefunded published
//
// A repeated call on a refunded payment returns the stored result.
func (s *refundService) RefundOrder(
	ctx context.Context,
	orderID uuid.UUID,
	adminID uuid.UUID,
	req model.RefundOrderRequest,
) (*model.RefundResult, error) {
	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRefundError(err)
	}

	lock, err := s.locker.Acquire(ctx, orderModel.LockKey(orderID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return nil, model.NewRefundNotAllowedError("order is being updated, try again")
		}
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	// Step 2: Eligibility
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if payment.Status == model.StatusRefunded {
		return payment.RefundResult(), nil
	}
	if payment.Status != model.StatusSucceeded {
		return nil, model.NewRefundNotAllowedError(fmt.Sprintf("payment is %s, only succeeded payments can be refunded", payment.Status))
	}
	if !refundableOrder(order.Status) {
		return nil, model.NewRefundNotAllowedError(fmt.Sprintf("order is %s, cancel it before refunding", order.Status))
	}

	// Step 3: Gateway refund
	refund, err := s.requestRefund(ctx, payment, req.Reason)
	if err != nil {
		logger.ErrorWithFields("Gateway refund failed", err, map[string]interface{}{
			"order_id":   orderID.String(),
			"payment_id": payment.ID.String(),
		})
		return nil, model.NewGatewayUnavailableError(err)
	}

	// Step 4: Record it
	now := s.now()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := payment.MarkRefunded(refund.RefundID, req.Reason, adminID, now); err != nil {
			return err
		}
		if err := s.payments.Update(ctx, payment); err != nil {
			return err
		}

		if err := order.SetPaymentStatus(orderModel.PaymentStatusRefunded, now); err != nil {
			return err
		}
		if order.NeedsReview {
			order.ResolveReview(now)
		}
		if err := s.orders.Update(ctx, order, nil); err != nil {
			return err
		}

		msg, err := events.New(events.TypePaymentRefunded, order.ID.String(), events.PaymentRefunded{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			PaymentID:   payment.ID,
			UserID:      order.UserID,
			RefundID:    refund.RefundID,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			Reason:      req.Reason,
		})
		if err != nil {
			return err
		}
		return s.publisher.Publish(ctx, msg)
	})
	if err != nil {
		// the gateway refund stands; a retry gets the same refund id back
		logger.ErrorWithFields("Failed to record refund", err, map[string]interface{}{
			"order_id":  orderID.String(),
			"refund_id": refund.RefundID,
		})
		return nil, fmt.Errorf("record refund: %w", err)
	}

	logger.Info("Order refunded", map[string]interface{}{
		"order_id":  orderID.String(),
		"refund_id": refund.RefundID,
		"admin_id":  adminID.String(),
		"amount":    payment.Amount.String(),
	})

	return payment.RefundResult(), nil
}

func (s *refundService) requestRefund(ctx context.Context, payment *model.Payment, reason string) (*gateway.Refund, error) {
	if s.cfg.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
	}

	return s.gateway.Refund(ctx, gateway.RefundRequest{
		PaymentID:   payment.ID,
		IntentID:    payment.IntentID,
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
		Reason:      reason,
	})
}
