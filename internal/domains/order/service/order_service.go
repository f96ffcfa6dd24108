package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	couponService "food-ordering-backend/internal/domains/coupon/service"
	"food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/domains/order/repository"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/internal/shared/utils"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

const maxOrderNumberAttempts = 5

// Config holds order timing settings
type Config struct {
	PaymentDeadline time.Duration
	LockTTL         time.Duration
}

// =====================================================
// ORDER SERVICE IMPLEMENTATION
// =====================================================
type orderService struct {
	repo      repository.OrderRepository
	coupons   couponService.Ledger
	publisher events.Publisher
	tx        database.TxManager
	locker    cache.Locker
	scheduler DeadlineScheduler
	cfg       Config
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	repo repository.OrderRepository,
	coupons couponService.Ledger,
	publisher events.Publisher,
	tx database.TxManager,
	locker cache.Locker,
	scheduler DeadlineScheduler,
	cfg Config,
) OrderService {
	return &orderService{
		repo:      repo,
		coupons:   coupons,
		publisher: publisher,
		tx:        tx,
		locker:    locker,
		scheduler: scheduler,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// =====================================================
// CREATE
// =====================================================

func (s *orderService) CreateOrder(ctx context.Context, input model.CreateOrderInput) (*model.Order, error) {
	if len(input.Items) == 0 {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "cannot create an empty order", model.ErrEmptyOrder)
	}
	if input.Total.IsNegative() {
		return nil, model.NewOrderError(model.ErrCodeInvalidOrder, "order total must not be negative", nil)
	}

	now := s.now()
	order := &model.Order{
		ID:                uuid.New(),
		CartID:            input.CartID,
		UserID:            input.UserID,
		SessionID:         input.SessionID,
		Status:            model.OrderStatusPending,
		PaymentStatus:     model.PaymentStatusPending,
		Subtotal:          input.Subtotal,
		DiscountAmount:    input.DiscountAmount,
		TaxAmount:         input.TaxAmount,
		DeliveryFee:       input.DeliveryFee,
		Total:             input.Total,
		Currency:          input.Currency,
		CouponCode:        input.CouponCode,
		DeliveryAddress:   input.DeliveryAddress,
		PaymentDeadlineAt: now.Add(s.cfg.PaymentDeadline),
		CreatedAt:         now,
	}

	order.Items = make([]model.OrderItem, len(input.Items))
	for i, item := range input.Items {
		item.ID = uuid.New()
		item.OrderID = order.ID
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		order.Items[i] = item
	}

	// Order numbers are random; retry the rare collision
	var err error
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = utils.GenerateOrderNumber(now)
		err = s.repo.Create(ctx, order)
		if err == nil || !database.IsUniqueViolation(err) {
			break
		}
		logger.Warn("Order number collision, regenerating", map[string]interface{}{
			"order_number": order.OrderNumber,
			"attempt":      attempt,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	logger.Info("Order created", map[string]interface{}{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"total":        order.Total.String(),
	})

	return order, nil
}

// =====================================================
// READ
// =====================================================

func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return s.repo.GetByNumber(ctx, orderNumber)
}

func (s *orderService) ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.OrderListItem, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, (page-1)*limit, limit)
}

func (s *orderService) GetHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, orderID)
}

// =====================================================
// STATUS CHANGES
// =====================================================

// withOrderLock runs fn while holding the per-order lock
func (s *orderService) withOrderLock(ctx context.Context, orderID uuid.UUID, fn func() error) error {
	lock, err := s.locker.Acquire(ctx, model.LockKey(orderID), s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("lock order %s: %w", orderID, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to release order lock", map[string]interface{}{
				"order_id": orderID.String(),
				"error":    err.Error(),
			})
		}
	}()

	return fn()
}

func (s *orderService) UpdateStatus(
	ctx context.Context,
	orderID uuid.UUID,
	req model.UpdateOrderStatusRequest,
	changedBy string,
) (*model.Order, error) {
	next := model.OrderStatus(req.Status)
	if !next.IsValid() {
		return nil, model.NewOrderError(model.ErrCodeInvalidStatus, "unknown order status", model.ErrInvalidStatus)
	}

	if next == model.OrderStatusCancelled {
		reason := req.Reason
		if reason == "" {
			reason = "cancelled_by_admin"
		}
		return s.CancelOrder(ctx, orderID, reason, changedBy)
	}

	var updated *model.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		history, err := order.Transition(next, req.Reason, changedBy, s.now())
		if err != nil {
			return err
		}

		if err := s.repo.Update(ctx, order, history); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order status updated", map[string]interface{}{
		"order_id":   orderID.String(),
		"status":     next.String(),
		"changed_by": changedBy,
	})
	return updated, nil
}

func (s *orderService) MarkPaymentProcessing(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus == model.PaymentStatusProcessing {
		return nil
	}
	if err := order.SetPaymentStatus(model.PaymentStatusProcessing, s.now()); err != nil {
		return err
	}
	return s.repo.Update(ctx, order, nil)
}

// =====================================================
// CANCELLATION
// =====================================================

// cancel moves the order to cancelled and releases its coupon exactly once.
// Already-cancelled orders only get the coupon release retried.
func (s *orderService) cancel(ctx context.Context, order *model.Order, reason, changedBy string, publish bool) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		// Step 1: status
		if order.Status != model.OrderStatusCancelled {
			history, err := order.Transition(model.OrderStatusCancelled, reason, changedBy, s.now())
			if err != nil {
				return err
			}
			if err := s.repo.Update(ctx, order, history); err != nil {
				return err
			}

			if publish {
				msg, err := events.New(events.TypeOrderCancelled, order.ID.String(), events.OrderCancelled{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					UserID:      order.UserID,
					Reason:      reason,
				})
				if err != nil {
					return err
				}
				if err := s.publisher.Publish(ctx, msg); err != nil {
					return fmt.Errorf("publish order cancelled: %w", err)
				}
			}
		}

		// Step 2: coupon, guarded by coupon_released_at
		if order.CouponCode == nil {
			return nil
		}
		claimed, err := s.repo.MarkCouponReleased(ctx, order.ID, s.now())
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		if err := s.coupons.Release(ctx, *order.CouponCode); err != nil {
			return fmt.Errorf("release coupon %s: %w", *order.CouponCode, err)
		}

		logger.Info("Coupon released for cancelled order", map[string]interface{}{
			"order_id":    order.ID.String(),
			"coupon_code": *order.CouponCode,
		})
		return nil
	})
}

func (s *orderService) AbortOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.cancel(ctx, order, reason, model.ChangedByCheckout, false); err != nil {
		return err
	}

	logger.Info("Order aborted", map[string]interface{}{
		"order_id": orderID.String(),
		"reason":   reason,
	})
	return nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason, changedBy string) (*model.Order, error) {
	var cancelled *model.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() && order.Status != model.OrderStatusCancelled {
			return model.NewInvalidTransitionError(order.Status, model.OrderStatusCancelled)
		}
		if err := s.cancel(ctx, order, reason, changedBy, true); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order cancelled", map[string]interface{}{
		"order_id":   orderID.String(),
		"reason":     reason,
		"changed_by": changedBy,
	})
	return cancelled, nil
}

// =====================================================
// PAYMENT DEADLINE
// =====================================================

func (s *orderService) ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	expired := false
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		// Paid, cancelled or still inside the window: nothing to do
		if order.Status != model.OrderStatusPending ||
			order.PaymentStatus == model.PaymentStatusSucceeded ||
			!order.PaymentDeadlinePassed(s.now()) {
			return nil
		}

		if err := s.cancel(ctx, order, model.ReasonPaymentTimeout, model.ChangedBySystem, true); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}

	if expired {
		logger.Info("Unpaid order expired", map[string]interface{}{
			"order_id": orderID.String(),
		})
	}
	return expired, nil
}

func (s *orderService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListExpiredPending(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		expired, err := s.ExpireUnpaid(ctx, id)
		if err != nil {
			// one stuck order must not block the sweep
			logger.ErrorWithFields("Failed to expire unpaid order", err, map[string]interface{}{
				"order_id": id.String(),
			})
			continue
		}
		if expired {
			count++
		}
	}
	return count, nil
}

func (s *orderService) SchedulePaymentDeadline(ctx context.Context, order *model.Order) error {
	return s.scheduler.SchedulePaymentDeadline(ctx, order.ID, order.OrderNumber, order.PaymentDeadlineAt)
}
