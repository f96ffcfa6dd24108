package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	cartModel "food-ordering-backend/internal/domains/cart/model"
	cartService "food-ordering-backend/internal/domains/cart/service"
	"food-ordering-backend/internal/domains/checkout/model"
	"food-ordering-backend/internal/domains/checkout/repository"
	couponService "food-ordering-backend/internal/domains/coupon/service"
	orderModel "food-ordering-backend/internal/domains/order/model"
	orderService "food-ordering-backend/internal/domains/order/service"
	paymentService "food-ordering-backend/internal/domains/payment/service"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

const (
	errCodeOrderCreate = "ORDER_CREATE_FAILED"
	errCodeFinalize    = "FINALIZE_FAILED"
	errCodeAbandoned   = "ABANDONED"
)

var errCouponTaken = errors.New("coupon slot taken")

type Config struct {
	LockTTL    time.Duration
	StuckAfter time.Duration
}

type checkoutService struct {
	carts     cartService.ServiceInterface
	coupons   couponService.Ledger
	orders    orderService.OrderService
	payments  paymentService.PaymentService
	attempts  repository.AttemptRepository
	publisher events.Publisher
	tx        database.TxManager
	locker    cache.Locker
	cfg       Config
	now       func() time.Time
}

func NewCheckoutService(
	carts cartService.ServiceInterface,
	coupons couponService.Ledger,
	orders orderService.OrderService,
	payments paymentService.PaymentService,
	attempts repository.AttemptRepository,
	publisher events.Publisher,
	tx database.TxManager,
	locker cache.Locker,
	cfg Config,
) CheckoutService {
	return &checkoutService{
		carts:     carts,
		coupons:   coupons,
		orders:    orders,
		payments:  payments,
		attempts:  attempts,
		publisher: publisher,
		tx:        tx,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CartLockKey serializes checkouts of one cart
func CartLockKey(cartID uuid.UUID) string {
	return fmt.Sprintf("lock:checkout:cart:%s", cartID)
}

// =====================================================
// CHECKOUT
// =====================================================

func (s *checkoutService) Checkout(
	ctx context.Context,
	owner cartModel.Owner,
	idempotencyKey string,
	req model.CheckoutRequest,
) (*model.Result, error) {
	cartID, err := uuid.Parse(req.CartID)
	if err != nil {
		return nil, model.NewCartNotFoundError()
	}

	// Step 1: lock the cart. Without Redis the attempt claim still guards it.
	lock, err := s.locker.Acquire(ctx, CartLockKey(cartID), s.cfg.LockTTL)
	switch {
	case errors.Is(err, cache.ErrLockNotAcquired):
		return nil, model.NewInProgressError()
	case err != nil:
		logger.Warn("Cart lock unavailable, relying on attempt claim", map[string]interface{}{
			"cart_id": cartID.String(),
			"error":   err.Error(),
		})
	default:
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release cart lock", map[string]interface{}{
					"cart_id": cartID.String(),
					"error":   err.Error(),
				})
			}
		}()
	}

	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, cartModel.ErrCartNotFound) {
			return nil, model.NewCartNotFoundError()
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !cart.OwnedBy(owner) {
		return nil, model.NewCartNotFoundError()
	}

	if idempotencyKey == "" {
		idempotencyKey = "v" + strconv.Itoa(cart.Version)
	}

	attempt, claimed, err := s.attempts.Claim(ctx, cart.ID, idempotencyKey, cart.CouponCode)
	if err != nil {
		return nil, fmt.Errorf("claim checkout attempt: %w", err)
	}
	if !claimed {
		if result := attempt.Result(); result != nil {
			logger.Info("Replaying completed checkout", map[string]interface{}{
				"cart_id":  cart.ID.String(),
				"order_id": result.OrderID.String(),
			})
			return result, nil
		}
		return nil, model.NewInProgressError()
	}

	log := map[string]interface{}{
		"cart_id":    cart.ID.String(),
		"attempt_id": attempt.ID.String(),
	}

	if cart.IsEmpty() {
		return nil, s.fail(ctx, attempt, model.ErrCodeCartEmpty, model.NewCartEmptyError())
	}

	// Step 2: coupon must still apply to the current total
	if cart.CouponCode != nil && !cart.Totals.CouponValid() {
		return nil, s.fail(ctx, attempt, model.ErrCodeCouponInvalid, model.NewCouponInvalidError(cart.Totals.CouponReason))
	}

	// Step 3: take the usage slot
	if cart.CouponCode != nil {
		if err := s.redeemCoupon(ctx, attempt, *cart.CouponCode); err != nil {
			if errors.Is(err, errCouponTaken) {
				return nil, s.fail(ctx, attempt, model.ErrCodeCouponExhausted, model.NewCouponExhaustedError())
			}
			return nil, s.fail(ctx, attempt, model.ErrCodeCheckoutFailed, err)
		}
	}

	// Step 4: freeze the cart into an order
	order, err := s.createOrder(ctx, attempt, cart, req.DeliveryAddress)
	if err != nil {
		logger.ErrorWithFields("Order creation failed, releasing coupon", err, log)
		if relErr := s.releaseAttemptCoupon(context.WithoutCancel(ctx), attempt); relErr != nil {
			// Left in progress so the recovery sweep retries the release
			logger.ErrorWithFields("Coupon release failed, leaving attempt to recovery", relErr, log)
			return nil, err
		}
		return nil, s.fail(ctx, attempt, errCodeOrderCreate, err)
	}
	log["order_id"] = order.ID.String()

	// Step 5: payment intent; any failure cancels the order
	intent, err := s.payments.RequestIntent(ctx, order)
	if err != nil {
		logger.ErrorWithFields("Payment intent failed, aborting order", err, log)
		s.abortOrder(context.WithoutCancel(ctx), order.ID, orderModel.ReasonGatewayUnavailable)
		return nil, s.fail(ctx, attempt, model.ErrCodeGatewayUnavailable, model.NewGatewayUnavailableError(err))
	}

	// Step 6: payment row, cart cleared, OrderCreated, attempt completed
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.payments.RecordIntent(ctx, order, intent); err != nil {
			return err
		}
		if err := s.orders.MarkPaymentProcessing(ctx, order.ID); err != nil {
			return err
		}
		if err := s.carts.Clear(ctx, cart.ID); err != nil {
			return err
		}
		if err := s.publishOrderCreated(ctx, order); err != nil {
			return err
		}
		return s.attempts.MarkCompleted(ctx, attempt.ID, intent.IntentID, intent.ClientSecret)
	})
	if err != nil {
		logger.ErrorWithFields("Checkout finalize failed, aborting order", err, log)
		s.abortOrder(context.WithoutCancel(ctx), order.ID, orderModel.ReasonGatewayUnavailable)
		return nil, s.fail(ctx, attempt, errCodeFinalize, err)
	}

	// A missed schedule is caught by the overdue sweep
	if err := s.orders.SchedulePaymentDeadline(ctx, order); err != nil {
		logger.ErrorWithFields("Failed to schedule payment deadline", err, log)
	}

	logger.Info("Checkout completed", log)

	return &model.Result{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PaymentHandle: model.PaymentHandle{
			IntentID:     intent.IntentID,
			ClientSecret: intent.ClientSecret,
		},
	}, nil
}

func (s *checkoutService) redeemCoupon(ctx context.Context, attempt *model.Attempt, code string) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.coupons.Redeem(ctx, code)
		if err != nil {
			return fmt.Errorf("redeem coupon %s: %w", code, err)
		}
		if !ok {
			return errCouponTaken
		}
		attempt.CouponRedeemed = true
		return s.attempts.MarkCouponRedeemed(ctx, attempt.ID)
	})
}

func (s *checkoutService) createOrder(
	ctx context.Context,
	attempt *model.Attempt,
	cart *cartModel.Cart,
	address orderModel.DeliveryAddress,
) (*orderModel.Order, error) {
	input := orderModel.CreateOrderInput{
		CartID:          cart.ID,
		UserID:          cart.UserID,
		SessionID:       cart.SessionID,
		Items:           make([]orderModel.OrderItem, 0, len(cart.Items)),
		Subtotal:        cart.Totals.Subtotal,
		DiscountAmount:  cart.Totals.Discount,
		TaxAmount:       cart.Totals.Tax,
		DeliveryFee:     cart.Totals.DeliveryFee,
		Total:           cart.Totals.Total,
		Currency:        cart.Totals.Currency,
		CouponCode:      cart.CouponCode,
		DeliveryAddress: address,
	}
	for _, item := range cart.Items {
		input.Items = append(input.Items, orderModel.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ImageURL:    item.ImageURL,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	var order *orderModel.Order
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.orders.CreateOrder(ctx, input); err != nil {
			return err
		}
		return s.attempts.MarkOrderCreated(ctx, attempt.ID, order.ID, order.OrderNumber)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *checkoutService) publishOrderCreated(ctx context.Context, order *orderModel.Order) error {
	payload := events.OrderCreated{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		Currency:    order.Currency,
		CouponCode:  order.CouponCode,
		Items:       make([]events.OrderItemPayload, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, events.OrderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	msg, err := events.New(events.TypeOrderCreated, order.ID.String(), payload)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish order created: %w", err)
	}
	return nil
}

// =====================================================
// COMPENSATION
// =====================================================

// releaseAttemptCoupon gives back a slot taken by an attempt that never
// produced an order. The attempt flag makes it safe to run twice.
func (s *checkoutService) releaseAttemptCoupon(ctx context.Context, attempt *model.Attempt) error {
	if !attempt.CouponRedeemed || attempt.CouponCode == nil {
		return nil
	}
	code := *attempt.CouponCode

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		claimed, err := s.attempts.MarkCouponReleased(ctx, attempt.ID)
		if err != nil || !claimed {
			return err
		}
		return s.coupons.Release(ctx, code)
	})
	if err != nil {
		return fmt.Errorf("release coupon %s: %w", code, err)
	}
	attempt.CouponReleased = true
	return nil
}

func (s *checkoutService) abortOrder(ctx context.Context, orderID uuid.UUID, reason string) {
	if err := s.orders.AbortOrder(ctx, orderID, reason); err != nil {
		logger.ErrorWithFields("Failed to abort order", err, map[string]interface{}{
			"order_id": orderID.String(),
			"reason":   reason,
		})
	}
}

// fail records the attempt outcome and hands back cause
func (s *checkoutService) fail(ctx context.Context, attempt *model.Attempt, code string, cause error) error {
	if err := s.attempts.MarkFailed(context.WithoutCancel(ctx), attempt.ID, code); err != nil {
		logger.ErrorWithFields("Failed to mark checkout attempt failed", err, map[string]interface{}{
			"attempt_id": attempt.ID.String(),
			"error_code": code,
		})
	}
	attempt.Status = model.AttemptFailed
	return cause
}

// =====================================================
// RECOVERY
// =====================================================

func (s *checkoutService) RecoverStuck(ctx context.Context, limit int) (int, error) {
	stuck, err := s.attempts.ListStuck(ctx, s.now().Add(-s.cfg.StuckAfter), limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, attempt := range stuck {
		ok, err := s.recover(ctx, attempt)
		if err != nil {
			logger.ErrorWithFields("Failed to recover checkout attempt", err, map[string]interface{}{
				"attempt_id": attempt.ID.String(),
				"status":     string(attempt.Status),
			})
			continue
		}
		if ok {
			recovered++
		}
	}

	if recovered > 0 {
		logger.Info("Recovered stuck checkout attempts", map[string]interface{}{
			"found":     len(stuck),
			"recovered": recovered,
		})
	}
	return recovered, nil
}

func (s *checkoutService) recover(ctx context.Context, attempt *model.Attempt) (bool, error) {
	lock, err := s.locker.Acquire(ctx, CartLockKey(attempt.CartID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return false, nil
		}
		return false, err
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	// Re-read under the lock; the attempt may have moved on
	current, err := s.attempts.GetByID(ctx, attempt.ID)
	if err != nil {
		return false, err
	}
	if !current.Status.InProgress() && !current.OwesCoupon() {
		return false, nil
	}

	if current.OrderID != nil {
		// The order owns the coupon from here on
		if err := s.orders.AbortOrder(ctx, *current.OrderID, orderModel.ReasonCheckoutAbandoned); err != nil {
			return false, fmt.Errorf("abort abandoned order: %w", err)
		}
	} else {
		if err := s.releaseAttemptCoupon(ctx, current); err != nil {
			return false, err
		}
	}

	if err := s.attempts.MarkFailed(ctx, current.ID, errCodeAbandoned); err != nil {
		return false, err
	}

	logger.Warn("Abandoned checkout attempt recovered", map[string]interface{}{
		"attempt_id": current.ID.String(),
		"cart_id":    current.CartID.String(),
		"status":     string(current.Status),
	})
	return true, nil
}
