package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartModel "food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/internal/domains/checkout/model"
	orderModel "food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/shared/events"
)

type harness struct {
	svc       *checkoutService
	carts     *fakeCarts
	ledger    *fakeLedger
	orders    *fakeOrders
	payments  *fakePayments
	attempts  *fakeAttempts
	publisher *fakePublisher
	locker    *memLocker
}

func newHarness(carts ...*cartModel.Cart) *harness {
	h := &harness{
		carts:     newFakeCarts(carts...),
		ledger:    newFakeLedger(),
		payments:  newFakePayments(),
		attempts:  newFakeAttempts(),
		publisher: &fakePublisher{},
		locker:    newMemLocker(),
	}
	h.orders = newFakeOrders(h.ledger)
	h.svc = NewCheckoutService(
		h.carts, h.ledger, h.orders, h.payments, h.attempts, h.publisher, fakeTx{h.attempts}, h.locker,
		Config{LockTTL: time.Minute, StuckAfter: 10 * time.Minute},
	).(*checkoutService)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

// cart150 is a $150 cart owned by user, optionally carrying a coupon
func cart150(userID uuid.UUID, coupon *string) *cartModel.Cart {
	c := &cartModel.Cart{
		ID:      uuid.New(),
		UserID:  &userID,
		Version: 3,
		Items: []cartModel.CartItem{
			{ProductID: uuid.New(), ProductName: "Pho Bo", UnitPrice: dec("50.00"), Quantity: 3},
		},
		Totals: cartModel.Totals{
			Subtotal: dec("150.00"),
			Total:    dec("150.00"),
			Currency: "USD",
		},
	}
	if coupon != nil {
		c.CouponCode = coupon
		c.Totals.CouponCode = coupon
		c.Totals.Discount = dec("20.00")
		c.Totals.Total = dec("130.00")
	}
	return c
}

func request(c *cartModel.Cart) model.CheckoutRequest {
	return model.CheckoutRequest{
		CartID: c.ID.String(),
		DeliveryAddress: orderModel.DeliveryAddress{
			RecipientName: "Lan", Phone: "0901234567", Line1: "12 Ly Thuong Kiet", City: "Hanoi",
		},
	}
}

func checkoutErrorCode(t *testing.T, err error) string {
	t.Helper()
	var ce *model.CheckoutError
	require.True(t, errors.As(err, &ce), "expected CheckoutError, got %v", err)
	return ce.Code
}

func TestCheckout_HappyPathWithCoupon(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, strPtr("SAVE20"))
	h := newHarness(cart)
	h.ledger.limit["SAVE20"] = 500
	h.ledger.used["SAVE20"] = 499

	res, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, res.OrderID)
	assert.NotEmpty(t, res.OrderNumber)
	assert.NotEmpty(t, res.PaymentHandle.IntentID)
	assert.NotEmpty(t, res.PaymentHandle.ClientSecret)

	assert.Equal(t, 500, h.ledger.usedCount("SAVE20"))
	assert.Equal(t, []uuid.UUID{cart.ID}, h.carts.cleared)
	assert.Equal(t, []string{events.TypeOrderCreated}, h.publisher.types())
	assert.Equal(t, []uuid.UUID{res.OrderID}, h.orders.scheduled)
	assert.Equal(t, []uuid.UUID{res.OrderID}, h.orders.processing)
	assert.Equal(t, res.PaymentHandle.IntentID, h.payments.recorded[res.OrderID])

	order := h.orders.orders[res.OrderID]
	assert.True(t, order.Total.Equal(dec("130.00")))
	assert.Equal(t, "SAVE20", *order.CouponCode)

	attempt := h.attempts.only()
	assert.Equal(t, model.AttemptCompleted, attempt.Status)
	assert.Equal(t, "v3", attempt.IdempotencyKey)
	assert.Empty(t, h.locker.held, "cart lock must be released")
}

func TestCheckout_SameKeyReplaysStoredResult(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, nil)
	h := newHarness(cart)

	first, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "key-1", request(cart))
	require.NoError(t, err)

	second, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "key-1", request(cart))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.orders.count())
	assert.Len(t, h.publisher.types(), 1)
}

func TestCheckout_CouponExhausted(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, strPtr("SAVE20"))
	h := newHarness(cart)
	h.ledger.limit["SAVE20"] = 500
	h.ledger.used["SAVE20"] = 500

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))

	assert.Equal(t, model.ErrCodeCouponExhausted, checkoutErrorCode(t, err))
	assert.Zero(t, h.orders.count())
	assert.Empty(t, h.carts.cleared)
	assert.Equal(t, "SAVE20", *h.carts.carts[cart.ID].CouponCode, "cart keeps the coupon")
	assert.Equal(t, model.AttemptFailed, h.attempts.only().Status)
}

func TestCheckout_CouponNoLongerValid(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, strPtr("SAVE20"))
	cart.Totals.CouponReason = "expired"
	cart.Totals.Discount = decimal.Zero
	h := newHarness(cart)
	h.ledger.limit["SAVE20"] = 500

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))

	var ce *model.CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, model.ErrCodeCouponInvalid, ce.Code)
	assert.Equal(t, "expired", ce.Details["reason"])
	assert.Zero(t, h.ledger.usedCount("SAVE20"))
	assert.Zero(t, h.orders.count())
}

func TestCheckout_OrderCreationFailureRestoresUsedCount(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, strPtr("SAVE20"))
	h := newHarness(cart)
	h.ledger.limit["SAVE20"] = 500
	h.ledger.used["SAVE20"] = 499
	h.orders.createErr = errBoom

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, 499, h.ledger.usedCount("SAVE20"))
	attempt := h.attempts.only()
	assert.Equal(t, model.AttemptFailed, attempt.Status)
	assert.True(t, attempt.CouponReleased)

	// Running the compensation again is a no-op
	require.NoError(t, h.svc.releaseAttemptCoupon(context.Background(), &attempt))
	assert.Equal(t, 499, h.ledger.usedCount("SAVE20"))
}

func TestCheckout_FailedReleaseIsRetriedByRecovery(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, strPtr("SAVE20"))
	h := newHarness(cart)
	h.ledger.limit["SAVE20"] = 500
	h.ledger.used["SAVE20"] = 499
	h.ledger.releaseFailures = 1
	h.orders.createErr = errBoom

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))
	require.ErrorIs(t, err, errBoom)

	// The slot is still held and the attempt stays visible to the sweep
	assert.Equal(t, 500, h.ledger.usedCount("SAVE20"))
	attempt := h.attempts.only()
	assert.Equal(t, model.AttemptCouponRedeemed, attempt.Status)
	assert.False(t, attempt.CouponReleased)

	// Same key while the release is pending does not start over
	_, err = h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))
	var ce *model.CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, model.ErrCodeInProgress, ce.Code)
	assert.Equal(t, 500, h.ledger.usedCount("SAVE20"))

	h.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := h.svc.RecoverStuck(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 499, h.ledger.usedCount("SAVE20"))
	attempt = h.attempts.only()
	assert.Equal(t, model.AttemptFailed, attempt.Status)
	assert.True(t, attempt.CouponReleased)

	// Nothing left to recover
	n, err = h.svc.RecoverStuck(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 499, h.ledger.usedCount("SAVE20"))
}

func TestAttemptClaim_KeepsFailedAttemptThatOwesCoupon(t *testing.T) {
	attempts := newFakeAttempts()
	cartID := uuid.New()
	attempts.add(&model.Attempt{
		ID: uuid.New(), CartID: cartID, IdempotencyKey: "v3", Status: model.AttemptFailed,
		CouponCode: strPtr("SAVE20"), CouponRedeemed: true,
	})

	a, claimed, err := attempts.Claim(context.Background(), cartID, "v3", strPtr("SAVE20"))
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, a.OwesCoupon())
}

func TestCheckout_GatewayFailureCancelsOrderAndReleasesCoupon(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, strPtr("SAVE20"))
	h := newHarness(cart)
	h.ledger.limit["SAVE20"] = 500
	h.payments.intentErr = context.DeadlineExceeded

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))

	assert.Equal(t, model.ErrCodeGatewayUnavailable, checkoutErrorCode(t, err))
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	require.Equal(t, 1, h.orders.count())
	for id, reason := range h.orders.aborted {
		assert.Equal(t, orderModel.ReasonGatewayUnavailable, reason)
		assert.Equal(t, orderModel.OrderStatusCancelled, h.orders.orders[id].Status)
	}
	assert.Zero(t, h.ledger.usedCount("SAVE20"))
	assert.Empty(t, h.carts.cleared, "cart survives a failed checkout")
	assert.Empty(t, h.publisher.types())
}

func TestCheckout_FailedAttemptCanBeRerun(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, nil)
	h := newHarness(cart)
	h.payments.intentErr = errBoom

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "key-1", request(cart))
	require.Error(t, err)

	h.payments.intentErr = nil
	res, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "key-1", request(cart))
	require.NoError(t, err)
	assert.Equal(t, model.AttemptCompleted, h.attempts.only().Status)
	assert.Equal(t, 2, h.orders.count())
	assert.Equal(t, []uuid.UUID{res.OrderID}, h.orders.scheduled)
}

func TestCheckout_CartLockedIsInProgress(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, nil)
	h := newHarness(cart)
	h.locker.held[CartLockKey(cart.ID)] = true

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))

	assert.Equal(t, model.ErrCodeInProgress, checkoutErrorCode(t, err))
	assert.Zero(t, h.orders.count())
}

func TestCheckout_InProgressAttemptIsRejected(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, nil)
	h := newHarness(cart)
	h.attempts.add(&model.Attempt{
		ID: uuid.New(), CartID: cart.ID, IdempotencyKey: "key-1", Status: model.AttemptCouponRedeemed,
	})

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "key-1", request(cart))

	assert.Equal(t, model.ErrCodeInProgress, checkoutErrorCode(t, err))
}

func TestCheckout_RedisDownFallsBackToAttemptClaim(t *testing.T) {
	userID := uuid.New()
	cart := cart150(userID, nil)
	h := newHarness(cart)
	h.locker.err = errBoom

	_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))
	require.NoError(t, err)
	assert.Equal(t, 1, h.orders.count())
}

func TestCheckout_CartChecks(t *testing.T) {
	userID := uuid.New()

	t.Run("empty cart", func(t *testing.T) {
		cart := cart150(userID, nil)
		cart.Items = nil
		h := newHarness(cart)

		_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "", request(cart))
		assert.Equal(t, model.ErrCodeCartEmpty, checkoutErrorCode(t, err))
	})

	t.Run("someone else's cart", func(t *testing.T) {
		cart := cart150(userID, nil)
		h := newHarness(cart)

		_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(uuid.New()), "", request(cart))
		assert.Equal(t, model.ErrCodeCartNotFound, checkoutErrorCode(t, err))
		assert.Empty(t, h.attempts.byID)
	})

	t.Run("unknown cart", func(t *testing.T) {
		h := newHarness()

		_, err := h.svc.Checkout(context.Background(), cartModel.UserOwner(userID), "",
			model.CheckoutRequest{CartID: uuid.NewString()})
		assert.Equal(t, model.ErrCodeCartNotFound, checkoutErrorCode(t, err))
	})
}

// SAVE20 at 499/500: two simultaneous checkouts, exactly one wins
func TestCheckout_LastCouponSlotConcurrent(t *testing.T) {
	userA, userB := uuid.New(), uuid.New()
	cartA := cart150(userA, strPtr("SAVE20"))
	cartB := cart150(userB, strPtr("SAVE20"))
	h := newHarness(cartA, cartB)
	h.ledger.limit["SAVE20"] = 500
	h.ledger.used["SAVE20"] = 499

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []*cartModel.Cart{cartA, cartB} {
		wg.Add(1)
		go func(i int, c *cartModel.Cart) {
			defer wg.Done()
			_, errs[i] = h.svc.Checkout(context.Background(), cartModel.UserOwner(*c.UserID), "", request(c))
		}(i, c)
	}
	wg.Wait()

	succeeded, exhausted := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if checkoutErrorCode(t, err) == model.ErrCodeCouponExhausted {
			exhausted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, 500, h.ledger.usedCount("SAVE20"))
}

func TestRecoverStuck(t *testing.T) {
	h := newHarness()
	h.ledger.limit["SAVE20"] = 10
	h.ledger.used["SAVE20"] = 3
	old := time.Now().Add(-time.Hour)

	// crashed between redemption and order creation
	orphan := &model.Attempt{
		ID: uuid.New(), CartID: uuid.New(), IdempotencyKey: "v1", Status: model.AttemptCouponRedeemed,
		CouponCode: strPtr("SAVE20"), CouponRedeemed: true, UpdatedAt: old,
	}
	// crashed after the order existed
	order, err := h.orders.CreateOrder(context.Background(), orderModel.CreateOrderInput{
		CouponCode: strPtr("SAVE20"), Items: []orderModel.OrderItem{{Quantity: 1}},
	})
	require.NoError(t, err)
	withOrder := &model.Attempt{
		ID: uuid.New(), CartID: uuid.New(), IdempotencyKey: "v1", Status: model.AttemptOrderCreated,
		CouponCode: strPtr("SAVE20"), CouponRedeemed: true, OrderID: &order.ID, UpdatedAt: old,
	}
	// still within the grace period
	fresh := &model.Attempt{
		ID: uuid.New(), CartID: uuid.New(), IdempotencyKey: "v1", Status: model.AttemptStarted, UpdatedAt: time.Now(),
	}
	for _, a := range []*model.Attempt{orphan, withOrder, fresh} {
		h.attempts.add(a)
	}

	n, err := h.svc.RecoverStuck(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 1, h.ledger.usedCount("SAVE20"), "both slots given back")
	assert.Equal(t, model.AttemptFailed, h.attempts.get(orphan.ID).Status)
	assert.True(t, h.attempts.get(orphan.ID).CouponReleased)
	assert.Equal(t, model.AttemptFailed, h.attempts.get(withOrder.ID).Status)
	assert.Equal(t, orderModel.ReasonCheckoutAbandoned, h.orders.aborted[order.ID])
	assert.Equal(t, model.AttemptStarted, h.attempts.get(fresh.ID).Status)

	// a second sweep finds nothing
	n, err = h.svc.RecoverStuck(context.Background(), 50)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, h.ledger.usedCount("SAVE20"))
}

func TestRecoverStuck_SkipsLockedCart(t *testing.T) {
	h := newHarness()
	a := &model.Attempt{
		ID: uuid.New(), CartID: uuid.New(), IdempotencyKey: "v1", Status: model.AttemptStarted,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	h.attempts.add(a)
	h.locker.held[CartLockKey(a.CartID)] = true

	n, err := h.svc.RecoverStuck(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.AttemptStarted, h.attempts.get(a.ID).Status)
}
