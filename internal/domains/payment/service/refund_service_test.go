package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderModel "food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/domains/payment/gateway/sandbox"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/shared/events"
)

type refundFixture struct {
	*reconcilerFixture
	svc     *refundService
	gw      *sandbox.Gateway
	adminID uuid.UUID
}

// newRefundFixture starts from an order that was cancelled by the deadline
// and then paid, so it sits flagged for review
func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()
	rf := newReconcilerFixture(t)
	ctx := context.Background()

	order, err := fakeOrders{rf.w}.GetByID(ctx, rf.orderID)
	require.NoError(t, err)
	h, err := order.Transition(orderModel.OrderStatusCancelled, orderModel.ReasonPaymentTimeout, orderModel.ChangedBySystem, time.Now())
	require.NoError(t, err)
	require.NoError(t, fakeOrders{rf.w}.Update(ctx, order, h))

	_, err = rf.rec.HandleGatewayEvent(ctx, rf.succeeded("evt_paid", 2500))
	require.NoError(t, err)
	require.True(t, rf.w.order(rf.orderID).NeedsReview)

	f := &refundFixture{
		reconcilerFixture: rf,
		gw:                sandbox.NewGateway("whsec_test"),
		adminID:           uuid.New(),
	}
	f.svc = NewRefundService(
		f.gw, fakePayments{rf.w}, fakeOrders{rf.w}, fakePublisher{rf.w}, fakeTx{rf.w}, rf.locker,
		RefundConfig{LockTTL: time.Second, GatewayTimeout: time.Second},
	).(*refundService)
	return f
}

func TestRefundOrder_PaidAfterCancellation(t *testing.T) {
	f := newRefundFixture(t)

	result, err := f.svc.RefundOrder(context.Background(), f.orderID, f.adminID, model.RefundOrderRequest{Reason: "order was cancelled"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RefundID)
	assert.Equal(t, "25", result.Amount.String())

	payment := f.w.payment(f.intent)
	assert.Equal(t, model.StatusRefunded, payment.Status)
	require.NotNil(t, payment.RefundedBy)
	assert.Equal(t, f.adminID, *payment.RefundedBy)

	order := f.w.order(f.orderID)
	assert.Equal(t, orderModel.OrderStatusCancelled, order.Status)
	assert.Equal(t, orderModel.PaymentStatusRefunded, order.PaymentStatus)
	assert.False(t, order.NeedsReview)
	assert.Nil(t, order.ReviewReason)

	assert.Equal(t, []string{events.TypePaymentSucceeded, events.TypePaymentRefunded}, f.w.publishedTypes())
}

func TestRefundOrder_RepeatReturnsStoredRefund(t *testing.T) {
	f := newRefundFixture(t)
	ctx := context.Background()
	req := model.RefundOrderRequest{Reason: "order was cancelled"}

	first, err := f.svc.RefundOrder(ctx, f.orderID, f.adminID, req)
	require.NoError(t, err)
	second, err := f.svc.RefundOrder(ctx, f.orderID, f.adminID, req)
	require.NoError(t, err)

	assert.Equal(t, first.RefundID, second.RefundID)
	assert.Equal(t, 1, f.gw.Calls())
	assert.Equal(t, []string{events.TypePaymentSucceeded, events.TypePaymentRefunded}, f.w.publishedTypes())
}

func TestRefundOrder_GatewayFailureChangesNothing(t *testing.T) {
	f := newRefundFixture(t)
	f.gw.SetFail(true)

	_, err := f.svc.RefundOrder(context.Background(), f.orderID, f.adminID, model.RefundOrderRequest{Reason: "order was cancelled"})
	require.ErrorIs(t, err, model.ErrGatewayUnavailable)

	assert.Equal(t, model.StatusSucceeded, f.w.payment(f.intent).Status)
	order := f.w.order(f.orderID)
	assert.Equal(t, orderModel.PaymentStatusSucceeded, order.PaymentStatus)
	assert.True(t, order.NeedsReview)
}

func TestRefundOrder_RecordFailureRollsBack(t *testing.T) {
	f := newRefundFixture(t)
	f.w.failOrderUpdate = errors.New("db down")

	_, err := f.svc.RefundOrder(context.Background(), f.orderID, f.adminID, model.RefundOrderRequest{Reason: "order was cancelled"})
	require.Error(t, err)
	assert.Equal(t, model.StatusSucceeded, f.w.payment(f.intent).Status)
	assert.Equal(t, []string{events.TypePaymentSucceeded}, f.w.publishedTypes())

	// retry after recovery reuses the gateway refund
	f.w.failOrderUpdate = nil
	_, err = f.svc.RefundOrder(context.Background(), f.orderID, f.adminID, model.RefundOrderRequest{Reason: "order was cancelled"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, f.w.payment(f.intent).Status)
}

func TestRefundOrder_Rejections(t *testing.T) {
	t.Run("reason required", func(t *testing.T) {
		f := newRefundFixture(t)
		_, err := f.svc.RefundOrder(context.Background(), f.orderID, f.adminID, model.RefundOrderRequest{})
		var payErr *model.PaymentError
		require.True(t, errors.As(err, &payErr))
		assert.Equal(t, model.ErrCodeInvalidRefund, payErr.Code)
		assert.Zero(t, f.gw.Calls())
	})

	t.Run("payment not captured", func(t *testing.T) {
		f := newReconcilerFixture(t)
		svc := NewRefundService(sandbox.NewGateway("whsec_test"), fakePayments{f.w}, fakeOrders{f.w}, fakePublisher{f.w}, fakeTx{f.w}, f.locker, RefundConfig{})
		_, err := svc.RefundOrder(context.Background(), f.orderID, uuid.New(), model.RefundOrderRequest{Reason: "customer asked"})
		require.ErrorIs(t, err, model.ErrRefundNotAllowed)
	})

	t.Run("order still being fulfilled", func(t *testing.T) {
		f := newReconcilerFixture(t)
		_, err := f.rec.HandleGatewayEvent(context.Background(), f.succeeded("evt_1", 2500))
		require.NoError(t, err)
		require.Equal(t, orderModel.OrderStatusConfirmed, f.w.order(f.orderID).Status)

		svc := NewRefundService(sandbox.NewGateway("whsec_test"), fakePayments{f.w}, fakeOrders{f.w}, fakePublisher{f.w}, fakeTx{f.w}, f.locker, RefundConfig{})
		_, err = svc.RefundOrder(context.Background(), f.orderID, uuid.New(), model.RefundOrderRequest{Reason: "customer asked"})
		require.ErrorIs(t, err, model.ErrRefundNotAllowed)
		assert.Equal(t, model.StatusSucceeded, f.w.payment(f.intent).Status)
	})

	t.Run("order locked", func(t *testing.T) {
		f := newRefundFixture(t)
		f.locker.held[orderModel.LockKey(f.orderID)] = true
		_, err := f.svc.RefundOrder(context.Background(), f.orderID, f.adminID, model.RefundOrderRequest{Reason: "order was cancelled"})
		require.ErrorIs(t, err, model.ErrRefundNotAllowed)
		assert.Zero(t, f.gw.Calls())
	})
}
