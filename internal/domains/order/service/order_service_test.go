package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	couponModel "food-ordering-backend/internal/domains/coupon/model"
	"food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/cache"
)

// =====================================================
// FAKES
// =====================================================

type fakeRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*model.Order
	history []model.StatusHistory
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[uuid.UUID]*model.Order{}}
}

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp
}

func (r *fakeRepo) Create(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.Version = 1
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeRepo) GetByNumber(_ context.Context, number string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, model.ErrOrderNotFound
}

func (r *fakeRepo) ListByUser(_ context.Context, userID uuid.UUID, offset, limit int) ([]model.OrderListItem, int, error) {
	return nil, 0, nil
}

func (r *fakeRepo) Update(_ context.Context, o *model.Order, h *model.StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return model.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return model.ErrVersionMismatch
	}
	o.Version++
	released := stored.CouponReleasedAt
	r.orders[o.ID] = cloneOrder(o)
	r.orders[o.ID].CouponReleasedAt = released
	if h != nil {
		r.history = append(r.history, *h)
	}
	return nil
}

func (r *fakeRepo) MarkCouponReleased(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	if o == nil || o.CouponCode == nil || o.CouponReleasedAt != nil {
		return false, nil
	}
	o.CouponReleasedAt = &at
	return true, nil
}

func (r *fakeRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, o := range r.orders {
		if o.Status == model.OrderStatusPending && !now.Before(o.PaymentDeadlineAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeRepo) History(_ context.Context, orderID uuid.UUID) ([]model.StatusHistory, error) {
	return r.history, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	released map[string]int
}

func (l *fakeLedger) Validate(context.Context, string, decimal.Decimal, *uuid.UUID) (*couponModel.ValidationResult, error) {
	return &couponModel.ValidationResult{Valid: true}, nil
}

func (l *fakeLedger) Redeem(context.Context, string) (bool, error) { return true, nil }

func (l *fakeLedger) Release(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released[code]++
	return nil
}

type fakePublisher struct {
	messages []events.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg events.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) types() []string {
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.MessageType)
	}
	return out
}

type fakeTx struct{}

func (fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeLock struct{}

func (fakeLock) Release(context.Context) error { return nil }

type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (cache.Lock, error) {
	if l.busy {
		return nil, cache.ErrLockNotAcquired
	}
	return fakeLock{}, nil
}

type fakeScheduler struct {
	scheduled map[uuid.UUID]time.Time
}

func (s *fakeScheduler) SchedulePaymentDeadline(_ context.Context, id uuid.UUID, _ string, at time.Time) error {
	s.scheduled[id] = at
	return nil
}

type fixture struct {
	svc       *orderService
	repo      *fakeRepo
	ledger    *fakeLedger
	publisher *fakePublisher
	locker    *fakeLocker
	scheduler *fakeScheduler
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newFakeRepo(),
		ledger:    &fakeLedger{released: map[string]int{}},
		publisher: &fakePublisher{},
		locker:    &fakeLocker{},
		scheduler: &fakeScheduler{scheduled: map[uuid.UUID]time.Time{}},
		now:       time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewOrderService(f.repo, f.ledger, f.publisher, fakeTx{}, f.locker, f.scheduler, Config{
		PaymentDeadline: 15 * time.Minute,
		LockTTL:         10 * time.Second,
	}).(*orderService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func sampleInput(coupon *string) model.CreateOrderInput {
	return model.CreateOrderInput{
		CartID: uuid.New(),
		Items: []model.OrderItem{
			{ProductID: uuid.New(), ProductName: "Margherita", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
		},
		Subtotal:       decimal.RequireFromString("25.00"),
		DiscountAmount: decimal.Zero,
		Total:          decimal.RequireFromString("25.00"),
		Currency:       "USD",
		CouponCode:     coupon,
	}
}

func strPtr(s string) *string { return &s }

// =====================================================
// TESTS
// =====================================================

func TestCreateOrder_PendingWithDeadline(t *testing.T) {
	f := newFixture()

	order, err := f.svc.CreateOrder(context.Background(), sampleInput(nil))
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, f.now.Add(15*time.Minute), order.PaymentDeadlineAt)
	assert.NotEmpty(t, order.OrderNumber)
	require.Len(t, order.Items, 1)
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.Items[0].LineTotal))
	assert.Equal(t, order.ID, order.Items[0].OrderID)

	require.NoError(t, f.svc.SchedulePaymentDeadline(context.Background(), order))
	assert.Equal(t, order.PaymentDeadlineAt, f.scheduler.scheduled[order.ID])
}

func TestCreateOrder_RejectsEmpty(t *testing.T) {
	f := newFixture()
	input := sampleInput(nil)
	input.Items = nil

	_, err := f.svc.CreateOrder(context.Background(), input)
	assert.ErrorIs(t, err, model.ErrEmptyOrder)
}

func TestCancelOrder_ReleasesCouponOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(strPtr("SAVE20")))
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(ctx, order.ID, "customer_request", "admin")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)

	// second cancel is a no-op for the coupon and emits nothing new
	_, err = f.svc.CancelOrder(ctx, order.ID, "customer_request", "admin")
	require.NoError(t, err)

	assert.Equal(t, 1, f.ledger.released["SAVE20"])
	assert.Equal(t, []string{events.TypeOrderCancelled}, f.publisher.types())
}

func TestCancelOrder_DeliveredIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(nil))
	require.NoError(t, err)

	for _, next := range []model.OrderStatus{
		model.OrderStatusConfirmed,
		model.OrderStatusPreparing,
		model.OrderStatusOutForDelivery,
		model.OrderStatusDelivered,
	} {
		_, err := f.svc.UpdateStatus(ctx, order.ID, model.UpdateOrderStatusRequest{Status: string(next)}, "admin")
		require.NoError(t, err)
	}

	_, err = f.svc.CancelOrder(ctx, order.ID, "too_late", "admin")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestAbortOrder_NoEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(strPtr("SAVE20")))
	require.NoError(t, err)

	require.NoError(t, f.svc.AbortOrder(ctx, order.ID, model.ReasonGatewayUnavailable))
	require.NoError(t, f.svc.AbortOrder(ctx, order.ID, model.ReasonGatewayUnavailable))

	stored, _ := f.repo.GetByID(ctx, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.Equal(t, model.ReasonGatewayUnavailable, *stored.CancellationReason)
	assert.Equal(t, 1, f.ledger.released["SAVE20"])
	assert.Empty(t, f.publisher.messages)
}

func TestExpireUnpaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(strPtr("SAVE20")))
	require.NoError(t, err)

	// still inside the window
	expired, err := f.svc.ExpireUnpaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	f.now = f.now.Add(16 * time.Minute)
	expired, err = f.svc.ExpireUnpaid(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	stored, _ := f.repo.GetByID(ctx, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.Equal(t, model.ReasonPaymentTimeout, *stored.CancellationReason)
	assert.Equal(t, 1, f.ledger.released["SAVE20"])
	assert.Equal(t, []string{events.TypeOrderCancelled}, f.publisher.types())

	// redelivered task
	expired, err = f.svc.ExpireUnpaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, 1, f.ledger.released["SAVE20"])
}

func TestExpireUnpaid_SkipsConfirmed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(nil))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, model.UpdateOrderStatusRequest{Status: string(model.OrderStatusConfirmed)}, "payment")
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	expired, err := f.svc.ExpireUnpaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestExpireUnpaid_LockBusy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(nil))
	require.NoError(t, err)

	f.locker.busy = true
	f.now = f.now.Add(time.Hour)
	_, err = f.svc.ExpireUnpaid(ctx, order.ID)
	assert.ErrorIs(t, err, cache.ErrLockNotAcquired)
}

func TestExpireOverdue_Sweep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateOrder(ctx, sampleInput(nil))
		require.NoError(t, err)
	}

	f.now = f.now.Add(20 * time.Minute)
	count, err := f.svc.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, f.publisher.messages, 3)
}

func TestMarkPaymentProcessing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, sampleInput(nil))
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkPaymentProcessing(ctx, order.ID))
	require.NoError(t, f.svc.MarkPaymentProcessing(ctx, order.ID))

	stored, _ := f.repo.GetByID(ctx, order.ID)
	assert.Equal(t, model.PaymentStatusProcessing, stored.PaymentStatus)
}
