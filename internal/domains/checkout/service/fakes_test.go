package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartModel "food-ordering-backend/internal/domains/cart/model"
	cartService "food-ordering-backend/internal/domains/cart/service"
	"food-ordering-backend/internal/domains/checkout/model"
	couponModel "food-ordering-backend/internal/domains/coupon/model"
	orderModel "food-ordering-backend/internal/domains/order/model"
	orderService "food-ordering-backend/internal/domains/order/service"
	"food-ordering-backend/internal/domains/payment/gateway"
	paymentModel "food-ordering-backend/internal/domains/payment/model"
	paymentService "food-ordering-backend/internal/domains/payment/service"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/cache"
)

// ---- carts ----

type fakeCarts struct {
	cartService.ServiceInterface

	mu      sync.Mutex
	carts   map[uuid.UUID]*cartModel.Cart
	cleared []uuid.UUID
}

func newFakeCarts(carts ...*cartModel.Cart) *fakeCarts {
	f := &fakeCarts{carts: map[uuid.UUID]*cartModel.Cart{}}
	for _, c := range carts {
		f.carts[c.ID] = c
	}
	return f
}

func (f *fakeCarts) GetByID(_ context.Context, id uuid.UUID) (*cartModel.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[id]
	if !ok {
		return nil, cartModel.ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]cartModel.CartItem(nil), c.Items...)
	return &cp, nil
}

func (f *fakeCarts) Clear(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.carts[id]
	c.Items = nil
	c.CouponCode = nil
	c.Totals = cartModel.Totals{}
	c.Version++
	f.cleared = append(f.cleared, id)
	return nil
}

// ---- coupons ----

type fakeLedger struct {
	mu    sync.Mutex
	used  map[string]int
	limit map[string]int

	// releaseFailures makes the next n Release calls fail
	releaseFailures int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{used: map[string]int{}, limit: map[string]int{}}
}

func (l *fakeLedger) Validate(context.Context, string, decimal.Decimal, *uuid.UUID) (*couponModel.ValidationResult, error) {
	return &couponModel.ValidationResult{Valid: true}, nil
}

func (l *fakeLedger) Redeem(_ context.Context, code string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used[code] >= l.limit[code] {
		return false, nil
	}
	l.used[code]++
	return true, nil
}

func (l *fakeLedger) Release(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.releaseFailures > 0 {
		l.releaseFailures--
		return errBoom
	}
	if l.used[code] > 0 {
		l.used[code]--
	}
	return nil
}

func (l *fakeLedger) usedCount(code string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[code]
}

// ---- orders ----

type fakeOrders struct {
	orderService.OrderService

	ledger *fakeLedger

	mu         sync.Mutex
	orders     map[uuid.UUID]*orderModel.Order
	released   map[uuid.UUID]bool
	aborted    map[uuid.UUID]string
	scheduled  []uuid.UUID
	processing []uuid.UUID
	createErr  error
}

func newFakeOrders(ledger *fakeLedger) *fakeOrders {
	return &fakeOrders{
		ledger:   ledger,
		orders:   map[uuid.UUID]*orderModel.Order{},
		released: map[uuid.UUID]bool{},
		aborted:  map[uuid.UUID]string{},
	}
}

func (f *fakeOrders) CreateOrder(_ context.Context, in orderModel.CreateOrderInput) (*orderModel.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	o := &orderModel.Order{
		ID:            uuid.New(),
		OrderNumber:   "FO-20261016-" + uuid.NewString()[:6],
		CartID:        in.CartID,
		UserID:        in.UserID,
		Status:        orderModel.OrderStatusPending,
		PaymentStatus: orderModel.PaymentStatusPending,
		Total:         in.Total,
		Currency:      in.Currency,
		CouponCode:    in.CouponCode,
		Items:         in.Items,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeOrders) MarkPaymentProcessing(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].PaymentStatus = orderModel.PaymentStatusProcessing
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeOrders) AbortOrder(ctx context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return orderModel.ErrOrderNotFound
	}
	o.Status = orderModel.OrderStatusCancelled
	f.aborted[id] = reason
	if o.CouponCode != nil && !f.released[id] {
		f.released[id] = true
		return f.ledger.Release(ctx, *o.CouponCode)
	}
	return nil
}

func (f *fakeOrders) SchedulePaymentDeadline(_ context.Context, o *orderModel.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, o.ID)
	return nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// ---- payments ----

type fakePayments struct {
	paymentService.PaymentService

	mu        sync.Mutex
	intentErr error
	recorded  map[uuid.UUID]string
}

func newFakePayments() *fakePayments {
	return &fakePayments{recorded: map[uuid.UUID]string{}}
}

func (f *fakePayments) RequestIntent(_ context.Context, o *orderModel.Order) (*gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	return &gateway.Intent{IntentID: "pi_" + o.ID.String()[:8], ClientSecret: "secret_" + o.ID.String()[:8]}, nil
}

func (f *fakePayments) RecordIntent(_ context.Context, o *orderModel.Order, intent *gateway.Intent) (*paymentModel.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded[o.ID] = intent.IntentID
	return &paymentModel.Payment{ID: uuid.New(), OrderID: o.ID, IntentID: intent.IntentID}, nil
}

// ---- attempts ----

type attemptKey struct {
	cartID uuid.UUID
	key    string
}

type fakeAttempts struct {
	txMu  sync.Mutex // one fake transaction at a time
	mu    sync.Mutex
	byKey map[attemptKey]*model.Attempt
	byID  map[uuid.UUID]*model.Attempt
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{byKey: map[attemptKey]*model.Attempt{}, byID: map[uuid.UUID]*model.Attempt{}}
}

func (f *fakeAttempts) Claim(_ context.Context, cartID uuid.UUID, key string, coupon *string) (*model.Attempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byKey[attemptKey{cartID, key}]; ok {
		if a.Status != model.AttemptFailed || a.OwesCoupon() {
			cp := *a
			return &cp, false, nil
		}
		*a = model.Attempt{ID: a.ID, CartID: cartID, IdempotencyKey: key, Status: model.AttemptStarted, CouponCode: coupon}
		cp := *a
		return &cp, true, nil
	}
	a := &model.Attempt{ID: uuid.New(), CartID: cartID, IdempotencyKey: key, Status: model.AttemptStarted, CouponCode: coupon}
	f.byKey[attemptKey{cartID, key}] = a
	f.byID[a.ID] = a
	cp := *a
	return &cp, true, nil
}

func (f *fakeAttempts) add(a *model.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[attemptKey{a.CartID, a.IdempotencyKey}] = a
	f.byID[a.ID] = a
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, model.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) update(id uuid.UUID, fn func(a *model.Attempt)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return model.ErrAttemptNotFound
	}
	fn(a)
	return nil
}

func (f *fakeAttempts) MarkCouponRedeemed(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(a *model.Attempt) {
		a.Status = model.AttemptCouponRedeemed
		a.CouponRedeemed = true
	})
}

func (f *fakeAttempts) MarkOrderCreated(_ context.Context, id, orderID uuid.UUID, number string) error {
	return f.update(id, func(a *model.Attempt) {
		a.Status = model.AttemptOrderCreated
		a.OrderID = &orderID
		a.OrderNumber = &number
	})
}

func (f *fakeAttempts) MarkCompleted(_ context.Context, id uuid.UUID, intentID, secret string) error {
	return f.update(id, func(a *model.Attempt) {
		a.Status = model.AttemptCompleted
		a.PaymentIntentID = &intentID
		a.ClientSecret = &secret
	})
}

func (f *fakeAttempts) MarkFailed(_ context.Context, id uuid.UUID, code string) error {
	return f.update(id, func(a *model.Attempt) {
		if a.Status == model.AttemptCompleted {
			return
		}
		a.Status = model.AttemptFailed
		a.ErrorCode = &code
	})
}

func (f *fakeAttempts) MarkCouponReleased(_ context.Context, id uuid.UUID) (bool, error) {
	claimed := false
	err := f.update(id, func(a *model.Attempt) {
		if a.CouponRedeemed && !a.CouponReleased {
			a.CouponReleased = true
			claimed = true
		}
	})
	return claimed, err
}

func (f *fakeAttempts) ListStuck(_ context.Context, before time.Time, limit int) ([]*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Attempt
	for _, a := range f.byID {
		if (a.Status.InProgress() || a.OwesCoupon()) && a.UpdatedAt.Before(before) && len(out) < limit {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAttempts) snapshot() map[uuid.UUID]model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := make(map[uuid.UUID]model.Attempt, len(f.byID))
	for id, a := range f.byID {
		snap[id] = *a
	}
	return snap
}

func (f *fakeAttempts) restore(snap map[uuid.UUID]model.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.byID {
		if saved, ok := snap[id]; ok {
			*a = saved
		}
	}
}

func (f *fakeAttempts) get(id uuid.UUID) model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeAttempts) only() model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		return *a
	}
	return model.Attempt{}
}

// ---- infra ----

type fakePublisher struct {
	mu       sync.Mutex
	messages []events.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.messages {
		out = append(out, m.MessageType)
	}
	return out
}

// fakeTx restores the attempt rows when fn fails
type fakeTx struct{ attempts *fakeAttempts }

func (t fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.attempts.txMu.Lock()
	defer t.attempts.txMu.Unlock()

	snap := t.attempts.snapshot()
	if err := fn(ctx); err != nil {
		t.attempts.restore(snap)
		return err
	}
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

type memLock struct {
	l   *memLocker
	key string
}

func (l *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (cache.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, cache.ErrLockNotAcquired
	}
	l.held[key] = true
	return &memLock{l: l, key: key}, nil
}

func (m *memLock) Release(context.Context) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	delete(m.l.held, m.key)
	return nil
}

var errBoom = errors.New("boom")
