package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	orderModel "food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/cache"
)

// world is an in-memory database shared by the fakes below.
// fakeTx snapshots it and restores the snapshot when fn fails.
type world struct {
	mu        sync.Mutex
	markers   map[string]bool
	payments  map[string]model.Payment // by intent id
	orders    map[uuid.UUID]orderModel.Order
	published []events.Message
	inbox     map[string]model.InboxEvent

	failOrderUpdate error
}

func newWorld() *world {
	return &world{
		markers:  map[string]bool{},
		payments: map[string]model.Payment{},
		orders:   map[uuid.UUID]orderModel.Order{},
		inbox:    map[string]model.InboxEvent{},
	}
}

type snapshot struct {
	markers   map[string]bool
	payments  map[string]model.Payment
	orders    map[uuid.UUID]orderModel.Order
	published []events.Message
}

func (w *world) snapshot() snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := snapshot{
		markers:   map[string]bool{},
		payments:  map[string]model.Payment{},
		orders:    map[uuid.UUID]orderModel.Order{},
		published: append([]events.Message(nil), w.published...),
	}
	for k, v := range w.markers {
		s.markers[k] = v
	}
	for k, v := range w.payments {
		s.payments[k] = v
	}
	for k, v := range w.orders {
		s.orders[k] = v
	}
	return s
}

func (w *world) restore(s snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.markers, w.payments, w.orders, w.published = s.markers, s.payments, s.orders, s.published
}

func (w *world) publishedTypes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.published))
	for _, m := range w.published {
		out = append(out, m.MessageType)
	}
	return out
}

func (w *world) order(id uuid.UUID) orderModel.Order {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orders[id]
}

func (w *world) payment(intentID string) model.Payment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payments[intentID]
}

// ---- tx ----

type fakeTx struct{ w *world }

func (t fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.w.snapshot()
	if err := fn(ctx); err != nil {
		t.w.restore(snap)
		return err
	}
	return nil
}

// ---- markers ----

type fakeMarkers struct{ w *world }

func (m fakeMarkers) Exists(_ context.Context, key string) (bool, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	return m.w.markers[key], nil
}

func (m fakeMarkers) Insert(_ context.Context, key, _, _ string) (bool, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if m.w.markers[key] {
		return false, nil
	}
	m.w.markers[key] = true
	return true, nil
}

// ---- payments ----

type fakePayments struct{ w *world }

func (p fakePayments) Create(_ context.Context, payment *model.Payment) error {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	p.w.payments[payment.IntentID] = *payment
	return nil
}

func (p fakePayments) GetByIntentID(_ context.Context, intentID string) (*model.Payment, error) {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	payment, ok := p.w.payments[intentID]
	if !ok {
		return nil, model.ErrPaymentNotFound
	}
	return &payment, nil
}

func (p fakePayments) GetByOrderID(_ context.Context, orderID uuid.UUID) (*model.Payment, error) {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	for _, payment := range p.w.payments {
		if payment.OrderID == orderID {
			cp := payment
			return &cp, nil
		}
	}
	return nil, model.ErrPaymentNotFound
}

func (p fakePayments) Update(_ context.Context, payment *model.Payment) error {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	for intent, stored := range p.w.payments {
		if stored.ID == payment.ID {
			delete(p.w.payments, intent)
			p.w.payments[payment.IntentID] = *payment
			return nil
		}
	}
	return model.ErrPaymentNotFound
}

// ---- orders ----

type fakeOrders struct{ w *world }

func (o fakeOrders) Create(_ context.Context, order *orderModel.Order) error {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	order.Version = 1
	o.w.orders[order.ID] = *order
	return nil
}

func (o fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*orderModel.Order, error) {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	order, ok := o.w.orders[id]
	if !ok {
		return nil, orderModel.ErrOrderNotFound
	}
	return &order, nil
}

func (o fakeOrders) GetByNumber(context.Context, string) (*orderModel.Order, error) {
	return nil, orderModel.ErrOrderNotFound
}

func (o fakeOrders) ListByUser(context.Context, uuid.UUID, int, int) ([]orderModel.OrderListItem, int, error) {
	return nil, 0, nil
}

func (o fakeOrders) Update(_ context.Context, order *orderModel.Order, _ *orderModel.StatusHistory) error {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	if o.w.failOrderUpdate != nil {
		return o.w.failOrderUpdate
	}
	stored, ok := o.w.orders[order.ID]
	if !ok {
		return orderModel.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return orderModel.ErrVersionMismatch
	}
	order.Version++
	o.w.orders[order.ID] = *order
	return nil
}

func (o fakeOrders) MarkCouponReleased(context.Context, uuid.UUID, time.Time) (bool, error) {
	return false, nil
}

func (o fakeOrders) ListExpiredPending(context.Context, time.Time, int) ([]uuid.UUID, error) {
	return nil, nil
}

func (o fakeOrders) History(context.Context, uuid.UUID) ([]orderModel.StatusHistory, error) {
	return nil, nil
}

// ---- publisher ----

type fakePublisher struct{ w *world }

func (p fakePublisher) Publish(_ context.Context, msg events.Message) error {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	p.w.published = append(p.w.published, msg)
	return nil
}

// ---- locker ----

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
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

// ---- helpers ----

func eventPayload(intentID string, amount int64, currency string) json.RawMessage {
	raw, _ := json.Marshal(model.EventData{IntentID: intentID, Amount: amount, Currency: currency})
	return raw
}
