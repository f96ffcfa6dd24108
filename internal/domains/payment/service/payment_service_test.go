package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderModel "food-ordering-backend/internal/domains/order/model"
	orderService "food-ordering-backend/internal/domains/order/service"
	"food-ordering-backend/internal/domains/payment/gateway"
	"food-ordering-backend/internal/domains/payment/gateway/sandbox"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/shared/events"
)

// ---- inbox ----

type fakeInbox struct {
	w       *world
	saveErr error
}

func (i *fakeInbox) Save(_ context.Context, e *model.InboxEvent) (bool, error) {
	if i.saveErr != nil {
		return false, i.saveErr
	}
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	if _, ok := i.w.inbox[e.EventKey]; ok {
		return false, nil
	}
	i.w.inbox[e.EventKey] = *e
	return true, nil
}

func (i *fakeInbox) GetByKey(_ context.Context, key string) (*model.InboxEvent, error) {
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	e, ok := i.w.inbox[key]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return &e, nil
}

func (i *fakeInbox) MarkProcessed(_ context.Context, key, outcome string, at time.Time) error {
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	e := i.w.inbox[key]
	e.ProcessedAt = &at
	e.Outcome = &outcome
	e.Attempts++
	i.w.inbox[key] = e
	return nil
}

func (i *fakeInbox) MarkAttemptFailed(_ context.Context, key, cause string) error {
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	e := i.w.inbox[key]
	e.Attempts++
	e.LastError = &cause
	i.w.inbox[key] = e
	return nil
}

func (i *fakeInbox) ListUnprocessed(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	i.w.mu.Lock()
	defer i.w.mu.Unlock()
	var keys []string
	for k, e := range i.w.inbox {
		if e.ProcessedAt == nil && e.ReceivedAt.Before(olderThan) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// ---- enqueuer ----

type fakeEnqueuer struct {
	keys []string
	err  error
}

func (e *fakeEnqueuer) EnqueueGatewayEvent(_ context.Context, key string) error {
	if e.err != nil {
		return e.err
	}
	e.keys = append(e.keys, key)
	return nil
}

// ---- order service ----

type stubOrders struct {
	orderService.OrderService
	w *world
}

func (s stubOrders) GetOrder(ctx context.Context, id uuid.UUID) (*orderModel.Order, error) {
	return fakeOrders{s.w}.GetByID(ctx, id)
}

func (s stubOrders) MarkPaymentProcessing(ctx context.Context, id uuid.UUID) error {
	order, err := fakeOrders{s.w}.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := order.SetPaymentStatus(orderModel.PaymentStatusProcessing, time.Now()); err != nil {
		return err
	}
	return fakeOrders{s.w}.Update(ctx, order, nil)
}

type serviceFixture struct {
	*reconcilerFixture
	svc      *paymentService
	gw       *sandbox.Gateway
	inbox    *fakeInbox
	enqueuer *fakeEnqueuer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	rf := newReconcilerFixture(t)
	f := &serviceFixture{
		reconcilerFixture: rf,
		gw:                sandbox.NewGateway("whsec_test"),
		inbox:             &fakeInbox{w: rf.w},
		enqueuer:          &fakeEnqueuer{},
	}
	f.svc = NewPaymentService(
		f.gw, fakePayments{rf.w}, f.inbox, rf.rec, stubOrders{w: rf.w}, f.enqueuer, fakeTx{rf.w}, time.Second,
	).(*paymentService)
	return f
}

func (f *serviceFixture) webhook(t *testing.T, id, eventType string) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    model.EventData{IntentID: f.intent, Amount: 2500, Currency: "usd"},
	})
	require.NoError(t, err)
	return body, gateway.SignatureHeader("whsec_test", time.Now().Unix(), body)
}

func TestIngestWebhook_PersistsAndEnqueues(t *testing.T) {
	f := newServiceFixture(t)
	body, sig := f.webhook(t, "evt_1", model.EventPaymentSucceeded)

	require.NoError(t, f.svc.IngestWebhook(context.Background(), body, sig))
	// duplicate delivery is stored once
	require.NoError(t, f.svc.IngestWebhook(context.Background(), body, sig))

	assert.Len(t, f.w.inbox, 1)
	assert.Equal(t, []string{"evt_1"}, f.enqueuer.keys)
	// nothing applied yet
	assert.Equal(t, orderModel.OrderStatusPending, f.w.order(f.orderID).Status)
}

func TestIngestWebhook_BadSignature(t *testing.T) {
	f := newServiceFixture(t)
	body, _ := f.webhook(t, "evt_1", model.EventPaymentSucceeded)

	err := f.svc.IngestWebhook(context.Background(), body, "t=1,v1=bad")
	assert.ErrorIs(t, err, model.ErrInvalidSignature)
	assert.Empty(t, f.w.inbox)
}

func TestIngestWebhook_EnqueueFailureStillAccepted(t *testing.T) {
	f := newServiceFixture(t)
	f.enqueuer.err = errors.New("redis down")
	body, sig := f.webhook(t, "evt_1", model.EventPaymentSucceeded)

	require.NoError(t, f.svc.IngestWebhook(context.Background(), body, sig))
	assert.Len(t, f.w.inbox, 1)
}

func TestIngestWebhook_PersistFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.inbox.saveErr = errors.New("db down")
	body, sig := f.webhook(t, "evt_1", model.EventPaymentSucceeded)

	assert.Error(t, f.svc.IngestWebhook(context.Background(), body, sig))
}

func TestProcessInboxEvent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	body, sig := f.webhook(t, "evt_1", model.EventPaymentSucceeded)
	require.NoError(t, f.svc.IngestWebhook(ctx, body, sig))

	outcome, err := f.svc.ProcessInboxEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, model.Ack, outcome)
	assert.NotNil(t, f.w.inbox["evt_1"].ProcessedAt)
	assert.Equal(t, orderModel.OrderStatusConfirmed, f.w.order(f.orderID).Status)

	// already processed
	outcome, err = f.svc.ProcessInboxEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, model.Ack, outcome)
}

func TestProcessInboxEvent_RetryRecordsAttempt(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	body, sig := f.webhook(t, "evt_1", model.EventPaymentSucceeded)
	require.NoError(t, f.svc.IngestWebhook(ctx, body, sig))

	lock, err := f.locker.Acquire(ctx, orderModel.LockKey(f.orderID), time.Second)
	require.NoError(t, err)

	outcome, err := f.svc.ProcessInboxEvent(ctx, "evt_1")
	assert.Error(t, err)
	assert.Equal(t, model.Retry, outcome)
	assert.Equal(t, 1, f.w.inbox["evt_1"].Attempts)
	assert.Nil(t, f.w.inbox["evt_1"].ProcessedAt)

	require.NoError(t, lock.Release(ctx))

	// the sweep only looks at events older than minAge
	count, err := f.svc.RetryUnprocessed(ctx, -time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, orderModel.OrderStatusConfirmed, f.w.order(f.orderID).Status)
}

func TestRequestIntent_GatewayDown(t *testing.T) {
	f := newServiceFixture(t)
	f.gw.SetFail(true)
	order := f.w.order(f.orderID)

	_, err := f.svc.RequestIntent(context.Background(), &order)
	var payErr *model.PaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Equal(t, model.ErrCodeGatewayUnavailable, payErr.Code)
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
}

func TestRequestIntent_Timeout(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.gatewayTimeout = 20 * time.Millisecond
	f.gw.SetDelay(200 * time.Millisecond)
	order := f.w.order(f.orderID)

	_, err := f.svc.RequestIntent(context.Background(), &order)
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryPayment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// not failed yet
	_, err := f.svc.RetryPayment(ctx, f.orderID, nil, "")
	assert.ErrorIs(t, err, orderModel.ErrOrderNotFound)

	session := uuid.NewString()
	f.w.mu.Lock()
	o := f.w.orders[f.orderID]
	o.SessionID = &session
	f.w.orders[f.orderID] = o
	f.w.mu.Unlock()

	_, err = f.svc.RetryPayment(ctx, f.orderID, nil, session)
	assert.ErrorIs(t, err, model.ErrRetryNotAllowed)

	_, err = f.rec.HandleGatewayEvent(ctx, f.failed("evt_1"))
	require.NoError(t, err)

	handle, err := f.svc.RetryPayment(ctx, f.orderID, nil, session)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.IntentID)
	assert.NotEmpty(t, handle.ClientSecret)

	assert.Equal(t, orderModel.PaymentStatusProcessing, f.w.order(f.orderID).PaymentStatus)
	payment, err := fakePayments{f.w}.GetByOrderID(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequiresPaymentMethod, payment.Status)
	assert.Nil(t, payment.ErrorCode)
}

func signedEvent(t *testing.T, id, intentID, eventType string, created int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"type":    eventType,
		"created": created,
		"data":    model.EventData{IntentID: intentID, Amount: 2500, Currency: "usd", ErrorCode: "card_declined"},
	})
	require.NoError(t, err)
	return body, gateway.SignatureHeader("whsec_test", time.Now().Unix(), body)
}

func TestRetryPayment_RepeatedFailureWithoutEventID(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	session := uuid.NewString()
	f.w.mu.Lock()
	o := f.w.orders[f.orderID]
	o.SessionID = &session
	f.w.orders[f.orderID] = o
	f.w.mu.Unlock()

	_, err := f.rec.HandleGatewayEvent(ctx, f.failed("evt_0"))
	require.NoError(t, err)

	fail := func(created int64) {
		t.Helper()
		handle, err := f.svc.RetryPayment(ctx, f.orderID, nil, session)
		require.NoError(t, err)

		body, sig := signedEvent(t, "", handle.IntentID, model.EventPaymentFailed, created)
		require.NoError(t, f.svc.IngestWebhook(ctx, body, sig))

		key := model.GatewayEvent{IntentID: handle.IntentID, EventType: model.EventPaymentFailed, Created: created}.MarkerKey()
		outcome, err := f.svc.ProcessInboxEvent(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, model.Ack, outcome)
		assert.Equal(t, orderModel.PaymentStatusFailed, f.w.order(f.orderID).PaymentStatus)
	}

	// the retried intent is the same both times, only the timestamp differs
	fail(1700000000)
	fail(1700000300)

	assert.Len(t, f.w.inbox, 2)
	assert.Equal(t, []string{
		events.TypePaymentFailed, events.TypePaymentFailed, events.TypePaymentFailed,
	}, f.w.publishedTypes())
}
