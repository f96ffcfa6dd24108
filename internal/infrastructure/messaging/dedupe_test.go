package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food-ordering-backend/internal/shared/events"
)

type fakeTx struct{ calls int }

func (f *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeProcessedStore struct {
	seen map[string]bool
	err  error
}

func newFakeProcessedStore() *fakeProcessedStore {
	return &fakeProcessedStore{seen: map[string]bool{}}
}

func (f *fakeProcessedStore) MarkProcessed(_ context.Context, id uuid.UUID, consumer, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := id.String() + "/" + consumer
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func TestDeduplicate_RunsHandlerOncePerMessage(t *testing.T) {
	store := newFakeProcessedStore()
	calls := 0
	handler := Deduplicate(&fakeTx{}, store, "notifications", func(ctx context.Context, msg events.Message) error {
		calls++
		return nil
	})

	msg, err := events.New(events.TypeOrderConfirmed, "order-1", events.OrderConfirmed{OrderNumber: "FO-1"})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), msg))
	require.NoError(t, handler(context.Background(), msg))

	assert.Equal(t, 1, calls)
}

func TestDeduplicate_SeparateConsumersBothRun(t *testing.T) {
	store := newFakeProcessedStore()
	calls := 0
	next := func(ctx context.Context, msg events.Message) error {
		calls++
		return nil
	}

	msg, err := events.New(events.TypeOrderCreated, "order-1", events.OrderCreated{OrderNumber: "FO-1"})
	require.NoError(t, err)

	require.NoError(t, Deduplicate(&fakeTx{}, store, "a", next)(context.Background(), msg))
	require.NoError(t, Deduplicate(&fakeTx{}, store, "b", next)(context.Background(), msg))

	assert.Equal(t, 2, calls)
}

func TestDeduplicate_PropagatesStoreError(t *testing.T) {
	store := newFakeProcessedStore()
	store.err = errors.New("db down")

	handler := Deduplicate(&fakeTx{}, store, "a", func(ctx context.Context, msg events.Message) error {
		t.Fatal("handler must not run")
		return nil
	})

	msg, err := events.New(events.TypeOrderCreated, "order-1", events.OrderCreated{})
	require.NoError(t, err)

	assert.Error(t, handler(context.Background(), msg))
}

func TestWants(t *testing.T) {
	types := []string{events.TypeOrderConfirmed, events.TypeOrderCancelled}

	assert.True(t, wants(types, events.TypeOrderCancelled))
	assert.False(t, wants(types, events.TypePaymentFailed))
}
