package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func TestOrderStatus_TerminalStatesHaveNoExit(t *testing.T) {
	for _, terminal := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled} {
		for _, next := range allStatuses {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestOrderStatus_CancelledReachableFromEveryNonTerminal(t *testing.T) {
	for _, s := range allStatuses {
		if s.IsTerminal() {
			continue
		}
		assert.True(t, s.CanTransitionTo(OrderStatusCancelled), s.String())
	}
}

func TestOrderStatus_NoSkippingOrGoingBack(t *testing.T) {
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusPreparing))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusDelivered))
	assert.False(t, OrderStatusConfirmed.CanTransitionTo(OrderStatusPending))
	assert.False(t, OrderStatusOutForDelivery.CanTransitionTo(OrderStatusPreparing))
}

// Every state is reachable from pending
func TestOrderStatus_Reachability(t *testing.T) {
	seen := map[OrderStatus]bool{OrderStatusPending: true}
	queue := []OrderStatus{OrderStatusPending}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range allStatuses {
			if cur.CanTransitionTo(next) && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, s := range allStatuses {
		assert.True(t, seen[s], "%s unreachable", s)
	}
}

func TestPaymentStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		ok       bool
	}{
		{PaymentStatusPending, PaymentStatusProcessing, true},
		{PaymentStatusProcessing, PaymentStatusSucceeded, true},
		{PaymentStatusProcessing, PaymentStatusFailed, true},
		{PaymentStatusFailed, PaymentStatusProcessing, true},
		{PaymentStatusSucceeded, PaymentStatusRefunded, true},
		{PaymentStatusSucceeded, PaymentStatusFailed, false},
		{PaymentStatusPending, PaymentStatusSucceeded, false},
		{PaymentStatusRefunded, PaymentStatusSucceeded, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrder_TransitionStampsTimestamps(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	order := &Order{ID: uuid.New(), Status: OrderStatusPending}

	h, err := order.Transition(OrderStatusConfirmed, "", ChangedByPayment, now)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, *h.FromStatus)
	assert.Equal(t, OrderStatusConfirmed, h.ToStatus)
	require.NotNil(t, order.ConfirmedAt)
	assert.Equal(t, now, order.UpdatedAt)

	_, err = order.Transition(OrderStatusCancelled, ReasonPaymentTimeout, ChangedBySystem, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, order.CancelledAt)
	require.NotNil(t, order.CancellationReason)
	assert.Equal(t, ReasonPaymentTimeout, *order.CancellationReason)

	_, err = order.Transition(OrderStatusConfirmed, "", ChangedByPayment, now)
	var orderErr *OrderError
	require.ErrorAs(t, err, &orderErr)
	assert.Equal(t, ErrCodeInvalidTransition, orderErr.Code)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrder_SetPaymentStatusIsIdempotent(t *testing.T) {
	order := &Order{PaymentStatus: PaymentStatusProcessing}
	require.NoError(t, order.SetPaymentStatus(PaymentStatusProcessing, time.Now()))
	require.NoError(t, order.SetPaymentStatus(PaymentStatusSucceeded, time.Now()))
	assert.Error(t, order.SetPaymentStatus(PaymentStatusFailed, time.Now()))
}

func TestOrder_IsOwnedBy(t *testing.T) {
	user := uuid.New()
	session := uuid.NewString()

	userOrder := &Order{UserID: &user}
	assert.True(t, userOrder.IsOwnedBy(&user, ""))
	other := uuid.New()
	assert.False(t, userOrder.IsOwnedBy(&other, ""))
	assert.False(t, userOrder.IsOwnedBy(nil, session))

	guestOrder := &Order{SessionID: &session}
	assert.True(t, guestOrder.IsOwnedBy(nil, session))
	assert.False(t, guestOrder.IsOwnedBy(nil, uuid.NewString()))
}
