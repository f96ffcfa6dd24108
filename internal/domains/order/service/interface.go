package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/order/model"
)

// OrderService defines business operations on orders
type OrderService interface {
	// CreateOrder persists a pending order. Joins the transaction in ctx.
	CreateOrder(ctx context.Context, input model.CreateOrderInput) (*model.Order, error)

	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.OrderListItem, int, error)
	GetHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusHistory, error)

	// UpdateStatus is the admin override; still bound by the state machine
	UpdateStatus(ctx context.Context, orderID uuid.UUID, req model.UpdateOrderStatusRequest, changedBy string) (*model.Order, error)

	// MarkPaymentProcessing moves paymentStatus to processing once an intent exists
	MarkPaymentProcessing(ctx context.Context, orderID uuid.UUID) error

	// AbortOrder cancels an order that was never announced (checkout compensation).
	// Releases its coupon once, publishes nothing.
	AbortOrder(ctx context.Context, orderID uuid.UUID, reason string) error

	// CancelOrder cancels, releases the coupon once and publishes OrderCancelled
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason, changedBy string) (*model.Order, error)

	// ExpireUnpaid cancels the order when it is still pending past its
	// payment deadline. Returns false when there was nothing to do.
	ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error)

	// ExpireOverdue sweeps pending orders past their deadline
	ExpireOverdue(ctx context.Context, limit int) (int, error)

	// SchedulePaymentDeadline arms the one-shot expiry task of an order
	SchedulePaymentDeadline(ctx context.Context, order *model.Order) error
}

// DeadlineScheduler enqueues the delayed payment deadline check
type DeadlineScheduler interface {
	SchedulePaymentDeadline(ctx context.Context, orderID uuid.UUID, orderNumber string, deadline time.Time) error
}
