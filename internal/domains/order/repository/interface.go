package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/order/model"
)

// OrderRepository persists orders. Every method joins the transaction
// carried by ctx when there is one.
type OrderRepository interface {
	// Create inserts the order with its items and the initial history row
	Create(ctx context.Context, order *model.Order) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.OrderListItem, int, error)

	// Update writes the mutable columns with an optimistic version check and
	// appends history when given. Increments order.Version on success.
	Update(ctx context.Context, order *model.Order, history *model.StatusHistory) error

	// MarkCouponReleased claims the coupon release exactly once.
	// Returns false when it was already released or there is no coupon.
	MarkCouponReleased(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)

	// ListExpiredPending returns pending orders whose payment deadline passed
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	History(ctx context.Context, orderID uuid.UUID) ([]model.StatusHistory, error)
}
