package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/pkg/database"
)

type postgresOrderRepository struct {
	pool *pgxpool.Pool
	tx   database.TxManager
}

func NewPostgresOrderRepository(pool *pgxpool.Pool, tx database.TxManager) OrderRepository {
	return &postgresOrderRepository{pool: pool, tx: tx}
}

const orderColumns = `
	id, order_number, cart_id, user_id, session_id, status, payment_status,
	subtotal, discount_amount, tax_amount, delivery_fee, total, currency, coupon_code,
	delivery_address, needs_review, review_reason, cancellation_reason,
	coupon_released_at, payment_deadline_at,
	created_at, updated_at, confirmed_at, delivered_at, cancelled_at, version`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CartID, &o.UserID, &o.SessionID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.DeliveryFee, &o.Total, &o.Currency, &o.CouponCode,
		&o.DeliveryAddress, &o.NeedsReview, &o.ReviewReason, &o.CancellationReason,
		&o.CouponReleasedAt, &o.PaymentDeadlineAt,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.DeliveredAt, &o.CancelledAt, &o.Version,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// =====================================================
// CREATE
// =====================================================

func (r *postgresOrderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		q := database.QuerierFrom(ctx, r.pool)

		// Step 1: order row
		query := `
			INSERT INTO orders (
				id, order_number, cart_id, user_id, session_id, status, payment_status,
				subtotal, discount_amount, tax_amount, delivery_fee, total, currency, coupon_code,
				delivery_address, payment_deadline_at, created_at, updated_at, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17, 1)
		`
		_, err := q.Exec(ctx, query,
			order.ID, order.OrderNumber, order.CartID, order.UserID, order.SessionID,
			order.Status, order.PaymentStatus,
			order.Subtotal, order.DiscountAmount, order.TaxAmount, order.DeliveryFee, order.Total,
			order.Currency, order.CouponCode,
			order.DeliveryAddress, order.PaymentDeadlineAt, order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.Version = 1
		order.UpdatedAt = order.CreatedAt

		// Step 2: items
		batch := &pgx.Batch{}
		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			batch.Queue(`
				INSERT INTO order_items (id, order_id, product_id, product_name, image_url, unit_price, quantity, line_total)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				item.ID, item.OrderID, item.ProductID, item.ProductName, item.ImageURL,
				item.UnitPrice, item.Quantity, item.LineTotal,
			)
		}

		// Step 3: initial history
		batch.Queue(`
			INSERT INTO order_status_history (id, order_id, from_status, to_status, reason, changed_by, created_at)
			VALUES ($1, $2, NULL, $3, NULL, $4, $5)`,
			uuid.New(), order.ID, order.Status, model.ChangedByCheckout, order.CreatedAt,
		)

		return sendBatch(ctx, q, batch)
	})
}

// sendBatch runs a batch through a pool or a transaction
func sendBatch(ctx context.Context, q database.Querier, batch *pgx.Batch) error {
	type batcher interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	}
	b, ok := q.(batcher)
	if !ok {
		return errors.New("querier does not support batches")
	}

	results := b.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}

// =====================================================
// READ
// =====================================================

func (r *postgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *postgresOrderRepository) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (r *postgresOrderRepository) getOne(ctx context.Context, query string, arg any) (*model.Order, error) {
	q := database.QuerierFrom(ctx, r.pool)

	order, err := scanOrder(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadItems(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *postgresOrderRepository) loadItems(ctx context.Context, q database.Querier, orderID uuid.UUID) ([]model.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, image_url, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make([]model.OrderItem, 0)
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ImageURL,
			&it.UnitPrice, &it.Quantity, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *postgresOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.OrderListItem, int, error) {
	q := database.QuerierFrom(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_number, status, payment_status, total, currency, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	list := make([]model.OrderListItem, 0, limit)
	for rows.Next() {
		var it model.OrderListItem
		if err := rows.Scan(&it.ID, &it.OrderNumber, &it.Status, &it.PaymentStatus,
			&it.Total, &it.Currency, &it.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, it)
	}
	return list, total, rows.Err()
}

func (r *postgresOrderRepository) History(ctx context.Context, orderID uuid.UUID) ([]model.StatusHistory, error) {
	q := database.QuerierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, from_status, to_status, reason, changed_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order history: %w", err)
	}
	defer rows.Close()

	history := make([]model.StatusHistory, 0)
	for rows.Next() {
		var h model.StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Reason, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// =====================================================
// UPDATE
// =====================================================

func (r *postgresOrderRepository) Update(ctx context.Context, order *model.Order, history *model.StatusHistory) error {
	return r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		q := database.QuerierFrom(ctx, r.pool)

		query := `
			UPDATE orders SET
				status = $1,
				payment_status = $2,
				needs_review = $3,
				review_reason = $4,
				cancellation_reason = $5,
				confirmed_at = $6,
				delivered_at = $7,
				cancelled_at = $8,
				updated_at = $9,
				version = version + 1
			WHERE id = $10 AND version = $11
		`
		tag, err := q.Exec(ctx, query,
			order.Status, order.PaymentStatus, order.NeedsReview, order.ReviewReason,
			order.CancellationReason, order.ConfirmedAt, order.DeliveredAt, order.CancelledAt,
			order.UpdatedAt, order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrVersionMismatch
		}
		order.Version++

		if history == nil {
			return nil
		}
		_, err = q.Exec(ctx, `
			INSERT INTO order_status_history (id, order_id, from_status, to_status, reason, changed_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			history.ID, history.OrderID, history.FromStatus, history.ToStatus,
			history.Reason, history.ChangedBy, history.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
		return nil
	})
}

func (r *postgresOrderRepository) MarkCouponReleased(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET coupon_released_at = $2
		WHERE id = $1 AND coupon_code IS NOT NULL AND coupon_released_at IS NULL
	`, orderID, at)
	if err != nil {
		return false, fmt.Errorf("mark coupon released: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresOrderRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	q := database.QuerierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id
		FROM orders
		WHERE status = 'pending' AND payment_deadline_at <= $1
		ORDER BY payment_deadline_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
