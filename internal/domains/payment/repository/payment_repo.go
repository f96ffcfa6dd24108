package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/pkg/database"
)

// =====================================================
// PAYMENT REPOSITORY IMPLEMENTATION
// =====================================================
type paymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{pool: pool}
}

const paymentColumns = `
	id, order_id, intent_id, client_secret, amount, amount_minor, currency, status,
	error_code, error_message, created_at, updated_at, succeeded_at, failed_at,
	refund_id, refund_reason, refunded_by, refunded_at`

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	q := database.QuerierFrom(ctx, r.pool)

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := q.Exec(ctx, query,
		p.ID, p.OrderID, p.IntentID, p.ClientSecret, p.Amount, p.AmountMinor, p.Currency, p.Status,
		p.ErrorCode, p.ErrorMessage, p.CreatedAt, p.UpdatedAt, p.SucceededAt, p.FailedAt,
		p.RefundID, p.RefundReason, p.RefundedBy, p.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE intent_id = $1`, intentID)
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
}

func (r *paymentRepository) getOne(ctx context.Context, query string, arg any) (*model.Payment, error) {
	q := database.QuerierFrom(ctx, r.pool)

	var p model.Payment
	err := q.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.OrderID, &p.IntentID, &p.ClientSecret, &p.Amount, &p.AmountMinor, &p.Currency, &p.Status,
		&p.ErrorCode, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt, &p.SucceededAt, &p.FailedAt,
		&p.RefundID, &p.RefundReason, &p.RefundedBy, &p.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	q := database.QuerierFrom(ctx, r.pool)

	query := `
		UPDATE payments SET
			intent_id = $2,
			client_secret = $3,
			status = $4,
			error_code = $5,
			error_message = $6,
			updated_at = $7,
			succeeded_at = $8,
			failed_at = $9,
			refund_id = $10,
			refund_reason = $11,
			refunded_by = $12,
			refunded_at = $13
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		p.ID, p.IntentID, p.ClientSecret, p.Status, p.ErrorCode, p.ErrorMessage,
		p.UpdatedAt, p.SucceededAt, p.FailedAt,
		p.RefundID, p.RefundReason, p.RefundedBy, p.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPaymentNotFound
	}
	return nil
}
