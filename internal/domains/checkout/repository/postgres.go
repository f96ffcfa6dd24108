package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/checkout/model"
	"food-ordering-backend/pkg/database"
)

const attemptColumns = `
	id, cart_id, idempotency_key, status, coupon_code, coupon_redeemed, coupon_released,
	order_id, order_number, payment_intent_id, client_secret, error_code, created_at, updated_at`

type postgresAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAttemptRepository(pool *pgxpool.Pool) AttemptRepository {
	return &postgresAttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(
		&a.ID, &a.CartID, &a.IdempotencyKey, &a.Status, &a.CouponCode, &a.CouponRedeemed, &a.CouponReleased,
		&a.OrderID, &a.OrderNumber, &a.PaymentIntentID, &a.ClientSecret, &a.ErrorCode, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *postgresAttemptRepository) Claim(
	ctx context.Context,
	cartID uuid.UUID,
	key string,
	couponCode *string,
) (*model.Attempt, bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	attempt, err := scanAttempt(q.QueryRow(ctx, `
		INSERT INTO checkout_attempts (id, cart_id, idempotency_key, status, coupon_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, idempotency_key) DO NOTHING
		RETURNING`+attemptColumns,
		uuid.New(), cartID, key, model.AttemptStarted, couponCode,
	))
	if err == nil {
		return attempt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert checkout attempt: %w", err)
	}

	// A failed attempt may be re-run from scratch unless it still owes a coupon slot
	attempt, err = scanAttempt(q.QueryRow(ctx, `
		UPDATE checkout_attempts
		SET status = $3, coupon_code = $4, coupon_redeemed = FALSE, coupon_released = FALSE,
		    order_id = NULL, order_number = NULL, payment_intent_id = NULL, client_secret = NULL,
		    error_code = NULL, updated_at = NOW()
		WHERE cart_id = $1 AND idempotency_key = $2 AND status = 'failed'
		  AND NOT (coupon_redeemed AND NOT coupon_released AND order_id IS NULL)
		RETURNING`+attemptColumns,
		cartID, key, model.AttemptStarted, couponCode,
	))
	if err == nil {
		return attempt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("reset checkout attempt: %w", err)
	}

	attempt, err = scanAttempt(q.QueryRow(ctx,
		`SELECT`+attemptColumns+` FROM checkout_attempts WHERE cart_id = $1 AND idempotency_key = $2`,
		cartID, key,
	))
	if err != nil {
		return nil, false, fmt.Errorf("load checkout attempt: %w", err)
	}
	return attempt, false, nil
}

func (r *postgresAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	q := database.QuerierFrom(ctx, r.pool)

	attempt, err := scanAttempt(q.QueryRow(ctx, `SELECT`+attemptColumns+` FROM checkout_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	return attempt, nil
}

func (r *postgresAttemptRepository) exec(ctx context.Context, op, sql string, args ...interface{}) error {
	q := database.QuerierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAttemptNotFound
	}
	return nil
}

func (r *postgresAttemptRepository) MarkCouponRedeemed(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "mark coupon redeemed", `
		UPDATE checkout_attempts
		SET status = $2, coupon_redeemed = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id, model.AttemptCouponRedeemed)
}

func (r *postgresAttemptRepository) MarkOrderCreated(ctx context.Context, id, orderID uuid.UUID, orderNumber string) error {
	return r.exec(ctx, "mark order created", `
		UPDATE checkout_attempts
		SET status = $2, order_id = $3, order_number = $4, updated_at = NOW()
		WHERE id = $1
	`, id, model.AttemptOrderCreated, orderID, orderNumber)
}

func (r *postgresAttemptRepository) MarkCompleted(ctx context.Context, id uuid.UUID, intentID, clientSecret string) error {
	return r.exec(ctx, "mark attempt completed", `
		UPDATE checkout_attempts
		SET status = $2, payment_intent_id = $3, client_secret = $4, updated_at = NOW()
		WHERE id = $1
	`, id, model.AttemptCompleted, intentID, clientSecret)
}

func (r *postgresAttemptRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorCode string) error {
	return r.exec(ctx, "mark attempt failed", `
		UPDATE checkout_attempts
		SET status = $2, error_code = $3, updated_at = NOW()
		WHERE id = $1 AND status <> 'completed'
	`, id, model.AttemptFailed, errorCode)
}

func (r *postgresAttemptRepository) MarkCouponReleased(ctx context.Context, id uuid.UUID) (bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE checkout_attempts
		SET coupon_released = TRUE, updated_at = NOW()
		WHERE id = $1 AND coupon_redeemed AND NOT coupon_released
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark attempt coupon released: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresAttemptRepository) ListStuck(ctx context.Context, before time.Time, limit int) ([]*model.Attempt, error) {
	q := database.QuerierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `SELECT`+attemptColumns+`
		FROM checkout_attempts
		WHERE (status IN ('started', 'coupon_redeemed', 'order_created')
		       OR (status = 'failed' AND coupon_redeemed AND NOT coupon_released AND order_id IS NULL))
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stuck attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
