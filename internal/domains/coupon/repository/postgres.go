package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/coupon/model"
	"food-ordering-backend/pkg/database"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const couponColumns = `
	id, code, discount_type, discount_value, min_cart_amount,
	max_discount_amount, expires_at, is_active,
	max_usage_count, used_count, created_at, updated_at`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinCartAmount,
		&c.MaxDiscountAmount, // nullable
		&c.ExpiresAt,         // nullable
		&c.IsActive,
		&c.MaxUsageCount,
		&c.UsedCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresRepository) FindByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	c, err := scanCoupon(database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, model.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCouponNotFound
		}
		return nil, fmt.Errorf("find coupon by code: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) List(ctx context.Context, offset, limit int) ([]*model.Coupon, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM coupons`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}

	query := `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := make([]*model.Coupon, 0, limit)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}

	return coupons, total, rows.Err()
}

func (r *postgresRepository) Create(ctx context.Context, c *model.Coupon) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO coupons (
			id, code, discount_type, discount_value, min_cart_amount,
			max_discount_amount, expires_at, is_active, max_usage_count, used_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		RETURNING created_at, updated_at
	`

	err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query,
		c.ID, c.Code, c.DiscountType, c.DiscountValue, c.MinCartAmount,
		c.MaxDiscountAmount, c.ExpiresAt, c.IsActive, c.MaxUsageCount,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return model.ErrDuplicateCode
		}
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, code string, isActive bool) error {
	query := `UPDATE coupons SET is_active = $2, updated_at = NOW() WHERE code = $1`

	tag, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query, model.NormalizeCode(code), isActive)
	if err != nil {
		return fmt.Errorf("update coupon status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCouponNotFound
	}
	return nil
}

// IncrementUsage is a compare-and-swap in one statement: the row only
// changes while a slot is free at commit time.
func (r *postgresRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE code = $1
		  AND is_active = TRUE
		  AND used_count < max_usage_count
	`

	tag, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query, model.NormalizeCode(code))
	if err != nil {
		return false, fmt.Errorf("increment coupon usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresRepository) DecrementUsage(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count - 1, updated_at = NOW()
		WHERE code = $1
		  AND used_count > 0
	`

	tag, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query, model.NormalizeCode(code))
	if err != nil {
		return false, fmt.Errorf("decrement coupon usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
