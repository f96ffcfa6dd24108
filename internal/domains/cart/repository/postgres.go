package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

const ownerCacheTTL = 30 * time.Minute

type postgresRepository struct {
	pool  *pgxpool.Pool
	tx    database.TxManager
	cache cache.Cache // owner -> cart id, optional
}

func NewPostgresRepository(pool *pgxpool.Pool, tx database.TxManager, cache cache.Cache) RepositoryInterface {
	return &postgresRepository{
		pool:  pool,
		tx:    tx,
		cache: cache,
	}
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Cart, error) {
	q := database.QuerierFrom(ctx, r.pool)

	query := `
		SELECT id, user_id, session_id, coupon_code, version, created_at, updated_at
		FROM carts
		WHERE id = $1
	`

	var cart model.Cart
	err := q.QueryRow(ctx, query, id).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.SessionID,
		&cart.CouponCode,
		&cart.Version,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items, err := r.loadItems(ctx, q, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return &cart, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, q database.Querier, cartID uuid.UUID) ([]model.CartItem, error) {
	query := `
		SELECT id, product_id, product_name, image_url, unit_price, quantity, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position ASC
	`

	rows, err := q.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]model.CartItem, 0)
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(
			&item.ID,
			&item.ProductID,
			&item.ProductName,
			&item.ImageURL,
			&item.UnitPrice,
			&item.Quantity,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetByOwner resolves the cart id through the cache first.
// A stale cache entry falls back to the database.
func (r *postgresRepository) GetByOwner(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, model.ErrCartNotFound
	}

	if r.cache != nil {
		var cartID uuid.UUID
		found, err := r.cache.Get(ctx, owner.CacheKey(), &cartID)
		if err == nil && found {
			cart, err := r.GetByID(ctx, cartID)
			if err == nil && cart.OwnedBy(owner) {
				return cart, nil
			}
			_ = r.cache.Delete(ctx, owner.CacheKey())
		}
	}

	var (
		query string
		arg   interface{}
	)
	if owner.UserID != nil {
		query = `SELECT id FROM carts WHERE user_id = $1`
		arg = *owner.UserID
	} else {
		query = `SELECT id FROM carts WHERE session_id = $1`
		arg = *owner.SessionID
	}

	var cartID uuid.UUID
	if err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, arg).Scan(&cartID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart by owner: %w", err)
	}

	r.cacheOwner(ctx, owner, cartID)
	return r.GetByID(ctx, cartID)
}

func (r *postgresRepository) Create(ctx context.Context, cart *model.Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	cart.Version = 1

	query := `
		INSERT INTO carts (id, user_id, session_id, coupon_code, version)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query,
		cart.ID, cart.UserID, cart.SessionID, cart.CouponCode, cart.Version,
	).Scan(&cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// lost a create race with the same owner
			return model.ErrVersionConflict
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}

	r.cacheOwner(ctx, cart.Owner(), cart.ID)
	return nil
}

func (r *postgresRepository) Save(ctx context.Context, cart *model.Cart) error {
	return r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		q := database.QuerierFrom(ctx, r.pool)

		// Step 1: optimistic version check
		query := `
			UPDATE carts
			SET coupon_code = $3, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		err := q.QueryRow(ctx, query, cart.ID, cart.Version, cart.CouponCode).Scan(&cart.Version, &cart.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrVersionConflict
			}
			return fmt.Errorf("failed to update cart: %w", err)
		}

		// Step 2: replace items, position follows slice order
		if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}

		insert := `
			INSERT INTO cart_items (id, cart_id, product_id, product_name, image_url, unit_price, quantity, position, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		for i := range cart.Items {
			item := &cart.Items[i]
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			if item.UpdatedAt.IsZero() {
				item.UpdatedAt = time.Now().UTC()
			}
			if _, err := q.Exec(ctx, insert,
				item.ID, cart.ID, item.ProductID, item.ProductName, item.ImageURL,
				item.UnitPrice, item.Quantity, i, item.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert cart item: %w", err)
			}
		}

		return nil
	})
}

func (r *postgresRepository) Clear(ctx context.Context, id uuid.UUID) error {
	return r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		q := database.QuerierFrom(ctx, r.pool)

		if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}

		query := `UPDATE carts SET coupon_code = NULL, version = version + 1, updated_at = NOW() WHERE id = $1`
		if _, err := q.Exec(ctx, query, id); err != nil {
			return fmt.Errorf("failed to reset cart: %w", err)
		}
		return nil
	})
}

func (r *postgresRepository) AssignToUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	var sessionID *string
	query := `
		WITH previous AS (
			SELECT id, session_id FROM carts WHERE id = $1 FOR UPDATE
		)
		UPDATE carts c
		SET user_id = $2, session_id = NULL, version = c.version + 1, updated_at = NOW()
		FROM previous
		WHERE c.id = previous.id
		RETURNING previous.session_id
	`
	if err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, id, userID).Scan(&sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrCartNotFound
		}
		return fmt.Errorf("failed to assign cart to user: %w", err)
	}

	if sessionID != nil {
		r.forgetOwner(ctx, model.SessionOwner(*sessionID))
	}
	r.cacheOwner(ctx, model.UserOwner(userID), id)
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var sessionID *string
	var userID *uuid.UUID

	query := `DELETE FROM carts WHERE id = $1 RETURNING session_id, user_id`
	if err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, id).Scan(&sessionID, &userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	r.forgetOwner(ctx, model.Owner{UserID: userID, SessionID: sessionID})
	return nil
}

// ========================================
// CACHE HELPERS
// ========================================

func (r *postgresRepository) cacheOwner(ctx context.Context, owner model.Owner, cartID uuid.UUID) {
	if r.cache == nil || owner.CacheKey() == "" {
		return
	}
	if err := r.cache.Set(ctx, owner.CacheKey(), cartID, ownerCacheTTL); err != nil {
		logger.Warn("Failed to cache cart owner", map[string]interface{}{
			"cart_id": cartID.String(),
			"error":   err.Error(),
		})
	}
}

func (r *postgresRepository) forgetOwner(ctx context.Context, owner model.Owner) {
	if r.cache == nil || owner.CacheKey() == "" {
		return
	}
	_ = r.cache.Delete(ctx, owner.CacheKey())
}
