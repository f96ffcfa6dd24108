package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/pkg/database"
)

type markerRepository struct {
	pool *pgxpool.Pool
}

func NewMarkerRepository(pool *pgxpool.Pool) MarkerRepository {
	return &markerRepository{pool: pool}
}

func (r *markerRepository) Exists(ctx context.Context, eventKey string) (bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_event_markers WHERE event_key = $1)`, eventKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment event marker: %w", err)
	}
	return exists, nil
}

func (r *markerRepository) Insert(ctx context.Context, eventKey, intentID, eventType string) (bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		INSERT INTO payment_event_markers (event_key, intent_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_key) DO NOTHING
	`, eventKey, intentID, eventType)
	if err != nil {
		return false, fmt.Errorf("insert payment event marker: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
