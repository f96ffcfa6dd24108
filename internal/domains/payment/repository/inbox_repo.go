package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/pkg/database"
)

// =====================================================
// WEBHOOK INBOX REPOSITORY
// =====================================================
type inboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) InboxRepository {
	return &inboxRepository{pool: pool}
}

// Save is called before the webhook is acknowledged
func (r *inboxRepository) Save(ctx context.Context, e *model.InboxEvent) (bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	query := `
		INSERT INTO gateway_events (id, event_key, event_id, intent_id, event_type, event_created, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_key) DO NOTHING
	`
	tag, err := q.Exec(ctx, query,
		e.ID, e.EventKey, e.EventID, e.IntentID, e.EventType, e.Created, []byte(e.Payload), e.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("save gateway event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *inboxRepository) GetByKey(ctx context.Context, eventKey string) (*model.InboxEvent, error) {
	q := database.QuerierFrom(ctx, r.pool)

	query := `
		SELECT id, event_key, event_id, intent_id, event_type, event_created, payload, received_at,
		       processed_at, outcome, attempts, last_error
		FROM gateway_events
		WHERE event_key = $1
	`
	var e model.InboxEvent
	var payload []byte
	err := q.QueryRow(ctx, query, eventKey).Scan(
		&e.ID, &e.EventKey, &e.EventID, &e.IntentID, &e.EventType, &e.Created, &payload, &e.ReceivedAt,
		&e.ProcessedAt, &e.Outcome, &e.Attempts, &e.LastError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("get gateway event: %w", err)
	}
	e.Payload = payload
	return &e, nil
}

func (r *inboxRepository) MarkProcessed(ctx context.Context, eventKey, outcome string, at time.Time) error {
	q := database.QuerierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE gateway_events
		SET processed_at = $2, outcome = $3, attempts = attempts + 1, last_error = NULL
		WHERE event_key = $1
	`, eventKey, at, outcome)
	if err != nil {
		return fmt.Errorf("mark gateway event processed: %w", err)
	}
	return nil
}

func (r *inboxRepository) MarkAttemptFailed(ctx context.Context, eventKey, cause string) error {
	q := database.QuerierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE gateway_events
		SET attempts = attempts + 1, last_error = $2
		WHERE event_key = $1
	`, eventKey, cause)
	if err != nil {
		return fmt.Errorf("mark gateway event attempt: %w", err)
	}
	return nil
}

func (r *inboxRepository) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	q := database.QuerierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT event_key
		FROM gateway_events
		WHERE processed_at IS NULL AND received_at < $1
		ORDER BY received_at ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed gateway events: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
