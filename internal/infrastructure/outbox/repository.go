package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/database"
)

// Record is one stored message waiting for the relay
type Record struct {
	ID       int64
	Message  events.Message
	Attempts int
}

// Store persists outgoing messages next to the business rows that produced them
type Store interface {
	events.Publisher
	FetchUnpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, cause error) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

// Publish inserts the message through the transaction carried by ctx,
// so it commits or rolls back with the caller's writes.
func (s *postgresStore) Publish(ctx context.Context, msg events.Message) error {
	query := `
		INSERT INTO outbox_messages (message_id, message_type, aggregate_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := database.QuerierFrom(ctx, s.pool).Exec(ctx, query,
		msg.MessageID, msg.MessageType, msg.AggregateID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store outbox message %s: %w", msg.MessageType, err)
	}
	return nil
}

func (s *postgresStore) FetchUnpublished(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, message_id, message_type, aggregate_id, body, created_at, attempts
		FROM outbox_messages
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			messageID uuid.UUID
			createdAt time.Time
		)
		if err := rows.Scan(&r.ID, &messageID, &r.Message.MessageType, &r.Message.AggregateID,
			&r.Message.Body, &createdAt, &r.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		r.Message.MessageID = messageID
		r.Message.CreatedAt = createdAt
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *postgresStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox_messages
		SET published_at = NOW(), attempts = attempts + 1, last_error = NULL
		WHERE id = ANY($1)
	`

	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to mark outbox published: %w", err)
	}
	return nil
}

func (s *postgresStore) MarkFailed(ctx context.Context, id int64, cause error) error {
	query := `
		UPDATE outbox_messages
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`

	if _, err := s.pool.Exec(ctx, query, id, cause.Error()); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}
