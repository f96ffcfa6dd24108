package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/database"
)

// ProcessedStore records which messages a consumer has already handled
type ProcessedStore interface {
	// MarkProcessed returns false when the message was already recorded for consumer
	MarkProcessed(ctx context.Context, messageID uuid.UUID, consumer, messageType string) (bool, error)
}

type postgresProcessedStore struct {
	pool *pgxpool.Pool
}

func NewProcessedStore(pool *pgxpool.Pool) ProcessedStore {
	return &postgresProcessedStore{pool: pool}
}

func (s *postgresProcessedStore) MarkProcessed(ctx context.Context, messageID uuid.UUID, consumer, messageType string) (bool, error) {
	query := `
		INSERT INTO processed_messages (message_id, consumer, message_type, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (message_id, consumer) DO NOTHING
	`

	tag, err := database.QuerierFrom(ctx, s.pool).Exec(ctx, query, messageID, consumer, messageType)
	if err != nil {
		return false, fmt.Errorf("failed to mark message processed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Deduplicate wraps next so each message id runs at most once per consumer.
// The marker and the handler's writes commit in the same transaction.
func Deduplicate(tx database.TxManager, store ProcessedStore, consumer string, next events.Handler) events.Handler {
	return func(ctx context.Context, msg events.Message) error {
		return tx.WithinTransaction(ctx, func(ctx context.Context) error {
			inserted, err := store.MarkProcessed(ctx, msg.MessageID, consumer, msg.MessageType)
			if err != nil {
				return err
			}
			if !inserted {
				return nil
			}
			return next(ctx, msg)
		})
	}
}
