package outbox

import (
	"context"
	"time"

	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/logger"
)

// Sender hands a message to the broker
type Sender interface {
	Publish(ctx context.Context, msg events.Message) error
}

// Relay moves committed outbox rows to the broker in id order.
// A row stays unpublished until the broker accepts it, so delivery is at-least-once.
type Relay struct {
	store     Store
	sender    Sender
	interval  time.Duration
	batchSize int
}

func NewRelay(store Store, sender Sender, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		sender:    sender,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start polls until ctx is cancelled
func (r *Relay) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info("Outbox relay started", map[string]interface{}{
		"interval":   r.interval.String(),
		"batch_size": r.batchSize,
	})

	for {
		select {
		case <-ticker.C:
			if _, err := r.RelayBatch(ctx); err != nil {
				logger.Error("Outbox relay batch failed", err)
			}
		case <-ctx.Done():
			logger.Info("Outbox relay stopped", nil)
			return nil
		}
	}
}

// RelayBatch publishes one batch and returns how many rows went out.
// It stops at the first broker failure so later rows of the same
// aggregate never overtake an earlier one.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	records, err := r.store.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]int64, 0, len(records))
	for _, rec := range records {
		if err := r.sender.Publish(ctx, rec.Message); err != nil {
			logger.ErrorWithFields("Failed to relay outbox message", err, map[string]interface{}{
				"outbox_id":    rec.ID,
				"message_id":   rec.Message.MessageID.String(),
				"message_type": rec.Message.MessageType,
				"attempts":     rec.Attempts + 1,
			})
			if markErr := r.store.MarkFailed(ctx, rec.ID, err); markErr != nil {
				logger.Error("Failed to record outbox failure", markErr)
			}
			break
		}
		published = append(published, rec.ID)
	}

	if err := r.store.MarkPublished(ctx, published); err != nil {
		return 0, err
	}

	if len(published) > 0 {
		logger.Debug("Relayed outbox messages", map[string]interface{}{
			"count": len(published),
		})
	}
	return len(published), nil
}
