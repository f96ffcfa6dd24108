package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/logger"
)

const (
	headerMessageType = "message_type"
	headerMessageID   = "message_id"

	maxHandlerAttempts = 5
)

// KafkaBroker publishes every event type to one topic keyed by aggregate id,
// so events of the same order land on the same partition.
type KafkaBroker struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
}

func NewKafkaBroker(brokers []string, topic, groupID string) *KafkaBroker {
	return &KafkaBroker{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
		},
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
	}
}

func (b *KafkaBroker) Publish(ctx context.Context, msg events.Message) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.AggregateID),
		Value: msg.Body,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: headerMessageType, Value: []byte(msg.MessageType)},
			{Key: headerMessageID, Value: []byte(msg.MessageID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", msg.MessageType, err)
	}
	return nil
}

// Consume commits an offset only after the handler succeeded.
// A message that keeps failing is retried with backoff, then skipped and logged.
func (b *KafkaBroker) Consume(ctx context.Context, messageTypes []string, handler events.Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          b.brokers,
		GroupID:          b.groupID,
		Topic:            b.topic,
		MinBytes:         1,
		MaxBytes:         10e6,
		ReadBatchTimeout: time.Second,
		CommitInterval:   0, // synchronous commits
	})
	defer reader.Close()

	logger.Info("Kafka consumer starting", map[string]interface{}{
		"topic":    b.topic,
		"group_id": b.groupID,
	})

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("Kafka consumer stopped", nil)
				return nil
			}
			logger.Error("Failed to fetch message from Kafka", err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		msg, err := events.Decode(m.Value)
		if err != nil {
			logger.ErrorWithFields("Dropping undecodable Kafka message", err, map[string]interface{}{
				"partition": m.Partition,
				"offset":    m.Offset,
			})
		} else if wants(messageTypes, msg.MessageType) {
			msg.AggregateID = string(m.Key)
			b.handleWithRetry(ctx, msg, handler)
		}

		if ctx.Err() != nil {
			return nil
		}
		if err := reader.CommitMessages(ctx, m); err != nil {
			logger.ErrorWithFields("Failed to commit Kafka offset", err, map[string]interface{}{
				"partition": m.Partition,
				"offset":    m.Offset,
			})
		}
	}
}

func (b *KafkaBroker) handleWithRetry(ctx context.Context, msg events.Message, handler events.Handler) {
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return
		}

		logger.ErrorWithFields("Kafka message handler failed", err, map[string]interface{}{
			"message_id":   msg.MessageID.String(),
			"message_type": msg.MessageType,
			"attempt":      attempt,
		})

		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff *= 2
	}

	logger.Warn("Giving up on Kafka message after retries", map[string]interface{}{
		"message_id":   msg.MessageID.String(),
		"message_type": msg.MessageType,
	})
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
