package messaging

import (
	"context"
	"fmt"

	"food-ordering-backend/internal/config"
	"food-ordering-backend/internal/shared/events"
)

// Broker moves encoded event envelopes between processes.
// Delivery is at-least-once and unordered across aggregates.
type Broker interface {
	Publish(ctx context.Context, msg events.Message) error

	// Consume blocks, feeding messages of the given types to handler until ctx is done.
	// A handler error leaves the message for redelivery.
	Consume(ctx context.Context, messageTypes []string, handler events.Handler) error

	Close() error
}

// NewBroker picks the transport from configuration
func NewBroker(cfg config.BrokerConfig) (Broker, error) {
	switch cfg.Kind {
	case "kafka":
		return NewKafkaBroker(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ConsumerGroup), nil
	case "rabbitmq":
		rb := NewRabbitMQBroker(cfg.AMQPURL, cfg.AMQPExchange, cfg.ConsumerGroup)
		if err := rb.Connect(); err != nil {
			return nil, err
		}
		return rb, nil
	default:
		return nil, fmt.Errorf("unsupported broker kind %q", cfg.Kind)
	}
}

func wants(messageTypes []string, messageType string) bool {
	for _, t := range messageTypes {
		if t == messageType {
			return true
		}
	}
	return false
}
