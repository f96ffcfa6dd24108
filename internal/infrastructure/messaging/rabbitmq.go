package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/logger"
)

// RabbitMQBroker routes every message through one topic exchange,
// routing key = message type. Each consumer group owns one durable queue.
type RabbitMQBroker struct {
	url      string
	exchange string
	queue    string
	conn     *amqp.Connection
	channel  *amqp.Channel
}

func NewRabbitMQBroker(url, exchange, consumerGroup string) *RabbitMQBroker {
	return &RabbitMQBroker{
		url:      url,
		exchange: exchange,
		queue:    fmt.Sprintf("queue.%s", consumerGroup),
	}
}

// Connect dials the broker and declares the exchange
func (r *RabbitMQBroker) Connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		r.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.conn = conn
	r.channel = ch

	logger.Info("Connected to RabbitMQ", map[string]interface{}{
		"exchange": r.exchange,
	})
	return nil
}

func (r *RabbitMQBroker) Publish(ctx context.Context, msg events.Message) error {
	if r.channel == nil {
		return fmt.Errorf("RabbitMQ channel not initialized")
	}

	err := r.channel.PublishWithContext(ctx,
		r.exchange,      // exchange
		msg.MessageType, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    msg.MessageID.String(),
			Type:         msg.MessageType,
			Timestamp:    msg.CreatedAt,
			Headers:      amqp.Table{"aggregate_id": msg.AggregateID},
			Body:         msg.Body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.MessageType, err)
	}
	return nil
}

// Consume binds the group queue to each message type and acks after the handler succeeds.
// Failures are nacked with requeue; undecodable bodies are dropped.
func (r *RabbitMQBroker) Consume(ctx context.Context, messageTypes []string, handler events.Handler) error {
	if r.channel == nil {
		return fmt.Errorf("RabbitMQ channel not initialized")
	}

	queue, err := r.channel.QueueDeclare(
		r.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, messageType := range messageTypes {
		if err := r.channel.QueueBind(queue.Name, messageType, r.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", messageType, err)
		}
	}

	if err := r.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := r.channel.Consume(
		queue.Name, // queue
		"",         // consumer tag
		false,      // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	logger.Info("RabbitMQ consumer starting", map[string]interface{}{
		"queue":         queue.Name,
		"message_types": messageTypes,
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info("RabbitMQ consumer stopped", nil)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("RabbitMQ delivery channel closed")
			}
			r.handleDelivery(ctx, d, handler)
		}
	}
}

func (r *RabbitMQBroker) handleDelivery(ctx context.Context, d amqp.Delivery, handler events.Handler) {
	msg, err := events.Decode(d.Body)
	if err != nil {
		logger.ErrorWithFields("Dropping undecodable RabbitMQ message", err, map[string]interface{}{
			"routing_key": d.RoutingKey,
		})
		_ = d.Nack(false, false)
		return
	}
	if aggregateID, ok := d.Headers["aggregate_id"].(string); ok {
		msg.AggregateID = aggregateID
	}

	if err := handler(ctx, msg); err != nil {
		logger.ErrorWithFields("RabbitMQ message handler failed", err, map[string]interface{}{
			"message_id":   msg.MessageID.String(),
			"message_type": msg.MessageType,
			"redelivered":  d.Redelivered,
		})
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (r *RabbitMQBroker) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
