package main

import (
	"context"
	"errors"
	"sync"

	notificationService "food-ordering-backend/internal/domains/notification/service"
	"food-ordering-backend/internal/infrastructure/messaging"
	"food-ordering-backend/internal/infrastructure/outbox"
	"food-ordering-backend/pkg/container"
	"food-ordering-backend/pkg/logger"
)

// eventPipeline owns the outbox relay and the broker consumers
type eventPipeline struct {
	broker messaging.Broker
	wg     sync.WaitGroup
}

func startEventPipeline(ctx context.Context, c *container.Container) (*eventPipeline, error) {
	broker, err := messaging.NewBroker(c.Config.Broker)
	if err != nil {
		return nil, err
	}

	p := &eventPipeline{broker: broker}

	relay := outbox.NewRelay(c.Outbox, broker, c.Config.Worker.OutboxInterval, c.Config.Worker.OutboxBatchSize)
	p.run(ctx, "outbox-relay", relay.Start)

	notifications := messaging.Deduplicate(
		c.TxManager,
		messaging.NewProcessedStore(c.DB.Pool),
		notificationService.ConsumerName,
		c.NotificationService.HandleEvent,
	)
	p.run(ctx, "notification-consumer", func(ctx context.Context) error {
		return broker.Consume(ctx, notificationService.ConsumedTypes, notifications)
	})

	return p, nil
}

func (p *eventPipeline) run(ctx context.Context, name string, fn func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorWithFields("[Events] Component stopped", err, map[string]interface{}{
				"component": name,
			})
		}
	}()
}

// Wait blocks until every component returned, then closes the broker
func (p *eventPipeline) Wait() {
	p.wg.Wait()
	if err := p.broker.Close(); err != nil {
		logger.Error("[Events] Failed to close broker", err)
	}
}
