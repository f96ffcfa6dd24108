package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/shared"
	"food-ordering-backend/pkg/container"
	"food-ordering-backend/pkg/logger"
)

// asynqServer wraps asynq.Server with additional functionality
type asynqServer struct {
	*asynq.Server
}

func redisOpt(c *container.Container) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Config.Redis.Host,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	}
}

// setupAsynqServer creates and configures the Asynq server
func setupAsynqServer(c *container.Container, handlers *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	srv := asynq.NewServer(
		redisOpt(c),
		asynq.Config{
			Queues: map[string]int{
				shared.QueueCritical:    20,
				shared.QueuePayment:     15,
				shared.QueueDefault:     10,
				shared.QueueMaintenance: 5,
			},
			Concurrency: c.Config.Worker.Concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.ErrorWithFields("[Asynq] Task failed", err, map[string]interface{}{
					"task_type": task.Type(),
				})
			}),
		},
	)

	go func() {
		logger.Info("[Worker] Starting...", nil)
		if err := srv.Run(mux); err != nil {
			logger.Fatal("[Worker] Failed", err)
		}
	}()

	return &asynqServer{Server: srv}
}

// Shutdown waits for in-flight tasks up to the asynq shutdown timeout
func (s *asynqServer) Shutdown() {
	start := time.Now()
	logger.Info("[Worker] Shutting down...", nil)
	s.Server.Shutdown()
	logger.Info("[Worker] Gracefully stopped", map[string]interface{}{
		"took": time.Since(start).String(),
	})
}
