// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"food-ordering-backend/pkg/container"
	"food-ordering-backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables", nil)
	}
	logger.Init(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	// Initialize container
	c, err := container.NewContainer()
	if err != nil {
		logger.Fatal("[Container] Failed to initialize", err)
	}
	defer c.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize handlers
	handlers := initializeHandlers(c)

	// Setup Asynq server
	srv := setupAsynqServer(c, handlers)

	// Setup scheduler
	scheduler := setupScheduler(c)

	// Outbox relay + broker consumers
	pipeline, err := startEventPipeline(ctx, c)
	if err != nil {
		logger.Fatal("[Events] Failed to start", err)
	}

	if err := startServices(c); err != nil {
		logger.Fatal("[Startup] Health check failed", err)
	}

	waitForShutdown(cancel, srv, scheduler, pipeline)
}

func waitForShutdown(cancel context.CancelFunc, srv *asynqServer, scheduler *asynqScheduler, pipeline *eventPipeline) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("[Shutdown] Gracefully stopping...", nil)
	cancel()
	pipeline.Wait()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info("[Shutdown] Stopped", nil)
}
