package main

import (
	"food-ordering-backend/internal/infrastructure/queue"
	"food-ordering-backend/pkg/container"
	"food-ordering-backend/pkg/logger"
)

// asynqScheduler wraps queue.Scheduler with additional functionality
type asynqScheduler struct {
	*queue.Scheduler
}

// setupScheduler registers the periodic sweeps and starts the scheduler
func setupScheduler(c *container.Container) *asynqScheduler {
	scheduler := queue.NewScheduler(redisOpt(c), queue.DefaultSweepLimits())

	if err := scheduler.RegisterPeriodicJobs(); err != nil {
		logger.Fatal("[Scheduler] Failed to register", err)
	}

	go func() {
		logger.Info("[Scheduler] Starting...", nil)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("[Scheduler] Failed", err)
		}
	}()

	return &asynqScheduler{Scheduler: scheduler}
}

// Shutdown gracefully shuts down the scheduler
func (s *asynqScheduler) Shutdown() {
	logger.Info("[Scheduler] Shutting down...", nil)
	s.Scheduler.Shutdown()
	logger.Info("[Scheduler] Stopped", nil)
}
