package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/shared"
	"food-ordering-backend/pkg/logger"
)

// SweepLimits bounds how many rows each periodic sweep touches per run
type SweepLimits struct {
	GatewayEvents   int
	UnpaidOrders    int
	CheckoutAttempt int
}

func DefaultSweepLimits() SweepLimits {
	return SweepLimits{
		GatewayEvents:   100,
		UnpaidOrders:    200,
		CheckoutAttempt: 100,
	}
}

type Scheduler struct {
	scheduler *asynq.Scheduler
	limits    SweepLimits
}

func NewScheduler(redisOpt asynq.RedisClientOpt, limits SweepLimits) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		limits:    limits,
	}
}

func (s *Scheduler) RegisterPeriodicJobs() error {
	if err := s.registerRetryGatewayEventsJob(); err != nil {
		return err
	}

	if err := s.registerExpireUnpaidOrdersJob(); err != nil {
		return err
	}

	if err := s.registerRecoverCheckoutAttemptsJob(); err != nil {
		return err
	}

	if err := s.registerCleanupOldNotificationsJob(); err != nil {
		return err
	}

	return nil
}

// ================================================
// JOB 1: Retry unprocessed gateway events (every minute)
// ================================================
// Picks up webhook events whose enqueue failed after the inbox insert.
func (s *Scheduler) registerRetryGatewayEventsJob() error {
	payload, err := json.Marshal(shared.SweepPayload{Limit: s.limits.GatewayEvents})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Register(
		"@every 1m",
		asynq.NewTask(shared.TypeRetryGatewayEvents, payload),
		asynq.Queue(shared.QueuePayment),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register RetryGatewayEvents job", err)
		return err
	}

	logger.Info("Registered RetryGatewayEvents: every minute", nil)
	return nil
}

// ================================================
// JOB 2: Expire unpaid orders (every minute)
// ================================================
// Backstop for deadline tasks lost with a Redis flush.
func (s *Scheduler) registerExpireUnpaidOrdersJob() error {
	payload, err := json.Marshal(shared.SweepPayload{Limit: s.limits.UnpaidOrders})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Register(
		"@every 1m",
		asynq.NewTask(shared.TypeExpireUnpaidOrders, payload),
		asynq.Queue(shared.QueueCritical),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register ExpireUnpaidOrders job", err)
		return err
	}

	logger.Info("Registered ExpireUnpaidOrders: every minute", nil)
	return nil
}

// ================================================
// JOB 3: Recover stuck checkout attempts (every 2 minutes)
// ================================================
func (s *Scheduler) registerRecoverCheckoutAttemptsJob() error {
	payload, err := json.Marshal(shared.SweepPayload{Limit: s.limits.CheckoutAttempt})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Register(
		"@every 2m",
		asynq.NewTask(shared.TypeRecoverCheckoutAttempts, payload),
		asynq.Queue(shared.QueueMaintenance),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register RecoverCheckoutAttempts job", err)
		return err
	}

	logger.Info("Registered RecoverCheckoutAttempts: every 2 minutes", nil)
	return nil
}

// ================================================
// JOB 4: Cleanup old read notifications (daily at 3 AM)
// ================================================
func (s *Scheduler) registerCleanupOldNotificationsJob() error {
	_, err := s.scheduler.Register(
		"0 3 * * *",
		asynq.NewTask(shared.TypeCleanupNotifications, nil),
		asynq.Queue(shared.QueueMaintenance),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register CleanupOldNotifications job", err)
		return err
	}

	logger.Info("Registered CleanupOldNotifications: daily at 3 AM", nil)
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
