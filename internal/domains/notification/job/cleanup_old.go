package job

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/domains/notification/service"
	"food-ordering-backend/pkg/logger"
)

// CleanupOldNotificationsHandler purges read notifications past retention
type CleanupOldNotificationsHandler struct {
	service   service.NotificationService
	retention time.Duration
}

func NewCleanupOldNotificationsHandler(svc service.NotificationService, retention time.Duration) *CleanupOldNotificationsHandler {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CleanupOldNotificationsHandler{service: svc, retention: retention}
}

func (h *CleanupOldNotificationsHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	deleted, err := h.service.CleanupOldReadNotifications(ctx, h.retention)
	if err != nil {
		return fmt.Errorf("cleanup notifications: %w", err)
	}

	logger.Info("Old notifications cleaned up", map[string]interface{}{
		"deleted":   deleted,
		"retention": h.retention.String(),
	})
	return nil
}
