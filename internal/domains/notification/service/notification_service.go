package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/notification/model"
	"food-ordering-backend/internal/domains/notification/repository"
	"food-ordering-backend/internal/shared/events"
	"food-ordering-backend/pkg/logger"
)

// ConsumerName identifies this consumer in processed_messages
const ConsumerName = "notification"

// ConsumedTypes are the broker messages that produce notifications
var ConsumedTypes = []string{
	events.TypeOrderCreated,
	events.TypeOrderConfirmed,
	events.TypeOrderCancelled,
	events.TypePaymentFailed,
	events.TypePaymentRefunded,
}

type NotificationService interface {
	// HandleEvent turns an order lifecycle message into an in-app notification.
	// Guest orders have nobody to notify and are skipped.
	HandleEvent(ctx context.Context, msg events.Message) error

	ListNotifications(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Notification, int, error)
	GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int, error)
	CleanupOldReadNotifications(ctx context.Context, olderThan time.Duration) (int, error)
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

// ================================================
// EVENT CONSUMER
// ================================================

func (s *notificationService) HandleEvent(ctx context.Context, msg events.Message) error {
	n, err := buildNotification(msg)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}

	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return err
	}

	logger.Debug("Notification recorded", map[string]interface{}{
		"message_id":   msg.MessageID.String(),
		"message_type": msg.MessageType,
		"user_id":      n.UserID.String(),
		"created":      created,
	})
	return nil
}

func buildNotification(msg events.Message) (*model.Notification, error) {
	var (
		userID  *uuid.UUID
		orderID uuid.UUID
		n       = &model.Notification{
			ReferenceType:  model.ReferenceOrder,
			IdempotencyKey: msg.MessageID.String(),
		}
	)

	switch msg.MessageType {
	case events.TypeOrderCreated:
		var p events.OrderCreated
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.MessageType, err)
		}
		userID, orderID = p.UserID, p.OrderID
		n.Type = model.TypeOrderStatus
		n.Title = "Order placed"
		n.Message = fmt.Sprintf("Order %s was placed. Total %s %s, waiting for payment.", p.OrderNumber, p.Total.StringFixed(2), p.Currency)

	case events.TypeOrderConfirmed:
		var p events.OrderConfirmed
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.MessageType, err)
		}
		userID, orderID = p.UserID, p.OrderID
		n.Type = model.TypeOrderStatus
		n.Title = "Order confirmed"
		n.Message = fmt.Sprintf("Payment received. Order %s is confirmed and will be prepared shortly.", p.OrderNumber)

	case events.TypeOrderCancelled:
		var p events.OrderCancelled
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.MessageType, err)
		}
		userID, orderID = p.UserID, p.OrderID
		n.Type = model.TypeOrderStatus
		n.Title = "Order cancelled"
		n.Message = fmt.Sprintf("Order %s was cancelled (%s).", p.OrderNumber, p.Reason)

	case events.TypePaymentFailed:
		var p events.PaymentFailed
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.MessageType, err)
		}
		userID, orderID = p.UserID, p.OrderID
		n.Type = model.TypePayment
		n.Title = "Payment failed"
		n.Message = "Your payment did not go through. You can retry before the order expires."
		if p.ErrorMessage != "" {
			n.Message = fmt.Sprintf("Your payment did not go through: %s. You can retry before the order expires.", p.ErrorMessage)
		}

	case events.TypePaymentRefunded:
		var p events.PaymentRefunded
		if err := msg.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.MessageType, err)
		}
		userID, orderID = p.UserID, p.OrderID
		n.Type = model.TypePayment
		n.Title = "Payment refunded"
		n.Message = fmt.Sprintf("%s %s for order %s is on its way back to you.", p.Amount.StringFixed(2), p.Currency, p.OrderNumber)

	default:
		return nil, nil
	}

	if userID == nil {
		return nil, nil
	}
	n.UserID = *userID
	n.ReferenceID = orderID
	return n, nil
}

// ================================================
// USER FEED
// ================================================

func (s *notificationService) ListNotifications(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUserID(ctx, userID, limit, (page-1)*limit)
}

func (s *notificationService) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	n, err := s.repo.MarkAsRead(ctx, ids, userID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, model.ErrNotificationNotFound
	}
	return n, nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) CleanupOldReadNotifications(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.repo.DeleteOldRead(ctx, time.Now().Add(-olderThan))
}
