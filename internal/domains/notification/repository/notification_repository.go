package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"food-ordering-backend/internal/domains/notification/model"
	"food-ordering-backend/pkg/database"
)

type NotificationRepository interface {
	// Create is a no-op when the idempotency key was already used
	Create(ctx context.Context, n *model.Notification) (bool, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, int, error)
	GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteOldRead(ctx context.Context, before time.Time) (int, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

// Create joins the consumer transaction carried by ctx
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) (bool, error) {
	q := database.QuerierFrom(ctx, r.pool)

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	err := q.QueryRow(ctx, `
		INSERT INTO notifications (
			id, user_id, type, title, message, reference_type, reference_id, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at
	`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ReferenceType, n.ReferenceID, n.IdempotencyKey,
	).Scan(&n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	return true, nil
}

func (r *notificationRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, title, message, reference_type, reference_id, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list by user id: %w", err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0, limit)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.ReferenceType, &n.ReferenceID, &n.IsRead, &n.ReadAt, &n.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return notifications, total, nil
}

func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE id = ANY($1) AND user_id = $2 AND NOT is_read
	`, ids, userID)
	if err != nil {
		return 0, fmt.Errorf("mark as read: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all as read: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *notificationRepository) DeleteOldRead(ctx context.Context, before time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE is_read AND read_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old read notifications: %w", err)
	}
	return int(result.RowsAffected()), nil
}
