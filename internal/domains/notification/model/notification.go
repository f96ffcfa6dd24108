package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ================================================
// NOTIFICATION ENTITY
// ================================================

// Notification is one in-app message shown to a signed-in customer
type Notification struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	ReferenceType  string     `json:"reference_type"`
	ReferenceID    uuid.UUID  `json:"reference_id"`
	IdempotencyKey string     `json:"-"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Notification types
const (
	TypeOrderStatus = "order_status"
	TypePayment     = "payment"
)

const ReferenceOrder = "order"

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// MarkReadRequest is the body of POST /notifications/mark-read
type MarkReadRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1,max=100"`
}
