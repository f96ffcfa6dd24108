package model

import (
	"errors"
	"fmt"
)

// =====================================================
// CUSTOM ERROR CODES
// =====================================================
const (
	ErrCodeOrderNotFound     = "ORD001"
	ErrCodeInvalidTransition = "ORD002"
	ErrCodeVersionMismatch   = "ORD003"
	ErrCodeUnauthorized      = "ORD004"
	ErrCodeInvalidStatus     = "ORD005"
	ErrCodeInvalidOrder      = "ORD006"
	ErrCodePaymentState      = "ORD007"
)

// =====================================================
// ERROR DEFINITIONS
// =====================================================
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrVersionMismatch   = errors.New("version mismatch - concurrent modification detected")
	ErrUnauthorized      = errors.New("unauthorized access")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrEmptyOrder        = errors.New("order has no items")
)

// =====================================================
// CUSTOM ERROR TYPE
// =====================================================
type OrderError struct {
	Code    string
	Message string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func NewOrderError(code, message string, err error) *OrderError {
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewInvalidTransitionError(from, to OrderStatus) *OrderError {
	return NewOrderError(ErrCodeInvalidTransition,
		fmt.Sprintf("cannot move order from %s to %s", from, to), ErrInvalidTransition)
}

func NewInvalidPaymentTransitionError(from, to PaymentStatus) *OrderError {
	return NewOrderError(ErrCodePaymentState,
		fmt.Sprintf("cannot move payment status from %s to %s", from, to), ErrInvalidTransition)
}
