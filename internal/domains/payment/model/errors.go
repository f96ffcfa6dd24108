package model

import (
	"errors"
	"net/http"
)

// =====================================================
// ERROR CODES
// =====================================================
const (
	ErrCodePaymentNotFound    = "PAY001"
	ErrCodeInvalidSignature   = "PAY002"
	ErrCodeMalformedEvent     = "PAY003"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeRetryNotAllowed    = "PAY005"
	ErrCodeInboxUnavailable   = "PAY006"
	ErrCodeRefundNotAllowed   = "PAY007"
	ErrCodeInvalidRefund      = "PAY008"
)

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedEvent     = errors.New("malformed gateway event")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrRetryNotAllowed    = errors.New("payment retry not allowed")
	ErrEventNotFound      = errors.New("gateway event not found")
	ErrRefundNotAllowed   = errors.New("refund not allowed")
)

// PaymentError carries a stable code and the HTTP status for handlers
type PaymentError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func NewGatewayUnavailableError(err error) *PaymentError {
	return &PaymentError{
		Code:       ErrCodeGatewayUnavailable,
		Message:    "payment gateway unavailable",
		HTTPStatus: http.StatusBadGateway,
		Err:        errors.Join(ErrGatewayUnavailable, err),
	}
}

func NewRetryNotAllowedError(reason string) *PaymentError {
	return &PaymentError{
		Code:       ErrCodeRetryNotAllowed,
		Message:    reason,
		HTTPStatus: http.StatusConflict,
		Err:        ErrRetryNotAllowed,
	}
}

func NewRefundNotAllowedError(reason string) *PaymentError {
	return &PaymentError{
		Code:       ErrCodeRefundNotAllowed,
		Message:    reason,
		HTTPStatus: http.StatusConflict,
		Err:        ErrRefundNotAllowed,
	}
}

func NewInvalidRefundError(err error) *PaymentError {
	return &PaymentError{
		Code:       ErrCodeInvalidRefund,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}
