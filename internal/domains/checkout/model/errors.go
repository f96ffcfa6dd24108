package model

import (
	"errors"
	"net/http"
)

// Error codes returned to clients
const (
	ErrCodeCouponInvalid      = "COUPON_INVALID"
	ErrCodeCouponExhausted    = "COUPON_EXHAUSTED"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeInProgress         = "CHECKOUT_IN_PROGRESS"
	ErrCodeCartEmpty          = "CART_EMPTY"
	ErrCodeCartNotFound       = "CART_NOT_FOUND"
	ErrCodeCheckoutFailed     = "CHECKOUT_FAILED"
)

var (
	ErrCouponInvalid      = errors.New("coupon is no longer valid")
	ErrCouponExhausted    = errors.New("coupon usage limit reached")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInProgress         = errors.New("checkout already in progress")
	ErrCartEmpty          = errors.New("cart is empty")
	ErrCartNotFound       = errors.New("cart not found")
	ErrAttemptNotFound    = errors.New("checkout attempt not found")
)

// CheckoutError is what the orchestrator returns to handlers
type CheckoutError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

func NewCouponInvalidError(reason string) *CheckoutError {
	return &CheckoutError{
		Code:       ErrCodeCouponInvalid,
		Message:    "the applied coupon can no longer be used",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]interface{}{"reason": reason},
		Err:        ErrCouponInvalid,
	}
}

func NewCouponExhaustedError() *CheckoutError {
	return &CheckoutError{
		Code:       ErrCodeCouponExhausted,
		Message:    "coupon usage limit reached, remove it and try again",
		HTTPStatus: http.StatusConflict,
		Err:        ErrCouponExhausted,
	}
}

func NewGatewayUnavailableError(err error) *CheckoutError {
	return &CheckoutError{
		Code:       ErrCodeGatewayUnavailable,
		Message:    "payment gateway unavailable, the order was cancelled",
		HTTPStatus: http.StatusBadGateway,
		Err:        errors.Join(ErrGatewayUnavailable, err),
	}
}

func NewInProgressError() *CheckoutError {
	return &CheckoutError{
		Code:       ErrCodeInProgress,
		Message:    "a checkout for this cart is already in progress",
		HTTPStatus: http.StatusConflict,
		Err:        ErrInProgress,
	}
}

func NewCartEmptyError() *CheckoutError {
	return &CheckoutError{
		Code:       ErrCodeCartEmpty,
		Message:    "cannot check out an empty cart",
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrCartEmpty,
	}
}

func NewCartNotFoundError() *CheckoutError {
	return &CheckoutError{
		Code:       ErrCodeCartNotFound,
		Message:    "cart not found",
		HTTPStatus: http.StatusNotFound,
		Err:        ErrCartNotFound,
	}
}
