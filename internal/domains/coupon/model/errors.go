package model

import (
	"errors"
	"net/http"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrDuplicateCode  = errors.New("coupon code already exists")
)

type ErrorCode string

const (
	ErrCodeCouponNotFound   ErrorCode = "COUPON_NOT_FOUND"
	ErrCodeDuplicateCode    ErrorCode = "COUPON_DUPLICATE_CODE"
	ErrCodeCouponInvalid    ErrorCode = "COUPON_INVALID"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_ERROR"
	ErrCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// AppError is a coupon failure ready to be rendered by a handler
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewNotFoundError(code string) *AppError {
	return &AppError{
		Code:       ErrCodeCouponNotFound,
		Message:    "coupon not found",
		Details:    map[string]interface{}{"code": code},
		HTTPStatus: http.StatusNotFound,
		Err:        ErrCouponNotFound,
	}
}

func NewDuplicateCodeError(code string) *AppError {
	return &AppError{
		Code:       ErrCodeDuplicateCode,
		Message:    "coupon code already exists",
		Details:    map[string]interface{}{"code": code},
		HTTPStatus: http.StatusConflict,
		Err:        ErrDuplicateCode,
	}
}
