package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrItemNotFound       = errors.New("item not in cart")
	ErrVersionConflict    = errors.New("cart was modified concurrently")
	ErrInvalidQuantity    = fmt.Errorf("quantity must be between 1 and %d", MaxItemQuantity)
	ErrProductUnavailable = errors.New("product is not available")
	ErrProductNotFound    = errors.New("product not found")
	ErrNotCartOwner       = errors.New("cart belongs to another owner")
	ErrNoCouponApplied    = errors.New("no coupon applied")
)

// CartError carries a stable code and HTTP status for handlers
type CartError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *CartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CartError) Unwrap() error {
	return e.Err
}

func NewCartError(code string, status int, message string, err error) *CartError {
	return &CartError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ToCartError maps sentinel errors to a handler-ready error
func ToCartError(err error) *CartError {
	var ce *CartError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, ErrCartNotFound):
		return NewCartError("CART_NOT_FOUND", http.StatusNotFound, "cart not found", err)
	case errors.Is(err, ErrItemNotFound):
		return NewCartError("CART_ITEM_NOT_FOUND", http.StatusNotFound, "item not in cart", err)
	case errors.Is(err, ErrNotCartOwner):
		return NewCartError("CART_FORBIDDEN", http.StatusForbidden, "cart belongs to another owner", err)
	case errors.Is(err, ErrVersionConflict):
		return NewCartError("CART_CONFLICT", http.StatusConflict, "cart was modified, reload and retry", err)
	case errors.Is(err, ErrInvalidQuantity):
		return NewCartError("CART_INVALID_QUANTITY", http.StatusBadRequest, ErrInvalidQuantity.Error(), err)
	case errors.Is(err, ErrProductNotFound):
		return NewCartError("PRODUCT_NOT_FOUND", http.StatusNotFound, "product not found", err)
	case errors.Is(err, ErrProductUnavailable):
		return NewCartError("PRODUCT_UNAVAILABLE", http.StatusUnprocessableEntity, "product is not available", err)
	case errors.Is(err, ErrNoCouponApplied):
		return NewCartError("CART_NO_COUPON", http.StatusBadRequest, "no coupon applied", err)
	default:
		return NewCartError("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error", err)
	}
}
