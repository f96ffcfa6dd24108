package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	cartModel "food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/internal/domains/checkout/model"
	"food-ordering-backend/internal/domains/checkout/service"
	"food-ordering-backend/internal/shared/middleware"
	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/logger"
)

// maxIdempotencyKey bounds the client-supplied key
const maxIdempotencyKey = 128

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func ownerFrom(c *gin.Context) (cartModel.Owner, bool) {
	if userID, ok := middleware.GetAuthenticatedUserID(c); ok {
		return cartModel.UserOwner(*userID), true
	}
	if sessionID := middleware.GetSessionID(c); sessionID != "" {
		return cartModel.SessionOwner(sessionID), true
	}
	return cartModel.Owner{}, false
}

// Checkout POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	var req model.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	key := c.GetHeader(model.IdempotencyHeader)
	if len(key) > maxIdempotencyKey {
		response.BadRequest(c, "idempotency key too long")
		return
	}

	result, err := h.checkoutService.Checkout(c.Request.Context(), owner, key, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

func (h *CheckoutHandler) handleError(c *gin.Context, err error) {
	var checkoutErr *model.CheckoutError
	if errors.As(err, &checkoutErr) {
		if checkoutErr.Details != nil {
			response.ErrorWithDetails(c, checkoutErr.HTTPStatus, checkoutErr.Code, checkoutErr.Message, checkoutErr.Details)
			return
		}
		response.ErrorResponse(c, checkoutErr.HTTPStatus, checkoutErr.Code, checkoutErr.Message)
		return
	}

	logger.Error("Checkout failed", err)
	response.ErrorResponse(c, http.StatusInternalServerError, model.ErrCodeCheckoutFailed, "checkout failed, please try again")
}
