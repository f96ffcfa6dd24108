package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/internal/domains/cart/service"
	"food-ordering-backend/internal/shared/middleware"
	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/logger"
)

// Handler serves /cart for both users and guests
type Handler struct {
	service service.ServiceInterface
}

func NewHandler(service service.ServiceInterface) *Handler {
	return &Handler{service: service}
}

// ownerFrom resolves the cart owner set by the auth and cart middlewares
func ownerFrom(c *gin.Context) (model.Owner, bool) {
	if userID, ok := middleware.GetAuthenticatedUserID(c); ok {
		return model.UserOwner(*userID), true
	}
	if sessionID := middleware.GetSessionID(c); sessionID != "" {
		return model.SessionOwner(sessionID), true
	}
	return model.Owner{}, false
}

// ===================================
// GET /cart
// ===================================

func (h *Handler) GetCart(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	cart, err := h.service.GetCart(c.Request.Context(), owner)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, cart)
}

// ===================================
// POST /cart/items
// ===================================

func (h *Handler) AddItem(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	var req model.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	cart, err := h.service.AddItem(c.Request.Context(), owner, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, cart)
}

// ===================================
// PUT /cart/items/:product_id
// ===================================

func (h *Handler) UpdateQuantity(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		response.BadRequest(c, "invalid product id")
		return
	}

	var req model.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	cart, err := h.service.UpdateQuantity(c.Request.Context(), owner, productID, *req.Quantity)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, cart)
}

// ===================================
// DELETE /cart/items/:product_id
// ===================================

func (h *Handler) RemoveItem(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		response.BadRequest(c, "invalid product id")
		return
	}

	cart, err := h.service.RemoveItem(c.Request.Context(), owner, productID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, cart)
}

// ===================================
// POST /cart/coupon, DELETE /cart/coupon
// ===================================

func (h *Handler) ApplyCoupon(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	var req model.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	cart, err := h.service.ApplyCoupon(c.Request.Context(), owner, req.Code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, cart)
}

func (h *Handler) RemoveCoupon(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		response.BadRequest(c, "missing cart session")
		return
	}

	cart, err := h.service.RemoveCoupon(c.Request.Context(), owner)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, cart)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	cartErr := model.ToCartError(err)
	if cartErr.HTTPStatus >= http.StatusInternalServerError && !errors.Is(err, model.ErrVersionConflict) {
		logger.Error("Cart request failed", err)
	}
	response.ErrorWithDetails(c, cartErr.HTTPStatus, cartErr.Code, cartErr.Message, cartErr.Details)
}
