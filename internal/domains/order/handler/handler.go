package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/domains/order/service"
	"food-ordering-backend/internal/shared/middleware"
	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/cache"
	"food-ordering-backend/pkg/logger"
)

// =====================================================
// ORDER HANDLER
// =====================================================
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// =====================================================
// ROUTES REGISTRATION
// =====================================================

// RegisterRoutes registers customer routes. The group must run the optional
// auth and cart session middlewares so guests can see their own orders.
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.GET("", h.ListOrders)                           // GET /orders?page=1&limit=20 (users only)
		orders.GET("/:id", h.GetOrder)                         // GET /orders/:id
		orders.GET("/number/:orderNumber", h.GetOrderByNumber) // GET /orders/number/FO-20250131-7KQ2MX
	}
}

// RegisterAdminRoutes registers routes behind the admin middleware
func (h *OrderHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	admin := router.Group("/orders")
	{
		admin.GET("/:id", h.AdminGetOrder)              // GET /admin/orders/:id
		admin.PATCH("/:id/status", h.UpdateOrderStatus) // PATCH /admin/orders/:id/status
	}
}

// =====================================================
// CUSTOMER
// =====================================================

func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		response.Unauthorized(c, "login required to list orders")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), *userID, page, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	response.SuccessWithMeta(c, http.StatusOK, orders, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.respondIfOwner(c, order)
}

func (h *OrderHandler) GetOrderByNumber(c *gin.Context) {
	order, err := h.orderService.GetOrderByNumber(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.respondIfOwner(c, order)
}

// respondIfOwner answers 404 for orders of someone else
func (h *OrderHandler) respondIfOwner(c *gin.Context, order *model.Order) {
	userID, _ := middleware.GetAuthenticatedUserID(c)
	if !order.IsOwnedBy(userID, middleware.GetSessionID(c)) {
		response.NotFound(c, "order not found")
		return
	}
	response.Success(c, http.StatusOK, order)
}

// =====================================================
// ADMIN
// =====================================================

type adminOrderView struct {
	*model.Order
	History []model.StatusHistory `json:"history"`
}

func (h *OrderHandler) AdminGetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	history, err := h.orderService.GetHistory(c.Request.Context(), orderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, adminOrderView{Order: order, History: history})
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	var req model.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	changedBy := "admin"
	if userID, ok := middleware.GetAuthenticatedUserID(c); ok {
		changedBy = "admin:" + userID.String()
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, req, changedBy)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, order)
}

// =====================================================
// ERROR MAPPING
// =====================================================

func (h *OrderHandler) handleServiceError(c *gin.Context, err error) {
	var orderErr *model.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case model.ErrCodeInvalidTransition, model.ErrCodePaymentState:
			response.ErrorResponse(c, http.StatusConflict, orderErr.Code, orderErr.Message)
		case model.ErrCodeInvalidStatus, model.ErrCodeInvalidOrder:
			response.ErrorResponse(c, http.StatusBadRequest, orderErr.Code, orderErr.Message)
		default:
			response.ErrorResponse(c, http.StatusUnprocessableEntity, orderErr.Code, orderErr.Message)
		}
		return
	}

	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		response.ErrorResponse(c, http.StatusNotFound, model.ErrCodeOrderNotFound, "order not found")
	case errors.Is(err, model.ErrVersionMismatch), errors.Is(err, cache.ErrLockNotAcquired):
		response.ErrorResponse(c, http.StatusConflict, model.ErrCodeVersionMismatch, "order is being modified, try again")
	default:
		logger.Error("Order request failed", err)
		response.InternalServerError(c, "internal server error")
	}
}
