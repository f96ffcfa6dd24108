package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	orderModel "food-ordering-backend/internal/domains/order/model"
	"food-ordering-backend/internal/domains/payment/model"
	"food-ordering-backend/internal/domains/payment/service"
	"food-ordering-backend/internal/shared/middleware"
	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/logger"
)

type RefundHandler struct {
	refundService service.RefundService
}

func NewRefundHandler(refundService service.RefundService) *RefundHandler {
	return &RefundHandler{refundService: refundService}
}

// RegisterAdminRoutes registers routes behind the admin middleware
func (h *RefundHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	router.POST("/orders/:id/refund", h.RefundOrder) // POST /admin/orders/:id/refund
}

// RefundOrder POST /api/v1/admin/orders/:id/refund
func (h *RefundHandler) RefundOrder(c *gin.Context) {
	// Step 1: Admin and order
	adminID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		response.Unauthorized(c, "login required")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	// Step 2: Body
	var req model.RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	// Step 3: Refund
	result, err := h.refundService.RefundOrder(c.Request.Context(), orderID, *adminID, req)
	if err != nil {
		var payErr *model.PaymentError
		switch {
		case errors.As(err, &payErr):
			response.ErrorResponse(c, payErr.HTTPStatus, payErr.Code, payErr.Message)
		case errors.Is(err, orderModel.ErrOrderNotFound), errors.Is(err, model.ErrPaymentNotFound):
			response.NotFound(c, "order not found")
		default:
			logger.Error("Refund failed", err)
			response.InternalServerError(c, "internal server error")
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}
