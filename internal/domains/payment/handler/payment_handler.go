package handler

import (
	"errors"
	"io"
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

// maxWebhookBody caps what we read from the gateway
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	paymentService  service.PaymentService
	signatureHeader string
}

// NewPaymentHandler creates new payment handler
func NewPaymentHandler(paymentService service.PaymentService, signatureHeader string) *PaymentHandler {
	return &PaymentHandler{
		paymentService:  paymentService,
		signatureHeader: signatureHeader,
	}
}

// =====================================================
// WEBHOOK
// =====================================================

// Webhook POST /api/v1/payments/webhook
//
// 200 once the raw event is stored; processing happens in the worker.
// Business outcomes never change the status code, otherwise the gateway
// would keep redelivering.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	// Step 1: Raw body, the signature covers the exact bytes
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unable to read body")
		return
	}

	// Step 2: Verify, parse and persist
	err = h.paymentService.IngestWebhook(c.Request.Context(), payload, c.GetHeader(h.signatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, model.ErrInvalidSignature):
		logger.Warn("Rejected webhook with invalid signature", map[string]interface{}{
			"client_ip": c.ClientIP(),
		})
		response.ErrorResponse(c, http.StatusUnauthorized, model.ErrCodeInvalidSignature, "invalid signature")
	case errors.Is(err, model.ErrMalformedEvent):
		response.ErrorResponse(c, http.StatusBadRequest, model.ErrCodeMalformedEvent, "malformed event")
	default:
		logger.Error("Failed to persist webhook", err)
		response.ErrorResponse(c, http.StatusInternalServerError, model.ErrCodeInboxUnavailable, "failed to store event")
	}
}

// =====================================================
// PAYMENT RETRY
// =====================================================

// RetryPayment POST /api/v1/orders/:id/payment
func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	userID, _ := middleware.GetAuthenticatedUserID(c)
	handle, err := h.paymentService.RetryPayment(c.Request.Context(), orderID, userID, middleware.GetSessionID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"orderId":       orderID,
		"paymentHandle": handle,
	})
}

func (h *PaymentHandler) handleError(c *gin.Context, err error) {
	var payErr *model.PaymentError
	switch {
	case errors.As(err, &payErr):
		response.ErrorResponse(c, payErr.HTTPStatus, payErr.Code, payErr.Message)
	case errors.Is(err, orderModel.ErrOrderNotFound), errors.Is(err, model.ErrPaymentNotFound):
		response.NotFound(c, "order not found")
	default:
		logger.Error("Payment request failed", err)
		response.InternalServerError(c, "internal server error")
	}
}
