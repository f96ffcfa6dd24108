package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"food-ordering-backend/internal/domains/coupon/model"
	"food-ordering-backend/internal/domains/coupon/service"
	"food-ordering-backend/internal/shared/middleware"
	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/logger"
)

type CouponHandler struct {
	service service.ServiceInterface
}

func NewCouponHandler(service service.ServiceInterface) *CouponHandler {
	return &CouponHandler{service: service}
}

// ValidateCoupon previews a coupon against a cart total without redeeming it
// @Router /v1/coupons/validate [post]
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req model.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	userID, _ := middleware.GetAuthenticatedUserID(c)

	result, err := h.service.Validate(c.Request.Context(), req.Code, req.CartTotal, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// =====================================================
// ADMIN
// =====================================================

// CreateCoupon
// @Router /v1/admin/coupons [post]
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req model.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	req.Code = model.NormalizeCode(req.Code)
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	coupon, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, coupon)
}

// GetCoupon
// @Router /v1/admin/coupons/:code [get]
func (h *CouponHandler) GetCoupon(c *gin.Context) {
	coupon, err := h.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, coupon)
}

// ListCoupons
// @Router /v1/admin/coupons [get]
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	coupons, total, err := h.service.List(c.Request.Context(), page, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, coupons, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// UpdateCouponStatus activates or deactivates a coupon
// @Router /v1/admin/coupons/:code/status [patch]
func (h *CouponHandler) UpdateCouponStatus(c *gin.Context) {
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.ValidationError(c, err)
		return
	}

	if err := h.service.SetActive(c.Request.Context(), c.Param("code"), *req.IsActive); err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"code":      model.NormalizeCode(c.Param("code")),
		"is_active": *req.IsActive,
	})
}

func (h *CouponHandler) handleError(c *gin.Context, err error) {
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		response.ErrorWithDetails(c, appErr.HTTPStatus, string(appErr.Code), appErr.Message, appErr.Details)
		return
	}

	logger.Error("Coupon request failed", err)
	response.InternalServerError(c, "internal server error")
}
