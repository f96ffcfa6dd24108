package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"food-ordering-backend/internal/domains/notification/model"
	"food-ordering-backend/internal/domains/notification/service"
	"food-ordering-backend/internal/shared/middleware"
	"food-ordering-backend/internal/shared/response"
	"food-ordering-backend/pkg/logger"
)

type NotificationHandler struct {
	service service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// RegisterRoutes expects a group behind the auth middleware
func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	notifications := router.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)            // GET /notifications?page=1&limit=20
		notifications.GET("/unread-count", h.GetUnreadCount)  // GET /notifications/unread-count
		notifications.POST("/mark-read", h.MarkAsRead)        // POST /notifications/mark-read
		notifications.POST("/mark-all-read", h.MarkAllAsRead) // POST /notifications/mark-all-read
	}
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		response.Unauthorized(c, "login required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, total, err := h.service.ListNotifications(c.Request.Context(), *userID, page, limit)
	if err != nil {
		logger.Error("Failed to list notifications", err)
		response.InternalServerError(c, "failed to list notifications")
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		response.Unauthorized(c, "login required")
		return
	}

	count, err := h.service.GetUnreadCount(c.Request.Context(), *userID)
	if err != nil {
		logger.Error("Failed to count unread notifications", err)
		response.InternalServerError(c, "failed to count notifications")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unreadCount": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		response.Unauthorized(c, "login required")
		return
	}

	var req model.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err)
		return
	}

	updated, err := h.service.MarkAsRead(c.Request.Context(), *userID, req.IDs)
	if err != nil {
		if errors.Is(err, model.ErrNotificationNotFound) {
			response.NotFound(c, "notification not found")
			return
		}
		logger.Error("Failed to mark notifications read", err)
		response.InternalServerError(c, "failed to update notifications")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		response.Unauthorized(c, "login required")
		return
	}

	updated, err := h.service.MarkAllAsRead(c.Request.Context(), *userID)
	if err != nil {
		logger.Error("Failed to mark all notifications read", err)
		response.InternalServerError(c, "failed to update notifications")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
