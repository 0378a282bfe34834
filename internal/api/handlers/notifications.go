package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/pkg/dto"
)

type NotificationService interface {
	List(ctx context.Context, includeRead bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

type NotificationHandler struct {
	alerts NotificationService
}

func NewNotificationHandler(alerts NotificationService) *NotificationHandler {
	return &NotificationHandler{alerts: alerts}
}

func (h *NotificationHandler) List(c *gin.Context) {
	includeRead := false
	if raw := c.Query("include_read"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid include_read"})
			return
		}
		includeRead = v
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	list, err := h.alerts.List(c.Request.Context(), includeRead, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, notificationResponse(&list[i]))
	}
	c.JSON(http.StatusOK, dto.NotificationListResponse{Notifications: resp, Total: len(resp)})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.alerts.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.alerts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
