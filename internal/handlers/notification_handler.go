package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relaychat/internal/services"
)

// NotificationHandler is the REST facade publishing into the realtime
// fan-out: POST pushes a notification to every socket joined to the
// well-known room, GET pages the bounded history.
type NotificationHandler struct {
	service *services.NotificationService
	logger  *slog.Logger
}

func NewNotificationHandler(service *services.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

func (h *NotificationHandler) Create(c *gin.Context) {
	var req struct {
		Type    string         `json:"type"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input format"})
		return
	}

	n, err := h.service.Publish(c.Request.Context(), req.Type, req.Message, req.Data)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("notification publish failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": n.ID})
}

func (h *NotificationHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	notifications, total, err := h.service.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.logger.Error("notification list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         total,
	})
}
