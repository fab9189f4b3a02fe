package handlers

import (
	"net/http"

	"orderbridge/internal/common"
	"orderbridge/internal/services"

	"github.com/labstack/echo/v4"
)

// NotificationHandlers handles notification-related HTTP requests
type NotificationHandlers struct {
	notificationSvc services.NotificationService
}

// NewNotificationHandlers creates a new notification handlers instance
func NewNotificationHandlers(notificationSvc services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		notificationSvc: notificationSvc,
	}
}

// ListNotifications godoc
// @Summary Notifications addressed to the caller
// @Tags notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /notifications [get]
func (h *NotificationHandlers) ListNotifications(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	notifications, err := h.notificationSvc.ListForUser(c.Request().Context(), actor.UserID,
		c.QueryParam("unread") == "true", limit, offset)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"limit":         limit,
		"offset":        offset,
	})
}

// MarkRead godoc
// @Summary Mark one of the caller's notifications as read
// @Tags notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandlers) MarkRead(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if err := h.notificationSvc.MarkRead(c.Request().Context(), actor.UserID, id); err != nil {
		return common.SendDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
