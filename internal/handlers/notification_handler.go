package handlers

import (
	"net/http"
	"time"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifier *services.Notifier
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifier *services.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.POST("/notifications/read-all", h.MarkAllAsRead)
	g.POST("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns the newest notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	notifications, err := h.notifier.List(c.Request().Context(), auth)
	if err != nil {
		return err
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "notifications": notifications})
}

// GetGroupedNotifications buckets notifications by day in the ?tz= zone (UTC by default)
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	loc := time.UTC
	if tz := c.QueryParam("tz"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return apperrors.InvalidArgument("Unknown time zone")
		}
	}

	grouped, unread, err := h.notifier.Grouped(c.Request().Context(), auth, loc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"notifications": grouped,
		"unreadCount":   unread,
	})
}

// GetUnreadCount returns how many notifications are unread
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	count, err := h.notifier.UnreadCount(c.Request().Context(), auth)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": count})
}

// MarkAsRead marks a notification read. It answers the same way whether or not
// the notification belongs to the caller.
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	if err := h.notifier.MarkRead(c.Request().Context(), auth, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// MarkAllAsRead marks every notification of the caller read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	if err := h.notifier.MarkAllRead(c.Request().Context(), auth); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
