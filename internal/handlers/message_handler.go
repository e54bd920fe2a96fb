package handlers

import (
	"net/http"
	"strconv"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// MessageHandler handles direct message HTTP requests
type MessageHandler struct {
	messaging *services.MessagingService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(messaging *services.MessagingService) *MessageHandler {
	return &MessageHandler{messaging: messaging}
}

// RegisterMessageRoutes registers messaging routes
func (h *MessageHandler) RegisterMessageRoutes(g *echo.Group) {
	g.POST("/message/send", h.Send)
	g.GET("/message/conversation/:userId", h.Conversation)
	g.POST("/message/delete", h.Delete)
	g.POST("/message/seen", h.MarkSeen)
	g.GET("/messages/unread-counts", h.UnreadCounts)
	g.GET("/user/recent-messages", h.RecentMessages)
}

// Send stores a text or image message, optionally as a reply
func (h *MessageHandler) Send(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}
	var req models.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	image, err := readUpload(c, "image")
	if err != nil {
		return err
	}

	in := services.SendInput{ToUserID: req.ToUserID, Text: req.Text, Image: image}
	if req.ReplyTo != 0 {
		replyTo := req.ReplyTo
		in.ReplyTo = &replyTo
	}

	msg, err := h.messaging.Send(c.Request().Context(), auth, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msg})
}

// Conversation returns the conversation with :userId, oldest first
func (h *MessageHandler) Conversation(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	var since uint64
	if raw := c.QueryParam("since"); raw != "" {
		since, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return apperrors.InvalidArgument("Invalid since cursor")
		}
	}

	msgs, err := h.messaging.ListConversation(c.Request().Context(), auth, c.Param("userId"), uint(since))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "messages": msgs})
}

// Delete removes one of the caller's messages
func (h *MessageHandler) Delete(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}
	var req models.DeleteMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.messaging.DeleteMessage(c.Request().Context(), auth, req.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Message deleted"})
}

// MarkSeen marks everything the peer in the body sent the caller as seen
func (h *MessageHandler) MarkSeen(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}
	var req models.TargetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.messaging.MarkSeen(c.Request().Context(), auth, req.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "updated": updated})
}

// UnreadCounts is the polling target for unread badges
func (h *MessageHandler) UnreadCounts(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	items, err := h.messaging.UnreadCounts(c.Request().Context(), auth)
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.UnreadCount{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "items": items})
}

// RecentMessages returns the latest message with each peer
func (h *MessageHandler) RecentMessages(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	recent, err := h.messaging.RecentMessages(c.Request().Context(), auth)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "messages": recent})
}
