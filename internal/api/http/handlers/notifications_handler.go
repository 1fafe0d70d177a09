package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/service"
)

// NotificationsHandler exposes the caller's inbox.
type NotificationsHandler struct {
	sink *service.NotificationSink
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(sink *service.NotificationSink) *NotificationsHandler {
	return &NotificationsHandler{sink: sink}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	items, err := h.sink.ListFor(c.UserContext(), actor.IdentityID, pageFromQuery(c))
	if err != nil {
		return err
	}
	unread, err := h.sink.UnreadCount(c.UserContext(), actor.IdentityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NotificationListResponse{
		Items:       notificationResponses(items),
		UnreadCount: unread,
	}})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.sink.MarkRead(c.UserContext(), actor.IdentityID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "read": true}})
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	updated, err := h.sink.MarkAllRead(c.UserContext(), actor.IdentityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": updated}})
}
