package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/picto-request-service/internal/api/dto"
	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/service"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

// NotificationsHandler exposes the caller's notification inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	list, err := h.service.List(c.UserContext(), actor.Login, c.QueryBool("unread", false), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, len(list.Items))
	for i, n := range list.Items {
		items[i] = notificationResponse(n)
	}
	return c.JSON(fiber.Map{"data": items, "unread": list.Unread})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.UserContext(), actor.Login, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkManyRead POST /notifications/read.
func (h *NotificationsHandler) MarkManyRead(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var body dto.MarkNotificationsReadRequest
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.service.MarkManyRead(c.UserContext(), actor.Login, body.IDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": updated}})
}

func notificationResponse(n domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
