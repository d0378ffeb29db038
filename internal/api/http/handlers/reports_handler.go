package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/picto-request-service/internal/api/dto"
	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/service"
	"github.com/spec-kit/picto-request-service/internal/tracker"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

// ReportsHandler exposes bug/improvement reports and the tracker webhook.
type ReportsHandler struct {
	service *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService *service.ReportService) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// Submit POST /reports.
func (h *ReportsHandler) Submit(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var body dto.SubmitReportRequest
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.service.SubmitReport(c.UserContext(), actor, service.ReportSubmitInput{
		Type:   body.Type,
		Title:  body.Title,
		Fields: body.Fields,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.SubmitReportResponse{
		ExternalID: issue.ExternalID,
		URL:        issue.URL,
	}})
}

// List GET /reports.
func (h *ReportsHandler) List(c *fiber.Ctx) error {
	reports, err := h.service.ListReports(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.ReportResponse, len(reports))
	for i, r := range reports {
		out[i] = reportResponse(r)
	}
	return c.JSON(fiber.Map{"data": out})
}

// ListNotifications GET /reports/notifications.
func (h *ReportsHandler) ListNotifications(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListNotificationsFor(c.UserContext(), actor)
	if err != nil {
		return err
	}
	out := make([]dto.ReportNotificationResponse, len(items))
	unread := 0
	for i, item := range items {
		out[i] = dto.ReportNotificationResponse{ReportResponse: reportResponse(item.Report), Read: item.Read}
		if !item.Read {
			unread++
		}
	}
	return c.JSON(fiber.Map{"data": out, "unread": unread})
}

// MarkNotificationsRead POST /reports/notifications/read.
func (h *ReportsHandler) MarkNotificationsRead(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var body dto.MarkReportsReadRequest
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.MarkReportNotificationsRead(c.UserContext(), actor, body.IDs); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Webhook POST /webhooks/tracker. The signature covers the raw body, so it
// is read before any parsing.
func (h *ReportsHandler) Webhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	outcome, err := h.service.HandleWebhook(c.UserContext(), body, c.Get(tracker.SignatureHeader), c.Get(tracker.DeliveryHeader))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": outcome})
}

func reportResponse(r domain.Report) dto.ReportResponse {
	return dto.ReportResponse{
		ExternalID: r.ExternalID,
		Type:       r.Type,
		Title:      r.Title,
		State:      r.State,
		URL:        r.URL,
		Resolution: r.Resolution,
		CreatedAt:  r.CreatedAt,
		ClosedAt:   r.ClosedAt,
	}
}
