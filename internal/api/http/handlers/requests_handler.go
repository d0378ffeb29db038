package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/picto-request-service/internal/api/dto"
	"github.com/spec-kit/picto-request-service/internal/auth"
	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/service"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

// RequestsHandler manages pictogram request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// CreateRequest POST /requests.
func (h *RequestsHandler) CreateRequest(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	created, err := h.service.CreateRequest(c.UserContext(), actor, service.RequestCreateInput{
		Title:             req.Title,
		Description:       req.Description,
		ReferenceImageKey: req.ReferenceImageKey,
		Urgency:           req.Urgency,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": requestSummary(created)})
}

// ListMine GET /requests/mine.
func (h *RequestsHandler) ListMine(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseRequestListQuery(c)
	if err != nil {
		return err
	}
	requests, err := h.service.ListMine(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummaries(requests)})
}

// ListAll GET /requests.
func (h *RequestsHandler) ListAll(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseRequestListQuery(c)
	if err != nil {
		return err
	}
	requests, err := h.service.ListAll(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummaries(requests)})
}

// GetRequest GET /requests/:id.
func (h *RequestsHandler) GetRequest(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	req, err := h.service.GetRequest(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	history, err := h.service.ListHistory(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req, comments, history)})
}

// Assign POST /requests/:id/assign.
func (h *RequestsHandler) Assign(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	req, err := h.service.Assign(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(req)})
}

// ChangeStatus POST /requests/:id/status.
func (h *RequestsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var body dto.ChangeStatusRequest
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req, err := h.service.ChangeStatus(c.UserContext(), actor, c.Params("id"), service.StatusChangeInput{
		Status:           body.Status,
		Comment:          body.Comment,
		DeliveredAssetID: body.DeliveredAssetID,
		RejectionReason:  body.RejectionReason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(req)})
}

// ListComments GET /requests/:id/comments.
func (h *RequestsHandler) ListComments(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": commentResponses(comments)})
}

// AddComment POST /requests/:id/comments.
func (h *RequestsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var body dto.AddCommentRequest
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), body.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": commentResponse(*comment)})
}

// ListHistory GET /requests/:id/history.
func (h *RequestsHandler) ListHistory(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseRequestListQuery(c *fiber.Ctx) (service.RequestListFilter, error) {
	var filter service.RequestListFilter
	if statusStr := c.Query("status"); statusStr != "" {
		for _, raw := range strings.Split(statusStr, ",") {
			status, ok := domain.ParseStatus(strings.TrimSpace(raw))
			if !ok {
				return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": raw})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func requestSummary(req *domain.Request) dto.RequestSummary {
	return dto.RequestSummary{
		ID:               req.ID,
		RequesterLogin:   req.RequesterLogin,
		Title:            req.Title,
		Urgency:          req.Urgency,
		Status:           req.Status,
		AssigneeLogin:    req.AssigneeLogin,
		DeliveredAssetID: req.DeliveredAssetID,
		Version:          req.Version,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
}

func requestSummaries(requests []domain.Request) []dto.RequestSummary {
	out := make([]dto.RequestSummary, len(requests))
	for i := range requests {
		out[i] = requestSummary(&requests[i])
	}
	return out
}

func requestDetail(req *domain.Request, comments []domain.Comment, history []domain.HistoryEntry) dto.RequestDetailResponse {
	return dto.RequestDetailResponse{
		RequestSummary:    requestSummary(req),
		RequesterName:     req.RequesterName,
		Description:       req.Description,
		ReferenceImageKey: req.ReferenceImageKey,
		RejectionReason:   req.RejectionReason,
		Comments:          commentResponses(comments),
		History:           historyResponses(history),
	}
}

func commentResponse(comment domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:          comment.ID,
		AuthorLogin: comment.AuthorLogin,
		AuthorName:  comment.AuthorName,
		Content:     comment.Content,
		CreatedAt:   comment.CreatedAt,
	}
}

func commentResponses(comments []domain.Comment) []dto.CommentResponse {
	out := make([]dto.CommentResponse, len(comments))
	for i, comment := range comments {
		out[i] = commentResponse(comment)
	}
	return out
}

func historyResponses(entries []domain.HistoryEntry) []dto.HistoryResponse {
	out := make([]dto.HistoryResponse, len(entries))
	for i, entry := range entries {
		out[i] = dto.HistoryResponse{
			ID:         entry.ID,
			ActorLogin: entry.ActorLogin,
			Action:     entry.Action,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			Detail:     entry.Detail,
			CreatedAt:  entry.CreatedAt,
		}
	}
	return out
}
