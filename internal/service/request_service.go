package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/events"
	"github.com/spec-kit/picto-request-service/internal/repository"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

const commentPreviewLength = 140

// RequestService drives the request workflow: creation, assignment, guarded
// status transitions and comments.
type RequestService struct {
	requests   repository.RequestRepository
	comments   repository.CommentRepository
	history    repository.HistoryRepository
	dispatcher events.Dispatcher
	handlers   []string
	logger     *zap.Logger
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.HistoryRepository
	Dispatcher  events.Dispatcher
	// Handlers lists the logins eligible to take unassigned requests.
	Handlers []string
	Logger   *zap.Logger
}

// RequestCreateInput describes request creation payload.
type RequestCreateInput struct {
	Title             string
	Description       string
	ReferenceImageKey *string
	Urgency           string
}

// StatusChangeInput describes a requested status transition.
type StatusChangeInput struct {
	Status           string
	Comment          string
	DeliveredAssetID string
	RejectionReason  string
}

// RequestListFilter describes listing filters.
type RequestListFilter struct {
	Statuses []domain.Status
	Limit    int
	Offset   int
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		requests:   deps.RequestRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		handlers:   deps.Handlers,
		logger:     logger,
	}
}

// CreateRequest validates and stores a new request in status new.
func (s *RequestService) CreateRequest(ctx context.Context, actor domain.Actor, input RequestCreateInput) (*domain.Request, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if err := validateText("title", title, domain.MaxTitleLength); err != nil {
		return nil, err
	}
	if err := validateText("description", description, domain.MaxDescriptionLength); err != nil {
		return nil, err
	}
	urgency := domain.Urgency(strings.TrimSpace(input.Urgency))
	if urgency == "" {
		urgency = domain.UrgencyNormal
	}
	if !urgency.Valid() {
		return nil, apperrors.NewValidationError("urgency must be normal or urgent", map[string]any{"field": "urgency"})
	}
	var imageKey *string
	if input.ReferenceImageKey != nil && strings.TrimSpace(*input.ReferenceImageKey) != "" {
		key := strings.TrimSpace(*input.ReferenceImageKey)
		imageKey = &key
	}

	req := &domain.Request{
		RequesterLogin:    actor.Login,
		RequesterName:     actor.DisplayName,
		Title:             title,
		Description:       description,
		ReferenceImageKey: imageKey,
		Urgency:           urgency,
		Status:            domain.StatusNew,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.appendHistory(ctx, req.ID, actor.Login, domain.HistoryCreated, nil, &req.Status, nil); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: req.ID,
		Request:   req,
		Actor:     eventActor(actor),
		Payload: events.RequestCreatedPayload{
			Title:   req.Title,
			Urgency: req.Urgency,
		},
	})
	return req, nil
}

// Assign makes actor the handler of an unassigned, non-terminal request and
// moves it to in_progress when it was new.
func (s *RequestService) Assign(ctx context.Context, actor domain.Actor, requestID string) (*domain.Request, error) {
	if !actor.Privileged {
		return nil, apperrors.NewForbidden("only handlers can take requests")
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		guardErr := &domain.GuardError{Guard: domain.GuardTerminal, From: req.Status, To: domain.StatusInProgress}
		return nil, guardViolation(guardErr)
	}
	if req.IsAssigned() {
		return nil, apperrors.NewConflict("request already assigned", map[string]any{
			"request_id": req.ID,
			"assignee":   *req.AssigneeLogin,
		})
	}

	oldStatus := req.Status
	assignee := actor.Login
	req.AssigneeLogin = &assignee
	if req.Status == domain.StatusNew {
		req.Status = domain.StatusInProgress
	}
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}
	if err := s.appendHistory(ctx, req.ID, actor.Login, domain.HistoryAssigned, &oldStatus, &req.Status, &assignee); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestAssigned,
		RequestID: req.ID,
		Request:   req,
		Actor:     eventActor(actor),
		Payload: events.RequestAssignedPayload{
			AssigneeLogin: assignee,
			OldStatus:     oldStatus,
			NewStatus:     req.Status,
		},
	})
	return req, nil
}

// ChangeStatus applies a guarded transition. A supplied comment or rejection
// reason is posted to the thread under the actor's identity.
func (s *RequestService) ChangeStatus(ctx context.Context, actor domain.Actor, requestID string, input StatusChangeInput) (*domain.Request, error) {
	target, ok := domain.ParseStatus(strings.TrimSpace(input.Status))
	if !ok {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"field": "status", "value": input.Status})
	}
	in := domain.TransitionInput{
		Comment:          strings.TrimSpace(input.Comment),
		DeliveredAssetID: strings.TrimSpace(input.DeliveredAssetID),
		RejectionReason:  strings.TrimSpace(input.RejectionReason),
	}
	if utf8.RuneCountInString(in.Comment) > domain.MaxCommentLength {
		return nil, apperrors.NewValidationError("comment too long", map[string]any{"field": "comment", "max": domain.MaxCommentLength})
	}
	if utf8.RuneCountInString(in.RejectionReason) > domain.MaxCommentLength {
		return nil, apperrors.NewValidationError("rejection reason too long", map[string]any{"field": "rejection_reason", "max": domain.MaxCommentLength})
	}
	if !actor.Privileged {
		return nil, apperrors.NewForbidden("only handlers can change status")
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	oldStatus := req.Status
	next, err := domain.Transition(oldStatus, target, in)
	if err != nil {
		var guardErr *domain.GuardError
		if errors.As(err, &guardErr) {
			return nil, guardViolation(guardErr)
		}
		return nil, apperrors.MapError(err)
	}

	req.Status = next
	switch next {
	case domain.StatusInProgress:
		if !req.IsAssigned() {
			assignee := actor.Login
			req.AssigneeLogin = &assignee
		}
	case domain.StatusDelivered:
		req.DeliveredAssetID = &in.DeliveredAssetID
	case domain.StatusRefused:
		req.RejectionReason = &in.RejectionReason
	}
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}

	for _, text := range threadPosts(in) {
		if _, err := s.createComment(ctx, req.ID, actor, text); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	detail := transitionDetail(next, in)
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}
	if err := s.appendHistory(ctx, req.ID, actor.Login, domain.HistoryStatusChanged, &oldStatus, &req.Status, detailPtr); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestStatusChanged,
		RequestID: req.ID,
		Request:   req,
		Actor:     eventActor(actor),
		Payload: events.RequestStatusChangedPayload{
			OldStatus:        oldStatus,
			NewStatus:        req.Status,
			Detail:           detail,
			DeliveredAssetID: in.DeliveredAssetID,
		},
	})
	return req, nil
}

// threadPosts lists the texts a transition posts to the thread: the comment,
// then the rejection reason when it differs.
func threadPosts(in domain.TransitionInput) []string {
	var posts []string
	if in.Comment != "" {
		posts = append(posts, in.Comment)
	}
	if in.RejectionReason != "" && in.RejectionReason != in.Comment {
		posts = append(posts, in.RejectionReason)
	}
	return posts
}

// transitionDetail is the history detail and notification text of a
// transition. A refusal is described by its reason.
func transitionDetail(next domain.Status, in domain.TransitionInput) string {
	if next == domain.StatusRefused && in.RejectionReason != "" {
		return in.RejectionReason
	}
	if in.Comment != "" {
		return in.Comment
	}
	return in.RejectionReason
}

// AddComment posts to a request thread and notifies the other party, or
// every eligible handler while the request has no assignee.
func (s *RequestService) AddComment(ctx context.Context, actor domain.Actor, requestID, content string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if err := validateText("content", content, domain.MaxCommentLength); err != nil {
		return nil, err
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, req) {
		return nil, apperrors.NewForbidden("access denied")
	}
	comment, err := s.createComment(ctx, req.ID, actor, content)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCommentAdded,
		RequestID: req.ID,
		Request:   req,
		Actor:     eventActor(actor),
		Payload: events.RequestCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorLogin: actor.Login,
			Recipients:  s.commentRecipients(req, actor.Login),
			BodyPreview: preview(content, commentPreviewLength),
		},
	})
	return comment, nil
}

// GetRequest returns a request visible to actor.
func (s *RequestService) GetRequest(ctx context.Context, actor domain.Actor, requestID string) (*domain.Request, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, req) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return req, nil
}

// ListMine returns requests created by actor.
func (s *RequestService) ListMine(ctx context.Context, actor domain.Actor, filter RequestListFilter) ([]domain.Request, error) {
	login := actor.Login
	return s.list(ctx, repository.RequestFilter{
		RequesterLogin: &login,
		Statuses:       filter.Statuses,
		Limit:          filter.Limit,
		Offset:         filter.Offset,
	})
}

// ListAll returns every request; handlers only.
func (s *RequestService) ListAll(ctx context.Context, actor domain.Actor, filter RequestListFilter) ([]domain.Request, error) {
	if !actor.Privileged {
		return nil, apperrors.NewForbidden("only handlers can list all requests")
	}
	return s.list(ctx, repository.RequestFilter{
		Statuses: filter.Statuses,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// ListComments returns the thread of a request in posting order.
func (s *RequestService) ListComments(ctx context.Context, actor domain.Actor, requestID string) ([]domain.Comment, error) {
	if _, err := s.GetRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

// ListHistory returns the audit trail of a request in creation order.
func (s *RequestService) ListHistory(ctx context.Context, actor domain.Actor, requestID string) ([]domain.HistoryEntry, error) {
	if _, err := s.GetRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

func (s *RequestService) list(ctx context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if requests == nil {
		requests = []domain.Request{}
	}
	return requests, nil
}

func (s *RequestService) load(ctx context.Context, requestID string) (*domain.Request, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	return req, nil
}

func (s *RequestService) update(ctx context.Context, req *domain.Request) error {
	if err := s.requests.Update(ctx, req); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperrors.NewConflict("request was modified concurrently, reload and retry", map[string]any{"request_id": req.ID})
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("request", map[string]any{"request_id": req.ID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *RequestService) createComment(ctx context.Context, requestID string, actor domain.Actor, content string) (*domain.Comment, error) {
	comment := &domain.Comment{
		RequestID:   requestID,
		AuthorLogin: actor.Login,
		AuthorName:  actor.DisplayName,
		Content:     content,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *RequestService) appendHistory(ctx context.Context, requestID, actorLogin string, action domain.HistoryAction, from, to *domain.Status, detail *string) error {
	return s.history.Append(ctx, &domain.HistoryEntry{
		RequestID:  requestID,
		ActorLogin: actorLogin,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Detail:     detail,
	})
}

func (s *RequestService) commentRecipients(req *domain.Request, author string) []string {
	if author == req.RequesterLogin && !req.IsAssigned() {
		recipients := make([]string, 0, len(s.handlers))
		seen := map[string]struct{}{author: {}}
		for _, handler := range s.handlers {
			if _, dup := seen[handler]; dup || handler == "" {
				continue
			}
			seen[handler] = struct{}{}
			recipients = append(recipients, handler)
		}
		return recipients
	}
	if other, ok := req.Counterpart(author); ok && other != author {
		return []string{other}
	}
	return nil
}

func (s *RequestService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}

func canAccess(actor domain.Actor, req *domain.Request) bool {
	if actor.Privileged || actor.Login == req.RequesterLogin {
		return true
	}
	return req.IsAssigned() && *req.AssigneeLogin == actor.Login
}

func guardViolation(err *domain.GuardError) error {
	return apperrors.NewGuardViolation(string(err.Guard), err.Error(), map[string]any{
		"from": err.From,
		"to":   err.To,
	})
}

func validateText(field, value string, max int) error {
	if value == "" {
		return apperrors.NewValidationError(field+" is required", map[string]any{"field": field})
	}
	if utf8.RuneCountInString(value) > max {
		return apperrors.NewValidationError(field+" is too long", map[string]any{"field": field, "max": max})
	}
	return nil
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{Login: actor.Login, DisplayName: actor.DisplayName}
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
