package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/picto-request-service/internal/domain"
	"github.com/spec-kit/picto-request-service/internal/events"
	"github.com/spec-kit/picto-request-service/internal/repository"
	apperrors "github.com/spec-kit/picto-request-service/pkg/util/errorutil"
)

// LivePublisher pushes a payload to every open live connection of recipient.
type LivePublisher interface {
	Publish(recipient string, payload any) int
}

// NotificationService persists notifications for domain events and mirrors
// them on the live channel.
type NotificationService struct {
	notifications repository.NotificationRepository
	live          LivePublisher
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	baseURL       string
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	Live             LivePublisher
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	BaseURL          string
}

// NotificationList is one page of notifications plus the unread total.
type NotificationList struct {
	Items  []domain.Notification
	Unread int
}

// NotificationPush is the live frame sent for a new notification.
type NotificationPush struct {
	Type         string                  `json:"type"`
	Notification NotificationPushPayload `json:"notification"`
}

// NotificationPushPayload mirrors a persisted notification.
type NotificationPushPayload struct {
	ID        string                  `json:"id"`
	Kind      domain.NotificationType `json:"kind"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Link      string                  `json:"link"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: deps.NotificationRepo,
		live:          deps.Live,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		baseURL:       strings.TrimSuffix(deps.BaseURL, "/"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRequestCreated, n.handleRequestCreated)
	n.dispatcher.Subscribe(events.EventRequestAssigned, n.handleRequestAssigned)
	n.dispatcher.Subscribe(events.EventRequestStatusChanged, n.handleRequestStatusChanged)
	n.dispatcher.Subscribe(events.EventRequestCommentAdded, n.handleRequestCommentAdded)
}

// Create persists a notification and pushes it to the recipient's live
// connections. Push failures are not reported.
func (n *NotificationService) Create(ctx context.Context, notification *domain.Notification) error {
	if strings.TrimSpace(notification.RecipientLogin) == "" {
		return apperrors.NewValidationError("recipient required", nil)
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return apperrors.MapError(err)
	}
	if n.live != nil {
		n.live.Publish(notification.RecipientLogin, NotificationPush{
			Type: "notification",
			Notification: NotificationPushPayload{
				ID:        notification.ID,
				Kind:      notification.Type,
				Title:     notification.Title,
				Message:   notification.Message,
				Link:      notification.Link,
				CreatedAt: notification.CreatedAt,
			},
		})
	}
	return nil
}

// MarkRead flags one notification as read. Repeating it is a no-op.
func (n *NotificationService) MarkRead(ctx context.Context, recipient, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewValidationError("invalid notification id", map[string]any{"id": id})
	}
	if err := n.notifications.MarkRead(ctx, recipient, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// MarkManyRead flags every listed notification owned by recipient as read and
// returns how many changed state.
func (n *NotificationService) MarkManyRead(ctx context.Context, recipient string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.NewValidationError("ids required", nil)
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, apperrors.NewValidationError("invalid notification id", map[string]any{"id": id})
		}
	}
	updated, err := n.notifications.MarkManyRead(ctx, recipient, ids)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return updated, nil
}

// List returns the newest notifications for recipient with the unread count.
// A non-positive limit yields at most repository.DefaultNotificationPage items.
func (n *NotificationService) List(ctx context.Context, recipient string, unreadOnly bool, limit int) (*NotificationList, error) {
	items, err := n.notifications.List(ctx, recipient, unreadOnly, limit, 0)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	unread, err := n.notifications.CountUnread(ctx, recipient)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return &NotificationList{Items: items, Unread: unread}, nil
}

// ListUnread returns every unread notification for recipient, newest first.
func (n *NotificationService) ListUnread(ctx context.Context, recipient string) ([]domain.Notification, error) {
	return n.collect(ctx, recipient, true)
}

// ListAll returns every notification for recipient, newest first.
func (n *NotificationService) ListAll(ctx context.Context, recipient string) ([]domain.Notification, error) {
	return n.collect(ctx, recipient, false)
}

// collect pages through the repository until a short page comes back.
func (n *NotificationService) collect(ctx context.Context, recipient string, unreadOnly bool) ([]domain.Notification, error) {
	out := []domain.Notification{}
	for offset := 0; ; offset += repository.DefaultNotificationPage {
		page, err := n.notifications.List(ctx, recipient, unreadOnly, repository.DefaultNotificationPage, offset)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		out = append(out, page...)
		if len(page) < repository.DefaultNotificationPage {
			return out, nil
		}
	}
}

func (n *NotificationService) handleRequestCreated(_ context.Context, event events.Event) error {
	n.logger.Info("RequestCreated", zap.String("request_id", event.RequestID), zap.String("actor", event.Actor.Login))
	return nil
}

func (n *NotificationService) handleRequestAssigned(ctx context.Context, event events.Event) error {
	req := event.Request
	if req == nil || req.RequesterLogin == event.Actor.Login {
		return nil
	}
	return n.Create(ctx, &domain.Notification{
		RecipientLogin: req.RequesterLogin,
		Type:           domain.NotificationRequestAssigned,
		Title:          "Request taken in charge",
		Message:        fmt.Sprintf("%s is now handling your request %q.", actorName(event.Actor), req.Title),
		Link:           n.requestLink(req.ID),
	})
}

func (n *NotificationService) handleRequestStatusChanged(ctx context.Context, event events.Event) error {
	req := event.Request
	payload, ok := event.Payload.(events.RequestStatusChangedPayload)
	if req == nil || !ok || req.RequesterLogin == event.Actor.Login {
		return nil
	}
	kind, title, message, ok := statusNotification(payload.NewStatus, req.Title, payload.Detail)
	if !ok {
		return nil
	}
	return n.Create(ctx, &domain.Notification{
		RecipientLogin: req.RequesterLogin,
		Type:           kind,
		Title:          title,
		Message:        message,
		Link:           n.requestLink(req.ID),
	})
}

func (n *NotificationService) handleRequestCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestCommentAddedPayload)
	if !ok {
		return nil
	}
	title := "New comment"
	if event.Request != nil {
		title = fmt.Sprintf("New comment on %q", event.Request.Title)
	}
	var errs []error
	for _, recipient := range payload.Recipients {
		err := n.Create(ctx, &domain.Notification{
			RecipientLogin: recipient,
			Type:           domain.NotificationRequestComment,
			Title:          title,
			Message:        fmt.Sprintf("%s: %s", actorName(event.Actor), payload.BodyPreview),
			Link:           n.requestLink(event.RequestID),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) requestLink(id string) string {
	return n.baseURL + "/requests/" + id
}

// statusNotification picks the notification for a destination status.
func statusNotification(status domain.Status, requestTitle, detail string) (domain.NotificationType, string, string, bool) {
	switch status {
	case domain.StatusInProgress:
		return domain.NotificationRequestInProgress, "Request being handled",
			fmt.Sprintf("Your request %q is being handled.", requestTitle), true
	case domain.StatusPrecisionsNeeded:
		return domain.NotificationRequestPrecisionsNeeded, "Clarification requested",
			withDetail(fmt.Sprintf("Clarification is requested on %q.", requestTitle), detail), true
	case domain.StatusDelivered:
		return domain.NotificationRequestDelivered, "Pictogram delivered",
			fmt.Sprintf("Your pictogram %q has been delivered.", requestTitle), true
	case domain.StatusRefused:
		return domain.NotificationRequestRefused, "Request declined",
			withDetail(fmt.Sprintf("Your request %q was declined.", requestTitle), detail), true
	default:
		return "", "", "", false
	}
}

func withDetail(message, detail string) string {
	if detail == "" {
		return message
	}
	return message + " " + detail
}

func actorName(actor events.Actor) string {
	if actor.DisplayName != "" {
		return actor.DisplayName
	}
	return "@" + actor.Login
}
