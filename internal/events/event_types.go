package events

import (
	"time"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated       EventType = "request_created"
	EventRequestAssigned      EventType = "request_assigned"
	EventRequestStatusChanged EventType = "request_status_changed"
	EventRequestCommentAdded  EventType = "request_comment_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	RequestID string          `json:"request_id"`
	Request   *domain.Request `json:"-"`
	Actor     Actor           `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Title   string         `json:"title"`
	Urgency domain.Urgency `json:"urgency"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	AssigneeLogin string        `json:"assignee_login"`
	OldStatus     domain.Status `json:"old_status"`
	NewStatus     domain.Status `json:"new_status"`
}

// RequestStatusChangedPayload payload.
type RequestStatusChangedPayload struct {
	OldStatus        domain.Status `json:"old_status"`
	NewStatus        domain.Status `json:"new_status"`
	Detail           string        `json:"detail,omitempty"`
	DeliveredAssetID string        `json:"delivered_asset_id,omitempty"`
}

// RequestCommentAddedPayload payload.
type RequestCommentAddedPayload struct {
	CommentID   string   `json:"comment_id"`
	AuthorLogin string   `json:"author_login"`
	Recipients  []string `json:"recipients"`
	BodyPreview string   `json:"body_preview"`
}
