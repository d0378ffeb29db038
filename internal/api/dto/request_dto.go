package dto

import (
	"time"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	ReferenceImageKey *string `json:"reference_image_key"`
	Urgency           string  `json:"urgency"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status           string `json:"status"`
	Comment          string `json:"comment"`
	DeliveredAssetID string `json:"delivered_asset_id"`
	RejectionReason  string `json:"rejection_reason"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Content string `json:"content"`
}

// RequestSummary response.
type RequestSummary struct {
	ID               string         `json:"id"`
	RequesterLogin   string         `json:"requester_login"`
	Title            string         `json:"title"`
	Urgency          domain.Urgency `json:"urgency"`
	Status           domain.Status  `json:"status"`
	AssigneeLogin    *string        `json:"assignee_login"`
	DeliveredAssetID *string        `json:"delivered_asset_id"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// RequestDetailResponse provides full request info.
type RequestDetailResponse struct {
	RequestSummary
	RequesterName     string            `json:"requester_name"`
	Description       string            `json:"description"`
	ReferenceImageKey *string           `json:"reference_image_key"`
	RejectionReason   *string           `json:"rejection_reason"`
	Comments          []CommentResponse `json:"comments"`
	History           []HistoryResponse `json:"history"`
}

// CommentResponse response.
type CommentResponse struct {
	ID          string    `json:"id"`
	AuthorLogin string    `json:"author_login"`
	AuthorName  string    `json:"author_name"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryResponse response.
type HistoryResponse struct {
	ID         string               `json:"id"`
	ActorLogin string               `json:"actor_login"`
	Action     domain.HistoryAction `json:"action"`
	FromStatus *domain.Status       `json:"from_status"`
	ToStatus   *domain.Status       `json:"to_status"`
	Detail     *string              `json:"detail"`
	CreatedAt  time.Time            `json:"created_at"`
}
