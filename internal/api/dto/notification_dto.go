package dto

import (
	"time"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// NotificationResponse response.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Link      string                  `json:"link"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// MarkNotificationsReadRequest payload.
type MarkNotificationsReadRequest struct {
	IDs []string `json:"ids"`
}
