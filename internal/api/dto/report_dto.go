package dto

import (
	"time"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// SubmitReportRequest payload. Fields depend on the type: description is
// always required, bug reports add steps/expected/actual/page/browser and
// improvements add benefit/page.
type SubmitReportRequest struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Fields map[string]string `json:"fields"`
}

// SubmitReportResponse response.
type SubmitReportResponse struct {
	ExternalID int64  `json:"external_id"`
	URL        string `json:"url"`
}

// ReportResponse response.
type ReportResponse struct {
	ExternalID int64              `json:"external_id"`
	Type       domain.ReportType  `json:"type"`
	Title      string             `json:"title"`
	State      domain.ReportState `json:"state"`
	URL        string             `json:"url"`
	Resolution string             `json:"resolution,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	ClosedAt   *time.Time         `json:"closed_at,omitempty"`
}

// ReportNotificationResponse response.
type ReportNotificationResponse struct {
	ReportResponse
	Read bool `json:"read"`
}

// MarkReportsReadRequest payload.
type MarkReportsReadRequest struct {
	IDs []int64 `json:"ids"`
}
