// Package tracker talks to the external issue tracker that mirrors bug and
// improvement reports.
package tracker

import (
	"context"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// CreatedIssue identifies an issue created on the tracker.
type CreatedIssue struct {
	ExternalID int64
	URL        string
}

// Client is the subset of the remote tracker API the bridge needs.
type Client interface {
	CreateIssue(ctx context.Context, kind domain.ReportType, title, body string) (*CreatedIssue, error)
	// ListIssues returns the most recent issues of one kind, newest first.
	ListIssues(ctx context.Context, kind domain.ReportType, limit int) ([]domain.Report, error)
	// ListClosedMentioning returns closed issues whose body contains text.
	ListClosedMentioning(ctx context.Context, text string, limit int) ([]domain.Report, error)
	// LastNote returns the body of the latest human discussion entry, or "".
	LastNote(ctx context.Context, externalID int64) (string, error)
}
