package domain

import "time"

// ReportType enumerates report kinds mirrored to the issue tracker.
type ReportType string

const (
	ReportBug         ReportType = "bug"
	ReportImprovement ReportType = "improvement"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	return t == ReportBug || t == ReportImprovement
}

// ReportState mirrors the remote issue state.
type ReportState string

const (
	ReportOpen   ReportState = "opened"
	ReportClosed ReportState = "closed"
)

// Report is a snapshot of a remote tracker issue.
type Report struct {
	ExternalID int64
	Type       ReportType
	Title      string
	State      ReportState
	URL        string
	Reporter   string
	Resolution string
	CreatedAt  time.Time
	ClosedAt   *time.Time
}

// ReportNotification is a closed report the reporter may not have seen yet.
type ReportNotification struct {
	Report
	Read bool
}
