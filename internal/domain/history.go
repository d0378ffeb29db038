package domain

import "time"

// HistoryAction captures what happened in a history entry.
type HistoryAction string

const (
	HistoryCreated       HistoryAction = "created"
	HistoryAssigned      HistoryAction = "assigned"
	HistoryStatusChanged HistoryAction = "status_changed"
)

// HistoryEntry is an immutable audit trail entry.
type HistoryEntry struct {
	ID         string
	RequestID  string
	ActorLogin string
	Action     HistoryAction
	FromStatus *Status
	ToStatus   *Status
	Detail     *string
	CreatedAt  time.Time
}
