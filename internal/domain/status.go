package domain

import "fmt"

// Status enumerates lifecycle states for requests.
type Status string

const (
	StatusNew              Status = "new"
	StatusInProgress       Status = "in_progress"
	StatusPrecisionsNeeded Status = "precisions_needed"
	StatusDelivered        Status = "delivered"
	StatusRefused          Status = "refused"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{
	StatusNew,
	StatusInProgress,
	StatusPrecisionsNeeded,
	StatusDelivered,
	StatusRefused,
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusRefused
}

// Guard names a precondition attached to a transition.
type Guard string

const (
	GuardTransitionAllowed Guard = "transition_allowed"
	GuardTerminal          Guard = "terminal_status"
	GuardCommentRequired   Guard = "comment_required"
	GuardAssetRequired     Guard = "delivered_asset_required"
	GuardReasonRequired    Guard = "rejection_reason_required"
)

// GuardError reports which guard rejected a transition.
type GuardError struct {
	Guard Guard
	From  Status
	To    Status
}

func (e *GuardError) Error() string {
	switch e.Guard {
	case GuardTerminal:
		return fmt.Sprintf("request is %s and can no longer change status", e.From)
	case GuardCommentRequired:
		return "a comment is required to ask for precisions"
	case GuardAssetRequired:
		return "a delivered asset is required to deliver a request"
	case GuardReasonRequired:
		return "a rejection reason is required to refuse a request"
	default:
		return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
	}
}

// TransitionInput carries the data accompanying a status change.
type TransitionInput struct {
	Comment          string
	DeliveredAssetID string
	RejectionReason  string
}

type edge struct {
	from, to Status
}

type guardFunc func(TransitionInput) *Guard

func requireComment(in TransitionInput) *Guard {
	if in.Comment == "" {
		g := GuardCommentRequired
		return &g
	}
	return nil
}

func requireAsset(in TransitionInput) *Guard {
	if in.DeliveredAssetID == "" {
		g := GuardAssetRequired
		return &g
	}
	return nil
}

func requireReason(in TransitionInput) *Guard {
	if in.RejectionReason == "" {
		g := GuardReasonRequired
		return &g
	}
	return nil
}

// transitions holds every legal edge; a nil guard means unconditional.
var transitions = map[edge]guardFunc{
	{StatusNew, StatusInProgress}:              nil,
	{StatusInProgress, StatusPrecisionsNeeded}: requireComment,
	{StatusInProgress, StatusDelivered}:        requireAsset,
	{StatusPrecisionsNeeded, StatusInProgress}: nil,
	{StatusNew, StatusRefused}:                 requireReason,
	{StatusInProgress, StatusRefused}:          requireReason,
	{StatusPrecisionsNeeded, StatusRefused}:    requireReason,
}

// CanTransition reports whether the edge exists, ignoring guards.
func CanTransition(from, to Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// Transition validates moving from one status to another and returns the
// destination, or a *GuardError naming the failed guard.
func Transition(from, to Status, in TransitionInput) (Status, error) {
	if from.Terminal() {
		return from, &GuardError{Guard: GuardTerminal, From: from, To: to}
	}
	guard, ok := transitions[edge{from, to}]
	if !ok {
		return from, &GuardError{Guard: GuardTransitionAllowed, From: from, To: to}
	}
	if guard != nil {
		if failed := guard(in); failed != nil {
			return from, &GuardError{Guard: *failed, From: from, To: to}
		}
	}
	return to, nil
}
