package domain

import "time"

// Urgency enumerates how pressing a request is.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyUrgent Urgency = "urgent"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyUrgent
}

// Field length bounds enforced before any mutation.
const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000
	MaxCommentLength     = 2000
)

// Request is the aggregate for a pictogram request.
type Request struct {
	ID                string
	RequesterLogin    string
	RequesterName     string
	Title             string
	Description       string
	ReferenceImageKey *string
	Urgency           Urgency
	Status            Status
	AssigneeLogin     *string
	DeliveredAssetID  *string
	RejectionReason   *string
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAssigned reports whether a handler owns the request.
func (r *Request) IsAssigned() bool {
	return r.AssigneeLogin != nil && *r.AssigneeLogin != ""
}

// Counterpart returns the party opposite to login on this request, if any.
func (r *Request) Counterpart(login string) (string, bool) {
	if login == r.RequesterLogin {
		if r.IsAssigned() {
			return *r.AssigneeLogin, true
		}
		return "", false
	}
	return r.RequesterLogin, true
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	Login       string
	DisplayName string
	Privileged  bool
}
