package domain

import "time"

// Comment is a message in a request thread.
type Comment struct {
	ID          string
	RequestID   string
	AuthorLogin string
	AuthorName  string
	Content     string
	CreatedAt   time.Time
}
