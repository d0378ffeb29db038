package tracker

import (
	"fmt"
	"strings"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// MaxFieldLength bounds every free-text report field.
const MaxFieldLength = 5000

type section struct {
	field    string
	heading  string
	required bool
}

var reportSections = map[domain.ReportType][]section{
	domain.ReportBug: {
		{field: "description", heading: "Description", required: true},
		{field: "steps", heading: "Steps to reproduce"},
		{field: "expected", heading: "Expected behaviour"},
		{field: "actual", heading: "Actual behaviour"},
		{field: "page", heading: "Page"},
		{field: "browser", heading: "Browser"},
	},
	domain.ReportImprovement: {
		{field: "description", heading: "Description", required: true},
		{field: "benefit", heading: "Expected benefit"},
		{field: "page", heading: "Page"},
	},
}

// FieldError names the report field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// FormatBody renders the issue body for a report and appends the reporter
// marker. Unknown fields are ignored.
func FormatBody(kind domain.ReportType, fields map[string]string, reporter string) (string, error) {
	sections, ok := reportSections[kind]
	if !ok {
		return "", &FieldError{Field: "type", Reason: "must be bug or improvement"}
	}

	var b strings.Builder
	for _, s := range sections {
		value := strings.TrimSpace(fields[s.field])
		if value == "" {
			if s.required {
				return "", &FieldError{Field: s.field, Reason: "is required"}
			}
			continue
		}
		if len(value) > MaxFieldLength {
			return "", &FieldError{Field: s.field, Reason: fmt.Sprintf("exceeds %d characters", MaxFieldLength)}
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", s.heading, value)
	}
	b.WriteString("---\n")
	b.WriteString(ReporterMarker(reporter) + "\n")
	return b.String(), nil
}

// Excerpt trims s to at most max runes, marking the cut with an ellipsis.
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
