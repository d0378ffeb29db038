package tracker

import (
	"fmt"
	"regexp"
)

// The reporter of a mirrored issue is only recoverable from a marker in the
// issue body. This is a heuristic; keep every use of it behind these two
// functions so a structured reference can replace it.

const reporterMarkerFormat = "signalé par @%s"

var reporterPattern = regexp.MustCompile(`(?i)signal[ée] par @([A-Za-z0-9](?:[A-Za-z0-9_.-]*[A-Za-z0-9_])?)`)

// ReporterMarker renders the marker embedded in every submitted report.
func ReporterMarker(login string) string {
	return fmt.Sprintf(reporterMarkerFormat, login)
}

// ExtractReporter finds the first reporter marker in body.
func ExtractReporter(body string) (string, bool) {
	match := reporterPattern.FindStringSubmatch(body)
	if match == nil {
		return "", false
	}
	return match[1], true
}
