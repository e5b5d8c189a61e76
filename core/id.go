package core

import (
	"fmt"
	"regexp"
	"strings"
)

// Identifiers become file names, so they must be slug-safe. Anything that
// could escape the store directory (separators, dot-dot) is rejected rather
// than sanitized, because a silently rewritten id would break lookups.

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidateID checks that id is a safe store identifier.
// Returns ErrInvalidInput (wrapped) on violation.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidInput)
	}
	if strings.Contains(id, "/") || strings.Contains(id, "\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: identifier %q contains path elements", ErrInvalidInput, id)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: identifier %q must match %s", ErrInvalidInput, id, idPattern)
	}
	return nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts free text into a lowercase hyphenated slug of at most
// maxLen characters, suitable for use as an identifier component.
func Slugify(text string, maxLen int) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
		s = strings.TrimRight(s, "-")
	}
	return s
}
