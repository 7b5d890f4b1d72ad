package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldIssue is a single schema violation located by a dotted field path.
type FieldIssue struct {
	Path    string
	Message string
}

func (i FieldIssue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationError reports every violation found in one document.
type ValidationError struct {
	// Document is "profile" or "config".
	Document string
	Version  int
	Issues   []FieldIssue
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s", e.Document)
	if e.Version > 0 {
		fmt.Fprintf(&b, " (version %d)", e.Version)
	}
	fmt.Fprintf(&b, ": %d issue(s)", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  - ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// Paths returns the violated field paths in report order.
func (e *ValidationError) Paths() []string {
	out := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue.Path
	}
	return out
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func newValidationError(document string, version int, issues []FieldIssue) *ValidationError {
	sorted := make([]FieldIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return &ValidationError{Document: document, Version: version, Issues: sorted}
}

// UnsupportedVersionError is returned for a version no schema is registered for.
type UnsupportedVersionError struct {
	Document  string
	Version   string
	Supported []int
}

func (e *UnsupportedVersionError) Error() string {
	supported := make([]string, len(e.Supported))
	for i, v := range e.Supported {
		supported[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("unsupported %s version %s; supported versions: %s",
		e.Document, e.Version, strings.Join(supported, ", "))
}
