package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Issue is a single problem found in a configuration document.
type Issue struct {
	Path   string // Location, e.g. flows[onboarding].steps[ask_name].next
	Reason string // Human-readable reason for failure
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Reason
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Reason)
}

// SchemaError aggregates every issue found while loading a definition set.
// It is fatal at startup.
type SchemaError struct {
	Issues []Issue
}

func (e *SchemaError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid flow configuration: " + e.Issues[0].String()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid flow configuration: %d issues:\n", len(e.Issues))
	for i, issue := range e.Issues {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, issue)
	}
	return sb.String()
}

// Issues returns the issues of err if it is (or wraps) a SchemaError.
// Otherwise returns nil.
func Issues(err error) []Issue {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Issues
	}
	return nil
}

// Collector accumulates issues while walking documents.
type Collector struct {
	issues []Issue
}

// Addf records an issue at path.
func (c *Collector) Addf(path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Path: path, Reason: fmt.Sprintf(format, args...)})
}

// Merge appends every issue of other.
func (c *Collector) Merge(other []Issue) {
	c.issues = append(c.issues, other...)
}

// Len is the number of collected issues.
func (c *Collector) Len() int { return len(c.issues) }

// Err returns a SchemaError, or nil when no issue was collected.
func (c *Collector) Err() error {
	if len(c.issues) == 0 {
		return nil
	}
	return &SchemaError{Issues: c.issues}
}
