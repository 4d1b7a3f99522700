package zone

import (
	"fmt"
)

// FetchError is a network or HTTP failure while retrieving a document or a
// page of one.
type FetchError struct {
	URL    string
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("fetch %s (offset %d): %v", e.URL, e.Offset, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a malformed document or a document of unexpected shape.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError rejects a single feature. Callers skip the feature and
// continue.
type ValidationError struct {
	Index  int
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("feature %d (%s): %s", e.Index, e.ID, e.Reason)
	}
	return fmt.Sprintf("feature %d: %s", e.Index, e.Reason)
}
