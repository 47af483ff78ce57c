package event

import (
	"errors"
	"fmt"
)

var errTrailingData = errors.New("unexpected data after top-level value")

// EncodingError means the body is not valid UTF-8 text.
type EncodingError struct {
	Offset int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid utf-8 in body at byte %d", e.Offset)
}

// ParseError means the body is text but not JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid json: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MalformedEventError means the JSON is well formed but lacks the
// structure needed to derive a JobState.
type MalformedEventError struct {
	Path   string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s: %s", e.Path, e.Reason)
}

func missing(path string) error {
	return &MalformedEventError{Path: path, Reason: "missing"}
}

func badType(path, want string, got any) error {
	return &MalformedEventError{Path: path, Reason: fmt.Sprintf("want %s, got %T", want, got)}
}
