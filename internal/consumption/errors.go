package consumption

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing or invalid settings; fatal at construction.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport marks a network failure or a non-success response from the source.
	ErrTransport = errors.New("transport error")
	// ErrParse marks a malformed stored record or source payload.
	ErrParse = errors.New("parse error")
	// ErrState marks a query against an engine that never initialised.
	ErrState = errors.New("state error")

	ErrNoAnalytics = fmt.Errorf("%w: no analytics", ErrState)
	ErrDayNotFound = errors.New("day not available")
	ErrInvalidDate = errors.New("invalid date format")
	ErrUnknownKind = errors.New("unknown average kind")
)

// TransportError carries the HTTP status and detail text of a failed source request.
// StatusCode is zero when no response was received.
type TransportError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport error: %s", e.Detail)
	}
	return fmt.Sprintf("transport error: %d %s", e.StatusCode, e.Detail)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ParseError locates a malformed record. Line is zero for payloads without lines.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
