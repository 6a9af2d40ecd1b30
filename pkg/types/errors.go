package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can tell "no data" apart from
// "service unreachable" and "malformed input".
type ErrorKind string

const (
	KindUnknown            ErrorKind = "unknown"
	KindConfig             ErrorKind = "config"
	KindIO                 ErrorKind = "io"
	KindMalformedInput     ErrorKind = "malformed_input"
	KindWrite              ErrorKind = "write"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindQuery              ErrorKind = "query"
	KindNoMatch            ErrorKind = "no_match"
)

var (
	// ErrNoMatch is returned when the vector index yields no candidates.
	ErrNoMatch = errors.New("no matching problem found")
	// ErrMissingColumns is returned when an input file lacks expected columns.
	ErrMissingColumns = errors.New("missing expected columns")
	// ErrEmptyResponse is returned when a hosted model answers with no content.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Error is a classified failure of a named operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and an operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
