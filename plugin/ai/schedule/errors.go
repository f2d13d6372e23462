package schedule

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure a turn can end in.
type ErrorKind string

const (
	ErrorUnparseableTime    ErrorKind = "UNPARSEABLE_TIME"
	ErrorAmbiguousTime      ErrorKind = "AMBIGUOUS_TIME"
	ErrorMissingSlots       ErrorKind = "MISSING_SLOTS"
	ErrorAmbiguousReference ErrorKind = "AMBIGUOUS_REFERENCE"
	ErrorNoSuchEvent        ErrorKind = "NO_SUCH_EVENT"
	ErrorBackendTimeout     ErrorKind = "BACKEND_TIMEOUT"
	ErrorBackend            ErrorKind = "BACKEND_ERROR"
	ErrorInterpretation     ErrorKind = "INTERPRETATION_FAILURE"
)

// Clarifiable reports whether the conversation should continue with a
// clarification prompt rather than a plain failure.
func (k ErrorKind) Clarifiable() bool {
	switch k {
	case ErrorUnparseableTime, ErrorAmbiguousTime, ErrorMissingSlots, ErrorAmbiguousReference, ErrorNoSuchEvent:
		return true
	}
	return false
}

// Error is the domain error carried through the booking pipeline.
type Error struct {
	Kind    ErrorKind
	Message string
	// Fields lists the slots that are missing or invalid.
	Fields []string
	// Candidates lists the events an ambiguous reference matched.
	Candidates []EventSummary
	// Transient is set on backend errors that were retryable.
	Transient bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewMissingSlots reports absent or invalid slots.
func NewMissingSlots(fields ...string) *Error {
	return &Error{
		Kind:    ErrorMissingSlots,
		Message: "missing or invalid: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ErrEventNotFound is returned by backends when an event id does not exist.
var ErrEventNotFound = errors.New("event not found")

// BackendError describes a failed calendar backend call.
type BackendError struct {
	Op        string
	Status    int
	Transient bool
	Timeout   bool
	Err       error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	kind := "terminal"
	switch {
	case e.Timeout:
		kind = "timeout"
	case e.Transient:
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("calendar %s failed (%s, status %d): %v", e.Op, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("calendar %s failed (%s): %v", e.Op, kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// BackendStatusError maps an HTTP-style status code to a BackendError:
// 408, 429 and 5xx are transient, everything else terminal.
func BackendStatusError(op string, status int, err error) *BackendError {
	if status == 404 || status == 410 {
		err = fmt.Errorf("%w: %v", ErrEventNotFound, err)
	}
	return &BackendError{
		Op:        op,
		Status:    status,
		Transient: status == 408 || status == 429 || status >= 500,
		Timeout:   status == 408 || status == 504,
		Err:       err,
	}
}
