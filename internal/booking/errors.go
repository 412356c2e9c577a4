package booking

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUpstream     ErrorKind = "upstream"
	KindPrecondition ErrorKind = "precondition"
)

// Machine-readable error codes.
const (
	CodeUnknownChild     = "unknown_child"
	CodeUnknownVisitType = "unknown_visit_type"
	CodeInvalidDate      = "invalid_date"
	CodePastDate         = "past_date"
	CodeNoSlots          = "no_slots"
	CodeInvalidTime      = "invalid_time"
	CodeUnknownSlot      = "unknown_slot"
	CodeUnsupportedInput = "unsupported_input"
	CodeDirectoryFailed  = "directory_unavailable"
	CodeBookingFailed    = "booking_failed"
	CodeWrongStep        = "wrong_step"
)

// Error carries a one-line message for the guardian plus the kind and code
// a front-end can branch on.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts the engine error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the engine error kind of err, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

func validationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func upstreamError(code, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: msg, Err: err}
}

func preconditionError(op string, step Step) *Error {
	return &Error{
		Kind:    KindPrecondition,
		Code:    CodeWrongStep,
		Message: fmt.Sprintf("%s is not allowed while %s", op, step),
	}
}
