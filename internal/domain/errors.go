package domain

import (
	"errors"
	"fmt"
)

// Kind classifies store and codec failures. The transport layer maps kinds
// to HTTP status codes; nothing below it knows about HTTP.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedInput
	KindInvalidDateFormat
	KindValidation
	KindDuplicateDate
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindMalformedInput:
		return "malformed_input"
	case KindInvalidDateFormat:
		return "invalid_date_format"
	case KindValidation:
		return "validation_error"
	case KindDuplicateDate:
		return "duplicate_date"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Client-facing messages.
const (
	MsgInvalidDate     = "Invalid date format. Please use the format YYYY-MM-DD."
	MsgInvalidPathDate = "Invalid date format."
	MsgDuplicateDate   = "An event already exists for this date."
	MsgNotFound        = "Event not found."
)

// Error is a classified failure. Msg is safe to show to clients.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
}

func (e *Error) Error() string { return e.Msg }

// Is matches any *Error of the same kind, so the Err* sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformedInput    = &Error{Kind: KindMalformedInput, Msg: "malformed input"}
	ErrInvalidDateFormat = &Error{Kind: KindInvalidDateFormat, Msg: MsgInvalidDate}
	ErrValidation        = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrDuplicateDate     = &Error{Kind: KindDuplicateDate, Msg: MsgDuplicateDate}
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: MsgNotFound}
)

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
