package domain

import (
	"fmt"
	"unicode/utf8"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// MsgLengthLimits is reported for any title or text length violation.
var MsgLengthLimits = fmt.Sprintf(
	"Maximum title length is %d characters, maximum text length is %d characters.",
	MaxTitleLen, MaxTextLen)

// ValidateEvent checks the length limits of title and text.
func ValidateEvent(ev *Event) []FieldError {
	var errs []FieldError
	if n := utf8.RuneCountInString(ev.Title); n > MaxTitleLen {
		errs = append(errs, FieldError{"title", fmt.Sprintf("max length %d, got %d", MaxTitleLen, n)})
	}
	if n := utf8.RuneCountInString(ev.Text); n > MaxTextLen {
		errs = append(errs, FieldError{"text", fmt.Sprintf("max length %d, got %d", MaxTextLen, n)})
	}
	return errs
}

// CheckLengths wraps ValidateEvent into a single KindValidation error, or nil.
func CheckLengths(ev *Event) error {
	fe := ValidateEvent(ev)
	if len(fe) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Msg: MsgLengthLimits, Fields: fe}
}
