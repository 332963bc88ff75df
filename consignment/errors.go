package consignment

import (
	"errors"
	"fmt"

	"xdao.co/consign/validation"
)

// Kind is a stable error category. Callers branch on Kind/RuleID, not on
// message text.
type Kind string

const (
	KindDecode     Kind = "Decode"
	KindIdentity   Kind = "Identity"
	KindLimit      Kind = "Limit"
	KindType       Kind = "Type"
	KindValidation Kind = "Validation"
)

// Error is the package's structured error type.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, format string, args ...any) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the RuleID of a structured error, or "".
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// RejectedError is returned when validation does not accept a consignment.
// It carries both the diagnostics and the untouched consignment.
type RejectedError struct {
	Status      *validation.Status
	Consignment *Consignment
}

func (e *RejectedError) Error() string {
	if e == nil || e.Status == nil {
		return "consignment rejected"
	}
	msg := fmt.Sprintf("consignment rejected: %s", e.Status.Validity())
	switch {
	case len(e.Status.Failures) > 0:
		msg += fmt.Sprintf(" (%d failures, first: %s)", len(e.Status.Failures), e.Status.Failures[0])
	case len(e.Status.UnresolvedTxids) > 0:
		msg += fmt.Sprintf(" (%d unresolved witnesses)", len(e.Status.UnresolvedTxids))
	case len(e.Status.Warnings) > 0:
		msg += fmt.Sprintf(" (%d warnings in strict mode, first: %s)", len(e.Status.Warnings), e.Status.Warnings[0])
	}
	return msg
}

// AsRejected extracts a *RejectedError from err.
func AsRejected(err error) (*RejectedError, bool) {
	var r *RejectedError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
