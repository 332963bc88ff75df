package armor

import "errors"

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	KindParse     Kind = "Parse"
	KindCanonical Kind = "Canonical"
	KindChecksum  Kind = "Checksum"
	KindRender    Kind = "Render"
)

// Error is the package's structured error type.
//
// RuleID names the violated format rule (e.g. ARM-STR-001, ARM-SUM-001).
// Message is intended for humans; do not match on it.
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

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
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

// RuleID returns the RuleID of a structured error, or "" if err is not one.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
