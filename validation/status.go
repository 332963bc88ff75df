// Package validation defines the contract between consignment validation and
// the pluggable rule engine that checks schemas and scripts.
//
// The rule engine itself lives outside this module; it is consumed through the
// Validator interface. Witness lookups are consumed through ResolveWitness.
package validation

import (
	"fmt"
	"slices"

	"xdao.co/consign/ops"
)

// Validity is the overall verdict of a validation run.
type Validity int

const (
	Valid Validity = iota
	// UnresolvedTransactions means the data is consistent but some witnesses
	// could not be resolved; the consignment must not be trusted yet.
	UnresolvedTransactions
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case UnresolvedTransactions:
		return "unresolved-transactions"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("validity(%d)", int(v))
	}
}

// Entry is one diagnostic. Code is a stable rule identifier; Message is for
// humans and may change.
type Entry struct {
	Code    string
	Message string
}

func (e Entry) String() string { return e.Code + ": " + e.Message }

// Status accumulates the result of validating a consignment.
type Status struct {
	Failures        []Entry
	Warnings        []Entry
	Info            []Entry
	UnresolvedTxids []ops.WitnessID
}

func NewStatus() *Status { return &Status{} }

func (s *Status) AddFailure(code, format string, args ...any) {
	s.Failures = append(s.Failures, Entry{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (s *Status) AddWarning(code, format string, args ...any) {
	s.Warnings = append(s.Warnings, Entry{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (s *Status) AddInfo(code, format string, args ...any) {
	s.Info = append(s.Info, Entry{Code: code, Message: fmt.Sprintf(format, args...)})
}

// AddUnresolved records a witness that could not be resolved. Duplicates are
// collapsed.
func (s *Status) AddUnresolved(id ops.WitnessID) {
	if slices.Contains(s.UnresolvedTxids, id) {
		return
	}
	s.UnresolvedTxids = append(s.UnresolvedTxids, id)
}

// Validity derives the verdict: any failure is Invalid; otherwise unresolved
// witnesses yield UnresolvedTransactions.
func (s *Status) Validity() Validity {
	switch {
	case len(s.Failures) > 0:
		return Invalid
	case len(s.UnresolvedTxids) > 0:
		return UnresolvedTransactions
	default:
		return Valid
	}
}

// Merge appends all entries of o to s.
func (s *Status) Merge(o *Status) {
	if o == nil {
		return
	}
	s.Failures = append(s.Failures, o.Failures...)
	s.Warnings = append(s.Warnings, o.Warnings...)
	s.Info = append(s.Info, o.Info...)
	for _, id := range o.UnresolvedTxids {
		s.AddUnresolved(id)
	}
}

// HasWarning reports whether a warning with the given code was recorded.
func (s *Status) HasWarning(code string) bool {
	return slices.ContainsFunc(s.Warnings, func(e Entry) bool { return e.Code == code })
}
