package persistence

import (
	"errors"
	"fmt"

	"xdao.co/consign/ops"
)

// ErrUnknownContract is reported when an operation targets a contract the
// provider has no record of. Under the engine it is an Inconsistency: either
// a caller bug or storage corruption.
var ErrUnknownContract = errors.New("unknown contract")

// StateErrorKind classifies engine errors.
type StateErrorKind string

const (
	// KindReadProvider and KindWriteProvider wrap backend failures; they are
	// connectivity-class and may be retried by the caller.
	KindReadProvider  StateErrorKind = "ReadProvider"
	KindWriteProvider StateErrorKind = "WriteProvider"

	// KindResolver wraps witness resolution failures.
	KindResolver      StateErrorKind = "Resolver"
	KindInconsistency StateErrorKind = "Inconsistency"
)

// StateError is the engine's structured error.
type StateError struct {
	Kind     StateErrorKind
	Contract ops.ContractID
	Witness  ops.WitnessID
	Cause    error
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("state %s error", e.Kind)
	switch e.Kind {
	case KindResolver:
		msg += fmt.Sprintf(" for witness %s", e.Witness)
	case KindInconsistency:
		msg += fmt.Sprintf(" for contract %s", e.Contract)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StateError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is (or wraps) a *StateError of the given kind.
func IsKind(err error, kind StateErrorKind) bool {
	var e *StateError
	return errors.As(err, &e) && e.Kind == kind
}

func readErr(err error) error  { return &StateError{Kind: KindReadProvider, Cause: err} }
func writeErr(err error) error { return &StateError{Kind: KindWriteProvider, Cause: err} }

func resolverErr(id ops.WitnessID, err error) error {
	return &StateError{Kind: KindResolver, Witness: id, Cause: err}
}

func unknownContract(id ops.ContractID) error {
	return &StateError{Kind: KindInconsistency, Contract: id, Cause: ErrUnknownContract}
}
