package validation

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/consign/ops"
)

// ConsignmentAPI is the indexed, read-only view of a consignment handed to a
// Validator.
type ConsignmentAPI interface {
	Schema() *ops.Schema
	Genesis() *ops.Genesis
	// Operation looks up a genesis, transition or extension by id.
	Operation(id ops.OpID) (ops.Operation, bool)
	Extensions() []*ops.Extension
	BundleIDs() []ops.BundleID
	Bundle(id ops.BundleID) (*ops.TransitionBundle, bool)
	// BundleForOp returns the bundle carrying a transition.
	BundleForOp(id ops.OpID) (ops.BundleID, bool)
	WitnessForBundle(id ops.BundleID) (ops.WitnessID, bool)
	Terminals() map[ops.BundleID]ops.SecretSeal
}

// ResolveWitness answers questions about public witnesses. Implementations
// may block on I/O; they enforce their own timeouts.
type ResolveWitness interface {
	ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error)
	ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error)
}

// Validator is the schema/script rule engine.
type Validator interface {
	Validate(ctx context.Context, c ConsignmentAPI, resolver ResolveWitness, testnet bool, schema *ops.Schema, contractID ops.ContractID) *Status
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, c ConsignmentAPI, resolver ResolveWitness, testnet bool, schema *ops.Schema, contractID ops.ContractID) *Status

func (f ValidatorFunc) Validate(ctx context.Context, c ConsignmentAPI, resolver ResolveWitness, testnet bool, schema *ops.Schema, contractID ops.ContractID) *Status {
	return f(ctx, c, resolver, testnet, schema, contractID)
}

// ResolverErrorKind classifies witness resolution failures.
type ResolverErrorKind string

const (
	// ResolverUnknown: the witness is not known to the resolver.
	ResolverUnknown    ResolverErrorKind = "Unknown"
	ResolverConnection ResolverErrorKind = "Connection"
	ResolverOther      ResolverErrorKind = "Other"
)

// ResolverError is returned by ResolveWitness implementations.
type ResolverError struct {
	Kind    ResolverErrorKind
	Witness ops.WitnessID
	Cause   error
}

func (e *ResolverError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("witness %s: resolver %s", e.Witness, e.Kind)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResolverError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsUnknownWitness reports whether err is a ResolverError of kind Unknown.
func IsUnknownWitness(err error) bool {
	var e *ResolverError
	return errors.As(err, &e) && e.Kind == ResolverUnknown
}
