// Package persistence defines the state provider contract and implements the
// state reconciliation engine, the only path by which consignment data
// changes persisted contract state.
package persistence

import (
	"cmp"
	"context"
	"iter"

	"xdao.co/consign/commit"
	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

// PersistedKind is the kind of a persisted assignment state.
type PersistedKind uint8

const (
	PersistedVoid PersistedKind = iota
	PersistedAmount
	PersistedData
	PersistedAttachment
)

func (k PersistedKind) String() string {
	switch k {
	case PersistedVoid:
		return "void"
	case PersistedAmount:
		return "amount"
	case PersistedData:
		return "data"
	case PersistedAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// PersistedState is the revealed value of a single assignment as a provider
// stores it. Only the blinding factor may change after construction.
type PersistedState struct {
	Kind PersistedKind

	Amount   uint64
	Blinding ops.BlindingFactor
	Tag      ops.AssetTag

	Data []byte
	Salt [16]byte

	Attach     ops.AttachID
	MediaType  string
	AttachSalt uint64
}

func Void() PersistedState { return PersistedState{Kind: PersistedVoid} }

func Amount(value uint64, blinding ops.BlindingFactor, tag ops.AssetTag) PersistedState {
	return PersistedState{Kind: PersistedAmount, Amount: value, Blinding: blinding, Tag: tag}
}

func Data(value []byte, salt [16]byte) PersistedState {
	return PersistedState{Kind: PersistedData, Data: append([]byte(nil), value...), Salt: salt}
}

func Attachment(id ops.AttachID, mediaType string, salt uint64) PersistedState {
	return PersistedState{Kind: PersistedAttachment, Attach: id, MediaType: mediaType, AttachSalt: salt}
}

// FromState converts an assignment's state into its persisted form.
func FromState(s ops.StateData) PersistedState {
	switch {
	case s.Type == ops.StateFungible && s.Value != nil:
		return Amount(s.Value.Amount, s.Value.Blinding, s.Value.Tag)
	case s.Type == ops.StateStructured && s.Data != nil:
		return Data(s.Data.Value, s.Data.Salt)
	case s.Type == ops.StateAttachment && s.Attach != nil:
		return Attachment(s.Attach.ID, s.Attach.MediaType, s.Attach.Salt)
	default:
		return Void()
	}
}

// State returns the revealed state.
func (p PersistedState) State() ops.StateData {
	switch p.Kind {
	case PersistedAmount:
		return ops.FungibleState(ops.RevealedValue{Amount: p.Amount, Blinding: p.Blinding, Tag: p.Tag})
	case PersistedData:
		return ops.StructuredState(ops.RevealedData{Value: p.Data, Salt: p.Salt})
	case PersistedAttachment:
		return ops.AttachmentState(ops.RevealedAttach{ID: p.Attach, MediaType: p.MediaType, Salt: p.AttachSalt})
	default:
		return ops.VoidState()
	}
}

// Conceal returns the concealed commitment of the state.
func (p PersistedState) Conceal() [32]byte { return p.State().Conceal() }

// UpdateBlinding replaces the blinding factor of an amount.
func (p *PersistedState) UpdateBlinding(b ops.BlindingFactor) {
	p.Blinding = b
}

// OutputAssignment is a currently held output. Witness is nil for genesis
// outputs.
type OutputAssignment struct {
	Opout   ops.Opout
	Seal    ops.AssignSeal
	State   PersistedState
	Witness *ops.WitnessOrd
}

// ContractStateRead is a read handle on one contract's state. Iterators yield
// outputs in witness order (genesis outputs first).
type ContractStateRead interface {
	ContractID() ops.ContractID
	SchemaID() ops.SchemaID
	RightsAll() iter.Seq[OutputAssignment]
	FungibleAll() iter.Seq[OutputAssignment]
	DataAll() iter.Seq[OutputAssignment]
	AttachAll() iter.Seq[OutputAssignment]
}

// ContractStateWrite is a write handle on one contract's state. Every method
// is idempotent: re-adding a known operation is a no-op.
type ContractStateWrite interface {
	AddGenesis(ctx context.Context, g *ops.Genesis) error
	AddTransition(ctx context.Context, t *ops.Transition, ord ops.WitnessOrd) error
	AddExtension(ctx context.Context, x *ops.Extension, ord ops.WitnessOrd) error
}

// StoreTransaction scopes provider mutations. After RollbackTransaction no
// write made since BeginTransaction is observable.
type StoreTransaction interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

type StateReadProvider interface {
	StoreTransaction
	// ContractState returns ErrUnknownContract (wrapped) for unknown ids.
	ContractState(ctx context.Context, id ops.ContractID) (ContractStateRead, error)
}

type StateWriteProvider interface {
	StoreTransaction
	// RegisterContract registers a contract, or returns a writer for it if it
	// is already registered.
	RegisterContract(ctx context.Context, schema *ops.Schema, genesis *ops.Genesis) (ContractStateWrite, error)
	// UpdateContract returns ok=false, not an error, for unknown contracts.
	UpdateContract(ctx context.Context, id ops.ContractID) (w ContractStateWrite, ok bool, err error)
	// UpdateWitnesses re-resolves witnesses that are not mined, or mined at or
	// after afterHeight, and reorders the state that depends on them.
	UpdateWitnesses(ctx context.Context, resolver validation.ResolveWitness, afterHeight uint32) (UpdateRes, error)
}

type StateProvider interface {
	StateReadProvider
	StateWriteProvider
}

// UpdateRes summarizes a witness re-resolution: the witnesses whose order
// changed and the witnesses that failed to resolve.
type UpdateRes struct {
	Succeeded map[ops.WitnessID]ops.WitnessOrd
	Failed    map[ops.WitnessID]string
}

func NewUpdateRes() UpdateRes {
	return UpdateRes{
		Succeeded: make(map[ops.WitnessID]ops.WitnessOrd),
		Failed:    make(map[ops.WitnessID]string),
	}
}

// CompareOutputs orders outputs by witness (genesis outputs first) and then
// by output reference. Providers use it to order read iterators.
func CompareOutputs(a, b OutputAssignment) int {
	switch {
	case a.Witness == nil && b.Witness != nil:
		return -1
	case a.Witness != nil && b.Witness == nil:
		return 1
	case a.Witness != nil && b.Witness != nil:
		if c := a.Witness.Compare(*b.Witness); c != 0 {
			return c
		}
	}
	if c := commit.Compare(a.Opout.Op, b.Opout.Op); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Opout.Type, b.Opout.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Opout.No, b.Opout.No)
}
