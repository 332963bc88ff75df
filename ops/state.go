package ops

import "xdao.co/consign/commit"

// StateType is the kind of state an assignment carries.
type StateType uint8

const (
	StateVoid StateType = iota
	StateFungible
	StateStructured
	StateAttachment
)

func (t StateType) String() string {
	switch t {
	case StateVoid:
		return "void"
	case StateFungible:
		return "fungible"
	case StateStructured:
		return "structured"
	case StateAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

type (
	AssignmentType  uint16
	GlobalStateType uint16
	BlindingFactor  [32]byte
	AssetTag        [32]byte
)

// RevealedValue is a fungible amount together with its blinding material.
type RevealedValue struct {
	Amount   uint64
	Blinding BlindingFactor
	Tag      AssetTag
}

// RevealedData is structured state with a salt that hides it when concealed.
type RevealedData struct {
	Value []byte
	Salt  [16]byte
}

// RevealedAttach references an attachment blob.
type RevealedAttach struct {
	ID        AttachID
	MediaType string
	Salt      uint64
}

// StateData holds exactly the payload matching Type; void state has none.
type StateData struct {
	Type   StateType
	Value  *RevealedValue  `cbor:",omitempty"`
	Data   *RevealedData   `cbor:",omitempty"`
	Attach *RevealedAttach `cbor:",omitempty"`
}

func VoidState() StateData { return StateData{Type: StateVoid} }

func FungibleState(v RevealedValue) StateData {
	return StateData{Type: StateFungible, Value: &v}
}

func StructuredState(d RevealedData) StateData {
	d.Value = append([]byte(nil), d.Value...)
	return StateData{Type: StateStructured, Data: &d}
}

func AttachmentState(a RevealedAttach) StateData {
	return StateData{Type: StateAttachment, Attach: &a}
}

// Conceal returns the commitment to the state that is used wherever the
// revealed value must not influence identity.
func (s StateData) Conceal() [32]byte {
	return commit.Digest(tagState, s)
}

func (s StateData) clone() StateData {
	out := StateData{Type: s.Type}
	if s.Value != nil {
		v := *s.Value
		out.Value = &v
	}
	if s.Data != nil {
		d := *s.Data
		d.Value = append([]byte(nil), s.Data.Value...)
		out.Data = &d
	}
	if s.Attach != nil {
		a := *s.Attach
		out.Attach = &a
	}
	return out
}

// Assignment binds state of a given type to a seal.
type Assignment struct {
	Type  AssignmentType
	Seal  AssignSeal
	State StateData
}

type concealedAssignment struct {
	Type  AssignmentType
	Seal  SecretSeal
	State [32]byte
}

func (a Assignment) concealed() concealedAssignment {
	return concealedAssignment{Type: a.Type, Seal: a.Seal.Secret(), State: a.State.Conceal()}
}

func (a Assignment) clone() Assignment {
	return Assignment{Type: a.Type, Seal: a.Seal.clone(), State: a.State.clone()}
}

func cloneAssignments(in []Assignment) []Assignment {
	if in == nil {
		return nil
	}
	out := make([]Assignment, len(in))
	for i, a := range in {
		out[i] = a.clone()
	}
	return out
}

func concealAssignments(in []Assignment) []concealedAssignment {
	out := make([]concealedAssignment, len(in))
	for i, a := range in {
		out[i] = a.concealed()
	}
	return out
}

// GlobalState is contract-wide state introduced by an operation.
type GlobalState struct {
	Type GlobalStateType
	Data []byte
}

func cloneGlobals(in []GlobalState) []GlobalState {
	if in == nil {
		return nil
	}
	out := make([]GlobalState, len(in))
	for i, g := range in {
		out[i] = GlobalState{Type: g.Type, Data: append([]byte(nil), g.Data...)}
	}
	return out
}
