package ops

import "xdao.co/consign/commit"

// OpKind distinguishes the three operation kinds.
type OpKind uint8

const (
	OpGenesis OpKind = iota
	OpTransition
	OpExtension
)

func (k OpKind) String() string {
	switch k {
	case OpGenesis:
		return "genesis"
	case OpTransition:
		return "transition"
	case OpExtension:
		return "extension"
	default:
		return "unknown"
	}
}

// Opout references a single output (assignment) of an operation.
type Opout struct {
	Op   OpID
	Type AssignmentType
	No   uint16
}

// Input spends a previous output.
type Input struct {
	PrevOut Opout
}

// Redeemed records a valency of a previous operation redeemed by an extension.
type Redeemed struct {
	Valency uint16
	Op      OpID
}

// Operation is the read surface shared by genesis, transitions and extensions.
type Operation interface {
	ID() OpID
	Kind() OpKind
	// PrevOuts lists the outputs spent by the operation (transitions only).
	PrevOuts() []Opout
	// Outputs lists the assignments created by the operation.
	Outputs() []Assignment
	DiscloseHash() [32]byte
}

// Genesis is the contract-issuance operation.
type Genesis struct {
	SchemaID    SchemaID
	Testnet     bool
	Metadata    []byte
	Globals     []GlobalState
	Assignments []Assignment
	Valencies   []uint16
}

// Transition is a state transition spending previous outputs.
type Transition struct {
	ContractID     ContractID
	TransitionType uint16
	Metadata       []byte
	Globals        []GlobalState
	Inputs         []Input
	Assignments    []Assignment
}

// Extension is a state extension redeeming valencies of previous operations.
type Extension struct {
	ContractID    ContractID
	ExtensionType uint16
	Metadata      []byte
	Globals       []GlobalState
	Redeemed      []Redeemed
	Assignments   []Assignment
	Valencies     []uint16
}

type opCommitment struct {
	Kind        OpKind
	Anchor      [32]byte // schema id for genesis, contract id otherwise
	Subtype     uint16
	Testnet     bool
	Metadata    []byte
	Globals     []GlobalState
	Inputs      []Input
	Redeemed    []Redeemed
	Assignments []concealedAssignment
	Valencies   []uint16
}

func opID(c opCommitment) OpID {
	return OpID(commit.Digest(tagOperation, c))
}

func discloseHash(id OpID, assignments []Assignment) [32]byte {
	e := commit.NewEngine(tagDisclose)
	e.CommitDigest(id)
	e.CommitSerialized(concealAssignments(assignments))
	return e.Finish()
}

func (g *Genesis) ID() OpID {
	return opID(opCommitment{
		Kind:        OpGenesis,
		Anchor:      [32]byte(g.SchemaID),
		Testnet:     g.Testnet,
		Metadata:    g.Metadata,
		Globals:     g.Globals,
		Assignments: concealAssignments(g.Assignments),
		Valencies:   g.Valencies,
	})
}

// ContractID is the id of the contract issued by this genesis.
func (g *Genesis) ContractID() ContractID { return ContractID(g.ID()) }

func (g *Genesis) Kind() OpKind           { return OpGenesis }
func (g *Genesis) PrevOuts() []Opout      { return nil }
func (g *Genesis) Outputs() []Assignment  { return g.Assignments }
func (g *Genesis) DiscloseHash() [32]byte { return discloseHash(g.ID(), g.Assignments) }

func (g *Genesis) Clone() *Genesis {
	out := *g
	out.Metadata = append([]byte(nil), g.Metadata...)
	out.Globals = cloneGlobals(g.Globals)
	out.Assignments = cloneAssignments(g.Assignments)
	out.Valencies = append([]uint16(nil), g.Valencies...)
	return &out
}

func (t *Transition) ID() OpID {
	return opID(opCommitment{
		Kind:        OpTransition,
		Anchor:      [32]byte(t.ContractID),
		Subtype:     t.TransitionType,
		Metadata:    t.Metadata,
		Globals:     t.Globals,
		Inputs:      t.Inputs,
		Assignments: concealAssignments(t.Assignments),
	})
}

func (t *Transition) Kind() OpKind { return OpTransition }

func (t *Transition) PrevOuts() []Opout {
	out := make([]Opout, len(t.Inputs))
	for i, in := range t.Inputs {
		out[i] = in.PrevOut
	}
	return out
}

func (t *Transition) Outputs() []Assignment  { return t.Assignments }
func (t *Transition) DiscloseHash() [32]byte { return discloseHash(t.ID(), t.Assignments) }

func (t *Transition) Clone() *Transition {
	out := *t
	out.Metadata = append([]byte(nil), t.Metadata...)
	out.Globals = cloneGlobals(t.Globals)
	out.Inputs = append([]Input(nil), t.Inputs...)
	out.Assignments = cloneAssignments(t.Assignments)
	return &out
}

func (x *Extension) ID() OpID {
	return opID(opCommitment{
		Kind:        OpExtension,
		Anchor:      [32]byte(x.ContractID),
		Subtype:     x.ExtensionType,
		Metadata:    x.Metadata,
		Globals:     x.Globals,
		Redeemed:    x.Redeemed,
		Assignments: concealAssignments(x.Assignments),
		Valencies:   x.Valencies,
	})
}

func (x *Extension) Kind() OpKind           { return OpExtension }
func (x *Extension) PrevOuts() []Opout      { return nil }
func (x *Extension) Outputs() []Assignment  { return x.Assignments }
func (x *Extension) DiscloseHash() [32]byte { return discloseHash(x.ID(), x.Assignments) }

func (x *Extension) Clone() *Extension {
	out := *x
	out.Metadata = append([]byte(nil), x.Metadata...)
	out.Globals = cloneGlobals(x.Globals)
	out.Redeemed = append([]Redeemed(nil), x.Redeemed...)
	out.Assignments = cloneAssignments(x.Assignments)
	out.Valencies = append([]uint16(nil), x.Valencies...)
	return &out
}

var (
	_ Operation = (*Genesis)(nil)
	_ Operation = (*Transition)(nil)
	_ Operation = (*Extension)(nil)
)

// OutputRefs returns the output references of op's assignments in order.
// Outputs are numbered per assignment type.
func OutputRefs(op Operation) []Opout {
	id := op.ID()
	outs := op.Outputs()
	refs := make([]Opout, len(outs))
	next := make(map[AssignmentType]uint16)
	for i, a := range outs {
		refs[i] = Opout{Op: id, Type: a.Type, No: next[a.Type]}
		next[a.Type]++
	}
	return refs
}
