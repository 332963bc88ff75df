package persistence

import (
	"iter"
	"slices"

	"xdao.co/consign/ops"
)

// Snapshot is a ContractStateRead over a fixed set of outputs. Providers
// return one from ContractState so readers never observe later writes.
type Snapshot struct {
	id       ops.ContractID
	schemaID ops.SchemaID
	outputs  []OutputAssignment
}

var _ ContractStateRead = (*Snapshot)(nil)

// NewSnapshot takes ownership of outputs and sorts them with CompareOutputs.
func NewSnapshot(id ops.ContractID, schemaID ops.SchemaID, outputs []OutputAssignment) *Snapshot {
	slices.SortFunc(outputs, CompareOutputs)
	return &Snapshot{id: id, schemaID: schemaID, outputs: outputs}
}

func (s *Snapshot) ContractID() ops.ContractID { return s.id }
func (s *Snapshot) SchemaID() ops.SchemaID     { return s.schemaID }

func (s *Snapshot) filter(kind PersistedKind) iter.Seq[OutputAssignment] {
	return func(yield func(OutputAssignment) bool) {
		for _, out := range s.outputs {
			if out.State.Kind != kind {
				continue
			}
			if !yield(out) {
				return
			}
		}
	}
}

func (s *Snapshot) RightsAll() iter.Seq[OutputAssignment]   { return s.filter(PersistedVoid) }
func (s *Snapshot) FungibleAll() iter.Seq[OutputAssignment] { return s.filter(PersistedAmount) }
func (s *Snapshot) DataAll() iter.Seq[OutputAssignment]     { return s.filter(PersistedData) }
func (s *Snapshot) AttachAll() iter.Seq[OutputAssignment]   { return s.filter(PersistedAttachment) }

// All yields every output regardless of kind.
func (s *Snapshot) All() iter.Seq[OutputAssignment] { return slices.Values(s.outputs) }
