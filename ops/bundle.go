package ops

import (
	"sort"

	"xdao.co/consign/commit"
)

// InputMapEntry maps a witness transaction input to the transition spending it.
type InputMapEntry struct {
	Vin uint32
	Op  OpID
}

// TransitionBundle groups the transitions of one contract closed by the same
// witness transaction.
type TransitionBundle struct {
	InputMap    []InputMapEntry
	Transitions []Transition
}

func (b *TransitionBundle) sortedInputMap() []InputMapEntry {
	m := append([]InputMapEntry(nil), b.InputMap...)
	sort.SliceStable(m, func(i, j int) bool { return m[i].Vin < m[j].Vin })
	return m
}

// BundleID commits to the input map only, so it is independent of which
// transition data is revealed.
func (b *TransitionBundle) BundleID() BundleID {
	e := commit.NewEngine(tagBundle)
	e.CommitSerialized(b.sortedInputMap())
	return BundleID(e.Finish())
}

// DiscloseHash commits to the bundle id and the set of concealed transitions.
func (b *TransitionBundle) DiscloseHash() [32]byte {
	hashes := make([][32]byte, len(b.Transitions))
	for i := range b.Transitions {
		hashes[i] = b.Transitions[i].DiscloseHash()
	}
	e := commit.NewEngine(tagDisclose)
	e.CommitDigest(b.BundleID())
	commit.CommitSet(e, hashes)
	return e.Finish()
}

// Transition returns the transition with the given id.
func (b *TransitionBundle) Transition(id OpID) (*Transition, bool) {
	for i := range b.Transitions {
		if b.Transitions[i].ID() == id {
			return &b.Transitions[i], true
		}
	}
	return nil, false
}

// Spends reports whether the input map lists the operation.
func (b *TransitionBundle) Spends(id OpID) bool {
	for _, e := range b.InputMap {
		if e.Op == id {
			return true
		}
	}
	return false
}

// RevealSeal reveals every assignment whose concealed seal matches seal.
// It reports whether anything changed.
func (b *TransitionBundle) RevealSeal(seal GraphSeal) bool {
	changed := false
	for i := range b.Transitions {
		t := &b.Transitions[i]
		for j := range t.Assignments {
			a := &t.Assignments[j]
			if a.Seal.IsRevealed() {
				continue
			}
			if a.Seal.Reveal(seal) {
				changed = true
			}
		}
	}
	return changed
}

// Seals returns the concealed seals of every transition output in the bundle.
func (b *TransitionBundle) Seals() []SecretSeal {
	var out []SecretSeal
	for i := range b.Transitions {
		for _, a := range b.Transitions[i].Assignments {
			out = append(out, a.Seal.Secret())
		}
	}
	return out
}

func (b TransitionBundle) Clone() TransitionBundle {
	out := TransitionBundle{InputMap: append([]InputMapEntry(nil), b.InputMap...)}
	if b.Transitions != nil {
		out.Transitions = make([]Transition, len(b.Transitions))
		for i := range b.Transitions {
			out.Transitions[i] = *b.Transitions[i].Clone()
		}
	}
	return out
}

// AnchoredBundle is a bundle together with the proof of its commitment in a
// witness transaction.
type AnchoredBundle struct {
	Method CloseMethod
	Proof  []byte
	Bundle TransitionBundle
}

func (a AnchoredBundle) Clone() AnchoredBundle {
	return AnchoredBundle{
		Method: a.Method,
		Proof:  append([]byte(nil), a.Proof...),
		Bundle: a.Bundle.Clone(),
	}
}

// PubWitness is a public witness: a layer-1 transaction id and, when known,
// the raw transaction.
type PubWitness struct {
	ID WitnessID
	Tx []byte `cbor:",omitempty"`
}

// BundledWitness pairs a public witness with the bundles it anchors.
type BundledWitness struct {
	Witness PubWitness
	Anchors []AnchoredBundle
}

func (w *BundledWitness) WitnessID() WitnessID { return w.Witness.ID }

type anchorCommitment struct {
	Method   CloseMethod
	Proof    []byte
	Bundle   BundleID
	Disclose [32]byte
}

// DiscloseHash commits to the witness id and, as a set, every anchored
// bundle's disclose hash together with its anchor.
func (w *BundledWitness) DiscloseHash() [32]byte {
	anchors := make([][32]byte, len(w.Anchors))
	for i := range w.Anchors {
		a := &w.Anchors[i]
		anchors[i] = commit.Digest(tagAnchor, anchorCommitment{
			Method:   a.Method,
			Proof:    a.Proof,
			Bundle:   a.Bundle.BundleID(),
			Disclose: a.Bundle.DiscloseHash(),
		})
	}
	e := commit.NewEngine(tagDisclose)
	e.CommitDigest(w.Witness.ID)
	commit.CommitSet(e, anchors)
	return e.Finish()
}

func (w BundledWitness) Clone() BundledWitness {
	out := BundledWitness{Witness: PubWitness{ID: w.Witness.ID, Tx: append([]byte(nil), w.Witness.Tx...)}}
	if w.Anchors != nil {
		out.Anchors = make([]AnchoredBundle, len(w.Anchors))
		for i := range w.Anchors {
			out.Anchors[i] = w.Anchors[i].Clone()
		}
	}
	return out
}
