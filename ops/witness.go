package ops

import (
	"cmp"
	"fmt"

	"xdao.co/consign/commit"
)

// WitnessPos is the position of a mined witness.
type WitnessPos struct {
	Height    uint32
	Timestamp int64
}

func (p WitnessPos) Compare(o WitnessPos) int {
	if c := cmp.Compare(p.Height, o.Height); c != 0 {
		return c
	}
	return cmp.Compare(p.Timestamp, o.Timestamp)
}

// OrdKind is the finality class of a witness.
type OrdKind uint8

const (
	OrdMined OrdKind = iota
	OrdTentative
	OrdArchived
)

func (k OrdKind) String() string {
	switch k {
	case OrdMined:
		return "mined"
	case OrdTentative:
		return "tentative"
	case OrdArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// WitnessStatus is what a resolver reports about a witness. Mined witnesses
// order by position and precede tentative ones; archived (no longer known to
// the timestamping layer) sort last.
type WitnessStatus struct {
	Kind OrdKind
	Pos  WitnessPos
}

func Mined(pos WitnessPos) WitnessStatus { return WitnessStatus{Kind: OrdMined, Pos: pos} }
func Tentative() WitnessStatus           { return WitnessStatus{Kind: OrdTentative} }
func Archived() WitnessStatus            { return WitnessStatus{Kind: OrdArchived} }

func (s WitnessStatus) IsMined() bool { return s.Kind == OrdMined }

func (s WitnessStatus) Compare(o WitnessStatus) int {
	if c := cmp.Compare(s.Kind, o.Kind); c != 0 {
		return c
	}
	if s.Kind == OrdMined {
		return s.Pos.Compare(o.Pos)
	}
	return 0
}

func (s WitnessStatus) String() string {
	if s.Kind == OrdMined {
		return fmt.Sprintf("mined@%d/%d", s.Pos.Height, s.Pos.Timestamp)
	}
	return s.Kind.String()
}

// WitnessOrd is the total order key the state engine applies operations by.
// Smaller is earlier and more final; equal statuses tie-break on the id.
type WitnessOrd struct {
	Ord     WitnessStatus
	Witness WitnessID
}

func NewWitnessOrd(status WitnessStatus, id WitnessID) WitnessOrd {
	return WitnessOrd{Ord: status, Witness: id}
}

func (o WitnessOrd) Compare(p WitnessOrd) int {
	if c := o.Ord.Compare(p.Ord); c != 0 {
		return c
	}
	return commit.Compare(o.Witness, p.Witness)
}

func (o WitnessOrd) Less(p WitnessOrd) bool { return o.Compare(p) < 0 }

func (o WitnessOrd) String() string { return o.Ord.String() + ":" + o.Witness.String() }
