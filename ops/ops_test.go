package ops

import (
	"sort"
	"testing"
)

func testSeal(b byte) GraphSeal {
	var txid WitnessID
	txid[0] = b
	return GraphSeal{Method: TapretFirst, Txid: txid, Vout: uint32(b), Blinding: uint64(b) * 31}
}

func testGenesis() *Genesis {
	return &Genesis{
		SchemaID: SchemaID{1},
		Metadata: []byte("issue"),
		Globals:  []GlobalState{{Type: 1, Data: []byte("ticker")}},
		Assignments: []Assignment{
			{Type: 10, Seal: RevealedSeal(testSeal(1)), State: FungibleState(RevealedValue{Amount: 1000})},
			{Type: 11, Seal: RevealedSeal(testSeal(2)), State: VoidState()},
		},
	}
}

func TestOperationIDStableUnderSealReveal(t *testing.T) {
	seal := testSeal(7)
	revealed := &Transition{
		ContractID:  ContractID{9},
		Inputs:      []Input{{PrevOut: Opout{Op: OpID{3}, Type: 10}}},
		Assignments: []Assignment{{Type: 10, Seal: RevealedSeal(seal), State: FungibleState(RevealedValue{Amount: 5})}},
	}
	concealed := revealed.Clone()
	concealed.Assignments[0].Seal = ConcealedSeal(seal.Conceal())

	if revealed.ID() != concealed.ID() {
		t.Fatalf("op id changed with seal revelation")
	}
	if revealed.DiscloseHash() != concealed.DiscloseHash() {
		t.Fatalf("disclose hash changed with seal revelation")
	}

	if !concealed.Assignments[0].Seal.Reveal(seal) {
		t.Fatalf("expected reveal to match")
	}
	if concealed.Assignments[0].Seal.Reveal(testSeal(8)) {
		t.Fatalf("reveal matched a foreign seal")
	}
}

func TestOperationIDSensitiveToContent(t *testing.T) {
	g := testGenesis()
	base := g.ID()

	g2 := g.Clone()
	g2.Testnet = true
	if g2.ID() == base {
		t.Fatalf("testnet flag not committed")
	}

	g3 := g.Clone()
	g3.Assignments[0].State = FungibleState(RevealedValue{Amount: 1001})
	if g3.ID() == base {
		t.Fatalf("state not committed")
	}

	if g.Clone().ID() != base {
		t.Fatalf("clone changed id")
	}
	if g.ContractID() != ContractID(base) {
		t.Fatalf("contract id must equal genesis id")
	}
}

func TestOperationKindsDoNotCollide(t *testing.T) {
	tr := &Transition{ContractID: ContractID{1}}
	ext := &Extension{ContractID: ContractID{1}}
	if tr.ID() == ext.ID() {
		t.Fatalf("transition and extension with equal fields share an id")
	}
}

func TestBundleIDIndependentOfTransitions(t *testing.T) {
	tr := Transition{
		ContractID:  ContractID{1},
		Assignments: []Assignment{{Type: 1, Seal: ConcealedSeal(testSeal(4).Conceal()), State: VoidState()}},
	}
	b := TransitionBundle{
		InputMap:    []InputMapEntry{{Vin: 1, Op: tr.ID()}, {Vin: 0, Op: tr.ID()}},
		Transitions: []Transition{tr},
	}
	reordered := b.Clone()
	reordered.InputMap[0], reordered.InputMap[1] = reordered.InputMap[1], reordered.InputMap[0]
	if b.BundleID() != reordered.BundleID() {
		t.Fatalf("bundle id depends on input map order")
	}

	before := b.DiscloseHash()
	if !b.RevealSeal(testSeal(4)) {
		t.Fatalf("expected seal to be revealed")
	}
	if b.RevealSeal(testSeal(4)) {
		t.Fatalf("second reveal should be a no-op")
	}
	if b.DiscloseHash() != before {
		t.Fatalf("disclose hash changed after reveal")
	}
	if _, ok := b.Transition(tr.ID()); !ok {
		t.Fatalf("transition lookup failed")
	}
	if !b.Spends(tr.ID()) {
		t.Fatalf("input map must list the transition")
	}
}

func TestWitnessOrdOrdering(t *testing.T) {
	a, b := WitnessID{1}, WitnessID{2}
	ords := []WitnessOrd{
		NewWitnessOrd(Archived(), a),
		NewWitnessOrd(Tentative(), a),
		NewWitnessOrd(Mined(WitnessPos{Height: 200, Timestamp: 10}), a),
		NewWitnessOrd(Mined(WitnessPos{Height: 100, Timestamp: 50}), b),
		NewWitnessOrd(Mined(WitnessPos{Height: 100, Timestamp: 50}), a),
	}
	sort.Slice(ords, func(i, j int) bool { return ords[i].Less(ords[j]) })

	want := []string{
		"mined@100/50:" + a.String(),
		"mined@100/50:" + b.String(),
		"mined@200/10:" + a.String(),
		"tentative:" + a.String(),
		"archived:" + a.String(),
	}
	for i, o := range ords {
		if o.String() != want[i] {
			t.Errorf("ord[%d] = %s, want %s", i, o, want[i])
		}
	}
}

func TestIfacePairConsistency(t *testing.T) {
	iface := Iface{Name: "RGB20", Spec: []byte("fungible")}
	pair := IfacePair{Iface: iface, Impl: IfaceImpl{IfaceID: iface.IfaceID(), SchemaID: SchemaID{1}}}
	if !pair.Consistent() {
		t.Fatalf("expected consistent pair")
	}
	pair.Impl.IfaceID = IfaceID{0xff}
	if pair.Consistent() {
		t.Fatalf("expected mismatch")
	}
}

func TestTypeSystemIDOrderIndependent(t *testing.T) {
	a := TypeSystem{Types: []TypeDef{{Name: "Amount", Def: []byte("u64")}, {Name: "Ticker", Def: []byte("str")}}}
	b := TypeSystem{Types: []TypeDef{a.Types[1], a.Types[0]}}
	if a.ID() != b.ID() {
		t.Fatalf("type system id depends on definition order")
	}
}

func TestParseWitnessID(t *testing.T) {
	id := WitnessID{0xab, 0xcd}
	got, err := ParseWitnessID(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch")
	}
	if _, err := ParseWitnessID("abcd"); err == nil {
		t.Fatalf("expected short id to fail")
	}
}

func TestContractIDTextRoundTrip(t *testing.T) {
	id := testGenesis().ContractID()
	got, err := ParseContractID(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch")
	}
}
