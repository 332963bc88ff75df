package consignment

import (
	"context"
	"testing"

	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

const (
	assetOwner ops.AssignmentType = 10
	rightOwner ops.AssignmentType = 11
)

type fixture struct {
	schema     ops.Schema
	genesis    ops.Genesis
	transition ops.Transition
	bundle     ops.TransitionBundle
	witness    ops.WitnessID
	terminal   ops.GraphSeal
}

func seal(b byte) ops.GraphSeal {
	var txid ops.WitnessID
	txid[31] = b
	return ops.GraphSeal{Method: ops.TapretFirst, Txid: txid, Vout: uint32(b), Blinding: 0xdead00 + uint64(b)}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		schema: ops.Schema{Name: "NonInflatableAsset", Rules: []byte("rules-v1")},
	}
	f.genesis = ops.Genesis{
		SchemaID: f.schema.SchemaID(),
		Metadata: []byte("issue"),
		Globals:  []ops.GlobalState{{Type: 2000, Data: []byte("TICK")}},
		Assignments: []ops.Assignment{
			{Type: assetOwner, Seal: ops.RevealedSeal(seal(1)), State: ops.FungibleState(ops.RevealedValue{Amount: 1000})},
			{Type: rightOwner, Seal: ops.RevealedSeal(seal(2)), State: ops.VoidState()},
		},
	}
	f.terminal = seal(3)
	f.transition = ops.Transition{
		ContractID:     f.genesis.ContractID(),
		TransitionType: 10000,
		Inputs:         []ops.Input{{PrevOut: ops.Opout{Op: f.genesis.ID(), Type: assetOwner, No: 0}}},
		Assignments: []ops.Assignment{
			{Type: assetOwner, Seal: ops.ConcealedSeal(f.terminal.Conceal()), State: ops.FungibleState(ops.RevealedValue{Amount: 600})},
			{Type: assetOwner, Seal: ops.RevealedSeal(seal(4)), State: ops.FungibleState(ops.RevealedValue{Amount: 400})},
		},
	}
	f.bundle = ops.TransitionBundle{
		InputMap:    []ops.InputMapEntry{{Vin: 0, Op: f.transition.ID()}},
		Transitions: []ops.Transition{f.transition},
	}
	f.witness = ops.WitnessID{0xaa, 0x01}
	return f
}

func (f *fixture) contractContents() Contents {
	return Contents{
		Genesis: *f.genesis.Clone(),
		Schema:  f.schema,
		Types:   ops.TypeSystem{Types: []ops.TypeDef{{Name: "Amount", Def: []byte("u64")}}},
	}
}

func (f *fixture) transferContents() Contents {
	c := f.contractContents()
	c.Transfer = true
	c.Bundles = []ops.BundledWitness{{
		Witness: ops.PubWitness{ID: f.witness, Tx: []byte("raw witness tx")},
		Anchors: []ops.AnchoredBundle{{Method: ops.TapretFirst, Proof: []byte("mpc"), Bundle: f.bundle.Clone()}},
	}}
	c.Terminals = map[ops.BundleID]ops.SecretSeal{f.bundle.BundleID(): f.terminal.Conceal()}
	return c
}

func mustContract(t *testing.T, c Contents) *Consignment {
	t.Helper()
	out, err := NewContract(c)
	if err != nil {
		t.Fatalf("NewContract: %v", err)
	}
	return out
}

func mustTransfer(t *testing.T, c Contents) *Consignment {
	t.Helper()
	out, err := NewTransfer(c)
	if err != nil {
		t.Fatalf("NewTransfer: %v", err)
	}
	return out
}

// ordResolver resolves witness ords from a fixed table.
type ordResolver struct {
	ords  map[ops.WitnessID]ops.WitnessStatus
	calls int
}

func (r *ordResolver) ResolvePubWitness(_ context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	return nil, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
}

func (r *ordResolver) ResolvePubWitnessOrd(_ context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	r.calls++
	ord, ok := r.ords[id]
	if !ok {
		return ops.WitnessStatus{}, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
	}
	return ord, nil
}

func (f *fixture) resolver() *ordResolver {
	return &ordResolver{ords: map[ops.WitnessID]ops.WitnessStatus{
		f.witness: ops.Mined(ops.WitnessPos{Height: 100, Timestamp: 1700000000}),
	}}
}
