// Package providertest is a conformance suite for persistence.StateProvider
// implementations.
package providertest

import (
	"context"
	"errors"
	"iter"
	"testing"

	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/validation"
)

// NewProvider constructs a fresh, empty provider for a test.
// The returned provider MUST be isolated from other tests.
type NewProvider func(t *testing.T) persistence.StateProvider

const (
	AssetOwner ops.AssignmentType = 10
	RightOwner ops.AssignmentType = 11
)

// Fixture is a small contract history: a genesis with one fungible and one
// void output, an extension, and a transition spending the genesis amount
// and the extension output.
type Fixture struct {
	Schema     ops.Schema
	Genesis    ops.Genesis
	Extension  ops.Extension
	Transition ops.Transition
	Witness    ops.WitnessID
}

func Seal(b byte) ops.GraphSeal {
	var txid ops.WitnessID
	txid[31] = b
	return ops.GraphSeal{Method: ops.TapretFirst, Txid: txid, Vout: uint32(b), Blinding: 0xbeef00 + uint64(b)}
}

func NewFixture() *Fixture {
	f := &Fixture{Schema: ops.Schema{Name: "ConformanceAsset", Rules: []byte("rules")}}
	f.Genesis = ops.Genesis{
		SchemaID: f.Schema.SchemaID(),
		Assignments: []ops.Assignment{
			{Type: AssetOwner, Seal: ops.RevealedSeal(Seal(1)), State: ops.FungibleState(ops.RevealedValue{Amount: 100})},
			{Type: RightOwner, Seal: ops.RevealedSeal(Seal(2)), State: ops.VoidState()},
		},
		Valencies: []uint16{1},
	}
	f.Extension = ops.Extension{
		ContractID:    f.Genesis.ContractID(),
		ExtensionType: 1,
		Redeemed:      []ops.Redeemed{{Valency: 1, Op: f.Genesis.ID()}},
		Assignments: []ops.Assignment{
			{Type: AssetOwner, Seal: ops.RevealedSeal(Seal(5)), State: ops.FungibleState(ops.RevealedValue{Amount: 7})},
			{Type: 12, Seal: ops.RevealedSeal(Seal(6)), State: ops.StructuredState(ops.RevealedData{Value: []byte("note")})},
		},
	}
	f.Transition = ops.Transition{
		ContractID:     f.Genesis.ContractID(),
		TransitionType: 10000,
		Inputs: []ops.Input{
			{PrevOut: ops.Opout{Op: f.Genesis.ID(), Type: AssetOwner, No: 0}},
			{PrevOut: ops.Opout{Op: f.Extension.ID(), Type: AssetOwner, No: 0}},
		},
		Assignments: []ops.Assignment{
			{Type: AssetOwner, Seal: ops.RevealedSeal(Seal(3)), State: ops.FungibleState(ops.RevealedValue{Amount: 107})},
		},
	}
	f.Witness = ops.WitnessID{0x77, 0x01}
	return f
}

// Resolver resolves witness orders from a mutable table.
type Resolver struct {
	Ords  map[ops.WitnessID]ops.WitnessStatus
	Calls int
}

func (r *Resolver) ResolvePubWitness(_ context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	return nil, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
}

func (r *Resolver) ResolvePubWitnessOrd(_ context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	r.Calls++
	s, ok := r.Ords[id]
	if !ok {
		return ops.WitnessStatus{}, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
	}
	return s, nil
}

// Collect drains an output iterator.
func Collect(seq iter.Seq[persistence.OutputAssignment]) []persistence.OutputAssignment {
	var out []persistence.OutputAssignment
	for o := range seq {
		out = append(out, o)
	}
	return out
}

func register(t *testing.T, p persistence.StateProvider, f *Fixture) persistence.ContractStateWrite {
	t.Helper()
	ctx := context.Background()
	if err := p.BeginTransaction(ctx); err != nil {
		t.Fatalf("BeginTransaction failed: %v", err)
	}
	w, err := p.RegisterContract(ctx, &f.Schema, &f.Genesis)
	if err != nil {
		t.Fatalf("RegisterContract failed: %v", err)
	}
	if err := w.AddGenesis(ctx, &f.Genesis); err != nil {
		t.Fatalf("AddGenesis failed: %v", err)
	}
	if err := p.CommitTransaction(ctx); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}
	return w
}

func read(t *testing.T, p persistence.StateProvider, id ops.ContractID) persistence.ContractStateRead {
	t.Helper()
	st, err := p.ContractState(context.Background(), id)
	if err != nil {
		t.Fatalf("ContractState failed: %v", err)
	}
	return st
}

func inTx(t *testing.T, p persistence.StateProvider, fn func(ctx context.Context) error) {
	t.Helper()
	ctx := context.Background()
	if err := p.BeginTransaction(ctx); err != nil {
		t.Fatalf("BeginTransaction failed: %v", err)
	}
	if err := fn(ctx); err != nil {
		_ = p.RollbackTransaction(ctx)
		t.Fatalf("write failed: %v", err)
	}
	if err := p.CommitTransaction(ctx); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}
}

func RunProviderConformance(t *testing.T, newProvider NewProvider) {
	t.Helper()

	t.Run("UnknownContract", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		_, err := p.ContractState(context.Background(), f.Genesis.ContractID())
		if !errors.Is(err, persistence.ErrUnknownContract) {
			t.Fatalf("ContractState error = %v, want ErrUnknownContract", err)
		}
		if err := p.BeginTransaction(context.Background()); err != nil {
			t.Fatalf("BeginTransaction failed: %v", err)
		}
		defer p.RollbackTransaction(context.Background())
		_, ok, err := p.UpdateContract(context.Background(), f.Genesis.ContractID())
		if err != nil {
			t.Fatalf("UpdateContract failed: %v", err)
		}
		if ok {
			t.Fatalf("UpdateContract ok = true for unknown contract")
		}
	})

	t.Run("RegisterGenesis", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)

		st := read(t, p, f.Genesis.ContractID())
		if st.ContractID() != f.Genesis.ContractID() {
			t.Fatalf("ContractID mismatch: got %s want %s", st.ContractID(), f.Genesis.ContractID())
		}
		if st.SchemaID() != f.Schema.SchemaID() {
			t.Fatalf("SchemaID mismatch")
		}
		fungible := Collect(st.FungibleAll())
		if len(fungible) != 1 || fungible[0].State.Amount != 100 {
			t.Fatalf("FungibleAll = %+v, want one output of 100", fungible)
		}
		if fungible[0].Witness != nil {
			t.Fatalf("genesis output has witness %v", fungible[0].Witness)
		}
		if seal, ok := fungible[0].Seal.Revealed, fungible[0].Seal.IsRevealed(); !ok || *seal != Seal(1) {
			t.Fatalf("genesis seal not preserved")
		}
		if rights := Collect(st.RightsAll()); len(rights) != 1 {
			t.Fatalf("RightsAll returned %d outputs, want 1", len(rights))
		}
	})

	t.Run("RegisterIdempotent", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		register(t, p, f)

		if n := len(Collect(read(t, p, f.Genesis.ContractID()).FungibleAll())); n != 1 {
			t.Fatalf("FungibleAll returned %d outputs after re-registration, want 1", n)
		}
	})

	t.Run("TransitionSpendsAndIsIdempotent", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		ord := ops.NewWitnessOrd(ops.Mined(ops.WitnessPos{Height: 10, Timestamp: 1}), f.Witness)

		for range 2 {
			inTx(t, p, func(ctx context.Context) error {
				w, ok, err := p.UpdateContract(ctx, f.Genesis.ContractID())
				if err != nil || !ok {
					t.Fatalf("UpdateContract = %v, %v", ok, err)
				}
				return w.AddTransition(ctx, &f.Transition, ord)
			})
		}

		fungible := Collect(read(t, p, f.Genesis.ContractID()).FungibleAll())
		if len(fungible) != 1 {
			t.Fatalf("FungibleAll returned %d outputs, want 1", len(fungible))
		}
		got := fungible[0]
		if got.Opout.Op != f.Transition.ID() || got.State.Amount != 107 {
			t.Fatalf("unexpected output %+v", got)
		}
		if got.Witness == nil || got.Witness.Compare(ord) != 0 {
			t.Fatalf("output witness = %v, want %s", got.Witness, ord)
		}
	})

	t.Run("ExtensionAfterConsumer", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		ord := ops.NewWitnessOrd(ops.Tentative(), f.Witness)

		inTx(t, p, func(ctx context.Context) error {
			w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
			if err != nil {
				return err
			}
			if err := w.AddTransition(ctx, &f.Transition, ord); err != nil {
				return err
			}
			return w.AddExtension(ctx, &f.Extension, ord)
		})

		st := read(t, p, f.Genesis.ContractID())
		for _, out := range Collect(st.FungibleAll()) {
			if out.Opout.Op == f.Extension.ID() {
				t.Fatalf("spent extension output %+v still held", out.Opout)
			}
		}
		data := Collect(st.DataAll())
		if len(data) != 1 || string(data[0].State.Data) != "note" {
			t.Fatalf("DataAll = %+v, want the unspent extension note", data)
		}
	})

	t.Run("SuppliedOrdReplacesKnownOrd", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		mined := ops.NewWitnessOrd(ops.Mined(ops.WitnessPos{Height: 3, Timestamp: 3}), f.Witness)

		inTx(t, p, func(ctx context.Context) error {
			w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
			if err != nil {
				return err
			}
			return w.AddExtension(ctx, &f.Extension, ops.NewWitnessOrd(ops.Tentative(), f.Witness))
		})
		inTx(t, p, func(ctx context.Context) error {
			w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
			if err != nil {
				return err
			}
			return w.AddTransition(ctx, &f.Transition, mined)
		})

		st := read(t, p, f.Genesis.ContractID())
		fungible := Collect(st.FungibleAll())
		if len(fungible) != 1 || fungible[0].Opout.Op != f.Transition.ID() {
			t.Fatalf("FungibleAll = %+v, want the transition output", fungible)
		}
		if got := fungible[0].Witness; got == nil || got.Compare(mined) != 0 {
			t.Fatalf("transition output witness = %v, want %s", got, mined)
		}
		data := Collect(st.DataAll())
		if len(data) != 1 || data[0].Witness == nil || data[0].Witness.Compare(mined) != 0 {
			t.Fatalf("extension output witness = %+v, want %s", data, mined)
		}
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		ctx := context.Background()

		if err := p.BeginTransaction(ctx); err != nil {
			t.Fatalf("BeginTransaction failed: %v", err)
		}
		w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
		if err != nil {
			t.Fatalf("UpdateContract failed: %v", err)
		}
		ord := ops.NewWitnessOrd(ops.Tentative(), f.Witness)
		if err := w.AddTransition(ctx, &f.Transition, ord); err != nil {
			t.Fatalf("AddTransition failed: %v", err)
		}
		if err := p.RollbackTransaction(ctx); err != nil {
			t.Fatalf("RollbackTransaction failed: %v", err)
		}

		fungible := Collect(read(t, p, f.Genesis.ContractID()).FungibleAll())
		if len(fungible) != 1 || fungible[0].Opout.Op != f.Genesis.ID() {
			t.Fatalf("rollback left %+v", fungible)
		}
	})

	t.Run("RollbackDiscardsRegistration", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		ctx := context.Background()
		if err := p.BeginTransaction(ctx); err != nil {
			t.Fatalf("BeginTransaction failed: %v", err)
		}
		if _, err := p.RegisterContract(ctx, &f.Schema, &f.Genesis); err != nil {
			t.Fatalf("RegisterContract failed: %v", err)
		}
		if err := p.RollbackTransaction(ctx); err != nil {
			t.Fatalf("RollbackTransaction failed: %v", err)
		}
		if _, err := p.ContractState(ctx, f.Genesis.ContractID()); !errors.Is(err, persistence.ErrUnknownContract) {
			t.Fatalf("ContractState error = %v, want ErrUnknownContract", err)
		}
	})

	t.Run("UpdateWitnesses", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		tentative := ops.NewWitnessOrd(ops.Tentative(), f.Witness)
		inTx(t, p, func(ctx context.Context) error {
			w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
			if err != nil {
				return err
			}
			return w.AddTransition(ctx, &f.Transition, tentative)
		})

		mined := ops.Mined(ops.WitnessPos{Height: 42, Timestamp: 99})
		failing := ops.WitnessID{0x99}
		inTx(t, p, func(ctx context.Context) error {
			w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
			if err != nil {
				return err
			}
			return w.AddExtension(ctx, &f.Extension, ops.NewWitnessOrd(ops.Tentative(), failing))
		})

		r := &Resolver{Ords: map[ops.WitnessID]ops.WitnessStatus{f.Witness: mined}}
		var res persistence.UpdateRes
		inTx(t, p, func(ctx context.Context) error {
			var err error
			res, err = p.UpdateWitnesses(ctx, r, 0)
			return err
		})
		if got, ok := res.Succeeded[f.Witness]; !ok || got.Ord.Compare(mined) != 0 {
			t.Fatalf("Succeeded = %v, want %s mined", res.Succeeded, f.Witness)
		}
		if _, ok := res.Failed[failing]; !ok {
			t.Fatalf("Failed = %v, want %s", res.Failed, failing)
		}

		fungible := Collect(read(t, p, f.Genesis.ContractID()).FungibleAll())
		if len(fungible) != 1 || fungible[0].Witness == nil || !fungible[0].Witness.Ord.IsMined() {
			t.Fatalf("output order not updated: %+v", fungible)
		}

		// A second pass above the mined height leaves the witness alone.
		r.Calls = 0
		inTx(t, p, func(ctx context.Context) error {
			var err error
			res, err = p.UpdateWitnesses(ctx, r, 43)
			return err
		})
		if len(res.Succeeded) != 0 {
			t.Fatalf("Succeeded = %v, want none", res.Succeeded)
		}
		if _, ok := res.Failed[f.Witness]; ok {
			t.Fatalf("mined witness below afterHeight was re-resolved")
		}
	})

	t.Run("ViewIsStable", func(t *testing.T) {
		p := newProvider(t)
		f := NewFixture()
		register(t, p, f)
		st := read(t, p, f.Genesis.ContractID())

		inTx(t, p, func(ctx context.Context) error {
			w, _, err := p.UpdateContract(ctx, f.Genesis.ContractID())
			if err != nil {
				return err
			}
			return w.AddTransition(ctx, &f.Transition, ops.NewWitnessOrd(ops.Tentative(), f.Witness))
		})

		fungible := Collect(st.FungibleAll())
		if len(fungible) != 1 || fungible[0].Opout.Op != f.Genesis.ID() {
			t.Fatalf("earlier view changed: %+v", fungible)
		}
	})
}
