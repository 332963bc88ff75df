package persistence_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"xdao.co/consign/consignment"
	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/persistence/memstate"
	"xdao.co/consign/persistence/providertest"
	"xdao.co/consign/persistence/sqlitestate"
)

var providers = []struct {
	name string
	open func(t *testing.T) persistence.StateProvider
}{
	{"memstate", func(*testing.T) persistence.StateProvider { return memstate.New() }},
	{"sqlitestate", func(t *testing.T) persistence.StateProvider {
		store, err := sqlitestate.Open(filepath.Join(t.TempDir(), "state.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}},
}

// eachProvider runs fn once per provider implementation.
func eachProvider(t *testing.T, fn func(t *testing.T, p persistence.StateProvider)) {
	for _, pv := range providers {
		t.Run(pv.name, func(t *testing.T) { fn(t, pv.open(t)) })
	}
}

// recorder wraps a provider and records the order extensions are added at.
type recorder struct {
	persistence.StateProvider
	extensions map[ops.OpID]ops.WitnessOrd
	applied    []ops.OpID
}

func newRecorder(p persistence.StateProvider) *recorder {
	return &recorder{StateProvider: p, extensions: make(map[ops.OpID]ops.WitnessOrd)}
}

type recordingWriter struct {
	persistence.ContractStateWrite
	r *recorder
}

func (w recordingWriter) AddExtension(ctx context.Context, x *ops.Extension, ord ops.WitnessOrd) error {
	w.r.extensions[x.ID()] = ord
	w.r.applied = append(w.r.applied, x.ID())
	return w.ContractStateWrite.AddExtension(ctx, x, ord)
}

func (r *recorder) RegisterContract(ctx context.Context, schema *ops.Schema, genesis *ops.Genesis) (persistence.ContractStateWrite, error) {
	w, err := r.StateProvider.RegisterContract(ctx, schema, genesis)
	if err != nil {
		return nil, err
	}
	return recordingWriter{ContractStateWrite: w, r: r}, nil
}

// history extends the conformance fixture with a second transition that
// spends the extension's data output under an earlier witness.
type history struct {
	*providertest.Fixture
	second       ops.Transition
	earlyWitness ops.WitnessID
	resolver     *providertest.Resolver
	early, late  ops.WitnessStatus
}

func newHistory() *history {
	h := &history{Fixture: providertest.NewFixture(), earlyWitness: ops.WitnessID{0x11}}
	h.second = ops.Transition{
		ContractID:     h.Genesis.ContractID(),
		TransitionType: 10001,
		Inputs:         []ops.Input{{PrevOut: ops.Opout{Op: h.Extension.ID(), Type: 12, No: 0}}},
		Assignments: []ops.Assignment{
			{Type: 12, Seal: ops.RevealedSeal(providertest.Seal(9)), State: ops.StructuredState(ops.RevealedData{Value: []byte("moved")})},
		},
	}
	h.early = ops.Mined(ops.WitnessPos{Height: 5, Timestamp: 50})
	h.late = ops.Mined(ops.WitnessPos{Height: 9, Timestamp: 90})
	h.resolver = &providertest.Resolver{Ords: map[ops.WitnessID]ops.WitnessStatus{
		h.Witness:      h.late,
		h.earlyWitness: h.early,
	}}
	return h
}

func bundled(witness ops.WitnessID, ts ...ops.Transition) ops.BundledWitness {
	b := ops.TransitionBundle{Transitions: ts}
	for i, t := range ts {
		b.InputMap = append(b.InputMap, ops.InputMapEntry{Vin: uint32(i), Op: t.ID()})
	}
	return ops.BundledWitness{
		Witness: ops.PubWitness{ID: witness},
		Anchors: []ops.AnchoredBundle{{Method: ops.TapretFirst, Bundle: b}},
	}
}

func (h *history) consignment(t *testing.T, reversed bool) *consignment.Consignment {
	t.Helper()
	bundles := []ops.BundledWitness{
		bundled(h.Witness, h.Transition),
		bundled(h.earlyWitness, h.second),
	}
	if reversed {
		bundles[0], bundles[1] = bundles[1], bundles[0]
	}
	c, err := consignment.NewTransfer(consignment.Contents{
		Genesis:    h.Genesis,
		Schema:     h.Schema,
		Extensions: []ops.Extension{h.Extension},
		Bundles:    bundles,
	})
	if err != nil {
		t.Fatalf("NewTransfer: %v", err)
	}
	return c
}

func TestUpdateFromConsignment(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		s := persistence.NewState(p)
		ctx := context.Background()

		for range 2 {
			if err := s.UpdateFromConsignment(ctx, h.consignment(t, false), h.resolver); err != nil {
				t.Fatalf("UpdateFromConsignment: %v", err)
			}
		}

		st, err := s.ContractState(ctx, h.Genesis.ContractID())
		if err != nil {
			t.Fatalf("ContractState: %v", err)
		}
		fungible := providertest.Collect(st.FungibleAll())
		if len(fungible) != 1 || fungible[0].Opout.Op != h.Transition.ID() || fungible[0].State.Amount != 107 {
			t.Fatalf("FungibleAll = %+v, want the transition output of 107", fungible)
		}
		if w := fungible[0].Witness; w == nil || w.Compare(ops.NewWitnessOrd(h.late, h.Witness)) != 0 {
			t.Fatalf("transition output witness = %v, want %s", w, h.Witness)
		}
		data := providertest.Collect(st.DataAll())
		if len(data) != 1 || string(data[0].State.Data) != "moved" {
			t.Fatalf("DataAll = %+v, want the second transition output", data)
		}
		if data[0].Witness == nil || data[0].Witness.Witness != h.earlyWitness {
			t.Fatalf("data output witness = %v, want %s", data[0].Witness, h.earlyWitness)
		}
		if rights := providertest.Collect(st.RightsAll()); len(rights) != 1 || rights[0].Witness != nil {
			t.Fatalf("RightsAll = %+v, want the genesis right", rights)
		}
	})
}

func TestExtensionAppliedAtEarliestConsumer(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
			h := newHistory()
			r := newRecorder(p)
			s := persistence.NewState(r)
			if err := s.UpdateFromConsignment(context.Background(), h.consignment(t, reversed), h.resolver); err != nil {
				t.Fatalf("UpdateFromConsignment(reversed=%v): %v", reversed, err)
			}
			got, ok := r.extensions[h.Extension.ID()]
			if !ok {
				t.Fatalf("reversed=%v: extension not applied", reversed)
			}
			want := ops.NewWitnessOrd(h.early, h.earlyWitness)
			if got.Compare(want) != 0 {
				t.Fatalf("reversed=%v: extension ord = %s, want %s", reversed, got, want)
			}
		})
	}
}

func TestUnconsumedExtensionNotApplied(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		r := newRecorder(p)
		s := persistence.NewState(r)
		c, err := consignment.NewContract(consignment.Contents{
			Genesis:    h.Genesis,
			Schema:     h.Schema,
			Extensions: []ops.Extension{h.Extension},
		})
		if err != nil {
			t.Fatalf("NewContract: %v", err)
		}
		if err := s.UpdateFromConsignment(context.Background(), c, h.resolver); err != nil {
			t.Fatalf("UpdateFromConsignment: %v", err)
		}
		if len(r.applied) != 0 {
			t.Fatalf("applied extensions %v, want none", r.applied)
		}
	})
}

func TestResolverErrorRollsBack(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		delete(h.resolver.Ords, h.earlyWitness)
		s := persistence.NewState(p)
		ctx := context.Background()

		err := s.UpdateFromConsignment(ctx, h.consignment(t, false), h.resolver)
		if !persistence.IsKind(err, persistence.KindResolver) {
			t.Fatalf("error = %v, want Resolver kind", err)
		}
		var se *persistence.StateError
		if !errors.As(err, &se) || se.Witness != h.earlyWitness {
			t.Fatalf("error witness = %v, want %s", se, h.earlyWitness)
		}
		if _, err := s.ContractState(ctx, h.Genesis.ContractID()); !persistence.IsKind(err, persistence.KindInconsistency) {
			t.Fatalf("contract registered despite rollback: %v", err)
		}
	})
}

func TestUpdateFromBundleUnknownContract(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		s := persistence.NewState(p)
		bundle := bundled(h.Witness, h.Transition).Anchors[0].Bundle

		err := s.UpdateFromBundle(context.Background(), h.Genesis.ContractID(), &bundle, h.Witness, h.resolver)
		if !persistence.IsKind(err, persistence.KindInconsistency) {
			t.Fatalf("error = %v, want Inconsistency", err)
		}
		if !errors.Is(err, persistence.ErrUnknownContract) {
			t.Fatalf("error = %v, want ErrUnknownContract", err)
		}
		if h.resolver.Calls != 0 {
			t.Fatalf("resolver called %d times for an unknown contract", h.resolver.Calls)
		}
	})
}

func TestUpdateFromBundle(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		s := persistence.NewState(p)
		ctx := context.Background()

		c, err := consignment.NewContract(consignment.Contents{Genesis: h.Genesis, Schema: h.Schema})
		if err != nil {
			t.Fatalf("NewContract: %v", err)
		}
		if err := s.UpdateFromConsignment(ctx, c, h.resolver); err != nil {
			t.Fatalf("UpdateFromConsignment: %v", err)
		}
		bundle := bundled(h.Witness, h.Transition).Anchors[0].Bundle
		if err := s.UpdateFromBundle(ctx, h.Genesis.ContractID(), &bundle, h.Witness, h.resolver); err != nil {
			t.Fatalf("UpdateFromBundle: %v", err)
		}
		if h.resolver.Calls != 1 {
			t.Fatalf("resolver calls = %d, want 1 per bundle", h.resolver.Calls)
		}

		st, err := s.ContractState(ctx, h.Genesis.ContractID())
		if err != nil {
			t.Fatalf("ContractState: %v", err)
		}
		fungible := providertest.Collect(st.FungibleAll())
		if len(fungible) != 1 || fungible[0].Opout.Op != h.Transition.ID() {
			t.Fatalf("FungibleAll = %+v, want the transition output", fungible)
		}
	})
}

func TestCallerTransaction(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		s := persistence.NewState(p)
		ctx := context.Background()

		if err := s.BeginTransaction(ctx); err != nil {
			t.Fatalf("BeginTransaction: %v", err)
		}
		if err := s.BeginTransaction(ctx); err == nil {
			t.Fatalf("nested BeginTransaction succeeded")
		}
		if err := s.UpdateFromConsignment(ctx, h.consignment(t, false), h.resolver); err != nil {
			t.Fatalf("UpdateFromConsignment: %v", err)
		}
		if _, err := s.ContractState(ctx, h.Genesis.ContractID()); err != nil {
			t.Fatalf("write not visible inside the transaction: %v", err)
		}
		if err := s.RollbackTransaction(ctx); err != nil {
			t.Fatalf("RollbackTransaction: %v", err)
		}
		if _, err := s.ContractState(ctx, h.Genesis.ContractID()); !persistence.IsKind(err, persistence.KindInconsistency) {
			t.Fatalf("write survived caller rollback: %v", err)
		}
	})
}

func TestUpdateWitnesses(t *testing.T) {
	eachProvider(t, func(t *testing.T, p persistence.StateProvider) {
		h := newHistory()
		h.resolver.Ords[h.Witness] = ops.Tentative()
		s := persistence.NewState(p)
		ctx := context.Background()

		if err := s.UpdateFromConsignment(ctx, h.consignment(t, false), h.resolver); err != nil {
			t.Fatalf("UpdateFromConsignment: %v", err)
		}
		h.resolver.Ords[h.Witness] = h.late
		res, err := s.UpdateWitnesses(ctx, h.resolver, 100)
		if err != nil {
			t.Fatalf("UpdateWitnesses: %v", err)
		}
		if len(res.Succeeded) != 1 || len(res.Failed) != 0 {
			t.Fatalf("UpdateWitnesses = %+v, want one success", res)
		}
		if got := res.Succeeded[h.Witness]; got.Ord.Compare(h.late) != 0 {
			t.Fatalf("updated ord = %s, want %s", got.Ord, h.late)
		}
	})
}
