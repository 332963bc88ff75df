package sqlitestate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/persistence/providertest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestProviderConformance(t *testing.T) {
	providertest.RunProviderConformance(t, func(t *testing.T) persistence.StateProvider {
		return openTempStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestReopenKeepsState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	f := providertest.NewFixture()
	ord := ops.NewWitnessOrd(ops.Mined(ops.WitnessPos{Height: 7, Timestamp: 70}), f.Witness)

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.BeginTransaction(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w, err := store.RegisterContract(ctx, &f.Schema, &f.Genesis)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := w.AddGenesis(ctx, &f.Genesis); err != nil {
		t.Fatalf("add genesis: %v", err)
	}
	if err := w.AddTransition(ctx, &f.Transition, ord); err != nil {
		t.Fatalf("add transition: %v", err)
	}
	if err := store.CommitTransaction(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	st, err := reopened.ContractState(ctx, f.Genesis.ContractID())
	if err != nil {
		t.Fatalf("contract state: %v", err)
	}
	fungible := providertest.Collect(st.FungibleAll())
	if len(fungible) != 1 {
		t.Fatalf("fungible outputs = %d, want 1", len(fungible))
	}
	got := fungible[0]
	if got.State.Amount != 107 {
		t.Fatalf("amount = %d, want 107", got.State.Amount)
	}
	if got.Witness == nil || got.Witness.Compare(ord) != 0 {
		t.Fatalf("witness = %v, want %s", got.Witness, ord)
	}
	if !got.Seal.IsRevealed() || *got.Seal.Revealed != providertest.Seal(3) {
		t.Fatalf("seal not preserved: %+v", got.Seal)
	}
}

func TestWriteToUnknownContract(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	f := providertest.NewFixture()
	w := &writer{s: store, id: f.Genesis.ContractID()}
	err := w.AddTransition(context.Background(), &f.Transition, ops.NewWitnessOrd(ops.Tentative(), f.Witness))
	if !errors.Is(err, persistence.ErrUnknownContract) {
		t.Fatalf("AddTransition error = %v, want ErrUnknownContract", err)
	}
}

func TestFinishWithoutBegin(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.CommitTransaction(context.Background()); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("commit error = %v, want ErrNoTransaction", err)
	}
}
