package memstate

import (
	"context"
	"errors"
	"testing"

	"xdao.co/consign/persistence"
	"xdao.co/consign/persistence/providertest"
)

func TestProviderConformance(t *testing.T) {
	providertest.RunProviderConformance(t, func(t *testing.T) persistence.StateProvider {
		return New()
	})
}

func TestCommitWithoutBegin(t *testing.T) {
	p := New()
	if err := p.CommitTransaction(context.Background()); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("CommitTransaction error = %v, want ErrNoTransaction", err)
	}
	if err := p.RollbackTransaction(context.Background()); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("RollbackTransaction error = %v, want ErrNoTransaction", err)
	}
}

func TestClosed(t *testing.T) {
	p := New()
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	f := providertest.NewFixture()
	if _, err := p.ContractState(context.Background(), f.Genesis.ContractID()); !errors.Is(err, ErrClosed) {
		t.Fatalf("ContractState error = %v, want ErrClosed", err)
	}
	if err := p.BeginTransaction(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("BeginTransaction error = %v, want ErrClosed", err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	p := New()
	f := providertest.NewFixture()
	other := f.Schema
	other.Name = "Other"
	if _, err := p.RegisterContract(context.Background(), &other, &f.Genesis); err == nil {
		t.Fatalf("RegisterContract accepted a schema that does not match genesis")
	}
}

func TestTransactionsAreExclusive(t *testing.T) {
	p := New()
	ctx := context.Background()
	if err := p.BeginTransaction(ctx); err != nil {
		t.Fatalf("BeginTransaction failed: %v", err)
	}
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- p.BeginTransaction(ctx)
	}()
	<-started
	select {
	case err := <-done:
		t.Fatalf("second BeginTransaction returned %v while the first was open", err)
	default:
	}
	if err := p.CommitTransaction(ctx); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("second BeginTransaction failed: %v", err)
	}
	if err := p.RollbackTransaction(ctx); err != nil {
		t.Fatalf("RollbackTransaction failed: %v", err)
	}
}
