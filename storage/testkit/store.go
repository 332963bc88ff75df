package testkit

import (
	"bytes"
	"testing"

	"xdao.co/consign/consignment"
	"xdao.co/consign/ops"
	"xdao.co/consign/storage"
)

// NewStore constructs a fresh, empty store instance for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// Sample returns a small armored contract consignment. Different labels give
// different consignment ids.
func Sample(t testing.TB, label string) (consignment.ID, []byte) {
	t.Helper()
	schema := ops.Schema{Name: "StoreConformance", Rules: []byte("rules")}
	genesis := ops.Genesis{
		SchemaID: schema.SchemaID(),
		Metadata: []byte(label),
		Assignments: []ops.Assignment{{
			Type:  10,
			Seal:  ops.RevealedSeal(ops.GraphSeal{Method: ops.TapretFirst, Vout: 1, Blinding: 42}),
			State: ops.FungibleState(ops.RevealedValue{Amount: 1}),
		}},
	}
	c, err := consignment.NewContract(consignment.Contents{Genesis: genesis, Schema: schema})
	if err != nil {
		t.Fatalf("NewContract: %v", err)
	}
	armored, err := c.Armor()
	if err != nil {
		t.Fatalf("Armor: %v", err)
	}
	return c.ConsignmentID(), armored
}

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		wantID, want := Sample(t, "round trip")

		id, err := s.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put id mismatch: got %s want %s", id, wantID)
		}

		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if err := storage.Verify(id, got); err != nil {
			t.Fatalf("Get returned bytes not matching requested id: %v", err)
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		_, b := Sample(t, "same bytes")

		id1, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		id, b := Sample(t, "missing")

		if s.Has(id) {
			t.Fatalf("Has returned true for missing id")
		}
		if _, err := s.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := s.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectInvalidContent", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Put([]byte("not a consignment")); err == nil {
			t.Fatalf("Put accepted non-consignment bytes")
		}
	})

	t.Run("RejectZeroID", func(t *testing.T) {
		s := newStore(t)
		var zero consignment.ID
		if s.Has(zero) {
			t.Fatalf("Has should be false for the zero id")
		}
		if _, err := s.Get(zero); err == nil {
			t.Fatalf("Get should fail for the zero id")
		}
	})
}
