package storage_test

import (
	"errors"
	"testing"

	"xdao.co/consign/consignment"
	"xdao.co/consign/storage"
	"xdao.co/consign/storage/localfs"
	"xdao.co/consign/storage/testkit"
)

func newLocal(t *testing.T) *localfs.Store {
	t.Helper()
	s, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return s
}

// brokenStore fails every call with a non-NotFound error.
type brokenStore struct{}

var errBroken = errors.New("broken")

func (brokenStore) Put([]byte) (consignment.ID, error) { return consignment.ID{}, errBroken }
func (brokenStore) Get(consignment.ID) ([]byte, error) { return nil, errBroken }
func (brokenStore) Has(consignment.ID) bool            { return false }

// liarStore returns a fixed id from Put.
type liarStore struct{ storage.Store }

func (l liarStore) Put(b []byte) (consignment.ID, error) {
	if _, err := l.Store.Put(b); err != nil {
		return consignment.ID{}, err
	}
	return consignment.ID{0xff}, nil
}

func TestCanonical(t *testing.T) {
	id, armored := testkit.Sample(t, "canonical")
	got, canon, err := storage.Canonical(armored)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if got != id || string(canon) != string(armored) {
		t.Fatalf("Canonical changed a canonical consignment")
	}
	if _, _, err := storage.Canonical([]byte("junk")); !errors.Is(err, storage.ErrInvalidContent) {
		t.Fatalf("Canonical(junk) = %v, want ErrInvalidContent", err)
	}
	other, _ := testkit.Sample(t, "other")
	if err := storage.Verify(other, armored); !errors.Is(err, storage.ErrIDMismatch) {
		t.Fatalf("Verify(other) = %v, want ErrIDMismatch", err)
	}
}

func TestMultiStore_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		return storage.MultiStore{Stores: []storage.Store{newLocal(t), newLocal(t)}}
	})
}

func TestMultiStore_FallbackOrder(t *testing.T) {
	first, second := newLocal(t), newLocal(t)
	_, b := testkit.Sample(t, "fallback")
	id, err := second.Put(b)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiStore{Stores: []storage.Store{first, second}}
	if _, err := m.Get(id); err != nil {
		t.Fatalf("Get should fall back to the second store: %v", err)
	}
	if !m.Has(id) {
		t.Fatalf("Has should see the second store")
	}

	m = storage.MultiStore{Stores: []storage.Store{brokenStore{}, second}}
	if _, err := m.Get(id); !errors.Is(err, errBroken) {
		t.Fatalf("Get = %v, want the first store's error", err)
	}
	if _, err := (storage.MultiStore{}).Put(b); err == nil {
		t.Fatalf("Put on empty MultiStore succeeded")
	}
}

func TestReplicatingStore(t *testing.T) {
	a, b := newLocal(t), newLocal(t)
	r := storage.ReplicatingStore{Backends: []storage.NamedStore{{Name: "a", Store: a}, {Name: "b", Store: b}}}
	id, armored := testkit.Sample(t, "replicated")

	got, per, err := r.PutAll(armored)
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if got != id || per["a"] != id || per["b"] != id {
		t.Fatalf("PutAll ids = %s %v, want %s everywhere", got, per, id)
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatalf("consignment not written to every backend")
	}

	r = storage.ReplicatingStore{Backends: []storage.NamedStore{{Name: "a", Store: a}, {Name: "liar", Store: liarStore{b}}}}
	if _, err := r.Put(armored); !errors.Is(err, storage.ErrIDMismatch) {
		t.Fatalf("Put with lying backend = %v, want ErrIDMismatch", err)
	}
}
