package storage

import (
	"fmt"

	"xdao.co/consign/consignment"
)

// NamedStore associates a Store with a stable backend name.
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// ids to match the id computed from the content (otherwise ErrIDMismatch).
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = ReplicatingStore{}

// PutAll writes the consignment to all backends and returns the computed id
// and a map of backend name to the id that backend returned.
func (r ReplicatingStore) PutAll(armored []byte) (consignment.ID, map[string]consignment.ID, error) {
	want, canon, err := Canonical(armored)
	if err != nil {
		return consignment.ID{}, nil, err
	}
	if len(r.Backends) == 0 {
		return consignment.ID{}, nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}

	out := make(map[string]consignment.ID, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return consignment.ID{}, nil, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Put(canon)
		if err != nil {
			return consignment.ID{}, out, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if got != want {
			return consignment.ID{}, out, ErrIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingStore) Put(armored []byte) (consignment.ID, error) {
	id, _, err := r.PutAll(armored)
	return id, err
}

func (r ReplicatingStore) Get(id consignment.ID) ([]byte, error) {
	stores := make([]Store, len(r.Backends))
	for i, b := range r.Backends {
		stores[i] = b.Store
	}
	return getFirst(id, stores)
}

func (r ReplicatingStore) Has(id consignment.ID) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(id) {
			return true
		}
	}
	return false
}
