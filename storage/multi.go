package storage

import (
	"errors"

	"xdao.co/consign/consignment"
)

// MultiStore provides deterministic, ordered fallback across multiple stores.
//
// Lookup order is the slice order in Stores; callers MUST supply a fixed order.
//
// Put writes only to the first store.
type MultiStore struct {
	Stores []Store
}

var _ Store = MultiStore{}

func (m MultiStore) Put(armored []byte) (consignment.ID, error) {
	if len(m.Stores) == 0 {
		return consignment.ID{}, errors.New("storage: MultiStore has no stores")
	}
	return m.Stores[0].Put(armored)
}

func (m MultiStore) Get(id consignment.ID) ([]byte, error) {
	return getFirst(id, m.Stores)
}

func (m MultiStore) Has(id consignment.ID) bool {
	for _, s := range m.Stores {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// getFirst returns the first hit. ErrNotFound from one store moves on to the
// next; any other error stops the lookup.
func getFirst(id consignment.ID, stores []Store) ([]byte, error) {
	if !Defined(id) {
		return nil, ErrInvalidID
	}
	for _, s := range stores {
		if s == nil {
			continue
		}
		b, err := s.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}
