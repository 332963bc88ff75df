// Package resolver provides witness resolvers: implementations of
// validation.ResolveWitness backed by a fixed table, ordered fallback across
// several resolvers, caching and retry.
package resolver

import (
	"context"
	"errors"
	"maps"
	"sync"

	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

func unknown(id ops.WitnessID) error {
	return &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
}

// IsConnection reports whether err is a connection-class resolver error, the
// only kind worth retrying.
func IsConnection(err error) bool {
	var e *validation.ResolverError
	return errors.As(err, &e) && e.Kind == validation.ResolverConnection
}

// Entry is what a Static resolver knows about one witness. Tx may be empty
// when only the order is known.
type Entry struct {
	Status ops.WitnessStatus
	Tx     []byte
}

// Static resolves witnesses from an in-memory table. It is safe for
// concurrent use.
type Static struct {
	mu      sync.RWMutex
	entries map[ops.WitnessID]Entry
}

var _ validation.ResolveWitness = (*Static)(nil)

func NewStatic(entries map[ops.WitnessID]Entry) *Static {
	s := &Static{entries: make(map[ops.WitnessID]Entry, len(entries))}
	for id, e := range entries {
		s.Set(id, e)
	}
	return s
}

func (s *Static) Set(id ops.WitnessID, e Entry) {
	e.Tx = append([]byte(nil), e.Tx...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[ops.WitnessID]Entry)
	}
	s.entries[id] = e
}

// Entries returns a copy of the table.
func (s *Static) Entries() map[ops.WitnessID]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.entries)
}

func (s *Static) ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || len(e.Tx) == 0 {
		return nil, unknown(id)
	}
	return &ops.PubWitness{ID: id, Tx: append([]byte(nil), e.Tx...)}, nil
}

func (s *Static) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	if err := ctx.Err(); err != nil {
		return ops.WitnessStatus{}, err
	}
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return ops.WitnessStatus{}, unknown(id)
	}
	return e.Status, nil
}

// Multi provides deterministic, ordered fallback across resolvers.
//
// Resolvers are consulted in slice order. A resolver that does not know a
// witness passes to the next one; any other error stops the lookup.
type Multi struct {
	Resolvers []validation.ResolveWitness
}

var _ validation.ResolveWitness = Multi{}

func (m Multi) ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	for _, r := range m.Resolvers {
		w, err := r.ResolvePubWitness(ctx, id)
		if err == nil {
			return w, nil
		}
		if !validation.IsUnknownWitness(err) {
			return nil, err
		}
	}
	return nil, unknown(id)
}

func (m Multi) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	for _, r := range m.Resolvers {
		s, err := r.ResolvePubWitnessOrd(ctx, id)
		if err == nil {
			return s, nil
		}
		if !validation.IsUnknownWitness(err) {
			return ops.WitnessStatus{}, err
		}
	}
	return ops.WitnessStatus{}, unknown(id)
}
