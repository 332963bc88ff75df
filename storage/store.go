package storage

import (
	"fmt"

	"xdao.co/consign/consignment"
)

// Store is a content-addressed store of armored consignments.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - Ids MUST be derived from the stored consignment, never supplied by the caller.
// - Get MUST return ErrNotFound when the id is absent.
type Store interface {
	Put(armored []byte) (consignment.ID, error)
	Get(id consignment.ID) ([]byte, error)
	Has(id consignment.ID) bool
}

// Canonical parses armored consignment text and returns its id together with
// the canonical armored rendering, which is what stores keep.
func Canonical(armored []byte) (consignment.ID, []byte, error) {
	c, err := consignment.Parse(armored)
	if err != nil {
		return consignment.ID{}, nil, fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	out, err := c.Armor()
	if err != nil {
		return consignment.ID{}, nil, fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	return c.ConsignmentID(), out, nil
}

// Verify checks that armored holds the consignment named id.
func Verify(id consignment.ID, armored []byte) error {
	got, _, err := Canonical(armored)
	if err != nil {
		return err
	}
	if got != id {
		return ErrIDMismatch
	}
	return nil
}

// Defined reports whether id is usable as a key. The zero id never names a
// consignment.
func Defined(id consignment.ID) bool { return id != consignment.ID{} }
