package storage

import "errors"

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrInvalidID      = errors.New("storage: invalid consignment id")
	ErrIDMismatch     = errors.New("storage: consignment id mismatch")
	ErrImmutable      = errors.New("storage: immutable object mismatch")
	ErrInvalidContent = errors.New("storage: invalid consignment")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
