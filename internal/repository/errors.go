package repository

import "errors"

var (
	// ErrConflict means a guarded update found the row in a different state
	// than expected, e.g. a concurrent selection won first.
	ErrConflict = errors.New("conflicting concurrent update")
	// ErrDuplicate means a uniqueness constraint rejected the write, e.g. a
	// repeated violation fingerprint or a second assignment of the same
	// contractor.
	ErrDuplicate = errors.New("duplicate row")
)
