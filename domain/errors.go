package domain

import "errors"

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a write lost to a concurrent modification or a
	// uniqueness constraint.
	ErrConflict = errors.New("conflicting write")
)
