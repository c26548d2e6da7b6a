package store

import "errors"

var (
	// ErrInvalidDocument is returned when a document has no identifier.
	ErrInvalidDocument = errors.New("relval: document has no identifier")

	// ErrConcurrentModification is returned when the optimistic revision check fails.
	ErrConcurrentModification = errors.New("relval: document was modified concurrently")

	// ErrInvalidFilter is returned when a query filter cannot be parsed.
	ErrInvalidFilter = errors.New("relval: invalid filter")

	// ErrUnknownCollection is returned by backends asked for a collection they do not serve.
	ErrUnknownCollection = errors.New("relval: unknown collection")
)
