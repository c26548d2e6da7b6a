package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("relval: object not found")

	// ErrAlreadyExists is returned when creating a document with an identifier in use.
	ErrAlreadyExists = errors.New("relval: object already exists")

	// ErrEditNotAllowed is returned when an update changes a locked field.
	ErrEditNotAllowed = errors.New("relval: edit not allowed")

	// ErrDomainVeto is returned when an entity hook rejects an operation.
	ErrDomainVeto = errors.New("relval: operation rejected")

	// ErrSerialExhausted is returned when a group has used every serial.
	ErrSerialExhausted = errors.New("relval: serial numbers exhausted")
)

// VetoError is a hook rejection. It matches ErrDomainVeto.
type VetoError struct {
	Collection string
	ID         string
	Reason     string
}

func (e *VetoError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("relval: %s rejected: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("relval: %s %s rejected: %s", e.Collection, e.ID, e.Reason)
}

func (e *VetoError) Unwrap() error { return ErrDomainVeto }

// Vetof returns a VetoError with a formatted reason. The controller fills in
// the collection and identifier.
func Vetof(format string, args ...any) error {
	return &VetoError{Reason: fmt.Sprintf(format, args...)}
}

// EditError names the first locked path an update tried to change. It
// matches ErrEditNotAllowed.
type EditError struct {
	Collection string
	ID         string
	Path       string
}

func (e *EditError) Error() string {
	return fmt.Sprintf("relval: %s %s: editing %q is not allowed", e.Collection, e.ID, e.Path)
}

func (e *EditError) Unwrap() error { return ErrEditNotAllowed }
