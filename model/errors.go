package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when input contains a key that is not in the schema.
	ErrInvalidKey = errors.New("relval: invalid key")

	// ErrUnknownAttribute is returned when getting or setting an attribute outside the schema.
	ErrUnknownAttribute = errors.New("relval: unknown attribute")

	// ErrImmutableAttribute is returned when attempting to change the identifier.
	ErrImmutableAttribute = errors.New("relval: attribute is immutable")

	// ErrTypeMismatch is returned when a value's kind differs from the field kind.
	ErrTypeMismatch = errors.New("relval: type mismatch")

	// ErrValidationFailed is returned when a field validator rejects a value.
	ErrValidationFailed = errors.New("relval: validation failed")
)

// FieldError ties a model error to the schema and attribute it concerns.
type FieldError struct {
	Schema string
	Field  string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s", e.Err, e.Schema, e.Field)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(schema, field string, err error, detail string) error {
	return &FieldError{Schema: schema, Field: field, Err: err, Detail: detail}
}
