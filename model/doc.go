// Package model provides schema-bound documents for relval entities.
//
// A [Schema] declares the attribute set of one entity type: every [Field] has
// an explicit [Kind], a default value and an optional [Validator]. A
// [Document] is an instance of a schema that always holds exactly the schema
// keys with JSON-normalised values.
//
// # Mutation
//
// Documents change only through [Document.Set], which rejects unknown keys,
// writes to the identifier, values of the wrong kind and values refused by
// the field validator. A rejected write leaves the document unchanged.
//
// # Validators
//
// Validators are predicates attached per field:
//
//	model.Field{
//	    Name:     "energy",
//	    Kind:     model.Number,
//	    Default:  0.0,
//	    Validate: model.NonNegative(),
//	}
//
// Structured values can be checked with a JSON Schema fragment via [Rule].
//
// # Change detection
//
// [Diff] compares two JSON-like trees and returns a [Change] tree, or nil
// when they are equal.
//
// # Errors
//
//   - [ErrInvalidKey] - input carries a key outside the schema
//   - [ErrUnknownAttribute] - get/set of a key outside the schema
//   - [ErrImmutableAttribute] - write to the identifier once set
//   - [ErrTypeMismatch] - value kind differs from the field kind
//   - [ErrValidationFailed] - the field validator rejected the value
package model
