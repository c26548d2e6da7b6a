// Package store defines the document store contract used by relval controllers.
//
// A [Collection] persists JSON documents keyed by their `_id` metadata
// attribute. Backends live in sub-packages:
//
//   - memstore: in-process maps, for tests and single-binary use
//   - sqlstore: SQLite or Postgres, one JSON column per document
//   - dynamo: one DynamoDB table per collection
//
// # Metadata
//
// Stored documents carry `_id`, `_rev` and `_updated` next to the entity
// attributes. A save of a document with `_rev > 0` is conditional on the
// stored revision and fails with [ErrConcurrentModification] when another
// writer got there first.
//
// # Query language
//
// Filters are flat `key=value` clauses joined by `&&`:
//
//	prepid=Run3-*&&energy=13.6&&status=!done
//
// Values may carry a `*` wildcard or start with `<`, `>` or `!`. Keys whose
// kind is numeric or boolean in the collection [Info] are cast before
// matching, and aliases are rewritten to their storage path first.
//
// # Errors
//
//   - [ErrInvalidDocument] - document has no identifier
//   - [ErrConcurrentModification] - optimistic revision check failed
//   - [ErrInvalidFilter] - filter expression could not be parsed
package store
