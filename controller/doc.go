// Package controller orchestrates the lifecycle of schema-bound documents.
//
// A [Controller] combines a [model.Schema], a [store.Collection] and a
// [locker.Manager]. Every create, update, mutate and delete runs under the
// named lock of the affected document, records a history entry and consults
// the entity's [Hooks] before anything is written.
//
// # Updates
//
// Update compares the stored and incoming versions with [model.Diff]. An
// update that changes nothing returns the stored document and writes no
// history. Otherwise every changed path is checked against the entity's
// [EditInfo]; a forbidden path fails with an [*EditError].
//
// # Identifiers
//
// Entities whose identifier is derived use [SerialAllocator], which keeps the
// group lock held until the new document is stored so concurrent creators in
// the same group never share a serial.
//
// # Errors
//
//   - [ErrNotFound] - document does not exist
//   - [ErrAlreadyExists] - create with an identifier already in use
//   - [ErrEditNotAllowed] - update touches a locked field
//   - [ErrDomainVeto] - a hook rejected the operation
//   - [ErrSerialExhausted] - a serial group is full
package controller
