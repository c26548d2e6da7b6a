package controller

import (
	"context"

	"github.com/jacentio/relval/model"
)

// Hooks are the entity-specific extension points of a Controller. A hook
// rejects an operation by returning an error, usually from Vetof.
type Hooks interface {
	// CheckForCreate runs under the lock before a new document is stored.
	CheckForCreate(ctx context.Context, d *model.Document) error

	// BeforeUpdate may adjust incoming before it is compared with stored.
	BeforeUpdate(ctx context.Context, stored, incoming *model.Document) error

	// EditingInfo returns the edit policy for the stored document.
	EditingInfo(stored *model.Document) *EditInfo

	// CheckForUpdate runs after the edit policy accepted change.
	CheckForUpdate(ctx context.Context, stored, incoming *model.Document, change *model.Change) error

	// BeforeDelete runs under the lock before CheckForDelete.
	BeforeDelete(ctx context.Context, d *model.Document) error

	// CheckForDelete runs before the document is removed.
	CheckForDelete(ctx context.Context, d *model.Document) error
}

// BaseHooks accepts every operation and applies DefaultEditInfo. Entity
// hooks embed it and override what they need.
type BaseHooks struct{}

var _ Hooks = BaseHooks{}

func (BaseHooks) CheckForCreate(context.Context, *model.Document) error { return nil }

func (BaseHooks) BeforeUpdate(context.Context, *model.Document, *model.Document) error { return nil }

func (BaseHooks) EditingInfo(stored *model.Document) *EditInfo {
	return DefaultEditInfo(stored.Schema())
}

func (BaseHooks) CheckForUpdate(context.Context, *model.Document, *model.Document, *model.Change) error {
	return nil
}

func (BaseHooks) BeforeDelete(context.Context, *model.Document) error { return nil }

func (BaseHooks) CheckForDelete(context.Context, *model.Document) error { return nil }
