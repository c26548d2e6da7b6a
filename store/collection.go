package store

import (
	"context"
	"time"

	"github.com/jacentio/relval/model"
)

// Document is a stored JSON document including metadata keys.
type Document = map[string]any

// Info describes a collection to a backend.
type Info struct {
	// Name is the collection name (e.g., "requests").
	Name string

	// Kinds tags attribute paths with their JSON kind so filter values can be
	// cast. Dotted paths address nested attributes.
	Kinds map[string]model.Kind

	// Aliases rewrites external filter keys into storage paths
	// (e.g., "dataset" -> "input.dataset").
	Aliases map[string]string
}

// InfoFor derives collection info from a model schema.
func InfoFor(schema *model.Schema, aliases map[string]string, extra map[string]model.Kind) Info {
	kinds := schema.Kinds()
	for path, k := range extra {
		kinds[path] = k
	}
	if _, ok := kinds[model.MetaID]; !ok {
		kinds[model.MetaID] = model.String
	}
	kinds[model.MetaRevision] = model.Number
	kinds[model.MetaUpdated] = model.Number
	return Info{Name: schema.Name(), Kinds: kinds, Aliases: aliases}
}

// Collection persists documents of one entity type.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Get returns the document stored under id. A missing document is
	// reported through the boolean, not as an error.
	Get(ctx context.Context, id string) (Document, bool, error)

	// Exists reports whether a document is stored under id.
	Exists(ctx context.Context, id string) (bool, error)

	// Save upserts doc keyed by its `_id`, stamping revision and update time.
	Save(ctx context.Context, doc Document) error

	// Delete removes doc by its `_id`. Deleting a missing document is a no-op.
	Delete(ctx context.Context, doc Document) error

	// Query returns one page of matching documents and the total match count.
	Query(ctx context.Context, q Query) ([]Document, int, error)

	// LastUpdate returns the time of the last save or delete.
	LastUpdate(ctx context.Context) (time.Time, error)
}

// Backend opens collections on one storage system.
type Backend interface {
	// Collection returns the collection described by info, creating
	// backing structures when needed.
	Collection(ctx context.Context, info Info) (Collection, error)

	// Close releases backend resources.
	Close() error
}
