package store

import (
	"context"
	"fmt"
)

// Relationship defines a reference from child documents to a parent.
type Relationship struct {
	// ParentCollection is the referenced collection (e.g., "campaigns").
	ParentCollection string

	// ChildCollection is the referencing collection (e.g., "subcampaigns").
	ChildCollection string

	// ParentKeyAttr is the child attribute holding the parent identifier (e.g., "campaign").
	ParentKeyAttr string

	// Optional children may leave ParentKeyAttr empty.
	Optional bool
}

// Registry holds all known relationships for referential checks.
type Registry struct {
	relationships []Relationship
	byParent      map[string][]Relationship
	byChild       map[string][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byParent:      make(map[string][]Relationship),
		byChild:       make(map[string][]Relationship),
	}
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentCollection] = append(r.byParent[rel.ParentCollection], rel)
	r.byChild[rel.ChildCollection] = append(r.byChild[rel.ChildCollection], rel)
}

// ChildrenOf returns all relationships where collection is the parent.
func (r *Registry) ChildrenOf(collection string) []Relationship {
	return r.byParent[collection]
}

// ParentsOf returns all relationships where collection is the child.
func (r *Registry) ParentsOf(collection string) []Relationship {
	return r.byChild[collection]
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// Opener resolves a collection by name.
type Opener func(name string) (Collection, bool)

// Dependent identifies one child document found by FindDependent.
type Dependent struct {
	Collection string
	ID         string
}

// FindDependent returns the first child document referencing id through
// any relationship of parentCollection.
func (r *Registry) FindDependent(ctx context.Context, open Opener, parentCollection, id string) (Dependent, bool, error) {
	for _, rel := range r.ChildrenOf(parentCollection) {
		child, ok := open(rel.ChildCollection)
		if !ok {
			return Dependent{}, false, fmt.Errorf("%w: %s", ErrUnknownCollection, rel.ChildCollection)
		}
		docs, total, err := child.Query(ctx, Query{
			Filter: rel.ParentKeyAttr + "=" + id,
			Limit:  1,
		})
		if err != nil {
			return Dependent{}, false, fmt.Errorf("query %s: %w", rel.ChildCollection, err)
		}
		if total > 0 && len(docs) > 0 {
			return Dependent{Collection: rel.ChildCollection, ID: ID(docs[0])}, true, nil
		}
	}
	return Dependent{}, false, nil
}
