// Package memstore is an in-process store.Backend used by tests and the
// command line when no database is configured.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
)

// Backend holds collections in memory.
type Backend struct {
	cfg store.Config
	now func() time.Time

	mu          sync.Mutex
	collections map[string]*Collection
}

// New creates an empty in-memory backend.
func New(cfg store.Config) *Backend {
	cfg.Validate()
	return &Backend{
		cfg:         cfg,
		now:         time.Now,
		collections: make(map[string]*Collection),
	}
}

// Collection returns the named collection, creating it on first use.
func (b *Backend) Collection(_ context.Context, info store.Info) (store.Collection, error) {
	if info.Name == "" {
		return nil, fmt.Errorf("%w: empty name", store.ErrUnknownCollection)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[info.Name]; ok {
		return c, nil
	}
	c := &Collection{
		info: info,
		cfg:  b.cfg,
		now:  b.now,
		docs: make(map[string]store.Document),
	}
	b.collections[info.Name] = c
	return c, nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// Collection is one in-memory collection.
type Collection struct {
	info store.Info
	cfg  store.Config
	now  func() time.Time

	mu         sync.RWMutex
	docs       map[string]store.Document
	lastUpdate time.Time
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

// Get returns a copy of the stored document.
func (c *Collection) Get(_ context.Context, id string) (store.Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, false, nil
	}
	return copyDoc(doc), true, nil
}

// Exists reports whether id is stored.
func (c *Collection) Exists(_ context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.docs[id]
	return ok, nil
}

// Save upserts doc, enforcing the revision check when doc carries one.
func (c *Collection) Save(_ context.Context, doc store.Document) error {
	id, err := store.RequireID(doc)
	if err != nil {
		return err
	}
	normalized, err := store.Normalize(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored, exists := c.docs[id]
	current := store.Revision(stored)
	if err := store.CheckRevision(store.Revision(doc), current, exists); err != nil {
		return err
	}

	at := c.now()
	c.docs[id] = store.Stamp(normalized, id, current+1, at)
	c.lastUpdate = at
	return nil
}

// Delete removes doc by identifier.
func (c *Collection) Delete(_ context.Context, doc store.Document) error {
	id, err := store.RequireID(doc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; ok {
		delete(c.docs, id)
		c.lastUpdate = c.now()
	}
	return nil
}

// Query filters, sorts and pages the collection.
func (c *Collection) Query(_ context.Context, q store.Query) ([]store.Document, int, error) {
	criteria, err := store.Compile(q, c.info, c.cfg)
	if err != nil {
		return nil, 0, err
	}

	c.mu.RLock()
	all := make([]store.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		all = append(all, doc)
	}
	c.mu.RUnlock()

	page, total := criteria.Apply(all)
	out := make([]store.Document, len(page))
	for i, doc := range page {
		out[i] = copyDoc(doc)
	}
	return out, total, nil
}

// LastUpdate returns the time of the last save or delete.
func (c *Collection) LastUpdate(_ context.Context) (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate, nil
}

func copyDoc(doc store.Document) store.Document {
	out, _ := model.DeepCopy(doc).(map[string]any)
	return out
}
