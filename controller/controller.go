package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacentio/relval/internal/metrics"
	"github.com/jacentio/relval/locker"
	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
)

// Controller manages the documents of one schema.
type Controller struct {
	schema  *model.Schema
	coll    store.Collection
	locks   *locker.Manager
	hooks   Hooks
	serial  *SerialAllocator
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Controller. hooks, logger and m may be nil. It panics when
// the schema has no history field.
func New(schema *model.Schema, coll store.Collection, locks *locker.Manager, hooks Hooks, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if !schema.Has(model.HistoryField) {
		panic(fmt.Sprintf("controller: schema %s has no %s field", schema.Name(), model.HistoryField))
	}
	if hooks == nil {
		hooks = BaseHooks{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		schema:  schema,
		coll:    coll,
		locks:   locks,
		hooks:   hooks,
		logger:  logger.With("collection", schema.Name()),
		metrics: m,
		now:     time.Now,
	}
	c.serial = NewSerialAllocator(coll, locks, schema.IDField())
	return c
}

// Schema returns the managed schema.
func (c *Controller) Schema() *model.Schema { return c.schema }

// Collection returns the backing store collection.
func (c *Controller) Collection() store.Collection { return c.coll }

// LockKey returns the named lock guarding the document id.
func (c *Controller) LockKey(id string) string {
	return c.schema.Name() + "-" + id
}

// Acquire takes the lock of document id. Operations called with the
// returned context reuse the lock.
func (c *Controller) Acquire(ctx context.Context, id string) (context.Context, func(), error) {
	return c.locks.Acquire(ctx, c.LockKey(id))
}

// Create validates input and stores it as a new document. A client supplied
// revision or history is ignored. It returns the stored document.
func (c *Controller) Create(ctx context.Context, input model.Object) (out model.Object, err error) {
	defer c.observe("create", time.Now(), &err)

	d, err := model.New(c.schema, input)
	if err != nil {
		return nil, err
	}
	id, err := c.requireID(d)
	if err != nil {
		return nil, err
	}
	d.SetRevision(0)
	if _, err := d.Set(model.HistoryField, []any{}); err != nil {
		return nil, err
	}

	ctx, release, err := c.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	exists, err := c.coll.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check %s %s: %w", c.schema.Name(), id, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s %s", ErrAlreadyExists, c.schema.Name(), id)
	}

	if err := d.AddHistory(model.ActionCreate, "", ActorFrom(ctx), c.now()); err != nil {
		return nil, err
	}
	if err := c.hooks.CheckForCreate(ctx, d); err != nil {
		return nil, c.veto(d, err)
	}
	if err := c.save(ctx, d); err != nil {
		return nil, err
	}
	c.logger.Info("created", "id", id, "actor", ActorFrom(ctx))
	return c.reload(ctx, id)
}

// CreateWithSerial allocates the next identifier of group, assigns it to
// input and creates the document while the group lock is held.
func (c *Controller) CreateWithSerial(ctx context.Context, group string, input model.Object) (model.Object, error) {
	var out model.Object
	_, err := c.serial.Allocate(ctx, group, func(ctx context.Context, id string) error {
		withID := make(model.Object, len(input)+1)
		for k, v := range input {
			withID[k] = v
		}
		withID[c.schema.IDField()] = id
		created, err := c.Create(ctx, withID)
		out = created
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the stored document id. A missing document is reported
// through the boolean.
func (c *Controller) Get(ctx context.Context, id string) (out model.Object, found bool, err error) {
	defer c.observe("get", time.Now(), &err)

	d, ok, err := c.Document(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return output(d), true, nil
}

// Document returns the stored document id as a model instance.
func (c *Controller) Document(ctx context.Context, id string) (*model.Document, bool, error) {
	raw, ok, err := c.coll.Get(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("get %s %s: %w", c.schema.Name(), id, err)
	}
	if !ok {
		return nil, false, nil
	}
	d, err := model.New(c.schema, raw)
	if err != nil {
		return nil, false, fmt.Errorf("load %s %s: %w", c.schema.Name(), id, err)
	}
	return d, true, nil
}

// Exists reports whether document id is stored.
func (c *Controller) Exists(ctx context.Context, id string) (found bool, err error) {
	defer c.observe("exists", time.Now(), &err)
	return c.coll.Exists(ctx, id)
}

// Update replaces a stored document with input. Stored history is kept and
// client history discarded. An update that changes nothing returns the
// stored document without writing. When input carries `_rev` it must match
// the stored revision.
func (c *Controller) Update(ctx context.Context, input model.Object) (out model.Object, err error) {
	defer c.observe("update", time.Now(), &err)

	incoming, err := model.New(c.schema, input)
	if err != nil {
		return nil, err
	}
	id, err := c.requireID(incoming)
	if err != nil {
		return nil, err
	}

	ctx, release, err := c.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	stored, err := c.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	if rev := incoming.Revision(); rev > 0 && rev != stored.Revision() {
		return nil, fmt.Errorf("%w: %s %s is at revision %d, update was based on %d",
			store.ErrConcurrentModification, c.schema.Name(), id, stored.Revision(), rev)
	}
	if _, err := incoming.Set(model.HistoryField, stored.List(model.HistoryField)); err != nil {
		return nil, err
	}

	if err := c.hooks.BeforeUpdate(ctx, stored, incoming); err != nil {
		return nil, c.veto(stored, err)
	}
	change := model.Diff(stored.JSON(), incoming.JSON())
	if change == nil {
		c.logger.Debug("update changed nothing", "id", id)
		return output(stored), nil
	}

	info := c.hooks.EditingInfo(stored)
	if info == nil {
		info = DefaultEditInfo(c.schema)
	}
	if path, ok := info.Check(change); !ok {
		return nil, &EditError{Collection: c.schema.Name(), ID: id, Path: path}
	}
	if err := c.hooks.CheckForUpdate(ctx, stored, incoming, change); err != nil {
		return nil, c.veto(stored, err)
	}

	if err := incoming.AddHistory(model.ActionUpdate, change.Describe(), ActorFrom(ctx), c.now()); err != nil {
		return nil, err
	}
	incoming.SetRevision(stored.Revision())
	if err := c.save(ctx, incoming); err != nil {
		return nil, err
	}
	c.logger.Info("updated", "id", id, "actor", ActorFrom(ctx), "paths", change.Paths())
	return c.reload(ctx, id)
}

// Mutate applies fn to the stored document id under its lock and saves the
// result with a history entry named action. The edit policy is not
// consulted. When fn returns an error or changes nothing, nothing is written.
func (c *Controller) Mutate(ctx context.Context, id, action string, fn func(d *model.Document) error) (out model.Object, err error) {
	defer c.observe("mutate", time.Now(), &err)

	ctx, release, err := c.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := c.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	before := d.JSON()
	if err := fn(d); err != nil {
		return nil, c.veto(d, err)
	}
	change := model.Diff(before, d.JSON())
	if change == nil {
		return output(d), nil
	}
	if err := d.AddHistory(action, change.Describe(), ActorFrom(ctx), c.now()); err != nil {
		return nil, err
	}
	if err := c.save(ctx, d); err != nil {
		return nil, err
	}
	c.logger.Info("mutated", "id", id, "action", action, "actor", ActorFrom(ctx), "paths", change.Paths())
	return c.reload(ctx, id)
}

// Delete removes document id after the delete hooks accepted it.
func (c *Controller) Delete(ctx context.Context, id string) (err error) {
	defer c.observe("delete", time.Now(), &err)

	ctx, release, err := c.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	d, err := c.mustLoad(ctx, id)
	if err != nil {
		return err
	}
	if err := c.hooks.BeforeDelete(ctx, d); err != nil {
		return c.veto(d, err)
	}
	if err := c.hooks.CheckForDelete(ctx, d); err != nil {
		return c.veto(d, err)
	}
	if err := c.coll.Delete(ctx, store.Document{model.MetaID: id}); err != nil {
		return fmt.Errorf("delete %s %s: %w", c.schema.Name(), id, err)
	}
	c.logger.Info("deleted", "id", id, "actor", ActorFrom(ctx))
	return nil
}

// Query returns one page of documents and the total match count. Results
// carry `_rev` but no other storage metadata.
func (c *Controller) Query(ctx context.Context, q store.Query) (page []model.Object, total int, err error) {
	defer c.observe("query", time.Now(), &err)

	docs, total, err := c.coll.Query(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	page = make([]model.Object, 0, len(docs))
	for _, doc := range docs {
		o := store.Strip(doc)
		o[model.MetaRevision] = float64(store.Revision(doc))
		page = append(page, o)
	}
	return page, total, nil
}

func (c *Controller) requireID(d *model.Document) (string, error) {
	id := d.ID()
	if id == "" {
		return "", &model.FieldError{Schema: c.schema.Name(), Field: c.schema.IDField(), Err: model.ErrValidationFailed, Detail: "identifier is required"}
	}
	return id, nil
}

func (c *Controller) mustLoad(ctx context.Context, id string) (*model.Document, error) {
	d, ok, err := c.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.schema.Name(), id)
	}
	return d, nil
}

func (c *Controller) reload(ctx context.Context, id string) (model.Object, error) {
	d, err := c.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	return output(d), nil
}

func (c *Controller) save(ctx context.Context, d *model.Document) error {
	doc := d.JSON()
	doc[model.MetaID] = d.ID()
	if rev := d.Revision(); rev > 0 {
		doc[model.MetaRevision] = float64(rev)
	}
	if err := c.coll.Save(ctx, doc); err != nil {
		return fmt.Errorf("save %s %s: %w", c.schema.Name(), d.ID(), err)
	}
	return nil
}

// veto fills in the document of a hook rejection.
func (c *Controller) veto(d *model.Document, err error) error {
	var v *VetoError
	if errors.As(err, &v) {
		if v.Collection == "" {
			v.Collection = c.schema.Name()
		}
		if v.ID == "" {
			v.ID = d.ID()
		}
	}
	return err
}

func (c *Controller) observe(op string, start time.Time, err *error) {
	c.metrics.ObserveOperation(c.schema.Name(), op, start, *err)
	if *err != nil {
		c.logger.Debug(op+" failed", "error", *err)
	}
}

func output(d *model.Document) model.Object {
	o := d.JSON()
	o[model.MetaRevision] = float64(d.Revision())
	return o
}
