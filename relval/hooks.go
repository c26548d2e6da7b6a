package relval

import (
	"context"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

// entityHooks carries the checks shared by every entity: parent existence on
// create, configured rules on create and update, and dependents on delete.
type entityHooks struct {
	controller.BaseHooks
	sys        *System
	collection string
}

func (h entityHooks) CheckForCreate(ctx context.Context, d *model.Document) error {
	if err := h.checkParents(ctx, d); err != nil {
		return err
	}
	return h.sys.rules.Check(h.collection, d.JSON())
}

// checkParents vetoes d unless every parent it references exists.
func (h entityHooks) checkParents(ctx context.Context, d *model.Document) error {
	for _, rel := range h.sys.Registry.ParentsOf(h.collection) {
		id := d.String(rel.ParentKeyAttr)
		if id == "" && rel.Optional {
			continue
		}
		if err := h.requireExisting(ctx, rel.ParentCollection, id); err != nil {
			return err
		}
	}
	return nil
}

func (h entityHooks) CheckForUpdate(_ context.Context, _, incoming *model.Document, _ *model.Change) error {
	return h.sys.rules.Check(h.collection, incoming.JSON())
}

func (h entityHooks) CheckForDelete(ctx context.Context, d *model.Document) error {
	dep, found, err := h.sys.Registry.FindDependent(ctx, h.sys.open, h.collection, d.ID())
	if err != nil {
		return err
	}
	if found {
		return controller.Vetof("%s %s depends on it", dep.Collection, dep.ID)
	}
	return nil
}

// requireExisting vetoes when collection has no document id.
func (h entityHooks) requireExisting(ctx context.Context, collection, id string) error {
	if id == "" {
		return controller.Vetof("%s is required", singular(collection))
	}
	ok, err := h.sys.Exists(ctx, collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return controller.Vetof("%s %s does not exist", singular(collection), id)
	}
	return nil
}

// locked returns an open policy that forbids editing fields.
func locked(fields ...string) *controller.EditInfo {
	m := make(map[string]*controller.EditInfo, len(fields))
	for _, f := range fields {
		m[f] = controller.Editable(false)
	}
	return controller.Open(m)
}

// only returns a closed policy that allows editing fields.
func only(fields ...string) *controller.EditInfo {
	m := make(map[string]*controller.EditInfo, len(fields))
	for _, f := range fields {
		m[f] = controller.Editable(true)
	}
	return controller.Fields(m)
}

func singular(collection string) string {
	switch collection {
	case CollectionCampaigns:
		return "campaign"
	case CollectionSubcampaigns:
		return "subcampaign"
	case CollectionTickets:
		return "ticket"
	case CollectionRequests:
		return "request"
	}
	return collection
}
