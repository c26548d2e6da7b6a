package relval

import (
	"context"
	"fmt"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

// Request statuses.
const (
	RequestNew        = "new"
	RequestApproved   = "approved"
	RequestSubmitting = "submitting"
	RequestSubmitted  = "submitted"
	RequestDone       = "done"
)

const inputRule = `{
	"type": "object",
	"required": ["dataset", "lumisection"],
	"additionalProperties": false,
	"properties": {
		"dataset": {"type": "string", "pattern": "^(/[^/]+/[^/]+/[^/]+)?$"},
		"lumisection": {"type": "object"}
	}
}`

// RequestSchema declares request documents.
var RequestSchema = model.NewSchema(CollectionRequests, "prepid",
	model.Field{Name: "prepid", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "subcampaign", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "ticket", Kind: model.String, Default: "", Validate: model.OptionalIdentifier()},
	model.Field{Name: "processing_string", Kind: model.String, Default: "", Validate: model.Pattern(processingStringPattern)},
	model.Field{Name: "input", Kind: model.Map, Default: map[string]any{"dataset": "", "lumisection": map[string]any{}}, Validate: model.Rule(inputRule)},
	model.Field{Name: "cmssw_release", Kind: model.String, Default: "", Validate: model.Pattern(releasePattern)},
	model.Field{Name: "energy", Kind: model.Number, Default: 0.0, Validate: model.NonNegative()},
	model.Field{Name: "memory", Kind: model.Number, Default: 2000.0, Validate: model.All(model.NonNegative(), model.Integer())},
	model.Field{Name: "priority", Kind: model.Number, Default: 110000.0, Validate: model.All(model.NonNegative(), model.Integer())},
	model.Field{Name: "sequences", Kind: model.List, Default: []any{}, Validate: validSequences},
	model.Field{Name: "status", Kind: model.String, Default: RequestNew, Validate: model.OneOf(RequestNew, RequestApproved, RequestSubmitting, RequestSubmitted, RequestDone)},
	model.Field{Name: "workflows", Kind: model.List, Default: []any{}, Validate: model.Each(model.NotEmpty())},
	model.Field{Name: "notes", Kind: model.String, Default: ""},
	model.Field{Name: model.HistoryField, Kind: model.List, Default: []any{}},
)

// RequestAliases are the external filter names of request attributes.
var RequestAliases = map[string]string{
	"dataset": "input.dataset",
}

// inherited are the attributes a new request copies from its subcampaign
// when the input leaves them out.
var inherited = []string{"cmssw_release", "energy", "memory", "sequences"}

// Requests manages request documents. Identifiers are allocated per
// subcampaign and processing string.
type Requests struct {
	*controller.Controller
	subcampaigns *Subcampaigns
}

type requestHooks struct {
	entityHooks
}

func (h requestHooks) CheckForCreate(ctx context.Context, d *model.Document) error {
	if err := h.checkParents(ctx, d); err != nil {
		return err
	}
	if err := h.checkDataset(d); err != nil {
		return err
	}
	return h.sys.rules.Check(h.collection, d.JSON())
}

func (h requestHooks) CheckForUpdate(ctx context.Context, stored, incoming *model.Document, change *model.Change) error {
	if err := h.checkDataset(incoming); err != nil {
		return err
	}
	return h.entityHooks.CheckForUpdate(ctx, stored, incoming, change)
}

func (h requestHooks) checkDataset(d *model.Document) error {
	dataset, _ := d.Map("input")["dataset"].(string)
	if pattern, ok := h.sys.blacklist.Match(dataset); ok {
		return controller.Vetof("dataset %s is blacklisted by %q", dataset, pattern)
	}
	return nil
}

func (requestHooks) CheckForDelete(_ context.Context, d *model.Document) error {
	if status := d.String("status"); status != RequestNew {
		return controller.Vetof("request is %s, only new requests can be deleted", status)
	}
	return nil
}

func (requestHooks) EditingInfo(stored *model.Document) *controller.EditInfo {
	if stored.String("status") != RequestNew {
		return only("notes", "priority")
	}
	return locked("prepid", model.HistoryField, "subcampaign", "ticket", "processing_string", "status", "workflows")
}

// Create stores a new request as `<subcampaign>[-<processing string>]-NNNNN`.
// Release, energy, memory and sequences default to the subcampaign's.
func (r *Requests) Create(ctx context.Context, input model.Object) (model.Object, error) {
	sub, err := groupPart(CollectionRequests, "subcampaign", input, model.IDPattern)
	if err != nil {
		return nil, err
	}
	ps, err := groupPart(CollectionRequests, "processing_string", input, processingStringPattern)
	if err != nil {
		return nil, err
	}
	if sub == "" {
		return nil, &controller.VetoError{Collection: CollectionRequests, Reason: "subcampaign is required"}
	}
	subcampaign, ok, err := r.subcampaigns.Document(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &controller.VetoError{Collection: CollectionRequests, Reason: fmt.Sprintf("subcampaign %s does not exist", sub)}
	}

	withDefaults := make(model.Object, len(input)+len(inherited))
	for _, key := range inherited {
		v, _ := subcampaign.Get(key)
		withDefaults[key] = v
	}
	for k, v := range input {
		withDefaults[k] = v
	}

	group := sub
	if ps != "" {
		group += "-" + ps
	}
	return r.CreateWithSerial(ctx, group, withDefaults)
}

// Approve moves a new request to approved.
func (r *Requests) Approve(ctx context.Context, id string) (model.Object, error) {
	return r.transition(ctx, id, "approve", RequestNew, RequestApproved)
}

// Reset moves an approved request back to new.
func (r *Requests) Reset(ctx context.Context, id string) (model.Object, error) {
	return r.transition(ctx, id, "reset", RequestApproved, RequestNew)
}

// Complete moves a submitted request to done.
func (r *Requests) Complete(ctx context.Context, id string) (model.Object, error) {
	return r.transition(ctx, id, "complete", RequestSubmitted, RequestDone)
}

func (r *Requests) transition(ctx context.Context, id, action, from, to string) (model.Object, error) {
	return r.Mutate(ctx, id, action, func(d *model.Document) error {
		if status := d.String("status"); status != from {
			return controller.Vetof("cannot %s a %s request, expected %s", action, status, from)
		}
		_, err := d.Set("status", to)
		return err
	})
}
