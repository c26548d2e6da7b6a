package relval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

// Ticket statuses.
const (
	TicketNew  = "new"
	TicketDone = "done"
)

var (
	processingStringPattern = regexp.MustCompile(`^[A-Za-z0-9_]{0,100}$`)
	datasetPattern          = regexp.MustCompile(`^/[^/]+/[^/]+/[^/]+$`)
)

// TicketSchema declares ticket documents.
var TicketSchema = model.NewSchema(CollectionTickets, "prepid",
	model.Field{Name: "prepid", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "subcampaign", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "processing_string", Kind: model.String, Default: "", Validate: model.Pattern(processingStringPattern)},
	model.Field{Name: "input_datasets", Kind: model.List, Default: []any{}, Validate: model.Each(model.Pattern(datasetPattern))},
	model.Field{Name: "priority", Kind: model.Number, Default: 110000.0, Validate: model.All(model.NonNegative(), model.Integer())},
	model.Field{Name: "status", Kind: model.String, Default: TicketNew, Validate: model.OneOf(TicketNew, TicketDone)},
	model.Field{Name: "created_requests", Kind: model.List, Default: []any{}, Validate: model.Each(model.Identifier())},
	model.Field{Name: "notes", Kind: model.String, Default: ""},
	model.Field{Name: model.HistoryField, Kind: model.List, Default: []any{}},
)

// Tickets manages ticket documents. Identifiers are allocated per
// subcampaign.
type Tickets struct {
	*controller.Controller
	requests *Requests
	logger   *slog.Logger
}

type ticketHooks struct {
	entityHooks
}

// CheckForCreate also requires the campaign of the subcampaign.
func (h ticketHooks) CheckForCreate(ctx context.Context, d *model.Document) error {
	if err := h.checkParents(ctx, d); err != nil {
		return err
	}
	sub, ok, err := h.sys.Subcampaigns.Document(ctx, d.String("subcampaign"))
	if err != nil {
		return err
	}
	if !ok {
		return controller.Vetof("subcampaign %s does not exist", d.String("subcampaign"))
	}
	if err := h.requireExisting(ctx, CollectionCampaigns, sub.String("campaign")); err != nil {
		return err
	}
	return h.sys.rules.Check(h.collection, d.JSON())
}

func (ticketHooks) EditingInfo(stored *model.Document) *controller.EditInfo {
	if stored.String("status") == TicketDone {
		return only("notes")
	}
	return locked("prepid", model.HistoryField, "subcampaign", "status", "created_requests")
}

// Create stores a new ticket as `<subcampaign>-NNNNN`. A client supplied
// prepid is replaced.
func (t *Tickets) Create(ctx context.Context, input model.Object) (model.Object, error) {
	sub, err := groupPart(CollectionTickets, "subcampaign", input, model.IDPattern)
	if err != nil {
		return nil, err
	}
	if sub == "" {
		return nil, &controller.VetoError{Collection: CollectionTickets, Reason: "subcampaign is required"}
	}
	return t.CreateWithSerial(ctx, sub, input)
}

// CreateRequests resolves a new ticket into one request per input dataset
// and marks it done. When any request cannot be created the requests
// created so far are deleted in reverse order and the ticket is left
// unchanged.
func (t *Tickets) CreateRequests(ctx context.Context, id string) ([]string, error) {
	ctx, release, err := t.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, ok, err := t.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ticket %s", controller.ErrNotFound, id)
	}
	if status := ticket.String("status"); status != TicketNew {
		return nil, &controller.VetoError{Collection: CollectionTickets, ID: id, Reason: fmt.Sprintf("ticket is %s, expected %s", status, TicketNew)}
	}

	var created []string
	for _, dataset := range ticket.Strings("input_datasets") {
		out, err := t.requests.Create(ctx, model.Object{
			"subcampaign":       ticket.String("subcampaign"),
			"ticket":            id,
			"processing_string": ticket.String("processing_string"),
			"priority":          ticket.Number("priority"),
			"input":             map[string]any{"dataset": dataset, "lumisection": map[string]any{}},
		})
		if err != nil {
			t.rollback(ctx, id, created)
			return nil, fmt.Errorf("create request for %s: %w", dataset, err)
		}
		created = append(created, out["prepid"].(string))
	}

	_, err = t.Mutate(ctx, id, "create requests", func(d *model.Document) error {
		ids := make([]any, len(created))
		for i, r := range created {
			ids[i] = r
		}
		if _, err := d.Set("created_requests", ids); err != nil {
			return err
		}
		_, err := d.Set("status", TicketDone)
		return err
	})
	if err != nil {
		t.rollback(ctx, id, created)
		return nil, err
	}
	t.logger.Info("ticket resolved", "ticket", id, "requests", created)
	return created, nil
}

// rollback deletes created requests newest first. Failures are logged.
func (t *Tickets) rollback(ctx context.Context, ticket string, created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		if err := t.requests.Delete(ctx, created[i]); err != nil {
			t.logger.Error("rollback failed", "ticket", ticket, "request", created[i], "error", err)
			continue
		}
		t.logger.Info("rolled back request", "ticket", ticket, "request", created[i])
	}
}

// groupPart returns the string input[key] used to build a serial group. It
// must match re when non-empty.
func groupPart(collection, key string, input model.Object, re *regexp.Regexp) (string, error) {
	raw, ok := input[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &model.FieldError{Schema: collection, Field: key, Err: model.ErrTypeMismatch, Detail: fmt.Sprintf("got %T, want string", raw)}
	}
	if s != "" && !re.MatchString(s) {
		return "", &model.FieldError{Schema: collection, Field: key, Err: model.ErrValidationFailed, Detail: s}
	}
	return s, nil
}
