package relval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/internal/metrics"
	"github.com/jacentio/relval/locker"
	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/submission"
)

// Options configures a System.
type Options struct {
	// DatasetBlacklist lists glob patterns of datasets requests may not use.
	DatasetBlacklist []string

	// Rules are extra veto expressions keyed by collection name.
	Rules map[string][]Rule

	Locker     locker.Config
	Submission submission.Config

	// Remote performs submissions. Default: DryRunRemote.
	Remote Remote

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// System wires the relval controllers to one backend.
type System struct {
	Campaigns    *Campaigns
	Subcampaigns *Subcampaigns
	Tickets      *Tickets
	Requests     *Requests
	Submitter    *Submitter

	Pool     *submission.Pool
	Locks    *locker.Manager
	Registry *store.Registry

	backend     store.Backend
	blacklist   *Blacklist
	rules       *Rules
	collections map[string]store.Collection
	controllers map[string]*controller.Controller
	logger      *slog.Logger
}

// Relationships returns the references between relval collections.
func Relationships() []store.Relationship {
	return []store.Relationship{
		{ParentCollection: CollectionCampaigns, ChildCollection: CollectionSubcampaigns, ParentKeyAttr: "campaign"},
		{ParentCollection: CollectionSubcampaigns, ChildCollection: CollectionTickets, ParentKeyAttr: "subcampaign"},
		{ParentCollection: CollectionSubcampaigns, ChildCollection: CollectionRequests, ParentKeyAttr: "subcampaign"},
		{ParentCollection: CollectionTickets, ChildCollection: CollectionRequests, ParentKeyAttr: "ticket", Optional: true},
	}
}

// Infos returns the store descriptions of every relval collection.
func Infos() []store.Info {
	return []store.Info{
		store.InfoFor(CampaignSchema, nil, nil),
		store.InfoFor(SubcampaignSchema, nil, nil),
		store.InfoFor(TicketSchema, nil, nil),
		store.InfoFor(RequestSchema, RequestAliases, map[string]model.Kind{"input.dataset": model.String}),
	}
}

// NewSystem opens the relval collections on backend and builds the
// controllers. The submission pool is not started.
func NewSystem(ctx context.Context, backend store.Backend, opts Options) (*System, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	blacklist, err := NewBlacklist(opts.DatasetBlacklist)
	if err != nil {
		return nil, err
	}
	rules, err := CompileRules(opts.Rules)
	if err != nil {
		return nil, err
	}

	s := &System{
		Locks:       locker.New(opts.Locker, logger, opts.Metrics),
		Registry:    store.NewRegistry(),
		backend:     backend,
		blacklist:   blacklist,
		rules:       rules,
		collections: make(map[string]store.Collection),
		controllers: make(map[string]*controller.Controller),
		logger:      logger,
	}
	for _, rel := range Relationships() {
		s.Registry.Register(rel)
	}
	for _, info := range Infos() {
		coll, err := backend.Collection(ctx, info)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", info.Name, err)
		}
		s.collections[info.Name] = coll
	}
	for _, rel := range s.Registry.AllRelationships() {
		for _, name := range []string{rel.ParentCollection, rel.ChildCollection} {
			if _, ok := s.collections[name]; !ok {
				return nil, fmt.Errorf("relationship %s -> %s: %w: %s", rel.ParentCollection, rel.ChildCollection, store.ErrUnknownCollection, name)
			}
		}
	}

	newController := func(schema *model.Schema, hooks controller.Hooks) *controller.Controller {
		c := controller.New(schema, s.collections[schema.Name()], s.Locks, hooks, logger, opts.Metrics)
		s.controllers[schema.Name()] = c
		return c
	}
	base := func(collection string) entityHooks {
		return entityHooks{sys: s, collection: collection}
	}

	s.Campaigns = &Campaigns{newController(CampaignSchema, campaignHooks{base(CollectionCampaigns)})}
	s.Subcampaigns = &Subcampaigns{newController(SubcampaignSchema, subcampaignHooks{base(CollectionSubcampaigns)})}
	s.Requests = &Requests{
		Controller:   newController(RequestSchema, requestHooks{base(CollectionRequests)}),
		subcampaigns: s.Subcampaigns,
	}
	s.Tickets = &Tickets{
		Controller: newController(TicketSchema, ticketHooks{base(CollectionTickets)}),
		requests:   s.Requests,
		logger:     logger.With("collection", CollectionTickets),
	}

	remote := opts.Remote
	if remote == nil {
		remote = DryRunRemote{Logger: logger}
	}
	s.Pool = submission.NewPool(opts.Submission, logger, opts.Metrics)
	s.Submitter = NewSubmitter(s.Requests, s.Pool, remote, logger)
	return s, nil
}

// Start launches the submission workers.
func (s *System) Start(ctx context.Context) {
	s.Pool.Start(ctx)
}

// Close drains the submission pool and closes the backend.
func (s *System) Close() error {
	s.Pool.Stop()
	return s.backend.Close()
}

// Controller returns the controller of collection.
func (s *System) Controller(collection string) (*controller.Controller, bool) {
	c, ok := s.controllers[collection]
	return c, ok
}

// Exists reports whether collection stores a document id.
func (s *System) Exists(ctx context.Context, collection, id string) (bool, error) {
	coll, ok := s.collections[collection]
	if !ok {
		return false, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	return coll.Exists(ctx, id)
}

func (s *System) open(name string) (store.Collection, bool) {
	coll, ok := s.collections[name]
	return coll, ok
}
