package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/store/memstore"
)

func campaignRelationships() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.Relationship{
		ParentCollection: "campaigns",
		ChildCollection:  "subcampaigns",
		ParentKeyAttr:    "campaign",
	})
	r.Register(store.Relationship{
		ParentCollection: "subcampaigns",
		ChildCollection:  "requests",
		ParentKeyAttr:    "subcampaign",
	})
	r.Register(store.Relationship{
		ParentCollection: "subcampaigns",
		ChildCollection:  "tickets",
		ParentKeyAttr:    "subcampaign",
	})
	return r
}

func TestNewRegistry(t *testing.T) {
	r := store.NewRegistry()
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
	if len(r.AllRelationships()) != 0 {
		t.Errorf("expected 0 relationships, got %d", len(r.AllRelationships()))
	}
}

func TestRegistry_ChildrenOf(t *testing.T) {
	r := campaignRelationships()

	campaignChildren := r.ChildrenOf("campaigns")
	if len(campaignChildren) != 1 {
		t.Fatalf("expected 1 child for campaigns, got %d", len(campaignChildren))
	}
	if campaignChildren[0].ChildCollection != "subcampaigns" {
		t.Errorf("expected child 'subcampaigns', got %q", campaignChildren[0].ChildCollection)
	}

	if got := len(r.ChildrenOf("subcampaigns")); got != 2 {
		t.Errorf("expected 2 children for subcampaigns, got %d", got)
	}
	if got := len(r.ChildrenOf("requests")); got != 0 {
		t.Errorf("expected 0 children for requests, got %d", got)
	}
}

func TestRegistry_ParentsOf(t *testing.T) {
	r := campaignRelationships()

	parents := r.ParentsOf("requests")
	if len(parents) != 1 || parents[0].ParentCollection != "subcampaigns" {
		t.Errorf("unexpected parents of requests: %+v", parents)
	}
	if len(r.ParentsOf("campaigns")) != 0 {
		t.Error("expected campaigns to be a root collection")
	}
}

func TestRegistry_AllRelationships_Order(t *testing.T) {
	r := campaignRelationships()

	rels := r.AllRelationships()
	if len(rels) != 3 {
		t.Fatalf("expected 3 relationships, got %d", len(rels))
	}
	if rels[0].ChildCollection != "subcampaigns" || rels[2].ChildCollection != "tickets" {
		t.Errorf("expected insertion order, got %+v", rels)
	}
}

func TestRegistry_FindDependent(t *testing.T) {
	ctx := context.Background()
	r := campaignRelationships()

	backend := memstore.New(store.DefaultConfig())
	collections := map[string]store.Collection{}
	for _, name := range []string{"subcampaigns", "requests", "tickets"} {
		c, err := backend.Collection(ctx, store.Info{Name: name})
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		collections[name] = c
	}
	open := func(name string) (store.Collection, bool) {
		c, ok := collections[name]
		return c, ok
	}

	if err := collections["tickets"].Save(ctx, store.Document{"_id": "S1-00001", "subcampaign": "S1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	dep, found, err := r.FindDependent(ctx, open, "subcampaigns", "S1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || dep.Collection != "tickets" || dep.ID != "S1-00001" {
		t.Errorf("expected ticket S1-00001, got %+v (found=%v)", dep, found)
	}

	_, found, err = r.FindDependent(ctx, open, "subcampaigns", "S2")
	if err != nil || found {
		t.Errorf("expected no dependent, got found=%v err=%v", found, err)
	}

	withoutSubcampaigns := func(name string) (store.Collection, bool) {
		if name == "subcampaigns" {
			return nil, false
		}
		return open(name)
	}
	_, _, err = r.FindDependent(ctx, withoutSubcampaigns, "campaigns", "C1")
	if !errors.Is(err, store.ErrUnknownCollection) {
		t.Errorf("expected ErrUnknownCollection for unopened child, got %v", err)
	}
}
