package memstore_test

import (
	"context"
	"testing"

	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/store/memstore"
	"github.com/jacentio/relval/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return memstore.New(store.DefaultConfig())
	})
}

func TestCollection_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := memstore.New(store.DefaultConfig())
	c, err := b.Collection(ctx, storetest.Info)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Save(ctx, store.Document{"_id": "A-00001", "notes": "original"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	doc, _, _ := c.Get(ctx, "A-00001")
	doc["notes"] = "mutated"

	again, _, _ := c.Get(ctx, "A-00001")
	if again["notes"] != "original" {
		t.Errorf("expected stored document to be isolated, got %v", again["notes"])
	}
}

func TestBackend_SameCollection(t *testing.T) {
	ctx := context.Background()
	b := memstore.New(store.DefaultConfig())
	first, _ := b.Collection(ctx, store.Info{Name: "tickets"})
	second, _ := b.Collection(ctx, store.Info{Name: "tickets"})
	if first != second {
		t.Error("expected the same collection for the same name")
	}
}
