// Package storetest provides a behavioural test suite shared by every
// store.Backend implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Info is the collection layout exercised by the suite.
var Info = store.Info{
	Name: "requests",
	Kinds: map[string]model.Kind{
		"_id":      model.String,
		"_rev":     model.Number,
		"_updated": model.Number,
		"prepid":   model.String,
		"energy":   model.Number,
		"priority": model.Number,
	},
	Aliases: map[string]string{"dataset": "input.dataset"},
}

// Run executes the contract suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, c store.Collection)
	}{
		{"SaveAndGet", testSaveAndGet},
		{"SaveRequiresID", testSaveRequiresID},
		{"Upsert", testUpsert},
		{"RevisionConflict", testRevisionConflict},
		{"Delete", testDelete},
		{"LastUpdate", testLastUpdate},
		{"QueryFilter", testQueryFilter},
		{"QueryNested", testQueryNested},
		{"QuerySortAndPage", testQuerySortAndPage},
		{"QueryIgnoreCase", testQueryIgnoreCase},
		{"QueryInvalidFilter", testQueryInvalidFilter},
		{"ConcurrentSaves", testConcurrentSaves},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			c, err := b.Collection(context.Background(), Info)
			if err != nil {
				t.Fatalf("open collection: %v", err)
			}
			tt.fn(t, c)
		})
	}
}

func request(id string, energy float64) store.Document {
	return store.Document{
		"_id":    id,
		"prepid": id,
		"energy": energy,
		"input":  map[string]any{"dataset": "/ZeroBias/" + id + "/RAW", "lumisection": map[string]any{}},
	}
}

func mustSave(t *testing.T, c store.Collection, doc store.Document) {
	t.Helper()
	if err := c.Save(context.Background(), doc); err != nil {
		t.Fatalf("save %s: %v", store.ID(doc), err)
	}
}

func testSaveAndGet(t *testing.T, c store.Collection) {
	ctx := context.Background()
	mustSave(t, c, request("A-00001", 13))

	doc, found, err := c.Get(ctx, "A-00001")
	if err != nil || !found {
		t.Fatalf("expected document, got found=%v err=%v", found, err)
	}
	if doc["energy"] != 13.0 {
		t.Errorf("expected energy 13, got %v", doc["energy"])
	}
	if store.Revision(doc) != 1 {
		t.Errorf("expected revision 1, got %d", store.Revision(doc))
	}
	if _, ok := doc[model.MetaUpdated].(float64); !ok {
		t.Errorf("expected _updated stamp, got %T", doc[model.MetaUpdated])
	}
	input, _ := doc["input"].(map[string]any)
	if input["dataset"] != "/ZeroBias/A-00001/RAW" {
		t.Errorf("expected nested dataset, got %v", doc["input"])
	}

	_, found, err = c.Get(ctx, "missing")
	if err != nil || found {
		t.Errorf("expected not found without error, got found=%v err=%v", found, err)
	}

	exists, err := c.Exists(ctx, "A-00001")
	if err != nil || !exists {
		t.Errorf("expected exists, got %v %v", exists, err)
	}
}

func testSaveRequiresID(t *testing.T, c store.Collection) {
	ctx := context.Background()
	for _, doc := range []store.Document{{"prepid": "x"}, {"_id": ""}} {
		if err := c.Save(ctx, doc); !errors.Is(err, store.ErrInvalidDocument) {
			t.Errorf("save: expected ErrInvalidDocument, got %v", err)
		}
	}
	if err := c.Delete(ctx, store.Document{}); !errors.Is(err, store.ErrInvalidDocument) {
		t.Errorf("delete: expected ErrInvalidDocument, got %v", err)
	}
}

func testUpsert(t *testing.T, c store.Collection) {
	ctx := context.Background()
	mustSave(t, c, request("A-00001", 13))
	mustSave(t, c, request("A-00001", 14))

	doc, _, err := c.Get(ctx, "A-00001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["energy"] != 14.0 {
		t.Errorf("expected overwritten energy 14, got %v", doc["energy"])
	}
	if store.Revision(doc) != 2 {
		t.Errorf("expected revision 2, got %d", store.Revision(doc))
	}

	_, total, err := c.Query(ctx, store.Query{})
	if err != nil || total != 1 {
		t.Errorf("expected a single document, got total %d err %v", total, err)
	}
}

func testRevisionConflict(t *testing.T, c store.Collection) {
	ctx := context.Background()
	mustSave(t, c, request("A-00001", 13))

	loaded, _, err := c.Get(ctx, "A-00001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stale, _, _ := c.Get(ctx, "A-00001")

	loaded["energy"] = 14.0
	if err := c.Save(ctx, loaded); err != nil {
		t.Fatalf("conditional save: %v", err)
	}

	stale["energy"] = 15.0
	if err := c.Save(ctx, stale); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification, got %v", err)
	}

	bogus := request("A-00002", 1)
	bogus[model.MetaRevision] = 3.0
	if err := c.Save(ctx, bogus); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification for missing document, got %v", err)
	}
}

func testDelete(t *testing.T, c store.Collection) {
	ctx := context.Background()
	mustSave(t, c, request("A-00001", 13))

	if err := c.Delete(ctx, store.Document{"_id": "A-00001"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if exists, _ := c.Exists(ctx, "A-00001"); exists {
		t.Error("expected document to be gone")
	}
	if err := c.Delete(ctx, store.Document{"_id": "A-00001"}); err != nil {
		t.Errorf("deleting absent document should be a no-op, got %v", err)
	}
}

func testLastUpdate(t *testing.T, c store.Collection) {
	ctx := context.Background()
	before, err := c.LastUpdate(ctx)
	if err != nil {
		t.Fatalf("last update: %v", err)
	}
	if !before.IsZero() {
		t.Errorf("expected zero last update on empty collection, got %v", before)
	}

	start := time.Now().Add(-time.Second)
	mustSave(t, c, request("A-00001", 13))
	after, err := c.LastUpdate(ctx)
	if err != nil {
		t.Fatalf("last update: %v", err)
	}
	if after.Before(start) {
		t.Errorf("expected last update after %v, got %v", start, after)
	}
}

func seed(t *testing.T, c store.Collection) {
	t.Helper()
	mustSave(t, c, request("A-00001", 13))
	mustSave(t, c, request("A-00002", 13.6))
	mustSave(t, c, request("A-00003", 7))
	mustSave(t, c, request("AB-00001", 13))
	mustSave(t, c, request("B-00001", 13))
}

func ids(docs []store.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.ID(d))
	}
	return out
}

func testQueryFilter(t *testing.T, c store.Collection) {
	ctx := context.Background()
	seed(t, c)

	tests := []struct {
		filter string
		want   string
	}{
		{"prepid=A-*", "[A-00001 A-00002 A-00003]"},
		{"prepid=A-* && energy=13.0", "[A-00001]"},
		{"prepid=A-* && energy=12.0", "[]"},
		{"energy=>10;prepid=!B-00001", "[A-00001 A-00002 AB-00001]"},
		{"energy=<10", "[A-00003]"},
		{"prepid=!A*", "[B-00001]"},
		{"prepid=*-00001", "[A-00001 AB-00001 B-00001]"},
		{"", "[A-00001 A-00002 A-00003 AB-00001 B-00001]"},
	}
	for _, tt := range tests {
		docs, total, err := c.Query(ctx, store.Query{Filter: tt.filter})
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.filter, err)
			continue
		}
		if got := fmt.Sprint(ids(docs)); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.filter, tt.want, got)
		}
		if total != len(docs) {
			t.Errorf("%q: expected total %d, got %d", tt.filter, len(docs), total)
		}
	}
}

func testQueryNested(t *testing.T, c store.Collection) {
	ctx := context.Background()
	seed(t, c)

	docs, _, err := c.Query(ctx, store.Query{Filter: "dataset=/ZeroBias/A-00002/*"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fmt.Sprint(ids(docs)); got != "[A-00002]" {
		t.Errorf("expected [A-00002], got %s", got)
	}
}

func testQuerySortAndPage(t *testing.T, c store.Collection) {
	ctx := context.Background()
	seed(t, c)
	desc := false

	docs, total, err := c.Query(ctx, store.Query{Sort: "energy", Ascending: &desc, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(docs) != 2 || store.ID(docs[0]) != "A-00002" {
		t.Errorf("expected A-00002 first by descending energy, got %v", ids(docs))
	}

	docs, _, err = c.Query(ctx, store.Query{Limit: 2, Page: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fmt.Sprint(ids(docs)); got != "[B-00001]" {
		t.Errorf("expected last page [B-00001], got %s", got)
	}

	for _, page := range []int{9, math.MaxInt / 10, math.MaxInt} {
		docs, total, err = c.Query(ctx, store.Query{Limit: 2, Page: page})
		if err != nil || len(docs) != 0 || total != 5 {
			t.Errorf("page %d: expected empty page with total 5, got %v %d %v", page, ids(docs), total, err)
		}
	}
}

func testQueryIgnoreCase(t *testing.T, c store.Collection) {
	ctx := context.Background()
	seed(t, c)

	docs, _, err := c.Query(ctx, store.Query{Filter: "prepid=a-0000*", IgnoreCase: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("expected 3 case-insensitive matches, got %v", ids(docs))
	}

	docs, _, err = c.Query(ctx, store.Query{Filter: "prepid=b-00001", IgnoreCase: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 case-insensitive match, got %v", ids(docs))
	}

	docs, _, _ = c.Query(ctx, store.Query{Filter: "prepid=b-00001"})
	if len(docs) != 0 {
		t.Errorf("expected case-sensitive miss, got %v", ids(docs))
	}

	// Ordering comparisons stay case-sensitive: upper-case IDs sort before "a".
	docs, _, err = c.Query(ctx, store.Query{Filter: "prepid=>a", IgnoreCase: true})
	if err != nil || len(docs) != 0 {
		t.Errorf("expected no IDs above \"a\", got %v (%v)", ids(docs), err)
	}
	docs, _, err = c.Query(ctx, store.Query{Filter: "prepid=<a", IgnoreCase: true})
	if err != nil || len(docs) != 5 {
		t.Errorf("expected every ID below \"a\", got %v (%v)", ids(docs), err)
	}
}

func testQueryInvalidFilter(t *testing.T, c store.Collection) {
	_, _, err := c.Query(context.Background(), store.Query{Filter: "energy=high"})
	if !errors.Is(err, store.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func testConcurrentSaves(t *testing.T, c store.Collection) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.Save(ctx, request(fmt.Sprintf("C-%05d", i), float64(i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent save: %v", err)
		}
	}
	_, total, err := c.Query(ctx, store.Query{Filter: "prepid=C-*"})
	if err != nil || total != 20 {
		t.Errorf("expected 20 documents, got %d (%v)", total, err)
	}
}
