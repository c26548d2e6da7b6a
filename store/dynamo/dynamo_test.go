package dynamo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return New(newFakeClient(), Config{}, store.DefaultConfig())
	})
}

func TestConfigDefaults(t *testing.T) {
	b := New(newFakeClient(), Config{}, store.DefaultConfig())
	if b.MetaTable() != "relval_meta" {
		t.Errorf("expected meta table 'relval_meta', got %q", b.MetaTable())
	}
	if b.TableName("requests") != "relval_requests" {
		t.Errorf("expected table 'relval_requests', got %q", b.TableName("requests"))
	}
	if b.config.TableWait != 2*time.Minute {
		t.Errorf("expected 2m table wait, got %v", b.config.TableWait)
	}
}

func TestCollection_CreatesTables(t *testing.T) {
	client := newFakeClient()
	b := New(client, Config{CreateTables: true}, store.DefaultConfig())
	if _, err := b.Collection(context.Background(), store.Info{Name: "tickets"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, table := range []string{"relval_tickets", "relval_meta"} {
		if _, ok := client.tables[table]; !ok {
			t.Errorf("expected table %s to be created", table)
		}
	}
}

func TestDelete_IsSoft(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	b := New(client, Config{}, store.DefaultConfig())
	c, _ := b.Collection(ctx, store.Info{Name: "requests"})

	if err := c.Save(ctx, store.Document{"_id": "A-00001"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Delete(ctx, store.Document{"_id": "A-00001"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	item := client.tables["relval_requests"]["A-00001"]
	if item == nil {
		t.Fatal("expected tombstone to remain until TTL expiry")
	}
	if !IsDeleted(item, time.Now()) {
		t.Error("expected tombstone to be marked deleted")
	}

	// Re-creating over a tombstone starts a fresh document
	if err := c.Save(ctx, store.Document{"_id": "A-00001", "notes": "again"}); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	doc, found, _ := c.Get(ctx, "A-00001")
	if !found || doc["notes"] != "again" {
		t.Errorf("expected recreated document, got %v", doc)
	}
	if _, ok := doc[TTLAttr]; ok {
		t.Error("expected TTL attribute to be hidden")
	}
}

func TestQuery_PushesFilter(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	b := New(client, Config{}, store.DefaultConfig())
	c, _ := b.Collection(ctx, storetest.Info)

	if _, _, err := c.Query(ctx, store.Query{Filter: "energy=13 && prepid=A-*"}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(client.scans) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(client.scans))
	}
	expr := *client.scans[0].FilterExpression
	if !strings.Contains(expr, "#attr0 = :val0") {
		t.Errorf("expected energy comparison in filter, got %q", expr)
	}
	if strings.Contains(expr, ":val1") {
		t.Errorf("expected wildcard to stay client-side, got %q", expr)
	}
}

func TestIsDeleted(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		name string
		item map[string]types.AttributeValue
		want bool
	}{
		{"no ttl", map[string]types.AttributeValue{}, false},
		{"nil item", nil, false},
		{"expired", map[string]types.AttributeValue{TTLAttr: &types.AttributeValueMemberN{Value: "999"}}, true},
		{"now", map[string]types.AttributeValue{TTLAttr: &types.AttributeValueMemberN{Value: "1000"}}, true},
		{"future", map[string]types.AttributeValue{TTLAttr: &types.AttributeValueMemberN{Value: "1001"}}, false},
		{"wrong type", map[string]types.AttributeValue{TTLAttr: &types.AttributeValueMemberS{Value: "999"}}, false},
		{"unparseable", map[string]types.AttributeValue{TTLAttr: &types.AttributeValueMemberN{Value: "x"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDeleted(tt.item, now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuildFilter(t *testing.T) {
	clauses, err := store.ParseFilter("dataset=/A/B/RAW;energy=<14;prepid=!X;prepid=a*;approved=true", store.Info{
		Kinds:   map[string]model.Kind{"energy": model.Number, "approved": model.Bool},
		Aliases: map[string]string{"dataset": "input.dataset"},
	}, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := BuildFilter(clauses, time.Unix(42, 0))

	want := "(attribute_not_exists(#ttl) OR #ttl > :now) AND #attr0.#attr1 = :val0 AND " +
		"#attr2 < :val1 AND (attribute_not_exists(#attr3) OR #attr3 <> :val2) AND #attr4 = :val4"
	if f.Expression != want {
		t.Errorf("expected expression\n%s\ngot\n%s", want, f.Expression)
	}
	if f.Names["#attr1"] != "dataset" || f.Names["#attr0"] != "input" {
		t.Errorf("unexpected names: %v", f.Names)
	}
	if n, ok := f.Values[":now"].(*types.AttributeValueMemberN); !ok || n.Value != "42" {
		t.Errorf("expected :now 42, got %v", f.Values[":now"])
	}
	if b, ok := f.Values[":val4"].(*types.AttributeValueMemberBOOL); !ok || !b.Value {
		t.Errorf("expected boolean value, got %v", f.Values[":val4"])
	}
}

func TestBuildFilter_IgnoreCase(t *testing.T) {
	clauses, _ := store.ParseFilter("prepid=abc", store.Info{}, true)
	f := BuildFilter(clauses, time.Now())
	if f.Expression != TTLFilterExpr() {
		t.Errorf("expected only the TTL filter, got %q", f.Expression)
	}

	clauses, _ = store.ParseFilter("prepid=>abc", store.Info{}, true)
	f = BuildFilter(clauses, time.Now())
	if want := TTLFilterExpr() + " AND #attr0 > :val0"; f.Expression != want {
		t.Errorf("expected ordering pushed down as %q, got %q", want, f.Expression)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	doc := store.Document{
		"_id":       "A-00001",
		"energy":    13.6,
		"sequences": []any{map[string]any{"step": "RAW2DIGI"}},
		"input":     map[string]any{"dataset": "/A/B/RAW", "lumisection": map[string]any{}},
		"approved":  false,
	}
	item, err := Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	item[TTLAttr] = &types.AttributeValueMemberN{Value: "1"}
	got, err := Unmarshal(item)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got[TTLAttr]; ok {
		t.Error("expected TTL to be dropped")
	}
	if got["energy"] != 13.6 || got["approved"] != false {
		t.Errorf("unexpected scalars: %v", got)
	}
	seq, _ := got["sequences"].([]any)
	if len(seq) != 1 {
		t.Errorf("expected 1 sequence, got %v", got["sequences"])
	}
}
