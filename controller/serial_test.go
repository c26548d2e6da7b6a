package controller_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
)

func TestCreateWithSerial_ConcurrentContiguous(t *testing.T) {
	ctx := context.Background()
	c := newWidgets(t, nil, nil)

	const n = 25
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.CreateWithSerial(ctx, "Run3", model.Object{"energy": float64(i)})
			errs[i] = err
			if err == nil {
				ids[i] = out["prepid"].(string)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	sort.Strings(ids)
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("Run3-%05d", i+1)
	}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("expected contiguous serials (-want +got):\n%s", diff)
	}
}

func TestCreateWithSerial_GroupsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := newWidgets(t, nil, nil)

	for _, group := range []string{"A", "B", "A", "A", "B"} {
		if _, err := c.CreateWithSerial(ctx, group, model.Object{}); err != nil {
			t.Fatalf("create in %s: %v", group, err)
		}
	}
	for _, id := range []string{"A-00001", "A-00002", "A-00003", "B-00001", "B-00002"} {
		if ok, _ := c.Exists(ctx, id); !ok {
			t.Errorf("expected %s to exist", id)
		}
	}
}

func TestCreateWithSerial_SkipsLongerIdentifiers(t *testing.T) {
	ctx := context.Background()
	c := newWidgets(t, nil, nil)

	for _, id := range []string{"A-00003", "A-PS-00009", "A-0007", "AB-00042"} {
		if _, err := c.Create(ctx, model.Object{"prepid": id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	out, err := c.CreateWithSerial(ctx, "A", model.Object{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out["prepid"] != "A-00004" {
		t.Errorf("expected A-00004, got %v", out["prepid"])
	}
}

func TestCreateWithSerial_Exhausted(t *testing.T) {
	ctx := context.Background()
	c := newWidgets(t, nil, nil)

	if _, err := c.Create(ctx, model.Object{"prepid": "A-99999"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := c.CreateWithSerial(ctx, "A", model.Object{})
	if !errors.Is(err, controller.ErrSerialExhausted) {
		t.Fatalf("expected ErrSerialExhausted, got %v", err)
	}
	if _, total, _ := c.Query(ctx, store.Query{Filter: "prepid=A-*"}); total != 1 {
		t.Errorf("expected 1 stored widget, got %d", total)
	}
}

func TestCreateWithSerial_FailureDoesNotConsumeSerial(t *testing.T) {
	ctx := context.Background()
	hooks := &widgetHooks{createVeto: controller.Vetof("no")}
	c := newWidgets(t, hooks, nil)

	if _, err := c.CreateWithSerial(ctx, "A", model.Object{}); !errors.Is(err, controller.ErrDomainVeto) {
		t.Fatalf("expected ErrDomainVeto, got %v", err)
	}
	hooks.createVeto = nil
	out, err := c.CreateWithSerial(ctx, "A", model.Object{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out["prepid"] != "A-00001" {
		t.Errorf("expected A-00001, got %v", out["prepid"])
	}
}

func TestSerialAllocator_PagesPastForeignIdentifiers(t *testing.T) {
	ctx := context.Background()
	c := newWidgets(t, nil, nil)

	// More foreign identifiers than fit in one allocator page sort ahead of
	// the group's own serials.
	for i := 0; i < 120; i++ {
		if _, err := c.Create(ctx, model.Object{"prepid": fmt.Sprintf("A-X%03d-00001", i)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := c.Create(ctx, model.Object{"prepid": "A-00011"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	a := controller.NewSerialAllocator(c.Collection(), locksFor(t), "prepid")
	id, err := a.Allocate(ctx, "A", func(context.Context, string) error { return nil })
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if id != "A-00012" {
		t.Errorf("expected A-00012, got %s", id)
	}
}

func TestLockKey(t *testing.T) {
	if got := controller.LockKey("Run3"); got != "generate-id-Run3" {
		t.Errorf("expected generate-id-Run3, got %s", got)
	}
}
