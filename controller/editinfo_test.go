package controller_test

import (
	"testing"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

func TestEditInfo_Check(t *testing.T) {
	stored := map[string]any{
		"prepid": "R-00001",
		"notes":  "",
		"input":  map[string]any{"dataset": "/A/B/C", "lumisection": map[string]any{}},
		"sequences": []any{
			map[string]any{"name": "s1", "step": "GEN"},
			map[string]any{"name": "s2", "step": "SIM"},
		},
	}
	with := func(key string, value any) map[string]any {
		out := model.DeepCopy(stored).(map[string]any)
		out[key] = value
		return out
	}

	policy := controller.Open(map[string]*controller.EditInfo{
		"prepid": controller.Editable(false),
		"input": controller.Fields(map[string]*controller.EditInfo{
			"lumisection": controller.Editable(true),
		}),
		"sequences": controller.Items(true, controller.Open(map[string]*controller.EditInfo{
			"name": controller.Editable(false),
		})),
	})

	tests := []struct {
		name    string
		after   map[string]any
		wantOK  bool
		wantBad string
	}{
		{"editable leaf", with("notes", "x"), true, ""},
		{"locked leaf", with("prepid", "R-00002"), false, "prepid"},
		{"editable nested field", with("input", map[string]any{"dataset": "/A/B/C", "lumisection": map[string]any{"1": []any{}}}), true, ""},
		{"unlisted nested field inherits lock", with("input", map[string]any{"dataset": "/X/Y/Z", "lumisection": map[string]any{}}), false, "input.dataset"},
		{"editable item field", with("sequences", []any{
			map[string]any{"name": "s1", "step": "GEN"},
			map[string]any{"name": "s2", "step": "DIGI"},
		}), true, ""},
		{"locked item field", with("sequences", []any{
			map[string]any{"name": "s1", "step": "GEN"},
			map[string]any{"name": "renamed", "step": "SIM"},
		}), false, "sequences.1.name"},
		{"whole sequence uses node policy", with("sequences", []any{}), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := model.Diff(stored, tt.after)
			if change == nil {
				t.Fatal("expected a change")
			}
			path, ok := policy.Check(change)
			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v (path %q)", tt.wantOK, ok, path)
			}
			if path != tt.wantBad {
				t.Errorf("expected path %q, got %q", tt.wantBad, path)
			}
		})
	}
}

func TestEditInfo_FirstForbiddenPathIsSorted(t *testing.T) {
	before := map[string]any{"a": 1.0, "b": 1.0, "c": 1.0}
	after := map[string]any{"a": 2.0, "b": 2.0, "c": 2.0}

	policy := controller.Fields(map[string]*controller.EditInfo{"z": controller.Editable(true)})
	path, ok := policy.Check(model.Diff(before, after))
	if ok || path != "a" {
		t.Errorf("expected first forbidden path a, got %q (ok=%v)", path, ok)
	}
}

func TestEditInfo_NoChange(t *testing.T) {
	if _, ok := controller.Editable(false).Check(nil); !ok {
		t.Error("expected no change to be allowed")
	}
}

func TestDefaultEditInfo(t *testing.T) {
	info := controller.DefaultEditInfo(widgetSchema)
	for _, field := range []string{"prepid", "history"} {
		if info.Fields[field] == nil || info.Fields[field].Allowed {
			t.Errorf("expected %s to be locked", field)
		}
	}
	if !info.Allowed {
		t.Error("expected other fields to be editable")
	}
}
