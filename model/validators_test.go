package model_test

import (
	"strings"
	"testing"

	"github.com/jacentio/relval/model"
)

func TestValidators(t *testing.T) {
	step := model.Rule(`{
		"type": "object",
		"required": ["conditions"],
		"properties": {
			"conditions": {"type": "string", "minLength": 1},
			"nThreads": {"type": "number", "minimum": 1}
		},
		"additionalProperties": false
	}`)

	tests := []struct {
		name  string
		fn    model.Validator
		value any
		want  bool
	}{
		{"identifier ok", model.Identifier(), "Run3-PS_2-00001", true},
		{"identifier spaces", model.Identifier(), "Run3 PS", false},
		{"identifier too long", model.Identifier(), strings.Repeat("a", 76), false},
		{"identifier max length", model.Identifier(), strings.Repeat("a", 75), true},
		{"optional identifier empty", model.OptionalIdentifier(), "", true},
		{"non-negative zero", model.NonNegative(), 0.0, true},
		{"non-negative", model.NonNegative(), -0.5, false},
		{"integer", model.Integer(), 4.0, true},
		{"integer fraction", model.Integer(), 4.5, false},
		{"one of", model.OneOf("new", "done"), "done", true},
		{"one of other", model.OneOf("new", "done"), "gone", false},
		{"not empty", model.NotEmpty(), "  ", false},
		{"not empty list", model.NotEmpty(), []any{"x"}, true},
		{"each", model.Each(model.NotEmpty()), []any{"a", ""}, false},
		{"all", model.All(model.NonNegative(), model.Integer()), 3.0, true},
		{"all fails", model.All(model.NonNegative(), model.Integer()), -3.0, false},
		{"rule ok", step, map[string]any{"conditions": "auto:phase1", "nThreads": 4.0}, true},
		{"rule missing", step, map[string]any{"nThreads": 4.0}, false},
		{"rule extra", step, map[string]any{"conditions": "x", "colour": "red"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.value); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRule_PanicsOnBadSchema(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	model.Rule(`{"type": `)
}
