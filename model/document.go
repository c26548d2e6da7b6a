package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object is the JSON form of a document.
type Object = map[string]any

// History actions written by controllers.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// Document is an instance of a schema.
type Document struct {
	schema   *Schema
	values   map[string]any
	revision int64
}

// New creates a document from input. Keys missing from input take a copy of
// their default. Storage metadata keys are accepted and dropped, except the
// revision which is kept for conditional saves.
func New(schema *Schema, input map[string]any) (*Document, error) {
	d := &Document{
		schema: schema,
		values: make(map[string]any, len(schema.fields)),
	}
	for _, f := range schema.fields {
		d.values[f.Name] = DeepCopy(f.Default)
	}

	for key, raw := range input {
		if IsMetaKey(key) {
			if key == MetaRevision {
				rev, err := revisionOf(raw)
				if err != nil {
					return nil, fieldError(schema.name, key, ErrTypeMismatch, err.Error())
				}
				d.revision = rev
			}
			continue
		}
		if !schema.Has(key) {
			return nil, fieldError(schema.name, key, ErrInvalidKey, "")
		}
	}

	// The identifier is set first so later errors can name the document.
	if raw, ok := input[schema.idField]; ok {
		if err := d.assign(schema.idField, raw); err != nil {
			return nil, err
		}
	}
	for _, f := range schema.fields {
		raw, ok := input[f.Name]
		if !ok || f.Name == schema.idField {
			continue
		}
		if err := d.assign(f.Name, raw); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func revisionOf(raw any) (int64, error) {
	n, err := Normalize(raw)
	if err != nil {
		return 0, err
	}
	f, ok := n.(float64)
	if !ok || f < 0 {
		return 0, fmt.Errorf("revision must be a non-negative number, got %T", raw)
	}
	return int64(f), nil
}

// Schema returns the document schema.
func (d *Document) Schema() *Schema { return d.schema }

// ID returns the identifier value.
func (d *Document) ID() string {
	s, _ := d.values[d.schema.idField].(string)
	return s
}

// Revision returns the store revision the document was loaded at, 0 if new.
func (d *Document) Revision() int64 { return d.revision }

// SetRevision records the store revision.
func (d *Document) SetRevision(rev int64) { d.revision = rev }

// Get returns the current value of key.
func (d *Document) Get(key string) (any, error) {
	v, ok := d.values[key]
	if !ok {
		return nil, fieldError(d.schema.name, key, ErrUnknownAttribute, "")
	}
	return v, nil
}

// Set validates and assigns value, returning the full document.
func (d *Document) Set(key string, value any) (Object, error) {
	if !d.schema.Has(key) {
		return nil, fieldError(d.schema.name, key, ErrUnknownAttribute, "")
	}
	if key == d.schema.idField && d.ID() != "" {
		return nil, fieldError(d.schema.name, key, ErrImmutableAttribute, "")
	}
	if err := d.assign(key, value); err != nil {
		return nil, err
	}
	return d.JSON(), nil
}

func (d *Document) assign(key string, raw any) error {
	f, _ := d.schema.Field(key)
	value, err := Normalize(raw)
	if err != nil {
		return fieldError(d.schema.name, key, ErrTypeMismatch, err.Error())
	}
	if kind := KindOf(value); kind != f.Kind {
		return fieldError(d.schema.name, key, ErrTypeMismatch, fmt.Sprintf("got %s, want %s", kind, f.Kind))
	}
	if f.Validate != nil && !f.Validate(value) {
		return fieldError(d.schema.name, key, ErrValidationFailed, fmt.Sprintf("%v", value))
	}
	d.values[key] = value
	return nil
}

// JSON returns a deep copy of the document.
func (d *Document) JSON() Object {
	out := make(Object, len(d.values))
	for k, v := range d.values {
		out[k] = DeepCopy(v)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.values)
}

// AddHistory appends a history entry. The entry time is unix seconds.
func (d *Document) AddHistory(action string, value any, actor string, at time.Time) error {
	if !d.schema.Has(HistoryField) {
		return fieldError(d.schema.name, HistoryField, ErrUnknownAttribute, "")
	}
	current, _ := d.values[HistoryField].([]any)
	entry := map[string]any{
		"action": action,
		"time":   at.Unix(),
		"user":   actor,
		"value":  value,
	}
	if value == nil {
		entry["value"] = ""
	}
	history := make([]any, 0, len(current)+1)
	history = append(history, current...)
	history = append(history, entry)
	_, err := d.Set(HistoryField, history)
	return err
}

// String returns a string attribute, "" when absent or not a string.
func (d *Document) String(key string) string {
	s, _ := d.values[key].(string)
	return s
}

// Number returns a numeric attribute, 0 when absent or not a number.
func (d *Document) Number(key string) float64 {
	f, _ := d.values[key].(float64)
	return f
}

// Bool returns a boolean attribute.
func (d *Document) Bool(key string) bool {
	b, _ := d.values[key].(bool)
	return b
}

// List returns a copy of a list attribute.
func (d *Document) List(key string) []any {
	l, _ := DeepCopy(d.values[key]).([]any)
	return l
}

// Strings returns the string items of a list attribute.
func (d *Document) Strings(key string) []string {
	l, _ := d.values[key].([]any)
	out := make([]string, 0, len(l))
	for _, item := range l {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns a copy of a mapping attribute.
func (d *Document) Map(key string) map[string]any {
	m, _ := DeepCopy(d.values[key]).(map[string]any)
	return m
}
