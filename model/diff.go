package model

import (
	"sort"
	"strconv"
)

// ChangeKind tags the variant of a Change.
type ChangeKind int

const (
	// ScalarChange replaces a value (also used when the kinds differ).
	ScalarChange ChangeKind = iota + 1
	// SequenceChange is a list change; see Change.Whole.
	SequenceChange
	// MappingChange is a field-by-field mapping change.
	MappingChange
)

// Change describes how a value differs between two versions.
type Change struct {
	Kind ChangeKind

	// Old and New hold the compared values.
	Old any
	New any

	// Whole marks a sequence whose length changed; Items is empty then.
	Whole bool

	// Items holds per-index changes of same-length sequences.
	Items map[int]*Change

	// Fields holds per-key changes of mappings.
	Fields map[string]*Change
}

// Diff compares two normalised values. It returns nil when they are equal.
//
// Lists of different length are a whole change. Lists of the same length are
// compared index by index, so reordering is reported as change unless every
// index compares equal.
func Diff(before, after any) *Change {
	switch o := before.(type) {
	case map[string]any:
		n, ok := after.(map[string]any)
		if !ok {
			return &Change{Kind: ScalarChange, Old: before, New: after}
		}
		fields := make(map[string]*Change)
		for k, ov := range o {
			nv, present := n[k]
			if !present {
				fields[k] = &Change{Kind: ScalarChange, Old: ov}
				continue
			}
			if c := Diff(ov, nv); c != nil {
				fields[k] = c
			}
		}
		for k, nv := range n {
			if _, present := o[k]; !present {
				fields[k] = &Change{Kind: ScalarChange, New: nv}
			}
		}
		if len(fields) == 0 {
			return nil
		}
		return &Change{Kind: MappingChange, Old: before, New: after, Fields: fields}

	case []any:
		n, ok := after.([]any)
		if !ok {
			return &Change{Kind: ScalarChange, Old: before, New: after}
		}
		if len(o) != len(n) {
			return &Change{Kind: SequenceChange, Old: before, New: after, Whole: true}
		}
		items := make(map[int]*Change)
		for i := range o {
			if c := Diff(o[i], n[i]); c != nil {
				items[i] = c
			}
		}
		if len(items) == 0 {
			return nil
		}
		return &Change{Kind: SequenceChange, Old: before, New: after, Items: items}
	}

	if KindOf(before) != KindOf(after) || before != after {
		return &Change{Kind: ScalarChange, Old: before, New: after}
	}
	return nil
}

// Describe renders the change as a JSON value: mappings of changed keys
// (sequence indexes as strings) with true at every changed leaf.
func (c *Change) Describe() any {
	if c == nil {
		return false
	}
	switch {
	case c.Kind == MappingChange:
		out := make(map[string]any, len(c.Fields))
		for k, sub := range c.Fields {
			out[k] = sub.Describe()
		}
		return out
	case c.Kind == SequenceChange && !c.Whole:
		out := make(map[string]any, len(c.Items))
		for i, sub := range c.Items {
			out[strconv.Itoa(i)] = sub.Describe()
		}
		return out
	default:
		return true
	}
}

// Paths lists the dotted paths of every changed leaf, sorted.
func (c *Change) Paths() []string {
	var out []string
	c.walk("", func(path string, _ *Change) { out = append(out, path) })
	sort.Strings(out)
	return out
}

func (c *Change) walk(prefix string, leaf func(string, *Change)) {
	if c == nil {
		return
	}
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch {
	case c.Kind == MappingChange:
		for k, sub := range c.Fields {
			sub.walk(join(k), leaf)
		}
	case c.Kind == SequenceChange && !c.Whole:
		for i, sub := range c.Items {
			sub.walk(join(strconv.Itoa(i)), leaf)
		}
	default:
		leaf(prefix, c)
	}
}
