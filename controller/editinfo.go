package controller

import (
	"sort"
	"strconv"

	"github.com/jacentio/relval/model"
)

// EditInfo is an edit policy mirroring the shape of a document. Allowed
// governs the node and every descendant without a policy of its own.
type EditInfo struct {
	Allowed bool

	// Fields holds per-key policies of a mapping.
	Fields map[string]*EditInfo

	// Items is the policy of every element of a sequence.
	Items *EditInfo
}

// Editable returns a leaf policy.
func Editable(allowed bool) *EditInfo {
	return &EditInfo{Allowed: allowed}
}

// Fields returns a mapping policy where unlisted keys are locked.
func Fields(fields map[string]*EditInfo) *EditInfo {
	return &EditInfo{Fields: fields}
}

// Open returns a mapping policy where unlisted keys are editable.
func Open(fields map[string]*EditInfo) *EditInfo {
	return &EditInfo{Allowed: true, Fields: fields}
}

// Items returns a sequence policy applying item to every element.
func Items(allowed bool, item *EditInfo) *EditInfo {
	return &EditInfo{Allowed: allowed, Items: item}
}

// DefaultEditInfo allows editing everything except the identifier and history.
func DefaultEditInfo(schema *model.Schema) *EditInfo {
	return Open(map[string]*EditInfo{
		schema.IDField():   Editable(false),
		model.HistoryField: Editable(false),
	})
}

// Check walks c and returns the first changed path the policy forbids, in
// sorted key order. ok is true when every change is allowed.
func (e *EditInfo) Check(c *model.Change) (path string, ok bool) {
	return e.check("", c, false)
}

func (e *EditInfo) check(prefix string, c *model.Change, inherited bool) (string, bool) {
	if c == nil {
		return "", true
	}
	allowed := inherited
	if e != nil {
		allowed = e.Allowed
	}

	switch {
	case e != nil && c.Kind == model.MappingChange && e.Fields != nil:
		keys := make([]string, 0, len(c.Fields))
		for k := range c.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p, ok := e.Fields[k].check(join(prefix, k), c.Fields[k], allowed); !ok {
				return p, false
			}
		}
		return "", true

	case e != nil && c.Kind == model.SequenceChange && !c.Whole && e.Items != nil:
		idx := make([]int, 0, len(c.Items))
		for i := range c.Items {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			if p, ok := e.Items.check(join(prefix, strconv.Itoa(i)), c.Items[i], allowed); !ok {
				return p, false
			}
		}
		return "", true
	}

	if !allowed {
		return prefix, false
	}
	return "", true
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
