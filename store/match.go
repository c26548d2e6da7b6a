package store

import (
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/jacentio/relval/model"
)

// Lookup returns the value at a dotted path of doc.
func Lookup(doc Document, path string) (any, bool) {
	return lookup(doc, pathExpr(path))
}

func lookup(doc Document, x jp.Expr) (any, bool) {
	found := x.Get(doc)
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}

// Matches reports whether doc satisfies every clause.
func (c Criteria) Matches(doc Document) bool {
	for _, clause := range c.Clauses {
		if !clause.Matches(doc) {
			return false
		}
	}
	return true
}

// Matches reports whether doc satisfies the clause.
func (c Clause) Matches(doc Document) bool {
	x := c.expr
	if x == nil {
		x = pathExpr(c.Path)
	}
	v, ok := lookup(doc, x)

	switch c.Op {
	case OpMatch, OpNotMatch:
		re := c.re
		if re == nil {
			re = wildcardRegexp(c.Pattern, c.IgnoreCase)
		}
		s, isString := v.(string)
		matched := ok && isString && re.MatchString(s)
		if c.Op == OpNotMatch {
			return !matched
		}
		return matched
	case OpNe:
		return !ok || compare(v, c.Value, c.IgnoreCase) != 0
	}

	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return compare(v, c.Value, c.IgnoreCase) == 0
	case OpLt:
		// Ordering is case-sensitive byte order on every backend.
		return compare(v, c.Value, false) == -1
	case OpGt:
		return compare(v, c.Value, false) == 1
	}
	return false
}

// compare orders a stored value against a clause value. Values of different
// kinds never compare equal and report 2.
func compare(stored, want any, ignoreCase bool) int {
	switch w := want.(type) {
	case float64:
		s, ok := stored.(float64)
		if !ok {
			return 2
		}
		switch {
		case s < w:
			return -1
		case s > w:
			return 1
		}
		return 0
	case bool:
		s, ok := stored.(bool)
		if !ok {
			return 2
		}
		if s == w {
			return 0
		}
		return 2
	case string:
		s, ok := stored.(string)
		if !ok {
			return 2
		}
		if ignoreCase {
			s, w = strings.ToLower(s), strings.ToLower(w)
		}
		return strings.Compare(s, w)
	}
	return 2
}

// Sort orders docs in place by the criteria sort path. Documents missing the
// sort value go last; ties are broken by ascending `_id`.
func (c Criteria) Sort(docs []Document) {
	x := c.sortExpr
	if x == nil {
		x = pathExpr(c.SortPath)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := lookup(docs[i], x)
		b, bok := lookup(docs[j], x)
		if aok != bok {
			return aok
		}
		if aok {
			if c.Ascending && sortLess(a, b, c.SortKind) || !c.Ascending && sortLess(b, a, c.SortKind) {
				return true
			}
			if sortLess(a, b, c.SortKind) || sortLess(b, a, c.SortKind) {
				return false
			}
		}
		return ID(docs[i]) < ID(docs[j])
	})
}

func sortLess(a, b any, kind model.Kind) bool {
	if kind == model.Number {
		af, aok := a.(float64)
		bf, bok := b.(float64)
		if aok && bok {
			return af < bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return false
}

// Apply filters, sorts and pages docs client-side, returning the page and the
// total match count. Backends without server-side queries use it.
func (c Criteria) Apply(docs []Document) ([]Document, int) {
	matched := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if c.Matches(doc) {
			matched = append(matched, doc)
		}
	}
	c.Sort(matched)

	total := len(matched)
	if c.Offset < 0 || c.Offset >= total {
		return []Document{}, total
	}
	end := total
	if c.Limit >= 0 && c.Limit < total-c.Offset {
		end = c.Offset + c.Limit
	}
	return matched[c.Offset:end], total
}
