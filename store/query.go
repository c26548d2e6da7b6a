package store

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/jacentio/relval/model"
)

// Query selects one page of documents.
type Query struct {
	// Filter is the clause expression (e.g., "prepid=A-*&&energy=13").
	Filter string

	// Page is the zero-based page number.
	Page int

	// Limit is the page size; 0 uses Config.DefaultLimit, values above
	// Config.MaxLimit are clamped.
	Limit int

	// Sort is the attribute to order by; empty orders by `_id`.
	Sort string

	// Ascending determines sort order (nil or true = ascending).
	Ascending *bool

	// IgnoreCase makes string equality and wildcard matches case-insensitive.
	IgnoreCase bool
}

// Op is a clause comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpGt
	OpMatch
	OpNotMatch
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpMatch:
		return "~"
	case OpNotMatch:
		return "!~"
	}
	return "?"
}

// Clause is one parsed `key=value` condition.
type Clause struct {
	// Path is the storage path after alias rewriting (e.g., "input.dataset").
	Path string

	// Op is the comparison.
	Op Op

	// Kind is the tagged kind of Path (String when untagged).
	Kind model.Kind

	// Value is the cast comparison value: string, float64 or bool.
	Value any

	// Pattern is the raw wildcard pattern for OpMatch and OpNotMatch.
	Pattern string

	// IgnoreCase applies to string comparisons.
	IgnoreCase bool

	re   *regexp.Regexp
	expr jp.Expr
}

// Criteria is a compiled query ready for a backend.
type Criteria struct {
	Clauses   []Clause
	Offset    int
	Limit     int
	SortPath  string
	SortKind  model.Kind
	Ascending bool

	sortExpr jp.Expr
}

// Compile parses q against the collection info and clamps paging.
func Compile(q Query, info Info, cfg Config) (Criteria, error) {
	cfg.Validate()

	clauses, err := ParseFilter(q.Filter, info, q.IgnoreCase)
	if err != nil {
		return Criteria{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	// Offset+Limit must not overflow.
	maxOffset := math.MaxInt - limit
	offset := maxOffset
	if page <= maxOffset/limit {
		offset = page * limit
	}

	sortPath := resolveAlias(strings.TrimSpace(q.Sort), info)
	if sortPath == "" {
		sortPath = model.MetaID
	}
	ascending := q.Ascending == nil || *q.Ascending

	return Criteria{
		Clauses:   clauses,
		Offset:    offset,
		Limit:     limit,
		SortPath:  sortPath,
		SortKind:  kindOf(sortPath, info),
		Ascending: ascending,
		sortExpr:  pathExpr(sortPath),
	}, nil
}

// ParseFilter parses a clause expression. Clauses are separated by `&&`
// (or `;`), empty clauses are skipped.
func ParseFilter(filter string, info Info, ignoreCase bool) ([]Clause, error) {
	filter = strings.ReplaceAll(filter, "&&", ";")
	var clauses []Clause
	for _, raw := range strings.Split(filter, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: clause %q", ErrInvalidFilter, raw)
		}
		c, err := parseClause(key, value, info, ignoreCase)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func parseClause(key, value string, info Info, ignoreCase bool) (Clause, error) {
	path := resolveAlias(key, info)
	c := Clause{
		Path:       path,
		Op:         OpEq,
		Kind:       kindOf(path, info),
		IgnoreCase: ignoreCase,
		expr:       pathExpr(path),
	}

	switch {
	case strings.HasPrefix(value, "<"):
		c.Op, value = OpLt, value[1:]
	case strings.HasPrefix(value, ">"):
		c.Op, value = OpGt, value[1:]
	case strings.HasPrefix(value, "!"):
		c.Op, value = OpNe, value[1:]
	}

	if strings.Contains(value, "*") && (c.Op == OpEq || c.Op == OpNe) {
		if c.Op == OpEq {
			c.Op = OpMatch
		} else {
			c.Op = OpNotMatch
		}
		c.Kind = model.String
		c.Pattern = value
		c.Value = value
		c.re = wildcardRegexp(value, ignoreCase)
		return c, nil
	}

	switch c.Kind {
	case model.Number:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Clause{}, fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidFilter, key, value)
		}
		c.Value = f
	case model.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return Clause{}, fmt.Errorf("%w: %s expects a boolean, got %q", ErrInvalidFilter, key, value)
		}
		c.Value = b
	default:
		c.Kind = model.String
		c.Value = value
	}
	return c, nil
}

// wildcardRegexp translates a `*` pattern into an anchored expression.
func wildcardRegexp(pattern string, ignoreCase bool) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*") + "$"
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return regexp.MustCompile(expr)
}

func resolveAlias(key string, info Info) string {
	if target, ok := info.Aliases[key]; ok {
		return target
	}
	return key
}

func kindOf(path string, info Info) model.Kind {
	if k, ok := info.Kinds[path]; ok {
		return k
	}
	return model.String
}

// PathSegments splits a dotted storage path.
func PathSegments(path string) []string {
	return strings.Split(path, ".")
}

func pathExpr(path string) jp.Expr {
	x := jp.R()
	for _, seg := range PathSegments(path) {
		x = x.C(seg)
	}
	return x
}
