package sqlstore

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/jacentio/relval/model"
)

// Dialect adapts JSON path extraction and pattern matching to one database.
type Dialect struct {
	// Name is the configuration name ("sqlite" or "postgres").
	Name string

	// Driver is the database/sql driver name.
	Driver string

	placeholder sq.PlaceholderFormat
	docType     string
	docValue    string
	collate     string
	text        func(path string) (string, []any)
	number      func(path string) (string, []any)
	match       func(expr string, pattern string, ignoreCase bool) (string, []any)
	boolean     func(b bool) any
}

// SQLite stores documents as JSON text and queries them with json_extract.
var SQLite = Dialect{
	Name:        "sqlite",
	Driver:      "sqlite",
	placeholder: sq.Question,
	docType:     "TEXT",
	docValue:    "?",
	text: func(path string) (string, []any) {
		return "json_extract(doc, ?)", []any{sqlitePath(path)}
	},
	number: func(path string) (string, []any) {
		return "CAST(json_extract(doc, ?) AS REAL)", []any{sqlitePath(path)}
	},
	match: func(expr, pattern string, ignoreCase bool) (string, []any) {
		glob := globPattern(pattern)
		if ignoreCase {
			return "LOWER(" + expr + ") GLOB ?", []any{strings.ToLower(glob)}
		}
		return expr + " GLOB ?", []any{glob}
	},
	boolean: func(b bool) any {
		if b {
			return 1
		}
		return 0
	},
}

// Postgres stores documents as JSONB and queries them with the #>> operator.
var Postgres = Dialect{
	Name:        "postgres",
	Driver:      "pgx",
	placeholder: sq.Dollar,
	docType:     "JSONB",
	docValue:    "?::jsonb",
	collate:     ` COLLATE "C"`,
	text: func(path string) (string, []any) {
		return "(doc #>> ?::text[])", []any{pgPath(path)}
	},
	number: func(path string) (string, []any) {
		p := pgPath(path)
		return "(CASE WHEN jsonb_typeof(doc #> ?::text[]) = 'number' THEN (doc #>> ?::text[])::double precision END)", []any{p, p}
	},
	match: func(expr, pattern string, ignoreCase bool) (string, []any) {
		op := " LIKE ?"
		if ignoreCase {
			op = " ILIKE ?"
		}
		return expr + op, []any{likePattern(pattern)}
	},
	boolean: func(b bool) any {
		return fmt.Sprint(b)
	},
}

// DialectFor returns the dialect with the given name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case SQLite.Name, "":
		return SQLite, nil
	case Postgres.Name, "postgresql", "pgx":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("sqlstore: unknown dialect %q", name)
}

func (d Dialect) extract(path string, kind model.Kind) (string, []any) {
	if kind == model.Number {
		return d.number(path)
	}
	return d.text(path)
}

// sqlitePath renders a dotted path as a quoted SQLite JSON path ($."a"."b").
func sqlitePath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(path, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(seg, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

// pgPath splits a dotted path into the text[] operand of #> and #>>.
func pgPath(path string) []string {
	return strings.Split(path, ".")
}

// globPattern escapes GLOB metacharacters other than `*`.
func globPattern(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '[':
			b.WriteString("[[]")
		case '?':
			b.WriteString("[?]")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// likePattern escapes LIKE metacharacters and turns `*` into `%`.
func likePattern(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return r.Replace(pattern)
}
