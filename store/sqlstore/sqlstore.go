// Package sqlstore implements store.Backend on SQLite and Postgres. All
// collections share one documents table keyed by (collection, id); the
// document body is stored as JSON and queried with the dialect's JSON path
// operators.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
)

// Config selects the database.
type Config struct {
	// Dialect is "sqlite" or "postgres".
	// Default: "sqlite"
	Dialect string

	// DSN is the driver data source (a file path for SQLite).
	DSN string
}

// Backend is a store.Backend over database/sql.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	cfg     store.Config
	sq      sq.StatementBuilderType
	docs    string
	updates string
	now     func() time.Time
}

// Open connects to the database and creates the backing tables.
func Open(ctx context.Context, cfg Config, storeCfg store.Config) (*Backend, error) {
	dialect, err := DialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, errors.New("sqlstore: DSN is required")
	}
	db, err := sql.Open(dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	b := New(db, dialect, storeCfg)
	if err := b.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an open database. Tables are not created; use Open for that.
func New(db *sql.DB, dialect Dialect, cfg store.Config) *Backend {
	cfg.Validate()
	return &Backend{
		db:      db,
		dialect: dialect,
		cfg:     cfg,
		sq:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholder),
		docs:    cfg.TablePrefix + "documents",
		updates: cfg.TablePrefix + "last_updates",
		now:     time.Now,
	}
}

// DB exposes the underlying database for tests.
func (b *Backend) DB() *sql.DB { return b.db }

func (b *Backend) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			rev BIGINT NOT NULL,
			updated BIGINT NOT NULL,
			doc %s NOT NULL,
			PRIMARY KEY (collection, id)
		)`, b.docs, b.dialect.docType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT PRIMARY KEY,
			updated BIGINT NOT NULL
		)`, b.updates),
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// Collection returns a handle on the named collection.
func (b *Backend) Collection(_ context.Context, info store.Info) (store.Collection, error) {
	if info.Name == "" {
		return nil, fmt.Errorf("%w: empty name", store.ErrUnknownCollection)
	}
	return &Collection{b: b, info: info}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Collection is one collection stored in the shared documents table.
type Collection struct {
	b    *Backend
	info store.Info
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

// Get loads one document.
func (c *Collection) Get(ctx context.Context, id string) (store.Document, bool, error) {
	query, args, err := c.b.sq.Select("doc").From(c.b.docs).
		Where(sq.Eq{"collection": c.info.Name, "id": id}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build select: %w", err)
	}
	var raw string
	err = c.b.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", c.info.Name, id, err)
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Exists reports whether id is stored.
func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	query, args, err := c.b.sq.Select("COUNT(*)").From(c.b.docs).
		Where(sq.Eq{"collection": c.info.Name, "id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := c.b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", c.info.Name, id, err)
	}
	return n > 0, nil
}

// Save upserts doc inside a transaction, checking the stored revision.
func (c *Collection) Save(ctx context.Context, doc store.Document) (retErr error) {
	id, err := store.RequireID(doc)
	if err != nil {
		return err
	}
	normalized, err := store.Normalize(doc)
	if err != nil {
		return err
	}

	tx, err := c.b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := c.b.sq.Select("rev").From(c.b.docs).
		Where(sq.Eq{"collection": c.info.Name, "id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	var stored int64
	exists := true
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&stored); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load revision %s/%s: %w", c.info.Name, id, err)
		}
		exists = false
	}
	if err := store.CheckRevision(store.Revision(doc), stored, exists); err != nil {
		return err
	}

	at := c.b.now()
	stamped := store.Stamp(normalized, id, stored+1, at)
	body, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.info.Name, id, err)
	}

	var write sq.Sqlizer
	if exists {
		write = c.b.sq.Update(c.b.docs).
			Set("rev", stored+1).
			Set("updated", at.Unix()).
			Set("doc", sq.Expr(c.b.dialect.docValue, string(body))).
			Where(sq.Eq{"collection": c.info.Name, "id": id, "rev": stored})
	} else {
		write = c.b.sq.Insert(c.b.docs).
			Columns("collection", "id", "rev", "updated", "doc").
			Values(c.info.Name, id, stored+1, at.Unix(), sq.Expr(c.b.dialect.docValue, string(body))).
			Suffix("ON CONFLICT (collection, id) DO NOTHING")
	}
	query, args, err = write.ToSql()
	if err != nil {
		return fmt.Errorf("build write: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", c.info.Name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s changed during save", store.ErrConcurrentModification, c.info.Name, id)
	}

	if err := c.touch(ctx, tx, at); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes doc by identifier.
func (c *Collection) Delete(ctx context.Context, doc store.Document) (retErr error) {
	id, err := store.RequireID(doc)
	if err != nil {
		return err
	}
	tx, err := c.b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := c.b.sq.Delete(c.b.docs).
		Where(sq.Eq{"collection": c.info.Name, "id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.info.Name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if err := c.touch(ctx, tx, c.b.now()); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *Collection) touch(ctx context.Context, tx *sql.Tx, at time.Time) error {
	query, args, err := c.b.sq.Insert(c.b.updates).
		Columns("collection", "updated").
		Values(c.info.Name, at.UnixNano()).
		Suffix("ON CONFLICT (collection) DO UPDATE SET updated = excluded.updated").
		ToSql()
	if err != nil {
		return fmt.Errorf("build marker: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update marker %s: %w", c.info.Name, err)
	}
	return nil
}

// Query runs the filter in SQL and returns one page plus the total count.
func (c *Collection) Query(ctx context.Context, q store.Query) ([]store.Document, int, error) {
	criteria, err := store.Compile(q, c.info, c.b.cfg)
	if err != nil {
		return nil, 0, err
	}
	where := sq.And{sq.Eq{"collection": c.info.Name}}
	for _, clause := range criteria.Clauses {
		where = append(where, c.b.dialect.clause(clause))
	}

	query, args, err := c.b.sq.Select("COUNT(*)").From(c.b.docs).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := c.b.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", c.info.Name, err)
	}

	sortExpr, sortArgs := c.b.dialect.extract(criteria.SortPath, criteria.SortKind)
	direction := "ASC"
	if !criteria.Ascending {
		direction = "DESC"
	}
	collate := ""
	if criteria.SortKind != model.Number {
		collate = c.b.dialect.collate
	}
	sel := c.b.sq.Select("doc").From(c.b.docs).Where(where).
		OrderByClause("("+sortExpr+") IS NULL", sortArgs...).
		OrderByClause(sortExpr+collate+" "+direction, sortArgs...).
		OrderBy("id" + c.b.dialect.collate).
		Limit(uint64(criteria.Limit)).
		Offset(uint64(criteria.Offset))
	query, args, err = sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build select: %w", err)
	}
	rows, err := c.b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", c.info.Name, err)
	}
	defer func() { _ = rows.Close() }()

	docs := []store.Document{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate %s: %w", c.info.Name, err)
	}
	return docs, total, nil
}

// LastUpdate reads the collection marker.
func (c *Collection) LastUpdate(ctx context.Context) (time.Time, error) {
	query, args, err := c.b.sq.Select("updated").From(c.b.updates).
		Where(sq.Eq{"collection": c.info.Name}).ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build select: %w", err)
	}
	var nanos int64
	err = c.b.db.QueryRowContext(ctx, query, args...).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last update %s: %w", c.info.Name, err)
	}
	return time.Unix(0, nanos), nil
}

func decode(raw string) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// clause renders one filter clause as a squirrel predicate.
func (d Dialect) clause(c store.Clause) sq.Sqlizer {
	expr, args := d.extract(c.Path, c.Kind)

	switch c.Op {
	case store.OpMatch, store.OpNotMatch:
		text, textArgs := d.text(c.Path)
		match, matchArgs := d.match(text, c.Pattern, c.IgnoreCase)
		pred := sq.Expr(match, append(textArgs, matchArgs...)...)
		if c.Op == store.OpMatch {
			return pred
		}
		null, nullArgs := d.text(c.Path)
		return sq.Or{sq.Expr(null+" IS NULL", nullArgs...), sq.Expr("NOT ("+match+")", append(textArgs, matchArgs...)...)}
	}

	value := c.Value
	switch v := c.Value.(type) {
	case bool:
		value = d.boolean(v)
	case string:
		if c.IgnoreCase && (c.Op == store.OpEq || c.Op == store.OpNe) {
			expr = "LOWER(" + expr + ")"
			value = strings.ToLower(v)
		}
		if c.Op == store.OpLt || c.Op == store.OpGt {
			expr += d.collate
		}
	}

	var op string
	switch c.Op {
	case store.OpEq:
		op = " = ?"
	case store.OpNe:
		op = " <> ?"
	case store.OpLt:
		op = " < ?"
	case store.OpGt:
		op = " > ?"
	}
	pred := sq.Expr(expr+op, append(args, value)...)
	if c.Op == store.OpNe {
		null, nullArgs := d.extract(c.Path, c.Kind)
		return sq.Or{sq.Expr(null+" IS NULL", nullArgs...), pred}
	}
	return pred
}
