// Package sqlite implements a SQL-backed Driver (§4.6, §6) on top of
// database/sql and mattn/go-sqlite3. Row storage and single-table
// writes go straight to SQL; Selection reads reuse the same in-memory
// join/predicate/projection engine the memory driver exercises (§4.4,
// §4.5), scanning each referenced table through the database once per
// query. THE CORE's driver contract names only this behavioral
// surface, not a SQL-compiling query planner, so pushing joins and
// predicates down into generated SQL is left for a future driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/registry"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/rediwo/redi-orm/utils"
)

func init() {
	registry.Register("sqlite", func(config types.Config) (query.Driver, error) {
		return New(config)
	})
	registry.RegisterURIParser("sqlite", &URIParser{})
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every
// statement-building method run unchanged whether or not it is
// currently inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Driver is the SQLite-backed query.Driver implementation.
type Driver struct {
	db     *sql.DB
	conn   execer // db by default, or the active transaction
	config types.Config
	models map[string]*schema.Model
	eval   *expr.Evaluator
}

// New opens (but does not connect) a SQLite driver for config.
func New(config types.Config) (*Driver, error) {
	return &Driver{config: config, models: make(map[string]*schema.Model)}, nil
}

func (d *Driver) Start(ctx context.Context) error {
	path := d.config.FilePath
	if path == "" {
		path = d.config.Database
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	d.db = db
	d.conn = db
	d.eval = &expr.Evaluator{Resolver: d.resolveSubquery}
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Prepare creates table if it does not already exist. SQLite's
// "CREATE TABLE IF NOT EXISTS" intentionally does not alter an
// existing table's columns: schema migration beyond table creation is
// left to model.Migrations hooks (§5).
func (d *Driver) Prepare(ctx context.Context, m *schema.Model) error {
	d.models[m.TableName] = m
	ddl := buildCreateTable(m)
	if _, err := d.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table %q: %w", m.TableName, err)
	}
	return nil
}

// PrepareIndexes creates every declared unique constraint and index.
func (d *Driver) PrepareIndexes(ctx context.Context, m *schema.Model) error {
	for _, cols := range m.Unique {
		name := utils.GenerateIndexName(m.TableName, cols, true, "")
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent(name), quoteIdent(m.TableName), strings.Join(quoteIdents(cols), ", "))
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: unique index on %q: %w", m.TableName, err)
		}
	}
	for _, idx := range m.Indexes {
		name := utils.GenerateIndexName(m.TableName, idx.Fields, idx.Unique, idx.Name)
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, quoteIdent(name), quoteIdent(m.TableName), strings.Join(quoteIdents(idx.Fields), ", "))
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: index on %q: %w", m.TableName, err)
		}
	}
	return nil
}

func (d *Driver) Drop(ctx context.Context, table string) error {
	_, err := d.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table))
	delete(d.models, table)
	return err
}

func (d *Driver) Define(ctx context.Context, m *schema.Model) error {
	return d.Prepare(ctx, m)
}

func (d *Driver) Stats(ctx context.Context) (types.Stats, error) {
	stats := types.Stats{Tables: make(map[string]types.TableStats, len(d.models))}
	for table := range d.models {
		var count int64
		row := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table))
		if err := row.Scan(&count); err != nil {
			return types.Stats{}, fmt.Errorf("sqlite: stats for %q: %w", table, err)
		}
		stats.Tables[table] = types.TableStats{Count: count}
		stats.Size += count
	}
	return stats, nil
}

func (d *Driver) source(ctx context.Context) query.TableSource {
	return func(table string) ([]map[string]any, error) {
		rows, err := d.conn.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan %q: %w", table, err)
		}
		defer rows.Close()
		return utils.ScanRowsToMaps(rows)
	}
}

func (d *Driver) resolveSubquery(sub any, ctx *expr.RowContext) ([]any, error) {
	sel, ok := sub.(*query.Selection)
	if !ok {
		return nil, fmt.Errorf("sqlite: unsupported subquery handle %T", sub)
	}
	rows, err := query.Execute(sel, d.source(context.Background()), d.eval)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

func (d *Driver) Get(ctx context.Context, sel *query.Selection) (map[string]any, error) {
	rows, err := query.Execute(sel.Limit(1), d.source(ctx), d.eval)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (d *Driver) Eval(ctx context.Context, sel *query.Selection) ([]map[string]any, error) {
	return query.Execute(sel, d.source(ctx), d.eval)
}

func (d *Driver) Create(ctx context.Context, table string, data map[string]any) (types.Result, error) {
	cols, args := sortedAssignments(data)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoteIdents(cols), ", "), strings.Join(placeholders, ", "))
	res, err := d.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return types.Result{}, fmt.Errorf("sqlite: insert into %q: %w", table, err)
	}
	lastID, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return types.Result{LastInsertID: lastID, RowsAffected: affected}, nil
}

func (d *Driver) Upsert(ctx context.Context, table string, data, update map[string]any, conflictKeys []string) (types.UpsertResult, error) {
	cols, args := sortedAssignments(data)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	updateCols, updateArgs := sortedAssignments(update)
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = quoteIdent(c) + " = ?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(table), strings.Join(quoteIdents(cols), ", "), strings.Join(placeholders, ", "),
		strings.Join(quoteIdents(conflictKeys), ", "), strings.Join(sets, ", "))
	res, err := d.conn.ExecContext(ctx, stmt, append(args, updateArgs...)...)
	if err != nil {
		return types.UpsertResult{}, fmt.Errorf("sqlite: upsert into %q: %w", table, err)
	}
	affected, _ := res.RowsAffected()
	if affected > 1 {
		return types.UpsertResult{Matched: affected}, nil
	}
	return types.UpsertResult{Inserted: affected}, nil
}

func (d *Driver) Set(ctx context.Context, table string, sel *query.Selection, data map[string]any) (types.Result, error) {
	keys, err := d.matchingKeys(ctx, table, sel)
	if err != nil {
		return types.Result{}, err
	}
	if len(keys) == 0 {
		return types.Result{}, nil
	}
	cols, args := sortedAssignments(data)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
	}
	where, whereArgs := keyFilter(d.models[table], keys)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quoteIdent(table), strings.Join(sets, ", "), where)
	res, err := d.conn.ExecContext(ctx, stmt, append(args, whereArgs...)...)
	if err != nil {
		return types.Result{}, fmt.Errorf("sqlite: update %q: %w", table, err)
	}
	affected, _ := res.RowsAffected()
	return types.Result{RowsAffected: affected}, nil
}

func (d *Driver) Remove(ctx context.Context, table string, sel *query.Selection) (types.Result, error) {
	keys, err := d.matchingKeys(ctx, table, sel)
	if err != nil {
		return types.Result{}, err
	}
	if len(keys) == 0 {
		return types.Result{}, nil
	}
	where, whereArgs := keyFilter(d.models[table], keys)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), where)
	res, err := d.conn.ExecContext(ctx, stmt, whereArgs...)
	if err != nil {
		return types.Result{}, fmt.Errorf("sqlite: delete from %q: %w", table, err)
	}
	affected, _ := res.RowsAffected()
	return types.Result{RowsAffected: affected}, nil
}

// matchingKeys evaluates sel in-process (reusing the shared execution
// engine) and returns the primary-key tuples of the rows it matched,
// so Set/Remove can re-target them with a precise SQL WHERE clause.
func (d *Driver) matchingKeys(ctx context.Context, table string, sel *query.Selection) ([][]any, error) {
	m := d.models[table]
	if m == nil {
		return nil, fmt.Errorf("sqlite: table %q not prepared", table)
	}
	rows, err := query.Execute(sel, d.source(ctx), d.eval)
	if err != nil {
		return nil, err
	}
	keys := make([][]any, len(rows))
	for i, r := range rows {
		keys[i] = m.PrimaryTuple(r)
	}
	return keys, nil
}

func keyFilter(m *schema.Model, keys [][]any) (string, []any) {
	var clauses []string
	var args []any
	for _, tuple := range keys {
		cols := make([]string, len(m.Primary))
		for i, col := range m.Primary {
			cols[i] = quoteIdent(col) + " = ?"
			args = append(args, tuple[i])
		}
		clauses = append(clauses, "("+strings.Join(cols, " AND ")+")")
	}
	return strings.Join(clauses, " OR "), args
}

func (d *Driver) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx query.Driver) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	txDriver := &Driver{db: d.db, conn: tx, config: d.config, models: d.models}
	txDriver.eval = &expr.Evaluator{Resolver: txDriver.resolveSubquery}
	if err := fn(ctx, txDriver); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: rollback after %w: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (d *Driver) Model(table string) (*schema.Model, error) {
	m, ok := d.models[table]
	if !ok {
		return nil, fmt.Errorf("sqlite: table %q not prepared", table)
	}
	return m, nil
}
