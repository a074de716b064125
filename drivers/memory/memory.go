// Package memory implements the in-memory reference Driver (§4.6's
// external interfaces, §8): a process-local table store good enough to
// exercise every Database Facade and relation engine operation in unit
// tests without a real storage backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// Driver is a concurrency-safe, process-local implementation of
// query.Driver backed by plain Go maps, the reference backend for
// THE CORE's own test suite.
type Driver struct {
	mu      sync.RWMutex
	tables  map[string][]map[string]any
	models  map[string]*schema.Model // keyed by table name
	autoInc map[string]*int64
	eval    *expr.Evaluator
}

// New creates an empty in-memory driver.
func New() *Driver {
	d := &Driver{
		tables:  make(map[string][]map[string]any),
		models:  make(map[string]*schema.Model),
		autoInc: make(map[string]*int64),
	}
	d.eval = &expr.Evaluator{Resolver: d.resolveSubquery}
	return d
}

func (d *Driver) Start(ctx context.Context) error { return nil }
func (d *Driver) Stop(ctx context.Context) error  { return nil }

func (d *Driver) Prepare(ctx context.Context, m *schema.Model) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[m.TableName]; !ok {
		d.tables[m.TableName] = nil
	}
	d.models[m.TableName] = m
	if m.AutoIncrement {
		if _, ok := d.autoInc[m.TableName]; !ok {
			var n int64
			d.autoInc[m.TableName] = &n
		}
	}
	return nil
}

// PrepareIndexes is a no-op: the in-memory driver has no index
// structures to build, it scans its table slices directly.
func (d *Driver) PrepareIndexes(ctx context.Context, m *schema.Model) error { return nil }

func (d *Driver) Drop(ctx context.Context, table string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables, table)
	delete(d.models, table)
	delete(d.autoInc, table)
	return nil
}

func (d *Driver) Define(ctx context.Context, m *schema.Model) error {
	return d.Prepare(ctx, m)
}

func (d *Driver) Stats(ctx context.Context) (types.Stats, error) {
	stats := types.Stats{Tables: make(map[string]types.TableStats)}
	for _, table := range d.sortedTables() {
		d.mu.RLock()
		rows := d.tables[table]
		d.mu.RUnlock()
		stats.Tables[table] = types.TableStats{Count: int64(len(rows))}
		stats.Size += int64(len(rows))
	}
	return stats, nil
}

func (d *Driver) source() query.TableSource {
	return func(table string) ([]map[string]any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		rows, ok := d.tables[table]
		if !ok {
			return nil, fmt.Errorf("memory: table %q not prepared", table)
		}
		out := make([]map[string]any, len(rows))
		for i, r := range rows {
			out[i] = cloneRow(r)
		}
		return out, nil
	}
}

func (d *Driver) resolveSubquery(sub any, ctx *expr.RowContext) ([]any, error) {
	sel, ok := sub.(*query.Selection)
	if !ok {
		return nil, fmt.Errorf("memory: unsupported subquery handle %T", sub)
	}
	rows, err := query.Execute(sel, d.source(), d.eval)
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
	limited := sel.Limit(1)
	rows, err := query.Execute(limited, d.source(), d.eval)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (d *Driver) Eval(ctx context.Context, sel *query.Selection) ([]map[string]any, error) {
	return query.Execute(sel, d.source(), d.eval)
}

func (d *Driver) Create(ctx context.Context, table string, data map[string]any) (types.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := cloneRow(data)
	m := d.models[table]
	var lastID int64
	if m != nil && m.AutoIncrement && len(m.Primary) == 1 {
		counter := d.autoInc[table]
		lastID = atomic.AddInt64(counter, 1)
		row[m.Primary[0]] = lastID
	}
	d.tables[table] = append(d.tables[table], row)
	return types.Result{LastInsertID: lastID, RowsAffected: 1}, nil
}

func (d *Driver) Upsert(ctx context.Context, table string, data, update map[string]any, conflictKeys []string) (types.UpsertResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows := d.tables[table]
	for i, row := range rows {
		if matchesKeys(row, data, conflictKeys) {
			for k, v := range update {
				rows[i][k] = v
			}
			return types.UpsertResult{Matched: 1}, nil
		}
	}
	d.tables[table] = append(rows, cloneRow(data))
	return types.UpsertResult{Inserted: 1}, nil
}

func (d *Driver) Set(ctx context.Context, table string, sel *query.Selection, data map[string]any) (types.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	matched, err := d.matchingIndexes(table, sel)
	if err != nil {
		return types.Result{}, err
	}
	rows := d.tables[table]
	for _, i := range matched {
		for k, v := range data {
			rows[i][k] = v
		}
	}
	return types.Result{RowsAffected: int64(len(matched))}, nil
}

func (d *Driver) Remove(ctx context.Context, table string, sel *query.Selection) (types.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	matched, err := d.matchingIndexes(table, sel)
	if err != nil {
		return types.Result{}, err
	}
	remove := make(map[int]bool, len(matched))
	for _, i := range matched {
		remove[i] = true
	}
	rows := d.tables[table]
	kept := rows[:0]
	for i, r := range rows {
		if !remove[i] {
			kept = append(kept, r)
		}
	}
	d.tables[table] = kept
	return types.Result{RowsAffected: int64(len(matched))}, nil
}

// matchingIndexes evaluates sel's predicate against table's rows while
// holding the write lock already acquired by the caller, returning the
// matching row indexes (Set/Remove need indexes, not copies).
func (d *Driver) matchingIndexes(table string, sel *query.Selection) ([]int, error) {
	rows := d.tables[table]
	pred := sel.Predicate()
	var out []int
	for i, row := range rows {
		if pred == nil {
			out = append(out, i)
			continue
		}
		ctx := expr.NewRow(sel.Alias, row)
		ok, err := d.eval.Eval(pred, ctx)
		if err != nil {
			return nil, err
		}
		if b, _ := ok.(bool); b {
			out = append(out, i)
		}
	}
	return out, nil
}

func (d *Driver) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx query.Driver) error) error {
	// The in-memory driver has no partial-write visibility to hide, so
	// a transaction is a snapshot-and-restore around fn: on error, the
	// pre-call table state is restored in full (§4.6, §4.8).
	d.mu.Lock()
	snapshot := make(map[string][]map[string]any, len(d.tables))
	for table, rows := range d.tables {
		cp := make([]map[string]any, len(rows))
		for i, r := range rows {
			cp[i] = cloneRow(r)
		}
		snapshot[table] = cp
	}
	autoIncSnapshot := make(map[string]int64, len(d.autoInc))
	for table, counter := range d.autoInc {
		autoIncSnapshot[table] = atomic.LoadInt64(counter)
	}
	d.mu.Unlock()

	if err := fn(ctx, d); err != nil {
		d.mu.Lock()
		d.tables = snapshot
		for table, v := range autoIncSnapshot {
			n := v
			d.autoInc[table] = &n
		}
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *Driver) Model(table string) (*schema.Model, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.models[table]
	if !ok {
		return nil, fmt.Errorf("memory: table %q not prepared", table)
	}
	return m, nil
}

func matchesKeys(row, data map[string]any, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if row[k] != data[k] {
			return false
		}
	}
	return true
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// sortedTables returns table names in deterministic order, used by
// Stats and test helpers that iterate d.tables.
func (d *Driver) sortedTables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.tables))
	for t := range d.tables {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
