// Package database implements the Database Facade (§4.6): schema and
// type registry orchestration, read/write orchestration delegating to
// the relation engine, transactions, and stats aggregation.
package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/logger"
	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/relation"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// DB is the Database Facade: a schema registry paired with a driver,
// coordinating schema preparation, queries, and nested writes.
type DB struct {
	mu     sync.Mutex
	reg    *schema.Registry
	driver query.Driver
	gen    map[string]int // last-prepared generation per model, §5 coalescing
	log    logger.Logger
}

// New binds a schema registry to a driver, whether opened through
// registry.Open (as the CLI does) or constructed directly (e.g. in tests).
func New(reg *schema.Registry, drv query.Driver) *DB {
	return &DB{
		reg:    reg,
		driver: drv,
		gen:    make(map[string]int),
		log:    logger.GetGlobalLogger(),
	}
}

// Extend merges field and config declarations into a model (§4.1).
func (db *DB) Extend(name string, fields map[string]schema.FieldSpec, config schema.ModelConfig) error {
	return db.reg.Extend(name, fields, config)
}

// Define registers a named custom type (§4.1).
func (db *DB) Define(name string, spec schema.CustomTypeSpec) (string, error) {
	return db.reg.Define(name, spec)
}

// Prepare resolves every relation declared since the last Prepare,
// then asks the driver to create or migrate each model whose
// generation counter has advanced, running its migration hooks
// afterward (§4.6, §5).
func (db *DB) Prepare(ctx context.Context) error {
	if err := relation.ResolveAll(db.reg); err != nil {
		return types.NewConfigurationError("database.Prepare", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, name := range db.reg.Models() {
		m, err := db.reg.Model(name)
		if err != nil {
			return err
		}
		generation := db.reg.Generation(name)
		if db.gen[name] == generation {
			continue // already prepared at this generation (§5 coalescing)
		}
		if err := db.driver.Prepare(ctx, m); err != nil {
			return types.NewDriverError("database.Prepare", err)
		}
		if err := db.driver.PrepareIndexes(ctx, m); err != nil {
			return types.NewDriverError("database.Prepare", err)
		}
		for _, migrate := range m.Migrations {
			if err := migrate(); err != nil {
				return fmt.Errorf("database: migration for %q: %w", name, err)
			}
		}
		db.gen[name] = generation
		db.log.Debug("prepared %s (generation %d)", name, generation)
	}
	return nil
}

// Select builds a Selection over model, applying a query-predicate
// map, relation includes, and modifiers, then evaluates it.
func (db *DB) Select(ctx context.Context, model string, q map[string]any, includes []string, opts ...SelectOption) ([]map[string]any, error) {
	sel, err := db.buildSelection(ctx, model, q, includes, opts)
	if err != nil {
		return nil, err
	}
	return db.driver.Eval(ctx, sel)
}

// Get is Select bounded to at most one row.
func (db *DB) Get(ctx context.Context, model string, q map[string]any, includes []string, opts ...SelectOption) (map[string]any, error) {
	sel, err := db.buildSelection(ctx, model, q, includes, append(opts, WithLimit(1)))
	if err != nil {
		return nil, err
	}
	return db.driver.Get(ctx, sel)
}

// SelectOption shapes a read query beyond its predicate/includes.
type SelectOption func(*query.Selection) *query.Selection

func WithLimit(n int) SelectOption  { return func(s *query.Selection) *query.Selection { return s.Limit(n) } }
func WithOffset(n int) SelectOption { return func(s *query.Selection) *query.Selection { return s.Offset(n) } }
func WithOrderBy(path []string, desc bool) SelectOption {
	return func(s *query.Selection) *query.Selection { return s.OrderBy(path, desc) }
}

func (db *DB) buildSelection(ctx context.Context, model string, q map[string]any, includes []string, opts []SelectOption) (*query.Selection, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return nil, err
	}
	sel := query.From(db.reg, "root", model)
	sel, err = sel.Where(q)
	if err != nil {
		return nil, err
	}
	for _, path := range includes {
		sel, err = relation.ApplyInclude(db.reg, sel, m, path, nil)
		if err != nil {
			return nil, err
		}
	}
	sel, err = relation.ResolveRelationFilters(ctx, db.reg, db.driver, m, sel)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		sel = opt(sel)
	}
	return sel, nil
}

// Join exposes the query builder's low-level join entry point for
// callers constructing a Selection by hand (§4.4).
func (db *DB) Join(alias string, kind query.JoinKind, left, right *query.Selection, on *expr.Node) (*query.Selection, error) {
	return left.Join(alias, kind, right, on)
}

// Create inserts data into model's table, orchestrating any nested
// relation mutations through the relation engine (§4.6, §4.8).
func (db *DB) Create(ctx context.Context, model string, data map[string]any) (map[string]any, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return nil, err
	}
	return relation.CreateOrUpdate(ctx, db.reg, db.driver, m, data)
}

// Upsert inserts data into model's table, or applies update to the
// row matching conflictKeys if one already exists.
func (db *DB) Upsert(ctx context.Context, model string, data, update map[string]any, conflictKeys []string) (types.UpsertResult, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return types.UpsertResult{}, err
	}
	row := m.Create(data)
	return db.driver.Upsert(ctx, m.TableName, row, update, conflictKeys)
}

// Set updates every row of model matched by q with data. Primary key
// columns may never be modified this way. If data references any
// relation field, the update runs in a transaction: every matched row
// is read first, each relation key dispatches relation.ProcessUpdate
// against it, and finally the base update (relation fields stripped)
// runs via the driver — skipped entirely if nothing plain remains
// (§4.6, §5).
func (db *DB) Set(ctx context.Context, model string, q map[string]any, data map[string]any) (types.Result, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return types.Result{}, err
	}
	for _, col := range m.Primary {
		if _, ok := data[col]; ok {
			return types.Result{}, types.NewValidationError("database.Set", fmt.Errorf("modification of primary key %q on %q is not allowed", col, model))
		}
	}

	formatted, err := m.Format(data, false)
	if err != nil {
		return types.Result{}, err
	}
	plain, tasks, err := relation.SplitPayload(m, formatted)
	if err != nil {
		return types.Result{}, err
	}
	if len(tasks) == 0 {
		return db.setPlain(ctx, db.driver, m, q, plain)
	}

	var result types.Result
	err = db.driver.WithTransaction(ctx, func(ctx context.Context, tx query.Driver) error {
		sel, err := query.From(db.reg, "root", model).Where(q)
		if err != nil {
			return err
		}
		sel, err = relation.ResolveRelationFilters(ctx, db.reg, tx, m, sel)
		if err != nil {
			return err
		}
		cols := relation.UpdateProjection(m, tasks)
		fields := make(map[string]*expr.Node, len(cols))
		for _, col := range cols {
			fields[col] = expr.Get(sel.Alias, []string{col}, m.Fields[col].Type)
		}
		owners, err := tx.Eval(ctx, sel.Project(fields))
		if err != nil {
			return err
		}

		for _, owner := range owners {
			for _, t := range tasks {
				if err := relation.ProcessUpdate(ctx, db.reg, tx, m, owner, t); err != nil {
					return err
				}
			}
		}

		if len(plain) == 0 {
			result = types.Result{RowsAffected: int64(len(owners))}
			return nil
		}
		res, err := db.setPlain(ctx, tx, m, q, plain)
		result = res
		return err
	})
	return result, err
}

func (db *DB) setPlain(ctx context.Context, drv query.Driver, m *schema.Model, q, data map[string]any) (types.Result, error) {
	sel, err := query.From(db.reg, "root", m.Name).Where(q)
	if err != nil {
		return types.Result{}, err
	}
	sel, err = relation.ResolveRelationFilters(ctx, db.reg, drv, m, sel)
	if err != nil {
		return types.Result{}, err
	}
	return drv.Set(ctx, m.TableName, sel, data)
}

// Eval computes a single aggregation expression over model's rows
// matched by q (§4.4's evaluate builder, §4.6/§6's eval operation).
// The matched rows are folded as one group, so the aggregate is still
// computed when no row matches (count yields 0, min/max yield nil).
func (db *DB) Eval(ctx context.Context, model string, q map[string]any, agg *expr.Node) (any, error) {
	sel, err := db.buildSelection(ctx, model, q, nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := db.driver.Eval(ctx, sel.Evaluate(agg))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0][query.EvalField], nil
}

// Remove deletes every row of model matched by q.
func (db *DB) Remove(ctx context.Context, model string, q map[string]any) (types.Result, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return types.Result{}, err
	}
	sel, err := query.From(db.reg, "root", model).Where(q)
	if err != nil {
		return types.Result{}, err
	}
	sel, err = relation.ResolveRelationFilters(ctx, db.reg, db.driver, m, sel)
	if err != nil {
		return types.Result{}, err
	}
	return db.driver.Remove(ctx, m.TableName, sel)
}

// Transact runs fn against a session-bound Database Facade sharing one
// underlying driver transaction; fn's returned error rolls it back.
// It does not check for an enclosing transaction: a nested Transact
// call goes straight to the driver's WithTransaction, and neither the
// memory nor the SQLite driver rejects it (§4.6, §4.8).
func (db *DB) Transact(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	return db.driver.WithTransaction(ctx, func(ctx context.Context, txDriver query.Driver) error {
		tx := &DB{reg: db.reg, driver: txDriver, gen: db.gen, log: db.log}
		return fn(ctx, tx)
	})
}

// Stats reports the driver's size/row-count summary.
func (db *DB) Stats(ctx context.Context) (types.Stats, error) {
	return db.driver.Stats(ctx)
}

// Driver exposes the bound driver directly, for callers that need
// driver-specific operations outside the facade's surface.
func (db *DB) Driver() query.Driver { return db.driver }

// Registry exposes the bound schema registry.
func (db *DB) Registry() *schema.Registry { return db.reg }
