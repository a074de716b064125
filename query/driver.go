// Package query implements the lazy Selection query builder and the
// pluggable Driver contract every storage backend implements (§4.4,
// §6). Selection trees are immutable: every builder method returns a
// clone with one field changed, so a partially-built selection can be
// branched and reused safely.
package query

import (
	"context"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

// Driver is the contract a storage backend implements to back the
// Database Facade (§6). Table names here are the model's resolved
// TableName, never the Go model name.
type Driver interface {
	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Prepare creates or migrates a table for m, coalesced per §5's
	// generation counter: drivers may assume Prepare is not called
	// concurrently for the same table with a stale generation.
	Prepare(ctx context.Context, m *schema.Model) error

	// PrepareIndexes creates m's declared indexes and unique
	// constraints; split from Prepare so drivers can defer expensive
	// index builds until after bulk loads.
	PrepareIndexes(ctx context.Context, m *schema.Model) error

	// Drop removes a table entirely, used by test teardown and schema
	// resets.
	Drop(ctx context.Context, table string) error

	// Stats reports backend-wide and per-table size/row counts.
	Stats(ctx context.Context) (types.Stats, error)

	// Get evaluates sel and returns at most one row, or (nil, nil) if
	// no row matches.
	Get(ctx context.Context, sel *Selection) (map[string]any, error)

	// Eval evaluates sel and returns every matching row.
	Eval(ctx context.Context, sel *Selection) ([]map[string]any, error)

	// Set updates every row matched by sel's predicate with the field
	// values in data, returning the count of rows affected.
	Set(ctx context.Context, table string, sel *Selection, data map[string]any) (types.Result, error)

	// Create inserts one row into table and returns its last-insert id
	// (when the table is autoincrement) and rows-affected count.
	Create(ctx context.Context, table string, data map[string]any) (types.Result, error)

	// Upsert inserts data into table, or updates the matched row with
	// update when a conflicting unique/primary key already exists.
	Upsert(ctx context.Context, table string, data, update map[string]any, conflictKeys []string) (types.UpsertResult, error)

	// Remove deletes every row matched by sel's predicate.
	Remove(ctx context.Context, table string, sel *Selection) (types.Result, error)

	// Define declares or alters a table's schema ahead of Prepare,
	// used by drivers that synthesize DDL incrementally (e.g. adding
	// one column at a time rather than recreating the table).
	Define(ctx context.Context, m *schema.Model) error

	// WithTransaction runs fn against a session-bound Driver that
	// shares one underlying connection/transaction; fn's returned
	// error rolls the transaction back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Driver) error) error

	// Model returns the schema this driver currently believes is live
	// for table, or an error if it has never been prepared.
	Model(table string) (*schema.Model, error)
}
