package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) (*Driver, *schema.Registry, *schema.Model) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
		"age":  {Kind: types.KindInteger},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	m, err := reg.Model("User")
	require.NoError(t, err)

	drv, err := New(types.Config{FilePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, drv.Start(context.Background()))
	t.Cleanup(func() { drv.Stop(context.Background()) })
	require.NoError(t, drv.Prepare(context.Background(), m))
	require.NoError(t, drv.PrepareIndexes(context.Background(), m))
	return drv, reg, m
}

func TestSQLiteCreateAssignsAutoIncrementID(t *testing.T) {
	drv, _, m := newTestDriver(t)
	res, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LastInsertID)
}

func TestSQLiteGetAndEval(t *testing.T) {
	drv, reg, m := newTestDriver(t)
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	_, err = drv.Create(context.Background(), m.TableName, map[string]any{"name": "Bob", "age": 40})
	require.NoError(t, err)

	sel, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Bob"})
	require.NoError(t, err)
	row, err := drv.Get(context.Background(), sel)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Bob", row["name"])

	all, err := drv.Eval(context.Background(), query.From(reg, "u", "User"))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteSetAndRemove(t *testing.T) {
	drv, reg, m := newTestDriver(t)
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)

	sel, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	res, err := drv.Set(context.Background(), m.TableName, sel, map[string]any{"age": 31})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	sel2, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	got, err := drv.Get(context.Background(), sel2)
	require.NoError(t, err)
	assert.EqualValues(t, 31, got["age"])

	sel3, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	rres, err := drv.Remove(context.Background(), m.TableName, sel3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rres.RowsAffected)

	stats, err := drv.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Tables[m.TableName].Count)
}

func TestSQLiteTransactionRollsBackOnError(t *testing.T) {
	drv, reg, m := newTestDriver(t)
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = drv.WithTransaction(context.Background(), func(ctx context.Context, tx query.Driver) error {
		_, err := tx.Create(ctx, m.TableName, map[string]any{"name": "Bob", "age": 40})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := drv.Eval(context.Background(), query.From(reg, "u", "User"))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "rolled back transaction should leave only the pre-existing row")
}

func TestSQLiteURIParser(t *testing.T) {
	p := &URIParser{}
	cfg, err := p.ParseURI("sqlite:///tmp/test.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.FilePath)

	cfg2, err := p.ParseURI("sqlite://:memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg2.FilePath)
}
