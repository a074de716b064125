package memory

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

func userModel(t *testing.T) (*schema.Registry, *schema.Model) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
		"age":  {Kind: types.KindInteger},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	m, err := reg.Model("User")
	require.NoError(t, err)
	return reg, m
}

func TestCreateAssignsAutoIncrementID(t *testing.T) {
	_, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))

	res, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LastInsertID)

	res2, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Bob", "age": 40})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res2.LastInsertID)
}

func TestAutoIncrementSequenceNotReusedAfterRemove(t *testing.T) {
	reg, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	res2, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Bob", "age": 40})
	require.NoError(t, err)

	sel, err := query.From(reg, "u", "User").Where(map[string]any{"id": res2.LastInsertID})
	require.NoError(t, err)
	_, err = drv.Remove(context.Background(), m.TableName, sel)
	require.NoError(t, err)

	res3, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Cleo", "age": 20})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res3.LastInsertID, "removing the last row must not reuse its id")
}

func TestGetAndEvalRoundTripRows(t *testing.T) {
	reg, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))
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

	sel2 := query.From(reg, "u", "User")
	rows, err := drv.Eval(context.Background(), sel2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSetUpdatesMatchingRows(t *testing.T) {
	reg, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)

	sel, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	res, err := drv.Set(context.Background(), m.TableName, sel, map[string]any{"age": 31})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	sel2, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	row, err := drv.Get(context.Background(), sel2)
	require.NoError(t, err)
	assert.Equal(t, 31, row["age"])
}

func TestRemoveDeletesMatchingRows(t *testing.T) {
	reg, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)
	_, err = drv.Create(context.Background(), m.TableName, map[string]any{"name": "Bob", "age": 40})
	require.NoError(t, err)

	sel, err := query.From(reg, "u", "User").Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	res, err := drv.Remove(context.Background(), m.TableName, sel)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	stats, err := drv.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Tables[m.TableName].Count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	reg, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))
	_, err := drv.Create(context.Background(), m.TableName, map[string]any{"name": "Ada", "age": 30})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = drv.WithTransaction(context.Background(), func(ctx context.Context, tx query.Driver) error {
		_, err := tx.Create(ctx, m.TableName, map[string]any{"name": "Bob", "age": 40})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sel := query.From(reg, "u", "User")
	rows, err := drv.Eval(context.Background(), sel)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "transaction rollback should discard the uncommitted row")
}

func TestWithTransactionKeepsWritesOnSuccess(t *testing.T) {
	_, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))

	err := drv.WithTransaction(context.Background(), func(ctx context.Context, tx query.Driver) error {
		_, err := tx.Create(ctx, m.TableName, map[string]any{"name": "Ada", "age": 30})
		return err
	})
	require.NoError(t, err)

	stats, err := drv.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Tables[m.TableName].Count)
}

func TestUpsertInsertsThenMatches(t *testing.T) {
	_, m := userModel(t)
	drv := New()
	require.NoError(t, drv.Prepare(context.Background(), m))

	res, err := drv.Upsert(context.Background(), m.TableName,
		map[string]any{"name": "Ada"}, map[string]any{"age": 30}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Inserted)

	res2, err := drv.Upsert(context.Background(), m.TableName,
		map[string]any{"name": "Ada"}, map[string]any{"age": 31}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res2.Matched)
}
