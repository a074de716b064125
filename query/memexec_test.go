package query

import (
	"testing"

	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Post", map[string]schema.FieldSpec{
		"id":     {Kind: types.KindUnsigned},
		"title":  {Kind: types.KindString},
		"userId": {Kind: types.KindUnsigned},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	return reg
}

func fixtureSource() TableSource {
	data := map[string][]map[string]any{
		"users": {
			{"id": 1, "name": "Ada"},
			{"id": 2, "name": "Bob"},
		},
		"posts": {
			{"id": 10, "title": "hello", "userId": 1},
			{"id": 11, "title": "world", "userId": 1},
		},
	}
	return func(table string) ([]map[string]any, error) { return data[table], nil }
}

func TestExecuteSimpleWhere(t *testing.T) {
	reg := newTestRegistry(t)
	sel := From(reg, "u", "User")
	sel, err := sel.Where(map[string]any{"name": "Ada"})
	require.NoError(t, err)

	rows, err := Execute(sel, fixtureSource(), &expr.Evaluator{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0]["name"])
}

func TestExecuteLimitOffset(t *testing.T) {
	reg := newTestRegistry(t)
	sel := From(reg, "u", "User").Offset(1).Limit(1)

	rows, err := Execute(sel, fixtureSource(), &expr.Evaluator{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0]["name"])
}

func TestExecuteInnerJoin(t *testing.T) {
	reg := newTestRegistry(t)
	users := From(reg, "u", "User")
	posts := From(reg, "p", "Post")

	on := expr.Eq(expr.Get("p", []string{"userId"}, nil), expr.Get("u", []string{"id"}, nil))
	joined, err := users.Join("p", InnerJoin, posts, on)
	require.NoError(t, err)

	rows, err := Execute(joined, fixtureSource(), &expr.Evaluator{})
	require.NoError(t, err)
	assert.Len(t, rows, 2, "Ada has two posts, Bob has none")
}

func TestExecuteLeftJoinKeepsUnmatched(t *testing.T) {
	reg := newTestRegistry(t)
	users := From(reg, "u", "User")
	posts := From(reg, "p", "Post")

	on := expr.Eq(expr.Get("p", []string{"userId"}, nil), expr.Get("u", []string{"id"}, nil))
	joined, err := users.Join("p", LeftJoin, posts, on)
	require.NoError(t, err)

	rows, err := Execute(joined, fixtureSource(), &expr.Evaluator{})
	require.NoError(t, err)
	assert.Len(t, rows, 3, "Bob survives the left join with no post row")
}

func TestFullOuterJoinRejected(t *testing.T) {
	reg := newTestRegistry(t)
	users := From(reg, "u", "User").Optional()
	posts := From(reg, "p", "Post").Optional()

	_, err := users.Join("p", LeftJoin, posts, nil)
	assert.ErrorIs(t, err, errFullOuterJoin)
}
