package expr

import (
	"testing"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userModel(t *testing.T) *schema.Model {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
		"age":  {Kind: types.KindInteger, Nullable: true},
		"posts": {
			Relation: &schema.RelationConfig{Kind: schema.OneToMany, References: []string{"id"}, Fields: []string{"userId"}},
		},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	m, err := reg.Model("User")
	require.NoError(t, err)
	return m
}

func TestParsePredicateShorthandEquals(t *testing.T) {
	m := userModel(t)
	n, rel, err := ParsePredicate(m, "u", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Empty(t, rel)

	e := &Evaluator{}
	ctx := NewRow("u", map[string]any{"name": "Ada"})
	v, err := e.Eval(n, ctx)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestParsePredicateOperatorMap(t *testing.T) {
	m := userModel(t)
	n, _, err := ParsePredicate(m, "u", map[string]any{
		"age": map[string]any{"$gte": 18, "$lt": 65},
	})
	require.NoError(t, err)

	e := &Evaluator{}
	ok, err := e.Eval(n, NewRow("u", map[string]any{"age": 30}))
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	notOK, err := e.Eval(n, NewRow("u", map[string]any{"age": 70}))
	require.NoError(t, err)
	assert.Equal(t, false, notOK)
}

func TestParsePredicateAndOr(t *testing.T) {
	m := userModel(t)
	n, _, err := ParsePredicate(m, "u", map[string]any{
		"$or": []any{
			map[string]any{"name": "Ada"},
			map[string]any{"age": map[string]any{"$gte": 65}},
		},
	})
	require.NoError(t, err)

	e := &Evaluator{}
	v, err := e.Eval(n, NewRow("u", map[string]any{"name": "Bob", "age": 70}))
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestParsePredicateRelationFieldIsDeferred(t *testing.T) {
	m := userModel(t)
	n, rel, err := ParsePredicate(m, "u", map[string]any{
		"name":  "Ada",
		"posts": map[string]any{"$some": map[string]any{"published": true}},
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Len(t, rel, 1)
	assert.Equal(t, "posts", rel[0].Field)
	assert.Equal(t, RelSome, rel[0].Mode)
	assert.Equal(t, true, rel[0].Sub["published"])
}

func TestParsePredicateStringOperators(t *testing.T) {
	m := userModel(t)
	n, _, err := ParsePredicate(m, "u", map[string]any{
		"name": map[string]any{"$startsWith": "Ad"},
	})
	require.NoError(t, err)

	e := &Evaluator{}
	v, err := e.Eval(n, NewRow("u", map[string]any{"name": "Ada"}))
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestParsePredicateIsNullOperator(t *testing.T) {
	m := userModel(t)
	n, _, err := ParsePredicate(m, "u", map[string]any{
		"age": map[string]any{"$isNull": true},
	})
	require.NoError(t, err)

	e := &Evaluator{}
	v, err := e.Eval(n, NewRow("u", map[string]any{"age": nil}))
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
