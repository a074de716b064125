package relation

import (
	"testing"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderModel(t *testing.T) *schema.Model {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("Tag", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Customer", map[string]schema.FieldSpec{
		"id": {Kind: types.KindUnsigned},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Order", map[string]schema.FieldSpec{
		"id":    {Kind: types.KindUnsigned},
		"total": {Kind: types.KindFloat},
		"customer": {
			Relation: &schema.RelationConfig{Kind: schema.ManyToOne, TargetModel: "Customer", Fields: []string{"customerId"}, References: []string{"id"}},
		},
		"tags": {
			Relation: &schema.RelationConfig{Kind: schema.ManyToMany, TargetModel: "Tag"},
		},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	m, err := reg.Model("Order")
	require.NoError(t, err)
	return m
}

func TestSplitPayloadSeparatesScalarsAndRelations(t *testing.T) {
	m := orderModel(t)
	plain, tasks, err := SplitPayload(m, map[string]any{
		"total":    9.99,
		"customer": map[string]any{"$connect": map[string]any{"id": 1}},
		"tags":     []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 9.99, plain["total"])
	assert.Len(t, tasks, 3)

	var connectCustomer, connectTags int
	for _, task := range tasks {
		if task.Field == "customer" {
			connectCustomer++
			assert.Equal(t, ModConnect, task.Kind)
		}
		if task.Field == "tags" {
			connectTags++
			assert.Equal(t, ModConnect, task.Kind)
		}
	}
	assert.Equal(t, 1, connectCustomer)
	assert.Equal(t, 2, connectTags)
}

func TestSplitPayloadBareObjectIsConnectShorthand(t *testing.T) {
	m := orderModel(t)
	_, tasks, err := SplitPayload(m, map[string]any{
		"total":    1.0,
		"customer": map[string]any{"id": 7},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ModConnect, tasks[0].Kind)
	assert.Equal(t, 7, tasks[0].Data["id"])
}

func TestSplitPayloadNilDisconnectsToOne(t *testing.T) {
	m := orderModel(t)
	_, tasks, err := SplitPayload(m, map[string]any{
		"customer": nil,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ModDisconnect, tasks[0].Kind)
}

func TestTaskOrderPutsOwningSideFirst(t *testing.T) {
	customerTask := Task{Field: "customer", Rel: &schema.RelationConfig{Kind: schema.ManyToOne, Fields: []string{"customerId"}}}
	tagsTask := Task{Field: "tags", Rel: &schema.RelationConfig{Kind: schema.ManyToMany}}
	assert.Less(t, taskOrder(customerTask), taskOrder(tagsTask))
}

func TestJunctionTableNameIsOrderIndependent(t *testing.T) {
	a := JunctionTableName("Post", "Tag")
	b := JunctionTableName("Tag", "Post")
	assert.Equal(t, a, b)
	assert.Equal(t, "_postToTag", a)
}
