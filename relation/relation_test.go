package relation

import (
	"testing"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAllGeneratesInverse(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id": {Kind: types.KindUnsigned},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Post", map[string]schema.FieldSpec{
		"id":     {Kind: types.KindUnsigned},
		"userId": {Kind: types.KindUnsigned},
		"author": {
			Relation: &schema.RelationConfig{
				Kind: schema.ManyToOne, TargetModel: "User",
				Fields: []string{"userId"}, References: []string{"id"},
				Target: "posts",
			},
		},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))

	require.NoError(t, ResolveAll(reg))

	user, err := reg.Model("User")
	require.NoError(t, err)
	require.True(t, user.HasRelation("posts"))

	inv := user.Fields["posts"].Relation
	assert.Equal(t, schema.OneToMany, inv.Kind)
	assert.Equal(t, "Post", inv.TargetModel)
	assert.Equal(t, []string{"userId"}, inv.Fields)
	assert.Equal(t, []string{"id"}, inv.References)
}

func TestJunctionColumnsDefaultToModelNameId(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("Post", map[string]schema.FieldSpec{"id": {Kind: types.KindUnsigned}},
		schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Tag", map[string]schema.FieldSpec{"id": {Kind: types.KindUnsigned}},
		schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	post, _ := reg.Model("Post")
	tag, _ := reg.Model("Tag")

	ownerCol, otherCol := JunctionColumns(post, tag, &schema.RelationConfig{Kind: schema.ManyToMany})
	assert.Equal(t, "postId", ownerCol)
	assert.Equal(t, "tagId", otherCol)
}
