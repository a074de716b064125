package database

import (
	"context"
	"errors"
	"testing"

	"github.com/rediwo/redi-orm/drivers/memory"
	"github.com/rediwo/redi-orm/expr"
	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlogDB(t *testing.T) *DB {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Post", map[string]schema.FieldSpec{
		"id":    {Kind: types.KindUnsigned},
		"title": {Kind: types.KindString},
		"author": {
			Relation: &schema.RelationConfig{
				Kind: schema.ManyToOne, TargetModel: "User",
				Fields: []string{"userId"}, References: []string{"id"},
				Target: "posts",
			},
		},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))

	db := New(reg, memory.New())
	require.NoError(t, db.Prepare(context.Background()))
	return db
}

func TestPrepareCoalescesUnchangedModels(t *testing.T) {
	db := newBlogDB(t)
	before := db.gen["User"]
	require.NoError(t, db.Prepare(context.Background()))
	assert.Equal(t, before, db.gen["User"], "a second Prepare with no new schema changes should be a no-op")
}

func TestCreateWithNestedOwningRelation(t *testing.T) {
	db := newBlogDB(t)
	ctx := context.Background()

	user, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	post, err := db.Create(ctx, "Post", map[string]any{
		"title":  "Hello",
		"author": map[string]any{"$connect": map[string]any{"id": user["id"]}},
	})
	require.NoError(t, err)
	assert.Equal(t, user["id"], post["userId"])
}

func TestSelectWithIncludeFoldsRelatedRow(t *testing.T) {
	db := newBlogDB(t)
	ctx := context.Background()

	user, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title":  "Hello",
		"author": map[string]any{"$connect": map[string]any{"id": user["id"]}},
	})
	require.NoError(t, err)

	rows, err := db.Select(ctx, "Post", nil, []string{"author"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	author, ok := rows[0]["author"].(map[string]any)
	require.True(t, ok, "author should be folded into the projection as an object")
	assert.Equal(t, "Ada", author["name"])
}

func TestSetAndRemove(t *testing.T) {
	db := newBlogDB(t)
	ctx := context.Background()

	_, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "User", map[string]any{"name": "Bob"})
	require.NoError(t, err)

	res, err := db.Set(ctx, "User", map[string]any{"name": "Bob"}, map[string]any{"name": "Bobby"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	got, err := db.Get(ctx, "User", map[string]any{"name": "Bobby"}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)

	res2, err := db.Remove(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res2.RowsAffected)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Tables["users"].Count)
}

// newRelationDB builds a richer schema exercising every relation kind:
// User.posts/Post.author (oneToMany/manyToOne), User.profile/Profile.user
// (owning/non-owning oneToOne), and Post.tags/Tag.posts (manyToMany).
func newRelationDB(t *testing.T) *DB {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Extend("Profile", map[string]schema.FieldSpec{
		"id":  {Kind: types.KindUnsigned},
		"bio": {Kind: types.KindString},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Tag", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("User", map[string]schema.FieldSpec{
		"id":   {Kind: types.KindUnsigned},
		"name": {Kind: types.KindString},
		"profile": {
			Relation: &schema.RelationConfig{
				Kind: schema.OneToOne, TargetModel: "Profile",
				Fields: []string{"profileId"}, References: []string{"id"},
				Target: "user",
			},
		},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))
	require.NoError(t, reg.Extend("Post", map[string]schema.FieldSpec{
		"id":        {Kind: types.KindUnsigned},
		"title":     {Kind: types.KindString},
		"published": {Kind: types.KindBoolean},
		"author": {
			Relation: &schema.RelationConfig{
				Kind: schema.ManyToOne, TargetModel: "User",
				Fields: []string{"userId"}, References: []string{"id"},
				Target: "posts",
			},
		},
		"tags": {
			Relation: &schema.RelationConfig{Kind: schema.ManyToMany, TargetModel: "Tag", Target: "posts"},
		},
	}, schema.ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))

	db := New(reg, memory.New())
	require.NoError(t, db.Prepare(context.Background()))
	return db
}

func TestCreateWithNestedOwningOneToOne(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	user, err := db.Create(ctx, "User", map[string]any{
		"name":    "Ada",
		"profile": map[string]any{"$create": map[string]any{"bio": "mathematician"}},
	})
	require.NoError(t, err)
	require.NotNil(t, user["profileId"])

	rows, err := db.Select(ctx, "User", map[string]any{"id": user["id"]}, []string{"profile"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	profile, ok := rows[0]["profile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mathematician", profile["bio"])
}

// TestSetManyToManyDisconnectThenConnect is seed scenario #3: a
// set(post, {id}, {tags: {$disconnect: {}}}) followed by {$connect}
// fully replaces a post's tag associations.
func TestSetManyToManyDisconnectThenConnect(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	tagGo, err := db.Create(ctx, "Tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	tagORM, err := db.Create(ctx, "Tag", map[string]any{"name": "orm"})
	require.NoError(t, err)

	post, err := db.Create(ctx, "Post", map[string]any{
		"title": "Hello",
		"tags": []any{
			map[string]any{"id": tagGo["id"]},
			map[string]any{"id": tagORM["id"]},
		},
	})
	require.NoError(t, err)

	_, err = db.Set(ctx, "Post", map[string]any{"id": post["id"]}, map[string]any{
		"tags": map[string]any{"$disconnect": map[string]any{}},
	})
	require.NoError(t, err)

	rows, err := db.Select(ctx, "Post", map[string]any{"id": post["id"]}, []string{"tags"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0]["tags"])

	_, err = db.Set(ctx, "Post", map[string]any{"id": post["id"]}, map[string]any{
		"tags": map[string]any{"$connect": map[string]any{"id": tagORM["id"]}},
	})
	require.NoError(t, err)

	rows, err = db.Select(ctx, "Post", map[string]any{"id": post["id"]}, []string{"tags"})
	require.NoError(t, err)
	tags, ok := rows[0]["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 1)
	assert.Equal(t, "orm", tags[0].(map[string]any)["name"])
}

func TestSetRejectsPrimaryKeyModification(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	user, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	_, err = db.Set(ctx, "User", map[string]any{"id": user["id"]}, map[string]any{"id": 999})
	require.Error(t, err)
	var validationErr *types.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

// TestEveryFilterOnOneToMany is seed scenario #4: a $every relation
// filter selects only owners every one of whose related rows matches.
func TestEveryFilterOnOneToMany(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	allPublished, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "A", "published": true,
		"author": map[string]any{"$connect": map[string]any{"id": allPublished["id"]}},
	})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "B", "published": true,
		"author": map[string]any{"$connect": map[string]any{"id": allPublished["id"]}},
	})
	require.NoError(t, err)

	mixed, err := db.Create(ctx, "User", map[string]any{"name": "Bob"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "C", "published": false,
		"author": map[string]any{"$connect": map[string]any{"id": mixed["id"]}},
	})
	require.NoError(t, err)

	_, err = db.Create(ctx, "User", map[string]any{"name": "NoPosts"})
	require.NoError(t, err)

	rows, err := db.Select(ctx, "User", map[string]any{
		"posts": map[string]any{"$every": map[string]any{"published": true}},
	}, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Ada", "NoPosts"}, names, "$every is vacuously true for an owner with no related rows")
}

func TestSomeAndNoneFiltersOnManyToMany(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	tagGo, err := db.Create(ctx, "Tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Tag", map[string]any{"name": "orm"})
	require.NoError(t, err)

	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "Goroutines", "tags": []any{map[string]any{"id": tagGo["id"]}},
	})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{"title": "Untagged"})
	require.NoError(t, err)

	some, err := db.Select(ctx, "Post", map[string]any{
		"tags": map[string]any{"$some": map[string]any{"name": "go"}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "Goroutines", some[0]["title"])

	none, err := db.Select(ctx, "Post", map[string]any{
		"tags": map[string]any{"$none": map[string]any{"name": "go"}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, none, 1)
	assert.Equal(t, "Untagged", none[0]["title"])
}

func TestIncludeManyToManyFoldsAllLinkedTags(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	tagGo, err := db.Create(ctx, "Tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	tagORM, err := db.Create(ctx, "Tag", map[string]any{"name": "orm"})
	require.NoError(t, err)

	post, err := db.Create(ctx, "Post", map[string]any{
		"title": "Hello",
		"tags": []any{
			map[string]any{"id": tagGo["id"]},
			map[string]any{"id": tagORM["id"]},
		},
	})
	require.NoError(t, err)

	rows, err := db.Select(ctx, "Post", map[string]any{"id": post["id"]}, []string{"tags"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	tags, ok := rows[0]["tags"].([]any)
	require.True(t, ok)
	names := make([]string, 0, len(tags))
	for _, tg := range tags {
		names = append(names, tg.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"go", "orm"}, names)
}

// TestGroupByOuterJoinIgnoresNullPlaceholderRows is seed scenario #5: a
// left-joined groupBy aggregation must not count or surface the
// all-null placeholder row a left join produces for an owner with no
// related rows.
func TestGroupByOuterJoinIgnoresNullPlaceholderRows(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	withPosts, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "A", "author": map[string]any{"$connect": map[string]any{"id": withPosts["id"]}},
	})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "B", "author": map[string]any{"$connect": map[string]any{"id": withPosts["id"]}},
	})
	require.NoError(t, err)

	noPosts, err := db.Create(ctx, "User", map[string]any{"name": "Bob"})
	require.NoError(t, err)

	reg := db.Registry()
	users := query.From(reg, "u", "User")
	posts := query.From(reg, "p", "Post").Optional()
	on := expr.Eq(expr.Get("p", []string{"userId"}, nil), expr.Get("u", []string{"id"}, nil))
	joined, err := db.Join("p", query.LeftJoin, users, posts, on)
	require.NoError(t, err)
	grouped := joined.GroupBy("id")
	titles := expr.Array(expr.IgnoreNull(expr.Get("p", []string{"title"}, nil)))
	projected := grouped.Project(map[string]*expr.Node{
		"id":        expr.Get("u", []string{"id"}, nil),
		"postCount": expr.Count(expr.Get("p", []string{"id"}, nil)),
		"titles":    titles,
	})

	rows, err := db.Driver().Eval(ctx, projected)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[any]map[string]any{}
	for _, r := range rows {
		byID[r["id"]] = r
	}
	assert.EqualValues(t, 2, byID[withPosts["id"]]["postCount"])
	assert.Len(t, byID[withPosts["id"]]["titles"], 2)
	assert.EqualValues(t, 0, byID[noPosts["id"]]["postCount"])
	assert.Empty(t, byID[noPosts["id"]]["titles"], "ignoreNull must prune the left join's all-null placeholder row")
}

func TestEvalComputesSingleAggregateValue(t *testing.T) {
	db := newRelationDB(t)
	ctx := context.Background()

	user, err := db.Create(ctx, "User", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "A", "author": map[string]any{"$connect": map[string]any{"id": user["id"]}},
	})
	require.NoError(t, err)
	_, err = db.Create(ctx, "Post", map[string]any{
		"title": "B", "author": map[string]any{"$connect": map[string]any{"id": user["id"]}},
	})
	require.NoError(t, err)

	count, err := db.Eval(ctx, "Post", nil, expr.Count(expr.Get("root", []string{"id"}, nil)))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	none, err := db.Eval(ctx, "Post", map[string]any{"title": "missing"}, expr.Count(expr.Get("root", []string{"id"}, nil)))
	require.NoError(t, err)
	assert.EqualValues(t, 0, none)
}

func TestTransactRollsBackOnError(t *testing.T) {
	db := newBlogDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.Transact(ctx, func(ctx context.Context, tx *DB) error {
		_, err := tx.Create(ctx, "User", map[string]any{"name": "Ada"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := db.Select(ctx, "User", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
