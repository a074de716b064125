package schema

import (
	"testing"

	"github.com/rediwo/redi-orm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtendCreatesModelWithDefaults(t *testing.T) {
	reg := NewRegistry()

	err := reg.Extend("Foo", map[string]FieldSpec{
		"id":    {Kind: types.KindUnsigned},
		"value": {Kind: types.KindInteger},
	}, ModelConfig{Primary: []string{"id"}, AutoIncrement: true})
	require.NoError(t, err)

	m, err := reg.Model("Foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, m.Primary)
	assert.True(t, m.AutoIncrement)

	row := m.Create(map[string]any{"value": 2})
	assert.Equal(t, 2, row["value"])
	_, hasID := row["id"]
	assert.False(t, hasID, "autoincrement primary key is left for the driver to fill in")
}

func TestExtendMergesRepeatedCalls(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Extend("User", map[string]FieldSpec{
		"id": {Kind: types.KindUnsigned},
	}, ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))

	require.NoError(t, reg.Extend("User", map[string]FieldSpec{
		"name": {Kind: types.KindString, Nullable: true},
	}, ModelConfig{}))

	m, err := reg.Model("User")
	require.NoError(t, err)
	assert.Contains(t, m.Fields, "id")
	assert.Contains(t, m.Fields, "name")
	assert.Equal(t, 2, reg.Generation("User"))
}

func TestDefineRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Define("money", CustomTypeSpec{Underlying: types.KindInteger})
	require.NoError(t, err)

	_, err = reg.Define("money", CustomTypeSpec{Underlying: types.KindInteger})
	require.Error(t, err)
	assert.IsType(t, &types.ConfigurationError{}, err)
}

func TestDefineComposesWrappedTransformers(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Define("cents", CustomTypeSpec{
		Underlying: types.KindInteger,
		Dump:       func(v any) (any, error) { return v.(int) * 100, nil },
		Load:       func(v any) (any, error) { return v.(int) / 100, nil },
	})
	require.NoError(t, err)

	_, err = reg.Define("roundedCents", CustomTypeSpec{
		Wraps: "cents",
		Dump:  func(v any) (any, error) { return v.(int) + 1, nil },
		Load:  func(v any) (any, error) { return v.(int) - 1, nil },
	})
	require.NoError(t, err)

	require.NoError(t, reg.Extend("Price", map[string]FieldSpec{
		"id":     {Kind: types.KindUnsigned},
		"amount": {CustomType: "roundedCents"},
	}, ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))

	m, err := reg.Model("Price")
	require.NoError(t, err)
	field := m.Fields["amount"]

	dumped, err := field.Dump(5)
	require.NoError(t, err)
	// roundedCents.Dump runs first (+1 -> 6), then cents.Dump (*100 -> 600)
	assert.Equal(t, 600, dumped)

	loaded, err := field.Load(600)
	require.NoError(t, err)
	// cents.Load runs first (/100 -> 6), then roundedCents.Load (-1 -> 5)
	assert.Equal(t, 5, loaded)
}

func TestDottedFieldsUnflattenIntoObjectShape(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Extend("Order", map[string]FieldSpec{
		"id":            {Kind: types.KindUnsigned},
		"address.city":  {Kind: types.KindString, Nullable: true},
		"address.zip":   {Kind: types.KindString, Nullable: true},
	}, ModelConfig{Primary: []string{"id"}, AutoIncrement: true}))

	m, err := reg.Model("Order")
	require.NoError(t, err)

	shape, ok := m.ObjectShapes["address"]
	require.True(t, ok)
	assert.Contains(t, shape.Fields, "city")
	assert.Contains(t, shape.Fields, "zip")

	// flat projection still resolves directly
	_, err = m.GetField("address.city")
	require.NoError(t, err)
}

func TestValidateRejectsMissingPrimary(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Extend("Bare", map[string]FieldSpec{
		"name": {Kind: types.KindString},
	}, ModelConfig{}))

	m, err := reg.Model("Bare")
	require.NoError(t, err)
	assert.Error(t, m.Validate())
}
