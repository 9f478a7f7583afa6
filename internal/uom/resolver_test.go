package uom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/domain"
)

func testResolver() *Resolver {
	return NewResolver([]domain.ProductUom{
		{ProductID: "gula-1", Uom: "gram", ToBase: 1},
		{ProductID: "gula-1", Uom: "1kg", ToBase: 1000},
		{ProductID: "gula-1", Uom: "karung-25kg", ToBase: 25000},
		{ProductID: "beras-1", Uom: "gram", ToBase: 1},
	})
}

func TestToBase(t *testing.T) {
	r := testResolver()

	got, err := r.ToBase("gula-1", "1kg", 50)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, got)

	got, err = r.ToBase("gula-1", "gram", 250)
	require.NoError(t, err)
	assert.Equal(t, 250.0, got)
}

func TestToBaseFailsClosed(t *testing.T) {
	r := testResolver()

	_, err := r.ToBase("gula-1", "lusin", 2)
	require.Error(t, err)
	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.CodeUomNotRegistered, domErr.Code)

	_, err = r.ToBase("missing-product", "gram", 1)
	require.Error(t, err)
}

func TestFromBase(t *testing.T) {
	r := testResolver()

	got, err := r.FromBase("gula-1", "1kg", 50000)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	_, err = r.FromBase("gula-1", "lusin", 1000)
	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.CodeUnknownUom, domErr.Code)
}

func TestFactor(t *testing.T) {
	r := testResolver()

	factor, ok := r.Factor("gula-1", "karung-25kg")
	require.True(t, ok)
	assert.Equal(t, int64(25000), factor)

	_, ok = r.Factor("beras-1", "1kg")
	assert.False(t, ok)
}
