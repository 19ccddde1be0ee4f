package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/kdtree"
)

func smallTree(t *testing.T) *kdtree.Tree {
	t.Helper()
	tree, err := kdtree.Build([][]float64{{0}, {1}, {2}, {3}}, 2)
	require.NoError(t, err)
	return tree
}

func TestTable_RegisterAndGet(t *testing.T) {
	table := NewTable(nil)

	id, err := table.Register(smallTree(t), 3, 2)
	require.NoError(t, err)

	entry, err := table.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, entry.CacheID)
	assert.Equal(t, 3, entry.Origin)
	assert.Equal(t, 2, table.Pins(id))
	assert.Equal(t, 1, table.Len())
}

func TestTable_RegisterValidation(t *testing.T) {
	table := NewTable(nil)

	_, err := table.Register(nil, 0, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))

	_, err = table.Register(smallTree(t), 0, 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestTable_EvictAtZero(t *testing.T) {
	table := NewTable(nil)

	id, err := table.Register(smallTree(t), 0, 2)
	require.NoError(t, err)

	require.NoError(t, table.ReleaseCache(id))
	assert.Equal(t, 1, table.Pins(id))
	assert.Equal(t, 1, table.Len())

	require.NoError(t, table.ReleaseCache(id))
	assert.Equal(t, 0, table.Pins(id))
	assert.Equal(t, 0, table.Len())

	_, err = table.Get(id)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))

	err = table.ReleaseCache(id)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))
}

func TestTable_LockCacheExtendsLifetime(t *testing.T) {
	table := NewTable(nil)

	id, err := table.Register(smallTree(t), 0, 1)
	require.NoError(t, err)

	// A subtree split adds consumers before the original one finishes.
	table.LockCache(id, 3)
	assert.Equal(t, 4, table.Pins(id))

	for i := 0; i < 3; i++ {
		require.NoError(t, table.ReleaseCache(id))
	}
	assert.Equal(t, 1, table.Len())

	require.NoError(t, table.ReleaseCache(id))
	assert.Equal(t, 0, table.Len())
}

func TestTable_LockCacheUnknownIDIgnored(t *testing.T) {
	table := NewTable(nil)
	table.LockCache(42, 5)
	assert.Equal(t, 0, table.Pins(42))
	assert.Equal(t, 0, table.Len())
}

func TestTable_IDsAreUnique(t *testing.T) {
	table := NewTable(nil)

	id1, err := table.Register(smallTree(t), 0, 1)
	require.NoError(t, err)
	require.NoError(t, table.ReleaseCache(id1))

	id2, err := table.Register(smallTree(t), 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}
