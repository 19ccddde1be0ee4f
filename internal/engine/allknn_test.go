package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
)

func buildTree(t *testing.T, points [][]float64) *kdtree.Tree {
	t.Helper()
	tree, err := kdtree.Build(points, 2)
	require.NoError(t, err)
	return tree
}

func TestAllKNN_BaseCaseKeepsKBest(t *testing.T) {
	points := [][]float64{{0}, {1}, {2}}
	tree := buildTree(t, points)
	v := NewAllKNN(tree, tree, 2, false)

	v.BaseCase(0, points[0], 1, []float64{10}, 100)
	v.BaseCase(0, points[0], 2, []float64{3}, 9)
	v.BaseCase(0, points[0], 3, []float64{1}, 1)
	v.BaseCase(0, points[0], 4, []float64{20}, 400)

	got := v.Neighbors()[0]
	require.Len(t, got, 2)
	assert.Equal(t, Neighbor{Index: 3, DistSq: 1}, got[0])
	assert.Equal(t, Neighbor{Index: 2, DistSq: 9}, got[1])
}

func TestAllKNN_ExcludeSelf(t *testing.T) {
	points := [][]float64{{0}, {1}}
	tree := buildTree(t, points)

	v := NewAllKNN(tree, tree, 1, true)
	v.BaseCase(0, points[0], 0, points[0], 0)
	assert.Empty(t, v.Neighbors()[0])

	v = NewAllKNN(tree, tree, 1, false)
	v.BaseCase(0, points[0], 0, points[0], 0)
	require.Len(t, v.Neighbors()[0], 1)
	assert.Equal(t, 0, v.Neighbors()[0][0].Index)
}

func TestAllKNN_ScorePrunes(t *testing.T) {
	points := [][]float64{{0}, {1}}
	tree := buildTree(t, points)
	v := NewAllKNN(tree, tree, 1, false)

	// Lists not yet full: never prune.
	assert.False(t, v.Score(tree.Root(), tree.Root(), geometry.Range{Lo: 1000, Hi: 2000}))

	v.BaseCase(0, points[0], 5, []float64{2}, 4)
	v.BaseCase(1, points[1], 5, []float64{2}, 1)

	// Every query point holds 1 candidate; worst kth distance is 4.
	assert.True(t, v.Score(tree.Root(), tree.Root(), geometry.Range{Lo: 5, Hi: 10}))
	assert.False(t, v.Score(tree.Root(), tree.Root(), geometry.Range{Lo: 3, Hi: 10}))
	assert.False(t, v.Score(tree.Root(), tree.Root(), geometry.Range{Lo: 0, Hi: 10}))
}
