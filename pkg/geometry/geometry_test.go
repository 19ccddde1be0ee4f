package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Mid(t *testing.T) {
	r := Range{Lo: 2, Hi: 8}
	assert.Equal(t, 5.0, r.Mid())
	assert.Equal(t, 6.0, r.Width())
}

func TestBoundOf(t *testing.T) {
	points := [][]float64{
		{1, 5},
		{3, 2},
		{-1, 4},
	}
	r := BoundOf(points)

	assert.Equal(t, []float64{-1, 2}, r.Min)
	assert.Equal(t, []float64{3, 5}, r.Max)
	assert.Equal(t, 2, r.Dim())
}

func TestRect_ExpandAndContains(t *testing.T) {
	r := NewRect(2)
	r.Expand([]float64{0, 0})
	r.Expand([]float64{4, 2})

	assert.True(t, r.Contains([]float64{2, 1}))
	assert.True(t, r.Contains([]float64{0, 0}))
	assert.False(t, r.Contains([]float64{5, 1}))
	assert.False(t, r.Contains([]float64{2, -1}))
}

func TestRect_Clone(t *testing.T) {
	r := BoundOf([][]float64{{0, 0}, {1, 1}})
	c := r.Clone()

	c.Min[0] = -10
	assert.Equal(t, 0.0, r.Min[0])
}

func TestEuclidean_DistanceSq(t *testing.T) {
	m := NewEuclidean()

	assert.Equal(t, 25.0, m.DistanceSq([]float64{0, 0}, []float64{3, 4}))
	assert.Equal(t, 0.0, m.DistanceSq([]float64{1, 2}, []float64{1, 2}))
}

func TestEuclidean_RangeDistanceSq_Disjoint(t *testing.T) {
	m := NewEuclidean()
	a := BoundOf([][]float64{{0, 0}, {1, 1}})
	b := BoundOf([][]float64{{4, 0}, {5, 1}})

	r := m.RangeDistanceSq(a, b)

	// Closest pair: (1,y)-(4,y) at squared distance 9.
	assert.Equal(t, 9.0, r.Lo)
	// Farthest pair: (0,0)-(5,1) or (0,1)-(5,0) at squared distance 26.
	assert.Equal(t, 26.0, r.Hi)
	assert.Equal(t, 17.5, r.Mid())
}

func TestEuclidean_RangeDistanceSq_Overlapping(t *testing.T) {
	m := NewEuclidean()
	a := BoundOf([][]float64{{0, 0}, {3, 3}})
	b := BoundOf([][]float64{{2, 2}, {5, 5}})

	r := m.RangeDistanceSq(a, b)

	assert.Equal(t, 0.0, r.Lo)
	assert.Equal(t, 50.0, r.Hi)
}

func TestEuclidean_RangeDistanceSq_Symmetric(t *testing.T) {
	m := NewEuclidean()
	a := BoundOf([][]float64{{-2, 1}, {0, 3}})
	b := BoundOf([][]float64{{4, -1}, {7, 2}})

	ab := m.RangeDistanceSq(a, b)
	ba := m.RangeDistanceSq(b, a)

	require.Equal(t, ab, ba)
}

func TestEuclidean_PointRectDistanceSq(t *testing.T) {
	m := NewEuclidean()
	r := BoundOf([][]float64{{0, 0}, {2, 2}})

	assert.Equal(t, 0.0, m.PointRectDistanceSq([]float64{1, 1}, r))
	assert.Equal(t, 1.0, m.PointRectDistanceSq([]float64{3, 1}, r))
	assert.Equal(t, 8.0, m.PointRectDistanceSq([]float64{4, 4}, r))
}
