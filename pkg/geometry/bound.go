// Package geometry provides bounding volumes and distance-bound math for
// spatial tree algorithms.
package geometry

import (
	"fmt"
	"math"
)

// Range is a closed interval of squared distances.
type Range struct {
	Lo float64
	Hi float64
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 {
	return (r.Lo + r.Hi) / 2
}

// Width returns the width of the range.
func (r Range) Width() float64 {
	return r.Hi - r.Lo
}

// Rect is an axis-aligned bounding hyperrectangle.
type Rect struct {
	Min []float64
	Max []float64
}

// NewRect creates an empty Rect of the given dimensionality. An empty
// rect contains no points until Expand is called.
func NewRect(dim int) Rect {
	min := make([]float64, dim)
	max := make([]float64, dim)
	for d := 0; d < dim; d++ {
		min[d] = math.Inf(1)
		max[d] = math.Inf(-1)
	}
	return Rect{Min: min, Max: max}
}

// BoundOf returns the tightest Rect enclosing the given points.
func BoundOf(points [][]float64) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := NewRect(len(points[0]))
	for _, p := range points {
		r.Expand(p)
	}
	return r
}

// Dim returns the dimensionality of the rect.
func (r Rect) Dim() int {
	return len(r.Min)
}

// Expand grows the rect to include the given point.
func (r Rect) Expand(point []float64) {
	for d := range point {
		if point[d] < r.Min[d] {
			r.Min[d] = point[d]
		}
		if point[d] > r.Max[d] {
			r.Max[d] = point[d]
		}
	}
}

// Contains reports whether the point lies inside the rect.
func (r Rect) Contains(point []float64) bool {
	for d := range point {
		if point[d] < r.Min[d] || point[d] > r.Max[d] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the rect.
func (r Rect) Clone() Rect {
	min := make([]float64, len(r.Min))
	max := make([]float64, len(r.Max))
	copy(min, r.Min)
	copy(max, r.Max)
	return Rect{Min: min, Max: max}
}

// String returns a compact textual form of the rect.
func (r Rect) String() string {
	return fmt.Sprintf("Rect{min=%v max=%v}", r.Min, r.Max)
}
