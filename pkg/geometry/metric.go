package geometry

// Metric computes squared-distance bounds between bounding volumes.
type Metric interface {
	// RangeDistanceSq returns the range of possible squared distances
	// between any point in a and any point in b.
	RangeDistanceSq(a, b Rect) Range

	// DistanceSq returns the squared distance between two points.
	DistanceSq(p, q []float64) float64
}

// Euclidean is the squared L2 metric.
type Euclidean struct{}

// NewEuclidean creates a Euclidean metric.
func NewEuclidean() Euclidean {
	return Euclidean{}
}

// DistanceSq returns the squared Euclidean distance between two points.
func (Euclidean) DistanceSq(p, q []float64) float64 {
	var sum float64
	for d := range p {
		diff := p[d] - q[d]
		sum += diff * diff
	}
	return sum
}

// RangeDistanceSq returns the minimum and maximum squared Euclidean
// distance between any point in a and any point in b.
func (Euclidean) RangeDistanceSq(a, b Rect) Range {
	var lo, hi float64
	for d := range a.Min {
		// Per-dimension gap; zero when the projections overlap.
		gap := a.Min[d] - b.Max[d]
		if g := b.Min[d] - a.Max[d]; g > gap {
			gap = g
		}
		if gap > 0 {
			lo += gap * gap
		}

		// Per-dimension farthest separation.
		span := a.Max[d] - b.Min[d]
		if s := b.Max[d] - a.Min[d]; s > span {
			span = s
		}
		hi += span * span
	}
	return Range{Lo: lo, Hi: hi}
}

// PointRectDistanceSq returns the minimum squared Euclidean distance
// between a point and any point in the rect.
func (Euclidean) PointRectDistanceSq(p []float64, r Rect) float64 {
	var sum float64
	for d := range p {
		if p[d] < r.Min[d] {
			diff := r.Min[d] - p[d]
			sum += diff * diff
		} else if p[d] > r.Max[d] {
			diff := p[d] - r.Max[d]
			sum += diff * diff
		}
	}
	return sum
}
