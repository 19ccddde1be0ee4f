package engine

import (
	"math"

	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
)

// KDE estimates the probability density at every query point with a
// Gaussian kernel over the reference set.
type KDE struct {
	bandwidth float64
	tolerance float64
	queryTree *kdtree.Tree
	refCount  int
	dim       int
	sums      []float64
}

// NewKDE creates a KDE visitor with the given kernel bandwidth. A zero
// tolerance keeps the estimate exact; a positive tolerance prunes
// reference nodes whose total kernel contribution falls below it.
func NewKDE(queryTree, refTree *kdtree.Tree, bandwidth, tolerance float64) *KDE {
	return &KDE{
		bandwidth: bandwidth,
		tolerance: tolerance,
		queryTree: queryTree,
		refCount:  refTree.Len(),
		dim:       refTree.Dim(),
		sums:      make([]float64, queryTree.Len()),
	}
}

// Score prunes when even the closest approach of the reference node
// cannot contribute more than the tolerance.
func (v *KDE) Score(queryNode *kdtree.Node, refNode *kdtree.Node, dist geometry.Range) bool {
	if v.tolerance <= 0 {
		return false
	}
	maxContribution := float64(refNode.Count()) * v.kernel(dist.Lo)
	return maxContribution < v.tolerance
}

// BaseCase accumulates one reference point's kernel value.
func (v *KDE) BaseCase(queryIndex int, queryPoint []float64, refIndex int, refPoint []float64, distSq float64) {
	v.sums[queryIndex] += v.kernel(distSq)
}

// kernel evaluates the unnormalized Gaussian kernel at a squared
// distance.
func (v *KDE) kernel(distSq float64) float64 {
	return math.Exp(-distSq / (2 * v.bandwidth * v.bandwidth))
}

// Densities returns the normalized density estimates indexed by
// original query point index.
func (v *KDE) Densities() []float64 {
	norm := float64(v.refCount) * math.Pow(2*math.Pi*v.bandwidth*v.bandwidth, float64(v.dim)/2)
	out := make([]float64, len(v.sums))
	for i, s := range v.sums {
		out[i] = s / norm
	}
	return out
}
