package engine

import (
	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
)

// Neighbor is one nearest-neighbor candidate.
type Neighbor struct {
	Index  int     `json:"index"`
	DistSq float64 `json:"dist_sq"`
}

// AllKNN computes the k nearest reference neighbors of every query
// point. With excludeSelf set, a zero-distance pair of identical
// indices is skipped, which makes monochromatic search ignore each
// point's trivial self-match.
type AllKNN struct {
	k           int
	excludeSelf bool
	queryTree   *kdtree.Tree
	neighbors   [][]Neighbor
}

// NewAllKNN creates an AllKNN visitor for k neighbors per query point.
func NewAllKNN(queryTree, refTree *kdtree.Tree, k int, excludeSelf bool) *AllKNN {
	return &AllKNN{
		k:           k,
		excludeSelf: excludeSelf,
		queryTree:   queryTree,
		neighbors:   make([][]Neighbor, queryTree.Len()),
	}
}

// Score prunes the pair when every query point under the node already
// holds k candidates closer than the closest possible reference point.
func (v *AllKNN) Score(queryNode *kdtree.Node, refNode *kdtree.Node, dist geometry.Range) bool {
	if dist.Lo <= 0 {
		return false
	}
	worst := 0.0
	for _, qi := range v.queryTree.Indices(queryNode) {
		list := v.neighbors[qi]
		if len(list) < v.k {
			return false
		}
		if d := list[len(list)-1].DistSq; d > worst {
			worst = d
		}
	}
	return dist.Lo > worst
}

// BaseCase offers one reference point as a neighbor candidate.
func (v *AllKNN) BaseCase(queryIndex int, queryPoint []float64, refIndex int, refPoint []float64, distSq float64) {
	if v.excludeSelf && queryIndex == refIndex {
		return
	}

	list := v.neighbors[queryIndex]
	if len(list) == v.k && distSq >= list[len(list)-1].DistSq {
		return
	}

	// Sorted insert; k is small so a linear scan beats a heap here.
	pos := len(list)
	for pos > 0 && list[pos-1].DistSq > distSq {
		pos--
	}
	if len(list) < v.k {
		list = append(list, Neighbor{})
	}
	copy(list[pos+1:], list[pos:])
	list[pos] = Neighbor{Index: refIndex, DistSq: distSq}
	v.neighbors[queryIndex] = list
}

// Neighbors returns the per-query neighbor lists, sorted by ascending
// distance, indexed by original query point index.
func (v *AllKNN) Neighbors() [][]Neighbor {
	return v.neighbors
}
