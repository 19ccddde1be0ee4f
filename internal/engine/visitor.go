// Package engine runs dual-tree computations over a slot-based task
// queue. The query tree is partitioned into capped-size subtrees, each
// owning a slot; workers probe slots for reference-node tasks, expand
// internal reference nodes back into the queue, and run the algorithm's
// base case against reference leaves. Reference data is pin-counted in
// a cache table and evicted as soon as its last task completes.
package engine

import (
	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
)

// Visitor defines one dual-tree algorithm. A visitor's mutable state is
// indexed by original query point index; slot locking guarantees that
// no two workers touch the same query point concurrently, so visitors
// need no internal synchronization.
type Visitor interface {
	// Score reports whether the pair of subtrees can be pruned given
	// the squared-distance range between their bounds. A pruned pair
	// contributes nothing to the result.
	Score(queryNode *kdtree.Node, refNode *kdtree.Node, dist geometry.Range) bool

	// BaseCase processes a single query/reference point pair. Indices
	// are original dataset positions.
	BaseCase(queryIndex int, queryPoint []float64, refIndex int, refPoint []float64, distSq float64)
}

// VisitorFactory builds a visitor once the query and reference trees
// are available.
type VisitorFactory func(queryTree, refTree *kdtree.Tree) Visitor
