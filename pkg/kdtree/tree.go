package kdtree

import (
	"sort"

	"github.com/dualtree-engine/pkg/collections"
	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/geometry"
)

// DefaultLeafSize is the leaf capacity used when none is given.
const DefaultLeafSize = 20

// Tree is a kd-tree over a point set. Building the tree reorders an
// internal copy of the points so every node covers a contiguous range;
// Indices maps reordered positions back to the caller's original
// point indices.
type Tree struct {
	points   [][]float64
	indices  []int
	root     *Node
	leafSize int
}

// Build constructs a kd-tree by median split on the widest dimension.
// leafSize <= 0 selects DefaultLeafSize.
func Build(points [][]float64, leafSize int) (*Tree, error) {
	if len(points) == 0 {
		return nil, apperrors.New(apperrors.CodeBuildError, "empty point set")
	}
	dim := len(points[0])
	if dim == 0 {
		return nil, apperrors.New(apperrors.CodeBuildError, "zero-dimensional points")
	}
	for i, p := range points {
		if len(p) != dim {
			return nil, apperrors.Newf(apperrors.CodeBuildError,
				"point %d has %d dimensions, want %d", i, len(p), dim)
		}
	}
	if leafSize <= 0 {
		leafSize = DefaultLeafSize
	}

	t := &Tree{
		points:   make([][]float64, len(points)),
		indices:  make([]int, len(points)),
		leafSize: leafSize,
	}
	copy(t.points, points)
	for i := range t.indices {
		t.indices[i] = i
	}

	t.root = t.build(0, len(points))
	return t, nil
}

// build recursively splits [begin, end) and returns the subtree root.
func (t *Tree) build(begin, end int) *Node {
	node := &Node{
		begin: begin,
		end:   end,
		bound: geometry.BoundOf(t.points[begin:end]),
	}

	if end-begin <= t.leafSize {
		return node
	}

	splitDim := widestDim(node.bound)
	mid := begin + (end-begin)/2

	// Order the range on the split dimension so the median lands at mid.
	region := byDim{points: t.points[begin:end], indices: t.indices[begin:end], dim: splitDim}
	sort.Sort(region)

	node.left = t.build(begin, mid)
	node.right = t.build(mid, end)
	return node
}

// widestDim returns the dimension with the largest extent.
func widestDim(r geometry.Rect) int {
	best := 0
	bestWidth := r.Max[0] - r.Min[0]
	for d := 1; d < r.Dim(); d++ {
		if w := r.Max[d] - r.Min[d]; w > bestWidth {
			best = d
			bestWidth = w
		}
	}
	return best
}

// byDim sorts a point range and its index range together on one dimension.
type byDim struct {
	points  [][]float64
	indices []int
	dim     int
}

func (s byDim) Len() int           { return len(s.points) }
func (s byDim) Less(i, j int) bool { return s.points[i][s.dim] < s.points[j][s.dim] }
func (s byDim) Swap(i, j int) {
	s.points[i], s.points[j] = s.points[j], s.points[i]
	s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Len returns the number of points in the tree.
func (t *Tree) Len() int {
	return len(t.points)
}

// Dim returns the dimensionality of the tree's points.
func (t *Tree) Dim() int {
	return len(t.points[0])
}

// Points returns the reordered points covered by the given node.
func (t *Tree) Points(n *Node) [][]float64 {
	return t.points[n.begin:n.end]
}

// Indices returns the original point indices covered by the given node.
func (t *Tree) Indices(n *Node) []int {
	return t.indices[n.begin:n.end]
}

// FrontierNodes cuts the tree into subtrees of at most maxSize points
// each and returns their roots in traversal order. A leaf larger than
// maxSize is returned as-is since it cannot be cut further.
func (t *Tree) FrontierNodes(maxSize int) ([]*Node, error) {
	if maxSize <= 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "max subtree size must be positive, got %d", maxSize)
	}

	var frontier []*Node
	stack := collections.NewStack[*Node](16)
	stack.Push(t.root)

	for !stack.IsEmpty() {
		node, _ := stack.Pop()
		if node.Count() <= maxSize || node.IsLeaf() {
			frontier = append(frontier, node)
			continue
		}
		stack.Push(node.Right())
		stack.Push(node.Left())
	}

	return frontier, nil
}
