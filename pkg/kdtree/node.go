// Package kdtree implements a kd-tree over point sets, with the
// frontier-node partitioning used to hand capped-size subtrees to a
// task queue.
package kdtree

import (
	"github.com/dualtree-engine/pkg/geometry"
)

// Node is a node of a kd-tree. Points covered by a node occupy the
// contiguous half-open range [Begin, End) of the owning tree's
// reordered point set.
type Node struct {
	left  *Node
	right *Node
	begin int
	end   int
	bound geometry.Rect
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.left == nil
}

// Left returns the left child, or nil for a leaf.
func (n *Node) Left() *Node {
	return n.left
}

// Right returns the right child, or nil for a leaf.
func (n *Node) Right() *Node {
	return n.right
}

// Count returns the number of points under the node.
func (n *Node) Count() int {
	return n.end - n.begin
}

// Begin returns the start of the node's point range.
func (n *Node) Begin() int {
	return n.begin
}

// End returns the end (exclusive) of the node's point range.
func (n *Node) End() int {
	return n.end
}

// Bound returns the node's bounding hyperrectangle.
func (n *Node) Bound() geometry.Rect {
	return n.bound
}
