// Package taskqueue implements the per-worker task queue that drives
// parallel dual-tree computations. It holds a worker's local query
// subtrees as an append-only sequence of slots, keeps a priority-ordered
// backlog of pending (query subtree, reference node) tasks per slot,
// guarantees mutually exclusive processing of any one subtree through
// per-slot locks, and rebalances load on demand by splitting the largest
// eligible subtree into two slots.
package taskqueue

import (
	"github.com/dualtree-engine/pkg/kdtree"
)

// Task is a pending pairwise computation between the owning slot's query
// subtree and a node of the reference tree.
type Task struct {
	// Table is an opaque handle to the reference table the node belongs
	// to. The queue passes it through unexamined.
	Table interface{}

	// RefNode is the reference-tree node to compute against.
	RefNode *kdtree.Node

	// CacheID identifies the pinned cache entry holding the reference
	// node's data.
	CacheID int

	// Priority is the negated midpoint of the squared-distance bound
	// range between the slot's subtree and RefNode. Pairs with smaller
	// midpoint distance carry larger priority and are scheduled first.
	Priority float64
}

// Ref is the (table, reference node, cache id) triple pushed into a slot.
type Ref struct {
	Table   interface{}
	Node    *kdtree.Node
	CacheID int
}

// DequeuedTask is a task handed to a worker together with the index of
// the slot it was drawn from.
type DequeuedTask struct {
	Task      Task
	SlotIndex int
}

// CacheLocker is the queue's view of the reference cache exchange. The
// queue only ever increments pin counts; decrements happen once per
// completed task, outside this package.
type CacheLocker interface {
	// LockCache adds incrementBy to the pin count of the given cache
	// entry. It must not block.
	LockCache(cacheID int, incrementBy int)
}
