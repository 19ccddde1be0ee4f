package taskqueue

import (
	"github.com/dualtree-engine/pkg/collections"
	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/geometry"
)

// lockEvent is a pin-count adjustment owed to the cache exchange for one
// cache entry. Splits produce these instead of calling the exchange
// directly so the split arithmetic stays independently testable.
type lockEvent struct {
	cacheID int
	delta   int
}

// drainPool recycles the scratch list used to hold a slot's tasks while
// they are redistributed during a split.
var drainPool = collections.NewSlicePool[Task](64)

// splitSlot halves the slot's subtree and redistributes its tasks. The
// slot keeps the left child; a new unlocked slot referencing the right
// child is appended. Every drained task is re-pushed into both resulting
// slots, with internal reference nodes additionally split into their two
// children: a leaf-referencing task expands to 2 tasks (+1 pin on its
// cache entry), an internal-referencing task to 4 tasks (+3 pins).
// Priorities are recomputed against the new, smaller query bounds.
//
// Caller holds q.mu. A leaf subtree is rejected rather than corrupting
// state.
func (q *TaskQueue) splitSlot(metric geometry.Metric, slotIndex int) ([]lockEvent, error) {
	if err := q.checkIndex(slotIndex); err != nil {
		return nil, err
	}
	s := q.slots[slotIndex]
	if s.subtree.IsLeaf() {
		return nil, apperrors.Newf(apperrors.CodeLeafSubtree,
			"cannot split slot %d: subtree is a leaf", slotIndex)
	}

	left := s.subtree.Left()
	right := s.subtree.Right()
	s.subtree = left
	q.slots = append(q.slots, &slot{subtree: right})
	newIndex := len(q.slots) - 1

	// The slot is known unlocked, so draining bypasses the lock check.
	drained := drainPool.Get()
	defer drainPool.Put(drained)
	for {
		task, ok := s.backlog.Pop()
		if !ok {
			break
		}
		q.pending--
		*drained = append(*drained, task)
	}

	var events []lockEvent
	for _, task := range *drained {
		if task.RefNode.IsLeaf() {
			ref := Ref{Table: task.Table, Node: task.RefNode, CacheID: task.CacheID}
			q.push(metric, slotIndex, ref)
			q.push(metric, newIndex, ref)

			// Only the query side was split: one extra consumer.
			events = append(events, lockEvent{cacheID: task.CacheID, delta: 1})
		} else {
			leftRef := Ref{Table: task.Table, Node: task.RefNode.Left(), CacheID: task.CacheID}
			rightRef := Ref{Table: task.Table, Node: task.RefNode.Right(), CacheID: task.CacheID}
			q.push(metric, slotIndex, leftRef)
			q.push(metric, slotIndex, rightRef)
			q.push(metric, newIndex, leftRef)
			q.push(metric, newIndex, rightRef)

			// Reference side split as well: three extra consumers.
			events = append(events, lockEvent{cacheID: task.CacheID, delta: 3})
		}
	}

	q.splits++
	return events, nil
}
