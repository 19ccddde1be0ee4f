package taskqueue

import (
	"container/heap"
)

// backlog is a max-priority queue of pending tasks for one slot.
type backlog struct {
	items taskHeap
}

// Len returns the number of pending tasks.
func (b *backlog) Len() int {
	return len(b.items)
}

// Push inserts a task.
func (b *backlog) Push(t Task) {
	heap.Push(&b.items, t)
}

// Pop removes and returns the highest-priority task. ok is false when
// the backlog is empty.
func (b *backlog) Pop() (Task, bool) {
	if len(b.items) == 0 {
		return Task{}, false
	}
	return heap.Pop(&b.items).(Task), true
}

// taskHeap implements heap.Interface ordered by descending Priority, so
// the task with the tightest distance-bound midpoint surfaces first.
type taskHeap []Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].Priority > h[j].Priority }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(Task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
