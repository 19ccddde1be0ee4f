package taskqueue

import (
	"sync"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
)

// slot is the queue's scheduling unit: one local query subtree, its lock
// state, and its pending-task backlog. Slots form an append-only
// sequence; indices are stable for the life of the queue.
type slot struct {
	subtree *kdtree.Node
	locked  bool
	backlog backlog
}

// TaskQueue holds a worker's local query subtrees and their pending
// pairwise tasks. All operations are immediate state transitions; the
// queue never blocks, and absence of work is reported as a no-op result.
// A single mutex guards all slot and backlog mutation because splitting
// resizes the slot sequence and several backlogs non-atomically.
type TaskQueue struct {
	mu             sync.Mutex
	slots          []*slot
	exchange       CacheLocker
	splitRequested bool
	pending        int
	splits         int
}

// New creates an empty TaskQueue. Init must be called before use.
func New() *TaskQueue {
	return &TaskQueue{}
}

// Init partitions the query tree into frontier subtrees of at most
// maxSubtreeSize points, allocates one unlocked empty slot per subtree,
// and retains the cache exchange handle for later pin-count adjustments.
func (q *TaskQueue) Init(tree *kdtree.Tree, maxSubtreeSize int, exchange CacheLocker) error {
	if tree == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "query tree is nil")
	}
	if exchange == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "cache exchange is nil")
	}

	frontier, err := tree.FrontierNodes(maxSubtreeSize)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.slots = make([]*slot, len(frontier))
	for i, node := range frontier {
		q.slots[i] = &slot{subtree: node}
	}
	q.exchange = exchange
	q.splitRequested = false
	q.pending = 0
	q.splits = 0
	return nil
}

// Size returns the current slot count. It only grows.
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// Pending returns the global pending-task count, the sum of all slot
// backlog sizes.
func (q *TaskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// IsEmpty reports whether this worker has no pending tasks. It signals
// local exhaustion only, not global algorithm termination.
func (q *TaskQueue) IsEmpty() bool {
	return q.Pending() == 0
}

// Splits returns the number of subtree splits performed so far.
func (q *TaskQueue) Splits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.splits
}

// Subtree returns the query subtree currently assigned to the slot.
func (q *TaskQueue) Subtree(slotIndex int) (*kdtree.Node, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkIndex(slotIndex); err != nil {
		return nil, err
	}
	return q.slots[slotIndex].subtree, nil
}

// Locked reports whether the slot is currently locked.
func (q *TaskQueue) Locked(slotIndex int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkIndex(slotIndex); err != nil {
		return false, err
	}
	return q.slots[slotIndex].locked, nil
}

// RequestSplit asks the queue to split one subtree. The request is
// edge-triggered: it is consumed by the next UnlockQuerySubtree call
// whether or not a split actually happens.
func (q *TaskQueue) RequestSplit() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.splitRequested = true
}

// PushTask computes the task's priority against the slot's current
// subtree bound and inserts it into the slot's backlog. It never touches
// the cache exchange; callers account for new cache-entry consumers
// explicitly.
func (q *TaskQueue) PushTask(metric geometry.Metric, slotIndex int, ref Ref) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkIndex(slotIndex); err != nil {
		return err
	}
	if ref.Node == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "reference node is nil")
	}
	q.push(metric, slotIndex, ref)
	return nil
}

// push inserts a task into the slot's backlog. Caller holds q.mu and has
// validated the index.
func (q *TaskQueue) push(metric geometry.Metric, slotIndex int, ref Ref) {
	s := q.slots[slotIndex]
	distRange := metric.RangeDistanceSq(s.subtree.Bound(), ref.Node.Bound())
	s.backlog.Push(Task{
		Table:    ref.Table,
		RefNode:  ref.Node,
		CacheID:  ref.CacheID,
		Priority: -distRange.Mid(),
	})
	q.pending++
}

// DequeueTask probes one slot for work. If the slot is unlocked and has
// pending tasks, the highest-priority task is removed and returned with
// the slot index, and the slot is locked when lockSubtree is true. A
// locked or empty slot yields (nil, nil) with no state change; callers
// that want work probe other slot indices rather than wait.
func (q *TaskQueue) DequeueTask(probeIndex int, lockSubtree bool) (*DequeuedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkIndex(probeIndex); err != nil {
		return nil, err
	}

	s := q.slots[probeIndex]
	if s.locked || s.backlog.Len() == 0 {
		return nil, nil
	}

	task, _ := s.backlog.Pop()
	s.locked = lockSubtree
	q.pending--
	return &DequeuedTask{Task: task, SlotIndex: probeIndex}, nil
}

// UnlockQuerySubtree releases the slot's lock. If a split was requested,
// it makes at most one split attempt before returning: the unlocked,
// non-leaf slot with a non-empty backlog and the largest point count is
// split; finding no candidate is a designed no-op. The split request is
// consumed either way. Deferring the split to the release point means a
// subtree is never split while a worker is processing it.
func (q *TaskQueue) UnlockQuerySubtree(metric geometry.Metric, slotIndex int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkIndex(slotIndex); err != nil {
		return err
	}

	q.slots[slotIndex].locked = false

	if !q.splitRequested {
		return nil
	}
	q.splitRequested = false

	splitIndex := -1
	splitCount := 0
	for i, s := range q.slots {
		if !s.locked && !s.subtree.IsLeaf() && s.backlog.Len() > 0 && s.subtree.Count() > splitCount {
			splitIndex = i
			splitCount = s.subtree.Count()
		}
	}
	if splitIndex < 0 {
		return nil
	}

	events, err := q.splitSlot(metric, splitIndex)
	if err != nil {
		return err
	}
	for _, ev := range events {
		q.exchange.LockCache(ev.cacheID, ev.delta)
	}
	return nil
}

// checkIndex validates a slot index. Caller holds q.mu.
func (q *TaskQueue) checkIndex(slotIndex int) error {
	if slotIndex < 0 || slotIndex >= len(q.slots) {
		return apperrors.Newf(apperrors.CodeInvalidSlot,
			"slot index %d out of range [0, %d)", slotIndex, len(q.slots))
	}
	return nil
}
