package taskqueue

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
)

// recordingLocker records pin-count increments per cache id.
type recordingLocker struct {
	mu    sync.Mutex
	calls map[int]int
}

func newRecordingLocker() *recordingLocker {
	return &recordingLocker{calls: make(map[int]int)}
}

func (l *recordingLocker) LockCache(cacheID int, incrementBy int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[cacheID] += incrementBy
}

// lineTree builds a kd-tree over n evenly spaced 1-D points.
func lineTree(t *testing.T, n, leafSize int) *kdtree.Tree {
	t.Helper()
	points := make([][]float64, n)
	for i := range points {
		points[i] = []float64{float64(i)}
	}
	tree, err := kdtree.Build(points, leafSize)
	require.NoError(t, err)
	return tree
}

// leafRefAt builds a single-point reference tree and returns its root,
// a leaf whose bound sits exactly at x.
func leafRefAt(t *testing.T, x float64) *kdtree.Node {
	t.Helper()
	tree, err := kdtree.Build([][]float64{{x}}, 1)
	require.NoError(t, err)
	require.True(t, tree.Root().IsLeaf())
	return tree.Root()
}

// internalRefAround builds a reference tree whose root is internal.
func internalRefAround(t *testing.T, x float64) *kdtree.Node {
	t.Helper()
	tree, err := kdtree.Build([][]float64{{x}, {x + 1}, {x + 2}, {x + 3}}, 1)
	require.NoError(t, err)
	require.False(t, tree.Root().IsLeaf())
	return tree.Root()
}

func initQueue(t *testing.T, tree *kdtree.Tree, maxSubtreeSize int) (*TaskQueue, *recordingLocker) {
	t.Helper()
	q := New()
	locker := newRecordingLocker()
	require.NoError(t, q.Init(tree, maxSubtreeSize, locker))
	return q, locker
}

func TestInit(t *testing.T) {
	tree := lineTree(t, 64, 4)
	frontier, err := tree.FrontierNodes(16)
	require.NoError(t, err)

	q, _ := initQueue(t, tree, 16)

	assert.Equal(t, len(frontier), q.Size())
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Pending())

	for i := 0; i < q.Size(); i++ {
		locked, err := q.Locked(i)
		require.NoError(t, err)
		assert.False(t, locked)
	}
}

func TestInit_Validation(t *testing.T) {
	q := New()

	err := q.Init(nil, 16, newRecordingLocker())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))

	err = q.Init(lineTree(t, 8, 4), 16, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestPushTask_OutOfRange(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)
	metric := geometry.NewEuclidean()

	err := q.PushTask(metric, q.Size(), Ref{Node: leafRefAt(t, 3), CacheID: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidSlot(err))

	err = q.PushTask(metric, -1, Ref{Node: leafRefAt(t, 3), CacheID: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidSlot(err))

	assert.Equal(t, 0, q.Pending())
}

func TestPushTask_NilNode(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)

	err := q.PushTask(geometry.NewEuclidean(), 0, Ref{CacheID: 1})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestDequeueTask_PriorityOrder(t *testing.T) {
	// One slot spanning [0, 15]. Reference leaves at increasing
	// distance: dequeue order must follow the tightest bound first.
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)
	metric := geometry.NewEuclidean()

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 100), CacheID: 5}))
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 20), CacheID: 1}))
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 50), CacheID: 3}))
	assert.Equal(t, 3, q.Pending())

	var order []int
	for i := 0; i < 3; i++ {
		got, err := q.DequeueTask(0, false)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 0, got.SlotIndex)
		order = append(order, got.Task.CacheID)
	}

	assert.Equal(t, []int{1, 3, 5}, order)
	assert.True(t, q.IsEmpty())
}

func TestDequeueTask_EmptySlotIsNoOp(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)

	got, err := q.DequeueTask(0, true)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The probe must not have locked the slot.
	locked, err := q.Locked(0)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestDequeueTask_LockedSlotIsNoOp(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)
	metric := geometry.NewEuclidean()

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 20), CacheID: 1}))
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 30), CacheID: 2}))

	first, err := q.DequeueTask(0, true)
	require.NoError(t, err)
	require.NotNil(t, first)

	locked, err := q.Locked(0)
	require.NoError(t, err)
	require.True(t, locked)

	second, err := q.DequeueTask(0, true)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, q.Pending())
}

func TestDequeueTask_OutOfRange(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)

	_, err := q.DequeueTask(99, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidSlot(err))
}

func TestUnlockQuerySubtree_ReleasesLock(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)
	metric := geometry.NewEuclidean()

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 20), CacheID: 1}))
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 30), CacheID: 2}))

	_, err := q.DequeueTask(0, true)
	require.NoError(t, err)

	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	locked, err := q.Locked(0)
	require.NoError(t, err)
	assert.False(t, locked)

	// Work is available again.
	got, err := q.DequeueTask(0, false)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestUnlockQuerySubtree_OutOfRange(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 16, 4), 16)

	err := q.UnlockQuerySubtree(geometry.NewEuclidean(), 7)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidSlot(err))
}

func TestRequestSplit_ConsumedWithoutCandidate(t *testing.T) {
	// Slots with empty backlogs: no candidate qualifies, but the
	// request flag must still be consumed.
	q, locker := initQueue(t, lineTree(t, 64, 4), 16)
	metric := geometry.NewEuclidean()
	before := q.Size()

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	assert.Equal(t, before, q.Size())
	assert.Equal(t, 0, q.Splits())
	assert.Empty(t, locker.calls)

	// A later unlock must not trigger a deferred split.
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 100), CacheID: 1}))
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))
	assert.Equal(t, before, q.Size())
}

func TestRequestSplit_AtMostOneSplitPerUnlock(t *testing.T) {
	// Several splittable slots, one request: exactly one split.
	q, _ := initQueue(t, lineTree(t, 64, 4), 32)
	metric := geometry.NewEuclidean()
	require.Equal(t, 2, q.Size())

	for i := 0; i < q.Size(); i++ {
		require.NoError(t, q.PushTask(metric, i, Ref{Node: leafRefAt(t, 200), CacheID: i}))
	}

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	assert.Equal(t, 3, q.Size())
	assert.Equal(t, 1, q.Splits())
}

func TestRequestSplit_SkipsLockedSlot(t *testing.T) {
	// Both slots have pending work, but slot 0 is locked. The split
	// must land on slot 1.
	q, _ := initQueue(t, lineTree(t, 64, 2), 32)
	metric := geometry.NewEuclidean()
	require.Equal(t, 2, q.Size())

	for i := 0; i < 2; i++ {
		require.NoError(t, q.PushTask(metric, i, Ref{Node: leafRefAt(t, 200), CacheID: i}))
		require.NoError(t, q.PushTask(metric, i, Ref{Node: leafRefAt(t, 300), CacheID: i}))
	}

	_, err := q.DequeueTask(0, true)
	require.NoError(t, err)
	locked, err := q.Locked(0)
	require.NoError(t, err)
	require.True(t, locked)

	subtree0Before, err := q.Subtree(0)
	require.NoError(t, err)
	subtree1Before, err := q.Subtree(1)
	require.NoError(t, err)

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 1))

	require.Equal(t, 3, q.Size())

	subtree1After, err := q.Subtree(1)
	require.NoError(t, err)
	newSubtree, err := q.Subtree(2)
	require.NoError(t, err)
	assert.Same(t, subtree1Before.Left(), subtree1After)
	assert.Same(t, subtree1Before.Right(), newSubtree)

	subtree0After, err := q.Subtree(0)
	require.NoError(t, err)
	assert.Same(t, subtree0Before, subtree0After)
}

func TestRequestSplit_PrefersLargestSubtree(t *testing.T) {
	// Split slot 1 once so its halves are smaller than slot 0, then
	// request another split: the scan must pick slot 0, now the
	// largest eligible subtree.
	q, _ := initQueue(t, lineTree(t, 64, 2), 32)
	metric := geometry.NewEuclidean()
	require.Equal(t, 2, q.Size())

	for i := 0; i < 2; i++ {
		require.NoError(t, q.PushTask(metric, i, Ref{Node: leafRefAt(t, 200), CacheID: i}))
	}

	// Equal counts: the scan settles on the first slot, leaving
	// slots 0 and 2 with 16 points each and slot 1 with 32.
	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))
	require.Equal(t, 3, q.Size())

	subtree1, err := q.Subtree(1)
	require.NoError(t, err)
	require.Equal(t, 32, subtree1.Count())

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))
	require.Equal(t, 4, q.Size())

	subtree1After, err := q.Subtree(1)
	require.NoError(t, err)
	assert.Same(t, subtree1.Left(), subtree1After)
	newSubtree, err := q.Subtree(3)
	require.NoError(t, err)
	assert.Same(t, subtree1.Right(), newSubtree)
}

func TestPendingCountInvariant(t *testing.T) {
	// Random interleaving of pushes, dequeues, unlocks and split
	// requests: Pending must always equal pushes minus dequeues, and
	// draining at the end must yield exactly Pending tasks.
	rng := rand.New(rand.NewSource(42))
	q, _ := initQueue(t, lineTree(t, 128, 4), 16)
	metric := geometry.NewEuclidean()

	expected := 0
	for step := 0; step < 500; step++ {
		slotIdx := rng.Intn(q.Size())
		switch rng.Intn(4) {
		case 0, 1:
			ref := Ref{Node: leafRefAt(t, float64(200+rng.Intn(100))), CacheID: rng.Intn(10)}
			require.NoError(t, q.PushTask(metric, slotIdx, ref))
			expected++
		case 2:
			got, err := q.DequeueTask(slotIdx, false)
			require.NoError(t, err)
			if got != nil {
				expected--
			}
		case 3:
			splitsBefore := q.Splits()
			pendingBefore := q.Pending()
			if rng.Intn(8) == 0 {
				q.RequestSplit()
			}
			require.NoError(t, q.UnlockQuerySubtree(metric, slotIdx))
			if q.Splits() > splitsBefore {
				// A split duplicates tasks; fold the delta in.
				expected += q.Pending() - pendingBefore
			}
		}
		require.Equal(t, expected, q.Pending(), "step %d", step)
		assert.Equal(t, expected == 0, q.IsEmpty())
	}

	// Draining must yield exactly Pending tasks.
	remaining := q.Pending()
	drained := 0
	for !q.IsEmpty() {
		progressed := false
		for i := 0; i < q.Size(); i++ {
			got, err := q.DequeueTask(i, false)
			require.NoError(t, err)
			if got != nil {
				drained++
				progressed = true
			}
		}
		require.True(t, progressed, "pending count claims work but no slot yields any")
	}
	assert.Equal(t, remaining, drained)
	assert.Equal(t, 0, q.Pending())
}
