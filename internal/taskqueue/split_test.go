package taskqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/geometry"
)

func TestSplit_LeafTasksExpandToTwo(t *testing.T) {
	// One non-leaf slot of 100 points; two leaf-referencing tasks.
	// Splitting must double the tasks and owe one extra pin per
	// cache entry.
	q, locker := initQueue(t, lineTree(t, 100, 10), 100)
	metric := geometry.NewEuclidean()
	require.Equal(t, 1, q.Size())

	root, err := q.Subtree(0)
	require.NoError(t, err)
	require.False(t, root.IsLeaf())
	require.Equal(t, 100, root.Count())

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 200), CacheID: 7}))
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 300), CacheID: 9}))

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 4, q.Pending())
	assert.Equal(t, map[int]int{7: 1, 9: 1}, locker.calls)
	assert.Equal(t, 1, q.Splits())

	left, err := q.Subtree(0)
	require.NoError(t, err)
	right, err := q.Subtree(1)
	require.NoError(t, err)
	assert.Same(t, root.Left(), left)
	assert.Same(t, root.Right(), right)
}

func TestSplit_InternalTasksExpandToFour(t *testing.T) {
	q, locker := initQueue(t, lineTree(t, 100, 10), 100)
	metric := geometry.NewEuclidean()

	ref := internalRefAround(t, 200)
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: ref, CacheID: 3}))

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 4, q.Pending())
	assert.Equal(t, map[int]int{3: 3}, locker.calls)

	// Every resulting task references one of the two children.
	children := map[interface{}]bool{ref.Left(): true, ref.Right(): true}
	for i := 0; i < q.Size(); i++ {
		for j := 0; j < 2; j++ {
			got, err := q.DequeueTask(i, false)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, children[got.Task.RefNode])
			assert.Equal(t, 3, got.Task.CacheID)
		}
	}
}

func TestSplit_MixedBacklog(t *testing.T) {
	// One leaf task and one internal task: 2 + 4 tasks, pins 1 + 3.
	q, locker := initQueue(t, lineTree(t, 100, 10), 100)
	metric := geometry.NewEuclidean()

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 200), CacheID: 7}))
	require.NoError(t, q.PushTask(metric, 0, Ref{Node: internalRefAround(t, 300), CacheID: 9}))

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 6, q.Pending())
	assert.Equal(t, map[int]int{7: 1, 9: 3}, locker.calls)
}

func TestSplit_PrioritiesRecomputed(t *testing.T) {
	// After the split each half sits at a different distance from the
	// reference point, so the two resulting tasks must carry distinct
	// priorities computed against the new bounds.
	q, _ := initQueue(t, lineTree(t, 100, 10), 100)
	metric := geometry.NewEuclidean()

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 200), CacheID: 1}))

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))

	var priorities []float64
	for i := 0; i < q.Size(); i++ {
		got, err := q.DequeueTask(i, false)
		require.NoError(t, err)
		require.NotNil(t, got)

		subtree, err := q.Subtree(i)
		require.NoError(t, err)
		want := -metric.RangeDistanceSq(subtree.Bound(), got.Task.RefNode.Bound()).Mid()
		assert.Equal(t, want, got.Task.Priority)
		priorities = append(priorities, got.Task.Priority)
	}
	assert.NotEqual(t, priorities[0], priorities[1])
}

func TestSplit_LeafSubtreeRejected(t *testing.T) {
	// Frontier of single-point leaves: splitting any of them must
	// fail without corrupting the queue.
	q, _ := initQueue(t, lineTree(t, 4, 1), 1)
	require.Equal(t, 4, q.Size())

	root, err := q.Subtree(0)
	require.NoError(t, err)
	require.True(t, root.IsLeaf())

	q.mu.Lock()
	_, err = q.splitSlot(geometry.NewEuclidean(), 0)
	q.mu.Unlock()

	require.Error(t, err)
	assert.True(t, apperrors.IsLeafSubtree(err))
	assert.Equal(t, 4, q.Size())
	assert.Equal(t, 0, q.Splits())
}

func TestSplit_NewSlotStartsUnlocked(t *testing.T) {
	q, _ := initQueue(t, lineTree(t, 100, 10), 100)
	metric := geometry.NewEuclidean()

	require.NoError(t, q.PushTask(metric, 0, Ref{Node: leafRefAt(t, 200), CacheID: 1}))

	q.RequestSplit()
	require.NoError(t, q.UnlockQuerySubtree(metric, 0))
	require.Equal(t, 2, q.Size())

	locked, err := q.Locked(1)
	require.NoError(t, err)
	assert.False(t, locked)

	got, err := q.DequeueTask(1, true)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
