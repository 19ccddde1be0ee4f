package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualtree-engine/internal/exchange"
	"github.com/dualtree-engine/internal/taskqueue"
	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/geometry"
	"github.com/dualtree-engine/pkg/kdtree"
	"github.com/dualtree-engine/pkg/utils"
)

// Params configures a computation.
type Params struct {
	LeafSize       int
	MaxSubtreeSize int
	Workers        int
}

// Stats summarizes one completed computation.
type Stats struct {
	Points     int
	Dimensions int
	Slots      int
	Splits     int
	Tasks      int64
	BasePairs  int64
	Elapsed    time.Duration
	Phases     string
}

// Engine executes dual-tree computations.
type Engine struct {
	params Params
	metric geometry.Metric
	logger utils.Logger
}

// New creates an Engine. Zero parameter fields fall back to defaults.
func New(params Params, logger utils.Logger) *Engine {
	if params.LeafSize <= 0 {
		params.LeafSize = kdtree.DefaultLeafSize
	}
	if params.MaxSubtreeSize <= 0 {
		params.MaxSubtreeSize = 512
	}
	if params.Workers <= 0 {
		params.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	return &Engine{
		params: params,
		metric: geometry.NewEuclidean(),
		logger: logger,
	}
}

// runState is the shared state of one computation. The mutex makes the
// dequeue-and-mark-inflight step atomic so the termination check
// (queue empty and nothing in flight) cannot race with a worker that
// is about to push child tasks.
type runState struct {
	queue     *taskqueue.TaskQueue
	table     *exchange.Table
	queryTree *kdtree.Tree
	visitor   Visitor

	mu       sync.Mutex
	inflight int

	tasks     int64
	basePairs int64
}

func (s *runState) dequeue(probe int) (*taskqueue.DequeuedTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, err := s.queue.DequeueTask(probe, true)
	if got != nil {
		s.inflight++
	}
	return got, err
}

func (s *runState) finish() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func (s *runState) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0 && s.queue.IsEmpty()
}

// Run builds trees over the point sets, seeds the task queue, and
// drives the visitor to completion with the configured worker count.
func (e *Engine) Run(ctx context.Context, queryPoints, refPoints [][]float64, build VisitorFactory) (Visitor, *Stats, error) {
	timer := utils.NewTimer("engine")

	buildPhase := timer.Start("build")
	queryTree, err := kdtree.Build(queryPoints, e.params.LeafSize)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeBuildError, "failed to build query tree", err)
	}
	refTree, err := kdtree.Build(refPoints, e.params.LeafSize)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeBuildError, "failed to build reference tree", err)
	}
	buildPhase.Stop()

	visitor := build(queryTree, refTree)

	seedPhase := timer.Start("seed")
	queue := taskqueue.New()
	table := exchange.NewTable(e.logger)
	if err := queue.Init(queryTree, e.params.MaxSubtreeSize, table); err != nil {
		return nil, nil, err
	}

	slots := queue.Size()
	cacheID, err := table.Register(refTree, 0, slots)
	if err != nil {
		return nil, nil, err
	}
	seed := taskqueue.Ref{Table: refTree, Node: refTree.Root(), CacheID: cacheID}
	for i := 0; i < slots; i++ {
		if err := queue.PushTask(e.metric, i, seed); err != nil {
			return nil, nil, err
		}
	}
	seedPhase.Stop()

	e.logger.Info("starting computation: %d query points, %d reference points, %d slots, %d workers",
		queryTree.Len(), refTree.Len(), slots, e.params.Workers)

	state := &runState{
		queue:     queue,
		table:     table,
		queryTree: queryTree,
		visitor:   visitor,
	}

	computePhase := timer.Start("compute")
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, e.params.Workers)
	for w := 0; w < e.params.Workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := e.worker(workerCtx, id, state); err != nil {
				errCh <- err
				cancel()
			}
		}(w)
	}
	wg.Wait()
	computePhase.Stop()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, nil, err
	}

	stats := &Stats{
		Points:     queryTree.Len(),
		Dimensions: queryTree.Dim(),
		Slots:      queue.Size(),
		Splits:     queue.Splits(),
		Tasks:      atomic.LoadInt64(&state.tasks),
		BasePairs:  atomic.LoadInt64(&state.basePairs),
		Elapsed:    timer.Total(),
		Phases:     timer.Summary(),
	}

	e.logger.Info("computation finished: %d tasks, %d base pairs, %d splits, %s",
		stats.Tasks, stats.BasePairs, stats.Splits, stats.Phases)
	return visitor, stats, nil
}

// worker probes slots round-robin. A full sweep without work either
// terminates (nothing pending anywhere) or requests a subtree split so
// backlogs held behind locked slots get redistributed.
func (e *Engine) worker(ctx context.Context, id int, state *runState) error {
	probe := id
	dry := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := state.queue.Size()
		got, err := state.dequeue(probe % size)
		probe++
		if err != nil {
			return err
		}

		if got == nil {
			dry++
			if dry >= size {
				dry = 0
				if state.done() {
					return nil
				}
				state.queue.RequestSplit()
				runtime.Gosched()
			}
			continue
		}
		dry = 0

		processErr := e.process(state, got)
		if err := state.queue.UnlockQuerySubtree(e.metric, got.SlotIndex); err != nil {
			state.finish()
			return err
		}
		state.finish()
		if processErr != nil {
			return processErr
		}
	}
}

// process handles one dequeued task. A reference leaf runs the base
// case and drops the task's cache pin; an internal reference node is
// replaced by its two children in the same slot, with one extra pin
// because two consumers now stand where one did.
func (e *Engine) process(state *runState, got *taskqueue.DequeuedTask) error {
	subtree, err := state.queue.Subtree(got.SlotIndex)
	if err != nil {
		return err
	}
	task := got.Task
	refTree, ok := task.Table.(*kdtree.Tree)
	if !ok {
		return apperrors.New(apperrors.CodeInvalidInput, "task carries no reference tree")
	}
	atomic.AddInt64(&state.tasks, 1)

	dist := e.metric.RangeDistanceSq(subtree.Bound(), task.RefNode.Bound())
	if state.visitor.Score(subtree, task.RefNode, dist) {
		return state.table.ReleaseCache(task.CacheID)
	}

	if task.RefNode.IsLeaf() {
		queryPoints := state.queryTree.Points(subtree)
		queryIdx := state.queryTree.Indices(subtree)
		refPoints := refTree.Points(task.RefNode)
		refIdx := refTree.Indices(task.RefNode)
		for i, qp := range queryPoints {
			for j, rp := range refPoints {
				state.visitor.BaseCase(queryIdx[i], qp, refIdx[j], rp, e.metric.DistanceSq(qp, rp))
			}
		}
		atomic.AddInt64(&state.basePairs, int64(len(queryPoints)*len(refPoints)))
		return state.table.ReleaseCache(task.CacheID)
	}

	state.table.LockCache(task.CacheID, 1)
	left := taskqueue.Ref{Table: task.Table, Node: task.RefNode.Left(), CacheID: task.CacheID}
	right := taskqueue.Ref{Table: task.Table, Node: task.RefNode.Right(), CacheID: task.CacheID}
	if err := state.queue.PushTask(e.metric, got.SlotIndex, left); err != nil {
		return err
	}
	return state.queue.PushTask(e.metric, got.SlotIndex, right)
}
