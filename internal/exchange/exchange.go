// Package exchange holds reference-subtree data received from peer
// workers. Each entry is pin-counted: the count tracks how many pending
// or in-flight tasks still need the entry, and the entry is evicted the
// moment the count reaches zero.
package exchange

import (
	"sync"

	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/kdtree"
	"github.com/dualtree-engine/pkg/utils"
)

// Entry is one cached reference subtree with its backing points.
type Entry struct {
	CacheID int
	Tree    *kdtree.Tree
	Origin  int // rank of the worker the subtree came from
}

// Table is the worker-local cache of reference subtrees. It satisfies
// the task queue's CacheLocker so split-induced pin adjustments land
// here directly.
type Table struct {
	mu      sync.Mutex
	entries map[int]*Entry
	pins    map[int]int
	nextID  int
	logger  utils.Logger
}

// NewTable creates an empty cache table.
func NewTable(logger utils.Logger) *Table {
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	return &Table{
		entries: make(map[int]*Entry),
		pins:    make(map[int]int),
		logger:  logger,
	}
}

// Register stores a reference subtree and pins it for initialPins
// consumers. It returns the assigned cache id.
func (t *Table) Register(tree *kdtree.Tree, origin int, initialPins int) (int, error) {
	if tree == nil {
		return 0, apperrors.New(apperrors.CodeInvalidInput, "reference tree is nil")
	}
	if initialPins <= 0 {
		return 0, apperrors.Newf(apperrors.CodeInvalidInput,
			"initial pin count must be positive, got %d", initialPins)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.entries[id] = &Entry{CacheID: id, Tree: tree, Origin: origin}
	t.pins[id] = initialPins

	t.logger.Debug("registered cache entry %d from worker %d with %d pins", id, origin, initialPins)
	return id, nil
}

// Get returns the entry for the cache id.
func (t *Table) Get(cacheID int) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[cacheID]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "cache entry %d not found", cacheID)
	}
	return entry, nil
}

// LockCache raises the entry's pin count by incrementBy. Unknown ids
// are ignored so split bookkeeping for already-evicted entries stays
// harmless.
func (t *Table) LockCache(cacheID int, incrementBy int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[cacheID]; !ok {
		t.logger.Warn("pin adjustment for unknown cache entry %d ignored", cacheID)
		return
	}
	t.pins[cacheID] += incrementBy
}

// ReleaseCache drops one pin. When the count reaches zero the entry is
// evicted and its memory becomes reclaimable.
func (t *Table) ReleaseCache(cacheID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pins, ok := t.pins[cacheID]
	if !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "cache entry %d not found", cacheID)
	}
	pins--
	if pins <= 0 {
		delete(t.entries, cacheID)
		delete(t.pins, cacheID)
		t.logger.Debug("evicted cache entry %d", cacheID)
		return nil
	}
	t.pins[cacheID] = pins
	return nil
}

// Pins returns the entry's current pin count, zero if evicted.
func (t *Table) Pins(cacheID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pins[cacheID]
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
