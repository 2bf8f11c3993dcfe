// Package history implements the linear undo/redo store for region state.
//
// History keeps every committed region collection as an immutable snapshot
// plus an index pointing at the current one. Undo and redo only move the
// index. Commit drops everything after the index before appending, so a new
// edit after an undo discards the redo branch; there is no history tree.
package history

import "github.com/menta2k/ghostsnap/pkg/region"

// Mutation derives the next collection from the current one. It must not
// modify its argument.
type Mutation func(current region.Collection) region.Collection

// History is a branch-discarding snapshot stack. Snapshot 0 is always the
// empty collection. The zero value is not usable; call New.
type History struct {
	snapshots []region.Collection
	index     int
}

// New creates a history holding only the empty initial snapshot
func New() *History {
	h := &History{}
	h.Reset()
	return h
}

// Reset discards all snapshots and returns to the empty initial state
func (h *History) Reset() {
	h.snapshots = []region.Collection{{}}
	h.index = 0
}

// Commit applies mutate to the current snapshot, discards any redo branch and
// records the result as the new current snapshot.
func (h *History) Commit(mutate Mutation) region.Collection {
	next := mutate(h.snapshots[h.index])
	if next == nil {
		next = region.Collection{}
	}

	// Full slice expression forces a fresh backing array, so snapshots held
	// by callers from a discarded branch stay intact.
	kept := h.snapshots[: h.index+1 : h.index+1]
	h.snapshots = append(kept, next)
	h.index = len(h.snapshots) - 1
	return next
}

// Undo steps back one snapshot. It reports whether the index moved.
func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.index--
	return true
}

// Redo steps forward one snapshot. It reports whether the index moved.
func (h *History) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.index++
	return true
}

// Current returns the snapshot at the current index. Treat it as read-only.
func (h *History) Current() region.Collection {
	return h.snapshots[h.index]
}

// CanUndo reports whether an earlier snapshot exists
func (h *History) CanUndo() bool {
	return h.index > 0
}

// CanRedo reports whether a later snapshot exists
func (h *History) CanRedo() bool {
	return h.index < len(h.snapshots)-1
}

// Len returns the number of recorded snapshots, including the initial one
func (h *History) Len() int {
	return len(h.snapshots)
}

// Index returns the position of the current snapshot
func (h *History) Index() int {
	return h.index
}
