package session

import "github.com/lewtec/maskbatch/internal/domain"

// historyLimit bounds how many mask snapshots one edit session keeps. When
// the limit is reached the oldest snapshot falls off; the user simply cannot
// undo past it.
const historyLimit = 100

// History is the linear undo stack for one edit session: a list of mask
// snapshots and a position into it. Pushing after an undo truncates the redo
// tail, so there is never any branching. It carries no locking of its own;
// the owning session serializes access.
type History struct {
	snapshots []domain.BinaryMask
	pos       int
}

// NewHistory starts a history containing only the initial snapshot.
func NewHistory(initial domain.BinaryMask) *History {
	return &History{snapshots: []domain.BinaryMask{initial}}
}

// Current returns the snapshot at the present position.
func (h *History) Current() domain.BinaryMask {
	return h.snapshots[h.pos]
}

// Push records a new snapshot after the current position, discarding any
// entries that were undone past.
func (h *History) Push(m domain.BinaryMask) {
	h.snapshots = append(h.snapshots[:h.pos+1], m)
	if len(h.snapshots) > historyLimit {
		h.snapshots = h.snapshots[1:]
	}
	h.pos = len(h.snapshots) - 1
}

// Undo steps back one snapshot. At the oldest entry it is a no-op and
// reports false.
func (h *History) Undo() bool {
	if h.pos == 0 {
		return false
	}
	h.pos--
	return true
}

// Redo steps forward one snapshot. At the newest entry it is a no-op and
// reports false.
func (h *History) Redo() bool {
	if h.pos == len(h.snapshots)-1 {
		return false
	}
	h.pos++
	return true
}

// CanUndo reports whether Undo would move the position.
func (h *History) CanUndo() bool { return h.pos > 0 }

// CanRedo reports whether Redo would move the position.
func (h *History) CanRedo() bool { return h.pos < len(h.snapshots)-1 }

// Len returns the number of stored snapshots.
func (h *History) Len() int { return len(h.snapshots) }
