package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// memoKey is (blockID, initialInputUUID). spec.md §4.2 keys the
// per-request memoization map by the pair, not just the block id, so a
// batch endpoint iterating many inputs over a shared Memo still gets
// correct per-input results.
type memoKey struct {
	blockID      int64
	initialInput uuid.UUID
}

// pathSet tracks the keys currently on one DFS branch of evaluation, so a
// true cycle (a block reached again through its own ancestor chain) can
// be told apart from two sibling branches of a diamond both needing the
// same upstream block. It is never mutated in place: with returns an
// extended copy, so concurrent siblings can each carry their own path
// without synchronization.
type pathSet map[memoKey]struct{}

func (p pathSet) has(k memoKey) bool {
	_, ok := p[k]
	return ok
}

func (p pathSet) with(k memoKey) pathSet {
	next := make(pathSet, len(p)+1)
	for existing := range p {
		next[existing] = struct{}{}
	}
	next[k] = struct{}{}
	return next
}

// memoEntry holds one key's computation: done closes once result and err
// are set, so every caller past the first blocks on the channel instead
// of recomputing.
type memoEntry struct {
	done   chan struct{}
	result uuid.UUID
	err    error
}

// Memo is the Pipeline Evaluator's request-scoped memoization map,
// distinct from the Cache Index: it prevents redundant recursive work for
// diamond dependencies within one evaluation (or one batch of
// evaluations sharing a Memo), while the Cache Index prevents redundant
// work across separate evaluations. It needs no locking from the caller's
// perspective; its own mutex makes it safe to share across the concurrent
// sibling evaluations the Evaluator fans out internally, and across the
// inputs of a batch "outputs" request.
type Memo struct {
	mu      sync.Mutex
	entries map[memoKey]*memoEntry
}

// NewMemo creates an empty Memo. Callers construct one per top-level
// request; a batch endpoint evaluating many inputs against the same
// terminal block constructs exactly one and shares it across all of them.
func NewMemo() *Memo {
	return &Memo{entries: make(map[memoKey]*memoEntry)}
}

// resolve runs compute for k exactly once, regardless of how many
// concurrent callers request it. The first caller to reach k registers an
// entry and runs compute; every other caller for the same key (including
// a sibling branch of a diamond dependency reaching the same upstream
// block at the same time) waits on that entry's result rather than
// recomputing it.
func (m *Memo) resolve(k memoKey, compute func() (uuid.UUID, error)) (uuid.UUID, error) {
	m.mu.Lock()
	if entry, ok := m.entries[k]; ok {
		m.mu.Unlock()
		<-entry.done
		return entry.result, entry.err
	}
	entry := &memoEntry{done: make(chan struct{})}
	m.entries[k] = entry
	m.mu.Unlock()

	entry.result, entry.err = compute()
	close(entry.done)
	return entry.result, entry.err
}
