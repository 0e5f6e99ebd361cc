// Package dedupe tracks which image contents a run has already seen.
package dedupe

import (
	"sync"

	"github.com/spherical/alttext/internal/domain"
)

// Index remembers the first sequence index at which each content hash
// appeared. One Index belongs to exactly one run.
type Index struct {
	mu    sync.Mutex
	first map[domain.ContentHash]uint
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		first: make(map[domain.ContentHash]uint),
	}
}

// Seen reports whether h has been recorded.
func (x *Index) Seen(h domain.ContentHash) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.first[h]
	return ok
}

// Record marks h as first seen at sequence index idx. A hash that is already
// known keeps its earlier index.
func (x *Index) Record(h domain.ContentHash, idx uint) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.first[h]; !ok {
		x.first[h] = idx
	}
}

// ShouldAnnotate records rec's hash and reports whether rec is the first
// record carrying it. The check and the insert are atomic.
func (x *Index) ShouldAnnotate(rec domain.ImageRecord) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.first[rec.Hash]; ok {
		return false
	}
	x.first[rec.Hash] = rec.SequenceIndex
	return true
}

// FirstOccurrence returns the sequence index of the first record with h.
func (x *Index) FirstOccurrence(h domain.ContentHash) (uint, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	idx, ok := x.first[h]
	return idx, ok
}

// Len returns the number of distinct hashes.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.first)
}
