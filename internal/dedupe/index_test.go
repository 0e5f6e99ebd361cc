package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/alttext/internal/domain"
)

func record(idx uint, data string) domain.ImageRecord {
	return domain.NewImageRecord(idx, domain.SourceLocation{Page: 1, Position: int(idx) + 1}, []byte(data), "png")
}

func TestShouldAnnotate(t *testing.T) {
	x := NewIndex()
	h1a, h2, h1b := record(0, "one"), record(1, "two"), record(2, "one")

	assert.True(t, x.ShouldAnnotate(h1a))
	assert.True(t, x.ShouldAnnotate(h2))
	assert.False(t, x.ShouldAnnotate(h1b))
	assert.Equal(t, 2, x.Len())

	first, ok := x.FirstOccurrence(h1b.Hash)
	require.True(t, ok)
	assert.Equal(t, uint(0), first)
}

func TestSeenAndRecord(t *testing.T) {
	x := NewIndex()
	h := domain.HashBytes([]byte("fig"))

	assert.False(t, x.Seen(h))
	x.Record(h, 7)
	assert.True(t, x.Seen(h))

	first, ok := x.FirstOccurrence(h)
	require.True(t, ok)
	assert.Equal(t, uint(7), first)

	x.Record(h, 9)
	first, _ = x.FirstOccurrence(h)
	assert.Equal(t, uint(7), first)

	_, ok := x.FirstOccurrence(domain.HashBytes([]byte("other")))
	assert.False(t, ok)
}

func TestRecordKeepsFirstOccurrence(t *testing.T) {
	x := NewIndex()
	rec := record(4, "late")
	require.True(t, x.ShouldAnnotate(rec))

	x.Record(rec.Hash, 0)
	first, _ := x.FirstOccurrence(rec.Hash)
	assert.Equal(t, uint(4), first)
}

func TestConcurrentShouldAnnotate(t *testing.T) {
	x := NewIndex()
	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if x.ShouldAnnotate(record(uint(i), "same bytes")) {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, x.Len())
}
