package tracker

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// seenFilter implements a sliding window membership filter over message IDs
// using two bloom filters. IDs are always added to the "current" filter,
// while lookups check both "current" and "previous". Periodic rotation
// swaps current to previous and creates a fresh current filter, providing
// a bounded time window for message tracking.
type seenFilter struct {
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	mu       sync.RWMutex
	window   time.Duration
	capacity uint
	fpRate   float64
}

func newSeenFilter(window time.Duration, capacity uint, fpRate float64) *seenFilter {
	return &seenFilter{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// seen checks whether the ID exists in either the current or previous
// filter. If found, it returns true. If not found, it adds the ID to the
// current filter and returns false.
//
// This method is safe for concurrent use.
func (f *seenFilter) seen(id string) bool {
	data := []byte(id)

	f.mu.RLock()
	if f.current.Test(data) || f.previous.Test(data) {
		f.mu.RUnlock()
		return true
	}
	f.mu.RUnlock()

	f.mu.Lock()
	// Double-check after acquiring write lock to avoid race where
	// another goroutine added the same ID between RUnlock and Lock.
	if f.current.Test(data) || f.previous.Test(data) {
		f.mu.Unlock()
		return true
	}
	f.current.Add(data)
	f.mu.Unlock()

	return false
}

// rotate swaps the current filter to previous and creates a fresh current
// filter. Called every window/2 so IDs stay visible for at least one full
// window duration.
func (f *seenFilter) rotate() {
	f.mu.Lock()
	f.previous = f.current
	f.current = bloom.NewWithEstimates(f.capacity, f.fpRate)
	f.mu.Unlock()
}
