// Package history provides a fixed-capacity, insertion-ordered snapshot buffer.
package history

import (
	"fmt"
	"sync"

	"fleetroster/internal/fleet"
)

// Bounded is a ring buffer that evicts its oldest element once full.
// It is safe for one writer and any number of readers.
type Bounded[T any] struct {
	mu    sync.RWMutex
	items []T
	start int
	size  int
}

// New creates a buffer holding at most capacity items. Capacities below one
// are raised to one.
func New[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{items: make([]T, capacity)}
}

// Append adds item, evicting the oldest element when full.
func (b *Bounded[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size < len(b.items) {
		b.items[(b.start+b.size)%len(b.items)] = item
		b.size++
		return
	}
	b.items[b.start] = item
	b.start = (b.start + 1) % len(b.items)
}

// Len returns the number of stored items.
func (b *Bounded[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the configured capacity.
func (b *Bounded[T]) Cap() int {
	return len(b.items)
}

// At returns the item at logical position i, 0 being the oldest.
func (b *Bounded[T]) At(i int) (T, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if i < 0 || i >= b.size {
		return zero, fmt.Errorf("history at %d (len %d): %w", i, b.size, fleet.ErrOutOfRange)
	}
	return b.items[(b.start+i)%len(b.items)], nil
}

// Head returns the oldest item.
func (b *Bounded[T]) Head() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[b.start], true
}

// Tail returns the newest item.
func (b *Bounded[T]) Tail() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.start+b.size-1)%len(b.items)], true
}

// All returns a copy of the items ordered oldest to newest.
func (b *Bounded[T]) All() []T {
	return b.Last(0)
}

// Last returns the newest n items, oldest first. n <= 0 returns everything.
func (b *Bounded[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, 0, n)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.items[(b.start+i)%len(b.items)])
	}
	return out
}

// Clear drops all items.
func (b *Bounded[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start, b.size = 0, 0
}
