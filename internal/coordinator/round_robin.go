package coordinator

import (
	"sync"

	"github.com/dreamware/indexfleet/internal/cluster"
)

// RoundRobin hands out items from a fixed list in cyclic order.
// The K-th call to Next, counted across all callers, returns items[(K-1) mod N].
// Thread-safe: the cursor is advanced under a mutex.
type RoundRobin[T any] struct {
	items  []T
	mu     sync.Mutex
	cursor uint64
}

// NewRoundRobin creates a selector over items. An empty list is rejected here
// rather than on the first call to Next.
func NewRoundRobin[T any](items []T) (*RoundRobin[T], error) {
	if len(items) == 0 {
		return nil, &cluster.ConfigurationError{Reason: "round robin requires at least one item"}
	}
	return &RoundRobin[T]{items: append([]T(nil), items...)}, nil
}

// Next returns the next item in rotation.
func (r *RoundRobin[T]) Next() T {
	r.mu.Lock()
	idx := r.cursor % uint64(len(r.items))
	r.cursor++
	r.mu.Unlock()
	return r.items[idx]
}

// Len returns the number of items in rotation.
func (r *RoundRobin[T]) Len() int {
	return len(r.items)
}
