// Package ring provides a fixed-capacity FIFO buffer that evicts its oldest
// element on overflow. It backs the latency history of the progress hub and
// the rolling translation context of the orchestrator.
package ring

// Buffer is not safe for concurrent use; callers hold their own lock.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New returns a buffer holding at most capacity elements. A capacity of
// zero or less yields a buffer that discards every push.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	if len(b.items) == 0 {
		return
	}
	idx := (b.head + b.size) % len(b.items)
	b.items[idx] = v
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.items)
}

// Items returns a copy of the contents, oldest first.
func (b *Buffer[T]) Items() []T {
	return b.Last(b.size)
}

// Last returns up to n most recent elements, oldest first.
func (b *Buffer[T]) Last(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	skip := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head+skip+i)%len(b.items)]
	}
	return out
}

func (b *Buffer[T]) Len() int { return b.size }

func (b *Buffer[T]) Cap() int { return len(b.items) }

// Reset drops all elements and keeps the capacity.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.size = 0, 0
}
