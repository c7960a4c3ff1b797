// Package ringbuf provides a fixed-capacity circular buffer backed by a
// single preallocated array. Appends overwrite the oldest entry once the
// buffer is full, so steady-state operation never allocates.
package ringbuf

// Ring is a bounded FIFO over a fixed array. Not safe for concurrent use;
// callers own their locking.
type Ring[T any] struct {
	buf  []T
	head int // index of the next write
	size int
}

// New creates a ring with the given capacity (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When full, the oldest entry is overwritten and returned
// with evicted=true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.size == len(r.buf) {
		old = r.buf[r.head]
		evicted = true
	} else {
		r.size++
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return old, evicted
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// at returns the i-th entry counting from the oldest (0 = oldest).
func (r *Ring[T]) at(i int) T {
	start := r.head - r.size
	if start < 0 {
		start += len(r.buf)
	}
	return r.buf[(start+i)%len(r.buf)]
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.at(i)
	}
	return out
}

// Last returns a copy of the newest n entries, oldest first. n larger than
// Len returns everything.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.at(r.size - n + i)
	}
	return out
}

// Do calls fn for each entry, oldest first, stopping early if fn returns
// false.
func (r *Ring[T]) Do(fn func(T) bool) {
	for i := 0; i < r.size; i++ {
		if !fn(r.at(i)) {
			return
		}
	}
}
