package utils

// -----------------------------------------------------------------------------
// RingBuffer is a fixed-size circular buffer. Once full, each Append overwrites
// the oldest element. Not safe for concurrent use.
// -----------------------------------------------------------------------------

type RingBuffer[T any] struct {
	data     []T
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewRingBuffer creates a new buffer with fixed capacity
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}

	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds an element, dropping the oldest when full.
func (rb *RingBuffer[T]) Append(v T) {
	rb.data[rb.index] = v
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// Latest returns up to n newest elements, oldest first.
func (rb *RingBuffer[T]) Latest(n int) []T {
	if rb.size == 0 || n <= 0 {
		return []T{}
	}

	count := min(n, rb.size)
	result := make([]T, count)

	// Latest data is at index-1
	startIdx := (rb.index - count + rb.capacity) % rb.capacity
	for i := 0; i < count; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}
	return result
}

// -----------------------------------------------------------------------------

// All returns every element in insertion order (oldest to newest).
func (rb *RingBuffer[T]) All() []T {
	return rb.Latest(rb.size)
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *RingBuffer[T]) Size() int {
	return rb.size
}

// Capacity returns buffer capacity (fixed)
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// IsFull returns whether buffer is full
func (rb *RingBuffer[T]) IsFull() bool {
	return rb.size == rb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (rb *RingBuffer[T]) Clear() {
	var zero T
	for i := range rb.data {
		rb.data[i] = zero
	}
	rb.index = 0
	rb.size = 0
}
