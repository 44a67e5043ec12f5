package containers

import "errors"

var (
	ErrRingFull  = errors.New("ring is full")
	ErrRingEmpty = errors.New("ring is empty")
)

// Ring is a fixed capacity FIFO queue.
type Ring[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// Create a new Ring holding at most size elements.
func NewRing[T any](size int) *Ring[T] {
	return &Ring[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element to the back of the ring
func (r *Ring[T]) Enqueue(value T) error {
	if r.IsFull() {
		return ErrRingFull
	}

	r.data[r.writeIndex] = value
	r.writeIndex = (r.writeIndex + 1) % r.size
	r.count++
	return nil
}

// Dequeue removes and returns the front element
func (r *Ring[T]) Dequeue() (T, error) {
	var zero T
	if r.IsEmpty() {
		return zero, ErrRingEmpty
	}

	value := r.data[r.readIndex]
	r.data[r.readIndex] = zero
	r.readIndex = (r.readIndex + 1) % r.size
	r.count--
	return value, nil
}

// Peek returns the front element without removing it
func (r *Ring[T]) Peek() (T, error) {
	if r.IsEmpty() {
		var zero T
		return zero, ErrRingEmpty
	}
	return r.data[r.readIndex], nil
}

func (r *Ring[T]) Len() int {
	return r.count
}

func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

func (r *Ring[T]) IsFull() bool {
	return r.count == r.size
}

// Items copies the elements from front to back.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(r.readIndex+i)%r.size])
	}
	return out
}

// Clear drops every element.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.readIndex, r.writeIndex, r.count = 0, 0, 0
}
