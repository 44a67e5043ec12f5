package containers

import "errors"

var ErrStaleHandle = errors.New("stale or invalid handle")

// Handle addresses an entry of a Registry. The generation tells a handle to a
// released slot apart from one to the live entry reusing that slot.
type Handle struct {
	Index      uint32
	Generation uint32
}

// InvalidHandle never resolves.
var InvalidHandle = Handle{Index: ^uint32(0)}

func (h Handle) IsValid() bool {
	return h.Index != InvalidHandle.Index
}

type slot[T any] struct {
	value      T
	generation uint32
	used       bool
}

// Registry is an arena of values addressed by generation checked handles.
// Released slots are recycled lowest index first.
type Registry[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func NewRegistry[T any](capacity int) *Registry[T] {
	return &Registry[T]{
		slots: make([]slot[T], 0, capacity),
	}
}

// Acquire stores value and returns its handle.
func (r *Registry[T]) Acquire(value T) Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		// Existing free spot. Take it.
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot[T]{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.value = value
	s.used = true
	r.live++
	return Handle{Index: idx, Generation: s.generation}
}

// Get resolves h, returning false when it is stale.
func (r *Registry[T]) Get(h Handle) (T, bool) {
	if !r.valid(h) {
		var zero T
		return zero, false
	}
	return r.slots[h.Index].value, true
}

// Release frees the slot addressed by h and bumps its generation so that
// every copy of h becomes stale.
func (r *Registry[T]) Release(h Handle) error {
	if !r.valid(h) {
		return ErrStaleHandle
	}
	s := &r.slots[h.Index]
	var zero T
	s.value = zero
	s.used = false
	s.generation++
	r.live--

	// Keep the free list sorted descending so the lowest index pops first.
	pos := len(r.free)
	for pos > 0 && r.free[pos-1] < h.Index {
		pos--
	}
	r.free = append(r.free, 0)
	copy(r.free[pos+1:], r.free[pos:])
	r.free[pos] = h.Index
	return nil
}

func (r *Registry[T]) Len() int {
	return r.live
}

func (r *Registry[T]) valid(h Handle) bool {
	if !h.IsValid() || int(h.Index) >= len(r.slots) {
		return false
	}
	s := r.slots[h.Index]
	return s.used && s.generation == h.Generation
}
