package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/luminax/engine/gfx"
)

type waiter struct {
	value uint64
	ev    *gfx.Event
}

// Fence simulates a GPU timeline. Its completed value never passes the last
// value signaled through a queue.
type Fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	signaled  uint64
	waiters   []waiter
	lost      error
}

var (
	_ gfx.Fence         = (*Fence)(nil)
	_ gfx.EventCanceler = (*Fence)(nil)
	_ gfx.FaultReporter = (*Fence)(nil)
)

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) Signaled() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

// Pending reports how many events wait for the fence.
func (f *Fence) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func (f *Fence) SetEventOnCompletion(value uint64, ev *gfx.Event) error {
	if err := f.dev.fail("SetEventOnCompletion"); err != nil {
		return err
	}
	f.dev.record("Fence.SetEventOnCompletion(%d)", value)

	f.mu.Lock()
	if f.lost != nil {
		err := f.lost
		f.mu.Unlock()
		return err
	}
	if f.completed >= value {
		f.mu.Unlock()
		ev.Signal()
		return nil
	}
	f.waiters = append(f.waiters, waiter{value: value, ev: ev})
	f.mu.Unlock()

	f.dev.mu.Lock()
	hook := f.dev.onWait
	f.dev.mu.Unlock()
	if hook != nil {
		hook(f, value)
	}
	return nil
}

// Complete advances the GPU side of the fence to value, clamped to the last
// signaled value, and wakes the events it satisfies.
func (f *Fence) Complete(value uint64) {
	f.mu.Lock()
	if value > f.signaled {
		value = f.signaled
	}
	if f.lost != nil {
		f.mu.Unlock()
		return
	}
	if value <= f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = value
	var ready []*gfx.Event
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= value {
			ready = append(ready, w.ev)
		} else {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
	f.mu.Unlock()

	f.dev.record("GPU.Complete(%d)", value)
	for _, ev := range ready {
		ev.Signal()
	}
}

func (f *Fence) CancelEvent(ev *gfx.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.ev != ev {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
}

// Lose simulates a device removal. The fence stops advancing, pending events
// fire so their waiters notice, and later registrations fail with err.
func (f *Fence) Lose(err error) {
	f.mu.Lock()
	if f.lost != nil {
		f.mu.Unlock()
		return
	}
	f.lost = err
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	f.dev.record("GPU.Lost")
	for _, w := range waiters {
		w.ev.Signal()
	}
}

func (f *Fence) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lost
}

// CompleteAll lets the GPU catch up with everything signaled so far.
func (f *Fence) CompleteAll() {
	f.Complete(f.Signaled())
}

func (f *Fence) Release() {
	f.dev.record("Fence.Release")
}

type Queue struct {
	dev *Device

	// Allocators whose lists were executed since the last signal.
	unsignaled []*Allocator
	executed   int
	released   bool
}

var _ gfx.CommandQueue = (*Queue)(nil)

// Executed counts command lists submitted through the queue.
func (q *Queue) Executed() int { return q.executed }

func (q *Queue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	if err := q.dev.fail("ExecuteCommandLists"); err != nil {
		return err
	}
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("ExecuteCommandLists: foreign command list %T", l)
		}
		if cl.open {
			return fmt.Errorf("ExecuteCommandLists: command list is still recording")
		}
		q.unsignaled = append(q.unsignaled, cl.alloc)
		for _, run := range cl.copies {
			run()
		}
	}
	q.executed += len(lists)
	q.dev.record("Queue.ExecuteCommandLists(%d)", len(lists))
	return nil
}

func (q *Queue) Signal(f gfx.Fence, value uint64) error {
	if err := q.dev.fail("Signal"); err != nil {
		return err
	}
	ff, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("Signal: foreign fence %T", f)
	}

	ff.mu.Lock()
	if value <= ff.signaled {
		ff.mu.Unlock()
		q.dev.violate("fence signaled with %d after %d", value, ff.signaled)
		return nil
	}
	ff.signaled = value
	ff.mu.Unlock()

	for _, a := range q.unsignaled {
		a.fence = ff
		a.pending = value
	}
	q.unsignaled = q.unsignaled[:0]
	q.dev.record("Queue.Signal(%d)", value)

	switch {
	case q.dev.autoComplete:
		ff.Complete(value)
	case q.dev.latency > 0:
		time.AfterFunc(q.dev.latency, func() { ff.Complete(value) })
	}
	return nil
}

func (q *Queue) Release() {
	q.released = true
	q.dev.record("Queue.Release")
}
