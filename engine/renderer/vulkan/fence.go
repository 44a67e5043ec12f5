package vulkan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// VulkanFence is a monotonic 64 bit fence. Vulkan 1.0 has no timeline
// semaphores, so the queue backs every Signal with a binary vk.Fence and
// advances the value once that fence is reached. After a device loss the
// value freezes and every wait fails.
type VulkanFence struct {
	mu        sync.Mutex
	completed uint64
	waiters   []fenceWaiter
	lost      error
	released  bool
}

var (
	_ gfx.Fence         = (*VulkanFence)(nil)
	_ gfx.EventCanceler = (*VulkanFence)(nil)
	_ gfx.FaultReporter = (*VulkanFence)(nil)
)

type fenceWaiter struct {
	value uint64
	event *gfx.Event
}

var errFenceReleased = errors.New("fence released")

func NewFence(initial uint64) *VulkanFence {
	return &VulkanFence{completed: initial}
}

func (vf *VulkanFence) CompletedValue() uint64 {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	return vf.completed
}

func (vf *VulkanFence) SetEventOnCompletion(value uint64, ev *gfx.Event) error {
	vf.mu.Lock()
	if vf.released {
		vf.mu.Unlock()
		return errFenceReleased
	}
	if vf.lost != nil {
		err := vf.lost
		vf.mu.Unlock()
		return err
	}
	if vf.completed >= value {
		vf.mu.Unlock()
		ev.Signal()
		return nil
	}
	vf.waiters = append(vf.waiters, fenceWaiter{value: value, event: ev})
	vf.mu.Unlock()
	return nil
}

// complete raises the completed value to value and wakes the waiters it
// satisfies. Lower values are ignored.
func (vf *VulkanFence) complete(value uint64) {
	vf.mu.Lock()
	if value <= vf.completed || vf.lost != nil {
		vf.mu.Unlock()
		return
	}
	vf.completed = value

	var ready []*gfx.Event
	pending := vf.waiters[:0]
	for _, w := range vf.waiters {
		if w.value <= value {
			ready = append(ready, w.event)
		} else {
			pending = append(pending, w)
		}
	}
	vf.waiters = pending
	vf.mu.Unlock()

	for _, ev := range ready {
		ev.Signal()
	}
}

// fail freezes the fence after the device was lost and wakes every waiter.
// Only the first cause is kept.
func (vf *VulkanFence) fail(cause error) {
	vf.mu.Lock()
	if vf.lost != nil {
		vf.mu.Unlock()
		return
	}
	if !errors.Is(cause, core.ErrDeviceLost) {
		cause = fmt.Errorf("%w: %w", core.ErrDeviceLost, cause)
	}
	vf.lost = core.Check("SetEventOnCompletion", cause)
	waiters := vf.waiters
	vf.waiters = nil
	vf.mu.Unlock()

	for _, w := range waiters {
		w.event.Signal()
	}
}

func (vf *VulkanFence) Err() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	return vf.lost
}

func (vf *VulkanFence) CancelEvent(ev *gfx.Event) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	kept := vf.waiters[:0]
	for _, w := range vf.waiters {
		if w.event != ev {
			kept = append(kept, w)
		}
	}
	vf.waiters = kept
}

func (vf *VulkanFence) Release() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.released = true
	vf.waiters = nil
}
