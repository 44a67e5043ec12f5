package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

const (
	// How long the completion loop blocks in vkWaitForFences before checking
	// for shutdown.
	completionPoll = uint64(100 * time.Millisecond)
	// Signals enqueued ahead of the GPU before Signal blocks.
	maxPendingSignals = 256
)

var errQueueReleased = errors.New("command queue released")

// VulkanQueue submits to the graphics queue and retires fence values on a
// dedicated goroutine.
type VulkanQueue struct {
	device *Device
	handle vk.Queue
	family uint32

	mu       sync.Mutex
	free     []vk.Fence
	released bool

	pending chan pendingSignal
	quit    chan struct{}
	wg      sync.WaitGroup
}

type pendingSignal struct {
	fence  *VulkanFence
	value  uint64
	handle vk.Fence
}

func newQueue(d *Device) *VulkanQueue {
	q := &VulkanQueue{
		device:  d,
		handle:  d.context.Device.GraphicsQueue,
		family:  uint32(d.context.Device.GraphicsQueueIndex),
		pending: make(chan pendingSignal, maxPendingSignals),
		quit:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.completionLoop()
	return q
}

func (q *VulkanQueue) logical() vk.Device {
	return q.device.context.Device.LogicalDevice
}

func (q *VulkanQueue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	if len(lists) == 0 {
		return nil
	}
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("foreign command list %T", l)
		}
		if cl.recording {
			return errors.New("command list must be closed before execution")
		}
		buffers = append(buffers, cl.buffer)
	}
	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}}
	return q.submit(submit, vk.NullFence)
}

// Signal enqueues an empty batch which reaches its vk.Fence once everything
// submitted before it has completed.
func (q *VulkanQueue) Signal(f gfx.Fence, value uint64) error {
	vf, ok := f.(*VulkanFence)
	if !ok {
		return fmt.Errorf("foreign fence %T", f)
	}
	handle, err := q.acquireFence()
	if err != nil {
		return err
	}
	empty := []vk.SubmitInfo{{SType: vk.StructureTypeSubmitInfo}}
	if err := q.submit(empty, handle); err != nil {
		q.recycle(handle)
		return err
	}
	q.pending <- pendingSignal{fence: vf, value: value, handle: handle}
	return nil
}

func (q *VulkanQueue) submit(batches []vk.SubmitInfo, fence vk.Fence) error {
	return q.device.locks.SafeQueueCall(q.family, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(q.handle, uint32(len(batches)), batches, fence))
	})
}

func (q *VulkanQueue) acquireFence() (vk.Fence, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return vk.NullFence, errQueueReleased
	}
	if n := len(q.free); n > 0 {
		f := q.free[n-1]
		q.free = q.free[:n-1]
		return f, nil
	}
	var f vk.Fence
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if err := check("vkCreateFence", vk.CreateFence(q.logical(), &info, q.device.context.Allocator, &f)); err != nil {
		return vk.NullFence, err
	}
	return f, nil
}

func (q *VulkanQueue) recycle(f vk.Fence) {
	if res := vk.ResetFences(q.logical(), 1, []vk.Fence{f}); res != vk.Success {
		vk.DestroyFence(q.logical(), f, q.device.context.Allocator)
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.free = append(q.free, f)
}

func (q *VulkanQueue) completionLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case p := <-q.pending:
			if !q.await(p) {
				return
			}
		}
	}
}

// await blocks until p is reached. It reports false when the queue shuts
// down first.
func (q *VulkanQueue) await(p pendingSignal) bool {
	for {
		res := vk.WaitForFences(q.logical(), 1, []vk.Fence{p.handle}, vk.True, completionPoll)
		switch res {
		case vk.Success:
			p.fence.complete(p.value)
			q.device.metrics.Completed(p.value)
			q.recycle(p.handle)
			return true
		case vk.Timeout:
			select {
			case <-q.quit:
				return false
			default:
			}
		default:
			// A lost device never completes anything again. The fence
			// freezes and wakes its waiters with the error.
			core.LogError("Waiting for fence value %d failed: %s", p.value, VulkanResultString(res, true))
			p.fence.fail(check("vkWaitForFences", res))
			q.recycle(p.handle)
			return true
		}
	}
}

func (q *VulkanQueue) Release() {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return
	}
	q.released = true
	q.mu.Unlock()

	_ = q.device.locks.SafeQueueCall(q.family, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(q.handle))
	})
	close(q.quit)
	q.wg.Wait()

	// Whatever is left has completed with the idle queue.
	for {
		select {
		case p := <-q.pending:
			p.fence.complete(p.value)
			vk.DestroyFence(q.logical(), p.handle, q.device.context.Allocator)
			continue
		default:
		}
		break
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range q.free {
		vk.DestroyFence(q.logical(), f, q.device.context.Allocator)
	}
	q.free = nil
}
