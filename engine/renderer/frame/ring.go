package frame

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/renderer/fence"
)

// Passes rendered by a cube map baking resource, one per face.
const CubeMapFaces = 6

// Ring cycles through a fixed number of FrameResources. The CPU may run at
// most Len() frames ahead of the GPU.
type Ring struct {
	device  gfx.Device
	sync    *fence.Synchronizer
	slots   []*FrameResource
	counts  Counts
	index   int
	metrics *core.Metrics
}

func NewRing(device gfx.Device, fs *fence.Synchronizer, depth int, counts Counts, metrics *core.Metrics) (*Ring, error) {
	if depth < 1 {
		return nil, fmt.Errorf("frame ring depth must be at least 1, got %d", depth)
	}
	r := &Ring{
		device:  device,
		sync:    fs,
		slots:   make([]*FrameResource, 0, depth),
		counts:  counts,
		index:   -1,
		metrics: metrics,
	}
	for i := 0; i < depth; i++ {
		fr, err := NewFrameResource(device, i, counts)
		if err != nil {
			r.Release()
			return nil, fmt.Errorf("frame resource %d: %w", i, err)
		}
		r.slots = append(r.slots, fr)
	}
	core.LogDebug("Frame ring created with %d slots (%d passes, %d objects, %d materials).",
		depth, counts.Passes, counts.Objects, counts.Materials)
	return r, nil
}

// Advance moves to the next slot, waits for the GPU to be done with it and
// resets its allocator. The returned resource is safe to write into.
func (r *Ring) Advance(ctx context.Context) (*FrameResource, error) {
	r.index = (r.index + 1) % len(r.slots)
	fr := r.slots[r.index]

	if fr.FenceValue != 0 && r.sync.Completed() < fr.FenceValue {
		r.metrics.SlotWait()
		if err := r.sync.WaitFor(ctx, fr.FenceValue); err != nil {
			return nil, fmt.Errorf("frame slot %d: %w", r.index, err)
		}
	}

	if err := fr.Allocator.Reset(); err != nil {
		return nil, core.Check("CommandAllocator.Reset", err)
	}
	fr.submitted = false
	return fr, nil
}

// Submit executes lists on the queue and stamps the current slot with the
// fence value that retires them.
func (r *Ring) Submit(lists ...gfx.CommandList) (uint64, error) {
	fr := r.Current()
	if fr == nil {
		return 0, fmt.Errorf("submit before the first advance")
	}
	if len(lists) > 0 {
		if err := r.sync.Queue().ExecuteCommandLists(lists...); err != nil {
			return 0, core.Check("ExecuteCommandLists", err)
		}
	}
	v, err := r.sync.Signal()
	if err != nil {
		return 0, err
	}
	fr.FenceValue = v
	fr.submitted = true
	r.metrics.FrameSubmitted(v)
	return v, nil
}

// Current is the slot returned by the last Advance, nil before the first one.
func (r *Ring) Current() *FrameResource {
	if r.index < 0 {
		return nil
	}
	return r.slots[r.index]
}

func (r *Ring) Index() int {
	return r.index
}

func (r *Ring) Len() int {
	return len(r.slots)
}

func (r *Ring) Slot(i int) *FrameResource {
	return r.slots[i]
}

func (r *Ring) Slots() []*FrameResource {
	return r.slots
}

func (r *Ring) Counts() Counts {
	return r.counts
}

// NewBakeResource creates a FrameResource outside the ring for one-time
// passes such as rendering the faces of a cube map. The caller flushes the
// queue before releasing it.
func (r *Ring) NewBakeResource(passes int) (*FrameResource, error) {
	counts := r.counts
	counts.Passes = passes
	return NewFrameResource(r.device, -1, counts)
}

// Release frees every slot. The GPU must be idle.
func (r *Ring) Release() {
	for _, fr := range r.slots {
		fr.Release()
	}
	r.slots = nil
}
