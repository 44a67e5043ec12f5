package frame

import (
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

type SlotState uint8

const (
	// Never submitted, or reset for reuse.
	SlotIdle SlotState = iota
	// Submitted, the GPU has not reached the slot's fence value yet.
	SlotInFlight
	// Submitted and confirmed complete by the GPU.
	SlotRetired
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotInFlight:
		return "in-flight"
	case SlotRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Counts sizes the upload buffers of a FrameResource.
type Counts struct {
	Passes    int
	Objects   int
	Materials int
}

// FrameResource bundles what the CPU needs to build one frame while the GPU
// may still be drawing earlier ones.
type FrameResource struct {
	// Position in the ring, -1 for ad-hoc resources.
	Index int

	// Owned exclusively. Reset only once FenceValue completed.
	Allocator gfx.CommandAllocator

	PassCB   *UploadBuffer[PassConstants]
	ObjectCB *UploadBuffer[ObjectConstants]
	// Nil when the scene has no materials.
	MaterialCB *UploadBuffer[MaterialConstants]

	// Fence value marking the last submission from this resource as done.
	// Zero means it was never submitted.
	FenceValue uint64

	submitted bool
}

func NewFrameResource(device gfx.Device, index int, counts Counts) (*FrameResource, error) {
	fr := &FrameResource{Index: index}

	alloc, err := device.CreateCommandAllocator()
	if err != nil {
		return nil, core.Check("CreateCommandAllocator", err)
	}
	fr.Allocator = alloc

	if fr.PassCB, err = NewUploadBuffer[PassConstants](device, counts.Passes, true); err != nil {
		fr.Release()
		return nil, err
	}
	if fr.ObjectCB, err = NewUploadBuffer[ObjectConstants](device, counts.Objects, true); err != nil {
		fr.Release()
		return nil, err
	}
	if counts.Materials > 0 {
		if fr.MaterialCB, err = NewUploadBuffer[MaterialConstants](device, counts.Materials, true); err != nil {
			fr.Release()
			return nil, err
		}
	}
	return fr, nil
}

// State derives the slot state from the completed fence value.
func (fr *FrameResource) State(completed uint64) SlotState {
	switch {
	case !fr.submitted:
		return SlotIdle
	case completed < fr.FenceValue:
		return SlotInFlight
	default:
		return SlotRetired
	}
}

// Release frees the allocator and the buffers. The GPU must be idle.
func (fr *FrameResource) Release() {
	if fr.PassCB != nil {
		fr.PassCB.Release()
		fr.PassCB = nil
	}
	if fr.ObjectCB != nil {
		fr.ObjectCB.Release()
		fr.ObjectCB = nil
	}
	if fr.MaterialCB != nil {
		fr.MaterialCB.Release()
		fr.MaterialCB = nil
	}
	if fr.Allocator != nil {
		fr.Allocator.Release()
		fr.Allocator = nil
	}
}
