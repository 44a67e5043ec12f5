package gfx

// Resource is an exclusively owned GPU allocation. The owner calls Release
// exactly once.
type Resource interface {
	Desc() ResourceDesc
	// Map returns a CPU visible window over the whole resource. Only valid on
	// upload and readback heaps.
	Map() ([]byte, error)
	Unmap()
	GPUVirtualAddress() uint64
	SetName(name string)
	Release()
}

type Fence interface {
	CompletedValue() uint64
	// SetEventOnCompletion arranges for ev to be signaled once the fence
	// reaches value. ev is signaled right away when it already has.
	SetEventOnCompletion(value uint64, ev *Event) error
	Release()
}

type CommandAllocator interface {
	// Reset reclaims the memory of every command list recorded from the
	// allocator. The GPU must have finished with it.
	Reset() error
	Release()
}

type CommandList interface {
	Reset(alloc CommandAllocator) error
	ResourceBarrier(barriers ...Transition)
	ClearRenderTargetView(rtv DescriptorHandle, color [4]float32)
	ClearDepthStencilView(dsv DescriptorHandle, flags ClearFlags, depth float32, stencil uint8)
	SetViewport(vp Viewport)
	SetScissorRect(r Rect)
	SetRenderTargets(rtv DescriptorHandle, dsv DescriptorHandle)
	SetGraphicsRootConstantBufferView(rootIndex uint32, address uint64)
	// CopyBufferRegion copies size bytes from src at srcOffset into dst at
	// dstOffset once the list executes.
	CopyBufferRegion(dst Resource, dstOffset uint64, src Resource, srcOffset, size uint64)
	Close() error
	Release()
}

type CommandQueue interface {
	ExecuteCommandLists(lists ...CommandList) error
	// Signal enqueues a GPU side write of value into f, performed once all
	// previously submitted work has completed.
	Signal(f Fence, value uint64) error
	Release()
}

type Device interface {
	CreateCommandQueue() (CommandQueue, error)
	CreateFence(initial uint64) (Fence, error)
	CreateCommandAllocator() (CommandAllocator, error)
	// CreateCommandList returns a list in the recording state.
	CreateCommandList(alloc CommandAllocator) (CommandList, error)
	CreateCommittedResource(heap HeapType, desc ResourceDesc, initial ResourceState, clear *ClearValue) (Resource, error)
	CreateRenderTargetView(res Resource, dst DescriptorHandle) error
	CreateDepthStencilView(res Resource, format Format, dst DescriptorHandle) error
	CreateConstantBufferView(desc ConstantBufferViewDesc, dst DescriptorHandle) error
	Close() error
}

type SwapChain interface {
	// Desc reports the buffers the chain actually created, which may be more
	// than requested.
	Desc() SwapChainDesc
	ResizeBuffers(count int, width, height uint32, format Format) error
	GetBuffer(i int) (Resource, error)
	Present(syncInterval uint32) error
	Release()
}

type Factory interface {
	CreateSwapChain(queue CommandQueue, desc SwapChainDesc) (SwapChain, error)
}

// BackBufferIndexer is implemented by swap chains which choose the next
// backbuffer themselves instead of cycling through them in order.
type BackBufferIndexer interface {
	CurrentBackBufferIndex() int
}

// EventCanceler is implemented by fences which can forget an event before it
// fires, so abandoned waits do not pile up.
type EventCanceler interface {
	CancelEvent(ev *Event)
}

// FaultReporter is implemented by fences which stop advancing when the device
// is lost. Err is nil while the device is healthy.
type FaultReporter interface {
	Err() error
}
