package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// CommandAllocator owns a command pool. Every list recorded from it gets its
// own command buffer out of the pool, reclaimed all at once by Reset.
type CommandAllocator struct {
	device *Device
	pool   vk.CommandPool

	mu      sync.Mutex
	buffers map[*CommandList]vk.CommandBuffer
}

func newCommandAllocator(d *Device) (*CommandAllocator, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.logical(), &info, d.context.Allocator, &pool)); err != nil {
		return nil, err
	}
	return &CommandAllocator{
		device:  d,
		pool:    pool,
		buffers: make(map[*CommandList]vk.CommandBuffer),
	}, nil
}

func (a *CommandAllocator) Reset() error {
	return check("vkResetCommandPool", vk.ResetCommandPool(a.device.logical(), a.pool, 0))
}

// bufferFor returns the command buffer l records into when reset against a.
func (a *CommandAllocator) bufferFor(l *CommandList) (vk.CommandBuffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := a.buffers[l]; ok {
		return cb, nil
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(a.device.logical(), &info, buffers)); err != nil {
		return nil, err
	}
	a.buffers[l] = buffers[0]
	return buffers[0], nil
}

func (a *CommandAllocator) free(l *CommandList) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := a.buffers[l]; ok {
		vk.FreeCommandBuffers(a.device.logical(), a.pool, 1, []vk.CommandBuffer{cb})
		delete(a.buffers, l)
	}
}

func (a *CommandAllocator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pool == vk.NullCommandPool {
		return
	}
	// Destroying the pool frees its buffers.
	vk.DestroyCommandPool(a.device.logical(), a.pool, a.device.context.Allocator)
	a.pool = vk.NullCommandPool
	for l := range a.buffers {
		l.forget(a)
	}
	a.buffers = nil
}

// CommandList records into the command buffer its allocator hands out.
// Render target and root bindings are plain state, they are consumed by the
// pipelines bound while recording.
type CommandList struct {
	device    *Device
	buffer    vk.CommandBuffer
	recording bool
	allocs    map[*CommandAllocator]struct{}
	err       error

	rtv      gfx.DescriptorHandle
	dsv      gfx.DescriptorHandle
	rootCBVs map[uint32]uint64
}

func (l *CommandList) Reset(alloc gfx.CommandAllocator) error {
	if l.recording {
		return errors.New("command list is still recording")
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return fmt.Errorf("foreign command allocator %T", alloc)
	}
	cb, err := a.bufferFor(l)
	if err != nil {
		return err
	}
	l.allocs[a] = struct{}{}

	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &begin)); err != nil {
		return err
	}
	l.buffer = cb
	l.recording = true
	l.err = nil
	l.rootCBVs = make(map[uint32]uint64)
	return nil
}

func (l *CommandList) fail(err error) {
	if l.err == nil {
		l.err = err
		core.LogError("Command list recording failed: %s", err)
	}
}

func (l *CommandList) ResourceBarrier(barriers ...gfx.Transition) {
	for _, t := range barriers {
		r, ok := t.Resource.(*Resource)
		if !ok {
			l.fail(fmt.Errorf("foreign resource %T in barrier", t.Resource))
			return
		}
		srcAccess, srcStage := accessScope(t.Before)
		dstAccess, dstStage := accessScope(t.After)

		if r.image == vk.NullImage {
			vk.CmdPipelineBarrier(l.buffer, srcStage, dstStage, 0,
				1, []vk.MemoryBarrier{{
					SType:         vk.StructureTypeMemoryBarrier,
					SrcAccessMask: srcAccess,
					DstAccessMask: dstAccess,
				}}, 0, nil, 0, nil)
			continue
		}

		depth := r.desc.Format.IsDepth()
		oldLayout := imageLayout(t.Before, depth)
		if !r.initialized {
			// Fresh images hold no content worth preserving.
			oldLayout = vk.ImageLayoutUndefined
			r.initialized = true
		}
		l.imageBarrier(r, oldLayout, imageLayout(t.After, depth), srcAccess, dstAccess, srcStage, dstStage)
	}
}

func (l *CommandList) imageBarrier(r *Resource, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	vk.CmdPipelineBarrier(l.buffer, srcStage, dstStage, 0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               r.image,
			SubresourceRange:    r.subresourceRange(),
		}})
}

// ClearRenderTargetView clears the whole view. The image must be in the
// render target state, it is moved through the transfer layout and back.
func (l *CommandList) ClearRenderTargetView(rtv gfx.DescriptorHandle, color [4]float32) {
	view, err := l.device.view(rtv)
	if err != nil {
		l.fail(err)
		return
	}
	r := view.resource
	attachAccess, attachStage := accessScope(gfx.ResourceStateRenderTarget)
	copyAccess, copyStage := accessScope(gfx.ResourceStateCopyDest)

	l.imageBarrier(r, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutTransferDstOptimal, attachAccess, copyAccess, attachStage, copyStage)
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	vk.CmdClearColorImage(l.buffer, r.image, vk.ImageLayoutTransferDstOptimal, &value, 1, []vk.ImageSubresourceRange{r.subresourceRange()})
	l.imageBarrier(r, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutColorAttachmentOptimal, copyAccess, attachAccess, copyStage, attachStage)
}

func (l *CommandList) ClearDepthStencilView(dsv gfx.DescriptorHandle, flags gfx.ClearFlags, depth float32, stencil uint8) {
	view, err := l.device.view(dsv)
	if err != nil {
		l.fail(err)
		return
	}
	r := view.resource
	var aspect vk.ImageAspectFlags
	if flags&gfx.ClearFlagDepth != 0 {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if flags&gfx.ClearFlagStencil != 0 && view.aspect&vk.ImageAspectFlags(vk.ImageAspectStencilBit) != 0 {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if aspect == 0 {
		return
	}
	rng := r.subresourceRange()
	rng.AspectMask = aspect

	attachAccess, attachStage := accessScope(gfx.ResourceStateDepthWrite)
	copyAccess, copyStage := accessScope(gfx.ResourceStateCopyDest)
	l.imageBarrier(r, vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutTransferDstOptimal, attachAccess, copyAccess, attachStage, copyStage)
	value := vk.ClearDepthStencilValue{Depth: depth, Stencil: uint32(stencil)}
	vk.CmdClearDepthStencilImage(l.buffer, r.image, vk.ImageLayoutTransferDstOptimal, &value, 1, []vk.ImageSubresourceRange{rng})
	l.imageBarrier(r, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal, copyAccess, attachAccess, copyStage, attachStage)
}

func (l *CommandList) SetViewport(vp gfx.Viewport) {
	vk.CmdSetViewport(l.buffer, 0, 1, []vk.Viewport{{
		X:        vp.TopLeftX,
		Y:        vp.TopLeftY,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (l *CommandList) SetScissorRect(r gfx.Rect) {
	vk.CmdSetScissor(l.buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.Left, Y: r.Top},
		Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
	}})
}

func (l *CommandList) SetRenderTargets(rtv, dsv gfx.DescriptorHandle) {
	l.rtv = rtv
	l.dsv = dsv
}

func (l *CommandList) RenderTargets() (gfx.DescriptorHandle, gfx.DescriptorHandle) {
	return l.rtv, l.dsv
}

func (l *CommandList) SetGraphicsRootConstantBufferView(rootIndex uint32, address uint64) {
	l.rootCBVs[rootIndex] = address
}

// RootConstantBufferView returns the address bound to rootIndex, zero when
// nothing is bound.
func (l *CommandList) RootConstantBufferView(rootIndex uint32) uint64 {
	return l.rootCBVs[rootIndex]
}

func (l *CommandList) CopyBufferRegion(dst gfx.Resource, dstOffset uint64, src gfx.Resource, srcOffset, size uint64) {
	d, dok := dst.(*Resource)
	s, sok := src.(*Resource)
	if !dok || !sok {
		l.fail(fmt.Errorf("foreign resources %T and %T in copy", dst, src))
		return
	}
	if d.buffer == vk.NullBuffer || s.buffer == vk.NullBuffer {
		l.fail(errors.New("CopyBufferRegion needs two buffers"))
		return
	}
	vk.CmdCopyBuffer(l.buffer, s.buffer, d.buffer, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (l *CommandList) Close() error {
	if !l.recording {
		return errors.New("command list is not recording")
	}
	l.recording = false
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(l.buffer)); err != nil {
		return err
	}
	return l.err
}

func (l *CommandList) forget(a *CommandAllocator) {
	delete(l.allocs, a)
}

func (l *CommandList) Release() {
	for a := range l.allocs {
		a.free(l)
	}
	l.allocs = nil
	l.buffer = nil
}
