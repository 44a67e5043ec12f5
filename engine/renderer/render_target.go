package renderer

import (
	"fmt"

	"github.com/spaghettifunk/luminax/engine/containers"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// RenderTarget is an offscreen color target with a size of its own, used by
// passes which render into a texture instead of the swap chain. Between
// passes the texture stays readable by shaders.
type RenderTarget struct {
	device gfx.Device
	views  *containers.Registry[gfx.Resource]
	format gfx.Format
	clear  [4]float32

	width    uint32
	height   uint32
	resource gfx.Resource
	view     gfx.DescriptorHandle
	viewport gfx.Viewport
	scissor  gfx.Rect
}

// NewRenderTarget creates a target sharing the RTV slots of the swap chain.
func (r *Renderer) NewRenderTarget(width, height uint32, format gfx.Format) (*RenderTarget, error) {
	t := &RenderTarget{
		device: r.device,
		views:  r.chain.RenderTargetViews(),
		format: format,
		clear:  r.cfg.ClearColor,
		view:   gfx.DescriptorHandle{Kind: gfx.DescriptorKindRTV, Slot: containers.InvalidHandle},
	}
	if err := t.build(width, height); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// OnResize rebuilds the texture when the size changed. The caller makes sure
// the GPU no longer uses the old one.
func (t *RenderTarget) OnResize(width, height uint32) error {
	if width == t.width && height == t.height {
		return nil
	}
	t.destroy()
	return t.build(width, height)
}

func (t *RenderTarget) build(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("render target size %dx%d: %w", width, height, core.ErrInvalidDimensions)
	}
	desc := gfx.ResourceDesc{
		Dimension:        gfx.DimensionTexture2D,
		Width:            uint64(width),
		Height:           height,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           t.format,
		SampleCount:      1,
		Flags:            gfx.ResourceFlagAllowRenderTarget,
	}
	clear := &gfx.ClearValue{Format: t.format, Color: t.clear}
	res, err := t.device.CreateCommittedResource(gfx.HeapTypeDefault, desc, gfx.ResourceStateGenericRead, clear)
	if err != nil {
		return core.Check("CreateCommittedResource", err)
	}
	t.resource = res
	t.view = gfx.DescriptorHandle{Kind: gfx.DescriptorKindRTV, Slot: t.views.Acquire(res)}
	if err := t.device.CreateRenderTargetView(res, t.view); err != nil {
		return core.Check("CreateRenderTargetView", err)
	}

	t.width, t.height = width, height
	t.viewport = gfx.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
	t.scissor = gfx.Rect{Right: int32(width), Bottom: int32(height)}
	return nil
}

// Begin makes the target the only bound render target and clears it.
func (t *RenderTarget) Begin(list gfx.CommandList) {
	list.ResourceBarrier(gfx.Transition{
		Resource: t.resource,
		Before:   gfx.ResourceStateGenericRead,
		After:    gfx.ResourceStateRenderTarget,
	})
	list.SetViewport(t.viewport)
	list.SetScissorRect(t.scissor)
	list.ClearRenderTargetView(t.view, t.clear)
	list.SetRenderTargets(t.view, gfx.DescriptorHandle{Kind: gfx.DescriptorKindDSV, Slot: containers.InvalidHandle})
}

// End hands the texture back to the shaders.
func (t *RenderTarget) End(list gfx.CommandList) {
	list.ResourceBarrier(gfx.Transition{
		Resource: t.resource,
		Before:   gfx.ResourceStateRenderTarget,
		After:    gfx.ResourceStateGenericRead,
	})
}

func (t *RenderTarget) Resource() gfx.Resource {
	return t.resource
}

func (t *RenderTarget) View() gfx.DescriptorHandle {
	return t.view
}

func (t *RenderTarget) Viewport() gfx.Viewport {
	return t.viewport
}

func (t *RenderTarget) ScissorRect() gfx.Rect {
	return t.scissor
}

func (t *RenderTarget) Width() uint32 {
	return t.width
}

func (t *RenderTarget) Height() uint32 {
	return t.height
}

func (t *RenderTarget) destroy() {
	if t.view.Slot.IsValid() {
		_ = t.views.Release(t.view.Slot)
		t.view.Slot = containers.InvalidHandle
	}
	if t.resource != nil {
		t.resource.Release()
		t.resource = nil
	}
	t.width, t.height = 0, 0
}

func (t *RenderTarget) Release() {
	t.destroy()
}
