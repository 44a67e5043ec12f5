// Package swapchain owns the backbuffers, the depth-stencil buffer and their
// views, and rebuilds them when the output surface changes size.
package swapchain

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/luminax/engine/containers"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/renderer/fence"
)

type State uint8

const (
	StatePresenting State = iota
	StateResizing
)

func (s State) String() string {
	if s == StateResizing {
		return "resizing"
	}
	return "presenting"
}

type Config struct {
	BufferCount        int
	Width              uint32
	Height             uint32
	BackBufferFormat   gfx.Format
	DepthStencilFormat gfx.Format
	SampleCount        uint32
	VSync              bool
	Windowed           bool
}

func DefaultConfig() Config {
	return Config{
		BufferCount:        2,
		Width:              800,
		Height:             600,
		BackBufferFormat:   gfx.FormatR8G8B8A8Unorm,
		DepthStencilFormat: gfx.FormatD24UnormS8Uint,
		SampleCount:        1,
		Windowed:           true,
	}
}

type backBuffer struct {
	resource gfx.Resource
	view     gfx.DescriptorHandle
}

type Manager struct {
	device  gfx.Device
	queue   gfx.CommandQueue
	sync    *fence.Synchronizer
	chain   gfx.SwapChain
	metrics *core.Metrics
	cfg     Config

	// Used only for the one-off depth transition after a resize.
	allocator gfx.CommandAllocator
	list      gfx.CommandList

	rtvs *containers.Registry[gfx.Resource]
	dsvs *containers.Registry[gfx.Resource]

	buffers      []backBuffer
	depthStencil gfx.Resource
	dsv          gfx.DescriptorHandle
	current      int

	viewport gfx.Viewport
	scissor  gfx.Rect
	state    State
}

// New creates the swap chain on the queue and builds the buffers for the
// configured size.
func New(ctx context.Context, device gfx.Device, factory gfx.Factory, fs *fence.Synchronizer, cfg Config, metrics *core.Metrics) (*Manager, error) {
	if cfg.BufferCount < 2 {
		return nil, fmt.Errorf("swap chain needs at least 2 buffers, got %d", cfg.BufferCount)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("swap chain size %dx%d: %w", cfg.Width, cfg.Height, core.ErrInvalidDimensions)
	}
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 1
	}

	m := &Manager{
		device:  device,
		queue:   fs.Queue(),
		sync:    fs,
		metrics: metrics,
		cfg:     cfg,
		rtvs:    containers.NewRegistry[gfx.Resource](cfg.BufferCount),
		dsvs:    containers.NewRegistry[gfx.Resource](1),
		dsv:     gfx.DescriptorHandle{Kind: gfx.DescriptorKindDSV, Slot: containers.InvalidHandle},
	}

	chain, err := factory.CreateSwapChain(m.queue, gfx.SwapChainDesc{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      cfg.BackBufferFormat,
		BufferCount: cfg.BufferCount,
		SampleCount: cfg.SampleCount,
		Windowed:    cfg.Windowed,
	})
	if err != nil {
		return nil, core.Check("CreateSwapChain", err)
	}
	m.chain = chain

	if m.allocator, err = device.CreateCommandAllocator(); err != nil {
		m.Release()
		return nil, core.Check("CreateCommandAllocator", err)
	}
	if m.list, err = device.CreateCommandList(m.allocator); err != nil {
		m.Release()
		return nil, core.Check("CreateCommandList", err)
	}
	if err := m.list.Close(); err != nil {
		m.Release()
		return nil, core.Check("CommandList.Close", err)
	}

	// The chain starts with buffers of the requested size which nobody holds
	// yet, grab them and build the views.
	if err := m.Resize(ctx, cfg.Width, cfg.Height); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

// Resize drains the queue and rebuilds every size dependent resource. A zero
// width or height is rejected and leaves the current buffers untouched.
func (m *Manager) Resize(ctx context.Context, width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("resize to %dx%d: %w", width, height, core.ErrInvalidDimensions)
	}

	m.state = StateResizing
	defer func() { m.state = StatePresenting }()

	// Nothing may still reference the old buffers.
	if err := m.sync.Flush(ctx); err != nil {
		return err
	}

	m.releaseBuffers()

	if err := m.chain.ResizeBuffers(m.cfg.BufferCount, width, height, m.cfg.BackBufferFormat); err != nil {
		return core.Check("ResizeBuffers", err)
	}
	m.current = 0
	m.cfg.Width = width
	m.cfg.Height = height

	// The chain may have created more buffers than requested, every one of
	// them can be handed out for rendering.
	count := m.chain.Desc().BufferCount
	if count < m.cfg.BufferCount {
		return fmt.Errorf("swap chain created %d buffers, requested %d", count, m.cfg.BufferCount)
	}
	m.buffers = make([]backBuffer, 0, count)
	for i := 0; i < count; i++ {
		res, err := m.chain.GetBuffer(i)
		if err != nil {
			return core.Check("GetBuffer", err)
		}
		view := gfx.DescriptorHandle{Kind: gfx.DescriptorKindRTV, Slot: m.rtvs.Acquire(res)}
		m.buffers = append(m.buffers, backBuffer{resource: res, view: view})
		if err := m.device.CreateRenderTargetView(res, view); err != nil {
			return core.Check("CreateRenderTargetView", err)
		}
	}
	m.current = m.nextIndex(0)

	if err := m.createDepthStencil(); err != nil {
		return err
	}

	if err := m.transitionDepth(ctx); err != nil {
		return err
	}

	m.viewport = gfx.Viewport{
		TopLeftX: 0,
		TopLeftY: 0,
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	m.scissor = gfx.Rect{Left: 0, Top: 0, Right: int32(width), Bottom: int32(height)}

	m.metrics.Resize()
	core.LogDebug("Swap chain resized to %dx%d with %d buffers.", width, height, len(m.buffers))
	return nil
}

func (m *Manager) createDepthStencil() error {
	desc := gfx.ResourceDesc{
		Dimension:        gfx.DimensionTexture2D,
		Width:            uint64(m.cfg.Width),
		Height:           m.cfg.Height,
		DepthOrArraySize: 1,
		MipLevels:        1,
		// Typeless so a shader resource view could read it too.
		Format:      gfx.FormatR24G8Typeless,
		SampleCount: m.cfg.SampleCount,
		Flags:       gfx.ResourceFlagAllowDepthStencil,
	}
	clear := &gfx.ClearValue{
		Format:  m.cfg.DepthStencilFormat,
		Depth:   1,
		Stencil: 0,
	}
	res, err := m.device.CreateCommittedResource(gfx.HeapTypeDefault, desc, gfx.ResourceStateCommon, clear)
	if err != nil {
		return core.Check("CreateCommittedResource", err)
	}
	m.depthStencil = res
	m.dsv = gfx.DescriptorHandle{Kind: gfx.DescriptorKindDSV, Slot: m.dsvs.Acquire(res)}
	if err := m.device.CreateDepthStencilView(res, m.cfg.DepthStencilFormat, m.dsv); err != nil {
		return core.Check("CreateDepthStencilView", err)
	}
	return nil
}

func (m *Manager) transitionDepth(ctx context.Context) error {
	// The queue was flushed at the start of the resize.
	if err := m.allocator.Reset(); err != nil {
		return core.Check("CommandAllocator.Reset", err)
	}
	if err := m.list.Reset(m.allocator); err != nil {
		return core.Check("CommandList.Reset", err)
	}
	m.list.ResourceBarrier(gfx.Transition{
		Resource: m.depthStencil,
		Before:   gfx.ResourceStateCommon,
		After:    gfx.ResourceStateDepthWrite,
	})
	if err := m.list.Close(); err != nil {
		return core.Check("CommandList.Close", err)
	}
	if err := m.queue.ExecuteCommandLists(m.list); err != nil {
		return core.Check("ExecuteCommandLists", err)
	}
	return m.sync.Flush(ctx)
}

func (m *Manager) releaseBuffers() {
	for _, b := range m.buffers {
		_ = m.rtvs.Release(b.view.Slot)
		b.resource.Release()
	}
	m.buffers = nil
	if m.depthStencil != nil {
		_ = m.dsvs.Release(m.dsv.Slot)
		m.depthStencil.Release()
		m.depthStencil = nil
		m.dsv.Slot = containers.InvalidHandle
	}
}

// Present shows the current backbuffer and moves on to the next one.
func (m *Manager) Present() error {
	if m.state == StateResizing {
		return core.ErrSwapchainResizing
	}
	var interval uint32
	if m.cfg.VSync {
		interval = 1
	}
	if err := m.chain.Present(interval); err != nil {
		return core.Check("Present", err)
	}
	m.current = m.nextIndex((m.current + 1) % len(m.buffers))
	return nil
}

// nextIndex prefers the index reported by chains which pick the backbuffer
// themselves.
func (m *Manager) nextIndex(fallback int) int {
	if ix, ok := m.chain.(gfx.BackBufferIndexer); ok {
		if i := ix.CurrentBackBufferIndex(); i >= 0 && i < len(m.buffers) {
			return i
		}
	}
	return fallback
}

func (m *Manager) CurrentBackBuffer() gfx.Resource {
	return m.buffers[m.current].resource
}

func (m *Manager) CurrentBackBufferView() gfx.DescriptorHandle {
	return m.buffers[m.current].view
}

func (m *Manager) DepthStencil() gfx.Resource {
	return m.depthStencil
}

func (m *Manager) DepthStencilView() gfx.DescriptorHandle {
	return m.dsv
}

func (m *Manager) Viewport() gfx.Viewport {
	return m.viewport
}

func (m *Manager) ScissorRect() gfx.Rect {
	return m.scissor
}

// RenderTargetViews hands out RTV slots. Offscreen targets take theirs from
// here so they never collide with the backbuffer views.
func (m *Manager) RenderTargetViews() *containers.Registry[gfx.Resource] {
	return m.rtvs
}

func (m *Manager) BackBufferIndex() int {
	return m.current
}

// BufferCount is the number of backbuffers the chain really holds.
func (m *Manager) BufferCount() int {
	return len(m.buffers)
}

func (m *Manager) Width() uint32 {
	return m.cfg.Width
}

func (m *Manager) Height() uint32 {
	return m.cfg.Height
}

func (m *Manager) AspectRatio() float32 {
	return float32(m.cfg.Width) / float32(m.cfg.Height)
}

func (m *Manager) BackBufferFormat() gfx.Format {
	return m.cfg.BackBufferFormat
}

func (m *Manager) DepthStencilFormat() gfx.Format {
	return m.cfg.DepthStencilFormat
}

// Chain exposes the underlying swap chain.
func (m *Manager) Chain() gfx.SwapChain {
	return m.chain
}

func (m *Manager) State() State {
	return m.state
}

// Release frees the buffers and the swap chain. The queue must be idle.
func (m *Manager) Release() {
	m.releaseBuffers()
	if m.list != nil {
		m.list.Release()
		m.list = nil
	}
	if m.allocator != nil {
		m.allocator.Release()
		m.allocator = nil
	}
	if m.chain != nil {
		m.chain.Release()
		m.chain = nil
	}
}
