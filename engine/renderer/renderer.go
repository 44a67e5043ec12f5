package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/renderer/fence"
	"github.com/spaghettifunk/luminax/engine/renderer/frame"
	"github.com/spaghettifunk/luminax/engine/renderer/swapchain"
	"github.com/spaghettifunk/luminax/engine/scene"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	Headless
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	default:
		return "unknown"
	}
}

// ParseRendererType is the inverse of RendererType.String.
func ParseRendererType(s string) (RendererType, error) {
	switch s {
	case "vulkan":
		return Vulkan, nil
	case "headless":
		return Headless, nil
	default:
		return 0, fmt.Errorf("unknown renderer backend %q", s)
	}
}

// Root signature slots of the lit shaders.
const (
	RootObject uint32 = iota
	RootMaterial
	RootPass
)

// Backend is what a graphics implementation hands over to the renderer.
type Backend struct {
	Device  gfx.Device
	Factory gfx.Factory
}

type Config struct {
	FramesInFlight int
	SwapChain      swapchain.Config
	WaitPolicy     fence.WaitPolicy
	// Per-frame resource sizes.
	Counts     frame.Counts
	ClearColor [4]float32
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight: 3,
		SwapChain:      swapchain.DefaultConfig(),
		WaitPolicy:     fence.Infinite,
		Counts:         frame.Counts{Passes: 1, Objects: 1},
		ClearColor:     [4]float32{0.69, 0.77, 0.87, 1},
	}
}

// DrawFunc records draws between the clears and the final transition of a
// frame. Render targets, viewport and the main pass are already bound.
type DrawFunc func(list gfx.CommandList, fr *frame.FrameResource) error

type Renderer struct {
	device  gfx.Device
	queue   gfx.CommandQueue
	sync    *fence.Synchronizer
	ring    *frame.Ring
	chain   *swapchain.Manager
	metrics *core.Metrics
	cfg     Config

	list         gfx.CommandList
	oneShotAlloc gfx.CommandAllocator

	current *frame.FrameResource
}

// New builds the queue, the fence protocol, the frame ring and the swap
// chain on top of backend.
func New(ctx context.Context, backend Backend, cfg Config, metrics *core.Metrics) (*Renderer, error) {
	r := &Renderer{
		device:  backend.Device,
		metrics: metrics,
		cfg:     cfg,
	}

	var err error
	if r.queue, err = r.device.CreateCommandQueue(); err != nil {
		return nil, core.Check("CreateCommandQueue", err)
	}
	if r.sync, err = fence.New(r.device, r.queue, cfg.WaitPolicy, metrics); err != nil {
		r.release()
		return nil, err
	}
	if r.ring, err = frame.NewRing(r.device, r.sync, cfg.FramesInFlight, cfg.Counts, metrics); err != nil {
		r.release()
		return nil, err
	}
	if r.oneShotAlloc, err = r.device.CreateCommandAllocator(); err != nil {
		r.release()
		return nil, core.Check("CreateCommandAllocator", err)
	}
	// One list serves every slot, it is reset onto the slot's allocator.
	if r.list, err = r.device.CreateCommandList(r.ring.Slot(0).Allocator); err != nil {
		r.release()
		return nil, core.Check("CreateCommandList", err)
	}
	if err := r.list.Close(); err != nil {
		r.release()
		return nil, core.Check("CommandList.Close", err)
	}
	if r.chain, err = swapchain.New(ctx, r.device, backend.Factory, r.sync, cfg.SwapChain, metrics); err != nil {
		r.release()
		return nil, err
	}

	core.LogInfo("Renderer ready: %d frames in flight, %d backbuffers, %dx%d.",
		cfg.FramesInFlight, r.chain.BufferCount(), r.chain.Width(), r.chain.Height())
	return r, nil
}

// BeginFrame waits until the next frame resource is free and returns it for
// the CPU to fill.
func (r *Renderer) BeginFrame(ctx context.Context) (*frame.FrameResource, error) {
	if r.chain.State() == swapchain.StateResizing {
		return nil, core.ErrSwapchainResizing
	}
	fr, err := r.ring.Advance(ctx)
	if err != nil {
		return nil, err
	}
	r.current = fr
	return fr, nil
}

// EndFrame records the frame into the current frame resource, submits it,
// presents and stamps the slot with a new fence value.
func (r *Renderer) EndFrame(draw DrawFunc) error {
	fr := r.current
	if fr == nil {
		return errors.New("EndFrame without BeginFrame")
	}
	r.current = nil

	list := r.list
	if err := list.Reset(fr.Allocator); err != nil {
		return core.Check("CommandList.Reset", err)
	}
	list.SetViewport(r.chain.Viewport())
	list.SetScissorRect(r.chain.ScissorRect())

	backBuffer := r.chain.CurrentBackBuffer()
	list.ResourceBarrier(gfx.Transition{
		Resource: backBuffer,
		Before:   gfx.ResourceStatePresent,
		After:    gfx.ResourceStateRenderTarget,
	})
	list.ClearRenderTargetView(r.chain.CurrentBackBufferView(), r.cfg.ClearColor)
	list.ClearDepthStencilView(r.chain.DepthStencilView(), gfx.ClearFlagDepth|gfx.ClearFlagStencil, 1, 0)
	list.SetRenderTargets(r.chain.CurrentBackBufferView(), r.chain.DepthStencilView())
	list.SetGraphicsRootConstantBufferView(RootPass, fr.PassCB.ElementAddress(0))

	if draw != nil {
		if err := draw(list, fr); err != nil {
			_ = list.Close()
			return err
		}
	}

	list.ResourceBarrier(gfx.Transition{
		Resource: backBuffer,
		Before:   gfx.ResourceStateRenderTarget,
		After:    gfx.ResourceStatePresent,
	})
	if err := list.Close(); err != nil {
		return core.Check("CommandList.Close", err)
	}

	if err := r.queue.ExecuteCommandLists(list); err != nil {
		return core.Check("ExecuteCommandLists", err)
	}
	presentErr := r.chain.Present()
	// The signal lands after the present, so the slot retires once the GPU is
	// done with both. The executed list needs it even when presenting failed.
	_, err := r.ring.Submit()
	if presentErr != nil {
		return presentErr
	}
	return err
}

// BindItem points the object and material slots at the constants of ri.
func (r *Renderer) BindItem(list gfx.CommandList, fr *frame.FrameResource, ri *scene.RenderItem) {
	list.SetGraphicsRootConstantBufferView(RootObject, fr.ObjectCB.ElementAddress(ri.ObjCBIndex))
	if fr.MaterialCB != nil {
		list.SetGraphicsRootConstantBufferView(RootMaterial, fr.MaterialCB.ElementAddress(ri.MaterialIndex))
	}
}

// Resize rebuilds the swap chain buffers. Only call it between frames.
func (r *Renderer) Resize(ctx context.Context, width, height uint32) error {
	if r.current != nil {
		return errors.New("resize while a frame is being recorded")
	}
	return r.chain.Resize(ctx, width, height)
}

// OneShot records and runs a command list outside the ring and waits for it.
func (r *Renderer) OneShot(ctx context.Context, record func(gfx.CommandList) error) error {
	return r.submitAndWait(ctx, r.oneShotAlloc, record)
}

// Bake runs one-time passes, such as rendering cube map faces, from a frame
// resource of its own and waits for the GPU to finish them.
func (r *Renderer) Bake(ctx context.Context, passes int, record func(gfx.CommandList, *frame.FrameResource) error) error {
	bake, err := r.ring.NewBakeResource(passes)
	if err != nil {
		return err
	}
	defer bake.Release()
	return r.submitAndWait(ctx, bake.Allocator, func(list gfx.CommandList) error {
		return record(list, bake)
	})
}

func (r *Renderer) submitAndWait(ctx context.Context, alloc gfx.CommandAllocator, record func(gfx.CommandList) error) error {
	if r.current != nil {
		return errors.New("one-off submission while a frame is being recorded")
	}
	// The allocator may still back an earlier one-off submission.
	if err := r.sync.Flush(ctx); err != nil {
		return err
	}
	if err := alloc.Reset(); err != nil {
		return core.Check("CommandAllocator.Reset", err)
	}
	if err := r.list.Reset(alloc); err != nil {
		return core.Check("CommandList.Reset", err)
	}
	if err := record(r.list); err != nil {
		_ = r.list.Close()
		return err
	}
	if err := r.list.Close(); err != nil {
		return core.Check("CommandList.Close", err)
	}
	if err := r.queue.ExecuteCommandLists(r.list); err != nil {
		return core.Check("ExecuteCommandLists", err)
	}
	return r.sync.Flush(ctx)
}

// Flush waits for every submitted command to finish.
func (r *Renderer) Flush(ctx context.Context) error {
	return r.sync.Flush(ctx)
}

// Shutdown drains the queue and releases everything, the device included.
func (r *Renderer) Shutdown(ctx context.Context) error {
	err := r.sync.Flush(ctx)
	if err != nil {
		core.LogError("Renderer shutdown without a full flush: %s", err)
	}
	r.release()
	if cerr := r.device.Close(); cerr != nil && err == nil {
		err = cerr
	}
	core.LogInfo("Renderer shut down.")
	return err
}

func (r *Renderer) release() {
	if r.chain != nil {
		r.chain.Release()
		r.chain = nil
	}
	if r.list != nil {
		r.list.Release()
		r.list = nil
	}
	if r.oneShotAlloc != nil {
		r.oneShotAlloc.Release()
		r.oneShotAlloc = nil
	}
	if r.ring != nil {
		r.ring.Release()
		r.ring = nil
	}
	if r.sync != nil {
		r.sync.Release()
		r.sync = nil
	}
	if r.queue != nil {
		r.queue.Release()
		r.queue = nil
	}
}

func (r *Renderer) SwapChain() *swapchain.Manager {
	return r.chain
}

func (r *Renderer) Ring() *frame.Ring {
	return r.ring
}

func (r *Renderer) Sync() *fence.Synchronizer {
	return r.sync
}

func (r *Renderer) FramesInFlight() int {
	return r.ring.Len()
}
