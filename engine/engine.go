package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/google/uuid"
	"github.com/spaghettifunk/luminax/engine/assets"
	"github.com/spaghettifunk/luminax/engine/config"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/gfx/fake"
	"github.com/spaghettifunk/luminax/engine/platform"
	"github.com/spaghettifunk/luminax/engine/renderer"
	"github.com/spaghettifunk/luminax/engine/renderer/fence"
	"github.com/spaghettifunk/luminax/engine/renderer/frame"
	"github.com/spaghettifunk/luminax/engine/renderer/swapchain"
	"github.com/spaghettifunk/luminax/engine/renderer/vulkan"
	"github.com/spaghettifunk/luminax/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

// Time a suspended engine sleeps between two message pumps.
const suspendedPoll = 16 * time.Millisecond

// Demo is the application driven by the engine.
type Demo interface {
	// Load builds the scene and reports the per-frame resource sizes it
	// needs. It runs before the renderer exists.
	Load(framesInFlight int) (frame.Counts, error)
	Initialize(e *Engine) error
	// Update writes the constants of the frame about to be recorded.
	Update(timer scene.Timer, fr *frame.FrameResource) error
	Draw(list gfx.CommandList, fr *frame.FrameResource) error
	OnResize(width, height uint32)
	OnMouseDown(button platform.MouseButton, x, y int32)
	OnMouseUp(button platform.MouseButton, x, y int32)
	OnMouseMove(buttons platform.MouseButtons, x, y int32)
	Shutdown() error
}

// Window is the part of the platform the run loop needs.
type Window interface {
	PumpMessages()
	ShouldClose() bool
	Close()
	FramebufferSize() (uint32, uint32)
}

type Option func(*Engine)

// WithBackend replaces the backend named in the configuration, mostly used by
// tests together with WithWindow.
func WithBackend(b renderer.Backend) Option {
	return func(e *Engine) {
		e.backend = &b
	}
}

func WithWindow(w Window) Option {
	return func(e *Engine) {
		e.window = w
	}
}

type Engine struct {
	currentStage Stage
	cfg          *config.Config
	demo         Demo
	session      string

	backend  *renderer.Backend
	window   Window
	platform *platform.Platform
	renderer *renderer.Renderer
	assets   *assets.Registry
	metrics  *core.Metrics
	clock    *core.Clock

	width         uint32
	height        uint32
	pendingResize bool
	// Set when presenting found the surface out of date, the buffers are
	// rebuilt even at the same size.
	outOfDate   bool
	isSuspended bool
	hasFocus    bool
	frameCount  uint64
}

var _ platform.WindowHandler = (*Engine)(nil)

func New(cfg *config.Config, demo Demo, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if demo == nil {
		return nil, errors.New("engine needs a demo to run")
	}
	session := uuid.NewString()
	e := &Engine{
		currentStage: EngineStageUninitialized,
		cfg:          cfg,
		demo:         demo,
		session:      session,
		metrics:      core.NewMetrics(session),
		clock:        core.NewClock(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		hasFocus:     true,
	}
	for _, o := range opts {
		o(e)
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

// Initialize opens the window and the graphics backend, then hands the
// renderer over to the demo.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine cannot initialize while %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	log := core.Logger("session", e.session)

	reg, err := assets.NewRegistry(e.cfg.Assets.ShaderDir, nil)
	if err != nil {
		return err
	}
	e.assets = reg
	if e.cfg.Assets.Watch {
		if err := reg.Watch(); err != nil {
			log.Warn("shader directory is not watched", "dir", e.cfg.Assets.ShaderDir, "err", err)
		}
	}

	counts, err := e.demo.Load(e.cfg.Renderer.FramesInFlight)
	if err != nil {
		return err
	}
	rcfg, err := rendererConfig(e.cfg, counts)
	if err != nil {
		return err
	}

	backend, err := e.openBackend()
	if err != nil {
		return err
	}
	// The window may have been created at a different size than requested.
	if w, h := e.window.FramebufferSize(); w != 0 && h != 0 {
		e.width, e.height = w, h
	}
	rcfg.SwapChain.Width = e.width
	rcfg.SwapChain.Height = e.height

	if e.renderer, err = renderer.New(ctx, backend, rcfg, e.metrics); err != nil {
		_ = backend.Device.Close()
		return err
	}
	if err := e.demo.Initialize(e); err != nil {
		return err
	}
	e.demo.OnResize(e.width, e.height)

	log.Info("engine initialized", "backend", e.cfg.Renderer.Backend, "width", e.width, "height", e.height)
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) openBackend() (renderer.Backend, error) {
	if e.backend != nil {
		if e.window == nil {
			e.window = newHeadlessWindow(e.width, e.height)
		}
		return *e.backend, nil
	}

	typ, err := renderer.ParseRendererType(e.cfg.Renderer.Backend)
	if err != nil {
		return renderer.Backend{}, err
	}
	switch typ {
	case renderer.Headless:
		if e.window == nil {
			e.window = newHeadlessWindow(e.width, e.height)
		}
		dev := fake.NewDevice(fake.WithAutoComplete())
		return renderer.Backend{Device: dev, Factory: dev.Factory()}, nil

	case renderer.Vulkan:
		p, err := platform.New()
		if err != nil {
			return renderer.Backend{}, err
		}
		if err := p.Startup(e.cfg.Application.Name, e.cfg.Window.X, e.cfg.Window.Y, e.width, e.height, e); err != nil {
			return renderer.Backend{}, err
		}
		e.platform = p
		e.window = p
		dev, err := vulkan.New(p, vulkan.Options{
			ApplicationName: e.cfg.Application.Name,
			ProcAddr:        platform.GetInstanceProcAddress(),
			Validation:      e.cfg.Renderer.Validation,
			PreferDiscrete:  true,
			Metrics:         e.metrics,
		})
		if err != nil {
			return renderer.Backend{}, err
		}
		return renderer.Backend{Device: dev, Factory: dev}, nil
	}
	return renderer.Backend{}, fmt.Errorf("renderer backend %s is not supported", typ)
}

func rendererConfig(cfg *config.Config, counts frame.Counts) (renderer.Config, error) {
	bb, err := cfg.BackBufferFormat()
	if err != nil {
		return renderer.Config{}, err
	}
	ds, err := cfg.DepthStencilFormat()
	if err != nil {
		return renderer.Config{}, err
	}
	sc := swapchain.DefaultConfig()
	sc.BufferCount = cfg.Renderer.BackBufferCount
	sc.Width = cfg.Window.Width
	sc.Height = cfg.Window.Height
	sc.BackBufferFormat = bb
	sc.DepthStencilFormat = ds
	sc.VSync = cfg.Renderer.VSync

	return renderer.Config{
		FramesInFlight: cfg.Renderer.FramesInFlight,
		SwapChain:      sc,
		WaitPolicy:     fence.WaitPolicy{Timeout: cfg.Sync.WaitTimeout.Duration},
		Counts:         counts,
		ClearColor:     cfg.Renderer.ClearColor,
	}, nil
}

// Run drives frames until the window closes, ctx is done or the configured
// number of frames has been rendered.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run while %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if addr := e.cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := e.metrics.Serve(ctx, addr); err != nil {
				core.LogError("metrics endpoint %s stopped: %s", addr, err)
			}
		}()
	}
	go e.watchAssets(ctx)

	e.clock.Start()
	maxFrames := e.cfg.Application.MaxFrames
	for {
		if ctx.Err() != nil {
			core.LogInfo("Run loop cancelled after %d frames.", e.frameCount)
			return nil
		}
		e.window.PumpMessages()
		if e.window.ShouldClose() {
			core.LogInfo("Window closed after %d frames.", e.frameCount)
			return nil
		}
		if err := e.applyResize(ctx); err != nil {
			return err
		}

		if e.isSuspended {
			select {
			case <-ctx.Done():
			case <-time.After(suspendedPoll):
			}
			continue
		}

		e.clock.Update()
		if err := e.frame(ctx); err != nil {
			return err
		}
		e.metrics.Update(e.clock.Delta())
		e.frameCount++
		if maxFrames != 0 && e.frameCount >= maxFrames {
			core.LogInfo("Rendered %d frames, stopping.", e.frameCount)
			return nil
		}
	}
}

func (e *Engine) frame(ctx context.Context) error {
	fr, err := e.renderer.BeginFrame(ctx)
	if errors.Is(err, core.ErrSwapchainResizing) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.demo.Update(e.clock, fr); err != nil {
		return fmt.Errorf("demo update: %w", err)
	}
	err = e.renderer.EndFrame(e.demo.Draw)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogWarn("Swap chain out of date, rebuilding the buffers.")
		e.pendingResize = true
		e.outOfDate = true
		return nil
	}
	return err
}

func (e *Engine) applyResize(ctx context.Context) error {
	if !e.pendingResize {
		return nil
	}
	e.pendingResize = false
	chain := e.renderer.SwapChain()
	if !e.outOfDate && chain.Width() == e.width && chain.Height() == e.height {
		return nil
	}
	e.outOfDate = false
	core.LogDebug("Window resize: %d, %d", e.width, e.height)
	if err := e.renderer.Resize(ctx, e.width, e.height); err != nil {
		return err
	}
	e.demo.OnResize(e.width, e.height)
	return nil
}

func (e *Engine) watchAssets(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.assets.Events():
			core.LogInfo("Shader %s changed (%s).", ev.Name, ev.Op)
		}
	}
}

// Shutdown waits for the GPU and releases the demo, the renderer and the
// window, in this order.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageUninitialized {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.renderer != nil {
		if err := e.renderer.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, e.demo.Shutdown())
		errs = append(errs, e.renderer.Shutdown(ctx))
		e.renderer = nil
	}
	if e.assets != nil {
		errs = append(errs, e.assets.Close())
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
		e.platform = nil
	}
	core.LogInfo("Engine shut down after %d frames.", e.frameCount)
	return errors.Join(errs...)
}

func (e *Engine) OnResize(width, height uint32) {
	// A usable size means the window is back, even when it kept the size it
	// had before being minimized.
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if width == e.width && height == e.height {
		return
	}
	e.width, e.height = width, height
	e.pendingResize = true
}

func (e *Engine) OnMinimize(minimized bool) {
	if minimized == e.isSuspended {
		return
	}
	e.isSuspended = minimized
	if minimized {
		core.LogInfo("Window minimized, suspending application.")
	} else {
		core.LogInfo("Window restored, resuming application.")
	}
}

func (e *Engine) OnFocus(focused bool) {
	e.hasFocus = focused
}

func (e *Engine) OnMouseDown(button platform.MouseButton, x, y int32) {
	e.demo.OnMouseDown(button, x, y)
}

func (e *Engine) OnMouseUp(button platform.MouseButton, x, y int32) {
	e.demo.OnMouseUp(button, x, y)
}

func (e *Engine) OnMouseMove(buttons platform.MouseButtons, x, y int32) {
	e.demo.OnMouseMove(buttons, x, y)
}

func (e *Engine) OnKey(key glfw.Key, action glfw.Action) {
	if key == glfw.KeyEscape && action == glfw.Press {
		core.LogInfo("Escape pressed, shutting down.")
		e.window.Close()
	}
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Assets() *assets.Registry {
	return e.assets
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) Session() string {
	return e.session
}

func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) IsSuspended() bool {
	return e.isSuspended
}

func (e *Engine) HasFocus() bool {
	return e.hasFocus
}
