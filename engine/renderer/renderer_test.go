package renderer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/gfx/fake"
	"github.com/spaghettifunk/luminax/engine/math"
	"github.com/spaghettifunk/luminax/engine/renderer/frame"
	"github.com/spaghettifunk/luminax/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T, cfg Config, opts ...fake.Option) (*fake.Device, *Renderer) {
	t.Helper()
	dev := fake.NewDevice(opts...)
	r, err := New(context.Background(), Backend{Device: dev, Factory: dev.Factory()}, cfg, nil)
	require.NoError(t, err)
	return dev, r
}

func TestFrameLoopScenario(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	dev.ResetJournal()

	var slots, backBuffers []int
	for i := 0; i < 5; i++ {
		fr, err := r.BeginFrame(context.Background())
		require.NoError(t, err)
		slots = append(slots, fr.Index)
		require.NoError(t, r.EndFrame(nil))
		backBuffers = append(backBuffers, r.SwapChain().BackBufferIndex())
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1}, slots)
	assert.Equal(t, []int{1, 0, 1, 0, 1}, backBuffers)
	for _, e := range dev.Journal() {
		assert.False(t, strings.HasPrefix(e, "Fence.SetEventOnCompletion"), e)
	}
	assert.Equal(t, 5, dev.Count("SwapChain.Present(0)"))
	assert.Empty(t, dev.Violations())
}

func TestFrameWaitsForBusySlot(t *testing.T) {
	// The GPU only makes progress when the CPU waits for it.
	dev := fake.NewDevice()
	dev.OnWait(func(f *fake.Fence, value uint64) {
		f.Complete(value)
	})
	r, err := New(context.Background(), Backend{Device: dev, Factory: dev.Factory()}, DefaultConfig(), nil)
	require.NoError(t, err)
	base := r.Sync().Current()

	for i := 0; i < 3; i++ {
		_, err := r.BeginFrame(context.Background())
		require.NoError(t, err)
		require.NoError(t, r.EndFrame(nil))
	}
	assert.Equal(t, base, r.Sync().Completed())

	fr, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fr.Index)
	assert.Equal(t, base+1, r.Sync().Completed())

	journal := dev.Journal()
	wait, reset := -1, -1
	for i, e := range journal {
		if e == fmt.Sprintf("Fence.SetEventOnCompletion(%d)", base+1) {
			wait = i
		}
		if e == "Allocator[0].Reset" {
			reset = i
		}
	}
	require.NotEqual(t, -1, wait)
	assert.Less(t, wait, reset)
	assert.Empty(t, dev.Violations())
}

func TestEndFrameRecordsFrame(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())

	fr, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	var drawn bool
	require.NoError(t, r.EndFrame(func(list gfx.CommandList, got *frame.FrameResource) error {
		drawn = true
		assert.Same(t, fr, got)
		return nil
	}))
	assert.True(t, drawn)

	// The shared list is the first one created after the ring.
	cmds := recorded(t, r)
	assert.Equal(t, []string{
		"SetViewport(800x600)",
		"SetScissorRect(800x600)",
		"Barrier(PRESENT->RENDER_TARGET)",
		"ClearRenderTargetView(0)",
		"ClearDepthStencilView(3,1,0)",
		"SetRenderTargets(0,0)",
		"SetGraphicsRootConstantBufferView(2," + hex(fr.PassCB.ElementAddress(0)) + ")",
		"Barrier(RENDER_TARGET->PRESENT)",
	}, cmds)

	sc := r.SwapChain().Chain().(*fake.SwapChain)
	assert.Equal(t, 1, sc.Presents())
	assert.Empty(t, dev.Violations())
}

func TestEndFrameWithoutBeginFrame(t *testing.T) {
	_, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	assert.Error(t, r.EndFrame(nil))
}

func TestDrawErrorAbortsFrame(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	_, err := r.BeginFrame(context.Background())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = r.EndFrame(func(gfx.CommandList, *frame.FrameResource) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, dev.Count("SwapChain.Present(0)"))
}

func TestBindItem(t *testing.T) {
	s := scene.New(3)
	_, err := s.AddMaterial("a", math.Vec4{}, math.Vec3{}, 0)
	require.NoError(t, err)
	_, err = s.AddMaterial("b", math.Vec4{}, math.Vec3{}, 0)
	require.NoError(t, err)
	_, err = s.AddItem(math.NewMat4Identity(), "a")
	require.NoError(t, err)
	ri, err := s.AddItem(math.NewMat4Identity(), "b")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Counts = s.Counts(1)
	_, r := newRenderer(t, cfg, fake.WithAutoComplete())

	fr, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.EndFrame(func(list gfx.CommandList, fr *frame.FrameResource) error {
		r.BindItem(list, fr, ri)
		return nil
	}))
	cmds := recorded(t, r)
	assert.Contains(t, cmds, "SetGraphicsRootConstantBufferView(0,"+hex(fr.ObjectCB.ElementAddress(1))+")")
	assert.Contains(t, cmds, "SetGraphicsRootConstantBufferView(1,"+hex(fr.MaterialCB.ElementAddress(1))+")")
}

func TestResizeBetweenFrames(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())

	for i := 0; i < 2; i++ {
		_, err := r.BeginFrame(context.Background())
		require.NoError(t, err)
		require.NoError(t, r.EndFrame(nil))
	}
	require.NoError(t, r.Resize(context.Background(), 1280, 720))
	assert.Equal(t, 0, r.SwapChain().BackBufferIndex())
	assert.Equal(t, r.Sync().Current(), r.Sync().Completed())

	_, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	assert.Error(t, r.Resize(context.Background(), 640, 480))
	require.NoError(t, r.EndFrame(nil))

	assert.ErrorIs(t, r.Resize(context.Background(), 0, 0), core.ErrInvalidDimensions)
	assert.Empty(t, dev.Violations())
}

func TestOneShotAndBake(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	live := dev.LiveResources()

	require.NoError(t, r.OneShot(context.Background(), func(list gfx.CommandList) error {
		list.SetViewport(r.SwapChain().Viewport())
		return nil
	}))
	require.NoError(t, r.OneShot(context.Background(), func(gfx.CommandList) error { return nil }))

	var passes int
	require.NoError(t, r.Bake(context.Background(), frame.CubeMapFaces, func(list gfx.CommandList, fr *frame.FrameResource) error {
		passes = fr.PassCB.Len()
		for i := 0; i < passes; i++ {
			list.SetGraphicsRootConstantBufferView(RootPass, fr.PassCB.ElementAddress(i))
		}
		return nil
	}))
	assert.Equal(t, frame.CubeMapFaces, passes)
	assert.Equal(t, live, dev.LiveResources())
	assert.Equal(t, r.Sync().Current(), r.Sync().Completed())
	assert.Empty(t, dev.Violations())

	// Frames still run after one-off work shared the list.
	_, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.EndFrame(nil))
	assert.Empty(t, dev.Violations())
}

func TestShutdownReleasesEverything(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	_, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.EndFrame(nil))

	require.NoError(t, r.Shutdown(context.Background()))
	assert.Zero(t, dev.LiveResources())
	assert.Equal(t, 1, dev.Count("Device.Close"))
	assert.Empty(t, dev.Violations())
}

func TestNewFailurePropagates(t *testing.T) {
	dev := fake.NewDevice(fake.WithAutoComplete())
	dev.FailNext("CreateSwapChain", fake.ErrInjected)

	_, err := New(context.Background(), Backend{Device: dev, Factory: dev.Factory()}, DefaultConfig(), nil)
	require.Error(t, err)
	var de *core.DeviceError
	assert.True(t, errors.As(err, &de))
	assert.Zero(t, dev.LiveResources())
}

func TestParseRendererType(t *testing.T) {
	for _, rt := range []RendererType{Vulkan, Headless} {
		got, err := ParseRendererType(rt.String())
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	}
	_, err := ParseRendererType("metal")
	assert.Error(t, err)
}

func recorded(t *testing.T, r *Renderer) []string {
	t.Helper()
	cl, ok := r.list.(*fake.CommandList)
	require.True(t, ok)
	return cl.Commands()
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

func TestPresentFailureStillRetiresFrame(t *testing.T) {
	dev := fake.NewDevice()
	dev.OnWait(func(f *fake.Fence, value uint64) {
		f.Complete(value)
	})
	r, err := New(context.Background(), Backend{Device: dev, Factory: dev.Factory()}, DefaultConfig(), nil)
	require.NoError(t, err)

	fr, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	dev.FailNext("Present", fake.ErrInjected)
	err = r.EndFrame(nil)
	assert.ErrorIs(t, err, fake.ErrInjected)
	assert.Equal(t, r.Sync().Current(), fr.FenceValue)

	// Coming back to the slot waits for the list executed before the failure.
	for i := 0; i < r.FramesInFlight(); i++ {
		_, err := r.BeginFrame(context.Background())
		require.NoError(t, err)
		require.NoError(t, r.EndFrame(nil))
	}
	assert.GreaterOrEqual(t, r.Sync().Completed(), fr.FenceValue)
	assert.Empty(t, dev.Violations())
}

func TestCreateDefaultBuffer(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	live := dev.LiveResources()

	data := []byte("vertices and indices")
	buf, err := r.CreateDefaultBuffer(context.Background(), data)
	require.NoError(t, err)

	fb := buf.(*fake.Resource)
	assert.Equal(t, gfx.HeapTypeDefault, fb.Heap())
	assert.Equal(t, gfx.ResourceStateGenericRead, fb.State())
	assert.Equal(t, data, fb.Bytes())
	// Only the staging buffer is gone.
	assert.Equal(t, live+1, dev.LiveResources())
	assert.Equal(t, r.Sync().Current(), r.Sync().Completed())
	assert.Empty(t, dev.Violations())

	buf.Release()
	assert.Equal(t, live, dev.LiveResources())
}

func TestCreateDefaultBufferFailures(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	live := dev.LiveResources()

	_, err := r.CreateDefaultBuffer(context.Background(), nil)
	assert.Error(t, err)

	dev.FailNext("Map", fake.ErrInjected)
	_, err = r.CreateDefaultBuffer(context.Background(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, fake.ErrInjected)

	dev.FailNext("ExecuteCommandLists", fake.ErrInjected)
	_, err = r.CreateDefaultBuffer(context.Background(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, fake.ErrInjected)

	assert.Equal(t, live, dev.LiveResources())
	assert.Empty(t, dev.Violations())
}

func TestRenderTargetRebuildsOnlyOnSizeChange(t *testing.T) {
	dev, r := newRenderer(t, DefaultConfig(), fake.WithAutoComplete())
	live := dev.LiveResources()

	rt, err := r.NewRenderTarget(256, 256, gfx.FormatR8G8B8A8Unorm)
	require.NoError(t, err)
	assert.Equal(t, live+1, dev.LiveResources())
	res, ok := dev.View(rt.View())
	require.True(t, ok)
	assert.Same(t, rt.Resource(), res)
	assert.Equal(t, gfx.ResourceStateGenericRead, res.State())
	require.NotNil(t, res.ClearValue())
	assert.Equal(t, gfx.FormatR8G8B8A8Unorm, res.ClearValue().Format)

	// Backbuffer views keep their own slots.
	bb, ok := dev.View(r.SwapChain().CurrentBackBufferView())
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(bb.Name(), "backbuffer-"))

	require.NoError(t, rt.OnResize(256, 256))
	assert.Same(t, res, rt.Resource())

	require.NoError(t, rt.OnResize(512, 128))
	assert.NotSame(t, res, rt.Resource())
	assert.True(t, res.Released())
	assert.Equal(t, gfx.Viewport{Width: 512, Height: 128, MaxDepth: 1}, rt.Viewport())
	assert.Equal(t, gfx.Rect{Right: 512, Bottom: 128}, rt.ScissorRect())
	assert.Equal(t, live+1, dev.LiveResources())

	assert.ErrorIs(t, rt.OnResize(0, 128), core.ErrInvalidDimensions)
	require.NoError(t, rt.OnResize(64, 64))

	require.NoError(t, r.OneShot(context.Background(), func(list gfx.CommandList) error {
		rt.Begin(list)
		rt.End(list)
		cmds := list.(*fake.CommandList).Commands()
		assert.Equal(t, "SetViewport(64x64)", cmds[1])
		assert.Contains(t, cmds, fmt.Sprintf("ClearRenderTargetView(%d)", rt.View().Slot.Index))
		return nil
	}))
	assert.Equal(t, gfx.ResourceStateGenericRead, rt.Resource().(*fake.Resource).State())
	assert.Empty(t, dev.Violations())

	rt.Release()
	assert.Equal(t, live, dev.LiveResources())
}
