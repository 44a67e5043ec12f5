package swapchain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/gfx/fake"
	"github.com/spaghettifunk/luminax/engine/renderer/fence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, cfg Config) (*fake.Device, *fence.Synchronizer, *Manager) {
	t.Helper()
	dev := fake.NewDevice(fake.WithAutoComplete())
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	fs, err := fence.New(dev, q, fence.Infinite, nil)
	require.NoError(t, err)
	m, err := New(context.Background(), dev, dev.Factory(), fs, cfg, nil)
	require.NoError(t, err)
	return dev, fs, m
}

func TestNewBuildsBuffersAndViews(t *testing.T) {
	dev, _, m := newManager(t, DefaultConfig())

	assert.Equal(t, 2, m.BufferCount())
	assert.Equal(t, 0, m.BackBufferIndex())
	assert.Equal(t, StatePresenting, m.State())
	assert.Equal(t, 3, dev.LiveResources())

	rt, ok := dev.View(m.CurrentBackBufferView())
	require.True(t, ok)
	assert.Same(t, rt, m.CurrentBackBuffer())
	assert.Equal(t, "backbuffer-0", rt.Name())

	depth := m.DepthStencil().(*fake.Resource)
	assert.Equal(t, gfx.FormatR24G8Typeless, depth.Desc().Format)
	assert.Equal(t, gfx.ResourceStateDepthWrite, depth.State())
	require.NotNil(t, depth.ClearValue())
	assert.Equal(t, gfx.FormatD24UnormS8Uint, depth.ClearValue().Format)
	assert.Equal(t, float32(1), depth.ClearValue().Depth)
	assert.Equal(t, uint8(0), depth.ClearValue().Stencil)

	ds, ok := dev.View(m.DepthStencilView())
	require.True(t, ok)
	assert.Same(t, depth, ds)

	assert.Equal(t, gfx.Viewport{Width: 800, Height: 600, MaxDepth: 1}, m.Viewport())
	assert.Equal(t, gfx.Rect{Right: 800, Bottom: 600}, m.ScissorRect())
	assert.InDelta(t, 800.0/600.0, m.AspectRatio(), 1e-6)
	assert.Empty(t, dev.Violations())
}

func TestResizeIsIdempotentAndFlushesFirst(t *testing.T) {
	dev, fs, m := newManager(t, DefaultConfig())

	for i := 0; i < 2; i++ {
		dev.ResetJournal()
		require.NoError(t, m.Resize(context.Background(), 1024, 768))

		assert.Equal(t, uint32(1024), m.Width())
		assert.Equal(t, uint32(768), m.Height())
		assert.Equal(t, 2, m.BufferCount())
		assert.Equal(t, 0, m.BackBufferIndex())
		assert.Equal(t, 3, dev.LiveResources())
		assert.Equal(t, gfx.Rect{Right: 1024, Bottom: 768}, m.ScissorRect())
		assert.Equal(t, float32(1024), m.Viewport().Width)

		journal := dev.Journal()
		require.NotEmpty(t, journal)
		firstSignal := -1
		resize := -1
		for i, e := range journal {
			if firstSignal < 0 && strings.HasPrefix(e, "Queue.Signal(") {
				firstSignal = i
			}
			if e == "SwapChain.ResizeBuffers(2,1024x768)" {
				resize = i
			}
		}
		require.NotEqual(t, -1, firstSignal)
		require.NotEqual(t, -1, resize)
		assert.Less(t, firstSignal, resize)
		assert.Equal(t, 2, countPrefix(journal, "Queue.Signal("))
	}
	assert.Equal(t, uint64(6), fs.Current())
	assert.Empty(t, dev.Violations())
}

func TestResizeRejectsZeroSize(t *testing.T) {
	dev, _, m := newManager(t, DefaultConfig())
	dev.ResetJournal()

	err := m.Resize(context.Background(), 0, 600)
	assert.True(t, errors.Is(err, core.ErrInvalidDimensions))
	err = m.Resize(context.Background(), 800, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidDimensions))

	assert.Empty(t, dev.Journal())
	assert.Equal(t, uint32(800), m.Width())
	assert.Equal(t, StatePresenting, m.State())
}

func TestResizeAllocationFailure(t *testing.T) {
	dev, _, m := newManager(t, DefaultConfig())
	dev.FailNext("CreateCommittedResource", fake.ErrInjected)

	err := m.Resize(context.Background(), 640, 480)
	require.Error(t, err)
	var de *core.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "CreateCommittedResource", de.Call)
	assert.Contains(t, de.Error(), "CreateCommittedResource failed in swapchain.go")
}

func TestPresentCyclesBackBuffers(t *testing.T) {
	_, _, m := newManager(t, DefaultConfig())

	var indices []int
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Present())
		indices = append(indices, m.BackBufferIndex())
	}
	assert.Equal(t, []int{1, 0, 1, 0, 1}, indices)

	require.NoError(t, m.Resize(context.Background(), 320, 240))
	assert.Equal(t, 0, m.BackBufferIndex())
}

func TestPresentUsesVSyncInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VSync = true
	cfg.BufferCount = 3
	dev, _, m := newManager(t, cfg)

	require.NoError(t, m.Present())
	assert.Equal(t, 1, dev.Count("SwapChain.Present(1)"))
	assert.Equal(t, 1, m.BackBufferIndex())
}

func TestPresentFailure(t *testing.T) {
	dev, _, m := newManager(t, DefaultConfig())
	dev.FailNext("Present", fake.ErrInjected)

	err := m.Present()
	var de *core.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, m.BackBufferIndex())
}

// acquiringChain picks its backbuffer itself, like a presentation engine
// which hands out images in its own order.
type acquiringChain struct {
	*fake.SwapChain
	next int
}

func (c *acquiringChain) CurrentBackBufferIndex() int { return c.next }

type acquiringFactory struct {
	inner *fake.Factory
	chain *acquiringChain
}

func (f *acquiringFactory) CreateSwapChain(q gfx.CommandQueue, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	sc, err := f.inner.CreateSwapChain(q, desc)
	if err != nil {
		return nil, err
	}
	f.chain = &acquiringChain{SwapChain: sc.(*fake.SwapChain)}
	return f.chain, nil
}

func TestExtraBackBuffersAreUsed(t *testing.T) {
	dev := fake.NewDevice(fake.WithAutoComplete(), fake.WithMinBackBuffers(3))
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	fs, err := fence.New(dev, q, fence.Infinite, nil)
	require.NoError(t, err)
	factory := &acquiringFactory{inner: dev.Factory()}

	m, err := New(context.Background(), dev, factory, fs, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, m.BufferCount())
	assert.Equal(t, 4, dev.LiveResources())

	// The chain acquired the image past the requested count.
	factory.chain.next = 2
	require.NoError(t, m.Present())
	assert.Equal(t, 2, m.BackBufferIndex())
	rt, ok := dev.View(m.CurrentBackBufferView())
	require.True(t, ok)
	assert.Equal(t, "backbuffer-2", rt.Name())

	factory.chain.next = 0
	require.NoError(t, m.Resize(context.Background(), 640, 480))
	assert.Equal(t, 3, m.BufferCount())
	assert.Equal(t, 4, dev.LiveResources())

	m.Release()
	assert.Zero(t, dev.LiveResources())
	assert.Empty(t, dev.Violations())
}

func TestNewValidatesConfig(t *testing.T) {
	dev := fake.NewDevice(fake.WithAutoComplete())
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	fs, err := fence.New(dev, q, fence.Infinite, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BufferCount = 1
	_, err = New(context.Background(), dev, dev.Factory(), fs, cfg, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Height = 0
	_, err = New(context.Background(), dev, dev.Factory(), fs, cfg, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidDimensions))
}

func TestRelease(t *testing.T) {
	dev, _, m := newManager(t, DefaultConfig())
	m.Release()
	assert.Zero(t, dev.LiveResources())
	assert.Empty(t, dev.Violations())
}

func countPrefix(entries []string, prefix string) int {
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}
