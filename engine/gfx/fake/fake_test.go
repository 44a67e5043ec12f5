package fake

import (
	"testing"

	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submit(t *testing.T, d *Device, q gfx.CommandQueue, a gfx.CommandAllocator) {
	t.Helper()
	cl, err := d.CreateCommandList(a)
	require.NoError(t, err)
	require.NoError(t, cl.Close())
	require.NoError(t, q.ExecuteCommandLists(cl))
}

func TestFenceCompletionIsClampedToSignaled(t *testing.T) {
	d := NewDevice()
	q, err := d.CreateCommandQueue()
	require.NoError(t, err)
	f, err := d.CreateFence(0)
	require.NoError(t, err)
	ff := f.(*Fence)

	require.NoError(t, q.Signal(f, 2))
	ff.Complete(10)
	assert.Equal(t, uint64(2), f.CompletedValue())
	assert.LessOrEqual(t, f.CompletedValue(), ff.Signaled())
}

func TestEventFiresOnCompletion(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	f, _ := d.CreateFence(0)
	ff := f.(*Fence)
	require.NoError(t, q.Signal(f, 1))

	ev := gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(1, ev))
	assert.False(t, ev.Signaled())
	assert.Equal(t, 1, ff.Pending())

	ff.Complete(1)
	assert.True(t, ev.Signaled())
	assert.Zero(t, ff.Pending())

	// Already reached values signal right away.
	ev = gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(1, ev))
	assert.True(t, ev.Signaled())
}

func TestPrematureAllocatorResetIsFlagged(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	f, _ := d.CreateFence(0)
	a, _ := d.CreateCommandAllocator()

	submit(t, d, q, a)
	require.NoError(t, q.Signal(f, 1))

	require.NoError(t, a.Reset())
	require.Len(t, d.Violations(), 1)
	assert.Contains(t, d.Violations()[0], "Allocator[0] reset while in use")

	f.(*Fence).CompleteAll()
	require.NoError(t, a.Reset())
	assert.Len(t, d.Violations(), 1)
}

func TestAutoComplete(t *testing.T) {
	d := NewDevice(WithAutoComplete())
	q, _ := d.CreateCommandQueue()
	f, _ := d.CreateFence(0)
	require.NoError(t, q.Signal(f, 1))
	assert.Equal(t, uint64(1), f.CompletedValue())
}

func TestNonMonotonicSignalIsFlagged(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	f, _ := d.CreateFence(0)
	require.NoError(t, q.Signal(f, 2))
	require.NoError(t, q.Signal(f, 2))
	assert.Len(t, d.Violations(), 1)
}

func TestUploadResourceIsMappable(t *testing.T) {
	d := NewDevice()
	r, err := d.CreateCommittedResource(gfx.HeapTypeUpload, gfx.BufferDesc(512), gfx.ResourceStateGenericRead, nil)
	require.NoError(t, err)
	mem, err := r.Map()
	require.NoError(t, err)
	assert.Len(t, mem, 512)
	assert.NotZero(t, r.GPUVirtualAddress())
	assert.Equal(t, 1, d.LiveResources())

	r.Unmap()
	r.Release()
	assert.Zero(t, d.LiveResources())
	r.Release()
	assert.Len(t, d.Violations(), 1)
}

func TestResizeRequiresReleasedBuffers(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	sc, err := d.Factory().CreateSwapChain(q, gfx.SwapChainDesc{
		Width: 64, Height: 32, Format: gfx.FormatR8G8B8A8Unorm, BufferCount: 2,
	})
	require.NoError(t, err)

	b0, err := sc.GetBuffer(0)
	require.NoError(t, err)
	b1, err := sc.GetBuffer(1)
	require.NoError(t, err)
	assert.Equal(t, gfx.ResourceStatePresent, b0.(*Resource).State())

	assert.Error(t, sc.ResizeBuffers(2, 128, 64, gfx.FormatR8G8B8A8Unorm))
	b0.Release()
	b1.Release()
	require.NoError(t, sc.ResizeBuffers(2, 128, 64, gfx.FormatR8G8B8A8Unorm))

	nb, err := sc.GetBuffer(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), nb.Desc().Width)
}

func TestResizeDestroysOldBuffers(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	sc, err := d.Factory().CreateSwapChain(q, gfx.SwapChainDesc{
		Width: 64, Height: 32, Format: gfx.FormatR8G8B8A8Unorm, BufferCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, d.LiveResources())

	old, err := sc.GetBuffer(0)
	require.NoError(t, err)
	old.Release()
	for i := 0; i < 2; i++ {
		require.NoError(t, sc.ResizeBuffers(3, 64, 32, gfx.FormatR8G8B8A8Unorm))
		assert.Equal(t, 3, d.LiveResources())
	}
	assert.True(t, old.(*Resource).Released())
	assert.Empty(t, d.Violations())

	sc.Release()
	assert.Zero(t, d.LiveResources())
}

func TestMinBackBuffers(t *testing.T) {
	d := NewDevice(WithMinBackBuffers(4))
	q, _ := d.CreateCommandQueue()
	sc, err := d.Factory().CreateSwapChain(q, gfx.SwapChainDesc{
		Width: 64, Height: 32, Format: gfx.FormatR8G8B8A8Unorm, BufferCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, sc.Desc().BufferCount)
	_, err = sc.GetBuffer(3)
	assert.NoError(t, err)
}

func TestCopyBufferRegionRunsOnExecute(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	a, _ := d.CreateCommandAllocator()
	desc := gfx.BufferDesc(8)
	src, err := d.CreateCommittedResource(gfx.HeapTypeUpload, desc, gfx.ResourceStateGenericRead, nil)
	require.NoError(t, err)
	dst, err := d.CreateCommittedResource(gfx.HeapTypeDefault, desc, gfx.ResourceStateCommon, nil)
	require.NoError(t, err)
	_, err = dst.Map()
	assert.Error(t, err)

	data, err := src.Map()
	require.NoError(t, err)
	copy(data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	src.Unmap()

	cl, err := d.CreateCommandList(a)
	require.NoError(t, err)
	cl.ResourceBarrier(gfx.Transition{Resource: dst, Before: gfx.ResourceStateCommon, After: gfx.ResourceStateCopyDest})
	cl.CopyBufferRegion(dst, 2, src, 4, 4)
	require.NoError(t, cl.Close())
	assert.Equal(t, make([]byte, 8), dst.(*Resource).Bytes())

	require.NoError(t, q.ExecuteCommandLists(cl))
	assert.Equal(t, []byte{0, 0, 5, 6, 7, 8, 0, 0}, dst.(*Resource).Bytes())
	assert.Empty(t, d.Violations())

	require.NoError(t, cl.Reset(a))
	cl.CopyBufferRegion(dst, 6, src, 0, 4)
	assert.Len(t, d.Violations(), 1)
}

func TestLostFenceFailsRegistration(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	f, _ := d.CreateFence(0)
	ff := f.(*Fence)
	require.NoError(t, q.Signal(f, 1))

	ev := gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(1, ev))
	ff.Lose(ErrInjected)
	assert.True(t, ev.Signaled())
	assert.Zero(t, ff.Pending())
	assert.ErrorIs(t, ff.Err(), ErrInjected)

	ff.CompleteAll()
	assert.Zero(t, f.CompletedValue())
	assert.ErrorIs(t, f.SetEventOnCompletion(1, gfx.NewEvent()), ErrInjected)
}

func TestCancelEvent(t *testing.T) {
	d := NewDevice()
	q, _ := d.CreateCommandQueue()
	f, _ := d.CreateFence(0)
	ff := f.(*Fence)
	require.NoError(t, q.Signal(f, 1))

	ev := gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(1, ev))
	ff.CancelEvent(ev)
	assert.Zero(t, ff.Pending())
	ff.CompleteAll()
	assert.False(t, ev.Signaled())
}

func TestFailNext(t *testing.T) {
	d := NewDevice()
	d.FailNext("CreateFence", ErrInjected)
	_, err := d.CreateFence(0)
	assert.ErrorIs(t, err, ErrInjected)
	_, err = d.CreateFence(0)
	assert.NoError(t, err)
}
