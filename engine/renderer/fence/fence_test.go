package fence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/gfx/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSync(t *testing.T, policy WaitPolicy, opts ...fake.Option) (*fake.Device, *Synchronizer) {
	t.Helper()
	dev := fake.NewDevice(opts...)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	s, err := New(dev, q, policy, nil)
	require.NoError(t, err)
	return dev, s
}

func TestSignalIsMonotonic(t *testing.T) {
	_, s := newSync(t, Infinite, fake.WithAutoComplete())

	var last uint64
	for i := 0; i < 10; i++ {
		v, err := s.Signal()
		require.NoError(t, err)
		assert.Greater(t, v, last)
		assert.LessOrEqual(t, s.Completed(), v)
		last = v
	}
	assert.Equal(t, uint64(10), s.Current())
}

func TestSignalFailureKeepsCounter(t *testing.T) {
	dev, s := newSync(t, Infinite)
	dev.FailNext("Signal", fake.ErrInjected)

	_, err := s.Signal()
	require.Error(t, err)
	var de *core.DeviceError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(0), s.Current())
}

func TestWaitForReachedValueDoesNotRegisterEvent(t *testing.T) {
	dev, s := newSync(t, Infinite, fake.WithAutoComplete())
	v, err := s.Signal()
	require.NoError(t, err)

	require.NoError(t, s.WaitFor(context.Background(), v))
	assert.Zero(t, dev.Count("Fence.SetEventOnCompletion(1)"))
}

func TestFlushBlocksUntilCompletion(t *testing.T) {
	dev, s := newSync(t, Infinite)
	dev.OnWait(func(f *fake.Fence, value uint64) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.Complete(value)
		}()
	})

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, uint64(1), s.Current())
	assert.Equal(t, uint64(1), s.Completed())
	assert.Equal(t, []string{
		"CreateCommandQueue",
		"CreateFence(0)",
		"Queue.Signal(1)",
		"Fence.SetEventOnCompletion(1)",
		"GPU.Complete(1)",
	}, dev.Journal())
}

func TestBoundedWaitReportsDeviceLost(t *testing.T) {
	_, s := newSync(t, WaitPolicy{Timeout: 10 * time.Millisecond})

	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestWaitHonorsCancellation(t *testing.T) {
	_, s := newSync(t, Infinite)
	v, err := s.Signal()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.WaitFor(ctx, v)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrDeviceLost)
}

func TestAbandonedWaitsDoNotLeakEvents(t *testing.T) {
	dev, s := newSync(t, WaitPolicy{Timeout: 5 * time.Millisecond})
	v, err := s.Signal()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, s.WaitFor(context.Background(), v), core.ErrDeviceLost)
	}
	assert.Zero(t, dev.Fence(0).Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.WaitFor(ctx, v), context.Canceled)
	assert.Zero(t, dev.Fence(0).Pending())
}

func TestLostDeviceFailsWaiters(t *testing.T) {
	dev, s := newSync(t, Infinite)
	v, err := s.Signal()
	require.NoError(t, err)

	lost := core.NewDeviceError("vkWaitForFences", -4, core.ErrDeviceLost)
	dev.OnWait(func(f *fake.Fence, value uint64) {
		go f.Lose(lost)
	})
	err = s.WaitFor(context.Background(), v)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	var de *core.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "vkWaitForFences", de.Call)
	assert.Zero(t, s.Completed())

	// Later waits fail right away instead of hanging.
	v, err = s.Signal()
	require.NoError(t, err)
	assert.ErrorIs(t, s.WaitFor(context.Background(), v), core.ErrDeviceLost)
}

func TestFlushMetrics(t *testing.T) {
	dev := fake.NewDevice(fake.WithAutoComplete())
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	m := core.NewMetrics("fence-test")
	s, err := New(dev, q, Infinite, m)
	require.NoError(t, err)

	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, s.Flush(context.Background()))

	count, err := testutil.GatherAndCount(m.Registry(), "luminax_queue_flushes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(2), s.Completed())
}

func TestSyncUsesDeviceFence(t *testing.T) {
	dev, s := newSync(t, Infinite)
	var f gfx.Fence = dev.Fence(0)
	assert.Equal(t, f, s.Fence())
}
