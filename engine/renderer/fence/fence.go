// Package fence implements CPU/GPU synchronization on top of a monotonically
// increasing 64-bit fence counter.
package fence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// WaitPolicy bounds CPU waits on the GPU.
type WaitPolicy struct {
	// Timeout of a single wait. Zero waits forever.
	Timeout time.Duration
}

// Infinite never gives up on the GPU.
var Infinite = WaitPolicy{}

type Synchronizer struct {
	fence   gfx.Fence
	queue   gfx.CommandQueue
	current uint64
	policy  WaitPolicy
	metrics *core.Metrics
}

func New(device gfx.Device, queue gfx.CommandQueue, policy WaitPolicy, metrics *core.Metrics) (*Synchronizer, error) {
	f, err := device.CreateFence(0)
	if err != nil {
		return nil, core.Check("CreateFence", err)
	}
	return &Synchronizer{
		fence:   f,
		queue:   queue,
		policy:  policy,
		metrics: metrics,
	}, nil
}

func (s *Synchronizer) Fence() gfx.Fence {
	return s.fence
}

func (s *Synchronizer) Queue() gfx.CommandQueue {
	return s.queue
}

// Current is the last value enqueued for signaling.
func (s *Synchronizer) Current() uint64 {
	return s.current
}

// Completed is the last value the GPU reached.
func (s *Synchronizer) Completed() uint64 {
	v := s.fence.CompletedValue()
	s.metrics.Completed(v)
	return v
}

func (s *Synchronizer) Policy() WaitPolicy {
	return s.policy
}

// Signal advances the counter and asks the queue to write the new value into
// the fence once everything submitted before has completed.
func (s *Synchronizer) Signal() (uint64, error) {
	next := s.current + 1
	if err := s.queue.Signal(s.fence, next); err != nil {
		return 0, core.Check("Signal", err)
	}
	s.current = next
	s.metrics.Signaled(next)
	return next, nil
}

// WaitFor blocks until the fence reaches value.
func (s *Synchronizer) WaitFor(ctx context.Context, value uint64) error {
	if s.Completed() >= value {
		return nil
	}

	ev := gfx.NewEvent()
	if err := s.fence.SetEventOnCompletion(value, ev); err != nil {
		return core.Check("SetEventOnCompletion", err)
	}

	waitCtx := ctx
	if s.policy.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.policy.Timeout)
		defer cancel()
	}

	if err := ev.Wait(waitCtx); err != nil {
		s.cancel(ev)
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for fence value %d: %w", value, ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			completed := s.Completed()
			core.LogWarn("fence wait timed out after %s (value %d, completed %d)", s.policy.Timeout, value, completed)
			return fmt.Errorf("fence value %d not reached within %s, completed %d: %w", value, s.policy.Timeout, completed, core.ErrDeviceLost)
		}
		return err
	}
	// A lost device wakes its waiters without reaching the value.
	if completed := s.Completed(); completed < value {
		return s.faultError(value, completed)
	}
	return nil
}

// cancel drops an abandoned event from fences which support it.
func (s *Synchronizer) cancel(ev *gfx.Event) {
	if c, ok := s.fence.(gfx.EventCanceler); ok {
		c.CancelEvent(ev)
	}
}

func (s *Synchronizer) faultError(value, completed uint64) error {
	err := fmt.Errorf("fence stopped at %d before reaching %d: %w", completed, value, core.ErrDeviceLost)
	if fr, ok := s.fence.(gfx.FaultReporter); ok {
		if cause := fr.Err(); cause != nil {
			err = fmt.Errorf("%w: %w", err, cause)
		}
	}
	core.LogError(err.Error())
	return err
}

// Flush waits until the GPU has finished every command submitted so far.
func (s *Synchronizer) Flush(ctx context.Context) error {
	v, err := s.Signal()
	if err != nil {
		return err
	}
	s.metrics.Flush()
	return s.WaitFor(ctx, v)
}

func (s *Synchronizer) Release() {
	if s.fence != nil {
		s.fence.Release()
		s.fence = nil
	}
}
