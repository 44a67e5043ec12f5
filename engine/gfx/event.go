package gfx

import (
	"context"
	"sync"
)

// Event is a one-shot wait primitive. It may be signaled from any goroutine,
// more than once.
type Event struct {
	once sync.Once
	ch   chan struct{}
}

func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

func (e *Event) Signal() {
	e.once.Do(func() { close(e.ch) })
}

func (e *Event) Done() <-chan struct{} {
	return e.ch
}

func (e *Event) Signaled() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the event is signaled or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
