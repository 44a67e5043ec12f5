package engine

import "sync/atomic"

// headlessWindow stands in for a real window when rendering offscreen. It
// never produces events and stays open until Close is called.
type headlessWindow struct {
	width  uint32
	height uint32
	closed atomic.Bool
}

func newHeadlessWindow(width, height uint32) *headlessWindow {
	return &headlessWindow{width: width, height: height}
}

func (w *headlessWindow) PumpMessages() {}

func (w *headlessWindow) ShouldClose() bool {
	return w.closed.Load()
}

func (w *headlessWindow) Close() {
	w.closed.Store(true)
}

func (w *headlessWindow) FramebufferSize() (uint32, uint32) {
	return w.width, w.height
}
