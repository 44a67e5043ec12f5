package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	resizes   [][2]uint32
	minimized []bool
	focused   []bool
	downs     []MouseButton
	ups       []MouseButton
	moves     []MouseButtons
	keys      []glfw.Key
}

func (h *recordingHandler) OnResize(w, hh uint32) { h.resizes = append(h.resizes, [2]uint32{w, hh}) }
func (h *recordingHandler) OnMinimize(m bool) { h.minimized = append(h.minimized, m) }
func (h *recordingHandler) OnFocus(f bool) { h.focused = append(h.focused, f) }
func (h *recordingHandler) OnMouseDown(b MouseButton, _, _ int32) { h.downs = append(h.downs, b) }
func (h *recordingHandler) OnMouseUp(b MouseButton, _, _ int32) { h.ups = append(h.ups, b) }
func (h *recordingHandler) OnMouseMove(b MouseButtons, _, _ int32) {
	h.moves = append(h.moves, b)
}
func (h *recordingHandler) OnKey(k glfw.Key, _ glfw.Action) { h.keys = append(h.keys, k) }

func TestDispatchRoutesPerWindow(t *testing.T) {
	w1, w2 := new(glfw.Window), new(glfw.Window)
	h1, h2 := &recordingHandler{}, &recordingHandler{}
	Register(w1, h1)
	Register(w2, h2)
	t.Cleanup(func() {
		Unregister(w1)
		Unregister(w2)
	})

	dispatchResize(w1, 1024, 768)
	dispatchKey(w2, glfw.KeyEscape, glfw.Press)

	assert.Equal(t, [][2]uint32{{1024, 768}}, h1.resizes)
	assert.Empty(t, h1.keys)
	assert.Equal(t, []glfw.Key{glfw.KeyEscape}, h2.keys)
	assert.Empty(t, h2.resizes)
}

func TestDispatchZeroSizeMinimizes(t *testing.T) {
	w := new(glfw.Window)
	h := &recordingHandler{}
	Register(w, h)
	t.Cleanup(func() { Unregister(w) })

	dispatchResize(w, 0, 0)

	assert.Empty(t, h.resizes)
	assert.Equal(t, []bool{true}, h.minimized)
}

func TestDispatchTracksHeldButtons(t *testing.T) {
	w := new(glfw.Window)
	h := &recordingHandler{}
	Register(w, h)
	t.Cleanup(func() { Unregister(w) })

	dispatchMouseButton(w, glfw.MouseButtonLeft, glfw.Press, 10, 10)
	dispatchCursor(w, 12, 11)
	dispatchMouseButton(w, glfw.MouseButtonLeft, glfw.Release, 12, 11)
	dispatchCursor(w, 13, 11)
	// Buttons beyond the middle one are ignored.
	dispatchMouseButton(w, glfw.MouseButton4, glfw.Press, 13, 11)

	assert.Equal(t, []MouseButton{MouseButtonLeft}, h.downs)
	assert.Equal(t, []MouseButton{MouseButtonLeft}, h.ups)
	require.Len(t, h.moves, 2)
	assert.True(t, h.moves[0].Has(MouseButtonLeft))
	assert.False(t, h.moves[1].Has(MouseButtonLeft))
}

func TestDispatchUnregisteredWindow(t *testing.T) {
	w := new(glfw.Window)
	h := &recordingHandler{}
	Register(w, h)
	Unregister(w)

	assert.NotPanics(t, func() {
		dispatchResize(w, 10, 10)
		dispatchKey(w, glfw.KeyA, glfw.Press)
		dispatchMouseButton(w, glfw.MouseButtonLeft, glfw.Press, 0, 0)
		dispatchCursor(w, 1, 1)
	})
	assert.Empty(t, h.resizes)
	assert.Empty(t, h.keys)
}
