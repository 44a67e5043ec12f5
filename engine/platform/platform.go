package platform

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/luminax/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type MouseButton uint8

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
)

// MouseButtons is a set of buttons held down.
type MouseButtons uint8

func (b MouseButtons) Has(button MouseButton) bool {
	return b&(1<<button) != 0
}

// WindowHandler receives the events of one window.
type WindowHandler interface {
	OnResize(width, height uint32)
	// Minimized windows have no surface to present to.
	OnMinimize(minimized bool)
	OnFocus(focused bool)
	OnMouseDown(button MouseButton, x, y int32)
	OnMouseUp(button MouseButton, x, y int32)
	OnMouseMove(buttons MouseButtons, x, y int32)
	OnKey(key glfw.Key, action glfw.Action)
}

// Callbacks registered on glfw windows find their handler here.
var (
	handlersMu sync.RWMutex
	handlers   = make(map[*glfw.Window]*windowState)
)

type windowState struct {
	handler WindowHandler
	buttons MouseButtons
}

// Register routes the events of w to h, replacing any earlier handler.
func Register(w *glfw.Window, h WindowHandler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[w] = &windowState{handler: h}
}

func Unregister(w *glfw.Window) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	delete(handlers, w)
}

func lookup(w *glfw.Window) *windowState {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return handlers[w]
}

type Platform struct {
	Window    *glfw.Window
	startTime float64
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x, y int32, width, height uint32, handler WindowHandler) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window
	Register(window, handler)

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetMouseButtonCallback(mouseButtonCallback)
	p.Window.SetCursorPosCallback(cursorPosCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetIconifyCallback(iconifyCallback)
	p.Window.SetFocusCallback(focusCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		Unregister(p.Window)
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

func (p *Platform) Close() {
	p.Window.SetShouldClose(true)
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// Time is the number of seconds since Startup.
func (p *Platform) Time() float64 {
	return glfw.GetTime() - p.startTime
}

// GetRequiredExtensionNames lists the Vulkan instance extensions needed to
// present to the window.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a Vulkan surface for the window on instance.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

// GetInstanceProcAddress is the Vulkan loader entry point found by glfw.
func GetInstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	dispatchKey(w, key, action)
}

func mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	x, y := w.GetCursorPos()
	dispatchMouseButton(w, button, action, int32(x), int32(y))
}

func cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	dispatchCursor(w, int32(xpos), int32(ypos))
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	dispatchResize(w, width, height)
}

func iconifyCallback(w *glfw.Window, iconified bool) {
	if s := lookup(w); s != nil {
		s.handler.OnMinimize(iconified)
	}
}

func focusCallback(w *glfw.Window, focused bool) {
	if s := lookup(w); s != nil {
		s.handler.OnFocus(focused)
	}
}

func dispatchKey(w *glfw.Window, key glfw.Key, action glfw.Action) {
	if s := lookup(w); s != nil {
		s.handler.OnKey(key, action)
	}
}

func dispatchMouseButton(w *glfw.Window, button glfw.MouseButton, action glfw.Action, x, y int32) {
	s := lookup(w)
	if s == nil {
		return
	}
	b, ok := toMouseButton(button)
	if !ok {
		return
	}
	switch action {
	case glfw.Press:
		s.buttons |= 1 << b
		s.handler.OnMouseDown(b, x, y)
	case glfw.Release:
		s.buttons &^= 1 << b
		s.handler.OnMouseUp(b, x, y)
	}
}

func dispatchCursor(w *glfw.Window, x, y int32) {
	if s := lookup(w); s != nil {
		s.handler.OnMouseMove(s.buttons, x, y)
	}
}

func dispatchResize(w *glfw.Window, width, height int) {
	s := lookup(w)
	if s == nil {
		return
	}
	if width <= 0 || height <= 0 {
		s.handler.OnMinimize(true)
		return
	}
	s.handler.OnResize(uint32(width), uint32(height))
}

func toMouseButton(b glfw.MouseButton) (MouseButton, bool) {
	switch b {
	case glfw.MouseButtonLeft:
		return MouseButtonLeft, true
	case glfw.MouseButtonRight:
		return MouseButtonRight, true
	case glfw.MouseButtonMiddle:
		return MouseButtonMiddle, true
	default:
		return 0, false
	}
}
