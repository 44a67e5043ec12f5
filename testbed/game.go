package testbed

import (
	"github.com/spaghettifunk/luminax/engine"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/spaghettifunk/luminax/engine/math"
	"github.com/spaghettifunk/luminax/engine/platform"
	"github.com/spaghettifunk/luminax/engine/renderer"
	"github.com/spaghettifunk/luminax/engine/renderer/frame"
	"github.com/spaghettifunk/luminax/engine/scene"
)

const (
	gridSize   = 5
	boxSpacing = 4
	// Seconds between two material swaps.
	swapPeriod = 2.0
	// Radians per second.
	spinSpeed = 0.5
)

var shaderFiles = []string{"color.vert.spv", "color.frag.spv"}

var palette = []struct {
	name      string
	albedo    math.Vec4
	fresnel   math.Vec3
	roughness float32
}{
	{"bricks", math.NewVec4(0.9, 0.35, 0.3, 1), math.NewVec3(0.02, 0.02, 0.02), 0.25},
	{"stone", math.NewVec4(0.55, 0.55, 0.6, 1), math.NewVec3(0.05, 0.05, 0.05), 0.3},
	{"tile", math.NewVec4(0.9, 0.9, 0.9, 1), math.NewVec3(0.02, 0.02, 0.02), 0.2},
	{"grass", math.NewVec4(0.3, 0.75, 0.3, 1), math.NewVec3(0.01, 0.01, 0.01), 0.8},
}

// BoxGrid spins a grid of boxes and moves every box to the next material of
// the palette at a fixed period. The left mouse button orbits the camera,
// the right one zooms.
type BoxGrid struct {
	engine   *engine.Engine
	renderer *renderer.Renderer
	scene    *scene.Scene
	camera   *scene.Camera

	boxes      []*box
	width      uint32
	height     uint32
	nextSwap   float64
	swapOffset int

	lastMouseX int32
	lastMouseY int32
}

type box struct {
	item      *scene.RenderItem
	transform *math.Transform
}

var _ engine.Demo = (*BoxGrid)(nil)

func NewBoxGrid() *BoxGrid {
	return &BoxGrid{
		camera:   scene.NewCamera(),
		nextSwap: swapPeriod,
	}
}

func (g *BoxGrid) Load(framesInFlight int) (frame.Counts, error) {
	g.scene = scene.New(framesInFlight)
	for _, p := range palette {
		if _, err := g.scene.AddMaterial(p.name, p.albedo, p.fresnel, p.roughness); err != nil {
			return frame.Counts{}, err
		}
	}

	offset := float32(gridSize-1) * boxSpacing / 2
	for z := 0; z < gridSize; z++ {
		for x := 0; x < gridSize; x++ {
			t := math.TransformFromPosition(math.NewVec3(float32(x)*boxSpacing-offset, 0, float32(z)*boxSpacing-offset))
			material := palette[(x+z)%len(palette)].name
			ri, err := g.scene.AddItem(t.GetWorld(), material)
			if err != nil {
				return frame.Counts{}, err
			}
			g.boxes = append(g.boxes, &box{item: ri, transform: t})
		}
	}
	return g.scene.Counts(1), nil
}

func (g *BoxGrid) Initialize(e *engine.Engine) error {
	g.engine = e
	g.renderer = e.Renderer()
	g.width, g.height = e.GetFramebufferSize()

	// Shaders are optional, missing ones are reported and the grid still
	// clears and binds its constants.
	if _, err := e.Assets().LoadAll(shaderFiles...); err != nil {
		core.LogWarn("Box grid runs without shaders: %s", err)
	}
	core.LogInfo("Box grid ready with %d boxes and %d materials.", len(g.boxes), len(g.scene.Materials()))
	return nil
}

func (g *BoxGrid) Update(timer scene.Timer, fr *frame.FrameResource) error {
	spin := math.NewQuatFromAxisAngle(math.NewVec3Up(), float32(spinSpeed*timer.Delta()), false)
	for _, b := range g.boxes {
		b.transform.Rotate(spin)
		g.scene.SetWorld(b.item, b.transform.GetWorld())
	}

	if timer.Elapsed() >= g.nextSwap {
		g.nextSwap += swapPeriod
		g.swapOffset++
		g.swapMaterials()
	}

	g.scene.UpdateObjectConstants(fr)
	g.scene.UpdateMaterialConstants(fr)
	g.scene.UpdatePassConstants(fr, g.camera, timer, g.width, g.height)
	return nil
}

func (g *BoxGrid) swapMaterials() {
	materials := g.scene.Materials()
	for i, b := range g.boxes {
		g.scene.SetMaterial(b.item, materials[(i+g.swapOffset)%len(materials)])
	}
}

func (g *BoxGrid) Draw(list gfx.CommandList, fr *frame.FrameResource) error {
	for _, b := range g.boxes {
		g.renderer.BindItem(list, fr, b.item)
	}
	return nil
}

func (g *BoxGrid) OnResize(width, height uint32) {
	g.width, g.height = width, height
	g.camera.SetLens(0.25*math.PI, float32(width)/float32(height), 1, 1000)
}

func (g *BoxGrid) OnMouseDown(button platform.MouseButton, x, y int32) {
	g.lastMouseX, g.lastMouseY = x, y
}

func (g *BoxGrid) OnMouseUp(button platform.MouseButton, x, y int32) {}

func (g *BoxGrid) OnMouseMove(buttons platform.MouseButtons, x, y int32) {
	dx := float32(x - g.lastMouseX)
	dy := float32(y - g.lastMouseY)
	switch {
	case buttons.Has(platform.MouseButtonLeft):
		// A quarter of a degree per pixel.
		g.camera.Rotate(math.DegToRad(0.25*dx), math.DegToRad(0.25*dy))
	case buttons.Has(platform.MouseButtonRight):
		g.camera.Zoom(0.05 * (dx - dy))
	}
	g.lastMouseX, g.lastMouseY = x, y
}

func (g *BoxGrid) Shutdown() error {
	core.LogInfo("Box grid rendered %d frames.", g.engine.FrameCount())
	return nil
}

func (g *BoxGrid) Scene() *scene.Scene {
	return g.scene
}

func (g *BoxGrid) Camera() *scene.Camera {
	return g.camera
}
