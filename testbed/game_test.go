package testbed

import (
	"context"
	"testing"

	"github.com/spaghettifunk/luminax/engine"
	"github.com/spaghettifunk/luminax/engine/config"
	"github.com/spaghettifunk/luminax/engine/gfx/fake"
	"github.com/spaghettifunk/luminax/engine/math"
	"github.com/spaghettifunk/luminax/engine/platform"
	"github.com/spaghettifunk/luminax/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuildsGrid(t *testing.T) {
	g := NewBoxGrid()
	counts, err := g.Load(3)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Passes)
	assert.Equal(t, gridSize*gridSize, counts.Objects)
	assert.Equal(t, len(palette), counts.Materials)
	for _, ri := range g.Scene().Items() {
		assert.Equal(t, 3, ri.NumFramesDirty)
	}
}

func TestSwapMaterialsMovesEveryBox(t *testing.T) {
	g := NewBoxGrid()
	_, err := g.Load(2)
	require.NoError(t, err)

	g.swapOffset = 1
	g.swapMaterials()
	for i, b := range g.boxes {
		assert.Equal(t, (i+1)%len(palette), b.item.MaterialIndex)
		assert.Equal(t, 2, b.item.NumFramesDirty)
	}
}

func TestMouseOrbitsAndZooms(t *testing.T) {
	g := NewBoxGrid()
	theta, radius := g.Camera().Theta, g.Camera().Radius

	g.OnMouseDown(platform.MouseButtonLeft, 0, 0)
	g.OnMouseMove(platform.MouseButtons(1<<platform.MouseButtonLeft), 40, 0)
	assert.InDelta(t, theta+math.DegToRad(10), g.Camera().Theta, 1e-5)

	g.OnMouseDown(platform.MouseButtonRight, 0, 0)
	g.OnMouseMove(platform.MouseButtons(1<<platform.MouseButtonRight), 20, 0)
	assert.InDelta(t, radius+1, g.Camera().Radius, 1e-5)

	// Plain moves only track the cursor.
	g.OnMouseMove(0, 100, 100)
	assert.InDelta(t, radius+1, g.Camera().Radius, 1e-5)
}

func TestBoxGridRunsHeadless(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Backend = "headless"
	cfg.Assets.ShaderDir = t.TempDir()
	cfg.Application.MaxFrames = 4

	dev := fake.NewDevice(fake.WithAutoComplete())
	g := NewBoxGrid()
	e, err := engine.New(cfg, g, engine.WithBackend(renderer.Backend{Device: dev, Factory: dev.Factory()}))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, uint64(4), e.FrameCount())
	assert.Empty(t, dev.Violations())
	ring := e.Renderer().Ring()
	for _, ri := range g.Scene().Items() {
		// Rewritten every frame, so never more than one slot behind.
		assert.LessOrEqual(t, ri.NumFramesDirty, ring.Len())
	}
	assert.Equal(t, float32(cfg.Window.Width)/float32(cfg.Window.Height), g.Camera().Aspect)
	require.NoError(t, e.Shutdown(context.Background()))
}
