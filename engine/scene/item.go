package scene

import "github.com/spaghettifunk/luminax/engine/math"

// Material is a surface description mirrored into the material constant
// buffer of every frame resource.
type Material struct {
	Name string
	// Slot in the material constant buffer.
	MatCBIndex int

	DiffuseAlbedo math.Vec4
	FresnelR0     math.Vec3
	Roughness     float32
	MatTransform  math.Mat4

	// Number of frame resources still holding stale constants for this
	// material. Every frame resource has its own copy, so a change is
	// written once per slot.
	NumFramesDirty int
}

func (m *Material) MarkDirty(frames int) {
	m.NumFramesDirty = frames
}

// RenderItem is one draw of a shape with a material.
type RenderItem struct {
	World        math.Mat4
	TexTransform math.Mat4

	// Slot in the object constant buffer.
	ObjCBIndex int
	// Index of the material in the owning scene.
	MaterialIndex int

	// Same meaning as Material.NumFramesDirty.
	NumFramesDirty int
}

func (ri *RenderItem) MarkDirty(frames int) {
	ri.NumFramesDirty = frames
}
