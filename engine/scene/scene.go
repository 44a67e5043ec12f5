// Package scene keeps the CPU copy of everything that ends up in the
// constant buffers and writes it into the frame resource being recorded.
package scene

import (
	"fmt"

	"github.com/spaghettifunk/luminax/engine/math"
	"github.com/spaghettifunk/luminax/engine/renderer/frame"
)

// Timer is what pass constants need from the frame clock, in seconds.
type Timer interface {
	Elapsed() float64
	Delta() float64
}

type Scene struct {
	framesInFlight int

	items     []*RenderItem
	materials []*Material
	byName    map[string]int

	AmbientLight math.Vec4
	Lights       []frame.Light

	pass frame.PassConstants
}

// New creates an empty scene feeding a ring of framesInFlight resources.
func New(framesInFlight int) *Scene {
	return &Scene{
		framesInFlight: framesInFlight,
		byName:         make(map[string]int),
		AmbientLight:   math.NewVec4(0.25, 0.25, 0.35, 1),
		Lights: []frame.Light{
			{Direction: math.NewVec3(0.57735, -0.57735, 0.57735), Strength: math.NewVec3(0.6, 0.6, 0.6)},
			{Direction: math.NewVec3(-0.57735, -0.57735, 0.57735), Strength: math.NewVec3(0.3, 0.3, 0.3)},
			{Direction: math.NewVec3(0, -0.707, -0.707), Strength: math.NewVec3(0.15, 0.15, 0.15)},
		},
	}
}

func (s *Scene) FramesInFlight() int {
	return s.framesInFlight
}

// AddMaterial registers a material under a unique name.
func (s *Scene) AddMaterial(name string, albedo math.Vec4, fresnel math.Vec3, roughness float32) (*Material, error) {
	if _, ok := s.byName[name]; ok {
		return nil, fmt.Errorf("material %q already exists", name)
	}
	m := &Material{
		Name:           name,
		MatCBIndex:     len(s.materials),
		DiffuseAlbedo:  albedo,
		FresnelR0:      fresnel,
		Roughness:      roughness,
		MatTransform:   math.NewMat4Identity(),
		NumFramesDirty: s.framesInFlight,
	}
	s.byName[name] = m.MatCBIndex
	s.materials = append(s.materials, m)
	return m, nil
}

func (s *Scene) Material(name string) (*Material, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.materials[i], true
}

// AddItem places a new render item using the named material.
func (s *Scene) AddItem(world math.Mat4, material string) (*RenderItem, error) {
	m, ok := s.Material(material)
	if !ok {
		return nil, fmt.Errorf("render item uses unknown material %q", material)
	}
	ri := &RenderItem{
		World:          world,
		TexTransform:   math.NewMat4Identity(),
		ObjCBIndex:     len(s.items),
		MaterialIndex:  m.MatCBIndex,
		NumFramesDirty: s.framesInFlight,
	}
	s.items = append(s.items, ri)
	return ri, nil
}

func (s *Scene) Items() []*RenderItem {
	return s.items
}

func (s *Scene) Materials() []*Material {
	return s.materials
}

// SetWorld moves an item and schedules the new transform for every slot.
func (s *Scene) SetWorld(ri *RenderItem, world math.Mat4) {
	ri.World = world
	ri.MarkDirty(s.framesInFlight)
}

// SetMaterial switches the material of an item.
func (s *Scene) SetMaterial(ri *RenderItem, m *Material) {
	ri.MaterialIndex = m.MatCBIndex
	ri.MarkDirty(s.framesInFlight)
}

// Counts sizes frame resources able to hold this scene.
func (s *Scene) Counts(passes int) frame.Counts {
	return frame.Counts{
		Passes:    passes,
		Objects:   max(len(s.items), 1),
		Materials: len(s.materials),
	}
}

// UpdateObjectConstants writes the items still dirty into fr.
func (s *Scene) UpdateObjectConstants(fr *frame.FrameResource) {
	for _, ri := range s.items {
		if ri.NumFramesDirty <= 0 {
			continue
		}
		// Shaders read matrices column major.
		fr.ObjectCB.CopyData(ri.ObjCBIndex, frame.ObjectConstants{
			World:        ri.World.Transposed(),
			TexTransform: ri.TexTransform.Transposed(),
		})
		ri.NumFramesDirty--
	}
}

// UpdateMaterialConstants writes the materials still dirty into fr.
func (s *Scene) UpdateMaterialConstants(fr *frame.FrameResource) {
	if fr.MaterialCB == nil {
		return
	}
	for _, m := range s.materials {
		if m.NumFramesDirty <= 0 {
			continue
		}
		fr.MaterialCB.CopyData(m.MatCBIndex, frame.MaterialConstants{
			DiffuseAlbedo: m.DiffuseAlbedo,
			FresnelR0:     m.FresnelR0,
			Roughness:     m.Roughness,
			MatTransform:  m.MatTransform.Transposed(),
		})
		m.NumFramesDirty--
	}
}

// UpdatePassConstants rebuilds the main pass from the camera and the clock
// and writes it into pass slot 0 of fr.
func (s *Scene) UpdatePassConstants(fr *frame.FrameResource, cam *Camera, timer Timer, width, height uint32) {
	view := cam.GetView()
	proj := cam.GetProjection()
	viewProj := view.Mul(proj)

	pc := frame.PassConstants{
		View:                view.Transposed(),
		InvView:             view.Inverse().Transposed(),
		Proj:                proj.Transposed(),
		InvProj:             proj.Inverse().Transposed(),
		ViewProj:            viewProj.Transposed(),
		InvViewProj:         viewProj.Inverse().Transposed(),
		EyePosW:             cam.Position(),
		RenderTargetSize:    math.NewVec2(float32(width), float32(height)),
		InvRenderTargetSize: math.NewVec2(1/float32(width), 1/float32(height)),
		NearZ:               cam.NearZ,
		FarZ:                cam.FarZ,
		TotalTime:           float32(timer.Elapsed()),
		DeltaTime:           float32(timer.Delta()),
		AmbientLight:        s.AmbientLight,
	}
	copy(pc.Lights[:], s.Lights)
	s.pass = pc
	fr.PassCB.CopyData(0, pc)
}

// PassConstants returns the last main pass written.
func (s *Scene) PassConstants() frame.PassConstants {
	return s.pass
}
