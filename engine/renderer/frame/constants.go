package frame

import "github.com/spaghettifunk/luminax/engine/math"

// MaxLights is the number of light slots in the pass constants.
const MaxLights = 16

// ObjectConstants holds the per-object data read by the vertex stage.
type ObjectConstants struct {
	World        math.Mat4
	TexTransform math.Mat4
}

// Light packs a directional, point or spot light the way the shaders read it.
type Light struct {
	Strength     math.Vec3
	FalloffStart float32
	Direction    math.Vec3
	FalloffEnd   float32
	Position     math.Vec3
	SpotPower    float32
}

// PassConstants holds the data shared by every draw of a render pass.
type PassConstants struct {
	View                math.Mat4
	InvView             math.Mat4
	Proj                math.Mat4
	InvProj             math.Mat4
	ViewProj            math.Mat4
	InvViewProj         math.Mat4
	EyePosW             math.Vec3
	_                   float32
	RenderTargetSize    math.Vec2
	InvRenderTargetSize math.Vec2
	NearZ               float32
	FarZ                float32
	TotalTime           float32
	DeltaTime           float32
	AmbientLight        math.Vec4
	Lights              [MaxLights]Light
}

// MaterialConstants holds the surface parameters of one material.
type MaterialConstants struct {
	DiffuseAlbedo math.Vec4
	FresnelR0     math.Vec3
	Roughness     float32
	MatTransform  math.Mat4
}

func NewObjectConstants() ObjectConstants {
	return ObjectConstants{
		World:        math.NewMat4Identity(),
		TexTransform: math.NewMat4Identity(),
	}
}

func NewMaterialConstants() MaterialConstants {
	return MaterialConstants{
		DiffuseAlbedo: math.NewVec4(1, 1, 1, 1),
		FresnelR0:     math.NewVec3(0.01, 0.01, 0.01),
		Roughness:     0.25,
		MatTransform:  math.NewMat4Identity(),
	}
}
