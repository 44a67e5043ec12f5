package scene

import "github.com/spaghettifunk/luminax/engine/math"

const (
	minRadius = 5
	maxRadius = 150
	// Keeps the camera off the poles.
	minPhi = 0.1
	maxPhi = math.PI - 0.1
)

// Camera orbits a target on a sphere. Theta is the azimuth, Phi the polar
// angle measured from +Y.
type Camera struct {
	Target math.Vec3
	Theta  float32
	Phi    float32
	Radius float32

	FovY   float32
	Aspect float32
	NearZ  float32
	FarZ   float32

	// Set whenever the view or the projection needs to be rebuilt.
	IsDirty bool

	position   math.Vec3
	view       math.Mat4
	projection math.Mat4
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.Target = math.NewVec3Zero()
	c.Theta = 1.5 * math.PI
	c.Phi = 0.2 * math.PI
	c.Radius = 15
	c.FovY = 0.25 * math.PI
	c.Aspect = 1
	c.NearZ = 1
	c.FarZ = 1000
	c.IsDirty = true
}

func (c *Camera) SetLens(fovY, aspect, nearZ, farZ float32) {
	c.FovY = fovY
	c.Aspect = aspect
	c.NearZ = nearZ
	c.FarZ = farZ
	c.IsDirty = true
}

// Rotate moves the camera around the target, angles in radians.
func (c *Camera) Rotate(dTheta, dPhi float32) {
	c.Theta += dTheta
	c.Phi = math.Clamp(c.Phi+dPhi, minPhi, maxPhi)
	c.IsDirty = true
}

// Zoom changes the distance to the target.
func (c *Camera) Zoom(amount float32) {
	c.Radius = math.Clamp(c.Radius+amount, minRadius, maxRadius)
	c.IsDirty = true
}

func (c *Camera) Position() math.Vec3 {
	c.rebuild()
	return c.position
}

func (c *Camera) GetView() math.Mat4 {
	c.rebuild()
	return c.view
}

func (c *Camera) GetProjection() math.Mat4 {
	c.rebuild()
	return c.projection
}

func (c *Camera) rebuild() {
	if !c.IsDirty {
		return
	}
	c.position = c.Target.Add(math.SphericalToCartesian(c.Radius, c.Theta, c.Phi))
	c.view = math.NewMat4LookAtLH(c.position, c.Target, math.NewVec3Up())
	c.projection = math.NewMat4PerspectiveLH(c.FovY, c.Aspect, c.NearZ, c.FarZ)
	c.IsDirty = false
}
