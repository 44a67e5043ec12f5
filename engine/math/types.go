package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// Quaternion represents a rotational orientation.
type Quaternion Vec4

// Mat4 is a row-major 4x4 matrix. Vectors are treated as rows, so the
// translation lives in elements 12, 13 and 14.
type Mat4 struct {
	Data [16]float32
}

// Transform is a position, rotation and scale with an optional parent whose
// own transform is taken into account.
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
	// Set whenever position, rotation or scale change and the local matrix
	// needs to be recalculated.
	IsDirty bool
	Local   Mat4
	Parent  *Transform
}
