package math

import "github.com/chewxy/math32"

func NewMat4Identity() Mat4 {
	m := Mat4{}
	m.Data[0] = 1
	m.Data[5] = 1
	m.Data[10] = 1
	m.Data[15] = 1
	return m
}

// Mul returns mt * other. With row vectors the transform of mt applies first.
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

// NewMat4PerspectiveLH builds a left-handed perspective projection mapping
// depth into [0, 1].
func NewMat4PerspectiveLH(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	yScale := 1 / math32.Tan(fovRadians*0.5)
	xScale := yScale / aspectRatio
	fRange := farClip / (farClip - nearClip)

	m := Mat4{}
	m.Data[0] = xScale
	m.Data[5] = yScale
	m.Data[10] = fRange
	m.Data[11] = 1
	m.Data[14] = -fRange * nearClip
	return m
}

// NewMat4LookAtLH builds a left-handed view matrix.
func NewMat4LookAtLH(position, target, up Vec3) Mat4 {
	z := target.Sub(position).Normalized()
	x := up.Cross(z).Normalized()
	y := z.Cross(x)

	m := NewMat4Identity()
	m.Data[0] = x.X
	m.Data[1] = y.X
	m.Data[2] = z.X
	m.Data[4] = x.Y
	m.Data[5] = y.Y
	m.Data[6] = z.Y
	m.Data[8] = x.Z
	m.Data[9] = y.Z
	m.Data[10] = z.Z
	m.Data[12] = -x.Dot(position)
	m.Data[13] = -y.Dot(position)
	m.Data[14] = -z.Dot(position)
	return m
}

func (mt Mat4) Transposed() Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out.Data[col*4+row] = mt.Data[row*4+col]
		}
	}
	return out
}

// Determinant of the matrix.
func (mt Mat4) Determinant() float32 {
	m := &mt.Data
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	return s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
}

// Inverse returns the inverse of mt. A singular matrix yields the identity.
func (mt Mat4) Inverse() Mat4 {
	m := &mt.Data
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return NewMat4Identity()
	}
	inv := 1 / det

	out := Mat4{}
	o := &out.Data
	o[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * inv
	o[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * inv
	o[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * inv
	o[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * inv

	o[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * inv
	o[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * inv
	o[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * inv
	o[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * inv

	o[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * inv
	o[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * inv
	o[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * inv
	o[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * inv

	o[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * inv
	o[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * inv
	o[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * inv
	o[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * inv
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[12] = position.X
	m.Data[13] = position.Y
	m.Data[14] = position.Z
	return m
}

func NewMat4Scale(scale Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = scale.X
	m.Data[5] = scale.Y
	m.Data[10] = scale.Z
	return m
}

func NewMat4EulerY(angleRadians float32) Mat4 {
	m := NewMat4Identity()
	c := math32.Cos(angleRadians)
	s := math32.Sin(angleRadians)
	m.Data[0] = c
	m.Data[2] = -s
	m.Data[8] = s
	m.Data[10] = c
	return m
}

// Compare reports whether every element of mt and other differ by at most
// tolerance.
func (mt Mat4) Compare(other Mat4, tolerance float32) bool {
	for i := range mt.Data {
		if math32.Abs(mt.Data[i]-other.Data[i]) > tolerance {
			return false
		}
	}
	return true
}
