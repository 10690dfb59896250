package tessera

// Projection maps logical (i, j, k) coordinates to screen space.
//
//	| x |   | m00 m01 m02 |   | i |   | X0 |
//	| y | = | m10 m11 m12 | * | j | + | Y0 |
//	| z |   | m20 m21 m22 |   | k |   | 0  |
//
// z is not a screen axis; it orders elements within a layer.
type Projection struct {
	Matrix [3][3]float64
	X0, Y0 float64
}

// IdentityProjection maps i to x and j to y one-to-one, with k as depth.
var IdentityProjection = Projection{Matrix: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// Project returns the screen-space position of (i, j, k).
func (p Projection) Project(i, j, k float64) Vec3 {
	m := &p.Matrix
	return Vec3{
		X: m[0][0]*i + m[0][1]*j + m[0][2]*k + p.X0,
		Y: m[1][0]*i + m[1][1]*j + m[1][2]*k + p.Y0,
		Z: m[2][0]*i + m[2][1]*j + m[2][2]*k,
	}
}

// Unproject returns the logical (i, j) that projects to screen point (x, y)
// on layer k. The i/j block of the matrix must be invertible; this is not
// checked.
func (p Projection) Unproject(x, y, k float64) (i, j float64) {
	m := &p.Matrix
	// Move the layer and origin terms to the left-hand side, then solve the
	// remaining 2x2 system.
	rx := x - p.X0 - m[0][2]*k
	ry := y - p.Y0 - m[1][2]*k
	a, b := m[0][0], m[0][1]
	c, d := m[1][0], m[1][1]
	invDet := 1.0 / (a*d - b*c)
	i = (d*rx - b*ry) * invDet
	j = (a*ry - c*rx) * invDet
	return i, j
}
