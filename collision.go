package tessera

import "math"

// collisionTolerance is how far a correction may exceed the displacement
// since the previous step and still be applied.
const collisionTolerance = 0.001

// CollidesFunc decides whether a tile blocks movement, given the tile's solid
// flag and custom properties. A nil CollidesFunc uses the solid flag.
type CollidesFunc func(solid bool, properties map[string]any) bool

// RectangleCollision resolves the rectangle [i, i+di) x [j, j+dj) against the
// tiles of layer k and returns the correction that moves it out of the solid
// cells on its boundary.
//
// Di and Dj are the rectangle's displacement since the previous step. A
// correction larger than that displacement (plus a small tolerance) is
// discarded: the rectangle did not move that far into the tile, so it was
// already resting against it. Opposite hits on the same axis cancel.
func (m *TileMap) RectangleCollision(k int, i, j, di, dj, Di, Dj float64, collides CollidesFunc) Vector {
	if di <= 0 || dj <= 0 {
		return Vector{}
	}
	blocked := func(ci, cj int) bool {
		id, ok := m.GetAt(ci, cj, k)
		if !ok {
			return false
		}
		t := m.descriptor(id)
		if collides == nil {
			return t.Solid
		}
		return collides(t.Solid, t.Properties)
	}

	c0 := floorInt(i)
	c1 := int(math.Ceil(i+di)) - 1
	r0 := floorInt(j)
	r1 := int(math.Ceil(j+dj)) - 1

	var left, right, top, bottom bool
	for r := r0; r <= r1; r++ {
		if blocked(c0, r) && !blocked(c0+1, r) {
			left = true
		}
		if blocked(c1, r) && !blocked(c1-1, r) {
			right = true
		}
	}
	for c := c0; c <= c1; c++ {
		if blocked(c, r0) && !blocked(c, r0+1) {
			top = true
		}
		if blocked(c, r1) && !blocked(c, r1-1) {
			bottom = true
		}
	}

	var v Vector
	switch {
	case left && !right:
		v.I = float64(c0+1) - i
	case right && !left:
		v.I = float64(c1) - (i + di)
	}
	switch {
	case top && !bottom:
		v.J = float64(r0+1) - j
	case bottom && !top:
		v.J = float64(r1) - (j + dj)
	}
	return clampCorrection(v, Di, Dj)
}

// BoxCollision resolves box a against box b, both in logical units, and
// returns the correction for a. Di and Dj are a's displacement since its
// previous step and clamp the result as in RectangleCollision.
func BoxCollision(a, b Rect, Di, Dj float64) Vector {
	if !a.Overlaps(b) {
		return Vector{}
	}
	v := Vector{
		I: axisCorrection(a.X, a.X+a.Width, b.X, b.X+b.Width),
		J: axisCorrection(a.Y, a.Y+a.Height, b.Y, b.Y+b.Height),
	}
	return clampCorrection(v, Di, Dj)
}

// axisCorrection moves [a0, a1) clear of whichever edge of [b0, b1) lies
// strictly inside it. Both or neither edge inside means no escape on this axis.
func axisCorrection(a0, a1, b0, b1 float64) float64 {
	nearInside := b0 > a0 && b0 < a1
	farInside := b1 > a0 && b1 < a1
	switch {
	case nearInside && !farInside:
		return b0 - a1
	case farInside && !nearInside:
		return b1 - a0
	}
	return 0
}

func clampCorrection(v Vector, Di, Dj float64) Vector {
	if math.Abs(v.I) > math.Abs(Di)+collisionTolerance {
		v.I = 0
	}
	if math.Abs(v.J) > math.Abs(Dj)+collisionTolerance {
		v.J = 0
	}
	return v
}
