package tessera

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// scrollAnim holds active scroll-to tweens for viewport X and Y.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// Viewport is the window into a stage's screen space. X and Y are the
// screen-space point it centers on; Width and Height are the surface size in
// pixels.
type Viewport struct {
	X, Y          float64
	Width, Height float64

	followTarget  *Instance
	followOffsetX float64
	followOffsetY float64
	followLerp    float64

	// BoundsEnabled clamps the viewport so the visible area stays within
	// Bounds.
	BoundsEnabled bool
	Bounds        Rect

	scrollTween *scrollAnim
}

// newViewport creates a viewport whose top-left corner sits at the screen
// origin.
func newViewport(w, h float64) *Viewport {
	return &Viewport{X: w / 2, Y: h / 2, Width: w, Height: h}
}

// Rect returns the visible screen-space rectangle.
func (v *Viewport) Rect() Rect {
	return Rect{X: v.X - v.Width/2, Y: v.Y - v.Height/2, Width: v.Width, Height: v.Height}
}

// ScreenToWorld converts a surface pixel to a stage screen-space point.
func (v *Viewport) ScreenToWorld(sx, sy float64) (x, y float64) {
	r := v.Rect()
	return sx + r.X, sy + r.Y
}

// WorldToScreen converts a stage screen-space point to a surface pixel.
func (v *Viewport) WorldToScreen(x, y float64) (sx, sy float64) {
	r := v.Rect()
	return x - r.X, y - r.Y
}

// Follow makes the viewport track the center of an instance's projected
// rectangle with the given offset and lerp factor. A lerp of 1.0 snaps
// immediately; lower values give smoother following.
func (v *Viewport) Follow(inst *Instance, offsetX, offsetY, lerp float64) {
	v.followTarget = inst
	v.followOffsetX = offsetX
	v.followOffsetY = offsetY
	v.followLerp = lerp
}

// Unfollow stops tracking the current target.
func (v *Viewport) Unfollow() {
	v.followTarget = nil
}

// ScrollTo animates the viewport center to (x, y) over duration seconds.
func (v *Viewport) ScrollTo(x, y float64, duration float32, easeFn ease.TweenFunc) {
	v.scrollTween = &scrollAnim{
		tweenX: gween.New(float32(v.X), float32(x), duration, easeFn),
		tweenY: gween.New(float32(v.Y), float32(y), duration, easeFn),
	}
}

// Scrolling reports whether a ScrollTo animation is in progress.
func (v *Viewport) Scrolling() bool {
	return v.scrollTween != nil
}

// SetBounds enables bounds clamping.
func (v *Viewport) SetBounds(bounds Rect) {
	v.BoundsEnabled = true
	v.Bounds = bounds
}

// ClearBounds disables bounds clamping.
func (v *Viewport) ClearBounds() {
	v.BoundsEnabled = false
}

// ClampToBounds immediately clamps the viewport position. No-op if
// BoundsEnabled is false.
func (v *Viewport) ClampToBounds() {
	if v.BoundsEnabled {
		v.clampToBounds()
	}
}

// update advances follow, scroll, and bounds clamping by dt seconds.
func (v *Viewport) update(dt float32) {
	if t := v.followTarget; t != nil {
		if t.IsRemoved() {
			v.followTarget = nil
		} else {
			r := t.elem.ProjectedRect()
			targetX := r.X + r.Width/2 + v.followOffsetX
			targetY := r.Y + r.Height/2 + v.followOffsetY
			v.X += (targetX - v.X) * v.followLerp
			v.Y += (targetY - v.Y) * v.followLerp
		}
	}

	if v.scrollTween != nil {
		if !v.scrollTween.doneX {
			val, done := v.scrollTween.tweenX.Update(dt)
			v.X = float64(val)
			v.scrollTween.doneX = done
		}
		if !v.scrollTween.doneY {
			val, done := v.scrollTween.tweenY.Update(dt)
			v.Y = float64(val)
			v.scrollTween.doneY = done
		}
		if v.scrollTween.doneX && v.scrollTween.doneY {
			v.scrollTween = nil
		}
	}

	if v.BoundsEnabled {
		v.clampToBounds()
	}
}

// clampToBounds keeps the visible area within Bounds, centering on Bounds
// when it is smaller than the viewport.
func (v *Viewport) clampToBounds() {
	halfW := v.Width / 2
	halfH := v.Height / 2

	minX := v.Bounds.X + halfW
	maxX := v.Bounds.X + v.Bounds.Width - halfW
	minY := v.Bounds.Y + halfH
	maxY := v.Bounds.Y + v.Bounds.Height - halfH

	if minX > maxX {
		v.X = v.Bounds.X + v.Bounds.Width/2
	} else {
		v.X = math.Max(minX, math.Min(v.X, maxX))
	}
	if minY > maxY {
		v.Y = v.Bounds.Y + v.Bounds.Height/2
	} else {
		v.Y = math.Max(minY, math.Min(v.Y, maxY))
	}
}
