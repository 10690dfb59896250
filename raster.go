package tessera

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

// Raster is an owned offscreen canvas. Prerender composites static tiles
// into rasters; games can also use one as a drawing target for overlays.
type Raster struct {
	image *ebiten.Image
	w, h  int
}

// NewRaster creates a transparent canvas of the given size in pixels.
func NewRaster(w, h int) *Raster {
	return &Raster{
		image: ebiten.NewImage(w, h),
		w:     w,
		h:     h,
	}
}

// Image returns the underlying *ebiten.Image.
func (r *Raster) Image() *ebiten.Image {
	return r.image
}

// Width returns the canvas width in pixels.
func (r *Raster) Width() int {
	return r.w
}

// Height returns the canvas height in pixels.
func (r *Raster) Height() int {
	return r.h
}

// Clear fills the canvas with transparent black.
func (r *Raster) Clear() {
	r.image.Clear()
}

// Fill fills the entire canvas with c.
func (r *Raster) Fill(c color.Color) {
	r.image.Fill(c)
}

// DrawImageAt draws src with its top-left corner at (x, y).
func (r *Raster) DrawImageAt(src *ebiten.Image, x, y float64) {
	var op ebiten.DrawImageOptions
	op.GeoM.Translate(x, y)
	r.image.DrawImage(src, &op)
}

// Resize deallocates the old canvas and creates a new transparent one.
func (r *Raster) Resize(w, h int) {
	if r.image != nil {
		r.image.Deallocate()
	}
	r.image = ebiten.NewImage(w, h)
	r.w = w
	r.h = h
}

// Dispose releases the canvas. The raster must not be used afterwards.
func (r *Raster) Dispose() {
	if r.image != nil {
		r.image.Deallocate()
		r.image = nil
	}
}
