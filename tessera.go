package tessera

import "math"

// ImageID identifies a drawable in an ImageProvider. Stage data only uses
// non-negative ids; negative ids are reserved for prerendered composites.
type ImageID int

// Vec3 is a projected screen-space position. Z is the depth used to order
// elements within a layer.
type Vec3 struct {
	X, Y, Z float64
}

// Vector is a logical (i, j) displacement: a collision correction, a path
// step, or a velocity.
type Vector struct {
	I, J float64
}

// IsZero reports whether both components are zero.
func (v Vector) IsZero() bool {
	return v.I == 0 && v.J == 0
}

// Rect is an axis-aligned rectangle. The coordinate system has its origin at
// the top-left, with Y increasing downward.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.Width &&
		r.X+r.Width >= other.X &&
		r.Y <= other.Y+other.Height &&
		r.Y+r.Height >= other.Y
}

// Overlaps reports whether r and other share a non-empty interior.
// Rectangles that only touch along an edge do not overlap.
func (r Rect) Overlaps(other Rect) bool {
	return r.X < other.X+other.Width &&
		r.X+r.Width > other.X &&
		r.Y < other.Y+other.Height &&
		r.Y+r.Height > other.Y
}

// Union returns the smallest rectangle containing both r and other.
func (r Rect) Union(other Rect) Rect {
	minX := math.Min(r.X, other.X)
	minY := math.Min(r.Y, other.Y)
	maxX := math.Max(r.X+r.Width, other.X+other.Width)
	maxY := math.Max(r.Y+r.Height, other.Y+other.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Intersection returns the overlapping area of r and other. The result has
// zero size when they do not overlap.
func (r Rect) Intersection(other Rect) Rect {
	minX := math.Max(r.X, other.X)
	minY := math.Max(r.Y, other.Y)
	maxX := math.Min(r.X+r.Width, other.X+other.Width)
	maxY := math.Min(r.Y+r.Height, other.Y+other.Height)
	if maxX <= minX || maxY <= minY {
		return Rect{X: minX, Y: minY}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ElementKind distinguishes what a placed element was created from.
type ElementKind uint8

const (
	KindTile      ElementKind = iota // placed from a tile descriptor
	KindEntity                       // placed from an entity descriptor
	KindComposite                    // prerendered union of static tiles
)

// EventType identifies a kind of stage event delivered to an EventSink.
type EventType uint8

const (
	EventSpawn       EventType = iota // an instance was placed
	EventRemove                       // an instance was removed
	EventReplace                      // an instance switched entity descriptor
	EventContact                      // a physics instance was corrected against tiles or another instance
	EventTileChange                   // a tile was put, removed, or replaced at runtime
	EventStateChange                  // an instance brain entered a new state
)

// String returns a readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EventSpawn:
		return "spawn"
	case EventRemove:
		return "remove"
	case EventReplace:
		return "replace"
	case EventContact:
		return "contact"
	case EventTileChange:
		return "tile-change"
	case EventStateChange:
		return "state-change"
	default:
		return "unknown"
	}
}

func floorInt(v float64) int {
	return int(math.Floor(v))
}
