package tessera

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
)

// ErrReplacedElement is the panic value cause when an element handle is used
// after Replace handed its place to a new handle.
var ErrReplacedElement = errors.New("tessera: element handle was replaced")

// ErrRemovedElement is the panic value cause when Replace is called on an
// element that already left the grid.
var ErrRemovedElement = errors.New("tessera: element handle was removed")

// GridConfig sizes the buckets of a Grid in screen pixels.
type GridConfig struct {
	// BucketWidth and BucketHeight default to twice the largest descriptor
	// extent when zero, so no element spans more than two buckets per axis.
	BucketWidth  float64
	BucketHeight float64
}

type bucketKey struct {
	row, col int
}

// bucketRange is the inclusive block of buckets a rectangle overlaps.
type bucketRange struct {
	r0, r1, c0, c1 int
}

type bucket struct {
	rect   Rect
	layers map[int]*MultiSet[*Element]
}

// Grid is the spatial bucket index of every drawable element of a stage.
// Elements are filed, per depth layer, into each fixed-size screen-space
// bucket their projected rectangle overlaps. Drawing visits only the buckets
// under the viewport.
type Grid struct {
	tiles    map[int]*TileDescriptor
	entities map[int]*EntityDescriptor
	proj     Projection
	anims    *Animations
	cfg      GridConfig

	buckets map[bucketKey]*bucket
	mutable map[cellKey]*Element

	composites  []*composite
	prerendered bool

	viewport Rect
	now      int64
	seq      uint64
	stamp    uint64
	visible  []*Element
	count    int

	lastBuckets int
	lastEmitted int
}

// composite is a prerendered union of static tiles in one bucket layer.
type composite struct {
	raster *Raster
	count  int
}

// NewGrid creates an empty grid over the descriptors and projection of data.
// Animations are sampled against a 16 ms tick period until Synchronize.
func NewGrid(data *StageData, cfg GridConfig) *Grid {
	if cfg.BucketWidth <= 0 || cfg.BucketHeight <= 0 {
		w, h := largestExtent(data)
		if cfg.BucketWidth <= 0 {
			cfg.BucketWidth = math.Max(2*w, 1)
		}
		if cfg.BucketHeight <= 0 {
			cfg.BucketHeight = math.Max(2*h, 1)
		}
	}
	g := &Grid{
		tiles:    data.Tiles,
		entities: data.Entities,
		proj:     data.Projection(),
		anims:    NewAnimations(defaultTickPeriod),
		cfg:      cfg,
		buckets:  make(map[bucketKey]*bucket),
		mutable:  make(map[cellKey]*Element),
	}
	for _, id := range sortedKeys(data.Tiles) {
		if t := data.Tiles[id]; t != nil {
			g.anims.RegisterTile(id, t.Frames)
		}
	}
	for _, id := range sortedKeys(data.Entities) {
		if e := data.Entities[id]; e != nil {
			g.anims.RegisterEntity(id, e.Frames)
		}
	}
	return g
}

func largestExtent(data *StageData) (w, h float64) {
	for _, t := range data.Tiles {
		if t != nil {
			w, h = math.Max(w, t.Width), math.Max(h, t.Height)
		}
	}
	for _, e := range data.Entities {
		if e != nil {
			w, h = math.Max(w, e.Width), math.Max(h, e.Height)
		}
	}
	return w, h
}

// Config returns the effective bucket configuration.
func (g *Grid) Config() GridConfig {
	return g.cfg
}

// Projection returns the projection used to place elements.
func (g *Grid) Projection() Projection {
	return g.proj
}

// Animations returns the shared animation resolver.
func (g *Grid) Animations() *Animations {
	return g.anims
}

// Len returns the number of live elements, counting each composite once.
func (g *Grid) Len() int {
	return g.count
}

// SetTime sets the clock, in milliseconds, used to pick animation frames and
// to stamp newly created elements. Call once per tick so every element
// animates against the same instant.
func (g *Grid) SetTime(ms int64) {
	g.now = ms
}

// Time returns the current clock in milliseconds.
func (g *Grid) Time() int64 {
	return g.now
}

// SetViewport sets the screen-space rectangle ForEachElement draws.
func (g *Grid) SetViewport(r Rect) {
	g.viewport = r
}

// Viewport returns the current viewport rectangle.
func (g *Grid) Viewport() Rect {
	return g.viewport
}

// Synchronize resamples every animated lookup table at a new tick period in
// milliseconds. Must not be called from inside ForEachElement.
func (g *Grid) Synchronize(period int64) {
	g.anims.Synchronize(period)
}

// AddTile places tile id at map cell (i, j, k). Mutable tiles are also
// indexed by cell so RemoveTile and ReplaceTile can find them. An unknown id
// panics with *UnknownIDError before the grid is touched.
func (g *Grid) AddTile(id, i, j, k int) *Element {
	t, ok := g.tiles[id]
	if !ok || t == nil {
		panic(&UnknownIDError{Kind: "tile", ID: id})
	}
	anim, _ := g.anims.TileAnimation(id)
	e := g.newElement(KindTile, id, &t.ElementDescriptor, anim, float64(i), float64(j), float64(k))
	e.mutable = t.Mutable
	e.static = anim.Static() && !t.Mutable
	g.link(e)
	if t.Mutable {
		g.mutable[cellKey{i, j, k}] = e
	}
	return e
}

// AddEntity places entity id at logical (i, j, k). An unknown id panics with
// *UnknownIDError before the grid is touched.
func (g *Grid) AddEntity(id int, i, j, k float64) *Element {
	d, ok := g.entities[id]
	if !ok || d == nil {
		panic(&UnknownIDError{Kind: "entity", ID: id})
	}
	anim, _ := g.anims.EntityAnimation(id)
	e := g.newElement(KindEntity, id, &d.ElementDescriptor, anim, i, j, k)
	g.link(e)
	return e
}

// RemoveTile removes the mutable tile whose reference cell is (i, j, k). It
// returns false when no mutable tile is registered there; fixed tiles can only
// be removed through the handle AddTile returned.
func (g *Grid) RemoveTile(i, j, k int) bool {
	e, ok := g.mutable[cellKey{i, j, k}]
	if !ok {
		return false
	}
	e.Remove()
	return true
}

// ReplaceTile swaps the mutable tile at reference cell (i, j, k) for tile id
// and returns the new handle, or false when no mutable tile is registered
// there.
func (g *Grid) ReplaceTile(i, j, k, id int) (*Element, bool) {
	e, ok := g.mutable[cellKey{i, j, k}]
	if !ok {
		return nil, false
	}
	return e.Replace(id), true
}

// MutableTile returns the handle of the mutable tile at reference cell
// (i, j, k).
func (g *Grid) MutableTile(i, j, k int) (*Element, bool) {
	e, ok := g.mutable[cellKey{i, j, k}]
	return e, ok
}

func (g *Grid) newElement(kind ElementKind, id int, desc *ElementDescriptor, anim *Animation, i, j, k float64) *Element {
	g.seq++
	e := &Element{
		grid: g,
		kind: kind,
		id:   id,
		desc: desc,
		anim: anim,
		born: g.now,
		seq:  g.seq,
	}
	e.place(i, j, k)
	return e
}

func (g *Grid) rangeOf(r Rect) bucketRange {
	c0 := floorInt(r.X / g.cfg.BucketWidth)
	c1 := int(math.Ceil((r.X+r.Width)/g.cfg.BucketWidth)) - 1
	r0 := floorInt(r.Y / g.cfg.BucketHeight)
	r1 := int(math.Ceil((r.Y+r.Height)/g.cfg.BucketHeight)) - 1
	if c1 < c0 {
		c1 = c0
	}
	if r1 < r0 {
		r1 = r0
	}
	return bucketRange{r0: r0, r1: r1, c0: c0, c1: c1}
}

func (g *Grid) bucketAt(key bucketKey) *bucket {
	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{
			rect: Rect{
				X:      float64(key.col) * g.cfg.BucketWidth,
				Y:      float64(key.row) * g.cfg.BucketHeight,
				Width:  g.cfg.BucketWidth,
				Height: g.cfg.BucketHeight,
			},
			layers: make(map[int]*MultiSet[*Element]),
		}
		g.buckets[key] = b
	}
	return b
}

func (b *bucket) layer(k int) *MultiSet[*Element] {
	s, ok := b.layers[k]
	if !ok {
		s = NewMultiSet[*Element]()
		b.layers[k] = s
	}
	return s
}

// link files e into every bucket of its current range.
func (g *Grid) link(e *Element) {
	for r := e.br.r0; r <= e.br.r1; r++ {
		for c := e.br.c0; c <= e.br.c1; c++ {
			g.bucketAt(bucketKey{r, c}).layer(e.layer).Add(e)
		}
	}
	g.count++
}

// unlink removes e from every bucket it was filed in.
func (g *Grid) unlink(e *Element) {
	for r := e.br.r0; r <= e.br.r1; r++ {
		for c := e.br.c0; c <= e.br.c1; c++ {
			if b, ok := g.buckets[bucketKey{r, c}]; ok {
				if s, ok := b.layers[e.layer]; ok {
					s.Remove(e)
				}
			}
		}
	}
	g.count--
}

// bucketCount returns how many buckets hold e on its layer. Used by tests to
// check membership.
func (g *Grid) bucketCount(e *Element) int {
	n := 0
	for _, b := range g.buckets {
		if s, ok := b.layers[e.layer]; ok && s.Has(e) {
			n++
		}
	}
	return n
}

// ForEachElement calls fn for every element whose projected rectangle
// overlaps the viewport, with its position relative to the viewport and the
// animation frame for the current time. Only buckets under the viewport are
// visited. Elements are emitted by ascending layer, then depth, then screen
// y, then creation order.
func (g *Grid) ForEachElement(fn func(x, y float64, frame ImageID)) {
	g.stamp++
	vis := g.visible[:0]
	vp := g.viewport
	br := g.rangeOf(vp)
	visited := 0
	for r := br.r0; r <= br.r1; r++ {
		for c := br.c0; c <= br.c1; c++ {
			b, ok := g.buckets[bucketKey{r, c}]
			if !ok {
				continue
			}
			visited++
			for _, s := range b.layers {
				s.Each(func(e *Element, _ int) {
					if e.stamp == g.stamp {
						return
					}
					e.stamp = g.stamp
					if e.rect.Overlaps(vp) {
						vis = append(vis, e)
					}
				})
			}
		}
	}
	sort.Slice(vis, func(a, b int) bool {
		return vis[a].before(vis[b])
	})
	for _, e := range vis {
		fn(e.rect.X-vp.X, e.rect.Y-vp.Y, e.frame())
	}
	g.lastBuckets = visited
	g.lastEmitted = len(vis)
	clear(vis)
	g.visible = vis[:0]
}

// Composite returns the prerendered image of a composite frame id, or nil if
// id does not name one.
func (g *Grid) Composite(id ImageID) *ebiten.Image {
	idx := -int(id) - 1
	if idx < 0 || idx >= len(g.composites) {
		return nil
	}
	return g.composites[idx].raster.Image()
}

// Draw emits the visible elements onto screen, resolving frame ids through
// images and composite ids through the grid.
func (g *Grid) Draw(screen *ebiten.Image, images ImageProvider) {
	g.ForEachElement(func(x, y float64, frame ImageID) {
		var img *ebiten.Image
		if frame < 0 {
			img = g.Composite(frame)
		} else {
			img = images.Image(frame)
		}
		if img == nil {
			return
		}
		var op ebiten.DrawImageOptions
		op.GeoM.Translate(x, y)
		screen.DrawImage(img, &op)
	})
}

// Prerender flattens, per bucket and layer, all static tiles into one
// composite image covering their union clipped to the bucket. The flattened
// tiles leave the buckets and the composites take their place. Call once,
// after all static content is placed: removing a flattened tile afterwards
// does not erase it from its composite.
func (g *Grid) Prerender(images ImageProvider) {
	keys := make([]bucketKey, 0, len(g.buckets))
	for key := range g.buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].row != keys[b].row {
			return keys[a].row < keys[b].row
		}
		return keys[a].col < keys[b].col
	})

	flattened := make(map[*Element]struct{})
	for _, key := range keys {
		b := g.buckets[key]
		for _, k := range sortedKeys(b.layers) {
			var group []*Element
			b.layers[k].Each(func(e *Element, _ int) {
				if e.static {
					group = append(group, e)
				}
			})
			if len(group) == 0 {
				continue
			}
			sort.Slice(group, func(a, c int) bool { return group[a].before(group[c]) })
			g.flatten(key, b, k, group, images)
			for _, e := range group {
				flattened[e] = struct{}{}
			}
		}
	}
	for e := range flattened {
		g.unlink(e)
		e.flattened = true
	}
	g.prerendered = true
}

func (g *Grid) flatten(key bucketKey, b *bucket, k int, group []*Element, images ImageProvider) {
	area := group[0].rect
	minZ, minSeq := group[0].pos.Z, group[0].seq
	for _, e := range group[1:] {
		area = area.Union(e.rect)
		minZ = math.Min(minZ, e.pos.Z)
		if e.seq < minSeq {
			minSeq = e.seq
		}
	}
	area = area.Intersection(b.rect)
	if area.Width <= 0 || area.Height <= 0 {
		return
	}

	raster := NewRaster(int(math.Ceil(area.Width)), int(math.Ceil(area.Height)))
	for _, e := range group {
		img := images.Image(e.frame())
		if img == nil {
			continue
		}
		raster.DrawImageAt(img, e.rect.X-area.X, e.rect.Y-area.Y)
	}
	g.composites = append(g.composites, &composite{raster: raster, count: len(group)})
	id := ImageID(-len(g.composites))

	// A composite lives in its own bucket only, even when the clipped area
	// ends on the bucket edge.
	c := &Element{
		grid:    g,
		kind:    KindComposite,
		id:      int(id),
		pos:     Vec3{X: area.X, Y: area.Y, Z: minZ},
		rect:    area,
		layer:   k,
		br:      bucketRange{r0: key.row, r1: key.row, c0: key.col, c1: key.col},
		seq:     minSeq,
		imageID: id,
	}
	g.link(c)
}

// Prerendered reports whether Prerender has run.
func (g *Grid) Prerendered() bool {
	return g.prerendered
}

// Element is a handle to a placed tile, entity, or composite in a Grid.
type Element struct {
	grid *Grid
	kind ElementKind
	id   int
	desc *ElementDescriptor
	anim *Animation

	i, j, k float64
	pos     Vec3
	rect    Rect
	layer   int
	br      bucketRange

	born  int64
	seq   uint64
	stamp uint64

	static    bool
	mutable   bool
	removed   bool
	replaced  bool
	flattened bool

	imageID ImageID // composites only
}

// Kind returns what the element was placed from.
func (e *Element) Kind() ElementKind {
	return e.kind
}

// ID returns the tile or entity id the element was placed from.
func (e *Element) ID() int {
	return e.id
}

// Descriptor returns the visual descriptor, nil for composites.
func (e *Element) Descriptor() *ElementDescriptor {
	return e.desc
}

// Position returns the logical coordinates.
func (e *Element) Position() (i, j, k float64) {
	return e.i, e.j, e.k
}

// Layer returns the depth layer, floor(k).
func (e *Element) Layer() int {
	return e.layer
}

// Static reports whether the element is eligible for prerendering.
func (e *Element) Static() bool {
	return e.static
}

// Frame returns the animation frame for the grid's current time.
func (e *Element) Frame() ImageID {
	return e.frame()
}

func (e *Element) frame() ImageID {
	if e.kind == KindComposite {
		return e.imageID
	}
	return e.anim.Frame(e.grid.now - e.born)
}

// place sets the logical position and recomputes the projected geometry and
// bucket range without touching the buckets.
func (e *Element) place(i, j, k float64) {
	e.i, e.j, e.k = i, j, k
	e.pos = e.grid.proj.Project(i, j, k)
	e.rect = Rect{
		X:      e.pos.X + e.desc.OffsetX,
		Y:      e.pos.Y + e.desc.OffsetY,
		Width:  e.desc.Width,
		Height: e.desc.Height,
	}
	e.layer = floorInt(k)
	e.br = e.grid.rangeOf(e.rect)
}

func (e *Element) checkReplaced(op string) {
	if e.replaced {
		panic(fmt.Errorf("%s on %s %d: %w", op, e.kindName(), e.id, ErrReplacedElement))
	}
}

func (e *Element) kindName() string {
	switch e.kind {
	case KindTile:
		return "tile"
	case KindEntity:
		return "entity"
	default:
		return "composite"
	}
}

// UpdatePosition moves the element. It is re-filed only when the move crosses
// a layer or bucket boundary. Flattened tiles keep drawing from their
// composite at the old position.
func (e *Element) UpdatePosition(i, j, k float64) {
	e.checkReplaced("UpdatePosition")
	if e.kind == KindComposite {
		return
	}
	if e.removed || e.flattened {
		e.place(i, j, k)
		return
	}
	oldLayer, oldRange := e.layer, e.br
	e.place(i, j, k)
	if e.layer == oldLayer && e.br == oldRange {
		return
	}
	newLayer, newRange := e.layer, e.br
	e.layer, e.br = oldLayer, oldRange
	e.grid.unlink(e)
	e.layer, e.br = newLayer, newRange
	e.grid.link(e)
}

// Remove takes the element out of every bucket. Removing twice is a no-op;
// removing a replaced handle panics.
func (e *Element) Remove() {
	e.checkReplaced("Remove")
	e.remove()
}

func (e *Element) remove() {
	if e.removed {
		return
	}
	e.removed = true
	if !e.flattened {
		e.grid.unlink(e)
	}
	if e.mutable {
		key := cellKey{int(e.i), int(e.j), int(e.k)}
		if cur, ok := e.grid.mutable[key]; ok && cur == e {
			delete(e.grid.mutable, key)
		}
	}
}

// IsRemoved reports whether the element has left the grid, by Remove or by
// Replace.
func (e *Element) IsRemoved() bool {
	return e.removed
}

// IsReplaced reports whether Replace retired this handle.
func (e *Element) IsReplaced() bool {
	return e.replaced
}

// ProjectedPosition returns the screen-space position of the element's
// logical coordinates.
func (e *Element) ProjectedPosition() Vec3 {
	e.checkReplaced("ProjectedPosition")
	return e.pos
}

// ProjectedRect returns the screen-space rectangle the element draws into.
func (e *Element) ProjectedRect() Rect {
	e.checkReplaced("ProjectedRect")
	return e.rect
}

// Replace removes the element and places descriptor id of the same kind at
// the same position, returning the new handle. The animation restarts. The
// old handle must not be used again; doing so panics with
// ErrReplacedElement. Replacing a removed element panics with
// ErrRemovedElement.
func (e *Element) Replace(id int) *Element {
	e.checkReplaced("Replace")
	if e.removed {
		panic(fmt.Errorf("Replace on %s %d: %w", e.kindName(), e.id, ErrRemovedElement))
	}
	g := e.grid
	switch e.kind {
	case KindTile:
		if t, ok := g.tiles[id]; !ok || t == nil {
			panic(&UnknownIDError{Kind: "tile", ID: id})
		}
		e.remove()
		e.replaced = true
		return g.AddTile(id, int(e.i), int(e.j), int(e.k))
	case KindEntity:
		if d, ok := g.entities[id]; !ok || d == nil {
			panic(&UnknownIDError{Kind: "entity", ID: id})
		}
		e.remove()
		e.replaced = true
		return g.AddEntity(id, e.i, e.j, e.k)
	default:
		panic("tessera: Replace on a composite element")
	}
}

// before orders elements for drawing.
func (e *Element) before(o *Element) bool {
	if e.layer != o.layer {
		return e.layer < o.layer
	}
	if e.pos.Z != o.pos.Z {
		return e.pos.Z < o.pos.Z
	}
	if e.rect.Y != o.rect.Y {
		return e.rect.Y < o.rect.Y
	}
	return e.seq < o.seq
}
