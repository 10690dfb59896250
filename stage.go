package tessera

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

const (
	defaultTickPeriod   = 16 // ms
	defaultScreenWidth  = 640
	defaultScreenHeight = 480
)

// EventSink receives stage events. The ecs package provides a sink that
// publishes them into a donburi world.
type EventSink interface {
	EmitEvent(event StageEvent)
}

// EventFunc adapts a function to an EventSink.
type EventFunc func(event StageEvent)

// EmitEvent calls f(event).
func (f EventFunc) EmitEvent(event StageEvent) {
	f(event)
}

// StageEvent describes something that happened on a stage during a tick or
// a runtime edit.
type StageEvent struct {
	Type EventType
	Time int64 // stage clock in ms

	Instance *Instance
	// Other is the instance touched, for contacts between instances. Nil
	// for tile contacts.
	Other *Instance
	// Correction is the displacement applied for a contact.
	Correction Vector

	// Tile is the placement after a tile change; ID is NoTile on removal.
	Tile Placement
	// Cleared lists the mutable tiles a tile change removed.
	Cleared []Placement

	// From and To are the states of a state change.
	From, To string
}

// StageConfig configures a Stage. Zero fields take defaults.
type StageConfig struct {
	// Grid sizes the spatial buckets. Defaults to the screen size, which
	// keeps every viewport query within four buckets.
	Grid GridConfig

	// ScreenWidth and ScreenHeight are the render surface size in pixels.
	// Default 640x480.
	ScreenWidth, ScreenHeight int

	// TickPeriod is the fixed step in ms that animations are sampled at.
	// Default 16.
	TickPeriod int64

	// PathEpsilon relaxes FindPath optimality: paths cost at most
	// (1+PathEpsilon) times the optimum. Default 0 (exact).
	PathEpsilon float64

	// Gravity accelerates physics instances along +j, in logical units per
	// second squared.
	Gravity float64

	// Collides overrides tile solidity for physics; nil uses the solid flag.
	Collides CollidesFunc

	// Blocks decides whether physics instance a is pushed out of b when
	// their boxes overlap. Nil blocks only between two physics instances.
	// Overlaps are reported as contacts either way.
	Blocks func(a, b *Instance) bool

	// Images resolves frame ids for Draw and Prerender.
	Images ImageProvider

	// Events receives stage events; nil discards them.
	Events EventSink

	// Debug enables stats logging to stderr.
	Debug bool
}

// Stage owns the tile map, the spatial grid, and the live instances of one
// level, and keeps them consistent.
type Stage struct {
	data     *StageData
	cfg      StageConfig
	tiles    *TileMap
	grid     *Grid
	viewport *Viewport
	images   ImageProvider
	events   EventSink

	instances []*Instance
	nextID    int
	now       int64
	period    int64

	debug bool
	stats Stats
}

// NewStage validates data and builds a stage from it: the map layers are
// loaded into the tile map and grid, and the initial instances are spawned.
// data.Map is not used after NewStage returns.
func NewStage(data *StageData, cfg StageConfig) (*Stage, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if cfg.ScreenWidth <= 0 {
		cfg.ScreenWidth = defaultScreenWidth
	}
	if cfg.ScreenHeight <= 0 {
		cfg.ScreenHeight = defaultScreenHeight
	}
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = defaultTickPeriod
	}
	if cfg.Grid.BucketWidth <= 0 {
		cfg.Grid.BucketWidth = float64(cfg.ScreenWidth)
	}
	if cfg.Grid.BucketHeight <= 0 {
		cfg.Grid.BucketHeight = float64(cfg.ScreenHeight)
	}

	s := &Stage{
		data:     data,
		cfg:      cfg,
		tiles:    NewTileMap(data.Tiles),
		grid:     NewGrid(data, cfg.Grid),
		viewport: newViewport(float64(cfg.ScreenWidth), float64(cfg.ScreenHeight)),
		images:   cfg.Images,
		events:   cfg.Events,
		period:   cfg.TickPeriod,
		debug:    cfg.Debug,
	}
	s.tiles.Epsilon = cfg.PathEpsilon
	s.grid.Synchronize(cfg.TickPeriod)

	for _, layer := range data.Map {
		for row, ids := range layer.Rows {
			for col, id := range ids {
				if id == NoTile {
					continue
				}
				i, j := layer.I0+col, layer.J0+row
				if !s.tiles.PutAt(i, j, layer.K, id) {
					return nil, fmt.Errorf("tessera: map layer %d: tile %d at (%d,%d) overlaps a fixed tile",
						layer.K, id, i, j)
				}
			}
		}
	}
	s.tiles.ForEachTile(func(p Placement) {
		s.grid.AddTile(p.ID, p.I, p.J, p.K)
	})

	for _, inst := range data.Instances {
		s.Spawn(inst.Entity, inst.I, inst.J, inst.K, inst.Properties)
	}
	return s, nil
}

// Data returns the stage data the stage was built from.
func (s *Stage) Data() *StageData {
	return s.data
}

// Config returns the effective configuration.
func (s *Stage) Config() StageConfig {
	return s.cfg
}

// TileMap returns the stage's tile map. Edit tiles through the stage so the
// grid stays in step.
func (s *Stage) TileMap() *TileMap {
	return s.tiles
}

// Grid returns the stage's spatial grid.
func (s *Stage) Grid() *Grid {
	return s.grid
}

// Viewport returns the stage's viewport.
func (s *Stage) Viewport() *Viewport {
	return s.viewport
}

// Time returns the stage clock in ms.
func (s *Stage) Time() int64 {
	return s.now
}

// TickPeriod returns the period animations are currently sampled at.
func (s *Stage) TickPeriod() int64 {
	return s.period
}

// SetImages sets the provider used by Draw and Prerender.
func (s *Stage) SetImages(images ImageProvider) {
	s.images = images
}

// SetEventSink sets the receiver of stage events; nil discards them.
func (s *Stage) SetEventSink(sink EventSink) {
	s.events = sink
}

// SetDebugMode enables or disables per-tick stats logging to stderr.
func (s *Stage) SetDebugMode(enabled bool) {
	s.debug = enabled
}

// Synchronize resamples animations at a new tick period in ms. Call between
// ticks only.
func (s *Stage) Synchronize(period int64) {
	s.period = period
	s.grid.Synchronize(period)
}

func (s *Stage) emit(e StageEvent) {
	if s.events == nil {
		return
	}
	e.Time = s.now
	s.events.EmitEvent(e)
}

// --- Instances ---

// Spawn places entity id at logical (i, j, k) with its own copy of props. An
// unknown id panics with *UnknownIDError.
func (s *Stage) Spawn(id int, i, j, k float64, props map[string]any) *Instance {
	desc := s.data.entity(id)
	s.nextID++
	inst := &Instance{
		stage: s,
		id:    s.nextID,
		elem:  s.grid.AddEntity(id, i, j, k),
		desc:  desc,
		props: cloneProperties(props),
		i:     i, j: j, k: k,
		prevI: i, prevJ: j,
	}
	s.instances = append(s.instances, inst)
	s.emit(StageEvent{Type: EventSpawn, Instance: inst})
	return inst
}

// Instances returns the live instances in spawn order. The slice is a copy.
func (s *Stage) Instances() []*Instance {
	out := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		if !inst.removed {
			out = append(out, inst)
		}
	}
	return out
}

// FindInstances returns the live instances, in spawn order, whose properties
// match filter. Keys an instance lacks are looked up in its entity
// descriptor's properties.
func (s *Stage) FindInstances(filter PropertyFilter) []*Instance {
	var out []*Instance
	for _, inst := range s.instances {
		if !inst.removed && inst.Matches(filter) {
			out = append(out, inst)
		}
	}
	return out
}

// FindPath returns the moves from the cell holding inst to (targetI, targetJ)
// on the instance's layer, or nil when the target is unreachable.
func (s *Stage) FindPath(inst *Instance, targetI, targetJ int) []Step {
	return s.tiles.FindPath(floorInt(inst.i), floorInt(inst.j), inst.Layer(), targetI, targetJ)
}

// CellAt returns the map cell of layer k under surface pixel (sx, sy).
func (s *Stage) CellAt(sx, sy float64, k int) (i, j int) {
	x, y := s.viewport.ScreenToWorld(sx, sy)
	fi, fj := s.grid.Projection().Unproject(x, y, float64(k))
	return floorInt(fi), floorInt(fj)
}

// --- Tiles ---

// TileAt returns the tile id covering (i, j, k).
func (s *Stage) TileAt(i, j, k int) (int, bool) {
	return s.tiles.GetAt(i, j, k)
}

// PutTile places tile id with its reference cell at (i, j, k), removing the
// mutable tiles in its footprint. It returns false and changes nothing when
// the footprint touches a fixed tile. An unknown id panics with
// *UnknownIDError.
func (s *Stage) PutTile(i, j, k, id int) bool {
	cleared, ok := s.tiles.Place(i, j, k, id)
	if !ok {
		return false
	}
	for _, p := range cleared {
		s.grid.RemoveTile(p.I, p.J, p.K)
	}
	s.grid.AddTile(id, i, j, k)
	s.emit(StageEvent{Type: EventTileChange, Tile: Placement{I: i, J: j, K: k, ID: id}, Cleared: cleared})
	return true
}

// RemoveTile removes the mutable tile covering (i, j, k). It returns false
// when the cell is empty or the tile is fixed.
func (s *Stage) RemoveTile(i, j, k int) bool {
	p, ok := s.tiles.RemoveAt(i, j, k)
	if !ok {
		return false
	}
	s.grid.RemoveTile(p.I, p.J, p.K)
	s.emit(StageEvent{Type: EventTileChange, Tile: Placement{I: p.I, J: p.J, K: p.K, ID: NoTile}, Cleared: []Placement{p}})
	return true
}

// ReplaceTile swaps the mutable tile covering (i, j, k) for tile id, keeping
// its reference cell. It returns false when the cell is empty, the tile is
// fixed, or the new footprint touches a fixed tile.
func (s *Stage) ReplaceTile(i, j, k, id int) bool {
	ri, rj, old, ok := s.tiles.reference(i, j, k)
	if !ok || !s.tiles.descriptor(old).Mutable {
		return false
	}
	return s.PutTile(ri, rj, k, id)
}

// --- Tick ---

// Advance runs one fixed step of period ms: the clock is sampled once, then
// every brain runs, then physics integrates and resolves collisions for
// every physics instance, and only then are drawn positions updated.
func (s *Stage) Advance(period int64) {
	var t0 time.Time
	if s.debug {
		t0 = time.Now()
	}

	s.now += period
	s.grid.SetTime(s.now)
	dt := float64(period)

	live := s.Instances()
	for _, inst := range live {
		if inst.brain != nil && !inst.removed {
			inst.brain.Update(dt)
		}
	}

	var bodies []*Instance
	for _, inst := range live {
		if !inst.removed && inst.desc.Physics {
			bodies = append(bodies, inst)
		}
	}
	for _, inst := range bodies {
		inst.contact = Vector{}
		inst.integrate(dt/1000, s.cfg.Gravity)
		s.collideTiles(inst)
	}
	for _, a := range bodies {
		if !a.removed {
			s.collideInstances(a, live)
		}
	}

	for _, inst := range live {
		inst.sync()
	}
	s.viewport.update(float32(dt / 1000))
	s.compact()

	if s.debug {
		s.stats.TickTime = time.Since(t0)
		s.stats.Instances = len(s.instances)
		s.stats.Elements = s.grid.Len()
	}
}

func (s *Stage) collideTiles(inst *Instance) {
	box := inst.Box()
	di, dj := inst.displacement()
	c := s.tiles.RectangleCollision(inst.Layer(), box.X, box.Y, box.Width, box.Height, di, dj, s.cfg.Collides)
	if c.IsZero() {
		return
	}
	inst.correct(c)
	s.emit(StageEvent{Type: EventContact, Instance: inst, Correction: c})
}

func (s *Stage) collideInstances(a *Instance, live []*Instance) {
	for _, b := range live {
		if b == a || b.removed || b.Layer() != a.Layer() {
			continue
		}
		abox, bbox := a.Box(), b.Box()
		if !abox.Overlaps(bbox) {
			continue
		}
		var c Vector
		if s.blocks(a, b) {
			di, dj := a.displacement()
			c = BoxCollision(abox, bbox, di, dj)
			a.correct(c)
		}
		s.emit(StageEvent{Type: EventContact, Instance: a, Other: b, Correction: c})
	}
}

func (s *Stage) blocks(a, b *Instance) bool {
	if s.cfg.Blocks != nil {
		return s.cfg.Blocks(a, b)
	}
	return a.desc.Physics && b.desc.Physics
}

// compact drops removed instances.
func (s *Stage) compact() {
	n := 0
	for _, inst := range s.instances {
		if !inst.removed {
			s.instances[n] = inst
			n++
		}
	}
	clear(s.instances[n:])
	s.instances = s.instances[:n]
}

// --- Drawing ---

// Prerender flattens the static tiles placed so far. Call once, after the
// stage is loaded and before any fixed tile changes.
func (s *Stage) Prerender() {
	s.grid.Prerender(s.imageProvider())
}

// Draw renders the elements under the viewport onto screen.
func (s *Stage) Draw(screen *ebiten.Image) {
	var t0 time.Time
	if s.debug {
		t0 = time.Now()
	}
	s.grid.SetViewport(s.viewport.Rect())
	s.grid.Draw(screen, s.imageProvider())
	if s.debug {
		s.stats.DrawTime = time.Since(t0)
		s.stats.Emitted = s.grid.lastEmitted
		s.stats.Buckets = s.grid.lastBuckets
		s.stats.Composites = len(s.grid.composites)
		s.debugLog()
	}
}

func (s *Stage) imageProvider() ImageProvider {
	if s.images == nil {
		return ImageMap(nil)
	}
	return s.images
}
