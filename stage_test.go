package tessera

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
)

const (
	levelFloor = 1 // walkable, fixed
	levelWall  = 2 // solid, fixed
	levelCrate = 3 // solid, mutable
	levelDoor  = 4 // walkable, mutable

	levelHero  = 1 // physics
	levelSlime = 2 // physics
	levelCoin  = 3 // no physics
	levelGhost = 4 // physics, hero replacement
)

// levelData is a walled 6x6 room on layer 0 with a crate at (3,3), and a
// solid ledge along row 4 of layer 1. Cells are 16 px.
func levelData() *StageData {
	el := func(image ImageID) ElementDescriptor {
		return ElementDescriptor{Width: 16, Height: 16, Frames: []Frame{{Image: image}}}
	}
	return &StageData{
		Tiles: map[int]*TileDescriptor{
			levelFloor: {ElementDescriptor: el(1)},
			levelWall:  {ElementDescriptor: el(2), Solid: true},
			levelCrate: {ElementDescriptor: el(3), Solid: true, Mutable: true},
			levelDoor:  {ElementDescriptor: el(4), Mutable: true},
		},
		Entities: map[int]*EntityDescriptor{
			levelHero: {ElementDescriptor: el(10), Box: Box{DI: 1, DJ: 1}, Physics: true,
				Properties: map[string]any{"team": "player"}},
			levelSlime: {ElementDescriptor: el(11), Box: Box{DI: 1, DJ: 1}, Physics: true,
				Properties: map[string]any{"team": "enemy", "kind": "slime"}},
			levelCoin: {ElementDescriptor: el(12), Box: Box{DI: 1, DJ: 1},
				Properties: map[string]any{"kind": "coin"}},
			levelGhost: {ElementDescriptor: el(13), Box: Box{DI: 1, DJ: 1}, Physics: true},
		},
		Map: []MapLayer{
			{K: 0, Rows: [][]int{
				{2, 2, 2, 2, 2, 2},
				{2, 1, 1, 1, 1, 2},
				{2, 1, 1, 1, 1, 2},
				{2, 1, 1, 3, 1, 2},
				{2, 1, 1, 1, 1, 2},
				{2, 2, 2, 2, 2, 2},
			}},
			{K: 1, J0: 4, Rows: [][]int{{2, 2, 2, 2, 2, 2}}},
		},
		Matrix: [3][3]float64{{16, 0, 0}, {0, 16, 0}, {0, 0, 1}},
	}
}

func newLevel(t *testing.T, cfg StageConfig) *Stage {
	t.Helper()
	s, err := NewStage(levelData(), cfg)
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}
	return s
}

type eventLog struct {
	events []StageEvent
}

func (l *eventLog) EmitEvent(e StageEvent) {
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(typ EventType) []StageEvent {
	var out []StageEvent
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestNewStageDefaults(t *testing.T) {
	s := newLevel(t, StageConfig{})
	cfg := s.Config()
	if cfg.ScreenWidth != 640 || cfg.ScreenHeight != 480 {
		t.Errorf("screen = %dx%d, want 640x480", cfg.ScreenWidth, cfg.ScreenHeight)
	}
	if cfg.TickPeriod != 16 {
		t.Errorf("TickPeriod = %d, want 16", cfg.TickPeriod)
	}
	if g := s.Grid().Config(); g.BucketWidth != 640 || g.BucketHeight != 480 {
		t.Errorf("bucket = %vx%v, want screen size", g.BucketWidth, g.BucketHeight)
	}
	if got := s.Grid().Animations().Period(); got != 16 {
		t.Errorf("animation period = %d, want 16", got)
	}
}

func TestNewStageLoadsMap(t *testing.T) {
	s := newLevel(t, StageConfig{})
	if got := s.Grid().Len(); got != 42 {
		t.Errorf("grid Len = %d, want 42 (36 room + 6 ledge)", got)
	}
	if id, ok := s.TileAt(3, 3, 0); !ok || id != levelCrate {
		t.Errorf("TileAt(3,3,0) = %d, %v; want crate", id, ok)
	}
	if _, ok := s.TileAt(0, 0, 1); ok {
		t.Error("layer 1 row 0 should be empty")
	}
	if id, ok := s.TileAt(5, 4, 1); !ok || id != levelWall {
		t.Errorf("TileAt(5,4,1) = %d, %v; want wall", id, ok)
	}
}

func TestNewStageSpawnsInstances(t *testing.T) {
	data := levelData()
	data.Instances = []InstanceData{
		{Entity: levelHero, I: 1, J: 1, Properties: map[string]any{"name": "bug"}},
		{Entity: levelCoin, I: 2, J: 2},
	}
	s, err := NewStage(data, StageConfig{})
	if err != nil {
		t.Fatal(err)
	}
	insts := s.Instances()
	if len(insts) != 2 {
		t.Fatalf("Instances() len = %d, want 2", len(insts))
	}
	if insts[0].EntityID() != levelHero || insts[1].EntityID() != levelCoin {
		t.Error("instances should keep data order")
	}
	if v, _ := insts[0].Property("name"); v != "bug" {
		t.Errorf("name = %v, want bug", v)
	}
	data.Instances[0].Properties["name"] = "changed"
	if v, _ := insts[0].Property("name"); v != "bug" {
		t.Error("instance properties should be a copy")
	}
}

func TestNewStageValidation(t *testing.T) {
	data := levelData()
	data.Map[0].Rows[1][1] = 99
	_, err := NewStage(data, StageConfig{})
	var unknown *UnknownIDError
	if !errors.As(err, &unknown) || unknown.Kind != "tile" || unknown.ID != 99 {
		t.Errorf("err = %v, want unknown tile 99", err)
	}
}

func TestNewStageOverlappingFixedTiles(t *testing.T) {
	data := levelData()
	data.Map = append(data.Map, MapLayer{K: 0, Rows: [][]int{{levelFloor}}})
	_, err := NewStage(data, StageConfig{})
	if err == nil || !strings.Contains(err.Error(), "overlaps a fixed tile") {
		t.Errorf("err = %v, want overlap error", err)
	}
}

func TestStageTileCollision(t *testing.T) {
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	hero := s.Spawn(levelHero, 3.5, 1, 0, nil)
	hero.SetVelocity(Vector{I: 2})

	s.Advance(250) // i = 4.0, clear of the wall
	if i, _, _ := hero.Position(); i != 4 {
		t.Fatalf("after tick 1 i = %v, want 4", i)
	}
	s.Advance(250) // i = 4.5 overlaps the wall at i = 5
	i, j, _ := hero.Position()
	if i != 4 || j != 1 {
		t.Errorf("after tick 2 position = (%v, %v), want (4, 1)", i, j)
	}
	if hero.Velocity().I != 0 {
		t.Errorf("velocity I = %v, want 0 after hitting the wall", hero.Velocity().I)
	}
	if c := hero.Contact(); c.I != -0.5 || c.J != 0 {
		t.Errorf("Contact() = %+v, want {-0.5 0}", c)
	}
	contacts := log.ofType(EventContact)
	if len(contacts) != 1 || contacts[0].Instance != hero || contacts[0].Other != nil {
		t.Fatalf("contact events = %+v, want one tile contact", contacts)
	}
	if contacts[0].Time != 500 {
		t.Errorf("contact time = %d, want 500", contacts[0].Time)
	}

	// Resting against the wall with no displacement never corrects.
	s.Advance(250)
	if i, _, _ := hero.Position(); i != 4 {
		t.Errorf("resting i = %v, want 4", i)
	}
	if !hero.Contact().IsZero() {
		t.Errorf("resting Contact() = %+v, want zero", hero.Contact())
	}

	// The drawn element follows the logical position.
	if ei, ej, _ := hero.Element().Position(); ei != 4 || ej != 1 {
		t.Errorf("element at (%v, %v), want (4, 1)", ei, ej)
	}
	if r := hero.Element().ProjectedRect(); r.X != 64 || r.Y != 16 {
		t.Errorf("projected rect = %+v, want at (64, 16)", r)
	}
}

func TestStageGravityLanding(t *testing.T) {
	s := newLevel(t, StageConfig{Gravity: 8})
	slime := s.Spawn(levelSlime, 2, 3, 1, nil)
	for range 3 {
		s.Advance(250)
		_, j, _ := slime.Position()
		if j != 3 {
			t.Fatalf("j = %v, want 3 resting on the ledge", j)
		}
		if slime.Velocity().J != 0 {
			t.Fatalf("velocity J = %v, want 0 on the ledge", slime.Velocity().J)
		}
	}
}

func TestStageInstanceCollision(t *testing.T) {
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	hero := s.Spawn(levelHero, 1, 2, 0, nil)
	slime := s.Spawn(levelSlime, 2.25, 2, 0, nil)
	hero.SetVelocity(Vector{I: 2})

	s.Advance(250)
	i, _, _ := hero.Position()
	if i != 1.25 {
		t.Errorf("hero i = %v, want 1.25 against the slime", i)
	}
	if si, _, _ := slime.Position(); si != 2.25 {
		t.Errorf("slime i = %v, want 2.25 (did not move)", si)
	}
	contacts := log.ofType(EventContact)
	if len(contacts) != 1 || contacts[0].Other != slime {
		t.Fatalf("contacts = %+v, want one hero-slime contact", contacts)
	}
	if contacts[0].Correction.I != -0.25 {
		t.Errorf("correction = %+v, want I = -0.25", contacts[0].Correction)
	}
}

func TestStageContactWithoutBlocking(t *testing.T) {
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	hero := s.Spawn(levelHero, 1, 2, 0, nil)
	coin := s.Spawn(levelCoin, 1.5, 2, 0, nil)

	s.Advance(16)
	contacts := log.ofType(EventContact)
	if len(contacts) != 1 || contacts[0].Other != coin || !contacts[0].Correction.IsZero() {
		t.Fatalf("contacts = %+v, want one unblocked coin contact", contacts)
	}
	if i, _, _ := hero.Position(); i != 1 {
		t.Errorf("hero i = %v, want 1", i)
	}
}

func TestStageCustomBlocks(t *testing.T) {
	s := newLevel(t, StageConfig{Blocks: func(a, b *Instance) bool { return false }})
	hero := s.Spawn(levelHero, 1, 2, 0, nil)
	s.Spawn(levelSlime, 2.2, 2, 0, nil)
	hero.SetVelocity(Vector{I: 2})
	s.Advance(250)
	if i, _, _ := hero.Position(); i != 1.5 {
		t.Errorf("hero i = %v, want 1.5 passing through", i)
	}
}

func TestStageCustomCollides(t *testing.T) {
	// Nothing is solid.
	s := newLevel(t, StageConfig{Collides: func(solid bool, props map[string]any) bool { return false }})
	hero := s.Spawn(levelHero, 4, 1, 0, nil)
	hero.SetVelocity(Vector{I: 2})
	s.Advance(250)
	if i, _, _ := hero.Position(); i != 4.5 {
		t.Errorf("hero i = %v, want 4.5 through the wall", i)
	}
}

func TestStageRemoveInstance(t *testing.T) {
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	coin := s.Spawn(levelCoin, 2, 2, 0, nil)
	before := s.Grid().Len()

	coin.Remove()
	coin.Remove()
	if !coin.IsRemoved() || !coin.Element().IsRemoved() {
		t.Error("coin and its element should be removed")
	}
	if got := s.Grid().Len(); got != before-1 {
		t.Errorf("grid Len = %d, want %d", got, before-1)
	}
	if n := len(log.ofType(EventRemove)); n != 1 {
		t.Errorf("remove events = %d, want 1", n)
	}
	if len(s.Instances()) != 0 {
		t.Error("removed instance should not be listed")
	}
	s.Advance(16)
	if len(s.instances) != 0 {
		t.Error("Advance should compact removed instances")
	}
}

func TestStageReplaceInstance(t *testing.T) {
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	hero := s.Spawn(levelHero, 2, 2, 0, map[string]any{"hp": 3})
	hero.SetVelocity(Vector{J: 1})
	old := hero.Element()

	hero.Replace(levelGhost)
	if hero.EntityID() != levelGhost || hero.Descriptor() != s.Data().Entities[levelGhost] {
		t.Error("instance should use the ghost descriptor")
	}
	if !old.IsReplaced() || hero.Element() == old {
		t.Error("element handle should be replaced")
	}
	if hero.Velocity().J != 1 {
		t.Error("velocity should survive Replace")
	}
	if v, _ := hero.Property("hp"); v != 3 {
		t.Error("properties should survive Replace")
	}
	if n := len(log.ofType(EventReplace)); n != 1 {
		t.Errorf("replace events = %d, want 1", n)
	}

	defer func() {
		var unknown *UnknownIDError
		if r := recover(); r == nil {
			t.Fatal("Replace with unknown id should panic")
		} else if err, ok := r.(error); !ok || !errors.As(err, &unknown) {
			t.Errorf("panic = %v, want *UnknownIDError", r)
		}
		if hero.EntityID() != levelGhost {
			t.Error("failed Replace should not change the instance")
		}
	}()
	hero.Replace(77)
}

func TestStageSpawnUnknownEntityPanics(t *testing.T) {
	s := newLevel(t, StageConfig{})
	before := s.Grid().Len()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
		if s.Grid().Len() != before || len(s.instances) != 0 {
			t.Error("failed Spawn should not change the stage")
		}
	}()
	s.Spawn(42, 1, 1, 0, nil)
}

func TestStageFindInstances(t *testing.T) {
	s := newLevel(t, StageConfig{})
	hero := s.Spawn(levelHero, 1, 1, 0, nil)
	slime := s.Spawn(levelSlime, 2, 2, 0, nil)
	neutral := s.Spawn(levelSlime, 3, 2, 0, map[string]any{"team": "neutral"})
	s.Spawn(levelCoin, 4, 4, 0, nil)

	tests := []struct {
		name   string
		filter PropertyFilter
		want   []*Instance
	}{
		{"entity property", PropertyFilter{"team": "enemy"}, []*Instance{slime}},
		{"instance overrides", PropertyFilter{"team": "neutral"}, []*Instance{neutral}},
		{"shared kind", PropertyFilter{"kind": "slime"}, []*Instance{slime, neutral}},
		{"player", PropertyFilter{"team": "player"}, []*Instance{hero}},
		{"none", PropertyFilter{"team": "pirates"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.FindInstances(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("FindInstances(%v) len = %d, want %d", tt.filter, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("result %d = instance %d, want %d", i, got[i].ID(), tt.want[i].ID())
				}
			}
		})
	}
}

func TestStageTileEdits(t *testing.T) {
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	n := s.Grid().Len()

	if s.RemoveTile(0, 0, 0) {
		t.Error("RemoveTile on a wall should fail")
	}
	if s.ReplaceTile(1, 1, 0, levelDoor) {
		t.Error("ReplaceTile on fixed floor should fail")
	}
	if s.PutTile(1, 1, 0, levelCrate) {
		t.Error("PutTile over fixed floor should fail")
	}

	if !s.ReplaceTile(3, 3, 0, levelDoor) {
		t.Fatal("ReplaceTile on the crate should succeed")
	}
	if id, _ := s.TileAt(3, 3, 0); id != levelDoor {
		t.Errorf("TileAt(3,3,0) = %d, want door", id)
	}
	if s.Grid().Len() != n {
		t.Errorf("grid Len = %d, want %d after replace", s.Grid().Len(), n)
	}
	if e, ok := s.Grid().MutableTile(3, 3, 0); !ok || e.ID() != levelDoor {
		t.Error("grid should hold the door at (3,3,0)")
	}

	if !s.RemoveTile(3, 3, 0) {
		t.Fatal("RemoveTile on the door should succeed")
	}
	if _, ok := s.TileAt(3, 3, 0); ok {
		t.Error("(3,3,0) should be empty")
	}
	if s.Grid().Len() != n-1 {
		t.Errorf("grid Len = %d, want %d after remove", s.Grid().Len(), n-1)
	}

	if !s.PutTile(3, 3, 0, levelCrate) {
		t.Fatal("PutTile into the empty cell should succeed")
	}
	if !s.PutTile(3, 3, 0, levelDoor) {
		t.Fatal("PutTile over a mutable crate should succeed")
	}

	changes := log.ofType(EventTileChange)
	if len(changes) != 4 {
		t.Fatalf("tile change events = %d, want 4", len(changes))
	}
	if changes[1].Tile.ID != NoTile || len(changes[1].Cleared) != 1 {
		t.Errorf("remove event = %+v, want NoTile with one cleared", changes[1])
	}
	last := changes[3]
	if last.Tile.ID != levelDoor || len(last.Cleared) != 1 || last.Cleared[0].ID != levelCrate {
		t.Errorf("last event = %+v, want door clearing the crate", last)
	}
}

func TestStageFindPath(t *testing.T) {
	s := newLevel(t, StageConfig{})
	hero := s.Spawn(levelHero, 1.3, 1.8, 0, nil)
	path := s.FindPath(hero, 4, 4)
	if path == nil {
		t.Fatal("FindPath returned nil")
	}
	i, j := 1, 1
	for _, st := range path {
		i, j = i+st.I, j+st.J
		if s.TileMap().Solid(i, j, 0) {
			t.Errorf("path enters solid cell (%d,%d)", i, j)
		}
	}
	if i != 4 || j != 4 {
		t.Errorf("path ends at (%d,%d), want (4,4)", i, j)
	}
	if s.FindPath(hero, 0, 0) != nil {
		t.Error("path into a wall should be nil")
	}
}

func TestStageCellAt(t *testing.T) {
	s := newLevel(t, StageConfig{})
	if i, j := s.CellAt(40, 20, 0); i != 2 || j != 1 {
		t.Errorf("CellAt(40,20) = (%d,%d), want (2,1)", i, j)
	}
	s.Viewport().X += 32
	if i, j := s.CellAt(40, 20, 0); i != 4 || j != 1 {
		t.Errorf("scrolled CellAt(40,20) = (%d,%d), want (4,1)", i, j)
	}
}

func TestStageBrainDrivesPhysics(t *testing.T) {
	def, err := LoadMachineDef([]byte(`
initial: idle
states:
  idle: {}
  walk:
    on_enter:
      - velocity: {i: 2}
  dead:
    on_enter:
      - stop:
      - become: 4
transitions:
  idle:
    - event: go
      to: walk
  walk:
    - after: 500
      to: dead
`))
	if err != nil {
		t.Fatal(err)
	}
	log := &eventLog{}
	s := newLevel(t, StageConfig{Events: log})
	hero := s.Spawn(levelHero, 1, 2, 0, nil)
	brain := NewMachine(def)
	hero.SetBrain(brain)
	if brain.Owner() != hero || hero.Brain() != brain {
		t.Fatal("brain should be attached")
	}

	brain.Fire("go")
	s.Advance(250)
	if i, _, _ := hero.Position(); i != 1.5 {
		t.Errorf("i = %v, want 1.5 after one walking tick", i)
	}
	s.Advance(250) // 500 ms in walk: the brain runs first, so no movement
	if hero.Brain().State() != "dead" {
		t.Fatalf("state = %q, want dead", hero.Brain().State())
	}
	if i, _, _ := hero.Position(); i != 1.5 {
		t.Errorf("i = %v, want 1.5 (stopped before physics)", i)
	}
	if hero.EntityID() != levelGhost {
		t.Errorf("EntityID = %d, want ghost", hero.EntityID())
	}

	changes := log.ofType(EventStateChange)
	if len(changes) != 3 {
		t.Fatalf("state change events = %d, want 3", len(changes))
	}
	if changes[0].To != "idle" || changes[1].To != "walk" || changes[2].From != "walk" || changes[2].To != "dead" {
		t.Errorf("state changes = %+v", changes)
	}

	hero.SetBrain(nil)
	if brain.Owner() != nil {
		t.Error("detached brain should have no owner")
	}
}

func TestStageSynchronize(t *testing.T) {
	s := newLevel(t, StageConfig{})
	s.Synchronize(20)
	if s.TickPeriod() != 20 || s.Grid().Animations().Period() != 20 {
		t.Error("Synchronize should resample animations")
	}
}

func TestStageDrawAndPrerender(t *testing.T) {
	s := newLevel(t, StageConfig{ScreenWidth: 96, ScreenHeight: 96})
	s.SetImages(ImageMap{})
	s.Spawn(levelCoin, 2, 2, 0, nil)
	s.Prerender()
	if !s.Grid().Prerendered() {
		t.Fatal("grid should be prerendered")
	}

	s.SetDebugMode(true)
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	s.Advance(16)
	s.Draw(ebiten.NewImage(96, 96))

	w.Close()
	os.Stderr = oldStderr
	var buf bytes.Buffer
	buf.ReadFrom(r)

	st := s.Stats()
	if st.Composites == 0 {
		t.Error("stats should count composites")
	}
	if st.Emitted == 0 || st.Buckets == 0 {
		t.Errorf("stats = %+v, want drawn elements and buckets", st)
	}
	if !strings.Contains(buf.String(), "[tessera] tick:") {
		t.Errorf("expected stats on stderr, got %q", buf.String())
	}
}

func TestEventFunc(t *testing.T) {
	var got EventType = 255
	var sink EventSink = EventFunc(func(e StageEvent) { got = e.Type })
	sink.EmitEvent(StageEvent{Type: EventSpawn})
	if got != EventSpawn {
		t.Errorf("got %v, want spawn", got)
	}
}
