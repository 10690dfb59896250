package tessera

import (
	"fmt"
	"strconv"
	"strings"
)

// Animation resolves elapsed time to a frame image. One Animation is shared
// by every element placed from descriptors with the same frame sequence.
//
// Multi-frame sequences are sampled into a lookup table at a fixed unit so
// that Frame is a single index operation.
type Animation struct {
	frames []Frame

	static bool // single frame: constant, eligible for prerendering
	loop   bool // every frame declares a duration

	total    int64 // duration of one loop, or of the run-up to the terminal frame
	terminal ImageID
	unit     int64
	table    []ImageID
}

// Static reports whether the animation is a single constant frame.
func (a *Animation) Static() bool {
	return a.static
}

// Looping reports whether the sequence repeats.
func (a *Animation) Looping() bool {
	return a.loop
}

// Duration returns the loop length in milliseconds, or for one-shot
// sequences the time after which the terminal frame is shown.
func (a *Animation) Duration() int64 {
	return a.total
}

// Unit returns the sampling granularity of the lookup table in milliseconds.
// Zero for animations without a table.
func (a *Animation) Unit() int64 {
	return a.unit
}

// Frame returns the image to show t milliseconds after the animation started.
// Negative t is treated as zero.
func (a *Animation) Frame(t int64) ImageID {
	if a.table == nil {
		return a.terminal
	}
	if t < 0 {
		t = 0
	}
	if a.loop {
		t %= a.total
	} else if t >= a.total {
		return a.terminal
	}
	return a.table[t/a.unit]
}

// build recomputes the lookup table for the given tick period. A period of
// zero or less samples at the frame-duration granularity alone.
func (a *Animation) build(period int64) {
	a.table = nil
	a.unit = 0
	a.total = 0
	if len(a.frames) == 1 {
		a.static = true
		a.terminal = a.frames[0].Image
		return
	}

	// The sequence runs up to the first frame without a duration, which then
	// holds forever.
	a.loop = true
	durations := a.frames
	for i, f := range a.frames {
		if f.Duration <= 0 {
			a.loop = false
			durations = a.frames[:i]
			a.terminal = f.Image
			break
		}
	}
	if a.loop {
		a.terminal = a.frames[len(a.frames)-1].Image
	}
	if len(durations) == 0 {
		return
	}

	var unit int64
	for _, f := range durations {
		unit = gcd(unit, int64(f.Duration))
		a.total += int64(f.Duration)
	}
	if period > 0 {
		unit = gcd(unit, period)
	}
	a.unit = unit

	a.table = make([]ImageID, a.total/unit)
	slot := 0
	for _, f := range durations {
		for n := int64(f.Duration) / unit; n > 0; n-- {
			a.table[slot] = f.Image
			slot++
		}
	}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Animations memoizes one Animation per distinct frame sequence and maps tile
// and entity ids onto them.
type Animations struct {
	period int64

	bySequence map[string]int // sequence key -> index into shared
	shared     []*Animation
	tiles      map[int]int
	entities   map[int]int
}

// NewAnimations creates a resolver sampling at the given tick period in
// milliseconds.
func NewAnimations(period int64) *Animations {
	return &Animations{
		period:     period,
		bySequence: make(map[string]int),
		tiles:      make(map[int]int),
		entities:   make(map[int]int),
	}
}

// RegisterTile builds (or reuses) the animation for a tile id's frames.
// It panics if frames is empty.
func (r *Animations) RegisterTile(id int, frames []Frame) *Animation {
	if idx, ok := r.tiles[id]; ok {
		return r.shared[idx]
	}
	if len(frames) == 0 {
		panic(fmt.Errorf("tessera: tile %d has no frames", id))
	}
	idx := r.intern(frames)
	r.tiles[id] = idx
	return r.shared[idx]
}

// RegisterEntity builds (or reuses) the animation for an entity id's frames.
// It panics if frames is empty.
func (r *Animations) RegisterEntity(id int, frames []Frame) *Animation {
	if idx, ok := r.entities[id]; ok {
		return r.shared[idx]
	}
	if len(frames) == 0 {
		panic(fmt.Errorf("tessera: entity %d has no frames", id))
	}
	idx := r.intern(frames)
	r.entities[id] = idx
	return r.shared[idx]
}

// TileAnimation returns the registered animation of a tile id.
func (r *Animations) TileAnimation(id int) (*Animation, bool) {
	idx, ok := r.tiles[id]
	if !ok {
		return nil, false
	}
	return r.shared[idx], true
}

// EntityAnimation returns the registered animation of an entity id.
func (r *Animations) EntityAnimation(id int) (*Animation, bool) {
	idx, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	return r.shared[idx], true
}

// Len returns the number of distinct sequences.
func (r *Animations) Len() int {
	return len(r.shared)
}

// Period returns the tick period the tables are sampled against.
func (r *Animations) Period() int64 {
	return r.period
}

// Synchronize rebuilds every non-static lookup table against a new tick
// period. Animations are rebuilt in place, so elements holding them pick up
// the new tables. Must not run while a frame is being emitted.
func (r *Animations) Synchronize(period int64) {
	r.period = period
	for _, a := range r.shared {
		if !a.static {
			a.build(period)
		}
	}
}

func (r *Animations) intern(frames []Frame) int {
	key := sequenceKey(frames)
	if idx, ok := r.bySequence[key]; ok {
		return idx
	}
	a := &Animation{frames: frames}
	a.build(r.period)
	r.shared = append(r.shared, a)
	idx := len(r.shared) - 1
	r.bySequence[key] = idx
	return idx
}

func sequenceKey(frames []Frame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(strconv.Itoa(int(f.Image)))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Duration))
		b.WriteByte(',')
	}
	return b.String()
}
