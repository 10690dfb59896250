package tessera

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Input is the keyboard and mouse state a game script reads each tick.
// Update is called once at the start of every tick, before any script runs.
type Input interface {
	Update()
	Pressed(key ebiten.Key) bool
	JustPressed(key ebiten.Key) bool
	// Cursor returns the mouse position in screen pixels.
	Cursor() (x, y float64)
	MousePressed() bool
	MouseJustPressed() bool
}

// --- Ebiten ---

// EbitenInput reads the live ebiten keyboard and left mouse button.
type EbitenInput struct {
	x, y float64
}

// NewEbitenInput returns an Input backed by ebiten.
func NewEbitenInput() *EbitenInput {
	return &EbitenInput{}
}

// Update samples the cursor position.
func (in *EbitenInput) Update() {
	cx, cy := ebiten.CursorPosition()
	in.x, in.y = float64(cx), float64(cy)
}

// Pressed reports whether key is held down.
func (in *EbitenInput) Pressed(key ebiten.Key) bool {
	return ebiten.IsKeyPressed(key)
}

// JustPressed reports whether key went down this tick.
func (in *EbitenInput) JustPressed(key ebiten.Key) bool {
	return inpututil.IsKeyJustPressed(key)
}

// Cursor returns the cursor position sampled by the last Update.
func (in *EbitenInput) Cursor() (x, y float64) {
	return in.x, in.y
}

// MousePressed reports whether the left button is held down.
func (in *EbitenInput) MousePressed() bool {
	return ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
}

// MouseJustPressed reports whether the left button went down this tick.
func (in *EbitenInput) MouseJustPressed() bool {
	return inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft)
}

// --- Scripted ---

type inputEventKind uint8

const (
	inputKeyDown inputEventKind = iota
	inputKeyUp
	inputMouseDown
	inputMouseUp
	inputMove
)

// inputEvent is a single injected input change. One event is applied per
// tick.
type inputEvent struct {
	kind inputEventKind
	key  ebiten.Key
	x, y float64
}

// inputStep is a single action in an input script.
type inputStep struct {
	Action string  `json:"action"`
	Key    string  `json:"key,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Frames int     `json:"frames,omitempty"`
}

type inputScript struct {
	Steps []inputStep `json:"steps"`
}

// ScriptedInput replays injected key and mouse events, one per tick. Events
// come from the Inject methods or from a JSON script loaded with
// LoadInputScript. It drives automated runs and tests without a window.
type ScriptedInput struct {
	queue []inputEvent

	steps     []inputStep
	keys      []ebiten.Key // resolved key of each step
	cursor    int
	waitCount int

	held      map[ebiten.Key]bool
	just      map[ebiten.Key]bool
	mouseDown bool
	mouseJust bool
	x, y      float64
}

// NewScriptedInput returns an empty ScriptedInput. Queue events with the
// Inject methods.
func NewScriptedInput() *ScriptedInput {
	return &ScriptedInput{
		held: make(map[ebiten.Key]bool),
		just: make(map[ebiten.Key]bool),
	}
}

// LoadInputScript parses a JSON input script:
//
//	{"steps": [
//	  {"action": "tap", "key": "Space"},
//	  {"action": "wait", "frames": 10},
//	  {"action": "click", "x": 120, "y": 64}
//	]}
//
// Actions are press, release, tap (press then release), click, move, and
// wait. Key names are ebiten key names, matched case-insensitively.
func LoadInputScript(jsonData []byte) (*ScriptedInput, error) {
	var script inputScript
	if err := json.Unmarshal(jsonData, &script); err != nil {
		return nil, fmt.Errorf("tessera: parse input script: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("tessera: parse input script: no steps")
	}
	in := NewScriptedInput()
	in.steps = script.Steps
	in.keys = make([]ebiten.Key, len(script.Steps))
	for i, st := range script.Steps {
		switch st.Action {
		case "press", "release", "tap":
			k, ok := keyByName(st.Key)
			if !ok {
				return nil, fmt.Errorf("tessera: parse input script: step %d: unknown key %q", i, st.Key)
			}
			in.keys[i] = k
		case "click", "move", "wait":
		default:
			return nil, fmt.Errorf("tessera: parse input script: step %d: unknown action %q", i, st.Action)
		}
	}
	return in, nil
}

var keyNames map[string]ebiten.Key

// keyByName resolves an ebiten key name such as "Space" or "ArrowLeft".
func keyByName(name string) (ebiten.Key, bool) {
	if keyNames == nil {
		keyNames = make(map[string]ebiten.Key)
		for k := ebiten.Key(0); k <= ebiten.KeyMax; k++ {
			keyNames[strings.ToLower(k.String())] = k
		}
	}
	k, ok := keyNames[strings.ToLower(name)]
	return k, ok
}

// InjectPress queues key going down.
func (in *ScriptedInput) InjectPress(key ebiten.Key) {
	in.queue = append(in.queue, inputEvent{kind: inputKeyDown, key: key})
}

// InjectRelease queues key going up.
func (in *ScriptedInput) InjectRelease(key ebiten.Key) {
	in.queue = append(in.queue, inputEvent{kind: inputKeyUp, key: key})
}

// InjectTap queues a press followed by a release. Consumes two ticks.
func (in *ScriptedInput) InjectTap(key ebiten.Key) {
	in.InjectPress(key)
	in.InjectRelease(key)
}

// InjectMove queues a cursor move to screen position (x, y).
func (in *ScriptedInput) InjectMove(x, y float64) {
	in.queue = append(in.queue, inputEvent{kind: inputMove, x: x, y: y})
}

// InjectClick queues a left button press and release at (x, y). Consumes
// two ticks.
func (in *ScriptedInput) InjectClick(x, y float64) {
	in.queue = append(in.queue,
		inputEvent{kind: inputMouseDown, x: x, y: y},
		inputEvent{kind: inputMouseUp, x: x, y: y},
	)
}

// Done reports whether the script has run out and every injected event has
// been applied.
func (in *ScriptedInput) Done() bool {
	return in.cursor >= len(in.steps) && in.waitCount == 0 && len(in.queue) == 0
}

// Update advances the script by one tick and applies the next queued event.
func (in *ScriptedInput) Update() {
	clear(in.just)
	in.mouseJust = false
	in.step()

	if len(in.queue) == 0 {
		return
	}
	evt := in.queue[0]
	copy(in.queue, in.queue[1:])
	in.queue = in.queue[:len(in.queue)-1]

	switch evt.kind {
	case inputKeyDown:
		if !in.held[evt.key] {
			in.just[evt.key] = true
		}
		in.held[evt.key] = true
	case inputKeyUp:
		delete(in.held, evt.key)
	case inputMouseDown:
		in.x, in.y = evt.x, evt.y
		in.mouseJust = !in.mouseDown
		in.mouseDown = true
	case inputMouseUp:
		in.x, in.y = evt.x, evt.y
		in.mouseDown = false
	case inputMove:
		in.x, in.y = evt.x, evt.y
	}
}

// step turns the next script step into queued events.
func (in *ScriptedInput) step() {
	// Wait for pending injections to drain before advancing.
	if len(in.queue) > 0 {
		return
	}
	if in.waitCount > 0 {
		in.waitCount--
		return
	}
	if in.cursor >= len(in.steps) {
		return
	}
	st, key := in.steps[in.cursor], in.keys[in.cursor]
	in.cursor++

	switch st.Action {
	case "press":
		in.InjectPress(key)
	case "release":
		in.InjectRelease(key)
	case "tap":
		in.InjectTap(key)
	case "click":
		in.InjectClick(st.X, st.Y)
	case "move":
		in.InjectMove(st.X, st.Y)
	case "wait":
		if st.Frames > 0 {
			in.waitCount = st.Frames - 1 // this tick counts as one
		}
	}
}

// Pressed reports whether key is held down.
func (in *ScriptedInput) Pressed(key ebiten.Key) bool {
	return in.held[key]
}

// JustPressed reports whether key went down this tick.
func (in *ScriptedInput) JustPressed(key ebiten.Key) bool {
	return in.just[key]
}

// Cursor returns the last injected cursor position.
func (in *ScriptedInput) Cursor() (x, y float64) {
	return in.x, in.y
}

// MousePressed reports whether the injected left button is down.
func (in *ScriptedInput) MousePressed() bool {
	return in.mouseDown
}

// MouseJustPressed reports whether the left button went down this tick.
func (in *ScriptedInput) MouseJustPressed() bool {
	return in.mouseJust
}
