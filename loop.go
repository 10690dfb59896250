package tessera

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// LoopState is the scheduling state of a Loop.
type LoopState uint8

const (
	LoopRunning   LoopState = iota // ticking every frame
	LoopSuspended                  // not ticking, resumable
	LoopStopped                    // terminal
)

// String returns a readable name for the state.
func (s LoopState) String() string {
	switch s {
	case LoopRunning:
		return "running"
	case LoopSuspended:
		return "suspended"
	case LoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Loop drives a stage at a fixed step. It implements ebiten.Game: each
// Update reads input, runs OnTick, and advances the stage by one tick
// period on a simulated clock, so a tick always covers the same time
// regardless of frame timing.
type Loop struct {
	stage  *Stage
	input  Input
	tps    int
	period int64
	state  LoopState
	ticks  uint64

	tpsDirty bool
	overlay  *DebugOverlay
	shots    []string

	// ScreenshotDir is where Screenshot writes PNG files. Default
	// "screenshots".
	ScreenshotDir string

	// OnTick runs before the stage advances, with input already updated.
	OnTick func(l *Loop, in Input)
	// OnDraw runs after the stage is drawn.
	OnDraw func(screen *ebiten.Image)
}

// NewLoop creates a running loop over stage at the stage's tick period. A
// nil input reads the live ebiten keyboard and mouse.
func NewLoop(stage *Stage, in Input) *Loop {
	if in == nil {
		in = NewEbitenInput()
	}
	period := stage.TickPeriod()
	return &Loop{
		stage:  stage,
		input:  in,
		tps:    int(math.Round(1000 / float64(period))),
		period: period,
	}
}

// Stage returns the driven stage.
func (l *Loop) Stage() *Stage {
	return l.stage
}

// Input returns the loop's input.
func (l *Loop) Input() Input {
	return l.input
}

// State returns the scheduling state.
func (l *Loop) State() LoopState {
	return l.state
}

// Ticks returns how many ticks have run.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// TPS returns the ticks per second.
func (l *Loop) TPS() int {
	return l.tps
}

// Period returns the fixed tick period in ms.
func (l *Loop) Period() int64 {
	return l.period
}

// SetTPS changes the tick rate. The stage's animations are resampled at the
// new period before the next tick.
func (l *Loop) SetTPS(tps int) {
	if tps <= 0 {
		return
	}
	l.tps = tps
	l.period = max(int64(math.Round(1000/float64(tps))), 1)
	l.stage.Synchronize(l.period)
	l.tpsDirty = true
}

// Suspend stops ticking but keeps all state. No-op unless running.
func (l *Loop) Suspend() {
	if l.state == LoopRunning {
		l.state = LoopSuspended
	}
}

// Resume restarts a suspended loop.
func (l *Loop) Resume() {
	if l.state == LoopSuspended {
		l.state = LoopRunning
	}
}

// Stop ends the loop for good. The next Update returns ebiten.Termination.
func (l *Loop) Stop() {
	l.state = LoopStopped
}

// SetDebugOverlay shows or hides the FPS and element count overlay.
func (l *Loop) SetDebugOverlay(enabled bool) {
	if !enabled {
		l.overlay = nil
		return
	}
	if l.overlay == nil {
		l.overlay = NewDebugOverlay(l.stage)
	}
}

// Step runs one tick if the loop is running.
func (l *Loop) Step() {
	if l.state != LoopRunning {
		return
	}
	l.input.Update()
	if l.OnTick != nil {
		l.OnTick(l, l.input)
		// OnTick may suspend or stop the loop.
		if l.state != LoopRunning {
			return
		}
	}
	l.stage.Advance(l.period)
	if l.overlay != nil {
		l.overlay.Update(float64(l.period) / 1000)
	}
	l.ticks++
}

// Update implements ebiten.Game.
func (l *Loop) Update() error {
	if l.state == LoopStopped {
		return ebiten.Termination
	}
	if l.tpsDirty {
		ebiten.SetTPS(l.tps)
		l.tpsDirty = false
	}
	l.Step()
	return nil
}

// Draw implements ebiten.Game.
func (l *Loop) Draw(screen *ebiten.Image) {
	l.stage.Draw(screen)
	if l.OnDraw != nil {
		l.OnDraw(screen)
	}
	if l.overlay != nil {
		l.overlay.Draw(screen)
	}
	l.flushScreenshots(screen)
}

// Layout implements ebiten.Game. The logical screen is the stage's screen
// size whatever the window size.
func (l *Loop) Layout(outsideWidth, outsideHeight int) (int, int) {
	return l.stage.cfg.ScreenWidth, l.stage.cfg.ScreenHeight
}

// RunConfig configures the window Run opens.
type RunConfig struct {
	Title string
	// Width and Height are the window size; zero uses the stage's screen
	// size.
	Width, Height int
	// TPS overrides the loop's tick rate when positive.
	TPS int
	// ShowFPS enables the debug overlay.
	ShowFPS bool
}

// Run opens a window and runs loop until it is stopped or the window is
// closed.
func Run(loop *Loop, cfg RunConfig) error {
	if cfg.TPS > 0 {
		loop.SetTPS(cfg.TPS)
	}
	loop.SetDebugOverlay(cfg.ShowFPS)
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = loop.stage.cfg.ScreenWidth, loop.stage.cfg.ScreenHeight
	}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(w, h)
	ebiten.SetTPS(loop.tps)
	loop.tpsDirty = false
	return ebiten.RunGame(loop)
}
