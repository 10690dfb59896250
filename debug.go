package tessera

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// Stats holds the timing and element counts of the most recent tick and
// draw. Only populated while the stage is in debug mode.
type Stats struct {
	TickTime   time.Duration
	DrawTime   time.Duration
	Instances  int
	Elements   int // live grid elements, composites counted once
	Emitted    int // elements drawn
	Buckets    int // buckets visited by the draw
	Composites int
}

// Stats returns the most recent debug stats.
func (s *Stage) Stats() Stats {
	return s.stats
}

// debugLog prints the stats to stderr.
func (s *Stage) debugLog() {
	if !s.debug {
		return
	}
	st := s.stats
	_, _ = fmt.Fprintf(os.Stderr,
		"[tessera] tick: %v | draw: %v | total: %v\n",
		st.TickTime, st.DrawTime, st.TickTime+st.DrawTime)
	_, _ = fmt.Fprintf(os.Stderr,
		"[tessera] instances: %d | elements: %d | drawn: %d | buckets: %d | composites: %d\n",
		st.Instances, st.Elements, st.Emitted, st.Buckets, st.Composites)
}

// debugOverlayInterval is how often, in seconds, the overlay text refreshes.
const debugOverlayInterval = 0.5

// DebugOverlay draws FPS, TPS, and the stage's element counts in the top-left
// corner of the screen.
type DebugOverlay struct {
	stage      *Stage
	img        *ebiten.Image
	lastUpdate float64
	text       string
}

// NewDebugOverlay creates an overlay for stage. The text is refreshed about
// every half second.
func NewDebugOverlay(stage *Stage) *DebugOverlay {
	// 160x64 fits four lines of debug font.
	return &DebugOverlay{
		stage:      stage,
		img:        ebiten.NewImage(160, 64),
		lastUpdate: debugOverlayInterval,
	}
}

// Text returns the last rendered overlay text.
func (o *DebugOverlay) Text() string {
	return o.text
}

// Update advances the refresh timer by dt seconds and redraws the text when
// it expires.
func (o *DebugOverlay) Update(dt float64) {
	o.lastUpdate += dt
	if o.lastUpdate < debugOverlayInterval {
		return
	}
	o.lastUpdate = 0

	o.text = fmt.Sprintf("FPS: %.1f\nTPS: %.1f\nInstances: %d\nElements: %d",
		ebiten.ActualFPS(), ebiten.ActualTPS(), len(o.stage.instances), o.stage.grid.Len())

	o.img.Clear()
	// Semi-transparent background for readability
	o.img.Fill(color.RGBA{0, 0, 0, 128})
	ebitenutil.DebugPrint(o.img, o.text)
}

// Draw draws the overlay at the top-left corner of screen.
func (o *DebugOverlay) Draw(screen *ebiten.Image) {
	screen.DrawImage(o.img, nil)
}
