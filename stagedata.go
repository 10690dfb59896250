package tessera

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// NoTile marks an empty cell in MapLayer rows.
const NoTile = -1

// Frame is one step of an animation. Duration is in milliseconds; zero means
// the frame declares no duration, which makes it the terminal frame of a
// one-shot sequence.
type Frame struct {
	Image    ImageID `json:"image" jsonschema:"required,minimum=0"`
	Duration int     `json:"duration,omitempty" jsonschema:"minimum=1"`
}

// ElementDescriptor is the immutable visual description shared by every
// placed copy of a tile or entity.
type ElementDescriptor struct {
	Width   float64 `json:"width" jsonschema:"required"`
	Height  float64 `json:"height" jsonschema:"required"`
	OffsetX float64 `json:"offsetX,omitempty"`
	OffsetY float64 `json:"offsetY,omitempty"`
	Frames  []Frame `json:"frames" jsonschema:"required,minItems=1"`
}

// Cells is an integer (i, j) pair used for tile layout spans and offsets.
type Cells struct {
	I int `json:"i" jsonschema:"minimum=0"`
	J int `json:"j" jsonschema:"minimum=0"`
}

// Layout describes how many map cells a tile covers and which of them is the
// reference cell holding the tile id.
type Layout struct {
	Span Cells `json:"span"`
	Ref  Cells `json:"ref"`
}

// span returns the layout span with a zero span treated as a single cell.
func (l Layout) span() Cells {
	s := l.Span
	if s.I <= 0 {
		s.I = 1
	}
	if s.J <= 0 {
		s.J = 1
	}
	return s
}

// TileDescriptor is the static description of a tile type.
type TileDescriptor struct {
	ElementDescriptor
	Layout     Layout         `json:"layout,omitempty"`
	Solid      bool           `json:"solid,omitempty"`
	Mutable    bool           `json:"mutable,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Box is an entity's collision rectangle in logical units, relative to the
// instance position.
type Box struct {
	I  float64 `json:"i"`
	J  float64 `json:"j"`
	DI float64 `json:"di" jsonschema:"required"`
	DJ float64 `json:"dj" jsonschema:"required"`
}

// EntityDescriptor is the static description of an entity type.
type EntityDescriptor struct {
	ElementDescriptor
	Box        Box            `json:"box"`
	Physics    bool           `json:"physics,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// InstanceData is an initial entity placement.
type InstanceData struct {
	Entity     int            `json:"entity" jsonschema:"required,minimum=0"`
	I          float64        `json:"i"`
	J          float64        `json:"j"`
	K          float64        `json:"k"`
	Properties map[string]any `json:"properties,omitempty"`
}

// MapLayer is the initial tile grid of one layer. Rows are indexed by j then
// i, offset by (I0, J0). NoTile marks empty cells.
type MapLayer struct {
	K    int     `json:"k"`
	I0   int     `json:"i0,omitempty"`
	J0   int     `json:"j0,omitempty"`
	Rows [][]int `json:"rows"`
}

// StageData is the exported stage format consumed by NewStage.
type StageData struct {
	Tiles     map[int]*TileDescriptor   `json:"tiles" jsonschema:"required"`
	Entities  map[int]*EntityDescriptor `json:"entities"`
	Instances []InstanceData            `json:"instances,omitempty"`
	Map       []MapLayer                `json:"map,omitempty"`
	Matrix    [3][3]float64             `json:"matrix" jsonschema:"required"`
	X0        float64                   `json:"x0,omitempty"`
	Y0        float64                   `json:"y0,omitempty"`
}

// Projection returns the stage's world-to-screen projection.
func (d *StageData) Projection() Projection {
	return Projection{Matrix: d.Matrix, X0: d.X0, Y0: d.Y0}
}

// UnknownIDError reports a reference to a tile or entity id that is not in the
// stage data.
type UnknownIDError struct {
	Kind string // "tile" or "entity"
	ID   int
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("tessera: unknown %s id %d", e.Kind, e.ID)
}

// tile returns the descriptor for id or panics with an *UnknownIDError.
func (d *StageData) tile(id int) *TileDescriptor {
	t, ok := d.Tiles[id]
	if !ok || t == nil {
		panic(&UnknownIDError{Kind: "tile", ID: id})
	}
	return t
}

// entity returns the descriptor for id or panics with an *UnknownIDError.
func (d *StageData) entity(id int) *EntityDescriptor {
	e, ok := d.Entities[id]
	if !ok || e == nil {
		panic(&UnknownIDError{Kind: "entity", ID: id})
	}
	return e
}

// LoadStageData parses and validates stage JSON.
func LoadStageData(jsonData []byte) (*StageData, error) {
	var d StageData
	if err := json.Unmarshal(jsonData, &d); err != nil {
		return nil, fmt.Errorf("tessera: failed to parse stage JSON: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ReadStageData reads, parses, and validates stage JSON from r.
func ReadStageData(r io.Reader) (*StageData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tessera: failed to read stage: %w", err)
	}
	return LoadStageData(data)
}

// Validate checks ids, layouts, frame lists, and that every instance and map
// cell references a known descriptor. Unknown references are reported as
// *UnknownIDError.
func (d *StageData) Validate() error {
	var errs []error
	for _, id := range sortedKeys(d.Tiles) {
		t := d.Tiles[id]
		if id < 0 {
			errs = append(errs, fmt.Errorf("tessera: tile id %d is negative", id))
		}
		if t == nil {
			errs = append(errs, fmt.Errorf("tessera: tile %d has no descriptor", id))
			continue
		}
		if err := validateFrames(t.Frames); err != nil {
			errs = append(errs, fmt.Errorf("tessera: tile %d: %w", id, err))
		}
		l := t.Layout
		span := l.span()
		if l.Span.I < 0 || l.Span.J < 0 || l.Ref.I < 0 || l.Ref.J < 0 ||
			l.Ref.I >= span.I || l.Ref.J >= span.J {
			errs = append(errs, fmt.Errorf("tessera: tile %d: reference cell (%d,%d) outside span (%d,%d)",
				id, l.Ref.I, l.Ref.J, span.I, span.J))
		}
	}
	for _, id := range sortedKeys(d.Entities) {
		e := d.Entities[id]
		if id < 0 {
			errs = append(errs, fmt.Errorf("tessera: entity id %d is negative", id))
		}
		if e == nil {
			errs = append(errs, fmt.Errorf("tessera: entity %d has no descriptor", id))
			continue
		}
		if err := validateFrames(e.Frames); err != nil {
			errs = append(errs, fmt.Errorf("tessera: entity %d: %w", id, err))
		}
	}
	for _, inst := range d.Instances {
		if e, ok := d.Entities[inst.Entity]; !ok || e == nil {
			errs = append(errs, &UnknownIDError{Kind: "entity", ID: inst.Entity})
		}
	}
	for _, layer := range d.Map {
		for _, row := range layer.Rows {
			for _, id := range row {
				if id == NoTile {
					continue
				}
				if t, ok := d.Tiles[id]; !ok || t == nil {
					errs = append(errs, &UnknownIDError{Kind: "tile", ID: id})
				}
			}
		}
	}
	return errors.Join(errs...)
}

func validateFrames(frames []Frame) error {
	if len(frames) == 0 {
		return errors.New("no frames")
	}
	for i, f := range frames {
		if f.Image < 0 {
			return fmt.Errorf("frame %d: negative image id %d", i, f.Image)
		}
		if f.Duration < 0 {
			return fmt.Errorf("frame %d: negative duration %d", i, f.Duration)
		}
	}
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
