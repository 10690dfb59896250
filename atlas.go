package tessera

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
)

// ImageProvider resolves frame image ids to drawables. It is consulted only
// when drawing and prerendering. A nil result skips the element.
type ImageProvider interface {
	Image(id ImageID) *ebiten.Image
}

// ImageMap is an ImageProvider backed by a plain map.
type ImageMap map[ImageID]*ebiten.Image

// Image returns the image registered for id.
func (m ImageMap) Image(id ImageID) *ebiten.Image {
	return m[id]
}

// Region describes a sub-rectangle within an atlas page.
type Region struct {
	Page          int
	X, Y          int
	Width, Height int
	Rotated       bool // stored 90 degrees clockwise in the page
}

// Atlas holds one or more atlas page images and the regions cut from them.
// Regions whose name is a decimal image id, with or without an extension
// ("12" or "12.png"), are served through Image.
type Atlas struct {
	Pages []*ebiten.Image

	regions map[string]Region
	byID    map[ImageID]Region
	cache   map[ImageID]*ebiten.Image
	debug   bool
}

// Region returns the region with the given name.
func (a *Atlas) Region(name string) (Region, bool) {
	r, ok := a.regions[name]
	return r, ok
}

// Len returns the number of regions.
func (a *Atlas) Len() int {
	return len(a.regions)
}

// SetDebugMode enables warnings for image ids with no region.
func (a *Atlas) SetDebugMode(enabled bool) {
	a.debug = enabled
}

// Image returns the drawable for image id, or nil if the atlas has no region
// for it. Rotated regions are unrotated once and cached.
func (a *Atlas) Image(id ImageID) *ebiten.Image {
	if img, ok := a.cache[id]; ok {
		return img
	}
	r, ok := a.byID[id]
	if !ok {
		if a.debug {
			log.Printf("tessera: atlas has no region for image %d", id)
		}
		return nil
	}
	if r.Page < 0 || r.Page >= len(a.Pages) || a.Pages[r.Page] == nil {
		return nil
	}
	page := a.Pages[r.Page]

	var img *ebiten.Image
	if r.Rotated {
		// Stored rotated: the rect in the page is Height wide and Width tall.
		sub := page.SubImage(image.Rect(r.X, r.Y, r.X+r.Height, r.Y+r.Width)).(*ebiten.Image)
		img = ebiten.NewImage(r.Width, r.Height)
		var op ebiten.DrawImageOptions
		op.GeoM.Rotate(-math.Pi / 2)
		op.GeoM.Translate(0, float64(r.Height))
		img.DrawImage(sub, &op)
	} else {
		img = page.SubImage(image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)).(*ebiten.Image)
	}
	a.cache[id] = img
	return img
}

// LoadAtlas parses TexturePacker JSON data and associates the given page images.
// Supports both the hash format (single "frames" object) and the array format
// ("textures" array with per-page frame lists).
func LoadAtlas(jsonData []byte, pages []*ebiten.Image) (*Atlas, error) {
	var probe struct {
		Frames   json.RawMessage `json:"frames"`
		Textures json.RawMessage `json:"textures"`
	}
	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("tessera: failed to parse atlas JSON: %w", err)
	}

	atlas := &Atlas{
		Pages:   pages,
		regions: make(map[string]Region),
		byID:    make(map[ImageID]Region),
		cache:   make(map[ImageID]*ebiten.Image),
	}

	switch {
	case probe.Textures != nil:
		if err := parseArrayFormat(probe.Textures, atlas); err != nil {
			return nil, err
		}
	case probe.Frames != nil:
		if err := parseHashFrames(probe.Frames, 0, atlas); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("tessera: atlas JSON has neither \"frames\" nor \"textures\" key")
	}
	return atlas, nil
}

type jsonRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type jsonFrame struct {
	Frame   jsonRect `json:"frame"`
	Rotated bool     `json:"rotated"`
}

type jsonTexturePage struct {
	Image  string               `json:"image"`
	Frames map[string]jsonFrame `json:"frames"`
}

func parseHashFrames(raw json.RawMessage, page int, atlas *Atlas) error {
	var frames map[string]jsonFrame
	if err := json.Unmarshal(raw, &frames); err != nil {
		return fmt.Errorf("tessera: failed to parse atlas frames: %w", err)
	}
	for name, f := range frames {
		atlas.add(name, frameToRegion(f, page))
	}
	return nil
}

func parseArrayFormat(raw json.RawMessage, atlas *Atlas) error {
	var textures []jsonTexturePage
	if err := json.Unmarshal(raw, &textures); err != nil {
		return fmt.Errorf("tessera: failed to parse atlas textures array: %w", err)
	}
	for i, tex := range textures {
		for name, f := range tex.Frames {
			atlas.add(name, frameToRegion(f, i))
		}
	}
	return nil
}

func (a *Atlas) add(name string, r Region) {
	a.regions[name] = r
	if id, ok := regionImageID(name); ok {
		a.byID[id] = r
	}
}

// regionImageID parses "12" or "12.png" as image id 12.
func regionImageID(name string) (ImageID, bool) {
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		name = name[:dot]
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, false
	}
	return ImageID(n), true
}

func frameToRegion(f jsonFrame, page int) Region {
	return Region{
		Page:    page,
		X:       f.Frame.X,
		Y:       f.Frame.Y,
		Width:   f.Frame.W,
		Height:  f.Frame.H,
		Rotated: f.Rotated,
	}
}
