package tessera

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stageJSON = `{
	"tiles": {
		"1": {"width": 16, "height": 16, "frames": [{"image": 0}]},
		"2": {
			"width": 32, "height": 16, "frames": [{"image": 1, "duration": 100}, {"image": 2, "duration": 100}],
			"layout": {"span": {"i": 2, "j": 1}, "ref": {"i": 1, "j": 0}},
			"solid": true, "mutable": true,
			"properties": {"material": "wood"}
		}
	},
	"entities": {
		"7": {
			"width": 16, "height": 24, "offsetY": -8, "frames": [{"image": 10}],
			"box": {"i": 0.25, "j": 0, "di": 0.5, "dj": 1},
			"physics": true,
			"properties": {"team": "player"}
		}
	},
	"instances": [{"entity": 7, "i": 2, "j": 3, "properties": {"name": "bug"}}],
	"map": [{"k": 0, "i0": -1, "rows": [[1, -1, 1], [2, -1, -1]]}],
	"matrix": [[16, 0, 0], [0, 16, -16], [0, 0, 1]],
	"x0": 4,
	"y0": 8
}`

func TestLoadStageData(t *testing.T) {
	d, err := LoadStageData([]byte(stageJSON))
	require.NoError(t, err)

	require.Len(t, d.Tiles, 2)
	crate := d.Tiles[2]
	assert.Equal(t, 32.0, crate.Width)
	assert.Equal(t, Cells{I: 2, J: 1}, crate.Layout.Span)
	assert.Equal(t, Cells{I: 1}, crate.Layout.Ref)
	assert.True(t, crate.Solid)
	assert.True(t, crate.Mutable)
	assert.Equal(t, "wood", crate.Properties["material"])
	assert.Equal(t, []Frame{{Image: 1, Duration: 100}, {Image: 2, Duration: 100}}, crate.Frames)

	hero := d.Entities[7]
	require.NotNil(t, hero)
	assert.Equal(t, -8.0, hero.OffsetY)
	assert.Equal(t, Box{I: 0.25, DI: 0.5, DJ: 1}, hero.Box)
	assert.True(t, hero.Physics)

	require.Len(t, d.Instances, 1)
	assert.Equal(t, 7, d.Instances[0].Entity)
	assert.Equal(t, "bug", d.Instances[0].Properties["name"])

	require.Len(t, d.Map, 1)
	assert.Equal(t, -1, d.Map[0].I0)
	assert.Equal(t, [][]int{{1, NoTile, 1}, {2, NoTile, NoTile}}, d.Map[0].Rows)

	p := d.Projection()
	assert.Equal(t, 4.0, p.X0)
	assert.Equal(t, 8.0, p.Y0)
	assert.Equal(t, -16.0, p.Matrix[1][2])
}

func TestReadStageData(t *testing.T) {
	d, err := ReadStageData(strings.NewReader(stageJSON))
	require.NoError(t, err)
	assert.Len(t, d.Entities, 1)

	_, err = ReadStageData(strings.NewReader(`{"tiles": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse stage JSON")
}

func TestLoadStageDataMultiCellTile(t *testing.T) {
	d, err := LoadStageData([]byte(stageJSON))
	require.NoError(t, err)
	s, err := NewStage(d, StageConfig{})
	require.NoError(t, err)

	// The crate's reference cell is (-1,1); its span reaches back to (-2,1).
	id, ok := s.TileAt(-2, 1, 0)
	assert.True(t, ok)
	assert.Equal(t, 2, id)
	_, ok = s.TileAt(0, 1, 0)
	assert.False(t, ok)
	require.Len(t, s.Instances(), 1)
}

func TestStageDataValidate(t *testing.T) {
	tile := func() *TileDescriptor {
		return &TileDescriptor{ElementDescriptor: ElementDescriptor{Width: 1, Height: 1, Frames: []Frame{{Image: 0}}}}
	}
	entity := func() *EntityDescriptor {
		return &EntityDescriptor{ElementDescriptor: ElementDescriptor{Width: 1, Height: 1, Frames: []Frame{{Image: 0}}}}
	}
	tests := []struct {
		name   string
		mutate func(d *StageData)
		want   string
	}{
		{"negative tile id", func(d *StageData) { d.Tiles[-3] = tile() }, "tile id -3 is negative"},
		{"negative entity id", func(d *StageData) { d.Entities[-1] = entity() }, "entity id -1 is negative"},
		{"nil tile", func(d *StageData) { d.Tiles[5] = nil }, "tile 5 has no descriptor"},
		{"no frames", func(d *StageData) { d.Tiles[1].Frames = nil }, "tile 1: no frames"},
		{"negative image", func(d *StageData) { d.Entities[1].Frames[0].Image = -2 }, "negative image id -2"},
		{"negative duration", func(d *StageData) { d.Tiles[1].Frames[0].Duration = -5 }, "negative duration -5"},
		{"ref outside span", func(d *StageData) {
			d.Tiles[1].Layout = Layout{Span: Cells{I: 2, J: 1}, Ref: Cells{I: 2}}
		}, "reference cell (2,0) outside span (2,1)"},
		{"unknown instance entity", func(d *StageData) {
			d.Instances = []InstanceData{{Entity: 9}}
		}, "unknown entity id 9"},
		{"unknown map tile", func(d *StageData) {
			d.Map = []MapLayer{{Rows: [][]int{{1, 4}}}}
		}, "unknown tile id 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &StageData{
				Tiles:    map[int]*TileDescriptor{1: tile()},
				Entities: map[int]*EntityDescriptor{1: entity()},
			}
			require.NoError(t, d.Validate())
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStageDataValidateJoinsErrors(t *testing.T) {
	d := &StageData{
		Tiles:     map[int]*TileDescriptor{1: {}},
		Entities:  map[int]*EntityDescriptor{},
		Instances: []InstanceData{{Entity: 3}},
		Map:       []MapLayer{{Rows: [][]int{{8}}}},
	}
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tile 1: no frames")

	var unknown *UnknownIDError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "entity", unknown.Kind)
	assert.Equal(t, 3, unknown.ID)
	assert.Equal(t, "tessera: unknown entity id 3", unknown.Error())
}

func TestStageDataLookupPanics(t *testing.T) {
	d := &StageData{}
	assert.PanicsWithError(t, "tessera: unknown tile id 2", func() { d.tile(2) })
	assert.PanicsWithError(t, "tessera: unknown entity id 2", func() { d.entity(2) })
}
