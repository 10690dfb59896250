package ecs

import (
	"testing"

	"github.com/phanxgames/tessera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

func testStage(t *testing.T, sink tessera.EventSink) *tessera.Stage {
	t.Helper()
	desc := tessera.ElementDescriptor{Width: 16, Height: 16, Frames: []tessera.Frame{{Image: 0}}}
	data := &tessera.StageData{
		Tiles: map[int]*tessera.TileDescriptor{
			1: {ElementDescriptor: desc, Solid: true},
			2: {ElementDescriptor: desc, Mutable: true},
		},
		Entities: map[int]*tessera.EntityDescriptor{
			1: {ElementDescriptor: desc, Box: tessera.Box{DI: 1, DJ: 1}, Physics: true},
		},
		Map:    []tessera.MapLayer{{Rows: [][]int{{1, 1, 1}}}},
		Matrix: [3][3]float64{{16, 0, 0}, {0, 16, 0}, {0, 0, 1}},
	}
	s, err := tessera.NewStage(data, tessera.StageConfig{Events: sink})
	require.NoError(t, err)
	return s
}

func TestNewDonburiSink(t *testing.T) {
	world := donburi.NewWorld()
	sink := NewDonburiSink(world)
	require.NotNil(t, sink)
}

func TestDonburiSink_EmitEvent(t *testing.T) {
	world := donburi.NewWorld()
	sink := NewDonburiSink(world)

	var received []tessera.StageEvent
	StageEventType.Subscribe(world, func(w donburi.World, e tessera.StageEvent) {
		received = append(received, e)
	})

	sink.EmitEvent(tessera.StageEvent{Type: tessera.EventSpawn, Time: 16})
	sink.EmitEvent(tessera.StageEvent{
		Type:       tessera.EventContact,
		Correction: tessera.Vector{I: -0.5},
	})

	// Events are queued until processed.
	assert.Empty(t, received)
	StageEventType.ProcessEvents(world)

	require.Len(t, received, 2)
	assert.Equal(t, tessera.EventSpawn, received[0].Type)
	assert.Equal(t, int64(16), received[0].Time)
	assert.Equal(t, tessera.EventContact, received[1].Type)
	assert.Equal(t, -0.5, received[1].Correction.I)
}

func TestDonburiSink_StageEvents(t *testing.T) {
	world := donburi.NewWorld()
	s := testStage(t, NewDonburiSink(world))

	var types []tessera.EventType
	StageEventType.Subscribe(world, func(w donburi.World, e tessera.StageEvent) {
		types = append(types, e.Type)
	})

	hero := s.Spawn(1, 1, -1, 0, nil)
	hero.SetVelocity(tessera.Vector{J: 2})
	s.Advance(250) // lands on the wall row at j = 0
	require.True(t, s.PutTile(1, 2, 0, 2))
	hero.Remove()
	events.ProcessAllEvents(world)

	assert.Equal(t, []tessera.EventType{
		tessera.EventSpawn,
		tessera.EventContact,
		tessera.EventTileChange,
		tessera.EventRemove,
	}, types)
}

func TestDonburiSink_ImplementsEventSink(t *testing.T) {
	world := donburi.NewWorld()
	var sink tessera.EventSink = NewDonburiSink(world)
	_ = sink // compile-time interface check
}

func TestDonburiSink_MultipleSubscribers(t *testing.T) {
	world := donburi.NewWorld()
	sink := NewDonburiSink(world)

	var count1, count2 int
	StageEventType.Subscribe(world, func(w donburi.World, e tessera.StageEvent) {
		count1++
	})
	StageEventType.Subscribe(world, func(w donburi.World, e tessera.StageEvent) {
		count2++
	})

	sink.EmitEvent(tessera.StageEvent{Type: tessera.EventTileChange})
	events.ProcessAllEvents(world)

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}
