package ecs

import (
	"github.com/phanxgames/tessera"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// StageEventType is the Donburi event type for tessera stage events.
// Events are queued when the stage emits them and delivered by
// ProcessEvents, so systems see a tick's events after Advance returns.
var StageEventType = events.NewEventType[tessera.StageEvent]()

type donburiSink struct {
	world donburi.World
}

// NewDonburiSink creates an EventSink backed by a Donburi world. Stage events
// are published to StageEventType and can be consumed with events.Subscribe
// and ProcessEvents.
func NewDonburiSink(world donburi.World) tessera.EventSink {
	return &donburiSink{world: world}
}

func (s *donburiSink) EmitEvent(event tessera.StageEvent) {
	StageEventType.Publish(s.world, event)
}
