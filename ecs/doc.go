// Package ecs bridges tessera stage events into ECS worlds.
//
// The adapter is [NewDonburiSink], which publishes every stage event (spawn,
// remove, replace, contact, tile change, state change) into a [Donburi] world
// as a typed event. Subscribe to [StageEventType] in your ECS systems to
// receive them.
//
// Usage:
//
//	sink := ecs.NewDonburiSink(world)
//	stage.SetEventSink(sink)
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
