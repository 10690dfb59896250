// Package tessera is a tile and entity stage engine for [Ebitengine].
//
// Tessera loads a level described as data (tile and entity descriptors, map
// layers, a projection matrix), keeps the tiles in a [TileMap] for game
// logic and every drawable in a bucketed spatial [Grid] for rendering, and
// advances entity physics and behavior on a fixed-step clock.
//
// # Quick start
//
// The simplest way to get started is [Run], which opens a window and drives a
// [Loop] for you:
//
//	data, err := tessera.LoadStageData(levelJSON)
//	// ...
//	stage, err := tessera.NewStage(data, tessera.StageConfig{Images: images})
//	// ...
//	loop := tessera.NewLoop(stage, nil)
//	tessera.Run(loop, tessera.RunConfig{Title: "My Game"})
//
// For full control, implement [ebiten.Game] yourself and call
// [Stage.Advance] and [Stage.Draw] directly:
//
//	type Game struct{ stage *tessera.Stage }
//
//	func (g *Game) Update() error        { g.stage.Advance(16); return nil }
//	func (g *Game) Draw(s *ebiten.Image) { g.stage.Draw(s) }
//	func (g *Game) Layout(w, h int) (int, int) { return 640, 480 }
//
// # Coordinates
//
// Game logic works in logical (i, j, k) coordinates: i and j address map
// cells and k is the depth layer. A [Projection] maps them to screen space;
// a diagonal matrix gives a top-down grid, other matrices give isometric or
// oblique views. [Stage.CellAt] goes the other way for mouse picking.
//
// # Tiles and instances
//
// Tiles are integer-positioned and may span several cells around a reference
// cell. Fixed tiles never change; mutable tiles can be edited at runtime with
// [Stage.PutTile], [Stage.RemoveTile], and [Stage.ReplaceTile], which keep
// the tile map and grid consistent.
//
// Entities are spawned as [Instance] values with [Stage.Spawn]. Physics
// instances integrate their velocity every tick and are pushed out of solid
// tiles and of each other. An instance can carry a behavior [Machine]
// loaded from YAML with [LoadMachineDef]:
//
//	def, err := tessera.LoadMachineDef(slimeYAML)
//	slime.SetBrain(tessera.NewMachine(def))
//
// # Tick order
//
// Each [Stage.Advance] samples the clock once, runs every brain, integrates
// and collides every physics instance, and only then moves the drawn
// elements, so every instance sees the same world state during a tick.
//
// # Events
//
// Spawns, removals, contacts, tile edits, and state changes are reported to
// an [EventSink]. The tessera/ecs package publishes them into a [Donburi]
// world.
//
// [Ebitengine]: https://ebitengine.org
// [Donburi]: https://github.com/yohamta/donburi
package tessera
