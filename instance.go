package tessera

import "maps"

// Instance is a spawned entity on a stage: its logical position, velocity,
// per-instance properties, and optional behavior machine, together with the
// grid element that draws it.
type Instance struct {
	stage *Stage
	id    int
	elem  *Element
	desc  *EntityDescriptor
	props map[string]any

	i, j, k      float64
	prevI, prevJ float64 // position at the end of the previous tick
	vel          Vector
	contact      Vector

	brain   *Machine
	removed bool
}

// ID returns the instance's stage-unique serial number.
func (in *Instance) ID() int {
	return in.id
}

// EntityID returns the id of the entity descriptor the instance uses.
func (in *Instance) EntityID() int {
	return in.elem.ID()
}

// Descriptor returns the current entity descriptor.
func (in *Instance) Descriptor() *EntityDescriptor {
	return in.desc
}

// Element returns the grid element that draws the instance. The handle
// changes when the instance is replaced.
func (in *Instance) Element() *Element {
	return in.elem
}

// Position returns the logical coordinates.
func (in *Instance) Position() (i, j, k float64) {
	return in.i, in.j, in.k
}

// Layer returns the depth layer the instance collides on.
func (in *Instance) Layer() int {
	return floorInt(in.k)
}

// SetPosition teleports the instance. The move is not swept: collision on the
// next tick measures displacement from the new position. The drawn position
// follows at the end of the next Advance.
func (in *Instance) SetPosition(i, j, k float64) {
	in.i, in.j, in.k = i, j, k
	in.prevI, in.prevJ = i, j
}

// Velocity returns the velocity in logical units per second.
func (in *Instance) Velocity() Vector {
	return in.vel
}

// SetVelocity sets the velocity in logical units per second. Only
// physics-enabled instances integrate it.
func (in *Instance) SetVelocity(v Vector) {
	in.vel = v
}

// Physics reports whether the instance takes part in the physics tick.
func (in *Instance) Physics() bool {
	return in.desc.Physics
}

// Box returns the collision rectangle in logical units.
func (in *Instance) Box() Rect {
	b := in.desc.Box
	return Rect{X: in.i + b.I, Y: in.j + b.J, Width: b.DI, Height: b.DJ}
}

// Contact returns the sum of corrections applied during the last tick.
func (in *Instance) Contact() Vector {
	return in.contact
}

// Properties returns the instance's own properties. Entity-level properties
// are not included; see Property.
func (in *Instance) Properties() map[string]any {
	return in.props
}

// Property returns an instance property, falling back to the entity
// descriptor's properties.
func (in *Instance) Property(key string) (any, bool) {
	if v, ok := in.props[key]; ok {
		return v, true
	}
	v, ok := in.desc.Properties[key]
	return v, ok
}

// SetProperty sets an instance property.
func (in *Instance) SetProperty(key string, v any) {
	if in.props == nil {
		in.props = make(map[string]any)
	}
	in.props[key] = v
}

// Matches reports whether the instance satisfies filter.
func (in *Instance) Matches(filter PropertyFilter) bool {
	return filter.Match(in.props, in.desc.Properties)
}

// SetBrain attaches a machine that runs at the start of every tick. The
// machine starts on the next Advance. Passing nil detaches the current one.
func (in *Instance) SetBrain(m *Machine) {
	if in.brain != nil {
		in.brain.owner = nil
		in.brain.notify = nil
	}
	in.brain = m
	if m == nil {
		return
	}
	m.owner = in
	m.notify = func(from, to string) {
		in.stage.emit(StageEvent{Type: EventStateChange, Instance: in, From: from, To: to})
	}
}

// Brain returns the attached machine, if any.
func (in *Instance) Brain() *Machine {
	return in.brain
}

// Remove takes the instance off the stage. Removing twice is a no-op.
func (in *Instance) Remove() {
	if in.removed {
		return
	}
	in.removed = true
	in.elem.Remove()
	in.stage.emit(StageEvent{Type: EventRemove, Instance: in})
}

// IsRemoved reports whether the instance has been removed.
func (in *Instance) IsRemoved() bool {
	return in.removed
}

// Replace switches the instance to entity descriptor id in place. The
// instance keeps its position, velocity, properties, and brain; its
// animation restarts. An unknown id panics with *UnknownIDError.
func (in *Instance) Replace(id int) {
	desc := in.stage.data.entity(id)
	if in.removed {
		return
	}
	in.elem = in.elem.Replace(id)
	in.desc = desc
	in.stage.emit(StageEvent{Type: EventReplace, Instance: in})
}

// integrate advances position by velocity and gravity over dt seconds.
func (in *Instance) integrate(dt, gravity float64) {
	in.vel.J += gravity * dt
	in.i += in.vel.I * dt
	in.j += in.vel.J * dt
}

// displacement returns the movement since the previous tick.
func (in *Instance) displacement() (di, dj float64) {
	return in.i - in.prevI, in.j - in.prevJ
}

// correct applies a collision correction and cancels velocity on every
// corrected axis.
func (in *Instance) correct(c Vector) {
	if c.IsZero() {
		return
	}
	in.i += c.I
	in.j += c.J
	if c.I != 0 {
		in.vel.I = 0
	}
	if c.J != 0 {
		in.vel.J = 0
	}
	in.contact.I += c.I
	in.contact.J += c.J
}

// sync moves the grid element to the logical position and starts the next
// tick's displacement from here.
func (in *Instance) sync() {
	if !in.removed {
		if ei, ej, ek := in.elem.Position(); ei != in.i || ej != in.j || ek != in.k {
			in.elem.UpdatePosition(in.i, in.j, in.k)
		}
	}
	in.prevI, in.prevJ = in.i, in.j
}

func cloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return make(map[string]any)
	}
	return maps.Clone(props)
}
