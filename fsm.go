package tessera

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Action is one step of a state's behavior.
type Action func(ctx *ActionContext)

// ActionContext is what an Action operates on.
type ActionContext struct {
	Machine *Machine
	// Instance is the machine's owner, nil for a detached machine.
	Instance *Instance
}

// ActionFactory builds an Action from its YAML argument.
type ActionFactory func(arg any) (Action, error)

var actionRegistry = map[string]ActionFactory{
	"set": func(arg any) (Action, error) {
		values, err := numberMap("set", arg)
		if err != nil {
			return nil, err
		}
		return func(ctx *ActionContext) {
			for _, name := range sortedNames(values) {
				ctx.Machine.params[name] = values[name]
			}
		}, nil
	},
	"add": func(arg any) (Action, error) {
		values, err := numberMap("add", arg)
		if err != nil {
			return nil, err
		}
		return func(ctx *ActionContext) {
			for _, name := range sortedNames(values) {
				ctx.Machine.params[name] += values[name]
			}
		}, nil
	},
	"velocity": func(arg any) (Action, error) {
		values, err := numberMap("velocity", arg)
		if err != nil {
			return nil, err
		}
		vi, setI := values["i"]
		vj, setJ := values["j"]
		if !setI && !setJ {
			return nil, fmt.Errorf("velocity: want i and/or j")
		}
		return func(ctx *ActionContext) {
			if ctx.Instance == nil {
				return
			}
			v := ctx.Instance.Velocity()
			if setI {
				v.I = vi
			}
			if setJ {
				v.J = vj
			}
			ctx.Instance.SetVelocity(v)
		}, nil
	},
	"stop": func(arg any) (Action, error) {
		axis := ""
		if arg != nil {
			s, ok := arg.(string)
			if !ok || (s != "i" && s != "j") {
				return nil, fmt.Errorf("stop: axis must be i or j, got %v", arg)
			}
			axis = s
		}
		return func(ctx *ActionContext) {
			if ctx.Instance == nil {
				return
			}
			v := ctx.Instance.Velocity()
			switch axis {
			case "i":
				v.I = 0
			case "j":
				v.J = 0
			default:
				v = Vector{}
			}
			ctx.Instance.SetVelocity(v)
		}, nil
	},
	"become": func(arg any) (Action, error) {
		n, ok := asNumber(arg)
		if !ok || n < 0 || n != float64(int(n)) {
			return nil, fmt.Errorf("become: want an entity id, got %v", arg)
		}
		id := int(n)
		return func(ctx *ActionContext) {
			if ctx.Instance == nil || ctx.Instance.IsRemoved() {
				return
			}
			ctx.Instance.Replace(id)
		}, nil
	},
	"emit": func(arg any) (Action, error) {
		event, ok := arg.(string)
		if !ok || event == "" {
			return nil, fmt.Errorf("emit: want an event name, got %v", arg)
		}
		return func(ctx *ActionContext) {
			ctx.Machine.Fire(event)
		}, nil
	},
}

// RegisterAction makes a named action available to machine definitions
// compiled afterwards. Registering an existing name replaces it.
func RegisterAction(name string, factory ActionFactory) {
	actionRegistry[name] = factory
}

func numberMap(action string, arg any) (map[string]float64, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: want a mapping, got %v", action, arg)
	}
	out := make(map[string]float64, len(m))
	for name, v := range m {
		n, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("%s: %s is not a number", action, name)
		}
		out[name] = n
	}
	return out, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Definitions ---

// RawMachine is the YAML form of a machine definition.
type RawMachine struct {
	Initial     string                     `yaml:"initial"`
	Params      map[string]float64         `yaml:"params"`
	States      map[string]RawState        `yaml:"states"`
	Transitions map[string][]RawTransition `yaml:"transitions"`
}

// RawState lists a state's actions. Each entry is a one-key mapping from an
// action name to its argument.
type RawState struct {
	OnEnter []map[string]any `yaml:"on_enter"`
	While   []map[string]any `yaml:"while"`
	OnExit  []map[string]any `yaml:"on_exit"`
}

// RawTransition leaves a state on an event, after a time in the state (ms),
// when a parameter comparison holds, or when both After and When hold.
type RawTransition struct {
	Event string        `yaml:"event"`
	After float64       `yaml:"after"`
	When  *RawCondition `yaml:"when"`
	To    string        `yaml:"to"`
}

// RawCondition compares a machine parameter against a constant.
type RawCondition struct {
	Param string  `yaml:"param"`
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`
}

// StateDef holds a state's compiled actions.
type StateDef struct {
	OnEnter []Action
	While   []Action
	OnExit  []Action
}

// Condition is a compiled parameter comparison.
type Condition struct {
	Param string
	Op    string
	Value float64
}

func (c *Condition) holds(params map[string]float64) bool {
	v := params[c.Param]
	switch c.Op {
	case "<":
		return v < c.Value
	case "<=":
		return v <= c.Value
	case ">":
		return v > c.Value
	case ">=":
		return v >= c.Value
	case "==":
		return v == c.Value
	case "!=":
		return v != c.Value
	}
	return false
}

// Transition is a compiled edge out of a state.
type Transition struct {
	Event string
	After float64
	When  *Condition
	To    string
}

// MachineDef is a compiled, shareable machine definition.
type MachineDef struct {
	Initial     string
	Params      map[string]float64
	States      map[string]StateDef
	Transitions map[string][]Transition
}

// LoadMachineDef parses and compiles a YAML machine definition.
func LoadMachineDef(yamlData []byte) (*MachineDef, error) {
	var raw RawMachine
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return nil, fmt.Errorf("tessera: failed to parse machine YAML: %w", err)
	}
	return CompileMachine(raw)
}

// CompileMachine resolves action names through the registry and checks that
// every transition names a known state and a trigger.
func CompileMachine(raw RawMachine) (*MachineDef, error) {
	if raw.Initial == "" {
		return nil, fmt.Errorf("tessera: fsm: missing initial state")
	}
	if _, ok := raw.States[raw.Initial]; !ok {
		return nil, fmt.Errorf("tessera: fsm: initial state %q is not defined", raw.Initial)
	}

	def := &MachineDef{
		Initial:     raw.Initial,
		Params:      make(map[string]float64, len(raw.Params)),
		States:      make(map[string]StateDef, len(raw.States)),
		Transitions: make(map[string][]Transition, len(raw.Transitions)),
	}
	for name, v := range raw.Params {
		def.Params[name] = v
	}

	for _, name := range sortedNames(raw.States) {
		s := raw.States[name]
		onEnter, err := compileActions(name, "on_enter", s.OnEnter)
		if err != nil {
			return nil, err
		}
		while, err := compileActions(name, "while", s.While)
		if err != nil {
			return nil, err
		}
		onExit, err := compileActions(name, "on_exit", s.OnExit)
		if err != nil {
			return nil, err
		}
		def.States[name] = StateDef{OnEnter: onEnter, While: while, OnExit: onExit}
	}

	for _, from := range sortedNames(raw.Transitions) {
		if _, ok := raw.States[from]; !ok {
			return nil, fmt.Errorf("tessera: fsm: transitions from undefined state %q", from)
		}
		for i, rt := range raw.Transitions[from] {
			tr, err := compileTransition(rt)
			if err != nil {
				return nil, fmt.Errorf("tessera: fsm: transition %s[%d]: %w", from, i, err)
			}
			if _, ok := raw.States[tr.To]; !ok {
				return nil, fmt.Errorf("tessera: fsm: transition %s[%d]: unknown state %q", from, i, tr.To)
			}
			def.Transitions[from] = append(def.Transitions[from], tr)
		}
	}
	return def, nil
}

func compileActions(state, list string, entries []map[string]any) ([]Action, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]Action, 0, len(entries))
	for _, entry := range entries {
		if len(entry) != 1 {
			return nil, fmt.Errorf("tessera: fsm: %s.%s: each action needs exactly one name", state, list)
		}
		for name, arg := range entry {
			factory, ok := actionRegistry[name]
			if !ok {
				return nil, fmt.Errorf("tessera: fsm: %s.%s: unknown action %q", state, list, name)
			}
			a, err := factory(arg)
			if err != nil {
				return nil, fmt.Errorf("tessera: fsm: %s.%s: %w", state, list, err)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func compileTransition(rt RawTransition) (Transition, error) {
	tr := Transition{Event: rt.Event, After: rt.After, To: rt.To}
	if rt.To == "" {
		return tr, fmt.Errorf("missing to state")
	}
	if rt.After < 0 {
		return tr, fmt.Errorf("negative after %v", rt.After)
	}
	if rt.When != nil {
		switch rt.When.Op {
		case "<", "<=", ">", ">=", "==", "!=":
		default:
			return tr, fmt.Errorf("unknown comparison %q", rt.When.Op)
		}
		if rt.When.Param == "" {
			return tr, fmt.Errorf("condition needs a param")
		}
		tr.When = &Condition{Param: rt.When.Param, Op: rt.When.Op, Value: rt.When.Value}
	}
	timed := tr.After > 0 || tr.When != nil
	switch {
	case tr.Event != "" && timed:
		return tr, fmt.Errorf("event transitions cannot also use after or when")
	case tr.Event == "" && !timed:
		return tr, fmt.Errorf("needs an event, after, or when")
	}
	return tr, nil
}

// --- Machine ---

// maxChainedEvents bounds how many emitted events one step may process, so
// two states emitting into each other cannot loop forever.
const maxChainedEvents = 32

// Machine runs one MachineDef for one owner. Time is in milliseconds.
type Machine struct {
	def     *MachineDef
	owner   *Instance
	state   string
	elapsed float64
	params  map[string]float64
	pending []string
	running bool
	started bool
	notify  func(from, to string)

	// OnStateChange, if set, is called after every state entry, including
	// the initial state (from is "").
	OnStateChange func(from, to string)
}

// NewMachine creates a machine in def's initial state. The initial state's
// on_enter actions run on Start or on the first Update.
func NewMachine(def *MachineDef) *Machine {
	m := &Machine{
		def:    def,
		state:  def.Initial,
		params: make(map[string]float64, len(def.Params)),
	}
	for name, v := range def.Params {
		m.params[name] = v
	}
	return m
}

// Owner returns the instance the machine is attached to, if any.
func (m *Machine) Owner() *Instance {
	return m.owner
}

// State returns the current state name.
func (m *Machine) State() string {
	return m.state
}

// Elapsed returns the time spent in the current state.
func (m *Machine) Elapsed() float64 {
	return m.elapsed
}

// Param returns a parameter value; unknown parameters are zero.
func (m *Machine) Param(name string) float64 {
	return m.params[name]
}

// SetParam sets a parameter value.
func (m *Machine) SetParam(name string, v float64) {
	m.params[name] = v
}

// Start enters the initial state. It is a no-op once started.
func (m *Machine) Start() {
	if m.started {
		return
	}
	m.started = true
	m.state = m.def.Initial
	m.elapsed = 0
	m.run(m.def.States[m.state].OnEnter)
	m.changed("", m.state)
	m.drain()
}

// Fire delivers an event. It reports whether the event caused a transition.
// Events fired from inside an action are queued and handled once the
// current action list finishes.
func (m *Machine) Fire(event string) bool {
	if m.running {
		m.pending = append(m.pending, event)
		return false
	}
	m.Start()
	ok := m.handle(event)
	m.drain()
	return ok
}

// Update runs the current state's while actions and takes the first timed
// or conditional transition that holds.
func (m *Machine) Update(dt float64) {
	m.Start()
	m.elapsed += dt
	m.run(m.def.States[m.state].While)
	m.drain()
	for _, tr := range m.def.Transitions[m.state] {
		if tr.Event != "" {
			continue
		}
		if tr.After > 0 && m.elapsed < tr.After {
			continue
		}
		if tr.When != nil && !tr.When.holds(m.params) {
			continue
		}
		m.enter(tr.To)
		m.drain()
		return
	}
}

func (m *Machine) handle(event string) bool {
	for _, tr := range m.def.Transitions[m.state] {
		if tr.Event == event {
			m.enter(tr.To)
			return true
		}
	}
	return false
}

func (m *Machine) enter(to string) {
	from := m.state
	m.run(m.def.States[from].OnExit)
	m.state = to
	m.elapsed = 0
	m.run(m.def.States[to].OnEnter)
	m.changed(from, to)
}

func (m *Machine) changed(from, to string) {
	if m.notify != nil {
		m.notify(from, to)
	}
	if m.OnStateChange != nil {
		m.OnStateChange(from, to)
	}
}

func (m *Machine) run(actions []Action) {
	if len(actions) == 0 {
		return
	}
	ctx := ActionContext{Machine: m, Instance: m.owner}
	m.running = true
	for _, a := range actions {
		a(&ctx)
	}
	m.running = false
}

func (m *Machine) drain() {
	for n := 0; len(m.pending) > 0; n++ {
		if n == maxChainedEvents {
			m.pending = m.pending[:0]
			return
		}
		event := m.pending[0]
		m.pending = m.pending[1:]
		m.handle(event)
	}
}
