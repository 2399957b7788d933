package model

// Builder assembles a Machine arena incrementally. It is the programmatic
// construction surface used by the document loader and by tests; Build runs
// structural validation, so a Machine obtained here is either validated or
// rejected with the collected faults.
//
// The builder hands out handles as elements are added. Handles are plain
// indices, so forward references (a transition to a state added later) are
// expressed by adding the states first - declaration order in the arena is
// also the tie-break order the analyzers rely on, so the builder never
// reorders anything.
type Builder struct {
	m Machine
}

// NewBuilder starts a machine with an empty root region.
func NewBuilder(name string) *Builder {
	b := &Builder{m: Machine{Name: name}}
	b.m.Regions = append(b.m.Regions, Region{
		ID:      0,
		Name:    "root",
		Owner:   StateNone,
		Initial: StateNone,
	})
	b.m.Root = 0
	return b
}

// Root returns the implicit top-level region.
func (b *Builder) Root() RegionID {
	return b.m.Root
}

// ContextField appends a context field and returns its index.
func (b *Builder) ContextField(f Field) int {
	b.m.Context = append(b.m.Context, f)
	return len(b.m.Context) - 1
}

// Event declares an event and returns its handle.
func (b *Builder) Event(name string, payload ...Field) EventID {
	id := EventID(len(b.m.Events))
	b.m.Events = append(b.m.Events, Event{ID: id, Name: name, Payload: payload})
	return id
}

// ExternGuard declares a guard capability slot.
func (b *Builder) ExternGuard(name string) GuardRef {
	b.m.ExternGuards = append(b.m.ExternGuards, name)
	return GuardRef(len(b.m.ExternGuards) - 1)
}

// ExternAction declares an action capability slot.
func (b *Builder) ExternAction(name string) ProcRef {
	b.m.ExternActions = append(b.m.ExternActions, name)
	return ProcRef(len(b.m.ExternActions) - 1)
}

// State adds a state of the given kind to a region.
func (b *Builder) State(owner RegionID, name string, kind StateKind) StateID {
	id := StateID(len(b.m.States))
	b.m.States = append(b.m.States, State{
		ID:    id,
		Name:  name,
		Kind:  kind,
		Owner: owner,
		Slot:  SlotNone,
	})
	b.m.Regions[owner].States = append(b.m.Regions[owner].States, id)
	return id
}

// Region adds a child region to a composite or parallel state.
func (b *Builder) Region(owner StateID, name string) RegionID {
	id := RegionID(len(b.m.Regions))
	b.m.Regions = append(b.m.Regions, Region{
		ID:      id,
		Name:    name,
		Owner:   owner,
		Initial: StateNone,
	})
	b.m.States[owner].Regions = append(b.m.States[owner].Regions, id)
	return id
}

// Initial sets a region's initial target.
func (b *Builder) Initial(r RegionID, target StateID) {
	b.m.Regions[r].Initial = target
}

// OnEntry appends entry actions to a state.
func (b *Builder) OnEntry(s StateID, actions ...Action) {
	b.m.States[s].Entry = append(b.m.States[s].Entry, actions...)
}

// OnExit appends exit actions to a state.
func (b *Builder) OnExit(s StateID, actions ...Action) {
	b.m.States[s].Exit = append(b.m.States[s].Exit, actions...)
}

// DeferEvent marks an event as deferred while the state is active.
func (b *Builder) DeferEvent(s StateID, ev EventID) {
	b.m.States[s].Defer = append(b.m.States[s].Defer, ev)
}

// ForkTargets sets the per-region entry targets of a fork pseudostate.
func (b *Builder) ForkTargets(fork StateID, targets ...StateID) {
	b.m.States[fork].ForkTargets = targets
}

// JoinSources sets the arrival states of a join pseudostate.
func (b *Builder) JoinSources(join StateID, sources ...StateID) {
	b.m.States[join].JoinSources = sources
}

// Transition appends a transition and returns its handle. A zero Priority
// is defaulted during validation.
func (b *Builder) Transition(t Transition) TransitionID {
	t.ID = TransitionID(len(b.m.Transitions))
	b.m.Transitions = append(b.m.Transitions, t)
	return t.ID
}

// Queue sets the bounded queue configuration.
func (b *Builder) Queue(capacity int, policy QueuePolicy) {
	b.m.Queue = QueueConfig{Capacity: capacity, Policy: policy}
}

// Build validates and returns the machine. On validation errors the machine
// is returned unvalidated alongside the faults so tooling can still inspect
// it.
func (b *Builder) Build() (*Machine, FaultList) {
	m := b.m
	faults := m.Validate()
	return &m, faults
}
