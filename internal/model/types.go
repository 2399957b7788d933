package model

// StateKind classifies a node in the containment tree. Simple, composite,
// parallel, and final states have run-to-completion presence in the active
// configuration; the remaining kinds are pseudostates with no persistent
// runtime context (history pseudostates own a recorded target per instance,
// stored in the ActiveConfiguration, not here).
type StateKind int

const (
	// Simple is a leaf state with no child regions.
	Simple StateKind = iota + 1
	// Composite owns one implicit or several named regions.
	Composite
	// Parallel owns two or more named regions, all concurrently active
	// while the parallel state is active.
	Parallel
	// Final marks region completion; entering it synthesizes a completion
	// event for the enclosing composite.
	Final
	// Choice is a dynamic branch pseudostate evaluated at dispatch time.
	Choice
	// Junction is a static branch pseudostate resolved before firing.
	Junction
	// HistoryShallow records the most recent direct child of the enclosing
	// composite.
	HistoryShallow
	// HistoryDeep records the full active leaf path under the enclosing
	// composite.
	HistoryDeep
	// Fork splits one compound transition into one entry target per region
	// of a parallel state.
	Fork
	// Join fires once all of its source states, spanning every region of
	// one parallel state, have arrived.
	Join
	// EntryPoint is a named entry port on a composite boundary.
	EntryPoint
	// ExitPoint is a named exit port on a composite boundary.
	ExitPoint
)

// String returns the kind name used in faults and trace output.
func (k StateKind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Composite:
		return "composite"
	case Parallel:
		return "parallel"
	case Final:
		return "final"
	case Choice:
		return "choice"
	case Junction:
		return "junction"
	case HistoryShallow:
		return "history"
	case HistoryDeep:
		return "history*"
	case Fork:
		return "fork"
	case Join:
		return "join"
	case EntryPoint:
		return "entry-point"
	case ExitPoint:
		return "exit-point"
	default:
		return "unknown"
	}
}

// IsPseudo reports whether the kind is a pseudostate: the dispatch engine
// never rests in a pseudostate between events.
func (k StateKind) IsPseudo() bool {
	switch k {
	case Choice, Junction, HistoryShallow, HistoryDeep, Fork, Join, EntryPoint, ExitPoint:
		return true
	default:
		return false
	}
}

// State is one node of the containment tree.
type State struct {
	ID   StateID
	Name string
	Kind StateKind

	// Owner is the region directly containing this state. Top-level states
	// live in the implicit root region.
	Owner RegionID

	// Regions lists the child regions of a composite (one or more) or
	// parallel (two or more) state, in declaration order. Empty otherwise.
	Regions []RegionID

	// Entry and Exit run on every entry to / exit from the state.
	Entry []Action
	Exit  []Action

	// Defer lists events held unconsumed while this state is active and
	// re-queued when the machine leaves it.
	Defer []EventID

	// ForkTargets lists the entry target per region for a Fork pseudostate,
	// one per region of the forked-into parallel state.
	ForkTargets []StateID

	// JoinSources lists the arrival states for a Join pseudostate, spanning
	// all regions of one parallel state.
	JoinSources []StateID

	// Slot is the per-instance history storage slot for a history
	// pseudostate, assigned during validation. SlotNone otherwise.
	Slot HistorySlot
}

// Region is a named partition holding a tree of states. Every region has
// exactly one initial target and, at runtime, an independent active-state
// cursor.
type Region struct {
	ID   RegionID
	Name string

	// Owner is the composite or parallel state owning this region, or
	// StateNone for the implicit root region.
	Owner StateID

	// States lists the direct children, in declaration order.
	States []StateID

	// Initial is the default entry target, a direct child.
	Initial StateID
}

// TriggerKind classifies what causes a transition to fire.
type TriggerKind int

const (
	// TriggerEvent fires on a named external or raised event.
	TriggerEvent TriggerKind = iota + 1
	// TriggerCompletion fires on the completion event synthesized when the
	// source composite's regions all reach final states.
	TriggerCompletion
	// TriggerAfter fires once, a fixed delay after the source is entered.
	TriggerAfter
	// TriggerEvery fires periodically while the source stays active.
	TriggerEvery
)

// Trigger identifies the stimulus of a transition.
type Trigger struct {
	Kind TriggerKind

	// Event is the triggering event for TriggerEvent.
	Event EventID

	// DelayMs is the delay (TriggerAfter) or period (TriggerEvery) in
	// milliseconds.
	DelayMs int64
}

// TransitionKind classifies entry/exit behavior.
type TransitionKind int

const (
	// External exits up to and re-enters from the LCA, running exit and
	// entry actions along the way. A self-transition exits and re-enters
	// its own source.
	External TransitionKind = iota + 1
	// Internal runs its actions without exiting any state. No target.
	Internal
	// Local stays inside the source composite: the source itself is not
	// exited when the target is one of its descendants.
	Local
)

// DefaultPriority is assigned to transitions that declare no explicit
// priority. Lower numbers win.
const DefaultPriority = 100

// Transition connects a source to an optional target under a trigger.
type Transition struct {
	ID       TransitionID
	Kind     TransitionKind
	Source   StateID
	Target   StateID // StateNone for internal transitions
	Trigger  Trigger
	Guard    GuardExpr // nil means unguarded (always enabled)
	Actions  []Action  // executed in declaration order
	Priority int       // ascending; equal priorities require disjoint guards
}

// Event declares a named event with an ordered, typed payload field list.
// Payload fields are read-only at use sites.
type Event struct {
	ID      EventID
	Name    string
	Payload []Field
}

// QueuePolicy selects the outcome when an enqueue hits a full queue.
type QueuePolicy int

const (
	// DropOldest silently discards the oldest pending event and admits the
	// new one.
	DropOldest QueuePolicy = iota + 1
	// DropNewest silently discards the incoming event.
	DropNewest
	// Reject yields a caller-observable overflow failure.
	Reject
	// Assert treats overflow as a fatal modeling defect.
	Assert
)

// String returns the policy name used in model documents.
func (p QueuePolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case Reject:
		return "error"
	case Assert:
		return "assert"
	default:
		return "unknown"
	}
}

// QueueConfig fixes the bounded event queue at model level: capacity is a
// compile-time constant of the generated target.
type QueueConfig struct {
	Capacity int
	Policy   QueuePolicy
}

// Machine is the validated, name-resolved semantic model of one statechart.
// Immutable once Validate has accepted it.
type Machine struct {
	Name string

	// Context is the mutable field set, one instance per machine instance.
	Context []Field

	Events      []Event
	Regions     []Region
	States      []State
	Transitions []Transition

	// Root is the implicit top-level region.
	Root RegionID

	// ExternGuards and ExternActions name the capability slots bound to
	// function values at engine build time. Guard and action nodes refer
	// to these by index, never by name.
	ExternGuards  []string
	ExternActions []string

	Queue QueueConfig

	// HistorySlots is the number of per-instance history slots, assigned
	// during validation.
	HistorySlots int

	validated bool
}

// Validated reports whether the machine has passed structural validation.
// The hierarchy resolver and dispatch engine refuse unvalidated machines.
func (m *Machine) Validated() bool {
	return m.validated
}

// State returns the state for a handle. Panics on an out-of-range handle:
// handles are produced by validation and are trusted afterwards.
func (m *Machine) State(id StateID) *State {
	return &m.States[id]
}

// Region returns the region for a handle.
func (m *Machine) Region(id RegionID) *Region {
	return &m.Regions[id]
}

// Transition returns the transition for a handle.
func (m *Machine) Transition(id TransitionID) *Transition {
	return &m.Transitions[id]
}

// Event returns the event for a handle.
func (m *Machine) Event(id EventID) *Event {
	return &m.Events[id]
}

// EventByName resolves an event name, for tooling boundaries only. The
// dispatch path works exclusively in handles.
func (m *Machine) EventByName(name string) (EventID, bool) {
	for i := range m.Events {
		if m.Events[i].Name == name {
			return EventID(i), true
		}
	}
	return EventNone, false
}

// StateByName resolves a state name, for tooling boundaries only.
func (m *Machine) StateByName(name string) (StateID, bool) {
	for i := range m.States {
		if m.States[i].Name == name {
			return StateID(i), true
		}
	}
	return StateNone, false
}
