package model

// Action represents one step of a transition's action list or of a state's
// entry/exit list.
//
// This is a sealed interface - only types in this package implement it.
// Actions never feed back into transition selection, so they are never
// load-bearing for the determinism proof; the analyzer ignores them.
type Action interface {
	action() // Marker method - seals interface to this package
}

// CallExtern invokes an action procedure from the resolved capability table.
type CallExtern struct {
	Proc ProcRef
}

func (CallExtern) action() {}

// Raise enqueues an event on the machine's own external queue. The raised
// event is processed by a later dispatch call, never the current one.
type Raise struct {
	Event EventID
	Args  []Value // literal payload, one per declared payload field
}

func (Raise) action() {}

// Send enqueues an event on another machine's queue, resolved by machine
// name through the cross-instance send table. The target queue applies its
// own overflow policy.
type Send struct {
	Machine string
	Event   EventID
	Args    []Value
}

func (Send) action() {}

// Assign writes a literal into a context field. Inline assignment is the
// only mutation the DSL itself can express; everything else lives in extern
// procedures.
type Assign struct {
	Field int // context field index
	Value Value
}

func (Assign) action() {}
