// Package dispatch is the reference interpreter: a run-to-completion
// statechart engine over a validated, analyzed machine.
//
// The engine is single-dispatcher by design. Enqueue is the only operation
// safe to call from other goroutines; Dispatch, Step, and Tick must run on
// one logical thread, mirroring the execution model of a generated embedded
// target. Nothing allocates per event on the hot path except result and
// trace assembly; trace assembly is skipped when no sink is attached.
package dispatch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/analysis"
	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/trace"
)

// DefaultMaxCompletionChain bounds the number of chained completion and
// pseudostate firings one external event may set off. Exceeding it means
// the model contains a completion cycle and is always fatal.
const DefaultMaxCompletionChain = 100

// SendFunc delivers a cross-machine send. Implementations route to the
// named instance's queue; delivery failures surface as non-fatal faults on
// the sending step.
type SendFunc func(machine string, ev Event) error

// Engine executes one machine instance.
type Engine struct {
	m    *model.Machine
	res  *hierarchy.Resolver
	idx  *analysis.Index
	caps Capabilities

	clock  Clock
	sender SendFunc
	sink   trace.Sink
	seq    *trace.Clock
	runID  string

	ctx    *Context
	cfg    *ActiveConfiguration
	queue  *eventQueue
	timers *timerTable

	// regionOrder holds each composite's regions sorted byte-wise by name.
	// Entry walks it forward, exit backward.
	regionOrder map[model.StateID][]model.RegionID

	// joinsByParallel maps a parallel state to the joins whose sources span
	// its regions, for arrival-flag reset on exit.
	joinsByParallel map[model.StateID][]model.StateID

	// historyByRegion maps a region to its history pseudostate, for
	// snapshot recording on composite exit.
	historyByRegion map[model.RegionID]model.StateID

	// pending is the completion queue drained after every firing.
	pending  []model.StateID
	chain    int
	maxChain int

	queueCap    int
	queuePolicy model.QueuePolicy

	halted  *RuntimeFault
	done    bool
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock attaches a timer adapter. The default adapter is inert;
// Tick-driven use needs no adapter at all.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSender routes cross-machine send actions.
func WithSender(f SendFunc) Option {
	return func(e *Engine) { e.sender = f }
}

// WithTrace attaches a step sink.
func WithTrace(sink trace.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMaxCompletionChain overrides the completion chain bound.
func WithMaxCompletionChain(n int) Option {
	return func(e *Engine) { e.maxChain = n }
}

// WithRunID fixes the run identifier, for replay and tests.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// WithQueueCapacity overrides the model's queue capacity.
func WithQueueCapacity(n int) Option {
	return func(e *Engine) { e.queueCap = n }
}

// WithOverflowPolicy overrides the model's overflow policy.
func WithOverflowPolicy(p model.QueuePolicy) Option {
	return func(e *Engine) { e.queuePolicy = p }
}

// New builds an engine for a machine. The machine is analyzed first; any
// error-severity finding rejects it - the engine's selection logic assumes
// the determinism and structure proofs hold.
func New(m *model.Machine, caps Capabilities, opts ...Option) (*Engine, error) {
	report := analysis.Analyze(m)
	if !report.Ok() {
		return nil, fmt.Errorf("machine %s rejected by analysis: %w", m.Name, report.Faults)
	}
	if err := caps.verify(m); err != nil {
		return nil, err
	}

	e := &Engine{
		m:           m,
		res:         report.Resolver,
		idx:         report.Index,
		caps:        caps,
		clock:       nopClock{},
		seq:         trace.NewClock(),
		runID:       uuid.NewString(),
		maxChain:    DefaultMaxCompletionChain,
		queueCap:    m.Queue.Capacity,
		queuePolicy: m.Queue.Policy,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ctx = newContext(m.Context)
	e.cfg = newActiveConfiguration(m)
	e.queue = newEventQueue(e.queueCap, e.queuePolicy)
	e.timers = newTimerTable()
	for i := range m.Transitions {
		t := &m.Transitions[i]
		if t.Trigger.Kind == model.TriggerAfter || t.Trigger.Kind == model.TriggerEvery {
			e.timers.addSlot(int32(t.Source), int32(t.ID), t.Trigger.DelayMs, periodOf(t))
		}
	}
	e.regionOrder = buildRegionOrder(m)
	e.joinsByParallel = buildJoinMap(m, report.Resolver)
	e.historyByRegion = make(map[model.RegionID]model.StateID)
	for i := range m.States {
		s := &m.States[i]
		if s.Kind == model.HistoryShallow || s.Kind == model.HistoryDeep {
			e.historyByRegion[s.Owner] = s.ID
		}
	}
	return e, nil
}

func periodOf(t *model.Transition) int64 {
	if t.Trigger.Kind == model.TriggerEvery {
		return t.Trigger.DelayMs
	}
	return 0
}

// buildRegionOrder sorts each state's regions byte-wise by name. Region
// names are unique within a state, so the order is total; the same order
// must hold in generated targets for trace equivalence.
func buildRegionOrder(m *model.Machine) map[model.StateID][]model.RegionID {
	order := make(map[model.StateID][]model.RegionID)
	for i := range m.States {
		s := &m.States[i]
		if len(s.Regions) == 0 {
			continue
		}
		regions := make([]model.RegionID, len(s.Regions))
		copy(regions, s.Regions)
		for a := 1; a < len(regions); a++ {
			for b := a; b > 0 && m.Regions[regions[b]].Name < m.Regions[regions[b-1]].Name; b-- {
				regions[b], regions[b-1] = regions[b-1], regions[b]
			}
		}
		order[s.ID] = regions
	}
	return order
}

func buildJoinMap(m *model.Machine, res *hierarchy.Resolver) map[model.StateID][]model.StateID {
	joins := make(map[model.StateID][]model.StateID)
	for i := range m.States {
		s := &m.States[i]
		if s.Kind != model.Join || len(s.JoinSources) == 0 {
			continue
		}
		parallel := res.EnclosingOfKind(s.JoinSources[0], model.Parallel)
		if parallel != model.StateNone {
			joins[parallel] = append(joins[parallel], s.ID)
		}
	}
	return joins
}

// RunID returns the run identifier stamped into stored traces.
func (e *Engine) RunID() string {
	return e.runID
}

// Machine returns the machine under execution.
func (e *Engine) Machine() *model.Machine {
	return e.m
}

// Context returns the live context field set.
func (e *Engine) Context() *Context {
	return e.ctx
}

// Configuration returns the live active configuration, for introspection.
func (e *Engine) Configuration() *ActiveConfiguration {
	return e.cfg
}

// QueueLen returns the external queue occupancy.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Done reports whether the top-level region has reached a final state.
func (e *Engine) Done() bool {
	return e.done
}

// Halted returns the fatal fault that stopped the instance, or nil.
func (e *Engine) Halted() *RuntimeFault {
	return e.halted
}

// ActiveNames returns the active leaf state names in region order, the
// form traces use.
func (e *Engine) ActiveNames() []string {
	leaves := e.activeLeaves()
	names := make([]string, len(leaves))
	for i, s := range leaves {
		names[i] = e.m.States[s].Name
	}
	return names
}

// InState reports whether the named state (leaf or ancestor) is active.
func (e *Engine) InState(name string) bool {
	id, ok := e.m.StateByName(name)
	if !ok {
		return false
	}
	return e.cfg.IsActive(e.m, id)
}

// activeLeaves walks the region cursors and returns the active leaves in
// region order.
func (e *Engine) activeLeaves() []model.StateID {
	var out []model.StateID
	e.collectLeaves(e.m.Root, &out)
	return out
}

func (e *Engine) collectLeaves(r model.RegionID, out *[]model.StateID) {
	s := e.cfg.active[r]
	if s == model.StateNone {
		return
	}
	st := &e.m.States[s]
	if len(st.Regions) == 0 {
		*out = append(*out, s)
		return
	}
	for _, child := range e.regionOrder[s] {
		e.collectLeaves(child, out)
	}
}

func (e *Engine) haltedFault() *RuntimeFault {
	return &RuntimeFault{
		Code:    CodeHalted,
		Message: fmt.Sprintf("instance halted by earlier fault: %s", e.halted.Message),
		Fatal:   true,
		Event:   model.EventNone,
	}
}
