package dispatch

import (
	"fmt"
	"time"

	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/trace"
)

// DispatchResult reports the outcome of one engine call: whether the
// processed item was consumed, which transitions fired in execution order
// (completion chain included), and any fault raised. Drain and Tick
// aggregate across every step they process.
type DispatchResult struct {
	Consumed bool
	Fired    []model.TransitionID
	Fault    *RuntimeFault
}

// stepRec accumulates one step's trace material while the engine works.
type stepRec struct {
	firings []trace.Firing
	fired   []model.TransitionID
	fault   *RuntimeFault // first recoverable fault observed
}

func (r *stepRec) start(tid model.TransitionID, label string) {
	r.firings = append(r.firings, trace.Firing{ID: tid, Transition: label})
	if tid != model.TransitionNone {
		r.fired = append(r.fired, tid)
	}
}

func (r *stepRec) cur() *trace.Firing {
	if len(r.firings) == 0 {
		r.start(model.TransitionNone, "")
	}
	return &r.firings[len(r.firings)-1]
}

func (r *stepRec) noteFault(f *RuntimeFault) {
	if r.fault == nil {
		r.fault = f
	}
}

// Init enters the machine's initial configuration: the root region's
// default path, then any completions that cascade from it. Called
// implicitly by the first Dispatch, Step, or Tick.
func (e *Engine) Init() *RuntimeFault {
	if e.halted != nil {
		return e.haltedFault()
	}
	if e.started {
		return nil
	}
	e.started = true
	e.chain = 0

	rec := &stepRec{}
	rec.start(model.TransitionNone, "(init)")
	fatal := e.enterRegionDefault(e.m.Root, nil, rec)
	if fatal == nil {
		fatal = e.processCompletions(nil, rec)
	}
	if fatal == nil && rec.fault != nil && rec.fault.Fatal {
		fatal = rec.fault
	}
	if fatal != nil {
		e.halted = fatal
		rec.noteFault(fatal)
	}
	e.emitStep("(init)", model.EventNone, nil, nil, trace.Consumed, rec)
	return fatal
}

// Dispatch enqueues an event and processes the front of the queue: one
// item plus its full completion chain. Events raised during the step wait
// for a later Dispatch, Step, or Drain call.
func (e *Engine) Dispatch(ev Event) DispatchResult {
	if e.halted != nil {
		return DispatchResult{Fault: e.haltedFault()}
	}
	if fault := e.Init(); fault != nil {
		return DispatchResult{Fault: fault}
	}
	if fault := e.queue.Enqueue(queued{event: ev, timer: timerNone}); fault != nil {
		if fault.Fatal {
			e.halted = fault
		}
		rec := &stepRec{}
		rec.noteFault(fault)
		e.emitStep(e.m.Events[ev.ID].Name, ev.ID, formatPayload(ev.Payload), e.preSnapshot(), trace.Dropped, rec)
		return DispatchResult{Fault: fault}
	}
	return e.processOne()
}

// Enqueue appends an event without processing. Safe from any goroutine;
// this is the entry point cross-machine senders use.
func (e *Engine) Enqueue(ev Event) *RuntimeFault {
	return e.queue.Enqueue(queued{event: ev, timer: timerNone})
}

// Step processes one pending queue item. Returns false when the queue is
// empty.
func (e *Engine) Step() (bool, DispatchResult) {
	if e.halted != nil {
		return false, DispatchResult{Fault: e.haltedFault()}
	}
	if fault := e.Init(); fault != nil {
		return false, DispatchResult{Fault: fault}
	}
	if e.queue.Len() == 0 {
		return false, DispatchResult{}
	}
	return true, e.processOne()
}

// Drain processes pending items until the queue is empty or a fault
// surfaces.
func (e *Engine) Drain() DispatchResult {
	var res DispatchResult
	for {
		more, r := e.Step()
		res.Consumed = res.Consumed || r.Consumed
		res.Fired = append(res.Fired, r.Fired...)
		if r.Fault != nil {
			res.Fault = r.Fault
			return res
		}
		if !more {
			return res
		}
	}
}

// Tick advances the timer model and processes every delivery it produced,
// draining the queue. Virtual time only moves here: the engine is fully
// deterministic under a scripted Tick sequence.
func (e *Engine) Tick(elapsed time.Duration) DispatchResult {
	if e.halted != nil {
		return DispatchResult{Fault: e.haltedFault()}
	}
	if fault := e.Init(); fault != nil {
		return DispatchResult{Fault: fault}
	}
	for _, slot := range e.timers.advance(elapsed.Milliseconds()) {
		fault := e.queue.Enqueue(queued{event: Event{ID: model.EventNone}, timer: timerHandle(slot)})
		if fault != nil && fault.Fatal {
			e.halted = fault
			return DispatchResult{Fault: fault}
		}
	}
	return e.Drain()
}

// processOne handles the queue's front item: a timer delivery or an
// event, its completion chain, and deferral release.
func (e *Engine) processOne() DispatchResult {
	item, ok := e.queue.TryDequeue()
	if !ok {
		return DispatchResult{}
	}
	e.chain = 0
	rec := &stepRec{}
	pre := e.preSnapshot()

	if item.timer != timerNone {
		return e.processTimer(item.timer, pre, rec)
	}

	ev := item.event
	name := e.m.Events[ev.ID].Name
	chosen, holder := e.selectForEvent(ev)

	disp := trace.Dropped
	var fatal *RuntimeFault
	switch {
	case len(chosen) > 0:
		disp = trace.Consumed
		fatal = e.fireChosen(chosen, ev.Payload, rec)
	case holder != model.StateNone:
		disp = trace.Deferred
		e.cfg.held = append(e.cfg.held, heldEvent{event: ev, holder: holder})
	}

	if fatal == nil && disp == trace.Consumed {
		fatal = e.processCompletions(ev.Payload, rec)
	}
	if fatal == nil && disp == trace.Consumed {
		e.releaseDeferred(rec)
	}
	if fatal == nil && rec.fault != nil && rec.fault.Fatal {
		fatal = rec.fault
	}
	if fatal != nil {
		e.halted = fatal
		rec.noteFault(fatal)
	}
	e.emitStep(name, ev.ID, formatPayload(ev.Payload), pre, disp, rec)
	res := DispatchResult{Consumed: disp == trace.Consumed, Fired: rec.fired}
	if fatal != nil {
		res.Fault = fatal
		return res
	}
	res.Fault = rec.fault
	return res
}

// selectForEvent resolves, per active leaf, the innermost state defining
// transitions on the event. A defining state shadows everything outward,
// whether or not a guard holds; a state that defers without defining wins
// over outer definitions the same way. The returned transitions are
// deduplicated in leaf order.
func (e *Engine) selectForEvent(ev Event) ([]model.TransitionID, model.StateID) {
	var chosen []model.TransitionID
	holder := model.StateNone

	for _, leaf := range e.activeLeaves() {
		chain := e.res.Ancestors(leaf)
	scan:
		for i := len(chain) - 1; i >= 0; i-- {
			s := chain[i]
			own := e.idx.Own(s, ev.ID)
			if len(own) > 0 {
				for _, tid := range own {
					t := &e.m.Transitions[tid]
					if e.evalGuard(t.Guard, ev.Payload) {
						if !containsTID(chosen, tid) {
							chosen = append(chosen, tid)
						}
						break scan
					}
				}
				// All guards false. The event may still be deferred here.
				if holder == model.StateNone && stateDefers(&e.m.States[s], ev.ID) {
					holder = s
				}
				break scan
			}
			if stateDefers(&e.m.States[s], ev.ID) {
				if holder == model.StateNone {
					holder = s
				}
				break scan
			}
		}
	}
	return chosen, holder
}

func stateDefers(s *model.State, ev model.EventID) bool {
	for _, d := range s.Defer {
		if d == ev {
			return true
		}
	}
	return false
}

func containsTID(ids []model.TransitionID, id model.TransitionID) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

// fireChosen executes the selected transitions in leaf order, skipping any
// whose source an earlier firing already deactivated.
func (e *Engine) fireChosen(chosen []model.TransitionID, payload Payload, rec *stepRec) *RuntimeFault {
	for _, tid := range chosen {
		t := &e.m.Transitions[tid]
		if !e.cfg.IsActive(e.m, t.Source) {
			continue
		}
		if fault := e.fireTransition(t, payload, rec); fault != nil {
			return fault
		}
	}
	return nil
}

// processTimer handles a dequeued timer delivery.
func (e *Engine) processTimer(handle timerHandle, pre []model.StateID, rec *stepRec) DispatchResult {
	entry := &e.timers.entries[handle]
	t := &e.m.Transitions[entry.transition]
	name := e.timerEventName(t)

	if !e.timers.deliverable(handle) || !e.cfg.IsActive(e.m, t.Source) {
		e.emitStep(name, model.EventNone, nil, pre, trace.Discarded, rec)
		return DispatchResult{}
	}
	if !e.evalGuard(t.Guard, nil) {
		e.emitStep(name, model.EventNone, nil, pre, trace.Dropped, rec)
		return DispatchResult{}
	}

	fatal := e.fireTransition(t, nil, rec)
	if fatal == nil {
		fatal = e.processCompletions(nil, rec)
	}
	if fatal == nil {
		e.releaseDeferred(rec)
	}
	if fatal == nil && rec.fault != nil && rec.fault.Fatal {
		fatal = rec.fault
	}
	if fatal != nil {
		e.halted = fatal
		rec.noteFault(fatal)
	}
	e.emitStep(name, model.EventNone, nil, pre, trace.Consumed, rec)
	res := DispatchResult{Consumed: true, Fired: rec.fired}
	if fatal != nil {
		res.Fault = fatal
		return res
	}
	res.Fault = rec.fault
	return res
}

func (e *Engine) timerEventName(t *model.Transition) string {
	kind := "after"
	if t.Trigger.Kind == model.TriggerEvery {
		kind = "every"
	}
	return fmt.Sprintf("%s(%dms)@%s", kind, t.Trigger.DelayMs, e.m.States[t.Source].Name)
}

// processCompletions drains the completion queue, firing at most one
// enabled completion transition per complete state and counting every
// firing against the chain bound.
func (e *Engine) processCompletions(payload Payload, rec *stepRec) *RuntimeFault {
	for len(e.pending) > 0 {
		s := e.pending[0]
		e.pending = e.pending[1:]
		st := &e.m.States[s]

		if st.Kind == model.Join {
			if fault := e.fireJoin(s, payload, rec); fault != nil {
				return fault
			}
			continue
		}

		if !e.cfg.IsActive(e.m, s) || !e.ownerComplete(s) {
			continue
		}
		for _, tid := range e.idx.Completions(s) {
			t := &e.m.Transitions[tid]
			if !e.evalGuard(t.Guard, payload) {
				continue
			}
			e.chain++
			if e.chain > e.maxChain {
				return newCompletionOverflow(e.maxChain)
			}
			if fault := e.fireTransition(t, payload, rec); fault != nil {
				return fault
			}
			break
		}
	}
	return nil
}

// fireJoin runs a fully arrived join: the whole parallel state exits as a
// unit and the join's continuation carries on to its target.
func (e *Engine) fireJoin(join model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	st := &e.m.States[join]
	flags := e.cfg.joinArrived[join]
	for _, arrived := range flags {
		if !arrived {
			return nil
		}
	}
	parallel := e.res.EnclosingOfKind(st.JoinSources[0], model.Parallel)
	if parallel == model.StateNone || !e.cfg.IsActive(e.m, parallel) {
		return nil
	}

	for _, tid := range e.idx.Completions(join) {
		t := &e.m.Transitions[tid]
		if !e.evalGuard(t.Guard, payload) {
			continue
		}
		e.chain++
		if e.chain > e.maxChain {
			return newCompletionOverflow(e.maxChain)
		}
		rec.start(tid, e.transitionLabel(t))
		for i := range flags {
			flags[i] = false
		}
		domain := e.res.LCA(parallel, t.Target)
		if fault := e.exitScope(domain, parallel, payload, rec); fault != nil {
			return fault
		}
		if fault := e.runActions(t.Actions, payload, rec); fault != nil {
			return fault
		}
		return e.enterTarget(domain, t.Target, payload, rec)
	}
	return nil
}

// releaseDeferred re-inserts held events whose holding state has exited,
// oldest first at the front of the queue.
func (e *Engine) releaseDeferred(rec *stepRec) {
	if len(e.cfg.held) == 0 {
		return
	}
	var keep, release []heldEvent
	for _, h := range e.cfg.held {
		if e.cfg.IsActive(e.m, h.holder) {
			keep = append(keep, h)
		} else {
			release = append(release, h)
		}
	}
	if len(release) == 0 {
		return
	}
	e.cfg.held = keep
	// Reverse push so the oldest released event ends up frontmost.
	for i := len(release) - 1; i >= 0; i-- {
		if fault := e.queue.PushFront(queued{event: release[i].event, timer: timerNone}); fault != nil {
			rec.noteFault(fault)
		}
	}
}

// preSnapshot captures the active leaf set before a step mutates it. Only
// taken when a sink will consume it; the result feeds Step.PreActive.
func (e *Engine) preSnapshot() []model.StateID {
	if e.sink == nil {
		return nil
	}
	return e.activeLeaves()
}

// emitStep stamps and records one trace step. The logical clock advances
// whether or not a sink is attached, so stored and golden runs agree on
// seq numbers.
func (e *Engine) emitStep(event string, eventID model.EventID, payload []string, pre []model.StateID, disp trace.Disposition, rec *stepRec) {
	seq := e.seq.Next()
	if e.sink == nil {
		return
	}
	post := e.activeLeaves()
	names := make([]string, len(post))
	for i, s := range post {
		names[i] = e.m.States[s].Name
	}
	step := trace.Step{
		Seq:         seq,
		EventID:     eventID,
		Event:       event,
		Payload:     payload,
		Disposition: disp,
		Firings:     pruneFirings(rec.firings),
		PreActive:   pre,
		ActiveIDs:   post,
		Active:      names,
		QueueLen:    e.queue.Len(),
	}
	if rec.fault != nil {
		step.Fault = rec.fault.Error()
	}
	e.sink.Record(step)
}

// pruneFirings drops empty placeholder records created by cur() on steps
// that never fired.
func pruneFirings(firings []trace.Firing) []trace.Firing {
	out := firings[:0]
	for _, f := range firings {
		if f.Transition == "" && len(f.Entered) == 0 && len(f.Exited) == 0 && len(f.Actions) == 0 {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func formatPayload(vals []model.Value) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = model.FormatValue(v)
	}
	return out
}
