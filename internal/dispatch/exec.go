package dispatch

import (
	"time"

	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/trace"
)

// fireTransition executes one enabled transition, including any
// pseudostate continuation segments it runs into. Returns only fatal
// faults; recoverable ones are noted on the step record.
func (e *Engine) fireTransition(t *model.Transition, payload Payload, rec *stepRec) *RuntimeFault {
	rec.start(t.ID, e.transitionLabel(t))

	if t.Kind == model.Internal || t.Target == model.StateNone {
		return e.runActions(t.Actions, payload, rec)
	}
	if e.m.States[t.Target].Kind == model.Join {
		return e.joinArrival(t, payload, rec)
	}
	return e.runSegment(t, payload, rec)
}

func (e *Engine) transitionLabel(t *model.Transition) string {
	src := e.m.States[t.Source].Name
	if t.Kind == model.Internal || t.Target == model.StateNone {
		return trace.InternalFiring(src)
	}
	return trace.ExternalFiring(src, e.m.States[t.Target].Name)
}

// joinArrival marks one join source as arrived without exiting anything.
// The branch keeps its active state until every source has arrived; the
// join then completes as a unit.
func (e *Engine) joinArrival(t *model.Transition, payload Payload, rec *stepRec) *RuntimeFault {
	if fault := e.runActions(t.Actions, payload, rec); fault != nil {
		return fault
	}
	join := &e.m.States[t.Target]
	flags := e.cfg.joinArrived[t.Target]
	all := true
	for i, src := range join.JoinSources {
		if src == t.Source {
			flags[i] = true
		}
		all = all && flags[i]
	}
	if all {
		e.pending = append(e.pending, t.Target)
	}
	return nil
}

// runSegment performs the exit-actions-entry sequence of one transition
// segment. Compound transitions through pseudostates recurse segment by
// segment.
func (e *Engine) runSegment(t *model.Transition, payload Payload, rec *stepRec) *RuntimeFault {
	src, tgt := t.Source, t.Target
	domain := e.res.LCA(src, tgt)
	if t.Kind == model.Local && e.res.IsProperAncestor(src, tgt) {
		domain = src
	}

	if fault := e.exitScope(domain, src, payload, rec); fault != nil {
		return fault
	}
	if fault := e.runActions(t.Actions, payload, rec); fault != nil {
		return fault
	}
	return e.enterTarget(domain, tgt, payload, rec)
}

// exitScope exits the active subtree that contains src, down from (and
// excluding) domain. domain == src is the local-transition case: the
// source keeps its own presence and only its contents leave.
func (e *Engine) exitScope(domain, src model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	if domain == src {
		order := e.regionOrder[src]
		for i := len(order) - 1; i >= 0; i-- {
			if fault := e.exitRegion(order[i], payload, rec); fault != nil {
				return fault
			}
		}
		return nil
	}
	var region model.RegionID
	if domain == model.StateNone {
		region = e.m.Root
	} else {
		child := e.res.ChildToward(domain, src)
		if child == model.StateNone {
			return nil
		}
		region = e.m.States[child].Owner
	}
	return e.exitRegion(region, payload, rec)
}

// exitRegion exits a region's active subtree innermost-first. History is
// recorded before any child leaves, since the snapshot needs the cursors
// the exit is about to clear.
func (e *Engine) exitRegion(r model.RegionID, payload Payload, rec *stepRec) *RuntimeFault {
	s := e.cfg.active[r]
	if s == model.StateNone {
		return nil
	}
	st := &e.m.States[s]

	if len(st.Regions) > 0 {
		e.recordHistory(s)
		order := e.regionOrder[s]
		for i := len(order) - 1; i >= 0; i-- {
			if fault := e.exitRegion(order[i], payload, rec); fault != nil {
				return fault
			}
		}
		if st.Kind == model.Parallel {
			for _, join := range e.joinsByParallel[s] {
				flags := e.cfg.joinArrived[join]
				for i := range flags {
					flags[i] = false
				}
			}
		}
	}

	if fault := e.runActions(st.Exit, payload, rec); fault != nil {
		return fault
	}
	for _, tid := range e.idx.Timed(s) {
		if slot, live := e.timers.cancel(int32(tid)); live {
			e.clock.Cancel(slot)
		}
	}
	e.cfg.active[r] = model.StateNone
	rec.cur().Exited = append(rec.cur().Exited, st.Name)
	return nil
}

// recordHistory snapshots the regions of an exiting composite into the
// history slots of its history pseudostates. A region that completed (its
// cursor rests on a final state) clears its slot, so the next history
// entry takes the default path.
func (e *Engine) recordHistory(s model.StateID) {
	for _, r := range e.m.States[s].Regions {
		h, ok := e.historyByRegion[r]
		if !ok {
			continue
		}
		hs := &e.m.States[h]
		cur := e.cfg.active[r]
		if cur == model.StateNone || e.m.States[cur].Kind == model.Final {
			e.cfg.history[hs.Slot] = nil
			continue
		}
		if hs.Kind == model.HistoryShallow {
			e.cfg.history[hs.Slot] = []model.StateID{cur}
			continue
		}
		var leaves []model.StateID
		e.collectLeaves(r, &leaves)
		cleared := false
		for _, leaf := range leaves {
			if e.m.States[leaf].Kind == model.Final {
				cleared = true
			}
		}
		if cleared || len(leaves) == 0 {
			e.cfg.history[hs.Slot] = nil
			continue
		}
		snapshot := make([]model.StateID, len(leaves))
		copy(snapshot, leaves)
		e.cfg.history[hs.Slot] = snapshot
	}
}

// enterTarget enters the transition target below domain, dispatching on
// the target's kind.
func (e *Engine) enterTarget(domain, tgt model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	st := &e.m.States[tgt]
	switch st.Kind {
	case model.Simple, model.Final, model.Composite, model.Parallel:
		return e.enterAlong(e.res.PathBelow(domain, tgt), payload, rec, nil)

	case model.Choice, model.Junction, model.EntryPoint, model.ExitPoint:
		parent := e.m.Regions[st.Owner].Owner
		if parent != model.StateNone && parent != domain {
			open := st.Owner
			path := e.res.PathBelow(domain, parent)
			fault := e.enterAlong(path, payload, rec, func(last model.StateID) *RuntimeFault {
				for _, r := range e.regionOrder[last] {
					if r == open {
						continue
					}
					if fault := e.enterRegionDefault(r, payload, rec); fault != nil {
						return fault
					}
				}
				return nil
			})
			if fault != nil {
				return fault
			}
		}
		return e.continueFrom(tgt, payload, rec)

	case model.Fork:
		return e.enterFork(domain, tgt, payload, rec)

	case model.HistoryShallow, model.HistoryDeep:
		return e.enterHistory(domain, tgt, payload, rec)
	}
	return nil
}

// enterAlong enters the chain of states in path outermost-first. Regions
// off the path are default-entered at their ordinal position, so sibling
// region entry keeps its fixed order regardless of which region carries
// the path. complete, when non-nil, takes over the last state's regions.
func (e *Engine) enterAlong(path []model.StateID, payload Payload, rec *stepRec, complete func(last model.StateID) *RuntimeFault) *RuntimeFault {
	if len(path) == 0 {
		return nil
	}
	s := path[0]
	e.enterState(s, payload, rec)

	rest := path[1:]
	if len(rest) == 0 {
		if complete != nil {
			return complete(s)
		}
		for _, r := range e.regionOrder[s] {
			if fault := e.enterRegionDefault(r, payload, rec); fault != nil {
				return fault
			}
		}
		if e.m.States[s].Kind == model.Final {
			e.scheduleCompletion(s)
		}
		return nil
	}

	onPath := e.m.States[rest[0]].Owner
	for _, r := range e.regionOrder[s] {
		if r == onPath {
			if fault := e.enterAlong(rest, payload, rec, complete); fault != nil {
				return fault
			}
			continue
		}
		if fault := e.enterRegionDefault(r, payload, rec); fault != nil {
			return fault
		}
	}
	return nil
}

// enterState sets the region cursor, runs entry actions, and arms the
// state's timed transitions. Region descent is the caller's concern.
func (e *Engine) enterState(s model.StateID, payload Payload, rec *stepRec) {
	st := &e.m.States[s]
	e.cfg.active[st.Owner] = s
	rec.cur().Entered = append(rec.cur().Entered, st.Name)
	if fault := e.runActions(st.Entry, payload, rec); fault != nil {
		// Entry actions can only fail fatally through queue assertion;
		// halting is handled by the caller seeing the noted fault.
		rec.noteFault(fault)
	}
	for _, tid := range e.idx.Timed(s) {
		t := &e.m.Transitions[tid]
		slot := e.timers.arm(int32(tid), t.Trigger.DelayMs)
		e.clock.Start(time.Duration(t.Trigger.DelayMs)*time.Millisecond, slot)
	}
}

// enterRegionDefault enters a region through its initial target.
func (e *Engine) enterRegionDefault(r model.RegionID, payload Payload, rec *stepRec) *RuntimeFault {
	return e.enterAlong([]model.StateID{e.m.Regions[r].Initial}, payload, rec, nil)
}

// continueFrom resolves a pseudostate's outgoing segment: the first
// continuation whose guard holds, in priority order. Guards are evaluated
// at traversal time, which makes choice dynamic; junctions rely on the
// analyzer having proven the branch set covering and disjoint.
func (e *Engine) continueFrom(pseudo model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	e.chain++
	if e.chain > e.maxChain {
		return newCompletionOverflow(e.maxChain)
	}
	for _, tid := range e.idx.Completions(pseudo) {
		t := &e.m.Transitions[tid]
		if e.evalGuard(t.Guard, payload) {
			return e.fireTransition(t, payload, rec)
		}
	}
	return newStuckPseudostate(e.m.States[pseudo].Name)
}

// enterFork enters the parallel state and then each region's designated
// target, in region order. The fork's target set covers every region, so
// no region takes its default.
func (e *Engine) enterFork(domain, fork model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	fk := &e.m.States[fork]
	parallel := e.m.Regions[e.m.States[fk.ForkTargets[0]].Owner].Owner

	enterRegions := func(model.StateID) *RuntimeFault {
		for _, r := range e.regionOrder[parallel] {
			target := model.StateNone
			for _, ft := range fk.ForkTargets {
				if e.m.States[ft].Owner == r {
					target = ft
					break
				}
			}
			if target == model.StateNone {
				if fault := e.enterRegionDefault(r, payload, rec); fault != nil {
					return fault
				}
				continue
			}
			if fault := e.enterAlong([]model.StateID{target}, payload, rec, nil); fault != nil {
				return fault
			}
		}
		return nil
	}

	path := e.res.PathBelow(domain, parallel)
	if len(path) == 0 {
		return enterRegions(parallel)
	}
	return e.enterAlong(path, payload, rec, enterRegions)
}

// enterHistory enters the composite owning the history pseudostate,
// restoring the recorded configuration in the history's region and
// defaulting its siblings.
func (e *Engine) enterHistory(domain, history model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	hs := &e.m.States[history]
	composite := e.m.Regions[hs.Owner].Owner

	restore := func(model.StateID) *RuntimeFault {
		for _, r := range e.regionOrder[composite] {
			if r == hs.Owner {
				if fault := e.restoreHistory(hs, composite, payload, rec); fault != nil {
					return fault
				}
				continue
			}
			if fault := e.enterRegionDefault(r, payload, rec); fault != nil {
				return fault
			}
		}
		return nil
	}

	path := e.res.PathBelow(domain, composite)
	if len(path) == 0 {
		return restore(composite)
	}
	return e.enterAlong(path, payload, rec, restore)
}

// restoreHistory re-enters the history's region from its recorded
// snapshot. An empty slot takes the history's default transition when one
// is declared, else the region initial.
func (e *Engine) restoreHistory(hs *model.State, composite model.StateID, payload Payload, rec *stepRec) *RuntimeFault {
	recorded := e.cfg.history[hs.Slot]
	if len(recorded) == 0 {
		for _, tid := range e.idx.Completions(hs.ID) {
			t := &e.m.Transitions[tid]
			if e.evalGuard(t.Guard, payload) {
				if fault := e.runActions(t.Actions, payload, rec); fault != nil {
					return fault
				}
				return e.enterTarget(composite, t.Target, payload, rec)
			}
		}
		return e.enterRegionDefault(hs.Owner, payload, rec)
	}

	if hs.Kind == model.HistoryShallow {
		return e.enterAlong([]model.StateID{recorded[0]}, payload, rec, nil)
	}

	// Deep restore: re-enter each recorded leaf path, sharing already
	// entered ancestors. Sibling regions are filled by later leaves of the
	// same snapshot, never by defaults.
	for _, leaf := range recorded {
		path := e.res.PathBelow(composite, leaf)
		for _, s := range path {
			if e.cfg.active[e.m.States[s].Owner] == s {
				continue
			}
			e.enterState(s, payload, rec)
		}
	}
	return nil
}

// scheduleCompletion walks up from an entered final state, queueing the
// owning composite when all of its regions have completed. A final state
// in the root region completes the machine.
func (e *Engine) scheduleCompletion(final model.StateID) {
	r := e.m.States[final].Owner
	owner := e.m.Regions[r].Owner
	if owner == model.StateNone {
		e.done = true
		return
	}
	if e.ownerComplete(owner) {
		e.pending = append(e.pending, owner)
	}
}

func (e *Engine) ownerComplete(s model.StateID) bool {
	for _, r := range e.m.States[s].Regions {
		cur := e.cfg.active[r]
		if cur == model.StateNone || e.m.States[cur].Kind != model.Final {
			return false
		}
	}
	return true
}

// runActions executes an action list in order. Only fatal faults abort;
// recoverable delivery failures are noted on the step and execution
// continues.
func (e *Engine) runActions(actions []model.Action, payload Payload, rec *stepRec) *RuntimeFault {
	for _, a := range actions {
		switch act := a.(type) {
		case model.CallExtern:
			e.caps.Actions[act.Proc](e.ctx, payload)
			rec.cur().Actions = append(rec.cur().Actions, "call "+e.m.ExternActions[act.Proc])

		case model.Assign:
			if err := e.ctx.Set(act.Field, act.Value); err == nil {
				rec.cur().Actions = append(rec.cur().Actions,
					e.m.Context[act.Field].Name+" = "+model.FormatValue(act.Value))
			}

		case model.Raise:
			ev := Event{ID: act.Event, Payload: act.Args}
			rec.cur().Actions = append(rec.cur().Actions, "raise "+e.m.Events[act.Event].Name)
			if fault := e.queue.Enqueue(queued{event: ev, timer: timerNone}); fault != nil {
				if fault.Fatal {
					return fault
				}
				rec.noteFault(fault)
			}

		case model.Send:
			rec.cur().Actions = append(rec.cur().Actions,
				"send "+act.Machine+"."+e.m.Events[act.Event].Name)
			if e.sender == nil {
				continue
			}
			if err := e.sender(act.Machine, Event{ID: act.Event, Payload: act.Args}); err != nil {
				rec.noteFault(&RuntimeFault{
					Code:    CodeSendFailed,
					Message: err.Error(),
					Event:   act.Event,
				})
			}
		}
	}
	return nil
}
