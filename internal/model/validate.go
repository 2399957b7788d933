package model

// Structural validation. Validate checks the invariants that make the
// containment tree and transition set well-formed enough for the hierarchy
// resolver to run; the deeper semantic proofs (determinism, reachability,
// fork/join region sets, deferral cycles) live in internal/analysis and run
// only on machines accepted here.
//
// Faults are collected with recoverable continuation, except containment
// faults that leave the tree undefined - those stop validation because every
// later check would chase dangling handles.

// Validate runs structural validation, assigns defaulted priorities and
// history slots, and marks the machine validated when no errors were found.
func (m *Machine) Validate() FaultList {
	var faults FaultList

	if !m.checkContainment(&faults) {
		return faults
	}

	m.checkNames(&faults)
	m.checkRegions(&faults)
	m.checkStates(&faults)
	m.assignHistorySlots()
	m.checkTransitions(&faults)
	m.checkQueue(&faults)

	if !faults.HasErrors() {
		m.validated = true
	}
	return faults
}

// checkContainment verifies every handle resolves and the ownership links
// are mutually consistent. Returns false on a fault that makes the tree
// undefined.
func (m *Machine) checkContainment(faults *FaultList) bool {
	if int(m.Root) < 0 || int(m.Root) >= len(m.Regions) {
		faults.Add(Errorf(FaultBadContainment, "machine %s: root region handle %d out of range", m.Name, m.Root))
		return false
	}
	if m.Regions[m.Root].Owner != StateNone {
		faults.Add(Errorf(FaultBadContainment, "root region must not have an owning state").In(m.Root))
		return false
	}

	for i := range m.Regions {
		r := &m.Regions[i]
		r.ID = RegionID(i)
		if r.Owner != StateNone {
			if int(r.Owner) < 0 || int(r.Owner) >= len(m.States) {
				faults.Add(Errorf(FaultBadContainment, "region %s: owner handle %d out of range", r.Name, r.Owner).In(r.ID))
				return false
			}
			if !containsRegion(m.States[r.Owner].Regions, r.ID) {
				faults.Add(Errorf(FaultBadContainment, "region %s not listed by its owner state %s", r.Name, m.States[r.Owner].Name).In(r.ID))
				return false
			}
		} else if r.ID != m.Root {
			faults.Add(Errorf(FaultBadContainment, "region %s has no owner but is not the root", r.Name).In(r.ID))
			return false
		}
		for _, sid := range r.States {
			if int(sid) < 0 || int(sid) >= len(m.States) {
				faults.Add(Errorf(FaultBadContainment, "region %s: state handle %d out of range", r.Name, sid).In(r.ID))
				return false
			}
			if m.States[sid].Owner != r.ID {
				faults.Add(Errorf(FaultBadContainment, "state %s listed in region %s but owned by region %d",
					m.States[sid].Name, r.Name, m.States[sid].Owner).In(r.ID))
				return false
			}
		}
	}

	for i := range m.States {
		s := &m.States[i]
		s.ID = StateID(i)
		if int(s.Owner) < 0 || int(s.Owner) >= len(m.Regions) {
			faults.Add(Errorf(FaultBadContainment, "state %s: owner region handle %d out of range", s.Name, s.Owner).At(s.ID))
			return false
		}
		if !containsState(m.Regions[s.Owner].States, s.ID) {
			faults.Add(Errorf(FaultBadContainment, "state %s not listed by its owner region %s", s.Name, m.Regions[s.Owner].Name).At(s.ID))
			return false
		}
		for _, rid := range s.Regions {
			if int(rid) < 0 || int(rid) >= len(m.Regions) {
				faults.Add(Errorf(FaultBadContainment, "state %s: child region handle %d out of range", s.Name, rid).At(s.ID))
				return false
			}
			if m.Regions[rid].Owner != s.ID {
				faults.Add(Errorf(FaultBadContainment, "region %s listed by state %s but owned elsewhere", m.Regions[rid].Name, s.Name).At(s.ID))
				return false
			}
		}
	}

	return true
}

// checkNames enforces unique names per scope: sibling states within one
// region, sibling regions within one state, events, context fields, and
// capability slots machine-wide.
func (m *Machine) checkNames(faults *FaultList) {
	for i := range m.Regions {
		r := &m.Regions[i]
		seen := make(map[string]bool, len(r.States))
		for _, sid := range r.States {
			name := m.States[sid].Name
			if seen[name] {
				faults.Add(Errorf(FaultDuplicateName, "state %q declared twice in region %s", name, r.Name).In(r.ID).At(sid))
			}
			seen[name] = true
		}
	}
	for i := range m.States {
		s := &m.States[i]
		seen := make(map[string]bool, len(s.Regions))
		for _, rid := range s.Regions {
			name := m.Regions[rid].Name
			if seen[name] {
				faults.Add(Errorf(FaultDuplicateName, "region %q declared twice in state %s", name, s.Name).At(s.ID))
			}
			seen[name] = true
		}
	}
	checkUnique := func(kind string, names []string) {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if seen[n] {
				faults.Add(Errorf(FaultDuplicateName, "%s %q declared twice", kind, n))
			}
			seen[n] = true
		}
	}
	eventNames := make([]string, len(m.Events))
	for i := range m.Events {
		m.Events[i].ID = EventID(i)
		eventNames[i] = m.Events[i].Name
	}
	checkUnique("event", eventNames)
	fieldNames := make([]string, len(m.Context))
	for i, f := range m.Context {
		fieldNames[i] = f.Name
	}
	checkUnique("context field", fieldNames)
	checkUnique("extern guard", m.ExternGuards)
	checkUnique("extern action", m.ExternActions)
}

// checkRegions enforces exactly one initial target per region, pointing at
// a direct child that the dispatch engine can rest in.
func (m *Machine) checkRegions(faults *FaultList) {
	for i := range m.Regions {
		r := &m.Regions[i]
		if r.Initial == StateNone {
			faults.Add(Errorf(FaultMissingInitial, "region %s has no initial target", r.Name).In(r.ID))
			continue
		}
		if int(r.Initial) < 0 || int(r.Initial) >= len(m.States) || m.States[r.Initial].Owner != r.ID {
			faults.Add(Errorf(FaultMissingInitial, "region %s: initial target is not a direct child", r.Name).In(r.ID))
			continue
		}
		if k := m.States[r.Initial].Kind; k.IsPseudo() || k == Final {
			faults.Add(Errorf(FaultMissingInitial, "region %s: initial target %s is a %s state", r.Name, m.States[r.Initial].Name, k).In(r.ID))
		}
	}
}

// checkStates enforces per-kind shape: region counts, fork/join lists, and
// history placement.
func (m *Machine) checkStates(faults *FaultList) {
	for i := range m.States {
		s := &m.States[i]
		switch s.Kind {
		case Composite:
			if len(s.Regions) < 1 {
				faults.Add(Errorf(FaultBadContainment, "composite state %s owns no regions", s.Name).At(s.ID))
			}
		case Parallel:
			if len(s.Regions) < 2 {
				faults.Add(Errorf(FaultBadContainment, "parallel state %s owns %d regions, need at least 2", s.Name, len(s.Regions)).At(s.ID))
			}
		default:
			if len(s.Regions) != 0 {
				faults.Add(Errorf(FaultBadContainment, "%s state %s must not own regions", s.Kind, s.Name).At(s.ID))
			}
		}

		if s.Kind == Fork && len(s.ForkTargets) < 2 {
			faults.Add(Errorf(FaultForkJoinMismatch, "fork %s lists %d targets, need at least 2", s.Name, len(s.ForkTargets)).At(s.ID))
		}
		if s.Kind != Fork && len(s.ForkTargets) != 0 {
			faults.Add(Errorf(FaultForkJoinMismatch, "%s state %s must not list fork targets", s.Kind, s.Name).At(s.ID))
		}
		if s.Kind == Join && len(s.JoinSources) < 2 {
			faults.Add(Errorf(FaultForkJoinMismatch, "join %s lists %d sources, need at least 2", s.Name, len(s.JoinSources)).At(s.ID))
		}
		if s.Kind != Join && len(s.JoinSources) != 0 {
			faults.Add(Errorf(FaultForkJoinMismatch, "%s state %s must not list join sources", s.Kind, s.Name).At(s.ID))
		}

		if s.Kind == HistoryShallow || s.Kind == HistoryDeep {
			if m.Regions[s.Owner].Owner == StateNone {
				faults.Add(Errorf(FaultBadContainment, "history pseudostate %s must live inside a composite, not the root region", s.Name).At(s.ID))
			}
		}

		if s.Kind.IsPseudo() {
			if len(s.Entry) != 0 || len(s.Exit) != 0 {
				faults.Add(Errorf(FaultBadContainment, "pseudostate %s must not declare entry/exit actions", s.Name).At(s.ID))
			}
			if len(s.Defer) != 0 {
				faults.Add(Errorf(FaultBadContainment, "pseudostate %s must not defer events", s.Name).At(s.ID))
			}
		}

		for _, ev := range s.Defer {
			if int(ev) < 0 || int(ev) >= len(m.Events) {
				faults.Add(Errorf(FaultBadContainment, "state %s defers unknown event handle %d", s.Name, ev).At(s.ID))
			}
		}

		m.checkActions(faults, s.Entry, "entry of state "+s.Name)
		m.checkActions(faults, s.Exit, "exit of state "+s.Name)
	}
}

// assignHistorySlots gives every history pseudostate a per-instance storage
// slot. Runs after containment checks so owners are trustworthy.
func (m *Machine) assignHistorySlots() {
	slot := HistorySlot(0)
	for i := range m.States {
		s := &m.States[i]
		if s.Kind == HistoryShallow || s.Kind == HistoryDeep {
			s.Slot = slot
			slot++
		} else {
			s.Slot = SlotNone
		}
	}
	m.HistorySlots = int(slot)
}

// checkTransitions enforces trigger/target shape per transition kind, fills
// defaulted priorities, and type-checks guards and actions.
func (m *Machine) checkTransitions(faults *FaultList) {
	for i := range m.Transitions {
		t := &m.Transitions[i]
		t.ID = TransitionID(i)
		if t.Priority <= 0 {
			t.Priority = DefaultPriority
		}

		if int(t.Source) < 0 || int(t.Source) >= len(m.States) {
			faults.Add(Errorf(FaultBadContainment, "transition %d: source handle out of range", t.ID).On(t.ID))
			continue
		}
		if t.Kind == Internal {
			if t.Target != StateNone {
				faults.Add(Errorf(FaultBadContainment, "internal transition from %s must not declare a target", m.States[t.Source].Name).On(t.ID))
			}
		} else {
			if int(t.Target) < 0 || int(t.Target) >= len(m.States) {
				faults.Add(Errorf(FaultBadContainment, "transition from %s: target handle out of range", m.States[t.Source].Name).On(t.ID))
				continue
			}
		}

		trigEvent := EventNone
		switch t.Trigger.Kind {
		case TriggerEvent:
			if int(t.Trigger.Event) < 0 || int(t.Trigger.Event) >= len(m.Events) {
				faults.Add(Errorf(FaultBadContainment, "transition from %s triggers unknown event handle %d",
					m.States[t.Source].Name, t.Trigger.Event).On(t.ID))
				continue
			}
			trigEvent = t.Trigger.Event
		case TriggerCompletion:
			// Completion also covers continuation segments out of
			// pseudostates (choice, junction, fork, join, entry/exit
			// points), which fire as soon as the pseudostate is reached.
			if k := m.States[t.Source].Kind; k != Composite && k != Parallel && !k.IsPseudo() {
				faults.Add(Errorf(FaultBadContainment, "completion transition from %s state %s: source must be composite, parallel, or a pseudostate",
					k, m.States[t.Source].Name).On(t.ID))
			}
		case TriggerAfter, TriggerEvery:
			if t.Trigger.DelayMs <= 0 {
				faults.Add(Errorf(FaultBadContainment, "timed transition from %s: delay must be positive, got %dms",
					m.States[t.Source].Name, t.Trigger.DelayMs).On(t.ID))
			}
		default:
			faults.Add(Errorf(FaultBadContainment, "transition from %s has no trigger", m.States[t.Source].Name).On(t.ID))
		}

		m.checkGuard(faults, t.ID, trigEvent, t.Guard)
		m.checkActions(faults, t.Actions, "transition from "+m.States[t.Source].Name)
	}
}

// checkGuard type-checks one guard expression against the context schema
// and the triggering event's payload.
func (m *Machine) checkGuard(faults *FaultList, tid TransitionID, ev EventID, g GuardExpr) {
	switch n := g.(type) {
	case nil:
	case ExternGuard:
		if int(n.Ref) < 0 || int(n.Ref) >= len(m.ExternGuards) {
			faults.Add(Errorf(FaultTypeMismatch, "guard references unknown extern slot %d", n.Ref).On(tid))
		}
	case Not:
		m.checkGuard(faults, tid, ev, n.Operand)
	case All:
		for _, op := range n.Operands {
			m.checkGuard(faults, tid, ev, op)
		}
	case Any:
		for _, op := range n.Operands {
			m.checkGuard(faults, tid, ev, op)
		}
	case Compare:
		field, ok := GuardField(m, ev, n.Field)
		if !ok {
			faults.Add(Errorf(FaultTypeMismatch, "guard compares unresolved field (scope %d index %d)", n.Field.Scope, n.Field.Index).On(tid))
			return
		}
		if field.Type.Kind != KindInt && n.Op != OpEq && n.Op != OpNe {
			faults.Add(Errorf(FaultTypeMismatch, "guard on %s field %s: operator %s requires a bounded integer field",
				field.Type.Kind, field.Name, n.Op).On(tid))
			return
		}
		if !field.Admits(n.Value) {
			faults.Add(Errorf(FaultTypeMismatch, "guard compares field %s against %s, outside its declared %s domain",
				field.Name, FormatValue(n.Value), field.Type.Kind).On(tid))
		}
	}
}

// checkActions type-checks one action list.
func (m *Machine) checkActions(faults *FaultList, actions []Action, where string) {
	for _, a := range actions {
		switch act := a.(type) {
		case CallExtern:
			if int(act.Proc) < 0 || int(act.Proc) >= len(m.ExternActions) {
				faults.Add(Errorf(FaultTypeMismatch, "%s: call of unknown extern action slot %d", where, act.Proc))
			}
		case Raise:
			m.checkEventArgs(faults, where, act.Event, act.Args)
		case Send:
			if act.Machine == "" {
				faults.Add(Errorf(FaultTypeMismatch, "%s: send without a target machine name", where))
			}
			m.checkEventArgs(faults, where, act.Event, act.Args)
		case Assign:
			if act.Field < 0 || act.Field >= len(m.Context) {
				faults.Add(Errorf(FaultTypeMismatch, "%s: assignment to unknown context field %d", where, act.Field))
				continue
			}
			if !m.Context[act.Field].Admits(act.Value) {
				faults.Add(Errorf(FaultTypeMismatch, "%s: assignment of %s outside the domain of field %s",
					where, FormatValue(act.Value), m.Context[act.Field].Name))
			}
		}
	}
}

func (m *Machine) checkEventArgs(faults *FaultList, where string, ev EventID, args []Value) {
	if int(ev) < 0 || int(ev) >= len(m.Events) {
		faults.Add(Errorf(FaultTypeMismatch, "%s: raise/send of unknown event handle %d", where, ev))
		return
	}
	payload := m.Events[ev].Payload
	if len(args) != len(payload) {
		faults.Add(Errorf(FaultTypeMismatch, "%s: event %s takes %d payload fields, got %d",
			where, m.Events[ev].Name, len(payload), len(args)).For(ev))
		return
	}
	for i, arg := range args {
		if !payload[i].Admits(arg) {
			faults.Add(Errorf(FaultTypeMismatch, "%s: event %s payload field %s: %s outside declared domain",
				where, m.Events[ev].Name, payload[i].Name, FormatValue(arg)).For(ev))
		}
	}
}

// checkQueue fills queue defaults and rejects nonsense capacities.
func (m *Machine) checkQueue(faults *FaultList) {
	if m.Queue.Capacity == 0 {
		m.Queue.Capacity = 16
	}
	if m.Queue.Capacity < 0 {
		faults.Add(Errorf(FaultBadContainment, "queue capacity must be positive, got %d", m.Queue.Capacity))
	}
	if m.Queue.Policy == 0 {
		m.Queue.Policy = DropOldest
	}
}

func containsRegion(list []RegionID, id RegionID) bool {
	for _, r := range list {
		if r == id {
			return true
		}
	}
	return false
}

func containsState(list []StateID, id StateID) bool {
	for _, s := range list {
		if s == id {
			return true
		}
	}
	return false
}
