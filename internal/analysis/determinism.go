package analysis

import (
	"github.com/roach88/strata/internal/model"
)

// checkDeterminism proves, for every (state, event) pair, that at most one
// transition can fire. Because candidate sets always come from exactly one
// state (the innermost-wins scan stops at the first state defining the
// event), it suffices to prove every state's own per-event transition
// groups: within an equal-priority group all guard pairs must be disjoint;
// across distinct priorities, overlap is legal and resolved by the lowest
// number, which is surfaced as an advisory warning.
//
// Tautological guards on a declared guard expression and contradictory
// guards are flagged separately as unconditional / dead transitions.
func checkDeterminism(m *model.Machine, idx *Index, faults *model.FaultList) {
	for s := range m.States {
		source := model.StateID(s)
		// Collect the distinct events this state transitions on, in
		// declaration order of the transitions.
		seen := make(map[model.EventID]bool)
		for _, tid := range idx.Outgoing(source) {
			t := m.Transition(tid)
			if t.Trigger.Kind != model.TriggerEvent || seen[t.Trigger.Event] {
				continue
			}
			seen[t.Trigger.Event] = true
			group := idx.Own(source, t.Trigger.Event)
			checkGroup(m, group, t.Trigger.Event, faults)
		}
		if group := idx.Completions(source); len(group) > 0 {
			checkGroup(m, group, model.EventNone, faults)
		}
	}
}

// checkGroup proves one priority-ordered candidate group for one
// (state, event) pair.
func checkGroup(m *model.Machine, group []model.TransitionID, ev model.EventID, faults *model.FaultList) {
	p := &prover{m: m, ev: ev}

	for _, tid := range group {
		t := m.Transition(tid)
		if t.Guard == nil {
			continue
		}
		if p.Tautology(t.Guard) == Proven {
			faults.Add(model.Warnf(model.FaultUnconditional,
				"guard [%s] on transition from %s is always true; the transition is unconditional",
				model.FormatGuard(m, ev, t.Guard), m.States[t.Source].Name).On(tid))
			continue
		}
		if p.Contradiction(t.Guard) == Proven {
			faults.Add(model.Warnf(model.FaultDeadTransition,
				"guard [%s] on transition from %s is always false; the transition can never fire",
				model.FormatGuard(m, ev, t.Guard), m.States[t.Source].Name).On(tid))
		}
	}

	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := m.Transition(group[i]), m.Transition(group[j])
			if a.Priority != b.Priority {
				// Distinct priorities: overlap is an intentional,
				// deterministic resolution (lowest number wins). Note it.
				if p.Disjoint(a.Guard, b.Guard) != Proven {
					faults.Add(model.Warnf(model.FaultPriorityResolved,
						"transitions %d and %d from %s overlap; priority %d beats %d",
						a.ID, b.ID, m.States[a.Source].Name, a.Priority, b.Priority).On(a.ID))
				}
				continue
			}
			if p.Disjoint(a.Guard, b.Guard) != Proven {
				faults.Add(model.Errorf(model.FaultNondeterminism,
					"equal-priority transitions from %s: guards [%s] and [%s] not provably disjoint; add distinct priorities or tighten the guards",
					m.States[a.Source].Name,
					model.FormatGuard(m, ev, a.Guard),
					model.FormatGuard(m, ev, b.Guard)).On(a.ID))
			}
		}
	}
}
