package analysis

import (
	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
)

// Reachability. The transition graph is traversed from the initial
// configuration, expanding composite and parallel entry into all regions
// and pseudostate continuations into every branch. States never entered
// are faulted.

// entryClosure accumulates every state activated (or passed through) when
// target is entered, recursing into default region entry and pseudostate
// continuations.
func entryClosure(m *model.Machine, idx *Index, target model.StateID, out map[model.StateID]bool) {
	if out[target] {
		return
	}
	out[target] = true
	s := &m.States[target]

	switch s.Kind {
	case model.Composite, model.Parallel:
		for _, rid := range s.Regions {
			if init := m.Regions[rid].Initial; init != model.StateNone {
				entryClosure(m, idx, init, out)
			}
		}
	case model.Fork:
		for _, t := range s.ForkTargets {
			entryClosure(m, idx, t, out)
		}
	case model.HistoryShallow, model.HistoryDeep:
		// A history pseudostate restores a previously recorded target,
		// which is reachable by construction; only its declared default
		// adds new reachability.
		for _, tid := range idx.Completions(target) {
			if dst := m.Transitions[tid].Target; dst != model.StateNone {
				entryClosure(m, idx, dst, out)
			}
		}
		if len(idx.Completions(target)) == 0 {
			if init := m.Regions[s.Owner].Initial; init != model.StateNone {
				entryClosure(m, idx, init, out)
			}
		}
	case model.Choice, model.Junction, model.Join, model.EntryPoint, model.ExitPoint:
		for _, tid := range idx.Completions(target) {
			if dst := m.Transitions[tid].Target; dst != model.StateNone {
				entryClosure(m, idx, dst, out)
			}
		}
	}
}

// reachableSet computes every state reachable from the initial
// configuration by expanding entry closures through the transition graph.
func reachableSet(m *model.Machine, idx *Index) map[model.StateID]bool {
	reached := make(map[model.StateID]bool)
	if init := m.Regions[m.Root].Initial; init != model.StateNone {
		entryClosure(m, idx, init, reached)
	}

	for changed := true; changed; {
		changed = false
		for s := range reached {
			for _, tid := range idx.Outgoing(s) {
				dst := m.Transitions[tid].Target
				if dst == model.StateNone || reached[dst] {
					continue
				}
				entryClosure(m, idx, dst, reached)
				changed = true
			}
		}
	}
	return reached
}

// checkReachability faults every state the initial configuration can never
// enter. History pseudostates are exempt: they are recording devices, not
// destinations, and a never-targeted history is legal.
func checkReachability(m *model.Machine, r *hierarchy.Resolver, idx *Index, faults *model.FaultList) map[model.StateID]bool {
	reached := reachableSet(m, idx)
	for i := range m.States {
		s := &m.States[i]
		if reached[s.ID] {
			continue
		}
		if s.Kind == model.HistoryShallow || s.Kind == model.HistoryDeep {
			continue
		}
		faults.Add(model.Errorf(model.FaultUnreachableState,
			"state %s can never be entered from the initial configuration", s.Name).At(s.ID))
	}
	return reached
}
