package analysis

import (
	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
)

// Deferral-cycle detection. Per event, compute the maximal set of reachable
// leaf states in which the event is deferred and from which no path leads
// to a state that consumes it: once the machine holds the event in such a
// state, it is re-queued on every exit and never handled. A nonempty
// fixpoint is a fault.

// checkDeferralCycles runs the fixpoint for every event that any reachable
// state defers.
func checkDeferralCycles(m *model.Machine, r *hierarchy.Resolver, idx *Index, reached map[model.StateID]bool, faults *model.FaultList) {
	leaves := reachableLeaves(m, reached)
	if len(leaves) == 0 {
		return
	}
	succ := leafGraph(m, r, idx, leaves)

	for e := range m.Events {
		ev := model.EventID(e)
		deferring := deferringLeaves(m, r, leaves, ev)
		if len(deferring) == 0 {
			continue
		}

		// Reverse reachability from every consuming leaf: a deferring leaf
		// with no path into this set starves the event forever.
		canReachConsumer := make(map[model.StateID]bool)
		var stack []model.StateID
		for _, leaf := range leaves {
			if len(idx.Candidates(r, leaf, ev)) > 0 {
				canReachConsumer[leaf] = true
				stack = append(stack, leaf)
			}
		}
		pred := invert(succ)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, p := range pred[cur] {
				if !canReachConsumer[p] {
					canReachConsumer[p] = true
					stack = append(stack, p)
				}
			}
		}

		for _, leaf := range deferring {
			if !canReachConsumer[leaf] {
				faults.Add(model.Errorf(model.FaultDeferralCycle,
					"event %s deferred in state %s can never be consumed afterwards",
					m.Events[ev].Name, m.States[leaf].Name).At(leaf).For(ev))
			}
		}
	}
}

// reachableLeaves lists the reachable states a region cursor can rest in.
func reachableLeaves(m *model.Machine, reached map[model.StateID]bool) []model.StateID {
	var leaves []model.StateID
	for i := range m.States {
		s := &m.States[i]
		if !reached[s.ID] {
			continue
		}
		if s.Kind == model.Simple || s.Kind == model.Final {
			leaves = append(leaves, s.ID)
		}
	}
	return leaves
}

// deferringLeaves lists leaves in which ev is deferred, directly or via an
// active ancestor.
func deferringLeaves(m *model.Machine, r *hierarchy.Resolver, leaves []model.StateID, ev model.EventID) []model.StateID {
	var out []model.StateID
	for _, leaf := range leaves {
		for _, anc := range r.Ancestors(leaf) {
			if defers(&m.States[anc], ev) {
				out = append(out, leaf)
				break
			}
		}
	}
	return out
}

func defers(s *model.State, ev model.EventID) bool {
	for _, d := range s.Defer {
		if d == ev {
			return true
		}
	}
	return false
}

// leafGraph builds the successor relation between leaves: a transition
// available from a leaf (on the leaf or any ancestor) leads to the leaves
// of its target's entry closure.
func leafGraph(m *model.Machine, r *hierarchy.Resolver, idx *Index, leaves []model.StateID) map[model.StateID][]model.StateID {
	isLeaf := make(map[model.StateID]bool, len(leaves))
	for _, leaf := range leaves {
		isLeaf[leaf] = true
	}

	succ := make(map[model.StateID][]model.StateID, len(leaves))
	for _, leaf := range leaves {
		targets := make(map[model.StateID]bool)
		for _, anc := range r.Ancestors(leaf) {
			for _, tid := range idx.Outgoing(anc) {
				dst := m.Transitions[tid].Target
				if dst == model.StateNone {
					continue
				}
				closure := make(map[model.StateID]bool)
				entryClosure(m, idx, dst, closure)
				for s := range closure {
					if isLeaf[s] {
						targets[s] = true
					}
				}
			}
		}
		for t := range targets {
			succ[leaf] = append(succ[leaf], t)
		}
	}
	return succ
}

func invert(succ map[model.StateID][]model.StateID) map[model.StateID][]model.StateID {
	pred := make(map[model.StateID][]model.StateID, len(succ))
	for from, tos := range succ {
		for _, to := range tos {
			pred[to] = append(pred[to], from)
		}
	}
	return pred
}
