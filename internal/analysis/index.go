package analysis

import (
	"sort"

	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
)

// Index precomputes transition lookup tables over one machine. Built once;
// shared by the analyzers and the dispatch engine.
type Index struct {
	m *model.Machine

	// bySourceEvent maps (source state, event) to that state's own
	// transitions on the event, sorted by ascending priority then
	// declaration order.
	bySourceEvent map[sourceEventKey][]model.TransitionID

	// completions maps a state to its completion/continuation transitions,
	// sorted by ascending priority then declaration order.
	completions map[model.StateID][]model.TransitionID

	// timed maps a state to its after/every transitions in declaration
	// order. One timer handle is armed per timed transition.
	timed map[model.StateID][]model.TransitionID

	// bySource maps a state to every outgoing transition, for graph
	// traversals.
	bySource map[model.StateID][]model.TransitionID
}

type sourceEventKey struct {
	source model.StateID
	event  model.EventID
}

// NewIndex builds the lookup tables.
func NewIndex(m *model.Machine) *Index {
	idx := &Index{
		m:             m,
		bySourceEvent: make(map[sourceEventKey][]model.TransitionID),
		completions:   make(map[model.StateID][]model.TransitionID),
		timed:         make(map[model.StateID][]model.TransitionID),
		bySource:      make(map[model.StateID][]model.TransitionID),
	}
	for i := range m.Transitions {
		t := &m.Transitions[i]
		id := model.TransitionID(i)
		idx.bySource[t.Source] = append(idx.bySource[t.Source], id)
		switch t.Trigger.Kind {
		case model.TriggerEvent:
			key := sourceEventKey{t.Source, t.Trigger.Event}
			idx.bySourceEvent[key] = append(idx.bySourceEvent[key], id)
		case model.TriggerCompletion:
			idx.completions[t.Source] = append(idx.completions[t.Source], id)
		case model.TriggerAfter, model.TriggerEvery:
			idx.timed[t.Source] = append(idx.timed[t.Source], id)
		}
	}
	for key := range idx.bySourceEvent {
		idx.sortByPriority(idx.bySourceEvent[key])
	}
	for key := range idx.completions {
		idx.sortByPriority(idx.completions[key])
	}
	return idx
}

// sortByPriority orders ascending by priority number, with declaration
// order (handle order) as the stable tie-break. The tie-break never decides
// a firing - equal priorities require proven-disjoint guards - but it fixes
// the evaluation order so traces are reproducible.
func (idx *Index) sortByPriority(ids []model.TransitionID) {
	sort.SliceStable(ids, func(a, b int) bool {
		return idx.m.Transitions[ids[a]].Priority < idx.m.Transitions[ids[b]].Priority
	})
}

// Own returns the state's own transitions on an event, priority-ordered.
func (idx *Index) Own(s model.StateID, ev model.EventID) []model.TransitionID {
	return idx.bySourceEvent[sourceEventKey{s, ev}]
}

// Completions returns the state's completion transitions, priority-ordered.
func (idx *Index) Completions(s model.StateID) []model.TransitionID {
	return idx.completions[s]
}

// Timed returns the state's after/every transitions in declaration order.
func (idx *Index) Timed(s model.StateID) []model.TransitionID {
	return idx.timed[s]
}

// Outgoing returns every transition out of a state in declaration order.
func (idx *Index) Outgoing(s model.StateID) []model.TransitionID {
	return idx.bySource[s]
}

// Candidates implements the hierarchical override rule for one region's
// active leaf: scan the leaf, then its ancestors outward, and stop at the
// first state that defines any transition on the event - outer transitions
// are never candidates once an inner state supplies a match set. The
// returned set belongs to exactly one state and is priority-ordered.
func (idx *Index) Candidates(r *hierarchy.Resolver, leaf model.StateID, ev model.EventID) []model.TransitionID {
	chain := r.Ancestors(leaf)
	for i := len(chain) - 1; i >= 0; i-- {
		if own := idx.Own(chain[i], ev); len(own) > 0 {
			return own
		}
	}
	return nil
}
