package analysis

import (
	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
)

// checkStructure verifies fork/join region sets and region-boundary
// discipline for every transition.
func checkStructure(m *model.Machine, r *hierarchy.Resolver, idx *Index, faults *model.FaultList) {
	for i := range m.Transitions {
		faults.Add(r.CheckRegionCrossing(&m.Transitions[i]))
	}
	for i := range m.States {
		s := &m.States[i]
		switch s.Kind {
		case model.Fork:
			checkFork(m, r, s, faults)
		case model.Join:
			checkJoin(m, r, idx, s, faults)
		}
	}
}

// checkFork enforces: fork targets have exactly one entry per distinct
// region of one parallel state, each a direct (initial-adjacent) child of
// its region.
func checkFork(m *model.Machine, r *hierarchy.Resolver, fork *model.State, faults *model.FaultList) {
	parallel, regions, ok := spannedRegions(m, r, fork.ForkTargets)
	if !ok {
		faults.Add(model.Errorf(model.FaultForkJoinMismatch,
			"fork %s: targets must be direct children of distinct regions of one parallel state", fork.Name).At(fork.ID))
		return
	}
	if len(regions) != len(m.States[parallel].Regions) {
		faults.Add(model.Errorf(model.FaultForkJoinMismatch,
			"fork %s covers %d of %d regions of parallel state %s",
			fork.Name, len(regions), len(m.States[parallel].Regions), m.States[parallel].Name).At(fork.ID))
	}
}

// checkJoin enforces: join sources span all regions of one parallel state,
// and the join carries exactly one continuation transition.
func checkJoin(m *model.Machine, r *hierarchy.Resolver, idx *Index, join *model.State, faults *model.FaultList) {
	parallel, regions, ok := joinSpannedRegions(m, r, join.JoinSources)
	if !ok {
		faults.Add(model.Errorf(model.FaultForkJoinMismatch,
			"join %s: sources must live in distinct regions of one parallel state", join.Name).At(join.ID))
		return
	}
	if len(regions) != len(m.States[parallel].Regions) {
		faults.Add(model.Errorf(model.FaultForkJoinMismatch,
			"join %s covers %d of %d regions of parallel state %s",
			join.Name, len(regions), len(m.States[parallel].Regions), m.States[parallel].Name).At(join.ID))
	}
	if n := len(idx.Completions(join.ID)); n != 1 {
		faults.Add(model.Errorf(model.FaultForkJoinMismatch,
			"join %s must carry exactly one continuation transition, found %d", join.Name, n).At(join.ID))
	}
}

// spannedRegions resolves the targets' owning regions and checks they are
// distinct regions of a single parallel state, each target a direct child.
func spannedRegions(m *model.Machine, r *hierarchy.Resolver, targets []model.StateID) (model.StateID, map[model.RegionID]bool, bool) {
	parallel := model.StateNone
	regions := make(map[model.RegionID]bool)
	for _, target := range targets {
		owner := m.States[target].Owner
		ownerState := m.Regions[owner].Owner
		if ownerState == model.StateNone || m.States[ownerState].Kind != model.Parallel {
			return model.StateNone, nil, false
		}
		if parallel == model.StateNone {
			parallel = ownerState
		} else if parallel != ownerState {
			return model.StateNone, nil, false
		}
		if regions[owner] {
			return model.StateNone, nil, false
		}
		regions[owner] = true
	}
	if parallel == model.StateNone {
		return model.StateNone, nil, false
	}
	return parallel, regions, true
}

// joinSpannedRegions maps each join source to the region of the parallel
// state it lives under. Sources may nest arbitrarily deep inside their
// region, so the spanned region is the topmost one under the parallel.
func joinSpannedRegions(m *model.Machine, r *hierarchy.Resolver, sources []model.StateID) (model.StateID, map[model.RegionID]bool, bool) {
	parallel := model.StateNone
	regions := make(map[model.RegionID]bool)
	for _, source := range sources {
		p := r.EnclosingOfKind(source, model.Parallel)
		if p == model.StateNone {
			return model.StateNone, nil, false
		}
		if parallel == model.StateNone {
			parallel = p
		} else if parallel != p {
			return model.StateNone, nil, false
		}
		top := r.ChildToward(p, source)
		if top == model.StateNone {
			return model.StateNone, nil, false
		}
		owner := m.States[top].Owner
		if regions[owner] {
			return model.StateNone, nil, false
		}
		regions[owner] = true
	}
	if parallel == model.StateNone {
		return model.StateNone, nil, false
	}
	return parallel, regions, true
}
