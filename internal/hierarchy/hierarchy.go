// Package hierarchy computes ancestor chains and lowest common ancestors
// over a validated semantic model.
//
// Chains are computed once at construction and cached; the dispatch engine
// and the analyzers share one Resolver, so both sides of the dual-use
// contract (reference interpreter and generated code) derive entry/exit
// ordering from identical data.
package hierarchy

import (
	"github.com/roach88/strata/internal/model"
)

// DefaultMaxDepth bounds state nesting. Generated targets size their
// active-configuration storage from this, so exceeding it is a hard fault.
const DefaultMaxDepth = 16

// Resolver answers ancestry queries for one machine.
type Resolver struct {
	m        *model.Machine
	chains   [][]model.StateID // per state: root..state inclusive
	maxDepth int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides the maximum nesting depth.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		r.maxDepth = depth
	}
}

// New builds the resolver, computing and caching every ancestor chain.
// Faults here (unvalidated machine, nesting beyond the maximum) are
// abort-class: LCA is undefined, so analysis must not continue.
func New(m *model.Machine, opts ...Option) (*Resolver, *model.Fault) {
	r := &Resolver{m: m, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}

	if !m.Validated() {
		return nil, model.Errorf(model.FaultBadContainment, "machine %s has not passed structural validation", m.Name)
	}

	r.chains = make([][]model.StateID, len(m.States))
	for i := range m.States {
		chain, fault := r.buildChain(model.StateID(i))
		if fault != nil {
			return nil, fault
		}
		r.chains[i] = chain
	}
	return r, nil
}

// buildChain walks owner links up to the root region, then reverses.
func (r *Resolver) buildChain(id model.StateID) ([]model.StateID, *model.Fault) {
	var up []model.StateID
	cur := id
	for cur != model.StateNone {
		up = append(up, cur)
		if len(up) > r.maxDepth {
			return nil, model.Errorf(model.FaultNestingTooDeep,
				"state %s nests deeper than the configured maximum of %d",
				r.m.States[id].Name, r.maxDepth).At(id)
		}
		cur = r.m.Regions[r.m.States[cur].Owner].Owner
	}
	chain := make([]model.StateID, len(up))
	for i, s := range up {
		chain[len(up)-1-i] = s
	}
	return chain, nil
}

// Ancestors returns the cached chain from root to s, inclusive. Callers
// must not mutate the returned slice.
func (r *Resolver) Ancestors(s model.StateID) []model.StateID {
	return r.chains[s]
}

// Depth returns the number of states on the chain of s (a top-level state
// has depth 1).
func (r *Resolver) Depth(s model.StateID) int {
	return len(r.chains[s])
}

// Parent returns the immediate parent state, or StateNone for a top-level
// state.
func (r *Resolver) Parent(s model.StateID) model.StateID {
	return r.m.Regions[r.m.States[s].Owner].Owner
}

// IsProperAncestor reports whether anc is a proper ancestor of s.
func (r *Resolver) IsProperAncestor(anc, s model.StateID) bool {
	if anc == s {
		return false
	}
	chain := r.chains[s]
	depth := len(r.chains[anc])
	return depth < len(chain) && chain[depth-1] == anc
}

// LCA returns the deepest state that is a proper ancestor of both a and b,
// or StateNone when the chains only meet in the root region. LCA(a, a) is
// therefore the parent of a: a self-transition exits and re-enters its own
// source.
func (r *Resolver) LCA(a, b model.StateID) model.StateID {
	ca, cb := r.chains[a], r.chains[b]
	lca := model.StateNone
	for i := 0; i < len(ca) && i < len(cb); i++ {
		if ca[i] != cb[i] {
			break
		}
		if ca[i] == a || ca[i] == b {
			// Proper ancestry only: the endpoint itself never qualifies.
			break
		}
		lca = ca[i]
	}
	return lca
}

// ChildToward returns the direct child of anc that lies on the chain toward
// s. anc may be StateNone, meaning the root region; then the top-level
// ancestor of s is returned.
func (r *Resolver) ChildToward(anc, s model.StateID) model.StateID {
	chain := r.chains[s]
	if anc == model.StateNone {
		return chain[0]
	}
	depth := len(r.chains[anc])
	if depth >= len(chain) || chain[depth-1] != anc {
		return model.StateNone
	}
	return chain[depth]
}

// PathBelow returns the chain segment strictly below anc down to s,
// inclusive of s. anc may be StateNone for the full chain.
func (r *Resolver) PathBelow(anc, s model.StateID) []model.StateID {
	chain := r.chains[s]
	if anc == model.StateNone {
		return chain
	}
	depth := len(r.chains[anc])
	if depth >= len(chain) || chain[depth-1] != anc {
		return nil
	}
	return chain[depth:]
}

// CheckRegionCrossing rejects a source/target pair whose chains diverge
// into different orthogonal regions without going through fork or join.
// Transitions whose endpoint is itself a fork or join pseudostate are the
// sanctioned way across a region boundary.
func (r *Resolver) CheckRegionCrossing(t *model.Transition) *model.Fault {
	if t.Target == model.StateNone {
		return nil
	}
	src, dst := t.Source, t.Target
	if r.m.States[src].Kind == model.Fork || r.m.States[src].Kind == model.Join ||
		r.m.States[dst].Kind == model.Fork || r.m.States[dst].Kind == model.Join {
		return nil
	}
	lca := r.LCA(src, dst)
	if r.IsProperAncestor(src, dst) || r.IsProperAncestor(dst, src) || src == dst {
		return nil
	}
	srcChild := r.ChildToward(lca, src)
	dstChild := r.ChildToward(lca, dst)
	if srcChild == model.StateNone || dstChild == model.StateNone {
		return nil
	}
	if r.m.States[srcChild].Owner != r.m.States[dstChild].Owner {
		// Divergence into sibling regions of one orthogonal state.
		return model.Errorf(model.FaultRegionCrossing,
			"transition from %s to %s crosses a region boundary without fork/join",
			r.m.States[src].Name, r.m.States[dst].Name).On(t.ID)
	}
	return nil
}

// EnclosingOfKind returns the nearest proper ancestor of s with the given
// kind, or StateNone.
func (r *Resolver) EnclosingOfKind(s model.StateID, kind model.StateKind) model.StateID {
	chain := r.chains[s]
	for i := len(chain) - 2; i >= 0; i-- {
		if r.m.States[chain[i]].Kind == kind {
			return chain[i]
		}
	}
	return model.StateNone
}
