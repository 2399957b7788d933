package analysis

import (
	"github.com/roach88/strata/internal/model"
)

// Guard disjointness proof.
//
// Guards are normalized to disjunctive normal form and checked for
// satisfiability over the declared field domains: bounded integer ranges as
// interval sets, enum variants and booleans as finite sets, extern pure
// references as opaque atoms (related only when the same capability slot
// appears identically or as its exact negation). Two guards are disjoint
// when every pairwise conjunction of their DNF clauses is unsatisfiable.
//
// DNF conversion can explode on adversarial inputs, so clause counts are
// capped; past the cap the prover answers "unknown", which callers must
// treat as not-proven (the analyzer then faults rather than guess).

// maxClauses bounds DNF size. Real guard trees in topology DSLs are tiny;
// hitting this cap means the guard is far too complex to reason about and
// the model should carry explicit priorities instead.
const maxClauses = 4096

// Proof is a three-valued answer from the prover.
type Proof int

const (
	// Proven means the property holds over every domain valuation.
	Proven Proof = iota + 1
	// Refuted means a counterexample valuation exists.
	Refuted
	// Unknown means the prover gave up (clause cap); callers treat this
	// as not-proven.
	Unknown
)

// atom is one literal of a DNF clause: either an extern slot reference or a
// field comparison, possibly negated (comparisons fold negation into the
// operator instead).
type atom struct {
	isExtern bool
	extern   model.GuardRef // valid when isExtern
	negated  bool           // extern polarity

	field model.FieldRef
	op    model.CompareOp
	value model.Value
}

// clause is a conjunction of atoms.
type clause []atom

// dnf is a disjunction of clauses. An empty dnf is false; a dnf holding one
// empty clause is true.
type dnf []clause

// prover carries the field-domain lookup for one (machine, event) pair.
type prover struct {
	m  *model.Machine
	ev model.EventID // triggering event, EventNone for completion/timed
}

// Disjoint proves that g1 and g2 can never both hold.
func (p *prover) Disjoint(g1, g2 model.GuardExpr) Proof {
	d1, ok1 := p.toDNF(g1, false)
	d2, ok2 := p.toDNF(g2, false)
	if !ok1 || !ok2 {
		return Unknown
	}
	for _, c1 := range d1 {
		for _, c2 := range d2 {
			merged := make(clause, 0, len(c1)+len(c2))
			merged = append(merged, c1...)
			merged = append(merged, c2...)
			if p.satisfiable(merged) {
				return Refuted
			}
		}
	}
	return Proven
}

// Tautology proves that g holds for every valuation.
func (p *prover) Tautology(g model.GuardExpr) Proof {
	neg, ok := p.toDNF(g, true)
	if !ok {
		return Unknown
	}
	for _, c := range neg {
		if p.satisfiable(c) {
			return Refuted
		}
	}
	return Proven
}

// Contradiction proves that g holds for no valuation.
func (p *prover) Contradiction(g model.GuardExpr) Proof {
	d, ok := p.toDNF(g, false)
	if !ok {
		return Unknown
	}
	for _, c := range d {
		if p.satisfiable(c) {
			return Refuted
		}
	}
	return Proven
}

// toDNF converts a guard (or its negation) to DNF. Returns false when the
// clause cap is exceeded.
func (p *prover) toDNF(g model.GuardExpr, negated bool) (dnf, bool) {
	switch n := g.(type) {
	case nil:
		if negated {
			return dnf{}, true // !true = false
		}
		return dnf{clause{}}, true
	case model.ExternGuard:
		return dnf{clause{{isExtern: true, extern: n.Ref, negated: negated}}}, true
	case model.Not:
		return p.toDNF(n.Operand, !negated)
	case model.Compare:
		op := n.Op
		if negated {
			op = op.Negate()
		}
		return dnf{clause{{field: n.Field, op: op, value: n.Value}}}, true
	case model.All:
		if negated {
			return p.unionDNF(n.Operands, true)
		}
		return p.crossDNF(n.Operands, false)
	case model.Any:
		if negated {
			return p.crossDNF(n.Operands, true)
		}
		return p.unionDNF(n.Operands, false)
	default:
		return nil, false
	}
}

// unionDNF disjoins the operands' DNFs.
func (p *prover) unionDNF(ops []model.GuardExpr, negated bool) (dnf, bool) {
	var out dnf
	for _, op := range ops {
		d, ok := p.toDNF(op, negated)
		if !ok {
			return nil, false
		}
		out = append(out, d...)
		if len(out) > maxClauses {
			return nil, false
		}
	}
	return out, true
}

// crossDNF conjoins the operands' DNFs by clause cross product.
func (p *prover) crossDNF(ops []model.GuardExpr, negated bool) (dnf, bool) {
	out := dnf{clause{}}
	for _, op := range ops {
		d, ok := p.toDNF(op, negated)
		if !ok {
			return nil, false
		}
		next := make(dnf, 0, len(out)*len(d))
		for _, c1 := range out {
			for _, c2 := range d {
				merged := make(clause, 0, len(c1)+len(c2))
				merged = append(merged, c1...)
				merged = append(merged, c2...)
				next = append(next, merged)
				if len(next) > maxClauses {
					return nil, false
				}
			}
		}
		out = next
	}
	return out, true
}

// satisfiable decides one clause over the declared domains.
func (p *prover) satisfiable(c clause) bool {
	externPos := make(map[model.GuardRef]bool)
	externNeg := make(map[model.GuardRef]bool)
	domains := make(map[model.FieldRef]*domainSet)

	for _, a := range c {
		if a.isExtern {
			if a.negated {
				externNeg[a.extern] = true
			} else {
				externPos[a.extern] = true
			}
			continue
		}
		field, ok := model.GuardField(p.m, p.ev, a.field)
		if !ok {
			// Unresolved field: validation already faulted it; treat the
			// clause as satisfiable so no phantom disjointness is claimed.
			return true
		}
		set, exists := domains[a.field]
		if !exists {
			set = fullDomain(field.Type)
			domains[a.field] = set
		}
		set.constrain(field.Type, a.op, a.value)
	}

	// An extern atom asserted both positively and negatively is the one
	// relation opaque predicates admit: exact negation.
	for ref := range externPos {
		if externNeg[ref] {
			return false
		}
	}
	for _, set := range domains {
		if set.empty() {
			return false
		}
	}
	return true
}

// domainSet is the remaining value set of one field within a clause.
type domainSet struct {
	// intervals for KindInt, inclusive, normalized and disjoint.
	intervals []interval

	// allowed for KindBool (index 0=false, 1=true) and KindEnum (by
	// variant index).
	allowed []bool
	finite  bool
}

type interval struct {
	lo, hi int64
}

func fullDomain(t model.FieldType) *domainSet {
	switch t.Kind {
	case model.KindInt:
		return &domainSet{intervals: []interval{{t.Min, t.Max}}}
	case model.KindBool:
		return &domainSet{allowed: []bool{true, true}, finite: true}
	case model.KindEnum:
		allowed := make([]bool, len(t.Variants))
		for i := range allowed {
			allowed[i] = true
		}
		return &domainSet{allowed: allowed, finite: true}
	default:
		return &domainSet{}
	}
}

func (d *domainSet) empty() bool {
	if d.finite {
		for _, ok := range d.allowed {
			if ok {
				return false
			}
		}
		return true
	}
	return len(d.intervals) == 0
}

// constrain intersects the set with one comparison. Type validity was
// checked during model validation; mismatched atoms empty the set.
func (d *domainSet) constrain(t model.FieldType, op model.CompareOp, v model.Value) {
	switch t.Kind {
	case model.KindInt:
		n, ok := v.(model.Int)
		if !ok {
			d.intervals = nil
			return
		}
		d.constrainInt(op, int64(n))
	case model.KindBool:
		b, ok := v.(model.Bool)
		if !ok {
			d.allowed = []bool{false, false}
			return
		}
		d.constrainFinite(op, boolIndex(bool(b)), 2)
	case model.KindEnum:
		s, ok := v.(model.String)
		if !ok {
			for i := range d.allowed {
				d.allowed[i] = false
			}
			return
		}
		idx := -1
		for i, variant := range t.Variants {
			if variant == string(s) {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i := range d.allowed {
				d.allowed[i] = false
			}
			return
		}
		d.constrainFinite(op, idx, len(d.allowed))
	}
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// constrainFinite applies Eq/Ne over a finite indexed domain. Ordering
// operators over finite kinds were rejected during validation.
func (d *domainSet) constrainFinite(op model.CompareOp, idx, size int) {
	switch op {
	case model.OpEq:
		for i := 0; i < size; i++ {
			if i != idx {
				d.allowed[i] = false
			}
		}
	case model.OpNe:
		d.allowed[idx] = false
	default:
		for i := 0; i < size; i++ {
			d.allowed[i] = false
		}
	}
}

// constrainInt intersects the interval set with one integer comparison.
func (d *domainSet) constrainInt(op model.CompareOp, n int64) {
	var out []interval
	for _, iv := range d.intervals {
		switch op {
		case model.OpEq:
			if n >= iv.lo && n <= iv.hi {
				out = append(out, interval{n, n})
			}
		case model.OpNe:
			if n < iv.lo || n > iv.hi {
				out = append(out, iv)
				continue
			}
			if n > iv.lo {
				out = append(out, interval{iv.lo, n - 1})
			}
			if n < iv.hi {
				out = append(out, interval{n + 1, iv.hi})
			}
		case model.OpLt:
			if iv.lo < n {
				out = append(out, interval{iv.lo, min64(iv.hi, n-1)})
			}
		case model.OpLe:
			if iv.lo <= n {
				out = append(out, interval{iv.lo, min64(iv.hi, n)})
			}
		case model.OpGt:
			if iv.hi > n {
				out = append(out, interval{max64(iv.lo, n+1), iv.hi})
			}
		case model.OpGe:
			if iv.hi >= n {
				out = append(out, interval{max64(iv.lo, n), iv.hi})
			}
		}
	}
	d.intervals = out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
