package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/model"
)

// proverFixture builds a machine with one field of each kind and an extern
// guard, for prover-level assertions outside any transition group.
func proverFixture(t *testing.T) *prover {
	t.Helper()
	b := model.NewBuilder("m")
	b.ContextField(model.Field{Name: "n", Type: model.FieldType{Kind: model.KindInt, Min: 0, Max: 10}})
	b.ContextField(model.Field{Name: "armed", Type: model.FieldType{Kind: model.KindBool}})
	b.ContextField(model.Field{Name: "mode", Type: model.FieldType{Kind: model.KindEnum, Variants: []string{"eco", "boost", "off"}}})
	b.ExternGuard("ready")
	a := b.State(b.Root(), "A", model.Simple)
	b.Initial(b.Root(), a)

	m, faults := b.Build()
	require.False(t, faults.HasErrors(), "faults: %v", faults)
	return &prover{m: m, ev: model.EventNone}
}

func intCmp(op model.CompareOp, n int64) model.Compare {
	return model.Compare{Field: model.FieldRef{Scope: model.ScopeContext, Index: 0}, Op: op, Value: model.Int(n)}
}

func TestProver_IntervalDisjointness(t *testing.T) {
	p := proverFixture(t)

	assert.Equal(t, Proven, p.Disjoint(intCmp(model.OpLe, 5), intCmp(model.OpGt, 5)))
	assert.Equal(t, Proven, p.Disjoint(intCmp(model.OpEq, 3), intCmp(model.OpEq, 4)))
	assert.Equal(t, Refuted, p.Disjoint(intCmp(model.OpLe, 5), intCmp(model.OpGe, 5)), "both admit n == 5")
	assert.Equal(t, Refuted, p.Disjoint(intCmp(model.OpNe, 3), intCmp(model.OpNe, 4)))
}

func TestProver_NilGuardIsTrue(t *testing.T) {
	p := proverFixture(t)

	assert.Equal(t, Refuted, p.Disjoint(nil, nil))
	assert.Equal(t, Refuted, p.Disjoint(nil, intCmp(model.OpLe, 5)))
	assert.Equal(t, Proven, p.Tautology(nil))
}

func TestProver_BoolAndEnumDomains(t *testing.T) {
	p := proverFixture(t)
	armed := model.FieldRef{Scope: model.ScopeContext, Index: 1}
	mode := model.FieldRef{Scope: model.ScopeContext, Index: 2}

	assert.Equal(t, Proven, p.Disjoint(
		model.Compare{Field: armed, Op: model.OpEq, Value: model.Bool(true)},
		model.Compare{Field: armed, Op: model.OpEq, Value: model.Bool(false)}))
	assert.Equal(t, Refuted, p.Disjoint(
		model.Compare{Field: armed, Op: model.OpNe, Value: model.Bool(true)},
		model.Compare{Field: armed, Op: model.OpEq, Value: model.Bool(false)}))

	assert.Equal(t, Proven, p.Disjoint(
		model.Compare{Field: mode, Op: model.OpEq, Value: model.String("eco")},
		model.Compare{Field: mode, Op: model.OpEq, Value: model.String("boost")}))
	assert.Equal(t, Refuted, p.Disjoint(
		model.Compare{Field: mode, Op: model.OpEq, Value: model.String("eco")},
		model.Compare{Field: mode, Op: model.OpNe, Value: model.String("boost")}))
}

func TestProver_TautologyOverDomain(t *testing.T) {
	p := proverFixture(t)

	assert.Equal(t, Proven, p.Tautology(intCmp(model.OpGe, 0)), "field domain is 0..10")
	assert.Equal(t, Proven, p.Tautology(intCmp(model.OpLe, 10)))
	assert.Equal(t, Refuted, p.Tautology(intCmp(model.OpLe, 5)))
	assert.Equal(t, Proven, p.Tautology(model.Any{Operands: []model.GuardExpr{
		intCmp(model.OpLe, 5), intCmp(model.OpGt, 5),
	}}))
}

func TestProver_Contradiction(t *testing.T) {
	p := proverFixture(t)

	assert.Equal(t, Proven, p.Contradiction(model.All{Operands: []model.GuardExpr{
		intCmp(model.OpLt, 3), intCmp(model.OpGt, 7),
	}}))
	assert.Equal(t, Proven, p.Contradiction(intCmp(model.OpGt, 10)), "beyond the domain max")
	assert.Equal(t, Refuted, p.Contradiction(intCmp(model.OpEq, 5)))
}

func TestProver_ExternAtoms(t *testing.T) {
	p := proverFixture(t)
	g := model.ExternGuard{Ref: 0}

	assert.Equal(t, Proven, p.Disjoint(g, model.Not{Operand: g}), "exact negation of one slot")
	assert.Equal(t, Refuted, p.Disjoint(g, g), "opaque predicates only relate to their own negation")
	assert.Equal(t, Refuted, p.Tautology(g))
	assert.Equal(t, Refuted, p.Contradiction(g))
}

func TestProver_NegationThroughConnectives(t *testing.T) {
	p := proverFixture(t)

	// !(a && b) overlaps a alone; !(a || b) does not.
	and := model.All{Operands: []model.GuardExpr{intCmp(model.OpLe, 5), intCmp(model.OpGe, 3)}}
	or := model.Any{Operands: []model.GuardExpr{intCmp(model.OpLe, 5), intCmp(model.OpGe, 3)}}

	assert.Equal(t, Refuted, p.Disjoint(model.Not{Operand: and}, intCmp(model.OpLe, 5)))
	assert.Equal(t, Proven, p.Disjoint(model.Not{Operand: or}, intCmp(model.OpLe, 5)))
}

func TestProver_ClauseCapAnswersUnknown(t *testing.T) {
	p := proverFixture(t)

	// A conjunction of 13 two-way disjunctions crosses into 8192 clauses,
	// past the cap.
	pair := model.Any{Operands: []model.GuardExpr{intCmp(model.OpEq, 0), intCmp(model.OpEq, 1)}}
	var ops []model.GuardExpr
	for i := 0; i < 13; i++ {
		ops = append(ops, pair)
	}
	huge := model.All{Operands: ops}

	assert.Equal(t, Unknown, p.Disjoint(huge, huge))
	assert.Equal(t, Unknown, p.Contradiction(huge))
}
