package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
)

func hasFault(faults model.FaultList, code model.FaultCode) bool {
	for _, f := range faults {
		if f.Code == code {
			return true
		}
	}
	return false
}

// analyze builds the machine and requires a clean structural validation, so
// every fault in the returned report came from the analyzers.
func analyze(t *testing.T, b *model.Builder) *Report {
	t.Helper()
	m, faults := b.Build()
	require.False(t, faults.HasErrors(), "validation faults: %v", faults)
	return Analyze(m)
}

// twoWay declares A with two transitions on "go", guarded as given.
func twoWay(g1, g2 model.GuardExpr, p1, p2 int) *model.Builder {
	b := model.NewBuilder("m")
	b.ContextField(model.Field{Name: "n", Type: model.FieldType{Kind: model.KindInt, Min: 0, Max: 10}})
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	y := b.State(b.Root(), "Y", model.Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}, Guard: g1, Priority: p1})
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: y,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}, Guard: g2, Priority: p2})
	return b
}

func ctxField(idx int) model.FieldRef {
	return model.FieldRef{Scope: model.ScopeContext, Index: idx}
}

func TestAnalyze_CleanMachine(t *testing.T) {
	b := twoWay(
		model.Compare{Field: ctxField(0), Op: model.OpLe, Value: model.Int(5)},
		model.Compare{Field: ctxField(0), Op: model.OpGt, Value: model.Int(5)},
		0, 0)
	report := analyze(t, b)

	assert.True(t, report.Ok(), "faults: %v", report.Faults)
	assert.False(t, report.Aborted)
	require.NotNil(t, report.Resolver)
	require.NotNil(t, report.Index)
}

func TestAnalyze_EqualPriorityOverlapIsNondeterminism(t *testing.T) {
	report := analyze(t, twoWay(nil, nil, 0, 0))

	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultNondeterminism))
}

func TestAnalyze_GuardOverlapIsNondeterminism(t *testing.T) {
	// le 5 and ge 5 both admit n == 5.
	report := analyze(t, twoWay(
		model.Compare{Field: ctxField(0), Op: model.OpLe, Value: model.Int(5)},
		model.Compare{Field: ctxField(0), Op: model.OpGe, Value: model.Int(5)},
		0, 0))

	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultNondeterminism))
}

func TestAnalyze_PriorityResolvesOverlapWithWarning(t *testing.T) {
	report := analyze(t, twoWay(nil, nil, 1, 2))

	assert.True(t, report.Ok(), "priority resolution is advisory: %v", report.Faults)
	assert.True(t, hasFault(report.Faults, model.FaultPriorityResolved))
	assert.False(t, hasFault(report.Faults, model.FaultNondeterminism))
}

func TestAnalyze_DisjointPrioritiesNeedNoWarning(t *testing.T) {
	report := analyze(t, twoWay(
		model.Compare{Field: ctxField(0), Op: model.OpLt, Value: model.Int(3)},
		model.Compare{Field: ctxField(0), Op: model.OpGt, Value: model.Int(7)},
		1, 2))

	assert.True(t, report.Ok())
	assert.False(t, hasFault(report.Faults, model.FaultPriorityResolved))
}

func TestAnalyze_TautologicalGuardIsUnconditional(t *testing.T) {
	b := model.NewBuilder("m")
	b.ContextField(model.Field{Name: "n", Type: model.FieldType{Kind: model.KindInt, Min: 0, Max: 10}})
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	// n >= 0 holds over the whole declared domain.
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev},
		Guard:   model.Compare{Field: ctxField(0), Op: model.OpGe, Value: model.Int(0)}})

	report := analyze(t, b)
	assert.True(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultUnconditional))
}

func TestAnalyze_ContradictoryGuardIsDead(t *testing.T) {
	b := model.NewBuilder("m")
	b.ContextField(model.Field{Name: "n", Type: model.FieldType{Kind: model.KindInt, Min: 0, Max: 10}})
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev},
		Guard: model.All{Operands: []model.GuardExpr{
			model.Compare{Field: ctxField(0), Op: model.OpLt, Value: model.Int(3)},
			model.Compare{Field: ctxField(0), Op: model.OpGt, Value: model.Int(7)},
		}}})

	report := analyze(t, b)
	assert.True(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultDeadTransition))
}

func TestAnalyze_ExternNegationIsDisjoint(t *testing.T) {
	b := model.NewBuilder("m")
	g := model.ExternGuard{Ref: b.ExternGuard("ready")}
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	y := b.State(b.Root(), "Y", model.Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}, Guard: g})
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: y,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev},
		Guard:   model.Not{Operand: g}})

	report := analyze(t, b)
	assert.True(t, report.Ok(), "faults: %v", report.Faults)
}

func TestAnalyze_DistinctExternsDoNotProveDisjoint(t *testing.T) {
	b := model.NewBuilder("m")
	g1 := model.ExternGuard{Ref: b.ExternGuard("hot")}
	g2 := model.ExternGuard{Ref: b.ExternGuard("cold")}
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	y := b.State(b.Root(), "Y", model.Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}, Guard: g1})
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: y,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}, Guard: g2})

	report := analyze(t, b)
	assert.True(t, hasFault(report.Faults, model.FaultNondeterminism))
}

func TestAnalyze_RegionCrossingSurfaces(t *testing.T) {
	b := model.NewBuilder("m")
	ev := b.Event("go")
	par := b.State(b.Root(), "P", model.Parallel)
	b.Initial(b.Root(), par)
	r1 := b.Region(par, "r1")
	a := b.State(r1, "A", model.Simple)
	b.Initial(r1, a)
	r2 := b.Region(par, "r2")
	x := b.State(r2, "X", model.Simple)
	b.Initial(r2, x)
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}})

	report := analyze(t, b)
	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultRegionCrossing))
}

func TestAnalyze_ForkMustSpanAllRegions(t *testing.T) {
	b := model.NewBuilder("m")
	par := b.State(b.Root(), "P", model.Parallel)
	b.Initial(b.Root(), par)
	var firsts []model.StateID
	for _, name := range []string{"r1", "r2", "r3"} {
		r := b.Region(par, name)
		s := b.State(r, name+"S", model.Simple)
		b.Initial(r, s)
		firsts = append(firsts, s)
	}
	fork := b.State(b.Root(), "F", model.Fork)
	b.ForkTargets(fork, firsts[0], firsts[1])

	report := analyze(t, b)
	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultForkJoinMismatch))
}

func TestAnalyze_JoinNeedsOneContinuation(t *testing.T) {
	b := model.NewBuilder("m")
	par := b.State(b.Root(), "P", model.Parallel)
	b.Initial(b.Root(), par)
	r1 := b.Region(par, "r1")
	a := b.State(r1, "A", model.Simple)
	b.Initial(r1, a)
	r2 := b.Region(par, "r2")
	x := b.State(r2, "X", model.Simple)
	b.Initial(r2, x)
	join := b.State(b.Root(), "J", model.Join)
	b.JoinSources(join, a, x)

	report := analyze(t, b)
	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultForkJoinMismatch))
}

func TestAnalyze_UnreachableState(t *testing.T) {
	b := model.NewBuilder("m")
	a := b.State(b.Root(), "A", model.Simple)
	b.State(b.Root(), "Orphan", model.Simple)
	b.Initial(b.Root(), a)

	report := analyze(t, b)
	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultUnreachableState))
}

func TestAnalyze_UntargetedHistoryIsLegal(t *testing.T) {
	b := model.NewBuilder("m")
	on := b.State(b.Root(), "On", model.Composite)
	b.Initial(b.Root(), on)
	r := b.Region(on, "main")
	x := b.State(r, "X", model.Simple)
	b.Initial(r, x)
	b.State(r, "H", model.HistoryShallow)

	report := analyze(t, b)
	assert.True(t, report.Ok(), "faults: %v", report.Faults)
}

func TestAnalyze_DeferralStarvation(t *testing.T) {
	b := model.NewBuilder("m")
	job := b.Event("job")
	ev := b.Event("go")
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	b.Initial(b.Root(), a)
	b.DeferEvent(a, job)
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}})
	b.Transition(model.Transition{Kind: model.External, Source: x, Target: a,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}})

	report := analyze(t, b)
	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultDeferralCycle))
}

func TestAnalyze_DeferredEventWithDownstreamConsumer(t *testing.T) {
	b := model.NewBuilder("m")
	job := b.Event("job")
	ev := b.Event("go")
	a := b.State(b.Root(), "A", model.Simple)
	x := b.State(b.Root(), "X", model.Simple)
	done := b.State(b.Root(), "Done", model.Simple)
	b.Initial(b.Root(), a)
	b.DeferEvent(a, job)
	b.Transition(model.Transition{Kind: model.External, Source: a, Target: x,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ev}})
	b.Transition(model.Transition{Kind: model.External, Source: x, Target: done,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: job}})

	report := analyze(t, b)
	assert.True(t, report.Ok(), "faults: %v", report.Faults)
	assert.False(t, hasFault(report.Faults, model.FaultDeferralCycle))
}

func TestAnalyze_AbortsOnExcessiveDepth(t *testing.T) {
	b := model.NewBuilder("deep")
	region := b.Root()
	for i := 0; i < 3; i++ {
		kind := model.Composite
		if i == 2 {
			kind = model.Simple
		}
		s := b.State(region, string(rune('A'+i)), kind)
		b.Initial(region, s)
		if kind == model.Composite {
			region = b.Region(s, "r")
		}
	}
	m, faults := b.Build()
	require.False(t, faults.HasErrors(), "faults: %v", faults)

	report := Analyze(m, hierarchy.WithMaxDepth(2))
	assert.True(t, report.Aborted)
	assert.False(t, report.Ok())
	assert.Nil(t, report.Resolver)
	assert.Nil(t, report.Index)
	assert.True(t, hasFault(report.Faults, model.FaultNestingTooDeep))
}

func TestAnalyze_ValidatesUnvalidatedMachine(t *testing.T) {
	b := model.NewBuilder("m")
	b.State(b.Root(), "A", model.Simple)
	m, _ := b.Build()

	report := Analyze(m)
	assert.False(t, report.Ok())
	assert.True(t, hasFault(report.Faults, model.FaultMissingInitial))
}
