package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasFault(faults FaultList, code FaultCode) bool {
	for _, f := range faults {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_MinimalMachine(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)

	m, faults := b.Build()
	require.Empty(t, faults)
	assert.True(t, m.Validated())
	assert.Equal(t, 16, m.Queue.Capacity, "defaulted capacity")
	assert.Equal(t, DropOldest, m.Queue.Policy, "defaulted policy")
}

func TestValidate_MissingInitial(t *testing.T) {
	b := NewBuilder("m")
	b.State(b.Root(), "A", Simple)

	m, faults := b.Build()
	assert.False(t, m.Validated())
	assert.True(t, hasFault(faults, FaultMissingInitial))
}

func TestValidate_InitialMustBeEnterable(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	end := b.State(b.Root(), "End", Final)
	choice := b.State(b.Root(), "C", Choice)
	_ = a

	for _, target := range []StateID{end, choice} {
		b.Initial(b.Root(), target)
		_, faults := b.Build()
		assert.True(t, hasFault(faults, FaultMissingInitial), "target %d", target)
	}
}

func TestValidate_DuplicateSiblingNames(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultDuplicateName))
}

func TestValidate_DuplicateEventNames(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)
	b.Event("go")
	b.Event("go")

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultDuplicateName))
}

func TestValidate_ParallelNeedsTwoRegions(t *testing.T) {
	b := NewBuilder("m")
	p := b.State(b.Root(), "P", Parallel)
	b.Initial(b.Root(), p)
	r := b.Region(p, "only")
	x := b.State(r, "X", Simple)
	b.Initial(r, x)

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment))
}

func TestValidate_ForkJoinListShapes(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)
	fork := b.State(b.Root(), "F", Fork)
	b.ForkTargets(fork, a)

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultForkJoinMismatch), "fork with a single target")

	b2 := NewBuilder("m2")
	a2 := b2.State(b2.Root(), "A", Simple)
	b2.Initial(b2.Root(), a2)
	join := b2.State(b2.Root(), "J", Join)
	_ = join

	_, faults2 := b2.Build()
	assert.True(t, hasFault(faults2, FaultForkJoinMismatch), "join with no sources")
}

func TestValidate_HistoryNeedsCompositeParent(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)
	b.State(b.Root(), "H", HistoryShallow)

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment))
}

func TestValidate_HistorySlotAssignment(t *testing.T) {
	b := NewBuilder("m")
	on := b.State(b.Root(), "On", Composite)
	b.Initial(b.Root(), on)
	r := b.Region(on, "main")
	x := b.State(r, "X", Simple)
	b.Initial(r, x)
	h1 := b.State(r, "H1", HistoryShallow)
	h2 := b.State(r, "H2", HistoryDeep)

	m, faults := b.Build()
	require.False(t, faults.HasErrors(), "faults: %v", faults)
	assert.Equal(t, 2, m.HistorySlots)
	assert.Equal(t, HistorySlot(0), m.States[h1].Slot)
	assert.Equal(t, HistorySlot(1), m.States[h2].Slot)
	assert.Equal(t, SlotNone, m.States[x].Slot)
}

func TestValidate_PseudostateRestrictions(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	choice := b.State(b.Root(), "C", Choice)
	b.DeferEvent(choice, ev)

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment), "pseudostate must not defer")
}

func TestValidate_InternalTransitionHasNoTarget(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	bb := b.State(b.Root(), "B", Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	b.Transition(Transition{Kind: Internal, Source: a, Target: bb,
		Trigger: Trigger{Kind: TriggerEvent, Event: ev}})

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment))
}

func TestValidate_CompletionSourceMustBeCompound(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	bb := b.State(b.Root(), "B", Simple)
	b.Initial(b.Root(), a)
	b.Transition(Transition{Kind: External, Source: a, Target: bb,
		Trigger: Trigger{Kind: TriggerCompletion}})

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment))
}

func TestValidate_TimedTransitionNeedsPositiveDelay(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	bb := b.State(b.Root(), "B", Simple)
	b.Initial(b.Root(), a)
	b.Transition(Transition{Kind: External, Source: a, Target: bb,
		Trigger: Trigger{Kind: TriggerAfter, DelayMs: 0}})

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment))
}

func TestValidate_DefaultPriorityAssigned(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	bb := b.State(b.Root(), "B", Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("go")
	tid := b.Transition(Transition{Kind: External, Source: a, Target: bb,
		Trigger: Trigger{Kind: TriggerEvent, Event: ev}})

	m, faults := b.Build()
	require.False(t, faults.HasErrors())
	assert.Equal(t, DefaultPriority, m.Transitions[tid].Priority)
}

func TestValidate_GuardTypeChecks(t *testing.T) {
	build := func(g GuardExpr) FaultList {
		b := NewBuilder("m")
		b.ContextField(Field{Name: "n", Type: FieldType{Kind: KindInt, Min: 0, Max: 10}})
		b.ContextField(Field{Name: "mode", Type: FieldType{Kind: KindEnum, Variants: []string{"a", "b"}}})
		s := b.State(b.Root(), "A", Simple)
		d := b.State(b.Root(), "B", Simple)
		b.Initial(b.Root(), s)
		ev := b.Event("go")
		b.Transition(Transition{Kind: External, Source: s, Target: d,
			Trigger: Trigger{Kind: TriggerEvent, Event: ev}, Guard: g})
		_, faults := b.Build()
		return faults
	}

	ok := build(Compare{Field: FieldRef{Scope: ScopeContext, Index: 0}, Op: OpLe, Value: Int(5)})
	assert.False(t, ok.HasErrors())

	outOfDomain := build(Compare{Field: FieldRef{Scope: ScopeContext, Index: 0}, Op: OpEq, Value: Int(99)})
	assert.True(t, hasFault(outOfDomain, FaultTypeMismatch))

	orderedEnum := build(Compare{Field: FieldRef{Scope: ScopeContext, Index: 1}, Op: OpLt, Value: String("a")})
	assert.True(t, hasFault(orderedEnum, FaultTypeMismatch), "ordering needs a bounded int field")

	badRef := build(Compare{Field: FieldRef{Scope: ScopeContext, Index: 7}, Op: OpEq, Value: Int(1)})
	assert.True(t, hasFault(badRef, FaultTypeMismatch))

	badExtern := build(ExternGuard{Ref: 3})
	assert.True(t, hasFault(badExtern, FaultTypeMismatch))
}

func TestValidate_ActionTypeChecks(t *testing.T) {
	b := NewBuilder("m")
	b.ContextField(Field{Name: "n", Type: FieldType{Kind: KindInt, Min: 0, Max: 10}})
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)
	ev := b.Event("ping", Field{Name: "x", Type: FieldType{Kind: KindInt, Min: 0, Max: 5}})

	b.OnEntry(a, Assign{Field: 0, Value: Int(99)})
	b.OnEntry(a, Raise{Event: ev, Args: nil})
	b.OnEntry(a, Send{Machine: "", Event: ev, Args: []Value{Int(1)}})

	_, faults := b.Build()
	require.True(t, faults.HasErrors())
	count := 0
	for _, f := range faults {
		if f.Code == FaultTypeMismatch {
			count++
		}
	}
	assert.Equal(t, 3, count, "domain violation, arity mismatch, missing machine name: %v", faults)
}

func TestValidate_NegativeQueueCapacity(t *testing.T) {
	b := NewBuilder("m")
	a := b.State(b.Root(), "A", Simple)
	b.Initial(b.Root(), a)
	b.Queue(-1, DropOldest)

	_, faults := b.Build()
	assert.True(t, hasFault(faults, FaultBadContainment))
}
