package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
	"github.com/roach88/strata/internal/trace"
)

func TestFork_EntersEveryRegion(t *testing.T) {
	e, sink := newEngine(t, testutil.Keyboard())
	dispatch(t, e, "go")

	assert.Equal(t, []string{"CapsOff", "NumsOff"}, e.ActiveNames(),
		"regions enter in name order")
	last := sink.Steps()[len(sink.Steps())-1]
	require.Len(t, last.Firings, 1)
	assert.Equal(t, []string{"Work", "CapsOff", "NumsOff"}, last.Firings[0].Entered)
}

func TestParallel_RegionsFireIndependently(t *testing.T) {
	e, sink := newEngine(t, testutil.Keyboard())
	dispatch(t, e, "go")

	// "key" has a transition in both regions; one dispatch fires both.
	dispatch(t, e, "key")
	assert.Equal(t, []string{"CapsEnd", "NumsEnd"}, e.ActiveNames())
	last := sink.Steps()[len(sink.Steps())-1]
	assert.Len(t, last.Firings, 2)
}

func TestParallel_EventForOneRegionLeavesOthersAlone(t *testing.T) {
	e, _ := newEngine(t, testutil.Keyboard())
	dispatch(t, e, "go")

	dispatch(t, e, "capslock")
	assert.Equal(t, []string{"CapsOn", "NumsOff"}, e.ActiveNames())
	dispatch(t, e, "capslock")
	assert.Equal(t, []string{"CapsOff", "NumsOff"}, e.ActiveNames())
}

func TestJoin_WaitsForAllArrivals(t *testing.T) {
	b := testutil.Keyboard()
	e, _ := newEngine(t, b)
	dispatch(t, e, "go")

	// Only the caps region reaches its end state; the join must not fire
	// on a partial arrival set.
	dispatch(t, e, "key") // both regions advance in this fixture
	dispatch(t, e, "sync")
	assert.Equal(t, []string{"Idle"}, e.ActiveNames(), "all sources arrived, join fires")
}

func TestJoin_PartialArrivalHoldsBranch(t *testing.T) {
	b := model.NewBuilder("staggered")
	e1 := b.Event("e1")
	e2 := b.Event("e2")
	sync := b.Event("sync")

	idle := b.State(b.Root(), "Idle", model.Simple)
	work := b.State(b.Root(), "Work", model.Parallel)
	fork := b.State(b.Root(), "F", model.Fork)
	join := b.State(b.Root(), "J", model.Join)
	start := b.Event("go")
	b.Initial(b.Root(), idle)

	r1 := b.Region(work, "r1")
	a1 := b.State(r1, "A1", model.Simple)
	end1 := b.State(r1, "End1", model.Simple)
	b.Initial(r1, a1)
	r2 := b.Region(work, "r2")
	a2 := b.State(r2, "A2", model.Simple)
	end2 := b.State(r2, "End2", model.Simple)
	b.Initial(r2, a2)

	b.ForkTargets(fork, a1, a2)
	b.JoinSources(join, end1, end2)

	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: fork,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: start}})
	b.Transition(model.Transition{Kind: model.External, Source: a1, Target: end1,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: e1}})
	b.Transition(model.Transition{Kind: model.External, Source: a2, Target: end2,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: e2}})
	b.Transition(model.Transition{Kind: model.External, Source: end1, Target: join,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: sync}})
	b.Transition(model.Transition{Kind: model.External, Source: end2, Target: join,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: sync}})
	b.Transition(model.Transition{Kind: model.External, Source: join, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerCompletion}})

	e, _ := newEngine(t, b)
	dispatch(t, e, "go")
	dispatch(t, e, "e1")
	dispatch(t, e, "sync")
	assert.Equal(t, []string{"End1", "A2"}, e.ActiveNames(),
		"one arrival holds its branch without exiting")

	dispatch(t, e, "e2")
	dispatch(t, e, "sync")
	assert.Equal(t, []string{"Idle"}, e.ActiveNames())
}

func TestJoin_ExactlyOnceExit(t *testing.T) {
	e, sink := newEngine(t, testutil.Keyboard())
	dispatch(t, e, "go")
	dispatch(t, e, "key")
	dispatch(t, e, "sync")

	last := sink.Steps()[len(sink.Steps())-1]
	assert.Equal(t, trace.Consumed, last.Disposition)

	// Arrival firings for both regions plus the single join continuation.
	require.Len(t, last.Firings, 3)
	assert.Equal(t, "SyncDone -> Idle", last.Firings[2].Transition)
	// The parallel state exits exactly once, as a unit.
	exits := 0
	for _, f := range last.Firings {
		for _, name := range f.Exited {
			if name == "Work" {
				exits++
			}
		}
	}
	assert.Equal(t, 1, exits)

	// Arrival flags reset: a second round works identically.
	dispatch(t, e, "go")
	dispatch(t, e, "key")
	dispatch(t, e, "sync")
	assert.Equal(t, []string{"Idle"}, e.ActiveNames())
}
