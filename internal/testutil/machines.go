package testutil

import (
	"testing"

	"github.com/roach88/strata/internal/model"
)

// MustBuild finishes a builder and fails the test on any validation error.
func MustBuild(tb testing.TB, b *model.Builder) *model.Machine {
	tb.Helper()
	m, faults := b.Build()
	if faults.HasErrors() {
		tb.Fatalf("fixture rejected: %s", faults.Error())
	}
	return m
}

// TrafficLight is a flat three-state cycle driven by one event.
//
//	Red -tick-> Green -tick-> Yellow -tick-> Red
func TrafficLight() *model.Builder {
	b := model.NewBuilder("traffic_light")
	tick := b.Event("tick")
	red := b.State(b.Root(), "Red", model.Simple)
	green := b.State(b.Root(), "Green", model.Simple)
	yellow := b.State(b.Root(), "Yellow", model.Simple)
	b.Initial(b.Root(), red)
	b.Transition(model.Transition{Kind: model.External, Source: red, Target: green,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: tick}})
	b.Transition(model.Transition{Kind: model.External, Source: green, Target: yellow,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: tick}})
	b.Transition(model.Transition{Kind: model.External, Source: yellow, Target: red,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: tick}})
	return b
}

// Player exercises composites and shallow history: power-off remembers the
// playback state and power-on resumes it.
func Player() *model.Builder {
	b := model.NewBuilder("player")
	power := b.Event("power")
	play := b.Event("play")
	pause := b.Event("pause")
	stop := b.Event("stop")

	off := b.State(b.Root(), "Off", model.Simple)
	on := b.State(b.Root(), "On", model.Composite)
	b.Initial(b.Root(), off)

	deck := b.Region(on, "deck")
	stopped := b.State(deck, "Stopped", model.Simple)
	playing := b.State(deck, "Playing", model.Simple)
	paused := b.State(deck, "Paused", model.Simple)
	hist := b.State(deck, "H", model.HistoryShallow)
	b.Initial(deck, stopped)

	b.Transition(model.Transition{Kind: model.External, Source: off, Target: hist,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: power}})
	b.Transition(model.Transition{Kind: model.External, Source: on, Target: off,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: power}})
	b.Transition(model.Transition{Kind: model.External, Source: stopped, Target: playing,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: play}})
	b.Transition(model.Transition{Kind: model.External, Source: playing, Target: paused,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: pause}})
	b.Transition(model.Transition{Kind: model.External, Source: paused, Target: playing,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: play}})
	b.Transition(model.Transition{Kind: model.External, Source: playing, Target: stopped,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: stop}})
	b.Transition(model.Transition{Kind: model.External, Source: paused, Target: stopped,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: stop}})
	return b
}

// Keyboard exercises fork, parallel regions, and join. "go" forks into
// both regions, "key" advances each region to its end state, "sync" sends
// both arrivals to the join, whose continuation returns to Idle.
func Keyboard() *model.Builder {
	b := model.NewBuilder("keyboard")
	start := b.Event("go")
	key := b.Event("key")
	capslock := b.Event("capslock")
	sync := b.Event("sync")

	idle := b.State(b.Root(), "Idle", model.Simple)
	work := b.State(b.Root(), "Work", model.Parallel)
	fork := b.State(b.Root(), "ForkIn", model.Fork)
	join := b.State(b.Root(), "SyncDone", model.Join)
	b.Initial(b.Root(), idle)

	caps := b.Region(work, "caps")
	capsOff := b.State(caps, "CapsOff", model.Simple)
	capsOn := b.State(caps, "CapsOn", model.Simple)
	capsEnd := b.State(caps, "CapsEnd", model.Simple)
	b.Initial(caps, capsOff)

	nums := b.Region(work, "nums")
	numsOff := b.State(nums, "NumsOff", model.Simple)
	numsEnd := b.State(nums, "NumsEnd", model.Simple)
	b.Initial(nums, numsOff)

	b.ForkTargets(fork, capsOff, numsOff)
	b.JoinSources(join, capsEnd, numsEnd)

	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: fork,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: start}})
	b.Transition(model.Transition{Kind: model.External, Source: capsOff, Target: capsOn,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: capslock}})
	b.Transition(model.Transition{Kind: model.External, Source: capsOn, Target: capsOff,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: capslock}})
	b.Transition(model.Transition{Kind: model.External, Source: capsOff, Target: capsEnd,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: key}})
	b.Transition(model.Transition{Kind: model.External, Source: numsOff, Target: numsEnd,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: key}})
	b.Transition(model.Transition{Kind: model.External, Source: capsEnd, Target: join,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: sync}})
	b.Transition(model.Transition{Kind: model.External, Source: numsEnd, Target: join,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: sync}})
	b.Transition(model.Transition{Kind: model.External, Source: join, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerCompletion}})
	return b
}

// Stage exercises final states and completion transitions: finishing the
// inner region completes the composite, which chains to Done.
func Stage() *model.Builder {
	b := model.NewBuilder("stage")
	finish := b.Event("finish")

	stage := b.State(b.Root(), "Stage", model.Composite)
	done := b.State(b.Root(), "Done", model.Simple)
	b.Initial(b.Root(), stage)

	inner := b.Region(stage, "inner")
	run := b.State(inner, "Run", model.Simple)
	end := b.State(inner, "End", model.Final)
	b.Initial(inner, run)

	b.Transition(model.Transition{Kind: model.External, Source: run, Target: end,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: finish}})
	b.Transition(model.Transition{Kind: model.External, Source: stage, Target: done,
		Trigger: model.Trigger{Kind: model.TriggerCompletion}})
	return b
}

// JunctionLoop is deliberately defective at runtime: "boom" lands in a
// junction pair that chains forever, tripping the completion-chain bound.
func JunctionLoop() *model.Builder {
	b := model.NewBuilder("junction_loop")
	boom := b.Event("boom")

	idle := b.State(b.Root(), "Idle", model.Simple)
	j1 := b.State(b.Root(), "J1", model.Junction)
	j2 := b.State(b.Root(), "J2", model.Junction)
	b.Initial(b.Root(), idle)

	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: j1,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: boom}})
	b.Transition(model.Transition{Kind: model.External, Source: j1, Target: j2,
		Trigger: model.Trigger{Kind: model.TriggerCompletion}})
	b.Transition(model.Transition{Kind: model.External, Source: j2, Target: j1,
		Trigger: model.Trigger{Kind: model.TriggerCompletion}})
	return b
}

// Heater exercises the timer model: Running times out into Faulted unless
// stopped first.
func Heater() *model.Builder {
	b := model.NewBuilder("heater")
	start := b.Event("start")
	stop := b.Event("stop")
	reset := b.Event("reset")

	idle := b.State(b.Root(), "Idle", model.Simple)
	running := b.State(b.Root(), "Running", model.Simple)
	faulted := b.State(b.Root(), "Faulted", model.Simple)
	b.Initial(b.Root(), idle)

	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: running,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: start}})
	b.Transition(model.Transition{Kind: model.External, Source: running, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: stop}})
	b.Transition(model.Transition{Kind: model.External, Source: running, Target: faulted,
		Trigger: model.Trigger{Kind: model.TriggerAfter, DelayMs: 500}})
	b.Transition(model.Transition{Kind: model.External, Source: faulted, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: reset}})
	return b
}

// BootLoader exercises event deferral: "data" arriving during Boot is held
// and replayed once Ready is entered.
func BootLoader() *model.Builder {
	b := model.NewBuilder("bootloader")
	ready := b.Event("ready")
	data := b.Event("data")

	boot := b.State(b.Root(), "Boot", model.Simple)
	idle := b.State(b.Root(), "Ready", model.Simple)
	busy := b.State(b.Root(), "Processing", model.Simple)
	b.Initial(b.Root(), boot)
	b.DeferEvent(boot, data)

	b.Transition(model.Transition{Kind: model.External, Source: boot, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ready}})
	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: busy,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: data}})
	b.Transition(model.Transition{Kind: model.External, Source: busy, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: ready}})
	return b
}

// Thermostat exercises guards over a bounded integer context field plus a
// choice pseudostate. The "set" event carries the requested temperature.
func Thermostat() *model.Builder {
	b := model.NewBuilder("thermostat")
	target := b.ContextField(model.Field{
		Name: "target",
		Type: model.FieldType{Kind: model.KindInt, Min: 0, Max: 40},
	})
	set := b.Event("set", model.Field{
		Name: "temp",
		Type: model.FieldType{Kind: model.KindInt, Min: 0, Max: 40},
	})
	tick := b.Event("tick")

	idle := b.State(b.Root(), "Idle", model.Simple)
	decide := b.State(b.Root(), "Decide", model.Choice)
	heat := b.State(b.Root(), "Heating", model.Simple)
	cool := b.State(b.Root(), "Cooling", model.Simple)
	b.Initial(b.Root(), idle)

	payloadTemp := model.FieldRef{Scope: model.ScopePayload, Index: 0}
	ctxTarget := model.FieldRef{Scope: model.ScopeContext, Index: target}

	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: set},
		Guard:   model.Compare{Field: payloadTemp, Op: model.OpLe, Value: model.Int(20)},
		Actions: []model.Action{model.Assign{Field: target, Value: model.Int(18)}}})
	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: set},
		Guard:   model.Compare{Field: payloadTemp, Op: model.OpGt, Value: model.Int(20)},
		Actions: []model.Action{model.Assign{Field: target, Value: model.Int(30)}}})
	b.Transition(model.Transition{Kind: model.External, Source: idle, Target: decide,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: tick}})
	b.Transition(model.Transition{Kind: model.External, Source: decide, Target: heat,
		Trigger: model.Trigger{Kind: model.TriggerCompletion},
		Guard:   model.Compare{Field: ctxTarget, Op: model.OpGe, Value: model.Int(25)}})
	b.Transition(model.Transition{Kind: model.External, Source: decide, Target: cool,
		Trigger: model.Trigger{Kind: model.TriggerCompletion},
		Guard:   model.Compare{Field: ctxTarget, Op: model.OpLt, Value: model.Int(25)}})
	b.Transition(model.Transition{Kind: model.External, Source: heat, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: tick}})
	b.Transition(model.Transition{Kind: model.External, Source: cool, Target: idle,
		Trigger: model.Trigger{Kind: model.TriggerEvent, Event: tick}})
	return b
}
