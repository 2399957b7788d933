package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/trace"
)

func TestGolden_Thermostat(t *testing.T) {
	res := Golden(t, "thermostat")
	assert.Empty(t, res.Calls)
}

func TestGolden_Heater(t *testing.T) {
	res := Golden(t, "heater")
	// Entering Faulted fires the stubbed alarm action.
	assert.Equal(t, []string{"alarm"}, res.Calls)
}

func TestRun_ExpectationMismatchSurfaces(t *testing.T) {
	sc := &Scenario{
		Name:    "mismatch",
		Machine: "machines/heater.yaml",
		Steps: []Step{
			{
				Dispatch: &DispatchStep{Event: "start"},
				Expect:   &Expect{Active: []string{"Idle"}},
			},
		},
	}
	res, err := Run(sc, "testdata")
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "steps[0]")
	assert.Contains(t, res.Failures[0], "want [Idle]")
}

func TestRun_GuardStubsApply(t *testing.T) {
	dir := t.TempDir()
	machine := `
machine: door
extern:
  guards: [doorClosed]
events:
  - name: go
states:
  - {name: Wait, initial: true}
  - name: Moving
transitions:
  - from: Wait
    to: Moving
    on: go
    guard: {extern: doorClosed}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "door.yaml"), []byte(machine), 0o644))

	sc := &Scenario{
		Name:    "door",
		Machine: "door.yaml",
		Stubs:   Stubs{Guards: map[string]bool{"doorClosed": true}},
		Steps: []Step{
			{
				Dispatch: &DispatchStep{Event: "go"},
				Expect:   &Expect{Active: []string{"Moving"}},
			},
		},
	}
	res, err := Run(sc, dir)
	require.NoError(t, err)
	assert.True(t, res.Ok(), "failures: %v", res.Failures)

	// The same scenario without the stub leaves the guard false.
	sc.Stubs = Stubs{}
	sc.Steps[0].Expect = &Expect{Active: []string{"Wait"}, Disposition: "dropped"}
	res, err = Run(sc, dir)
	require.NoError(t, err)
	assert.True(t, res.Ok(), "failures: %v", res.Failures)
}

func TestLoadScenario_Strict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
machine: m.yaml
steps:
  - dispatch: {event: go}
    wait_for: something
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait_for")
}

func TestLoadScenario_StepFormExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "both.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: both
machine: m.yaml
steps:
  - dispatch: {event: go}
    advance_ms: 100
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of dispatch/advance_ms/drain")
}

func TestRenderTrace(t *testing.T) {
	steps := []trace.Step{
		{Seq: 1, Event: "(init)", Disposition: trace.Consumed, Active: []string{"Idle"}},
		{Seq: 2, Event: "go", Payload: []string{"5"}, Disposition: trace.Consumed,
			Firings: []trace.Firing{{Transition: "Idle -> Run"}}, Active: []string{"Run"}},
	}
	got := string(RenderTrace(steps))
	assert.Equal(t, "1 (init) consumed [Idle]\n2 go(5) consumed; Idle -> Run [Run]\n", got)
}
