package harness

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/strata/internal/dispatch"
	"github.com/roach88/strata/internal/loader"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/trace"
)

// Result is the outcome of one scenario run.
type Result struct {
	// Steps is the full recorded trace, init step included.
	Steps []trace.Step

	// Calls logs extern action invocations in execution order, by name.
	Calls []string

	// Failures collects expectation mismatches. Empty means the scenario
	// passed.
	Failures []string
}

// Ok reports whether every expectation held.
func (r *Result) Ok() bool {
	return len(r.Failures) == 0
}

func (r *Result) failf(step int, format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf("steps[%d]: %s", step, fmt.Sprintf(format, args...)))
}

// RunFile loads and runs the scenario at path. The machine document path
// inside the scenario resolves relative to the scenario file.
func RunFile(path string) (*Result, error) {
	sc, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return Run(sc, filepath.Dir(path))
}

// Run executes a scenario. A fresh engine is built per run; extern guards
// come from the scenario's stub table and extern actions record into the
// result's call log.
func Run(sc *Scenario, dir string) (*Result, error) {
	m, faults, err := loader.Load(filepath.Join(dir, sc.Machine))
	if err != nil {
		return nil, err
	}
	if faults.HasErrors() {
		return nil, fmt.Errorf("machine %s: %w", sc.Machine, faults)
	}

	res := &Result{}
	caps := stubCapabilities(m, sc.Stubs, res)

	sink := &trace.MemorySink{}
	eng, err := dispatch.New(m, caps,
		dispatch.WithTrace(sink),
		dispatch.WithRunID(sc.Name))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	if fault := eng.Init(); fault != nil {
		return nil, fmt.Errorf("scenario %s: init: %s", sc.Name, fault.Error())
	}

	for i, step := range sc.Steps {
		var dres dispatch.DispatchResult
		switch {
		case step.Dispatch != nil:
			ev, buildErr := buildEvent(m, step.Dispatch)
			if buildErr != nil {
				return nil, fmt.Errorf("scenario %s steps[%d]: %w", sc.Name, i, buildErr)
			}
			dres = eng.Dispatch(ev)
		case step.AdvanceMs != 0:
			dres = eng.Tick(time.Duration(step.AdvanceMs) * time.Millisecond)
		case step.Drain:
			dres = eng.Drain()
		}
		res.check(i, step.Expect, eng, sink, dres.Fault)
	}

	res.Steps = sink.Steps()
	return res, nil
}

// stubCapabilities builds a capability table from the scenario's stubs:
// guards return their configured value (false when absent) and actions
// append their name to the call log.
func stubCapabilities(m *model.Machine, stubs Stubs, res *Result) dispatch.Capabilities {
	caps := dispatch.Capabilities{
		Guards:  make([]dispatch.GuardFunc, len(m.ExternGuards)),
		Actions: make([]dispatch.ActionFunc, len(m.ExternActions)),
	}
	for i, name := range m.ExternGuards {
		ret := stubs.Guards[name]
		caps.Guards[i] = func(*dispatch.Context, dispatch.Payload) bool { return ret }
	}
	for i, name := range m.ExternActions {
		caps.Actions[i] = func(*dispatch.Context, dispatch.Payload) {
			res.Calls = append(res.Calls, name)
		}
	}
	return caps
}

func buildEvent(m *model.Machine, d *DispatchStep) (dispatch.Event, error) {
	id := model.EventNone
	for _, ev := range m.Events {
		if ev.Name == d.Event {
			id = ev.ID
			break
		}
	}
	if id == model.EventNone {
		return dispatch.Event{}, fmt.Errorf("machine %s declares no event %q", m.Name, d.Event)
	}
	payload, err := literals(d.Args)
	if err != nil {
		return dispatch.Event{}, fmt.Errorf("event %s: %w", d.Event, err)
	}
	return dispatch.Event{ID: id, Payload: payload}, nil
}

func (r *Result) check(step int, exp *Expect, eng *dispatch.Engine, sink *trace.MemorySink, fault *dispatch.RuntimeFault) {
	if exp == nil {
		if fault != nil {
			r.failf(step, "unexpected fault: %s", fault.Error())
		}
		return
	}

	if exp.Fault == "" {
		if fault != nil {
			r.failf(step, "unexpected fault: %s", fault.Error())
		}
	} else {
		switch {
		case fault == nil:
			r.failf(step, "expected fault containing %q, got none", exp.Fault)
		case !strings.Contains(fault.Error(), exp.Fault):
			r.failf(step, "fault %q does not contain %q", fault.Error(), exp.Fault)
		}
	}

	if exp.Active != nil {
		got := eng.ActiveNames()
		if !equalStrings(got, exp.Active) {
			r.failf(step, "active %v, want %v", got, exp.Active)
		}
	}
	if exp.Disposition != "" {
		steps := sink.Steps()
		if len(steps) == 0 {
			r.failf(step, "no trace steps recorded")
		} else if got := string(steps[len(steps)-1].Disposition); got != exp.Disposition {
			r.failf(step, "disposition %s, want %s", got, exp.Disposition)
		}
	}
	if exp.QueueLen != nil && eng.QueueLen() != *exp.QueueLen {
		r.failf(step, "queue_len %d, want %d", eng.QueueLen(), *exp.QueueLen)
	}
	for name, raw := range exp.Context {
		want, err := literal(raw)
		if err != nil {
			r.failf(step, "context %s: %v", name, err)
			continue
		}
		got, ok := eng.Context().GetNamed(name)
		if !ok {
			r.failf(step, "machine has no context field %q", name)
			continue
		}
		if !model.ValuesEqual(got, want) {
			r.failf(step, "context %s = %s, want %s",
				name, model.FormatValue(got), model.FormatValue(want))
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// literal maps a decoded YAML scalar onto the model's value types, the
// same mapping the document loader applies.
func literal(v any) (model.Value, error) {
	switch val := v.(type) {
	case int:
		return model.Int(val), nil
	case int64:
		return model.Int(val), nil
	case bool:
		return model.Bool(val), nil
	case string:
		return model.String(val), nil
	default:
		return nil, fmt.Errorf("unsupported literal %v (%T)", v, v)
	}
}

func literals(vs []any) ([]model.Value, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	out := make([]model.Value, len(vs))
	for i, v := range vs {
		val, err := literal(v)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}
