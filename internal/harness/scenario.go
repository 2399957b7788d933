// Package harness runs scripted scenarios against the dispatch engine and
// compares the produced traces with golden files. Scenarios are YAML: a
// machine document reference, stub values for extern capabilities, and a
// step list of dispatches and timer advances with inline expectations.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted run.
type Scenario struct {
	Name    string `yaml:"name"`
	Machine string `yaml:"machine"` // document path, relative to the scenario file
	Stubs   Stubs  `yaml:"stubs,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Stubs fixes the return values of extern guard capabilities for the run.
// Guards not listed return false. Extern actions are always stubbed with a
// recorder; their invocations land in the result's call log.
type Stubs struct {
	Guards map[string]bool `yaml:"guards,omitempty"`
}

// Step is one scripted operation. Exactly one of Dispatch, AdvanceMs, or
// Drain applies; Expect is checked after the operation completes.
type Step struct {
	Dispatch  *DispatchStep `yaml:"dispatch,omitempty"`
	AdvanceMs int64         `yaml:"advance_ms,omitempty"`
	Drain     bool          `yaml:"drain,omitempty"`
	Expect    *Expect       `yaml:"expect,omitempty"`
}

// DispatchStep injects one event.
type DispatchStep struct {
	Event string `yaml:"event"`
	Args  []any  `yaml:"args,omitempty"`
}

// Expect asserts on the engine after a step. Zero-value fields are not
// checked; an empty Fault means the step must not fault.
type Expect struct {
	Active      []string       `yaml:"active,omitempty"`
	Disposition string         `yaml:"disposition,omitempty"`
	QueueLen    *int           `yaml:"queue_len,omitempty"`
	Context     map[string]any `yaml:"context,omitempty"`
	Fault       string         `yaml:"fault,omitempty"` // substring of the fault text
}

// LoadScenario reads and validates a scenario file. Unknown YAML fields
// are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if sc.Machine == "" {
		return fmt.Errorf("machine is required")
	}
	for i, step := range sc.Steps {
		forms := 0
		if step.Dispatch != nil {
			forms++
			if step.Dispatch.Event == "" {
				return fmt.Errorf("steps[%d]: dispatch needs an event", i)
			}
		}
		if step.AdvanceMs != 0 {
			forms++
			if step.AdvanceMs < 0 {
				return fmt.Errorf("steps[%d]: advance_ms must be positive", i)
			}
		}
		if step.Drain {
			forms++
		}
		if forms != 1 {
			return fmt.Errorf("steps[%d]: exactly one of dispatch/advance_ms/drain is required", i)
		}
	}
	return nil
}
