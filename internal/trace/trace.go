// Package trace defines the dispatch trace: one Step record per processed
// queue item, stamped by a monotonic logical clock. Traces are the
// observable output of the reference interpreter - golden tests, the replay
// store, and the CLI all consume the same records.
package trace

import (
	"strings"

	"github.com/roach88/strata/internal/model"
)

// Disposition says what happened to the event a step processed.
type Disposition string

const (
	// Consumed: at least one transition fired.
	Consumed Disposition = "consumed"
	// Deferred: an active state held the event for later re-insertion.
	Deferred Disposition = "deferred"
	// Dropped: no transition matched and nothing deferred it.
	Dropped Disposition = "dropped"
	// Discarded: a timer delivery whose owner left before dequeue.
	Discarded Disposition = "discarded"
)

// Firing records one executed transition inside a step.
type Firing struct {
	// ID is the fired transition's handle. Handles survive renames, so
	// stored firings stay valid across model edits that keep the topology.
	// TransitionNone for the synthetic init firing.
	ID model.TransitionID `yaml:"id" json:"id"`

	// Transition is "source -> target", or "source (internal)". Display
	// form only; identity lives in ID.
	Transition string `yaml:"transition" json:"transition"`

	// Exited and Entered list state names in execution order (exit
	// innermost-first, entry outermost-first).
	Exited  []string `yaml:"exited,omitempty" json:"exited,omitempty"`
	Entered []string `yaml:"entered,omitempty" json:"entered,omitempty"`

	// Actions lists executed action descriptions in order.
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Step is one trace record: the outcome of processing a single queue item
// together with its completion chain.
type Step struct {
	// Seq is the logical clock stamp. Strictly increasing per run.
	Seq int64 `yaml:"seq" json:"seq"`

	// EventID is the dequeued event's handle; EventNone for the init step
	// and for timer deliveries, which have no declared event.
	EventID model.EventID `yaml:"event_id" json:"event_id"`

	// Event names the dequeued event; "(after)"/"(every)" deliveries carry
	// the timed transition's synthetic name.
	Event string `yaml:"event" json:"event"`

	// Payload holds the formatted payload values, aligned with the event's
	// declared fields.
	Payload []string `yaml:"payload,omitempty" json:"payload,omitempty"`

	Disposition Disposition `yaml:"disposition" json:"disposition"`

	// Firings lists executed transitions in execution order, completion
	// chain included.
	Firings []Firing `yaml:"firings,omitempty" json:"firings,omitempty"`

	// PreActive and ActiveIDs are the active leaf sets before and after
	// the step, by state handle, ordered by region path. PreActive is
	// empty on the init step.
	PreActive []model.StateID `yaml:"pre_active,omitempty" json:"pre_active,omitempty"`
	ActiveIDs []model.StateID `yaml:"active_ids" json:"active_ids"`

	// Active is the post-step active leaf set by name, for rendering.
	Active []string `yaml:"active" json:"active"`

	// QueueLen is the post-step external queue occupancy.
	QueueLen int `yaml:"queue_len" json:"queue_len"`

	// Fault carries a runtime fault description when the step raised one.
	Fault string `yaml:"fault,omitempty" json:"fault,omitempty"`
}

// InternalFiring formats a Firing label for an internal transition.
func InternalFiring(source string) string {
	return source + " (internal)"
}

// ExternalFiring formats a Firing label for a transition with a target.
func ExternalFiring(source, target string) string {
	return source + " -> " + target
}

// Sink receives steps as they are produced. Implementations must not
// retain the slices inside the record beyond the call unless they copy.
type Sink interface {
	Record(step Step)
}

// MemorySink collects steps in order. The zero value is ready to use.
type MemorySink struct {
	steps []Step
}

func (s *MemorySink) Record(step Step) {
	s.steps = append(s.steps, step)
}

// Steps returns the collected records.
func (s *MemorySink) Steps() []Step {
	return s.steps
}

// Reset discards collected records.
func (s *MemorySink) Reset() {
	s.steps = nil
}

// MultiSink fans a step out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Record(step Step) {
	for _, s := range m {
		s.Record(step)
	}
}

// FormatStep renders a step as one compact human-readable line, used by
// the CLI's text output.
func FormatStep(s Step) string {
	var b strings.Builder
	b.WriteString(s.Event)
	if len(s.Payload) > 0 {
		b.WriteString("(")
		b.WriteString(strings.Join(s.Payload, ", "))
		b.WriteString(")")
	}
	b.WriteString(" ")
	b.WriteString(string(s.Disposition))
	for _, f := range s.Firings {
		b.WriteString("; ")
		b.WriteString(f.Transition)
	}
	b.WriteString(" [")
	b.WriteString(strings.Join(s.Active, " "))
	b.WriteString("]")
	if s.Fault != "" {
		b.WriteString(" !")
		b.WriteString(s.Fault)
	}
	return b.String()
}
