// Package loader reads machine documents: the YAML surface over the
// semantic model. Documents are decoded strictly (unknown fields are
// rejected, catching typos), resolved by name into arena handles, and
// validated before they reach any consumer.
//
// The loader is a tooling boundary. Everything past it works in handles;
// names survive only for faults and traces.
package loader

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/model"
)

// Document is the top-level machine document.
type Document struct {
	Machine string     `yaml:"machine"`
	Context []FieldDoc `yaml:"context,omitempty"`
	Events  []EventDoc `yaml:"events,omitempty"`
	Extern  ExternDoc  `yaml:"extern,omitempty"`
	Queue   QueueDoc   `yaml:"queue,omitempty"`
	States  []StateDoc `yaml:"states"`
	Flows   []FlowDoc  `yaml:"transitions"`
}

// FieldDoc declares a typed field, for context and event payloads.
type FieldDoc struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"` // int, bool, enum
	Min      int64    `yaml:"min,omitempty"`
	Max      int64    `yaml:"max,omitempty"`
	Variants []string `yaml:"variants,omitempty"`
}

// EventDoc declares an event and its payload fields.
type EventDoc struct {
	Name    string     `yaml:"name"`
	Payload []FieldDoc `yaml:"payload,omitempty"`
}

// ExternDoc names the capability slots.
type ExternDoc struct {
	Guards  []string `yaml:"guards,omitempty"`
	Actions []string `yaml:"actions,omitempty"`
}

// QueueDoc fixes the bounded queue.
type QueueDoc struct {
	Capacity int    `yaml:"capacity,omitempty"`
	Policy   string `yaml:"policy,omitempty"` // drop_oldest, drop_newest, error, assert
}

// StateDoc declares one state. Kind defaults to simple, or composite /
// parallel when regions are present.
type StateDoc struct {
	Name    string      `yaml:"name"`
	Kind    string      `yaml:"kind,omitempty"`
	Initial bool        `yaml:"initial,omitempty"`
	Entry   []ActionDoc `yaml:"entry,omitempty"`
	Exit    []ActionDoc `yaml:"exit,omitempty"`
	Defer   []string    `yaml:"defer,omitempty"`
	Regions []RegionDoc `yaml:"regions,omitempty"`

	ForkTargets []string `yaml:"fork_targets,omitempty"`
	JoinSources []string `yaml:"join_sources,omitempty"`
}

// RegionDoc declares a named region and its states.
type RegionDoc struct {
	Name   string     `yaml:"name"`
	States []StateDoc `yaml:"states"`
}

// FlowDoc declares one transition. Exactly one trigger form applies:
// "on" (event), "completion", "after_ms", or "every_ms".
type FlowDoc struct {
	From       string `yaml:"from"`
	To         string `yaml:"to,omitempty"`
	Kind       string `yaml:"kind,omitempty"` // external (default), internal, local
	On         string `yaml:"on,omitempty"`
	Completion bool   `yaml:"completion,omitempty"`
	AfterMs    int64  `yaml:"after_ms,omitempty"`
	EveryMs    int64  `yaml:"every_ms,omitempty"`

	Guard    *GuardDoc   `yaml:"guard,omitempty"`
	Actions  []ActionDoc `yaml:"actions,omitempty"`
	Priority int         `yaml:"priority,omitempty"`
}

// Load reads, parses, and validates a machine document from disk.
func Load(path string) (*model.Machine, model.FaultList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read machine document: %w", err)
	}
	return Parse(data)
}

// Parse decodes and resolves a machine document. Structural faults from
// validation come back in the FaultList; resolution errors (unknown
// names, malformed guards) come back as an error.
func Parse(data []byte) (*model.Machine, model.FaultList, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("parse machine document: %w", err)
	}
	return doc.Resolve()
}

// Resolve lowers the document into a validated Machine.
func (d *Document) Resolve() (*model.Machine, model.FaultList, error) {
	if d.Machine == "" {
		return nil, nil, fmt.Errorf("machine document: machine name is required")
	}
	if len(d.States) == 0 {
		return nil, nil, fmt.Errorf("machine %s: states list is required", d.Machine)
	}

	r := &resolver{
		b:       model.NewBuilder(d.Machine),
		states:  make(map[string]model.StateID),
		regions: make(map[string]model.RegionID),
		events:  make(map[string]model.EventID),
		guards:  make(map[string]model.GuardRef),
		procs:   make(map[string]model.ProcRef),
		fields:  make(map[string]int),
		payload: make(map[string][]model.Field),
	}

	for i, f := range d.Context {
		field, err := f.toField()
		if err != nil {
			return nil, nil, fmt.Errorf("context[%d]: %w", i, err)
		}
		r.fields[f.Name] = r.b.ContextField(field)
	}
	for i, ev := range d.Events {
		if ev.Name == "" {
			return nil, nil, fmt.Errorf("events[%d]: name is required", i)
		}
		payload := make([]model.Field, len(ev.Payload))
		for j, f := range ev.Payload {
			field, err := f.toField()
			if err != nil {
				return nil, nil, fmt.Errorf("event %s payload[%d]: %w", ev.Name, j, err)
			}
			payload[j] = field
		}
		r.events[ev.Name] = r.b.Event(ev.Name, payload...)
		r.payload[ev.Name] = payload
	}
	for _, g := range d.Extern.Guards {
		r.guards[g] = r.b.ExternGuard(g)
	}
	for _, p := range d.Extern.Actions {
		r.procs[p] = r.b.ExternAction(p)
	}
	if d.Queue.Capacity != 0 || d.Queue.Policy != "" {
		policy, err := parsePolicy(d.Queue.Policy)
		if err != nil {
			return nil, nil, err
		}
		r.b.Queue(d.Queue.Capacity, policy)
	}

	// First pass declares every state so forward references resolve.
	if err := r.declareStates(r.b.Root(), d.States); err != nil {
		return nil, nil, err
	}
	if err := r.wireStates(r.b.Root(), d.States); err != nil {
		return nil, nil, err
	}
	for i := range d.Flows {
		if err := r.addTransition(&d.Flows[i]); err != nil {
			return nil, nil, fmt.Errorf("transitions[%d]: %w", i, err)
		}
	}

	m, faults := r.b.Build()
	return m, faults, nil
}

// resolver carries the name tables while lowering one document. State
// names must be unique document-wide so transition endpoints resolve
// unambiguously, which is stricter than the model itself requires.
type resolver struct {
	b       *model.Builder
	states  map[string]model.StateID
	regions map[string]model.RegionID // keyed "Owner/region"
	events  map[string]model.EventID
	guards  map[string]model.GuardRef
	procs   map[string]model.ProcRef
	fields  map[string]int
	payload map[string][]model.Field
}

func (r *resolver) declareStates(region model.RegionID, docs []StateDoc) error {
	for i := range docs {
		sd := &docs[i]
		if sd.Name == "" {
			return fmt.Errorf("state without a name in region %d", region)
		}
		if _, dup := r.states[sd.Name]; dup {
			return fmt.Errorf("state name %q used twice; document state names must be unique", sd.Name)
		}
		kind, err := sd.stateKind()
		if err != nil {
			return fmt.Errorf("state %s: %w", sd.Name, err)
		}
		id := r.b.State(region, sd.Name, kind)
		r.states[sd.Name] = id

		for j := range sd.Regions {
			rd := &sd.Regions[j]
			if rd.Name == "" {
				return fmt.Errorf("state %s: region without a name", sd.Name)
			}
			child := r.b.Region(id, rd.Name)
			r.regions[sd.Name+"/"+rd.Name] = child
			if err := r.declareStates(child, rd.States); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *resolver) wireStates(region model.RegionID, docs []StateDoc) error {
	for i := range docs {
		sd := &docs[i]
		id := r.states[sd.Name]

		if sd.Initial {
			r.b.Initial(region, id)
		}
		for _, ad := range sd.Entry {
			a, err := r.action(&ad)
			if err != nil {
				return fmt.Errorf("state %s entry: %w", sd.Name, err)
			}
			r.b.OnEntry(id, a)
		}
		for _, ad := range sd.Exit {
			a, err := r.action(&ad)
			if err != nil {
				return fmt.Errorf("state %s exit: %w", sd.Name, err)
			}
			r.b.OnExit(id, a)
		}
		for _, evName := range sd.Defer {
			ev, ok := r.events[evName]
			if !ok {
				return fmt.Errorf("state %s defers unknown event %q", sd.Name, evName)
			}
			r.b.DeferEvent(id, ev)
		}
		if len(sd.ForkTargets) > 0 {
			targets, err := r.stateList(sd.ForkTargets)
			if err != nil {
				return fmt.Errorf("fork %s: %w", sd.Name, err)
			}
			r.b.ForkTargets(id, targets...)
		}
		if len(sd.JoinSources) > 0 {
			sources, err := r.stateList(sd.JoinSources)
			if err != nil {
				return fmt.Errorf("join %s: %w", sd.Name, err)
			}
			r.b.JoinSources(id, sources...)
		}

		for j := range sd.Regions {
			rd := &sd.Regions[j]
			if err := r.wireStates(r.regions[sd.Name+"/"+rd.Name], rd.States); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *resolver) stateList(names []string) ([]model.StateID, error) {
	out := make([]model.StateID, len(names))
	for i, name := range names {
		id, ok := r.states[name]
		if !ok {
			return nil, fmt.Errorf("unknown state %q", name)
		}
		out[i] = id
	}
	return out, nil
}

func (r *resolver) addTransition(fd *FlowDoc) error {
	src, ok := r.states[fd.From]
	if !ok {
		return fmt.Errorf("unknown source state %q", fd.From)
	}
	t := model.Transition{
		Source:   src,
		Target:   model.StateNone,
		Priority: fd.Priority,
	}

	switch fd.Kind {
	case "", "external":
		t.Kind = model.External
	case "internal":
		t.Kind = model.Internal
	case "local":
		t.Kind = model.Local
	default:
		return fmt.Errorf("unknown transition kind %q", fd.Kind)
	}

	if fd.To != "" {
		tgt, ok := r.states[fd.To]
		if !ok {
			return fmt.Errorf("unknown target state %q", fd.To)
		}
		t.Target = tgt
	}

	forms := 0
	if fd.On != "" {
		forms++
		ev, ok := r.events[fd.On]
		if !ok {
			return fmt.Errorf("unknown event %q", fd.On)
		}
		t.Trigger = model.Trigger{Kind: model.TriggerEvent, Event: ev}
	}
	if fd.Completion {
		forms++
		t.Trigger = model.Trigger{Kind: model.TriggerCompletion}
	}
	if fd.AfterMs != 0 {
		forms++
		t.Trigger = model.Trigger{Kind: model.TriggerAfter, DelayMs: fd.AfterMs}
	}
	if fd.EveryMs != 0 {
		forms++
		t.Trigger = model.Trigger{Kind: model.TriggerEvery, DelayMs: fd.EveryMs}
	}
	if forms != 1 {
		return fmt.Errorf("transition from %s: exactly one of on/completion/after_ms/every_ms is required", fd.From)
	}

	if fd.Guard != nil {
		g, err := r.guard(fd.Guard, fd.On)
		if err != nil {
			return fmt.Errorf("transition from %s: guard: %w", fd.From, err)
		}
		t.Guard = g
	}
	for _, ad := range fd.Actions {
		a, err := r.action(&ad)
		if err != nil {
			return fmt.Errorf("transition from %s: %w", fd.From, err)
		}
		t.Actions = append(t.Actions, a)
	}

	r.b.Transition(t)
	return nil
}

func (sd *StateDoc) stateKind() (model.StateKind, error) {
	switch sd.Kind {
	case "":
		if len(sd.Regions) > 0 {
			return model.Composite, nil
		}
		return model.Simple, nil
	case "simple":
		return model.Simple, nil
	case "composite":
		return model.Composite, nil
	case "parallel":
		return model.Parallel, nil
	case "final":
		return model.Final, nil
	case "choice":
		return model.Choice, nil
	case "junction":
		return model.Junction, nil
	case "history":
		return model.HistoryShallow, nil
	case "deep_history":
		return model.HistoryDeep, nil
	case "fork":
		return model.Fork, nil
	case "join":
		return model.Join, nil
	case "entry_point":
		return model.EntryPoint, nil
	case "exit_point":
		return model.ExitPoint, nil
	default:
		return 0, fmt.Errorf("unknown state kind %q", sd.Kind)
	}
}

func (f *FieldDoc) toField() (model.Field, error) {
	if f.Name == "" {
		return model.Field{}, fmt.Errorf("field name is required")
	}
	switch f.Type {
	case "int":
		if f.Min > f.Max {
			return model.Field{}, fmt.Errorf("field %s: min %d exceeds max %d", f.Name, f.Min, f.Max)
		}
		return model.Field{Name: f.Name, Type: model.FieldType{Kind: model.KindInt, Min: f.Min, Max: f.Max}}, nil
	case "bool":
		return model.Field{Name: f.Name, Type: model.FieldType{Kind: model.KindBool}}, nil
	case "enum":
		if len(f.Variants) == 0 {
			return model.Field{}, fmt.Errorf("field %s: enum needs variants", f.Name)
		}
		return model.Field{Name: f.Name, Type: model.FieldType{Kind: model.KindEnum, Variants: f.Variants}}, nil
	default:
		return model.Field{}, fmt.Errorf("field %s: unknown type %q (int, bool, enum)", f.Name, f.Type)
	}
}

func parsePolicy(s string) (model.QueuePolicy, error) {
	switch s {
	case "", "drop_oldest":
		return model.DropOldest, nil
	case "drop_newest":
		return model.DropNewest, nil
	case "error":
		return model.Reject, nil
	case "assert":
		return model.Assert, nil
	default:
		return 0, fmt.Errorf("unknown queue policy %q", s)
	}
}
