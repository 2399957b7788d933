package loader

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/model"
)

// GuardDoc is one node of a guard expression. Exactly one form is set.
//
//	extern: doorClosed
//	not: {extern: doorClosed}
//	all: [ {...}, {...} ]
//	any: [ {...}, {...} ]
//	cmp: {field: target, op: ge, value: 25}
//
// Comparison fields resolve against the context schema by bare name, or
// against the triggering event's payload with an "event." prefix.
type GuardDoc struct {
	Extern string      `yaml:"extern,omitempty"`
	Not    *GuardDoc   `yaml:"not,omitempty"`
	All    []GuardDoc  `yaml:"all,omitempty"`
	Any    []GuardDoc  `yaml:"any,omitempty"`
	Cmp    *CompareDoc `yaml:"cmp,omitempty"`
}

// CompareDoc tests one field against a literal.
type CompareDoc struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"` // eq, ne, lt, le, gt, ge
	Value any    `yaml:"value"`
}

// ActionDoc is one action step. Exactly one form is set.
type ActionDoc struct {
	Call   string     `yaml:"call,omitempty"`
	Assign *AssignDoc `yaml:"assign,omitempty"`
	Raise  *RaiseDoc  `yaml:"raise,omitempty"`
	Send   *SendDoc   `yaml:"send,omitempty"`
}

// AssignDoc writes a literal into a context field.
type AssignDoc struct {
	Field string `yaml:"field"`
	Value any    `yaml:"value"`
}

// RaiseDoc enqueues an event on the machine's own queue.
type RaiseDoc struct {
	Event string `yaml:"event"`
	Args  []any  `yaml:"args,omitempty"`
}

// SendDoc enqueues an event on a named peer machine's queue.
type SendDoc struct {
	Machine string `yaml:"machine"`
	Event   string `yaml:"event"`
	Args    []any  `yaml:"args,omitempty"`
}

func (r *resolver) guard(gd *GuardDoc, trigger string) (model.GuardExpr, error) {
	forms := 0
	if gd.Extern != "" {
		forms++
	}
	if gd.Not != nil {
		forms++
	}
	if gd.All != nil {
		forms++
	}
	if gd.Any != nil {
		forms++
	}
	if gd.Cmp != nil {
		forms++
	}
	if forms != 1 {
		return nil, fmt.Errorf("guard node needs exactly one of extern/not/all/any/cmp")
	}

	switch {
	case gd.Extern != "":
		ref, ok := r.guards[gd.Extern]
		if !ok {
			return nil, fmt.Errorf("unknown extern guard %q", gd.Extern)
		}
		return model.ExternGuard{Ref: ref}, nil
	case gd.Not != nil:
		inner, err := r.guard(gd.Not, trigger)
		if err != nil {
			return nil, err
		}
		return model.Not{Operand: inner}, nil
	case gd.All != nil:
		ops, err := r.guardList(gd.All, trigger)
		if err != nil {
			return nil, err
		}
		return model.All{Operands: ops}, nil
	case gd.Any != nil:
		ops, err := r.guardList(gd.Any, trigger)
		if err != nil {
			return nil, err
		}
		return model.Any{Operands: ops}, nil
	default:
		return r.compare(gd.Cmp, trigger)
	}
}

func (r *resolver) guardList(docs []GuardDoc, trigger string) ([]model.GuardExpr, error) {
	ops := make([]model.GuardExpr, len(docs))
	for i := range docs {
		g, err := r.guard(&docs[i], trigger)
		if err != nil {
			return nil, err
		}
		ops[i] = g
	}
	return ops, nil
}

func (r *resolver) compare(cd *CompareDoc, trigger string) (model.GuardExpr, error) {
	ref, err := r.fieldRef(cd.Field, trigger)
	if err != nil {
		return nil, err
	}
	op, err := parseOp(cd.Op)
	if err != nil {
		return nil, err
	}
	val, err := literal(cd.Value)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", cd.Field, err)
	}
	return model.Compare{Field: ref, Op: op, Value: val}, nil
}

// fieldRef resolves "name" against the context schema, or "event.name"
// against the triggering event's payload.
func (r *resolver) fieldRef(name, trigger string) (model.FieldRef, error) {
	if rest, ok := strings.CutPrefix(name, "event."); ok {
		if trigger == "" {
			return model.FieldRef{}, fmt.Errorf("field %q: transition has no event trigger", name)
		}
		for i, f := range r.payload[trigger] {
			if f.Name == rest {
				return model.FieldRef{Scope: model.ScopePayload, Index: i}, nil
			}
		}
		return model.FieldRef{}, fmt.Errorf("event %s has no payload field %q", trigger, rest)
	}
	idx, ok := r.fields[name]
	if !ok {
		return model.FieldRef{}, fmt.Errorf("unknown context field %q", name)
	}
	return model.FieldRef{Scope: model.ScopeContext, Index: idx}, nil
}

func (r *resolver) action(ad *ActionDoc) (model.Action, error) {
	forms := 0
	if ad.Call != "" {
		forms++
	}
	if ad.Assign != nil {
		forms++
	}
	if ad.Raise != nil {
		forms++
	}
	if ad.Send != nil {
		forms++
	}
	if forms != 1 {
		return nil, fmt.Errorf("action needs exactly one of call/assign/raise/send")
	}

	switch {
	case ad.Call != "":
		proc, ok := r.procs[ad.Call]
		if !ok {
			return nil, fmt.Errorf("unknown extern action %q", ad.Call)
		}
		return model.CallExtern{Proc: proc}, nil
	case ad.Assign != nil:
		idx, ok := r.fields[ad.Assign.Field]
		if !ok {
			return nil, fmt.Errorf("assign to unknown context field %q", ad.Assign.Field)
		}
		val, err := literal(ad.Assign.Value)
		if err != nil {
			return nil, fmt.Errorf("assign %s: %w", ad.Assign.Field, err)
		}
		return model.Assign{Field: idx, Value: val}, nil
	case ad.Raise != nil:
		ev, ok := r.events[ad.Raise.Event]
		if !ok {
			return nil, fmt.Errorf("raise unknown event %q", ad.Raise.Event)
		}
		args, err := literals(ad.Raise.Args)
		if err != nil {
			return nil, fmt.Errorf("raise %s: %w", ad.Raise.Event, err)
		}
		return model.Raise{Event: ev, Args: args}, nil
	default:
		ev, ok := r.events[ad.Send.Event]
		if !ok {
			return nil, fmt.Errorf("send unknown event %q", ad.Send.Event)
		}
		if ad.Send.Machine == "" {
			return nil, fmt.Errorf("send %s: machine name is required", ad.Send.Event)
		}
		args, err := literals(ad.Send.Args)
		if err != nil {
			return nil, fmt.Errorf("send %s: %w", ad.Send.Event, err)
		}
		return model.Send{Machine: ad.Send.Machine, Event: ev, Args: args}, nil
	}
}

func parseOp(s string) (model.CompareOp, error) {
	switch s {
	case "eq", "==":
		return model.OpEq, nil
	case "ne", "!=":
		return model.OpNe, nil
	case "lt", "<":
		return model.OpLt, nil
	case "le", "<=":
		return model.OpLe, nil
	case "gt", ">":
		return model.OpGt, nil
	case "ge", ">=":
		return model.OpGe, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", s)
	}
}

// literal maps a decoded YAML scalar onto the model's value types. Floats
// are rejected outright rather than truncated.
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
	case nil:
		return nil, fmt.Errorf("missing literal value")
	default:
		return nil, fmt.Errorf("unsupported literal %v (%T); int, bool, and string only", v, v)
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
