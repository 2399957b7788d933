package dispatch

import (
	"fmt"

	"github.com/roach88/strata/internal/model"
)

// Context is the runtime instance of a machine's context field set: one
// value per declared field, mutated only by extern action procedures and
// inline assignments during dispatch.
type Context struct {
	schema []model.Field
	fields []model.Value
}

// newContext builds a context with every field at its domain's first value
// (Min for ints, false for bools, the first variant for enums).
func newContext(schema []model.Field) *Context {
	fields := make([]model.Value, len(schema))
	for i, f := range schema {
		switch f.Type.Kind {
		case model.KindInt:
			fields[i] = model.Int(f.Type.Min)
		case model.KindBool:
			fields[i] = model.Bool(false)
		case model.KindEnum:
			if len(f.Type.Variants) > 0 {
				fields[i] = model.String(f.Type.Variants[0])
			}
		}
	}
	return &Context{schema: schema, fields: fields}
}

// Get reads a field by index.
func (c *Context) Get(i int) model.Value {
	return c.fields[i]
}

// GetNamed reads a field by name, for extern procedures and tooling.
func (c *Context) GetNamed(name string) (model.Value, bool) {
	for i, f := range c.schema {
		if f.Name == name {
			return c.fields[i], true
		}
	}
	return nil, false
}

// Set writes a field by index, rejecting values outside the declared
// domain.
func (c *Context) Set(i int, v model.Value) error {
	if i < 0 || i >= len(c.schema) {
		return fmt.Errorf("context field index %d out of range", i)
	}
	if !c.schema[i].Admits(v) {
		return fmt.Errorf("value %s outside domain of context field %s", model.FormatValue(v), c.schema[i].Name)
	}
	c.fields[i] = v
	return nil
}

// SetNamed writes a field by name.
func (c *Context) SetNamed(name string, v model.Value) error {
	for i, f := range c.schema {
		if f.Name == name {
			return c.Set(i, v)
		}
	}
	return fmt.Errorf("unknown context field %s", name)
}

// Payload is the read-only payload view handed to guards and actions,
// aligned with the triggering event's declared payload fields.
type Payload []model.Value

// GuardFunc is a resolved extern guard capability: a pure predicate over
// context and payload. Guards must not mutate the context - the
// determinism proof depends on it.
type GuardFunc func(ctx *Context, payload Payload) bool

// ActionFunc is a resolved extern action capability.
type ActionFunc func(ctx *Context, payload Payload)

// Capabilities is the resolved extern table, aligned by index with the
// machine's declared capability slots. Bound once at engine construction,
// never looked up by name at dispatch time.
type Capabilities struct {
	Guards  []GuardFunc
	Actions []ActionFunc
}

// verify checks the table covers every declared slot.
func (c *Capabilities) verify(m *model.Machine) error {
	if len(c.Guards) != len(m.ExternGuards) {
		return fmt.Errorf("capability table has %d guards, machine %s declares %d",
			len(c.Guards), m.Name, len(m.ExternGuards))
	}
	if len(c.Actions) != len(m.ExternActions) {
		return fmt.Errorf("capability table has %d actions, machine %s declares %d",
			len(c.Actions), m.Name, len(m.ExternActions))
	}
	for i, g := range c.Guards {
		if g == nil {
			return fmt.Errorf("guard capability %s is nil", m.ExternGuards[i])
		}
	}
	for i, a := range c.Actions {
		if a == nil {
			return fmt.Errorf("action capability %s is nil", m.ExternActions[i])
		}
	}
	return nil
}

// evalGuard evaluates a guard expression against the current context and
// the triggering event's payload. The expression tree is tiny and
// allocation-free to walk.
func (e *Engine) evalGuard(g model.GuardExpr, payload Payload) bool {
	switch n := g.(type) {
	case nil:
		return true
	case model.ExternGuard:
		return e.caps.Guards[n.Ref](e.ctx, payload)
	case model.Not:
		return !e.evalGuard(n.Operand, payload)
	case model.All:
		for _, op := range n.Operands {
			if !e.evalGuard(op, payload) {
				return false
			}
		}
		return true
	case model.Any:
		for _, op := range n.Operands {
			if e.evalGuard(op, payload) {
				return true
			}
		}
		return false
	case model.Compare:
		return evalCompare(e.readField(n.Field, payload), n.Op, n.Value)
	default:
		return false
	}
}

func (e *Engine) readField(ref model.FieldRef, payload Payload) model.Value {
	switch ref.Scope {
	case model.ScopeContext:
		return e.ctx.Get(ref.Index)
	case model.ScopePayload:
		if ref.Index < len(payload) {
			return payload[ref.Index]
		}
	}
	return nil
}

func evalCompare(field model.Value, op model.CompareOp, lit model.Value) bool {
	switch op {
	case model.OpEq:
		return model.ValuesEqual(field, lit)
	case model.OpNe:
		return !model.ValuesEqual(field, lit)
	}
	a, okA := field.(model.Int)
	b, okB := lit.(model.Int)
	if !okA || !okB {
		return false
	}
	switch op {
	case model.OpLt:
		return a < b
	case model.OpLe:
		return a <= b
	case model.OpGt:
		return a > b
	case model.OpGe:
		return a >= b
	default:
		return false
	}
}
