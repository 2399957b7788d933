package model

import (
	"fmt"
	"strings"
)

// GuardExpr represents one node of a guard expression tree.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the determinism analyzer and the dispatch
// evaluator.
//
// The grammar deliberately has no arithmetic and no side effects:
//   - ExternGuard: opaque pure predicate resolved from the capability table
//   - Not: negation
//   - Compare: field against literal over the field's declared domain
//   - All / Any: conjunction / disjunction
//
// Grouping from the surface syntax is structural here and needs no node.
// This restriction is what makes static disjointness provable.
type GuardExpr interface {
	guardExpr() // Marker method - seals interface to this package
}

// FieldScope says where a guard comparison reads its field from.
type FieldScope int

const (
	// ScopeContext reads a machine context field.
	ScopeContext FieldScope = iota + 1
	// ScopePayload reads a field of the triggering event's payload.
	ScopePayload
)

// FieldRef addresses one field in the context schema or in the triggering
// event's payload, by index.
type FieldRef struct {
	Scope FieldScope
	Index int
}

// CompareOp is a comparison operator. Ordering operators are only valid on
// bounded integer fields; enum and bool fields allow Eq and Ne.
type CompareOp int

const (
	OpEq CompareOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Negate returns the complementary operator.
func (op CompareOp) Negate() CompareOp {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	default:
		return op
	}
}

// String returns the operator's surface form.
func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// ExternGuard references a pure predicate from the resolved capability
// table. The analyzer treats it as an opaque atom: two extern atoms relate
// only when they reference the same slot (identical, or exact negation via
// an enclosing Not).
type ExternGuard struct {
	Ref GuardRef
}

func (ExternGuard) guardExpr() {}

// Not negates its operand.
type Not struct {
	Operand GuardExpr
}

func (Not) guardExpr() {}

// Compare tests a field against a literal.
type Compare struct {
	Field FieldRef
	Op    CompareOp
	Value Value
}

func (Compare) guardExpr() {}

// All is a conjunction; an empty operand list is vacuously true.
type All struct {
	Operands []GuardExpr
}

func (All) guardExpr() {}

// Any is a disjunction; an empty operand list is false.
type Any struct {
	Operands []GuardExpr
}

func (Any) guardExpr() {}

// FormatGuard renders a guard expression for faults and traces. Field names
// are resolved against the machine and the transition's triggering event.
func FormatGuard(m *Machine, ev EventID, g GuardExpr) string {
	if g == nil {
		return "true"
	}
	switch n := g.(type) {
	case ExternGuard:
		if int(n.Ref) < len(m.ExternGuards) {
			return m.ExternGuards[n.Ref] + "()"
		}
		return fmt.Sprintf("extern(%d)", n.Ref)
	case Not:
		return "!(" + FormatGuard(m, ev, n.Operand) + ")"
	case Compare:
		return fieldName(m, ev, n.Field) + " " + n.Op.String() + " " + FormatValue(n.Value)
	case All:
		return joinGuards(m, ev, n.Operands, " && ", "true")
	case Any:
		return joinGuards(m, ev, n.Operands, " || ", "false")
	default:
		return fmt.Sprintf("%T", g)
	}
}

func joinGuards(m *Machine, ev EventID, ops []GuardExpr, sep, empty string) string {
	if len(ops) == 0 {
		return empty
	}
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = "(" + FormatGuard(m, ev, op) + ")"
	}
	return strings.Join(parts, sep)
}

func fieldName(m *Machine, ev EventID, ref FieldRef) string {
	switch ref.Scope {
	case ScopeContext:
		if ref.Index < len(m.Context) {
			return m.Context[ref.Index].Name
		}
	case ScopePayload:
		if ev != EventNone && ref.Index < len(m.Events[ev].Payload) {
			return "payload." + m.Events[ev].Payload[ref.Index].Name
		}
	}
	return fmt.Sprintf("field(%d/%d)", ref.Scope, ref.Index)
}

// GuardField looks up the declared Field a reference points at, given the
// triggering event (EventNone when the transition has no event trigger).
func GuardField(m *Machine, ev EventID, ref FieldRef) (Field, bool) {
	switch ref.Scope {
	case ScopeContext:
		if ref.Index >= 0 && ref.Index < len(m.Context) {
			return m.Context[ref.Index], true
		}
	case ScopePayload:
		if ev == EventNone {
			return Field{}, false
		}
		payload := m.Events[ev].Payload
		if ref.Index >= 0 && ref.Index < len(payload) {
			return payload[ref.Index], true
		}
	}
	return Field{}, false
}
