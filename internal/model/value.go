package model

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface over the constrained literal types allowed in
// payloads, context fields, and guard comparisons.
// Only String, Int, and Bool implement it. NO float type - floats break
// bit-for-bit agreement between the interpreter and generated target code.
type Value interface {
	value() // Sealed - only these types implement it
}

// String is a string literal value.
type String string

func (String) value() {}

// Int is an integer literal value. Always int64, never float64.
type Int int64

func (Int) value() {}

// Bool is a boolean literal value.
type Bool bool

func (Bool) value() {}

// FieldKind classifies the declared type of a context or payload field.
type FieldKind int

const (
	// KindInt is a bounded integer field with an inclusive [Min, Max] domain.
	KindInt FieldKind = iota + 1
	// KindBool is a boolean field (2-valued domain).
	KindBool
	// KindEnum is an enumeration field whose domain is its variant list.
	KindEnum
)

// String returns the kind name used in faults and model documents.
func (k FieldKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// FieldType is the declared type of a field, carrying the bounded domain the
// determinism analyzer enumerates over.
type FieldType struct {
	Kind FieldKind

	// Min and Max bound the domain of a KindInt field, inclusive.
	Min, Max int64

	// Variants is the ordered domain of a KindEnum field.
	Variants []string
}

// DomainSize returns the number of distinct values in the field's domain.
func (t FieldType) DomainSize() int64 {
	switch t.Kind {
	case KindInt:
		return t.Max - t.Min + 1
	case KindBool:
		return 2
	case KindEnum:
		return int64(len(t.Variants))
	default:
		return 0
	}
}

// Field is a named, typed slot in a context schema or event payload.
type Field struct {
	Name string
	Type FieldType
}

// Admits reports whether v is a member of the field's declared domain.
func (f Field) Admits(v Value) bool {
	switch val := v.(type) {
	case Int:
		return f.Type.Kind == KindInt && int64(val) >= f.Type.Min && int64(val) <= f.Type.Max
	case Bool:
		return f.Type.Kind == KindBool
	case String:
		if f.Type.Kind != KindEnum {
			return false
		}
		for _, variant := range f.Type.Variants {
			if variant == string(val) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// FormatValue renders a value for faults and trace output.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ValuesEqual compares two values for equality. Values of different kinds
// are never equal.
func ValuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	default:
		return false
	}
}
