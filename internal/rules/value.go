// internal/rules/value.go
package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

/*
 * Tagged document value.
 *
 * Documents arrive as decoded JSON (map[string]any / []any / scalars) or as
 * structpb maps. Value classifies a node once so operators switch on Kind
 * instead of re-inspecting dynamic types, and carries an explicit Absent
 * state distinct from JSON null.
 *
 * Key functions:
 *   - ValueOf: classifies a raw node
 *   - IsEmpty: emptiness test shared by is_empty and validators
 */

// Kind is the classification of a document node.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a classified document node. The zero Value is Absent.
type Value struct {
	kind Kind
	raw  any
}

// Absent is returned when a path does not resolve.
var Absent = Value{}

// ValueOf classifies a raw decoded node. Numeric types collapse to float64;
// unrecognized types are carried as their string form.
func ValueOf(v any) Value {
	switch n := v.(type) {
	case nil:
		return Value{kind: KindNull}
	case bool:
		return Value{kind: KindBool, raw: n}
	case float64:
		return Value{kind: KindNumber, raw: n}
	case float32:
		return Value{kind: KindNumber, raw: float64(n)}
	case int:
		return Value{kind: KindNumber, raw: float64(n)}
	case int32:
		return Value{kind: KindNumber, raw: float64(n)}
	case int64:
		return Value{kind: KindNumber, raw: float64(n)}
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return Value{kind: KindString, raw: n.String()}
		}
		return Value{kind: KindNumber, raw: f}
	case string:
		return Value{kind: KindString, raw: n}
	case []any:
		return Value{kind: KindArray, raw: n}
	case []string:
		arr := make([]any, len(n))
		for i, s := range n {
			arr[i] = s
		}
		return Value{kind: KindArray, raw: arr}
	case map[string]any:
		return Value{kind: KindObject, raw: n}
	default:
		return Value{kind: KindString, raw: fmt.Sprint(n)}
	}
}

// Kind returns the node classification.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the underlying decoded value (nil for Absent and Null).
func (v Value) Raw() any { return v.raw }

// IsAbsent reports whether the path did not resolve.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Array returns the elements of an array node.
func (v Value) Array() ([]any, bool) {
	arr, ok := v.raw.([]any)
	return arr, ok && v.kind == KindArray
}

// Object returns the members of an object node.
func (v Value) Object() (map[string]any, bool) {
	obj, ok := v.raw.(map[string]any)
	return obj, ok && v.kind == KindObject
}

// Text returns the string form of a scalar node.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString, KindNumber, KindBool:
		r, err := coerceText(v.raw)
		if err != nil {
			return "", false
		}
		return r.Value.(string), true
	default:
		return "", false
	}
}

// IsEmpty reports whether the node carries no information: absent, null,
// blank string, or an empty array/object. Numbers and booleans are never
// empty.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindAbsent, KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.raw.(string)) == ""
	case KindArray:
		return len(v.raw.([]any)) == 0
	case KindObject:
		return len(v.raw.(map[string]any)) == 0
	default:
		return false
	}
}
