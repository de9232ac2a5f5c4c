// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/medaudit/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Operators (cost in parentheses, see cost.go):
 *   - is_empty/is_not_empty: emptiness checks (1)
 *   - equals/not_equals: equality with numeric and boolean coercion (5)
 *   - greater_than/greater_or_equal/less_than/less_or_equal: numeric only (7)
 *   - in: membership test with equality semantics (8)
 *   - contains/not_contains: substring, array membership or object key (10)
 *   - starts_with/ends_with: case-insensitive text affixes (10)
 *
 * Absent satisfies is_empty and nothing else, including the negated
 * operators. Strings compare case-insensitively after trimming.
 *
 * A field that cannot be coerced for a numeric comparison is an evaluation
 * error, not a non-match.
 */

// Compare applies op to the resolved value and the rule's comparison value.
func Compare(op types.Operator, value Value, target any) (bool, error) {
	switch op {
	case types.OpIsEmpty:
		return value.IsEmpty(), nil
	case types.OpIsNotEmpty:
		return !value.IsEmpty(), nil
	}

	if value.IsAbsent() {
		return false, nil
	}

	switch op {
	case types.OpEquals:
		return equalValues(value, target), nil
	case types.OpNotEquals:
		return !equalValues(value, target), nil
	case types.OpContains:
		return containsValue(value, target), nil
	case types.OpNotContains:
		return !containsValue(value, target), nil
	case types.OpGreaterThan:
		return compareOrdered(value, target, func(c int) bool { return c > 0 })
	case types.OpGreaterOrEqual:
		return compareOrdered(value, target, func(c int) bool { return c >= 0 })
	case types.OpLessThan:
		return compareOrdered(value, target, func(c int) bool { return c < 0 })
	case types.OpLessOrEqual:
		return compareOrdered(value, target, func(c int) bool { return c <= 0 })
	case types.OpIn:
		return compareIn(value, target), nil
	case types.OpStartsWith:
		return compareAffix(value, target, strings.HasPrefix), nil
	case types.OpEndsWith:
		return compareAffix(value, target, strings.HasSuffix), nil
	default:
		return false, types.ErrInvalidOperator
	}
}

// equalValues compares a resolved value against a raw comparison value.
func equalValues(value Value, target any) bool {
	switch value.Kind() {
	case KindNull:
		return target == nil
	case KindBool:
		tb, err := coerceBoolean(target)
		return err == nil && tb.Value == value.Raw()
	case KindNumber:
		tn, ok := asNumber(target)
		return ok && tn == value.Raw().(float64)
	case KindString:
		s := value.Raw().(string)
		switch t := target.(type) {
		case string:
			return normalizeText(s) == normalizeText(t)
		case bool:
			vb, err := coerceBoolean(s)
			return err == nil && vb.Value == t
		default:
			vn, ok1 := asNumber(s)
			tn, ok2 := asNumber(target)
			return ok1 && ok2 && vn == tn
		}
	case KindArray:
		arr, _ := value.Array()
		tarr, ok := target.([]any)
		if !ok || len(arr) != len(tarr) {
			return false
		}
		for i := range arr {
			if !equalValues(ValueOf(arr[i]), tarr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// containsValue tests substring (scalars), element membership (arrays) or
// key presence (objects).
func containsValue(value Value, target any) bool {
	switch value.Kind() {
	case KindArray:
		arr, _ := value.Array()
		for _, elem := range arr {
			if equalValues(ValueOf(elem), target) {
				return true
			}
		}
		return false
	case KindObject:
		obj, _ := value.Object()
		key, err := coerceText(target)
		if err != nil {
			return false
		}
		_, ok := obj[key.Value.(string)]
		return ok
	default:
		s, ok := value.Text()
		if !ok {
			return false
		}
		t, err := coerceText(target)
		if err != nil {
			return false
		}
		return strings.Contains(normalizeText(s), normalizeText(t.Value.(string)))
	}
}

// compareOrdered performs a three-way numeric comparison and applies pred.
// Null fields do not match; non-numeric fields are an error.
func compareOrdered(value Value, target any, pred func(int) bool) (bool, error) {
	if value.Kind() == KindNull {
		return false, nil
	}
	vn, err := coerceNumeric(value.Raw())
	if err != nil {
		return false, err
	}
	tn, ok := asNumber(target)
	if !ok {
		return false, types.ErrInvalidOperator
	}
	a, b := vn.Value.(float64), tn
	switch {
	case a < b:
		return pred(-1), nil
	case a > b:
		return pred(1), nil
	default:
		return pred(0), nil
	}
}

// compareIn checks if value exists in set using equality semantics.
func compareIn(value Value, set any) bool {
	arr, ok := set.([]any)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if equalValues(value, elem) {
			return true
		}
	}
	return false
}

// compareAffix applies a prefix/suffix test to the text forms of both sides.
func compareAffix(value Value, target any, test func(s, affix string) bool) bool {
	s, ok := value.Text()
	if !ok {
		return false
	}
	t, ok := target.(string)
	if !ok {
		return false
	}
	return test(normalizeText(s), normalizeText(t))
}

// normalizeText lower-cases and trims for comparison.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
