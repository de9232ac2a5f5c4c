// internal/rules/coercion.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/medaudit/internal/types"
)

/*
 * Type coercion for condition evaluation.
 *
 * Extracted documents are produced by OCR and form parsers, so the same
 * field may arrive as 3, 3.0 or " 3 ", and a checkbox as true or "Sí".
 * Operators coerce both sides before comparing.
 *
 * Modes:
 *   - numeric: strict about garbage, lenient about representation; numeric
 *     strings parse, booleans and blank strings fail
 *   - text: every scalar has a string form
 *   - boolean: booleans plus a small closed set of yes/no spellings
 *
 * Null values never reach coercion; Compare handles them first.
 */

// CoercionResult holds the coerced value.
type CoercionResult struct {
	Value any
}

// coerceNumeric converts value to float64.
// Whitespace-only strings return ErrCoercionFailed.
func coerceNumeric(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case float64:
		return CoercionResult{Value: v}, nil
	case int:
		return CoercionResult{Value: float64(v)}, nil
	case int64:
		return CoercionResult{Value: float64(v)}, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		return CoercionResult{Value: f}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceText converts scalars to their string form.
func coerceText(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case string:
		return CoercionResult{Value: v}, nil
	case float64:
		return CoercionResult{Value: strconv.FormatFloat(v, 'f', -1, 64)}, nil
	case int:
		return CoercionResult{Value: strconv.Itoa(v)}, nil
	case int64:
		return CoercionResult{Value: strconv.FormatInt(v, 10)}, nil
	case bool:
		return CoercionResult{Value: strconv.FormatBool(v)}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceBoolean accepts booleans and the yes/no spellings found on Mexican
// insurer forms.
func coerceBoolean(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case bool:
		return CoercionResult{Value: v}, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "si", "sí", "yes", "x":
			return CoercionResult{Value: true}, nil
		case "false", "no":
			return CoercionResult{Value: false}, nil
		}
	}
	return CoercionResult{}, types.ErrCoercionFailed
}

// asNumber is the boolean-returning form of coerceNumeric.
func asNumber(v any) (float64, bool) {
	r, err := coerceNumeric(v)
	if err != nil {
		return 0, false
	}
	return r.Value.(float64), true
}
