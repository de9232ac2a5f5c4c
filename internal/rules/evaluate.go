// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/medaudit/internal/types"
)

/*
 * Condition evaluation.
 *
 * Evaluates a CompiledRule's flat condition list against a document. A
 * condition evaluating true means its failure criterion holds; the rule
 * failed when all (AND) or any (OR) conditions hold.
 *
 * Evaluation flow:
 *   1. Zero conditions: never failing
 *   2. Per condition: resolve path -> compare operator
 *   3. Combine with AND (short-circuit on first false) or OR (first true)
 *
 * An error from any evaluated condition aborts the rule; callers record it
 * and report the rule as not failed.
 */

// Evaluate reports whether the rule's conditions mark the document as
// failing.
func Evaluate(rule *CompiledRule, doc types.Document) (bool, error) {
	if len(rule.Conditions) == 0 {
		return false, nil
	}

	switch rule.Logic {
	case types.LogicOr:
		for _, cond := range rule.Conditions {
			ok, err := evaluateCondition(cond, doc.Data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		for _, cond := range rule.Conditions {
			ok, err := evaluateCondition(cond, doc.Data)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// evaluateCondition resolves the path and applies the operator.
func evaluateCondition(cond CompiledCondition, data map[string]any) (bool, error) {
	return Compare(cond.Operator, Resolve(data, cond.Path), cond.Value)
}
