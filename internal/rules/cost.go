// internal/rules/cost.go
package rules

import "github.com/solatis/medaudit/internal/types"

/*
 * Cost model for condition evaluation.
 *
 * Cost formula: lookup_cost * segments + operator_cost
 *
 * Conditions within a rule are pure, so evaluating the cheapest first only
 * changes how soon AND/OR short-circuits, never the outcome.
 */

// Canonical cost constants.
const (
	// Operator base costs
	CostEmpty    = 1
	CostEq       = 5
	CostOrdered  = 7
	CostIn       = 8
	CostContains = 10
	CostAffix    = 10

	// Field lookup cost per path segment
	CostLookupPerSegment = 16
)

// CalculateConditionCost computes the cost of a single condition.
func CalculateConditionCost(path []types.PathSegment, op types.Operator) int {
	return len(path)*CostLookupPerSegment + operatorCost(op)
}

// operatorCost returns base cost for operator execution.
func operatorCost(op types.Operator) int {
	switch op {
	case types.OpIsEmpty, types.OpIsNotEmpty:
		return CostEmpty
	case types.OpEquals, types.OpNotEquals:
		return CostEq
	case types.OpGreaterThan, types.OpGreaterOrEqual, types.OpLessThan, types.OpLessOrEqual:
		return CostOrdered
	case types.OpIn:
		return CostIn
	case types.OpContains, types.OpNotContains:
		return CostContains
	case types.OpStartsWith, types.OpEndsWith:
		return CostAffix
	default:
		return CostEq
	}
}
