// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/medaudit/internal/types"
)

/*
 * Rule compilation.
 *
 * Compiles types.Rule to CompiledRule with parsed field paths, validated
 * operator/value pairs and cost-ordered conditions.
 *
 * Compilation workflow:
 *   1. Parse every field path (depth limit, bracket syntax)
 *   2. Check each operator is known and its comparison value usable
 *   3. Calculate condition costs and stable-sort ascending
 *
 * The management path compiles on create/update so malformed conditions
 * are rejected before they are stored; the scoring engine compiles again
 * per call and treats a failure as an evaluation error for that rule.
 */

// CompiledCondition is a pre-processed condition ready for evaluation.
type CompiledCondition struct {
	Path     []types.PathSegment
	Operator types.Operator
	Value    any
	Cost     int
}

// CompiledRule is a rule with pre-processed conditions.
type CompiledRule struct {
	Rule       *types.Rule
	Logic      types.LogicOperator
	Conditions []CompiledCondition // ordered by ascending cost
}

// Compile validates and pre-processes a rule's conditions.
func Compile(rule *types.Rule) (*CompiledRule, error) {
	logic := rule.LogicOperator
	if logic == "" {
		logic = types.LogicAnd
	}
	if !logic.Valid() {
		return nil, fmt.Errorf("%w: logic operator %q", types.ErrInvalidOperator, rule.LogicOperator)
	}

	compiled := &CompiledRule{
		Rule:       rule,
		Logic:      logic,
		Conditions: make([]CompiledCondition, 0, len(rule.Conditions)),
	}

	for i, cond := range rule.Conditions {
		cc, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("condition %d (%s): %w", i, cond.FieldPath, err)
		}
		compiled.Conditions = append(compiled.Conditions, cc)
	}

	// Stable sort: equal-cost conditions keep their authored order
	sort.SliceStable(compiled.Conditions, func(i, j int) bool {
		return compiled.Conditions[i].Cost < compiled.Conditions[j].Cost
	})

	return compiled, nil
}

// compileCondition parses the path and validates the operator/value pair.
func compileCondition(cond types.Condition) (CompiledCondition, error) {
	path, err := ParsePath(cond.FieldPath)
	if err != nil {
		return CompiledCondition{}, err
	}

	if err := validateOperand(cond.Operator, cond.ComparisonValue); err != nil {
		return CompiledCondition{}, err
	}

	return CompiledCondition{
		Path:     path,
		Operator: cond.Operator,
		Value:    cond.ComparisonValue,
		Cost:     CalculateConditionCost(path, cond.Operator),
	}, nil
}

// validateOperand checks the comparison value has a shape the operator can
// use.
func validateOperand(op types.Operator, value any) error {
	switch op {
	case types.OpIsEmpty, types.OpIsNotEmpty, types.OpEquals, types.OpNotEquals:
		return nil
	case types.OpGreaterThan, types.OpGreaterOrEqual, types.OpLessThan, types.OpLessOrEqual:
		if _, ok := asNumber(value); !ok {
			return fmt.Errorf("%w: %s needs a numeric comparison value", types.ErrInvalidOperator, op)
		}
		return nil
	case types.OpIn:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%w: in needs a list comparison value", types.ErrInvalidOperator)
		}
		if len(arr) > types.MaxInOperatorValues {
			return types.ErrTooManyInValues
		}
		return nil
	case types.OpContains, types.OpNotContains:
		if value == nil {
			return fmt.Errorf("%w: %s needs a comparison value", types.ErrInvalidOperator, op)
		}
		return nil
	case types.OpStartsWith, types.OpEndsWith:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s needs a string comparison value", types.ErrInvalidOperator, op)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", types.ErrInvalidOperator, op)
	}
}
