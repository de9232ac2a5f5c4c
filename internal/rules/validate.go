// internal/rules/validate.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/medaudit/internal/types"
)

// Normalize fills defaults and canonicalizes a rule before it is stored:
// AND logic, canonical provider target, non-nil slices.
func Normalize(rule *types.Rule) {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.ValidatorKey = strings.TrimSpace(rule.ValidatorKey)
	rule.ProviderTarget = types.NormalizeTarget(rule.ProviderTarget)
	if rule.LogicOperator == "" {
		rule.LogicOperator = types.LogicAnd
	}
	rule.LogicOperator = types.LogicOperator(strings.ToUpper(string(rule.LogicOperator)))
	rule.SeverityLevel = types.Severity(strings.ToUpper(string(rule.SeverityLevel)))
	if rule.Conditions == nil {
		rule.Conditions = []types.Condition{}
	}
	if rule.AffectedFields == nil {
		rule.AffectedFields = []string{}
	}
}

// ValidateRule checks a normalized rule for storage. knownValidator reports
// whether a validator key is registered; the registry lives above this
// package.
func ValidateRule(rule *types.Rule, knownValidator func(string) bool) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", types.ErrInvalidRule)
	}
	if len(rule.Name) > types.MaxRuleNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", types.ErrInvalidRule, types.MaxRuleNameLength)
	}
	if !rule.SeverityLevel.Valid() {
		return fmt.Errorf("%w: unknown severity level %q", types.ErrInvalidRule, rule.SeverityLevel)
	}
	if rule.Points < 0 {
		return fmt.Errorf("%w: points must be >= 0", types.ErrInvalidRule)
	}
	if !rule.LogicOperator.Valid() {
		return fmt.Errorf("%w: unknown logic operator %q", types.ErrInvalidRule, rule.LogicOperator)
	}
	if rule.ValidatorKey != "" && knownValidator != nil && !knownValidator(rule.ValidatorKey) {
		return fmt.Errorf("%w: %q", types.ErrUnknownValidator, rule.ValidatorKey)
	}
	for _, f := range rule.AffectedFields {
		if _, err := ParsePath(f); err != nil {
			return fmt.Errorf("%w: affected field %q: %v", types.ErrInvalidRule, f, err)
		}
	}
	if _, err := Compile(rule); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidRule, err)
	}
	return nil
}
