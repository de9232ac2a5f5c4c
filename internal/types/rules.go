// internal/types/rules.go
package types

import (
	"strings"
	"time"
)

/*
 * Domain types for rule definition.
 *
 * Provides Rule, Condition, RulePatch and PathSegment structures used by
 * internal/rules for compilation and evaluation and by the store for
 * persistence. JSON tags are the admin API and snapshot wire format.
 *
 * Key types:
 *   - Rule: complete rule definition with a flat AND/OR condition list
 *   - Condition: single comparison with a dotted field path and operator
 *   - RulePatch: partial update; nil fields are left untouched
 *   - PathSegment: one component of a parsed field path (key or index)
 */

// Severity is the rule severity level.
type Severity string

const (
	SeverityCritical  Severity = "CRITICAL"
	SeverityImportant Severity = "IMPORTANT"
	SeverityModerate  Severity = "MODERATE"
	SeverityMinor     Severity = "MINOR"
)

// Valid reports whether s is one of the four known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityImportant, SeverityModerate, SeverityMinor:
		return true
	}
	return false
}

// LogicOperator combines a rule's conditions.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// Valid reports whether l is AND or OR.
func (l LogicOperator) Valid() bool {
	return l == LogicAnd || l == LogicOr
}

// Operator names a condition comparison.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpIsEmpty        Operator = "is_empty"
	OpIsNotEmpty     Operator = "is_not_empty"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
)

// PathSegment represents one component of a field path.
type PathSegment struct {
	Key     string // object key (mutually exclusive with Index)
	Index   int    // array index
	IsIndex bool   // disambiguates Index=0 from unset
}

// Condition is a single comparison against a document field. A true
// outcome means the condition's failure criterion holds.
type Condition struct {
	FieldPath       string   `json:"fieldPath" yaml:"fieldPath"`
	Operator        Operator `json:"operator" yaml:"operator"`
	ComparisonValue any      `json:"comparisonValue,omitempty" yaml:"comparisonValue,omitempty"`
}

// Rule is a scoring rule. When ValidatorKey names a registered predicate it
// decides failure; otherwise Conditions combined with LogicOperator do.
type Rule struct {
	ID             RuleID        `json:"id" yaml:"id"`
	Name           string        `json:"name" yaml:"name"`
	SeverityLevel  Severity      `json:"severityLevel" yaml:"severityLevel"`
	Points         int           `json:"points" yaml:"points"`
	Description    string        `json:"description" yaml:"description"`
	ProviderTarget string        `json:"providerTarget" yaml:"providerTarget"`
	IsCustom       bool          `json:"isCustom" yaml:"isCustom"`
	Conditions     []Condition   `json:"conditions" yaml:"conditions"`
	LogicOperator  LogicOperator `json:"logicOperator" yaml:"logicOperator"`
	AffectedFields []string      `json:"affectedFields" yaml:"affectedFields"`
	ValidatorKey   string        `json:"validatorKey,omitempty" yaml:"validatorKey,omitempty"`
	Active         bool          `json:"active" yaml:"active"`
	CreatedAt      time.Time     `json:"createdAt" yaml:"-"`
	UpdatedAt      time.Time     `json:"updatedAt" yaml:"-"`
}

// AppliesTo reports whether the rule is in scope for provider. A target of
// ALL matches everything; otherwise provider must be a listed member.
func (r *Rule) AppliesTo(provider string) bool {
	return TargetIncludes(r.ProviderTarget, provider)
}

// TargetIncludes evaluates a provider target string against a provider.
func TargetIncludes(target, provider string) bool {
	target = strings.TrimSpace(target)
	if target == "" || strings.EqualFold(target, ProviderAll) {
		return true
	}
	provider = NormalizeProvider(provider)
	for _, p := range strings.Split(target, ",") {
		p = NormalizeProvider(p)
		if p == ProviderAll || (p != "" && p == provider) {
			return true
		}
	}
	return false
}

// NormalizeTarget canonicalizes a provider target: ALL, or an upper-cased
// comma-separated list without blanks or duplicates, in first-seen order.
func NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || strings.EqualFold(target, ProviderAll) {
		return ProviderAll
	}
	seen := make(map[string]bool)
	out := make([]string, 0, 4)
	for _, p := range strings.Split(target, ",") {
		p = NormalizeProvider(p)
		if p == "" || seen[p] {
			continue
		}
		if p == ProviderAll {
			return ProviderAll
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return ProviderAll
	}
	return strings.Join(out, ",")
}

// RulePatch is a partial rule update. Nil fields keep their stored value.
type RulePatch struct {
	Name           *string        `json:"name,omitempty"`
	SeverityLevel  *Severity      `json:"severityLevel,omitempty"`
	Points         *int           `json:"points,omitempty"`
	Description    *string        `json:"description,omitempty"`
	ProviderTarget *string        `json:"providerTarget,omitempty"`
	IsCustom       *bool          `json:"isCustom,omitempty"`
	Conditions     *[]Condition   `json:"conditions,omitempty"`
	LogicOperator  *LogicOperator `json:"logicOperator,omitempty"`
	AffectedFields *[]string      `json:"affectedFields,omitempty"`
	ValidatorKey   *string        `json:"validatorKey,omitempty"`
	Active         *bool          `json:"active,omitempty"`
}

// Apply returns a copy of r with the patch applied.
func (p RulePatch) Apply(r Rule) Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.SeverityLevel != nil {
		r.SeverityLevel = *p.SeverityLevel
	}
	if p.Points != nil {
		r.Points = *p.Points
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.ProviderTarget != nil {
		r.ProviderTarget = *p.ProviderTarget
	}
	if p.IsCustom != nil {
		r.IsCustom = *p.IsCustom
	}
	if p.Conditions != nil {
		r.Conditions = append([]Condition(nil), (*p.Conditions)...)
	}
	if p.LogicOperator != nil {
		r.LogicOperator = *p.LogicOperator
	}
	if p.AffectedFields != nil {
		r.AffectedFields = append([]string(nil), (*p.AffectedFields)...)
	}
	if p.ValidatorKey != nil {
		r.ValidatorKey = *p.ValidatorKey
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
	return r
}

// IsEmpty reports whether the patch changes nothing.
func (p RulePatch) IsEmpty() bool {
	return p == RulePatch{}
}
