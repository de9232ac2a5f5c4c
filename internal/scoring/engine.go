// internal/scoring/engine.go
package scoring

import (
	"errors"
	"fmt"

	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/metrics"
	"github.com/solatis/medaudit/internal/rules"
	"github.com/solatis/medaudit/internal/types"
	"github.com/solatis/medaudit/internal/validators"
)

/*
 * Scoring engine.
 *
 * Applies a rule set to one document and produces a ScoringResult.
 *
 * Scoring flow:
 *   1. Empty rule set -> ErrNoRules
 *   2. Skip rules whose provider target excludes the document's provider
 *   3. Per rule: registered validator decides, else the condition evaluator
 *   4. Evaluation errors and panics -> rule not failed, recorded, logged
 *   5. One Deduction per in-scope rule; one Flag per failed rule
 *   6. finalScore = clamp(100 - totalDeducted, 0, 100)
 *
 * The engine holds no mutable state; one instance serves concurrent calls.
 * An unfinished validator must not be able to cost a document points, so
 * every failure mode of a single rule resolves to "passed".
 */

// ErrEvaluationPanic wraps a recovered panic from a rule evaluation.
var ErrEvaluationPanic = errors.New("rule evaluation panicked")

// Engine scores documents against rule sets.
type Engine struct {
	validators *validators.Registry
	log        logger.Logger
}

// NewEngine creates an engine. A nil registry disables validator lookup so
// every rule uses its conditions.
func NewEngine(reg *validators.Registry, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{validators: reg, log: log}
}

// Score evaluates doc against ruleSet. PreviousScore is the base score, so
// Delta is the negated deduction.
func (e *Engine) Score(doc types.Document, ruleSet []types.Rule) (*types.ScoringResult, error) {
	return e.run(doc, types.BaseScore, ruleSet)
}

// ReEvaluate scores doc again after an edit. PreviousScore is the caller's
// earlier final score and Delta is measured against it.
func (e *Engine) ReEvaluate(doc types.Document, previousFinalScore int, ruleSet []types.Rule) (*types.ScoringResult, error) {
	return e.run(doc, previousFinalScore, ruleSet)
}

func (e *Engine) run(doc types.Document, previous int, ruleSet []types.Rule) (*types.ScoringResult, error) {
	if len(ruleSet) == 0 {
		metrics.ScoringRunsTotal.WithLabelValues("no_rules").Inc()
		return nil, types.ErrNoRules
	}

	provider := doc.ProviderKey()
	result := &types.ScoringResult{
		Provider:      provider,
		PreviousScore: previous,
		BaseScore:     types.BaseScore,
		Deductions:    make([]types.Deduction, 0, len(ruleSet)),
		Flags:         make([]types.Flag, 0),
	}

	for i := range ruleSet {
		rule := &ruleSet[i]
		if !rule.AppliesTo(provider) {
			continue
		}

		failed, err := e.evaluateRule(rule, doc)
		if err != nil {
			e.handleEvaluationError(rule, provider, err)
			result.EvaluationErrors = append(result.EvaluationErrors, types.EvaluationError{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Error:    err.Error(),
			})
			failed = false
		}

		result.Deductions = append(result.Deductions, types.Deduction{Rule: *rule, Failed: failed})
		if failed {
			result.TotalDeducted += max(rule.Points, 0)
			result.Flags = append(result.Flags, flagFor(rule))
		}
	}

	result.FinalScore = min(max(types.BaseScore-result.TotalDeducted, 0), types.BaseScore)
	result.Delta = result.FinalScore - previous

	outcome := "ok"
	if len(result.EvaluationErrors) > 0 {
		outcome = "partial"
	}
	metrics.ScoringRunsTotal.WithLabelValues(outcome).Inc()

	return result, nil
}

// evaluateRule decides whether one rule failed. Panics are converted to
// ErrEvaluationPanic.
func (e *Engine) evaluateRule(rule *types.Rule, doc types.Document) (failed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			failed = false
			err = fmt.Errorf("%w: %v", ErrEvaluationPanic, r)
		}
	}()

	if rule.ValidatorKey != "" {
		if pred, ok := e.validators.Lookup(rule.ValidatorKey); ok {
			return pred.Check(doc)
		}
		e.log.Warnw("Unknown validator key, evaluating conditions instead",
			"rule_id", rule.ID,
			"validator_key", rule.ValidatorKey,
		)
	}

	compiled, err := rules.Compile(rule)
	if err != nil {
		return false, err
	}
	return rules.Evaluate(compiled, doc)
}

func (e *Engine) handleEvaluationError(rule *types.Rule, provider string, err error) {
	e.log.Warnw("Rule evaluation failed, treating as passed",
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"provider", provider,
		"error", err,
	)
	metrics.RuleEvaluationErrorsTotal.WithLabelValues(string(rule.ID)).Inc()
}

// flagFor builds the flag reported for a failed rule.
func flagFor(rule *types.Rule) types.Flag {
	msg := rule.Description
	if msg == "" {
		msg = rule.Name
	}
	return types.Flag{
		Severity:  types.FlagSeverityFor(rule.SeverityLevel),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Message:   msg,
		FieldPath: primaryField(rule),
	}
}

// primaryField is the first affected field, else the first condition path.
func primaryField(rule *types.Rule) string {
	if len(rule.AffectedFields) > 0 {
		return rule.AffectedFields[0]
	}
	if len(rule.Conditions) > 0 {
		return rule.Conditions[0].FieldPath
	}
	return ""
}
