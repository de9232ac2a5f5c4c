package compliance

import (
	"context"

	"github.com/solatis/medaudit/internal/scoring"
	"github.com/solatis/medaudit/internal/types"
)

// RuleProvider returns the active rules in scope for a provider key.
type RuleProvider interface {
	GetRules(ctx context.Context, providerKey string) ([]types.Rule, error)
}

// VersionReader exposes the current rule-set version.
type VersionReader interface {
	Current(ctx context.Context) (*types.RuleVersion, error)
	CheckIfChanged(ctx context.Context, baselineID types.VersionID) (*types.VersionCheck, error)
}

// Scorer scores documents against the cached rule set and stamps each
// result with the rule-set version in effect.
type Scorer struct {
	rules    RuleProvider
	versions VersionReader
	engine   *scoring.Engine
}

// NewScorer creates a scorer.
func NewScorer(rules RuleProvider, versions VersionReader, engine *scoring.Engine) *Scorer {
	return &Scorer{rules: rules, versions: versions, engine: engine}
}

// Score computes a fresh score for doc.
func (s *Scorer) Score(ctx context.Context, doc types.Document) (*types.ScoringResult, error) {
	return s.run(ctx, doc, func(ruleSet []types.Rule) (*types.ScoringResult, error) {
		return s.engine.Score(doc, ruleSet)
	})
}

// Recalculate rescores doc after an edit and reports the delta against
// previousScore.
func (s *Scorer) Recalculate(ctx context.Context, doc types.Document, previousScore int) (*types.ScoringResult, error) {
	return s.run(ctx, doc, func(ruleSet []types.Rule) (*types.ScoringResult, error) {
		return s.engine.ReEvaluate(doc, previousScore, ruleSet)
	})
}

// Staleness reports whether the rule set moved on since the version a
// stored score was computed with.
func (s *Scorer) Staleness(ctx context.Context, versionID types.VersionID) (*types.VersionCheck, error) {
	return s.versions.CheckIfChanged(ctx, versionID)
}

// run reads the version before the rules: a mutation landing in between
// makes the stamp older than the rules used, so staleness checks err
// toward reporting a change.
func (s *Scorer) run(ctx context.Context, doc types.Document, score func([]types.Rule) (*types.ScoringResult, error)) (*types.ScoringResult, error) {
	version, err := s.versions.Current(ctx)
	if err != nil {
		return nil, err
	}

	ruleSet, err := s.rules.GetRules(ctx, doc.ProviderKey())
	if err != nil {
		return nil, err
	}

	result, err := score(ruleSet)
	if err != nil {
		return nil, err
	}
	result.RuleVersionID = version.ID
	result.RuleVersionNumber = version.VersionNumber
	return result, nil
}
