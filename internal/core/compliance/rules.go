// Package compliance wires the rule store, rule cache, version tracker and
// scoring engine into the operations exposed by the transports.
package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/rules"
	"github.com/solatis/medaudit/internal/types"
	"github.com/solatis/medaudit/internal/validators"
)

/*
 * Rule management.
 *
 * Every successful write runs the same sequence:
 *   1. normalize + validate (ErrInvalidRule / ErrUnknownValidator)
 *   2. persist to the rule store
 *   3. cache.Invalidate(), synchronously, so the next read sees the write
 *   4. tracker.Sync() to mint a version if the active set's hash moved
 *
 * A failure in step 4 is returned as ErrVersionNotRecorded. The rule write
 * from step 2 stays durable and the next startup's Initialize mints the
 * missing version.
 */

// RuleRepository is the persistent rule store.
type RuleRepository interface {
	ListAll(ctx context.Context) ([]types.Rule, error)
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
	Create(ctx context.Context, r types.Rule) (*types.Rule, error)
	Update(ctx context.Context, r types.Rule) (*types.Rule, error)
	Delete(ctx context.Context, id types.RuleID) error
}

// Invalidator drops cached rule sets.
type Invalidator interface {
	Invalidate()
}

// VersionSyncer records rule-set versions after mutations.
type VersionSyncer interface {
	Sync(ctx context.Context, cc types.ChangeContext) (*types.RuleVersion, bool, error)
}

// MutationResult is the outcome of a rule write.
type MutationResult struct {
	Rule       *types.Rule        `json:"rule,omitempty"`
	Version    *types.RuleVersion `json:"version"`
	NewVersion bool               `json:"newVersion"`
}

// RuleManager performs validated rule writes.
type RuleManager struct {
	repo       RuleRepository
	cache      Invalidator
	tracker    VersionSyncer
	validators *validators.Registry
	log        logger.Logger
}

// NewRuleManager creates a rule manager.
func NewRuleManager(repo RuleRepository, cache Invalidator, tracker VersionSyncer, reg *validators.Registry, log logger.Logger) *RuleManager {
	if log == nil {
		log = logger.Nop()
	}
	return &RuleManager{
		repo:       repo,
		cache:      cache,
		tracker:    tracker,
		validators: reg,
		log:        log,
	}
}

// List returns all rules, active or not, in scope for provider. A blank
// provider or ALL returns every rule.
func (m *RuleManager) List(ctx context.Context, provider string) ([]types.Rule, error) {
	all, err := m.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	provider = types.NormalizeProvider(provider)
	if provider == "" || provider == types.ProviderAll {
		return all, nil
	}

	out := make([]types.Rule, 0, len(all))
	for _, r := range all {
		if r.AppliesTo(provider) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns one rule.
func (m *RuleManager) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	return m.repo.Get(ctx, id)
}

// Create validates and stores a new rule.
func (m *RuleManager) Create(ctx context.Context, r types.Rule, cc types.ChangeContext) (*MutationResult, error) {
	if err := m.prepare(&r); err != nil {
		return nil, err
	}

	created, err := m.repo.Create(ctx, r)
	if err != nil {
		return nil, err
	}
	m.log.Infow("Rule created", "rule_id", created.ID, "rule_name", created.Name, "changed_by", cc.ChangedBy)

	return m.commit(ctx, created, cc)
}

// Update applies patch to a stored rule.
func (m *RuleManager) Update(ctx context.Context, id types.RuleID, patch types.RulePatch, cc types.ChangeContext) (*MutationResult, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: update changes nothing", types.ErrInvalidRule)
	}

	current, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*current)
	if err := m.prepare(&next); err != nil {
		return nil, err
	}

	updated, err := m.repo.Update(ctx, next)
	if err != nil {
		return nil, err
	}
	m.log.Infow("Rule updated", "rule_id", id, "changed_by", cc.ChangedBy)

	return m.commit(ctx, updated, cc)
}

// SetActive activates or deactivates a rule.
func (m *RuleManager) SetActive(ctx context.Context, id types.RuleID, active bool, cc types.ChangeContext) (*MutationResult, error) {
	return m.Update(ctx, id, types.RulePatch{Active: &active}, cc)
}

// Delete removes a rule.
func (m *RuleManager) Delete(ctx context.Context, id types.RuleID, cc types.ChangeContext) (*MutationResult, error) {
	if err := m.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	m.log.Infow("Rule deleted", "rule_id", id, "changed_by", cc.ChangedBy)

	return m.commit(ctx, nil, cc)
}

// Import stores a batch of rules, creating new IDs and overwriting existing
// ones, and records a single version for the batch. Every rule is validated
// before any is written. If a write fails partway, the rules already stored
// are still versioned and the write error is returned.
func (m *RuleManager) Import(ctx context.Context, batch []types.Rule, cc types.ChangeContext) (*MutationResult, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: import contains no rules", types.ErrInvalidRule)
	}
	for i := range batch {
		if err := m.prepare(&batch[i]); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, batch[i].Name, err)
		}
	}

	written := 0
	for i, r := range batch {
		if err := m.importOne(ctx, r); err != nil {
			err = fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
			if written == 0 {
				return nil, err
			}
			m.log.Errorw("Import stopped partway", "written", written, "count", len(batch), "error", err)
			if _, commitErr := m.commit(ctx, nil, cc); commitErr != nil {
				return nil, errors.Join(err, commitErr)
			}
			return nil, err
		}
		written++
	}
	m.log.Infow("Rules imported", "count", len(batch), "changed_by", cc.ChangedBy)

	return m.commit(ctx, nil, cc)
}

func (m *RuleManager) importOne(ctx context.Context, r types.Rule) error {
	if r.ID != "" {
		_, err := m.repo.Get(ctx, r.ID)
		if err == nil {
			_, err = m.repo.Update(ctx, r)
			return err
		}
		if !types.IsNotFound(err) {
			return err
		}
	}
	_, err := m.repo.Create(ctx, r)
	return err
}

func (m *RuleManager) prepare(r *types.Rule) error {
	rules.Normalize(r)
	return rules.ValidateRule(r, m.validators.Has)
}

// commit invalidates the cache and records the version.
func (m *RuleManager) commit(ctx context.Context, r *types.Rule, cc types.ChangeContext) (*MutationResult, error) {
	m.cache.Invalidate()

	v, created, err := m.tracker.Sync(ctx, cc)
	if err != nil {
		m.log.Errorw("Rule change stored but version not recorded", "error", err)
		return nil, err
	}
	return &MutationResult{Rule: r, Version: v, NewVersion: created}, nil
}
