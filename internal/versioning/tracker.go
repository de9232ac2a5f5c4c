// internal/versioning/tracker.go
package versioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/metrics"
	"github.com/solatis/medaudit/internal/types"
)

/*
 * Rule-set version tracking.
 *
 * Every distinct active rule set gets an immutable, monotonically numbered
 * RuleVersion identified by its content hash, plus one change-log entry per
 * rule that moved between consecutive versions.
 *
 * Key functions:
 *   - Initialize: bootstrap version 1, or reconcile drift left by a failed
 *     version write on a previous run
 *   - Sync: after a mutation, mint version current+1 if the hash moved
 *   - CheckIfChanged: has the rule set moved since a baseline version
 *
 * The hash covers active rules only, but the change-log baseline is the
 * whole rule set as of the last Sync, minted or not. Edits to inactive
 * rules therefore never mint a version on their own, and never leak into
 * a later version's change log under the wrong type.
 *
 * Concurrency: the current-version pointer is RW-locked. Sync holds the
 * write lock from reading the rule set to persisting the version, so
 * concurrent mutations mint versions one at a time and version numbers
 * never collide. The store enforces the same with a unique constraint.
 * The notifier runs after the lock is released.
 */

// RuleLister reads the full rule set, active and inactive.
type RuleLister interface {
	ListAll(ctx context.Context) ([]types.Rule, error)
}

// Store persists versions and the change log.
type Store interface {
	// CurrentVersion returns the highest-numbered version with its
	// snapshot, or nil when none exists.
	CurrentVersion(ctx context.Context) (*types.RuleVersion, error)
	GetVersion(ctx context.Context, id types.VersionID) (*types.RuleVersion, error)
	// CreateVersion stores a version and its entries atomically.
	CreateVersion(ctx context.Context, v *types.RuleVersion, entries []types.RuleChangeLogEntry) error
	// ListChanges returns entries with fromExclusive < versionNumber <= toInclusive.
	ListChanges(ctx context.Context, fromExclusive, toInclusive int) ([]types.RuleChangeLogEntry, error)
	CountChanges(ctx context.Context, fromExclusive, toInclusive int) (int, error)
	RecentChanges(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error)
}

// Notifier is told about every persisted version. Failures are logged and
// never undo the version.
type Notifier interface {
	VersionCreated(ctx context.Context, v *types.RuleVersion, entries []types.RuleChangeLogEntry) error
}

// DefaultRecentLimit caps RecentChangeLog when the caller passes no limit.
const DefaultRecentLimit = 50

// Tracker maintains the current rule-set version.
type Tracker struct {
	store    Store
	rules    RuleLister
	notifier Notifier
	log      logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	current *types.RuleVersion
	// baseline is the rule set observed at the last Sync; Diff runs
	// against it rather than against current's snapshot.
	baseline []types.Rule
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithNotifier publishes created versions.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// WithClock overrides time.Now for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. Call Initialize before serving.
func NewTracker(store Store, rules RuleLister, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		rules: rules,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize loads the current version. With no versions stored it
// creates version 1 from the present rule set; if the stored hash no
// longer matches the rule set it mints a reconciling version.
func (t *Tracker) Initialize(ctx context.Context) (*types.RuleVersion, error) {
	v, minted, err := t.initialize(ctx)
	if err != nil {
		return nil, err
	}
	if minted != nil {
		t.notify(ctx, minted)
	}
	return v, nil
}

func (t *Tracker) initialize(ctx context.Context) (*types.RuleVersion, *mintResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored, err := t.store.CurrentVersion(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load current rule version: %w", err)
	}

	ruleSet, err := t.rules.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list rules: %w", err)
	}
	hash := ContentHash(ruleSet)

	if stored == nil {
		v := &types.RuleVersion{
			ID:            types.NewVersionID(),
			VersionNumber: 1,
			ContentHash:   hash,
			Description:   "initial rule set",
			CreatedAt:     t.now().UTC(),
			Snapshot:      ruleSet,
		}
		if err := t.persist(ctx, v, nil, ruleSet); err != nil {
			return nil, nil, err
		}
		t.log.Infow("Created initial rule version", "version", 1, "content_hash", hash)
		return v, &mintResult{version: v}, nil
	}

	t.current = stored
	t.baseline = stored.Snapshot
	metrics.RuleVersionCurrent.Set(float64(stored.VersionNumber))

	if stored.ContentHash == hash {
		t.baseline = ruleSet
		return stored, nil, nil
	}

	t.log.Warnw("Rule set drifted from recorded version, reconciling",
		"version", stored.VersionNumber,
		"stored_hash", stored.ContentHash,
		"current_hash", hash,
	)
	minted, err := t.mint(ctx, ruleSet, hash, types.ChangeContext{
		ChangedBy:   "system",
		Description: "reconciled at startup",
	})
	if err != nil {
		return nil, nil, err
	}
	return minted.version, minted, nil
}

// Sync records the effect of a mutation. It returns the current version
// and whether a new one was created. An unchanged hash is a no-op.
func (t *Tracker) Sync(ctx context.Context, cc types.ChangeContext) (*types.RuleVersion, bool, error) {
	v, minted, err := t.sync(ctx, cc)
	if err != nil {
		return nil, false, err
	}
	if minted != nil {
		t.notify(ctx, minted)
	}
	return v, minted != nil, nil
}

func (t *Tracker) sync(ctx context.Context, cc types.ChangeContext) (*types.RuleVersion, *mintResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		stored, err := t.store.CurrentVersion(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", types.ErrVersionNotRecorded, err)
		}
		t.current = stored
		if stored != nil {
			t.baseline = stored.Snapshot
		}
	}

	ruleSet, err := t.rules.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to list rules: %w", types.ErrVersionNotRecorded, err)
	}
	hash := ContentHash(ruleSet)

	if t.current != nil && t.current.ContentHash == hash {
		t.baseline = ruleSet
		return t.current, nil, nil
	}

	minted, err := t.mint(ctx, ruleSet, hash, cc)
	if err != nil {
		return nil, nil, err
	}
	return minted.version, minted, nil
}

// mintResult is a persisted version awaiting notification.
type mintResult struct {
	version *types.RuleVersion
	entries []types.RuleChangeLogEntry
}

// mint creates version current+1 with change-log entries diffed against
// the baseline. Caller holds t.mu.
func (t *Tracker) mint(ctx context.Context, ruleSet []types.Rule, hash string, cc types.ChangeContext) (*mintResult, error) {
	number := 1
	if t.current != nil {
		number = t.current.VersionNumber + 1
	}

	now := t.now().UTC()
	entries := Diff(t.baseline, ruleSet)
	for i := range entries {
		entries[i].VersionNumber = number
		entries[i].ChangedBy = cc.ChangedBy
		entries[i].ChangeReason = cc.ChangeReason
		entries[i].CreatedAt = now
	}

	desc := cc.Description
	if desc == "" {
		desc = summarize(entries)
	}

	v := &types.RuleVersion{
		ID:            types.NewVersionID(),
		VersionNumber: number,
		ContentHash:   hash,
		Description:   desc,
		CreatedAt:     now,
		Snapshot:      ruleSet,
	}
	if err := t.persist(ctx, v, entries, ruleSet); err != nil {
		return nil, err
	}

	t.log.Infow("Created rule version",
		"version", number,
		"content_hash", hash,
		"changes", len(entries),
		"changed_by", cc.ChangedBy,
	)
	return &mintResult{version: v, entries: entries}, nil
}

// persist writes v and advances the pointer and baseline. Caller holds t.mu.
func (t *Tracker) persist(ctx context.Context, v *types.RuleVersion, entries []types.RuleChangeLogEntry, ruleSet []types.Rule) error {
	if err := t.store.CreateVersion(ctx, v, entries); err != nil {
		t.log.Errorw("Failed to persist rule version", "version", v.VersionNumber, "error", err)
		return fmt.Errorf("%w: %w", types.ErrVersionNotRecorded, err)
	}
	t.current = v
	t.baseline = ruleSet
	metrics.RuleVersionsCreatedTotal.Inc()
	metrics.RuleVersionCurrent.Set(float64(v.VersionNumber))
	return nil
}

// notify publishes a persisted version. Called without t.mu held so a slow
// notifier never blocks readers of the current version.
func (t *Tracker) notify(ctx context.Context, m *mintResult) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.VersionCreated(ctx, m.version, m.entries); err != nil {
		t.log.Warnw("Failed to publish rule version event", "version", m.version.VersionNumber, "error", err)
	}
}

// Current returns the current version.
func (t *Tracker) Current(ctx context.Context) (*types.RuleVersion, error) {
	t.mu.RLock()
	cur := t.current
	t.mu.RUnlock()
	if cur != nil {
		return cur, nil
	}

	stored, err := t.store.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, types.ErrVersionNotFound
	}
	return stored, nil
}

// GetByID returns a version by ID.
func (t *Tracker) GetByID(ctx context.Context, id types.VersionID) (*types.RuleVersion, error) {
	t.mu.RLock()
	cur := t.current
	t.mu.RUnlock()
	if cur != nil && cur.ID == id {
		return cur, nil
	}
	return t.store.GetVersion(ctx, id)
}

// CheckIfChanged compares a baseline version with the current one.
// ChangeCount counts change-log entries in (baseline, current].
func (t *Tracker) CheckIfChanged(ctx context.Context, baselineID types.VersionID) (*types.VersionCheck, error) {
	baseline, err := t.GetByID(ctx, baselineID)
	if err != nil {
		return nil, err
	}
	current, err := t.Current(ctx)
	if err != nil {
		return nil, err
	}

	check := &types.VersionCheck{
		Changed:         current.VersionNumber > baseline.VersionNumber,
		OriginalVersion: baseline,
		CurrentVersion:  current,
	}
	if check.Changed {
		n, err := t.store.CountChanges(ctx, baseline.VersionNumber, current.VersionNumber)
		if err != nil {
			return nil, err
		}
		check.ChangeCount = n
	}
	return check, nil
}

// ListChangesBetween returns change-log entries with from < versionNumber <= to.
func (t *Tracker) ListChangesBetween(ctx context.Context, from, to int) ([]types.RuleChangeLogEntry, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("%w: invalid version range (%d, %d]", types.ErrInvalidRule, from, to)
	}
	return t.store.ListChanges(ctx, from, to)
}

// RecentChangeLog returns the newest entries first.
func (t *Tracker) RecentChangeLog(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return t.store.RecentChanges(ctx, limit)
}

// summarize produces a default description such as "1 created, 2 updated".
func summarize(entries []types.RuleChangeLogEntry) string {
	if len(entries) == 0 {
		return "rule set changed"
	}
	counts := make(map[types.ChangeType]int)
	for _, e := range entries {
		counts[e.ChangeType]++
	}
	order := []types.ChangeType{
		types.ChangeCreated, types.ChangeUpdated, types.ChangeDeleted,
		types.ChangeActivated, types.ChangeDeactivated,
	}
	desc := ""
	for _, ct := range order {
		if counts[ct] == 0 {
			continue
		}
		if desc != "" {
			desc += ", "
		}
		desc += fmt.Sprintf("%d %s", counts[ct], strings.ToLower(string(ct)))
	}
	return desc
}

// IsVersionNotRecorded reports whether err is a version persistence failure.
func IsVersionNotRecorded(err error) bool {
	return errors.Is(err, types.ErrVersionNotRecorded)
}
