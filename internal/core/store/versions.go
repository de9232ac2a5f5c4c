package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/solatis/medaudit/internal/core/db"
	"github.com/solatis/medaudit/internal/types"
)

type versionRow struct {
	ID            string `db:"id"`
	VersionNumber int    `db:"version_number"`
	ContentHash   string `db:"content_hash"`
	Description   string `db:"description"`
	Snapshot      string `db:"snapshot"`
	CreatedAt     string `db:"created_at"`
}

func (r versionRow) toVersion() (*types.RuleVersion, error) {
	v := &types.RuleVersion{
		ID:            types.VersionID(r.ID),
		VersionNumber: r.VersionNumber,
		ContentHash:   r.ContentHash,
		Description:   r.Description,
		CreatedAt:     parseTime(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.Snapshot), &v.Snapshot); err != nil {
		return nil, fmt.Errorf("version %d: failed to decode snapshot: %w", r.VersionNumber, err)
	}
	return v, nil
}

type changeRow struct {
	RuleID        string         `db:"rule_id"`
	RuleName      string         `db:"rule_name"`
	ChangeType    string         `db:"change_type"`
	PreviousValue sql.NullString `db:"previous_value"`
	NewValue      sql.NullString `db:"new_value"`
	ChangedBy     string         `db:"changed_by"`
	ChangeReason  string         `db:"change_reason"`
	VersionNumber int            `db:"version_number"`
	CreatedAt     string         `db:"created_at"`
}

func (r changeRow) toEntry() types.RuleChangeLogEntry {
	e := types.RuleChangeLogEntry{
		RuleID:        types.RuleID(r.RuleID),
		RuleName:      r.RuleName,
		ChangeType:    types.ChangeType(r.ChangeType),
		ChangedBy:     r.ChangedBy,
		ChangeReason:  r.ChangeReason,
		VersionNumber: r.VersionNumber,
		CreatedAt:     parseTime(r.CreatedAt),
	}
	if r.PreviousValue.Valid {
		e.PreviousValue = json.RawMessage(r.PreviousValue.String)
	}
	if r.NewValue.Valid {
		e.NewValue = json.RawMessage(r.NewValue.String)
	}
	return e
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// VersionStore persists rule-set versions and the change log.
type VersionStore struct {
	q *db.Queries
}

// NewVersionStore creates a version store over q.
func NewVersionStore(q *db.Queries) *VersionStore {
	return &VersionStore{q: q}
}

// CurrentVersion returns the highest-numbered version, or nil when none
// has been recorded.
func (s *VersionStore) CurrentVersion(ctx context.Context) (*types.RuleVersion, error) {
	var row versionRow
	if err := s.q.Get(ctx, "current-version", &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	return row.toVersion()
}

// GetVersion returns a version by ID.
func (s *VersionStore) GetVersion(ctx context.Context, id types.VersionID) (*types.RuleVersion, error) {
	var row versionRow
	if err := s.q.Get(ctx, "get-version", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrVersionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return row.toVersion()
}

// CreateVersion inserts v and its change-log entries in one transaction.
// A duplicate version number fails on the unique constraint.
func (s *VersionStore) CreateVersion(ctx context.Context, v *types.RuleVersion, entries []types.RuleChangeLogEntry) error {
	snapshot := v.Snapshot
	if snapshot == nil {
		snapshot = []types.Rule{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.q.InTx(ctx, func(tx *db.Queries) error {
		if _, err := tx.Exec(ctx, "insert-version",
			string(v.ID), v.VersionNumber, v.ContentHash, v.Description,
			string(data), formatTime(v.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert version %d: %w", v.VersionNumber, err)
		}

		for _, e := range entries {
			if _, err := tx.Exec(ctx, "insert-change",
				string(e.RuleID), e.RuleName, string(e.ChangeType),
				nullJSON(e.PreviousValue), nullJSON(e.NewValue),
				e.ChangedBy, e.ChangeReason, e.VersionNumber, formatTime(e.CreatedAt),
			); err != nil {
				return fmt.Errorf("failed to insert change for rule %s: %w", e.RuleID, err)
			}
		}
		return nil
	})
}

// ListChanges returns entries with fromExclusive < versionNumber <= toInclusive,
// oldest first.
func (s *VersionStore) ListChanges(ctx context.Context, fromExclusive, toInclusive int) ([]types.RuleChangeLogEntry, error) {
	var rows []changeRow
	if err := s.q.Select(ctx, "list-changes-between", &rows, fromExclusive, toInclusive); err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return toEntries(rows), nil
}

// CountChanges counts entries in (fromExclusive, toInclusive].
func (s *VersionStore) CountChanges(ctx context.Context, fromExclusive, toInclusive int) (int, error) {
	var n int
	if err := s.q.Get(ctx, "count-changes-between", &n, fromExclusive, toInclusive); err != nil {
		return 0, fmt.Errorf("failed to count changes: %w", err)
	}
	return n, nil
}

// RecentChanges returns up to limit entries, newest first.
func (s *VersionStore) RecentChanges(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error) {
	var rows []changeRow
	if err := s.q.Select(ctx, "recent-changes", &rows, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent changes: %w", err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []changeRow) []types.RuleChangeLogEntry {
	out := make([]types.RuleChangeLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out
}
