// Package store persists rules, rule-set versions and the rule change log
// in SQL via the named queries in internal/core/db.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/medaudit/internal/core/db"
	"github.com/solatis/medaudit/internal/types"
)

// timeFormat is the text encoding of every stored timestamp.
const timeFormat = time.RFC3339Nano

type ruleRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	SeverityLevel  string `db:"severity_level"`
	Points         int    `db:"points"`
	Description    string `db:"description"`
	ProviderTarget string `db:"provider_target"`
	IsCustom       bool   `db:"is_custom"`
	Conditions     string `db:"conditions"`
	LogicOperator  string `db:"logic_operator"`
	AffectedFields string `db:"affected_fields"`
	ValidatorKey   string `db:"validator_key"`
	Active         bool   `db:"active"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

func (r ruleRow) toRule() (types.Rule, error) {
	rule := types.Rule{
		ID:             types.RuleID(r.ID),
		Name:           r.Name,
		SeverityLevel:  types.Severity(r.SeverityLevel),
		Points:         r.Points,
		Description:    r.Description,
		ProviderTarget: r.ProviderTarget,
		IsCustom:       r.IsCustom,
		LogicOperator:  types.LogicOperator(r.LogicOperator),
		ValidatorKey:   r.ValidatorKey,
		Active:         r.Active,
		Conditions:     []types.Condition{},
		AffectedFields: []string{},
	}
	if err := json.Unmarshal([]byte(r.Conditions), &rule.Conditions); err != nil {
		return types.Rule{}, fmt.Errorf("rule %s: failed to decode conditions: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.AffectedFields), &rule.AffectedFields); err != nil {
		return types.Rule{}, fmt.Errorf("rule %s: failed to decode affected fields: %w", r.ID, err)
	}
	rule.CreatedAt = parseTime(r.CreatedAt)
	rule.UpdatedAt = parseTime(r.UpdatedAt)
	return rule, nil
}

// encodeRule returns the JSON columns of r.
func encodeRule(r types.Rule) (conditions, affected string, err error) {
	conds := r.Conditions
	if conds == nil {
		conds = []types.Condition{}
	}
	c, err := json.Marshal(conds)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode conditions: %w", err)
	}
	fields := r.AffectedFields
	if fields == nil {
		fields = []string{}
	}
	a, err := json.Marshal(fields)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode affected fields: %w", err)
	}
	return string(c), string(a), nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// RuleStore reads and writes rules.
type RuleStore struct {
	q   *db.Queries
	now func() time.Time
}

// NewRuleStore creates a rule store over q.
func NewRuleStore(q *db.Queries) *RuleStore {
	return &RuleStore{q: q, now: time.Now}
}

// List returns active rules in scope for providerFilter; ALL returns every
// active rule. Target matching happens here rather than in SQL since a
// target is a comma-separated list.
func (s *RuleStore) List(ctx context.Context, providerFilter string) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-active-rules", &rows, true); err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	filter := types.NormalizeProvider(providerFilter)
	out := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRule()
		if err != nil {
			return nil, err
		}
		if filter == "" || filter == types.ProviderAll || r.AppliesTo(filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListAll returns every rule, active or not, ordered by ID.
func (s *RuleStore) ListAll(ctx context.Context) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-rules", &rows); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	out := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Get returns a rule by ID.
func (s *RuleStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	r, err := row.toRule()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts r, assigning an ID when blank and stamping both
// timestamps. The stored rule is returned.
func (s *RuleStore) Create(ctx context.Context, r types.Rule) (*types.Rule, error) {
	if r.ID == "" {
		r.ID = types.NewRuleID()
	}
	now := s.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	conditions, affected, err := encodeRule(r)
	if err != nil {
		return nil, err
	}

	_, err = s.q.Exec(ctx, "insert-rule",
		string(r.ID), r.Name, string(r.SeverityLevel), r.Points, r.Description,
		r.ProviderTarget, r.IsCustom, conditions, string(r.LogicOperator), affected,
		r.ValidatorKey, r.Active, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule: %w", err)
	}
	return &r, nil
}

// Update overwrites the stored rule with r's content and stamps UpdatedAt.
// CreatedAt is never changed.
func (s *RuleStore) Update(ctx context.Context, r types.Rule) (*types.Rule, error) {
	r.UpdatedAt = s.now().UTC()

	conditions, affected, err := encodeRule(r)
	if err != nil {
		return nil, err
	}

	res, err := s.q.Exec(ctx, "update-rule",
		r.Name, string(r.SeverityLevel), r.Points, r.Description, r.ProviderTarget,
		r.IsCustom, conditions, string(r.LogicOperator), affected,
		r.ValidatorKey, r.Active, formatTime(r.UpdatedAt), string(r.ID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if err := requireRow(res, r.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, r.ID)
}

// Delete removes a rule.
func (s *RuleStore) Delete(ctx context.Context, id types.RuleID) error {
	res, err := s.q.Exec(ctx, "delete-rule", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id types.RuleID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return nil
}
