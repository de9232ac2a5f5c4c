// internal/versioning/diff.go
package versioning

import (
	"encoding/json"
	"sort"

	"github.com/solatis/medaudit/internal/types"
)

// Diff describes how next differs from prev as one change-log entry per
// affected rule. Entries for surviving and new rules come first in ID
// order, then deletions in ID order. VersionNumber, attribution and
// timestamps are left for the caller.
func Diff(prev, next []types.Rule) []types.RuleChangeLogEntry {
	before := make(map[types.RuleID]types.Rule, len(prev))
	for _, r := range prev {
		before[r.ID] = r
	}

	sortedNext := sortedByID(next)
	seen := make(map[types.RuleID]bool, len(next))
	var entries []types.RuleChangeLogEntry

	for _, r := range sortedNext {
		seen[r.ID] = true
		old, existed := before[r.ID]
		switch {
		case !existed:
			entries = append(entries, entry(r, types.ChangeCreated, nil, &r))
		case !sameContent(old, r):
			entries = append(entries, entry(r, types.ChangeUpdated, &old, &r))
		case old.Active != r.Active:
			ct := types.ChangeDeactivated
			if r.Active {
				ct = types.ChangeActivated
			}
			entries = append(entries, entry(r, ct, &old, &r))
		}
	}

	for _, r := range sortedByID(prev) {
		if !seen[r.ID] {
			entries = append(entries, entry(r, types.ChangeDeleted, &r, nil))
		}
	}
	return entries
}

func entry(r types.Rule, ct types.ChangeType, prev, next *types.Rule) types.RuleChangeLogEntry {
	return types.RuleChangeLogEntry{
		RuleID:        r.ID,
		RuleName:      r.Name,
		ChangeType:    ct,
		PreviousValue: marshalRule(prev),
		NewValue:      marshalRule(next),
	}
}

func marshalRule(r *types.Rule) json.RawMessage {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return data
}

func sortedByID(ruleSet []types.Rule) []types.Rule {
	out := append([]types.Rule(nil), ruleSet...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
