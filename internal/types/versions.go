// internal/types/versions.go
package types

import (
	"encoding/json"
	"time"
)

// ChangeType classifies a change-log entry.
type ChangeType string

const (
	ChangeCreated     ChangeType = "CREATED"
	ChangeUpdated     ChangeType = "UPDATED"
	ChangeDeleted     ChangeType = "DELETED"
	ChangeActivated   ChangeType = "ACTIVATED"
	ChangeDeactivated ChangeType = "DEACTIVATED"
)

// RuleVersion is an immutable record of a rule-set revision. Snapshot holds
// every rule (active or not) as of the version and feeds the next diff.
type RuleVersion struct {
	ID            VersionID `json:"id"`
	VersionNumber int       `json:"versionNumber"`
	ContentHash   string    `json:"contentHash"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Snapshot      []Rule    `json:"-"`
}

// RuleChangeLogEntry is one append-only audit row.
type RuleChangeLogEntry struct {
	RuleID        RuleID          `json:"ruleId"`
	RuleName      string          `json:"ruleName"`
	ChangeType    ChangeType      `json:"changeType"`
	PreviousValue json.RawMessage `json:"previousValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue,omitempty"`
	ChangedBy     string          `json:"changedBy,omitempty"`
	ChangeReason  string          `json:"changeReason,omitempty"`
	VersionNumber int             `json:"versionNumber"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// VersionCheck reports whether the rule set moved on since a baseline.
type VersionCheck struct {
	Changed         bool         `json:"changed"`
	OriginalVersion *RuleVersion `json:"originalVersion"`
	CurrentVersion  *RuleVersion `json:"currentVersion"`
	ChangeCount     int          `json:"changeCount"`
}

// ChangeContext carries audit attribution for a mutation.
type ChangeContext struct {
	ChangedBy    string
	ChangeReason string
	Description  string
}
