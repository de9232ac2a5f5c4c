package types

import "github.com/google/uuid"

// NewRuleID generates a UUIDv7 rule identifier. Imported rules may carry
// their own free-form IDs instead.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewVersionID generates a UUIDv7 rule-version identifier.
func NewVersionID() VersionID {
	return VersionID(uuid.Must(uuid.NewV7()).String())
}

// ParseVersionID validates and converts a string to VersionID.
func ParseVersionID(s string) (VersionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return VersionID(s), nil
}
