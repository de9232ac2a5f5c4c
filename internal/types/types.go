// Package types provides domain models shared across medaudit components.
//
// The rule engine, cache, version tracker and transports all exchange these
// types; conversion from wire formats (JSON bodies, structpb messages, SQL
// rows) happens at the boundary packages, never here.
package types

import (
	"strings"
)

// RuleID identifies a rule. UUIDv7 string; time-ordered for index locality.
type RuleID string

// VersionID identifies a rule-set version.
type VersionID string

// ProviderAll is the rule target that applies to every provider, and the
// cache key for the full merged rule set.
const ProviderAll = "ALL"

// ProviderUnknown is used when a document carries no provider identifier.
const ProviderUnknown = "UNKNOWN"

// providerField is the top-level key consulted when the boundary did not
// supply a provider explicitly.
const providerField = "provider"

// Document is an extracted medical report: an arbitrary JSON tree plus the
// insurance provider it was filed for. The core never mutates Data.
type Document struct {
	Provider string
	Data     map[string]any
}

// NewDocument builds a Document. An empty provider falls back to the
// top-level "provider" string of data, then to ProviderUnknown.
func NewDocument(data map[string]any, provider string) Document {
	if data == nil {
		data = map[string]any{}
	}
	p := NormalizeProvider(provider)
	if p == "" {
		if s, ok := data[providerField].(string); ok {
			p = NormalizeProvider(s)
		}
	}
	if p == "" {
		p = ProviderUnknown
	}
	return Document{Provider: p, Data: data}
}

// ProviderKey returns the provider used for rule scoping.
func (d Document) ProviderKey() string {
	if p := NormalizeProvider(d.Provider); p != "" {
		return p
	}
	return ProviderUnknown
}

// NormalizeProvider trims and upper-cases a provider identifier.
func NormalizeProvider(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

// Resource limits enforced by the rule engine.
const (
	// MaxPathDepth bounds field path length so resolution cost stays linear
	// in a small constant.
	MaxPathDepth = 16

	// MaxInOperatorValues limits the "in" operator list size.
	MaxInOperatorValues = 64

	// MaxRuleNameLength bounds rule names stored by the management API.
	MaxRuleNameLength = 200

	// BaseScore is the score a document starts from before deductions.
	BaseScore = 100
)
