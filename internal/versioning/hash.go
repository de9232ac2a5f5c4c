// internal/versioning/hash.go
package versioning

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/solatis/medaudit/internal/types"
)

// canonicalRule is the scoring-relevant content of a rule. Timestamps and
// the active flag are excluded; activation is expressed by membership in
// the hashed set.
type canonicalRule struct {
	ID             types.RuleID        `json:"id"`
	Name           string              `json:"name"`
	SeverityLevel  types.Severity      `json:"severityLevel"`
	Points         int                 `json:"points"`
	Description    string              `json:"description"`
	ProviderTarget string              `json:"providerTarget"`
	IsCustom       bool                `json:"isCustom"`
	Conditions     []types.Condition   `json:"conditions"`
	LogicOperator  types.LogicOperator `json:"logicOperator"`
	AffectedFields []string            `json:"affectedFields"`
	ValidatorKey   string              `json:"validatorKey"`
}

func canonicalize(r types.Rule) canonicalRule {
	c := canonicalRule{
		ID:             r.ID,
		Name:           r.Name,
		SeverityLevel:  r.SeverityLevel,
		Points:         r.Points,
		Description:    r.Description,
		ProviderTarget: r.ProviderTarget,
		IsCustom:       r.IsCustom,
		Conditions:     r.Conditions,
		LogicOperator:  r.LogicOperator,
		AffectedFields: r.AffectedFields,
		ValidatorKey:   r.ValidatorKey,
	}
	if c.Conditions == nil {
		c.Conditions = []types.Condition{}
	}
	if c.AffectedFields == nil {
		c.AffectedFields = []string{}
	}
	return c
}

// canonicalJSON encodes a rule's canonical form. encoding/json sorts map
// keys, so comparison values encode deterministically.
func canonicalJSON(r types.Rule) []byte {
	data, err := json.Marshal(canonicalize(r))
	if err != nil {
		// comparison values come from JSON/YAML decoding and always encode
		return []byte(fmt.Sprintf("%s:unencodable", r.ID))
	}
	return data
}

// sameContent reports whether two rules are equal ignoring timestamps and
// the active flag.
func sameContent(a, b types.Rule) bool {
	return bytes.Equal(canonicalJSON(a), canonicalJSON(b))
}

// ContentHash generates a content-addressable hash of the active rule set.
// Order of the input does not matter.
func ContentHash(ruleSet []types.Rule) string {
	active := make([]types.Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	h := sha256.New()
	for _, r := range active {
		h.Write(canonicalJSON(r))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
