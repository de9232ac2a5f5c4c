// internal/types/scoring.go
package types

// FlagSeverity is the presentation severity of a flag.
type FlagSeverity string

const (
	FlagError   FlagSeverity = "error"
	FlagWarning FlagSeverity = "warning"
	FlagNotice  FlagSeverity = "notice"
	FlagNote    FlagSeverity = "note"
)

// FlagSeverityFor maps a rule severity to its flag severity.
func FlagSeverityFor(s Severity) FlagSeverity {
	switch s {
	case SeverityCritical:
		return FlagError
	case SeverityImportant:
		return FlagWarning
	case SeverityModerate:
		return FlagNotice
	default:
		return FlagNote
	}
}

// Deduction records the outcome of one in-scope rule.
type Deduction struct {
	Rule   Rule `json:"rule"`
	Failed bool `json:"failed"`
}

// Flag is emitted for every failed rule.
type Flag struct {
	Severity  FlagSeverity `json:"severity"`
	RuleID    RuleID       `json:"ruleId"`
	RuleName  string       `json:"ruleName"`
	Message   string       `json:"message"`
	FieldPath string       `json:"fieldPath"`
}

// EvaluationError records a rule whose evaluation raised an error. The rule
// is reported as not failed.
type EvaluationError struct {
	RuleID   RuleID `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Error    string `json:"error"`
}

// ScoringResult is the outcome of scoring a document.
type ScoringResult struct {
	Provider          string            `json:"provider"`
	PreviousScore     int               `json:"previousScore"`
	BaseScore         int               `json:"baseScore"`
	Deductions        []Deduction       `json:"deductions"`
	TotalDeducted     int               `json:"totalDeducted"`
	FinalScore        int               `json:"finalScore"`
	Delta             int               `json:"delta"`
	Flags             []Flag            `json:"flags"`
	EvaluationErrors  []EvaluationError `json:"evaluationErrors,omitempty"`
	RuleVersionID     VersionID         `json:"ruleVersionId,omitempty"`
	RuleVersionNumber int               `json:"ruleVersionNumber,omitempty"`
}

// FailedCount returns the number of failed deductions.
func (r *ScoringResult) FailedCount() int {
	n := 0
	for _, d := range r.Deductions {
		if d.Failed {
			n++
		}
	}
	return n
}
