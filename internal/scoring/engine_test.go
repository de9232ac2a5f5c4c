package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/types"
	"github.com/solatis/medaudit/internal/validators"
)

func decode(t testing.TB, data string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

// sexoRule fails when more than one sex box is marked.
func sexoRule() types.Rule {
	return types.Rule{
		ID:             "rule-sexo",
		Name:           "Sexo con seleccion unica",
		SeverityLevel:  types.SeverityCritical,
		Points:         30,
		Description:    "Solo debe marcarse un sexo",
		ProviderTarget: types.ProviderAll,
		ValidatorKey:   validators.KeySexoSeleccionUnica,
		AffectedFields: []string{"identificacion.sexo"},
	}
}

// hospitalRule fails when a reimbursement claim lacks the hospital name.
func hospitalRule() types.Rule {
	return types.Rule{
		ID:             "rule-hospital",
		Name:           "Hospital requerido en reembolso",
		SeverityLevel:  types.SeverityImportant,
		Points:         20,
		ProviderTarget: "GNP",
		LogicOperator:  types.LogicAnd,
		Conditions: []types.Condition{
			{FieldPath: "tramite.reembolso", Operator: types.OpEquals, ComparisonValue: true},
			{FieldPath: "hospital.nombre_hospital", Operator: types.OpIsEmpty},
		},
	}
}

const exampleDoc = `{
	"provider": "GNP",
	"identificacion": {"sexo": ["M", "F"]},
	"tramite": {"reembolso": true},
	"hospital": {}
}`

func TestScore_ProviderExample(t *testing.T) {
	engine := NewEngine(validators.Default(), logger.Nop())
	ruleSet := []types.Rule{sexoRule(), hospitalRule()}

	t.Run("GNP gets both deductions", func(t *testing.T) {
		res, err := engine.Score(types.NewDocument(decode(t, exampleDoc), ""), ruleSet)
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if res.FinalScore != 50 || res.TotalDeducted != 50 {
			t.Errorf("FinalScore = %d, TotalDeducted = %d, want 50, 50", res.FinalScore, res.TotalDeducted)
		}
		if len(res.Flags) != 2 {
			t.Fatalf("len(Flags) = %d, want 2", len(res.Flags))
		}
		if res.Flags[0].Severity != types.FlagError || res.Flags[1].Severity != types.FlagWarning {
			t.Errorf("flag severities = %s, %s", res.Flags[0].Severity, res.Flags[1].Severity)
		}
		if res.Flags[0].FieldPath != "identificacion.sexo" || res.Flags[1].FieldPath != "tramite.reembolso" {
			t.Errorf("flag paths = %q, %q", res.Flags[0].FieldPath, res.Flags[1].FieldPath)
		}
		if res.Flags[0].Message != "Solo debe marcarse un sexo" || res.Flags[1].Message != "Hospital requerido en reembolso" {
			t.Errorf("flag messages = %q, %q", res.Flags[0].Message, res.Flags[1].Message)
		}
		if res.PreviousScore != 100 || res.Delta != -50 {
			t.Errorf("PreviousScore = %d, Delta = %d, want 100, -50", res.PreviousScore, res.Delta)
		}
	})

	t.Run("AXA only sees ALL rules", func(t *testing.T) {
		res, err := engine.Score(types.NewDocument(decode(t, exampleDoc), "AXA"), ruleSet)
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if res.FinalScore != 70 {
			t.Errorf("FinalScore = %d, want 70", res.FinalScore)
		}
		if len(res.Deductions) != 1 || res.Deductions[0].Rule.ID != "rule-sexo" {
			t.Errorf("Deductions = %+v, want only rule-sexo", res.Deductions)
		}
		if res.Provider != "AXA" {
			t.Errorf("Provider = %q, want AXA", res.Provider)
		}
	})
}

func TestScore_EmptyRules(t *testing.T) {
	engine := NewEngine(validators.Default(), logger.Nop())
	_, err := engine.Score(types.NewDocument(nil, "GNP"), nil)
	if !errors.Is(err, types.ErrNoRules) {
		t.Fatalf("Score() error = %v, want ErrNoRules", err)
	}
	if !types.IsConfigurationError(err) {
		t.Errorf("IsConfigurationError(%v) = false", err)
	}
}

func TestScore_PassingRulesStillDeduct(t *testing.T) {
	engine := NewEngine(validators.Default(), logger.Nop())
	doc := types.NewDocument(decode(t, `{"identificacion": {"sexo": ["F"]}, "tramite": {"reembolso": false}}`), "GNP")

	res, err := engine.Score(doc, []types.Rule{sexoRule(), hospitalRule()})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.FinalScore != 100 || len(res.Flags) != 0 {
		t.Errorf("FinalScore = %d, flags = %d, want 100, 0", res.FinalScore, len(res.Flags))
	}
	if len(res.Deductions) != 2 {
		t.Errorf("len(Deductions) = %d, want 2 (one per in-scope rule)", len(res.Deductions))
	}
}

func TestScore_ClampsAtZero(t *testing.T) {
	engine := NewEngine(nil, logger.Nop())
	always := types.Rule{
		Name:           "always",
		SeverityLevel:  types.SeverityMinor,
		Points:         70,
		ProviderTarget: types.ProviderAll,
		Conditions:     []types.Condition{{FieldPath: "missing", Operator: types.OpIsEmpty}},
	}
	res, err := engine.Score(types.NewDocument(nil, ""), []types.Rule{always, always})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.TotalDeducted != 140 {
		t.Errorf("TotalDeducted = %d, want 140 (unclamped)", res.TotalDeducted)
	}
	if res.FinalScore != 0 {
		t.Errorf("FinalScore = %d, want 0", res.FinalScore)
	}
	if res.Provider != types.ProviderUnknown {
		t.Errorf("Provider = %q, want UNKNOWN", res.Provider)
	}
	if res.Flags[0].Severity != types.FlagNote {
		t.Errorf("Severity = %q, want note", res.Flags[0].Severity)
	}
}

func TestScore_EvaluationErrorsArePassed(t *testing.T) {
	reg := validators.NewRegistry(map[string]validators.Predicate{
		"panics": validators.PredicateFunc(func(types.Document) (bool, error) {
			var m map[string]int
			m["boom"]++
			return true, nil
		}),
		"errors": validators.PredicateFunc(func(types.Document) (bool, error) {
			return true, fmt.Errorf("unexpected shape")
		}),
	})
	engine := NewEngine(reg, logger.Nop())

	ruleSet := []types.Rule{
		{ID: "p", Name: "panics", SeverityLevel: types.SeverityCritical, Points: 40, ProviderTarget: types.ProviderAll, ValidatorKey: "panics"},
		{ID: "e", Name: "errors", SeverityLevel: types.SeverityCritical, Points: 40, ProviderTarget: types.ProviderAll, ValidatorKey: "errors"},
		{ID: "c", Name: "bad condition", SeverityLevel: types.SeverityCritical, Points: 40, ProviderTarget: types.ProviderAll,
			Conditions: []types.Condition{{FieldPath: "x..y", Operator: types.OpIsEmpty}}},
	}

	res, err := engine.Score(types.NewDocument(nil, "GNP"), ruleSet)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.FinalScore != 100 {
		t.Errorf("FinalScore = %d, want 100", res.FinalScore)
	}
	if len(res.EvaluationErrors) != 3 {
		t.Fatalf("len(EvaluationErrors) = %d, want 3", len(res.EvaluationErrors))
	}
	for _, d := range res.Deductions {
		if d.Failed {
			t.Errorf("rule %s failed despite evaluation error", d.Rule.ID)
		}
	}
}

func TestScore_UnknownValidatorFallsBackToConditions(t *testing.T) {
	engine := NewEngine(validators.Default(), logger.Nop())
	rule := types.Rule{
		Name:           "fallback",
		SeverityLevel:  types.SeverityModerate,
		Points:         10,
		ProviderTarget: types.ProviderAll,
		ValidatorKey:   "retired_validator",
		Conditions:     []types.Condition{{FieldPath: "diagnostico", Operator: types.OpIsEmpty}},
	}
	res, err := engine.Score(types.NewDocument(map[string]any{}, ""), []types.Rule{rule})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.FinalScore != 90 || res.Flags[0].Severity != types.FlagNotice {
		t.Errorf("FinalScore = %d, want 90 with a notice flag", res.FinalScore)
	}
}

func TestReEvaluate_Delta(t *testing.T) {
	engine := NewEngine(validators.Default(), logger.Nop())
	ruleSet := []types.Rule{sexoRule(), hospitalRule()}

	// the user fixed the sex field after an initial score of 50
	fixed := decode(t, exampleDoc)
	fixed["identificacion"] = map[string]any{"sexo": []any{"M"}}

	res, err := engine.ReEvaluate(types.NewDocument(fixed, ""), 50, ruleSet)
	if err != nil {
		t.Fatalf("ReEvaluate() error = %v", err)
	}
	if res.PreviousScore != 50 || res.FinalScore != 80 || res.Delta != 30 {
		t.Errorf("previous=%d final=%d delta=%d, want 50 80 30", res.PreviousScore, res.FinalScore, res.Delta)
	}
}

// genRuleSet builds a rule set from generated points and provider choices.
func genRuleSet(points []int, targets []int) []types.Rule {
	choices := []string{types.ProviderAll, "GNP", "AXA", "GNP,AXA", "METLIFE"}
	ruleSet := make([]types.Rule, len(points))
	for i, p := range points {
		op := types.OpIsEmpty
		if i%2 == 1 {
			op = types.OpIsNotEmpty
		}
		ruleSet[i] = types.Rule{
			ID:             types.RuleID(fmt.Sprintf("r%d", i)),
			Name:           fmt.Sprintf("rule %d", i),
			SeverityLevel:  types.SeverityModerate,
			Points:         p,
			ProviderTarget: choices[targets[i%len(targets)]%len(choices)],
			Conditions:     []types.Condition{{FieldPath: fmt.Sprintf("campo_%d", i%3), Operator: op}},
		}
	}
	return ruleSet
}

func TestScore_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	engine := NewEngine(validators.Default(), logger.Nop())
	providers := []string{"GNP", "AXA", "METLIFE", ""}
	docs := []map[string]any{
		{},
		{"campo_0": "x"},
		{"campo_0": "x", "campo_1": "", "campo_2": []any{"a"}},
	}

	properties.Property("finalScore stays within [0, 100]", prop.ForAll(
		func(points []int, targets []int, p int, d int) bool {
			if len(points) == 0 || len(targets) == 0 {
				return true
			}
			res, err := engine.Score(types.NewDocument(docs[d], providers[p]), genRuleSet(points, targets))
			if err != nil {
				return false
			}
			return res.FinalScore >= 0 && res.FinalScore <= 100
		},
		gen.SliceOf(gen.IntRange(0, 80)),
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.IntRange(0, len(providers)-1),
		gen.IntRange(0, len(docs)-1),
	))

	properties.Property("flags equal failed deductions and points add up", prop.ForAll(
		func(points []int, targets []int, p int, d int) bool {
			if len(points) == 0 || len(targets) == 0 {
				return true
			}
			res, err := engine.Score(types.NewDocument(docs[d], providers[p]), genRuleSet(points, targets))
			if err != nil {
				return false
			}
			sum := 0
			for _, ded := range res.Deductions {
				if ded.Failed {
					sum += ded.Rule.Points
				}
			}
			return len(res.Flags) == res.FailedCount() && sum == res.TotalDeducted
		},
		gen.SliceOf(gen.IntRange(0, 80)),
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.IntRange(0, len(providers)-1),
		gen.IntRange(0, len(docs)-1),
	))

	properties.Property("scoring is idempotent", prop.ForAll(
		func(points []int, targets []int, p int, d int) bool {
			if len(points) == 0 || len(targets) == 0 {
				return true
			}
			doc := types.NewDocument(docs[d], providers[p])
			ruleSet := genRuleSet(points, targets)
			a, err1 := engine.Score(doc, ruleSet)
			b, err2 := engine.Score(doc, ruleSet)
			if err1 != nil || err2 != nil {
				return false
			}
			return a.FinalScore == b.FinalScore &&
				a.TotalDeducted == b.TotalDeducted &&
				len(a.Flags) == len(b.Flags) &&
				len(a.Deductions) == len(b.Deductions)
		},
		gen.SliceOf(gen.IntRange(0, 80)),
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.IntRange(0, len(providers)-1),
		gen.IntRange(0, len(docs)-1),
	))

	properties.Property("deductions cover exactly the in-scope rules", prop.ForAll(
		func(points []int, targets []int, p int) bool {
			if len(points) == 0 || len(targets) == 0 {
				return true
			}
			doc := types.NewDocument(docs[0], providers[p])
			ruleSet := genRuleSet(points, targets)
			res, err := engine.Score(doc, ruleSet)
			if err != nil {
				return false
			}
			inScope := 0
			for i := range ruleSet {
				if ruleSet[i].AppliesTo(doc.ProviderKey()) {
					inScope++
				}
			}
			return len(res.Deductions) == inScope
		},
		gen.SliceOf(gen.IntRange(0, 80)),
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.IntRange(0, len(providers)-1),
	))

	properties.TestingRun(t)
}

func TestTargetScoping(t *testing.T) {
	tests := []struct {
		target   string
		provider string
		want     bool
	}{
		{"ALL", "GNP", true},
		{"all", "UNKNOWN", true},
		{"", "AXA", true},
		{"GNP,AXA", "GNP", true},
		{"GNP, AXA", "axa", true},
		{"GNP,AXA", "METLIFE", false},
		{"GNP", "UNKNOWN", false},
	}
	for _, tt := range tests {
		if got := types.TargetIncludes(tt.target, tt.provider); got != tt.want {
			t.Errorf("TargetIncludes(%q, %q) = %v, want %v", tt.target, tt.provider, got, tt.want)
		}
	}
}
