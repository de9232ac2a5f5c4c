package rules

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/medaudit/internal/types"
)

const reportDoc = `{
	"provider": "GNP",
	"identificacion": {"sexo": ["M", "F"], "edad": "42", "nombre": "Juan Perez"},
	"tramite": {"reembolso": true, "programacion_cirugia": "no"},
	"hospital": {"nombre_hospital": ""},
	"signos": {"peso": 81.5, "talla": null},
	"padecimiento": {"tipo": "Agudo"},
	"otros_medicos": [{"nombre": "Ana"}]
}`

func TestCompare(t *testing.T) {
	data := mustDecode(t, reportDoc)

	tests := []struct {
		name    string
		path    string
		op      types.Operator
		value   any
		want    bool
		wantErr error
	}{
		// emptiness
		{name: "absent is empty", path: "no.such", op: types.OpIsEmpty, want: true},
		{name: "blank string is empty", path: "hospital.nombre_hospital", op: types.OpIsEmpty, want: true},
		{name: "null is empty", path: "signos.talla", op: types.OpIsEmpty, want: true},
		{name: "array not empty", path: "identificacion.sexo", op: types.OpIsEmpty, want: false},
		{name: "absent is not non-empty", path: "no.such", op: types.OpIsNotEmpty, want: false},
		{name: "value is non-empty", path: "padecimiento.tipo", op: types.OpIsNotEmpty, want: true},

		// equality
		{name: "string equals case-insensitive", path: "padecimiento.tipo", op: types.OpEquals, value: "agudo", want: true},
		{name: "numeric string equals number", path: "identificacion.edad", op: types.OpEquals, value: 42, want: true},
		{name: "bool equals", path: "tramite.reembolso", op: types.OpEquals, value: true, want: true},
		{name: "spanish no equals false", path: "tramite.programacion_cirugia", op: types.OpEquals, value: false, want: true},
		{name: "null equals nil", path: "signos.talla", op: types.OpEquals, value: nil, want: true},
		{name: "array equals list", path: "identificacion.sexo", op: types.OpEquals, value: []any{"m", "f"}, want: true},
		{name: "not equals", path: "padecimiento.tipo", op: types.OpNotEquals, value: "Cronico", want: true},
		{name: "absent never equals", path: "no.such", op: types.OpEquals, value: nil, want: false},
		{name: "absent never not-equals", path: "no.such", op: types.OpNotEquals, value: "x", want: false},

		// containment
		{name: "substring", path: "identificacion.nombre", op: types.OpContains, value: "perez", want: true},
		{name: "array membership", path: "identificacion.sexo", op: types.OpContains, value: "F", want: true},
		{name: "array non-membership", path: "identificacion.sexo", op: types.OpContains, value: "X", want: false},
		{name: "object key", path: "signos", op: types.OpContains, value: "peso", want: true},
		{name: "not contains", path: "identificacion.sexo", op: types.OpNotContains, value: "X", want: true},
		{name: "absent never not-contains", path: "no.such", op: types.OpNotContains, value: "X", want: false},

		// ordering
		{name: "greater than", path: "signos.peso", op: types.OpGreaterThan, value: 80, want: true},
		{name: "less or equal numeric string", path: "identificacion.edad", op: types.OpLessOrEqual, value: "42", want: true},
		{name: "greater or equal false", path: "identificacion.edad", op: types.OpGreaterOrEqual, value: 43, want: false},
		{name: "less than null field", path: "signos.talla", op: types.OpLessThan, value: 1, want: false},
		{name: "ordering absent", path: "no.such", op: types.OpGreaterThan, value: 1, want: false},
		{name: "ordering non-numeric field", path: "padecimiento.tipo", op: types.OpGreaterThan, value: 1, wantErr: types.ErrCoercionFailed},
		{name: "ordering non-numeric target", path: "signos.peso", op: types.OpGreaterThan, value: "abc", wantErr: types.ErrInvalidOperator},

		// membership and affixes
		{name: "in", path: "padecimiento.tipo", op: types.OpIn, value: []any{"Cronico", "Agudo"}, want: true},
		{name: "not in", path: "padecimiento.tipo", op: types.OpIn, value: []any{"Cronico"}, want: false},
		{name: "starts with", path: "identificacion.nombre", op: types.OpStartsWith, value: "JUAN", want: true},
		{name: "ends with", path: "identificacion.nombre", op: types.OpEndsWith, value: "rez", want: true},

		{name: "unknown operator", path: "padecimiento.tipo", op: "matches", wantErr: types.ErrInvalidOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			got, err := Compare(tt.op, Resolve(data, path), tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Compare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Logic(t *testing.T) {
	doc := types.NewDocument(mustDecode(t, reportDoc), "")

	hospitalMissing := types.Condition{FieldPath: "hospital.nombre_hospital", Operator: types.OpIsEmpty}
	reembolso := types.Condition{FieldPath: "tramite.reembolso", Operator: types.OpEquals, ComparisonValue: true}
	cronico := types.Condition{FieldPath: "padecimiento.tipo", Operator: types.OpEquals, ComparisonValue: "Cronico"}

	tests := []struct {
		name  string
		logic types.LogicOperator
		conds []types.Condition
		want  bool
	}{
		{name: "no conditions never fail", logic: types.LogicAnd, want: false},
		{name: "AND all hold", logic: types.LogicAnd, conds: []types.Condition{reembolso, hospitalMissing}, want: true},
		{name: "AND one fails", logic: types.LogicAnd, conds: []types.Condition{reembolso, cronico}, want: false},
		{name: "OR one holds", logic: types.LogicOr, conds: []types.Condition{cronico, hospitalMissing}, want: true},
		{name: "OR none hold", logic: types.LogicOr, conds: []types.Condition{cronico}, want: false},
		{name: "default logic is AND", logic: "", conds: []types.Condition{reembolso, cronico}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.Rule{Name: tt.name, LogicOperator: tt.logic, Conditions: tt.conds}
			compiled, err := Compile(rule)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := Evaluate(compiled, doc)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_ErrorPropagates(t *testing.T) {
	doc := types.NewDocument(mustDecode(t, reportDoc), "")
	rule := &types.Rule{
		Name:          "peso",
		LogicOperator: types.LogicAnd,
		Conditions: []types.Condition{
			{FieldPath: "padecimiento.tipo", Operator: types.OpGreaterThan, ComparisonValue: 3},
		},
	}
	compiled, err := Compile(rule)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	failed, err := Evaluate(compiled, doc)
	if !errors.Is(err, types.ErrCoercionFailed) {
		t.Fatalf("Evaluate() error = %v, want ErrCoercionFailed", err)
	}
	if failed {
		t.Errorf("Evaluate() failed = true on error")
	}
}

// Property-based test: absent fields satisfy only is_empty
func TestEvaluate_PropertyAbsentOnlyEmpty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	ops := []types.Operator{
		types.OpEquals, types.OpNotEquals, types.OpIsEmpty, types.OpIsNotEmpty,
		types.OpContains, types.OpNotContains, types.OpGreaterThan, types.OpGreaterOrEqual,
		types.OpLessThan, types.OpLessOrEqual, types.OpIn, types.OpStartsWith, types.OpEndsWith,
	}
	targets := []any{"x", 1, true, nil, []any{"x"}}

	properties.Property("absent satisfies only is_empty", prop.ForAll(
		func(opIdx int, targetIdx int) bool {
			op := ops[opIdx]
			got, err := Compare(op, Absent, targets[targetIdx])
			if err != nil {
				return false
			}
			return got == (op == types.OpIsEmpty)
		},
		gen.IntRange(0, len(ops)-1),
		gen.IntRange(0, len(targets)-1),
	))

	properties.TestingRun(t)
}
