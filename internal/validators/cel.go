package validators

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/solatis/medaudit/internal/types"
)

// Cross-field checks that read more naturally as expressions than as Go.
// Expressions see the document tree as `doc` and evaluate to true when the
// rule failed.
const (
	hospitalRequiredExpr = `
		has(doc.tramite) &&
		((has(doc.tramite.programacion_cirugia) && doc.tramite.programacion_cirugia == true) ||
		 (has(doc.tramite.hospitalizacion) && doc.tramite.hospitalizacion == true) ||
		 (has(doc.tramite.reembolso) && doc.tramite.reembolso == true)) &&
		(!has(doc.hospital) ||
		 !has(doc.hospital.nombre_hospital) ||
		 doc.hospital.nombre_hospital == null ||
		 doc.hospital.nombre_hospital == "")`

	onsetBeforeDiagnosisExpr = `
		has(doc.padecimiento) &&
		has(doc.padecimiento.fecha_inicio) &&
		has(doc.padecimiento.fecha_diagnostico) &&
		type(doc.padecimiento.fecha_inicio) == string &&
		type(doc.padecimiento.fecha_diagnostico) == string &&
		doc.padecimiento.fecha_inicio != "" &&
		doc.padecimiento.fecha_diagnostico != "" &&
		timestamp(doc.padecimiento.fecha_diagnostico + "T00:00:00Z") <
			timestamp(doc.padecimiento.fecha_inicio + "T00:00:00Z")`
)

// celPredicate evaluates a compiled boolean CEL program.
type celPredicate struct {
	expr    string
	program cel.Program
}

// newCELPredicate compiles expr against the document environment. The
// expression must type-check to bool.
func newCELPredicate(expr string) (*celPredicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("validator expression must return bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &celPredicate{expr: expr, program: program}, nil
}

// mustCEL is newCELPredicate for package-level built-ins.
func mustCEL(expr string) Predicate {
	p, err := newCELPredicate(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Check evaluates the program. Wrong-typed values surface as errors.
func (p *celPredicate) Check(doc types.Document) (bool, error) {
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	out, _, err := p.program.Eval(map[string]any{"doc": data})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	failed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", out.Value())
	}
	return failed, nil
}
