// Package validators holds the closed set of built-in cross-field checks a
// rule can delegate to through its validatorKey.
//
// Every predicate reports true exactly when the rule it backs has failed.
// Predicates are pure and total over document shape: missing fields are a
// pass, never an error. An error return is reserved for values of the wrong
// type, and the scoring engine treats it as not failed.
package validators

import (
	"sort"

	"github.com/solatis/medaudit/internal/types"
)

// Predicate decides whether a document fails a rule.
type Predicate interface {
	Check(doc types.Document) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(doc types.Document) (bool, error)

// Check calls f(doc).
func (f PredicateFunc) Check(doc types.Document) (bool, error) {
	return f(doc)
}

// Registry maps validator keys to predicates. It is immutable after
// construction.
type Registry struct {
	preds map[string]Predicate
}

// Built-in validator keys.
const (
	KeySexoSeleccionUnica          = "sexo_seleccion_unica"
	KeyCausaAtencionSeleccionUnica = "causa_atencion_seleccion_unica"
	KeyTipoEstanciaSeleccionUnica  = "tipo_estancia_seleccion_unica"
	KeyFirmaCoincideMedico         = "firma_coincide_medico_tratante"
	KeyOtrosMedicosEspecialidad    = "otros_medicos_especialidad_requerida"
	KeyHospitalRequeridoPorTramite = "hospital_requerido_por_tramite"
	KeyFechasPadecimiento          = "fechas_padecimiento_consistentes"
)

var builtin = map[string]Predicate{
	KeySexoSeleccionUnica:          singleSelection("identificacion.sexo"),
	KeyCausaAtencionSeleccionUnica: singleSelection("causa_atencion"),
	KeyTipoEstanciaSeleccionUnica:  singleSelection("hospital.tipo_estancia"),
	KeyFirmaCoincideMedico:         PredicateFunc(signerMatchesAttending),
	KeyOtrosMedicosEspecialidad:    PredicateFunc(coPhysiciansHaveSpecialty),
	KeyHospitalRequeridoPorTramite: mustCEL(hospitalRequiredExpr),
	KeyFechasPadecimiento:          mustCEL(onsetBeforeDiagnosisExpr),
}

// Default returns the registry of built-in validators.
func Default() *Registry {
	return &Registry{preds: builtin}
}

// NewRegistry builds a registry from an explicit map. Used by tests and by
// callers composing a subset of the built-ins.
func NewRegistry(preds map[string]Predicate) *Registry {
	m := make(map[string]Predicate, len(preds))
	for k, p := range preds {
		m[k] = p
	}
	return &Registry{preds: m}
}

// Lookup returns the predicate for key.
func (r *Registry) Lookup(key string) (Predicate, bool) {
	if r == nil || key == "" {
		return nil, false
	}
	p, ok := r.preds[key]
	return p, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.preds))
	for k := range r.preds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
