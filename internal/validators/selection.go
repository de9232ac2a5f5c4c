package validators

import (
	"strings"

	"github.com/solatis/medaudit/internal/rules"
	"github.com/solatis/medaudit/internal/types"
)

// singleSelection fails when more than one option is marked at path.
// Extractors emit multi-choice boxes either as an array of chosen labels or
// as an object of label -> checked.
func singleSelection(path string) Predicate {
	return PredicateFunc(func(doc types.Document) (bool, error) {
		return countSelected(rules.ResolvePath(doc.Data, path)) > 1, nil
	})
}

// countSelected counts marked options in an array or checkbox object.
// A scalar counts as one selection when non-empty.
func countSelected(v rules.Value) int {
	switch v.Kind() {
	case rules.KindArray:
		arr, _ := v.Array()
		n := 0
		for _, elem := range arr {
			if isMarked(rules.ValueOf(elem)) {
				n++
			}
		}
		return n
	case rules.KindObject:
		obj, _ := v.Object()
		n := 0
		for _, val := range obj {
			if isMarked(rules.ValueOf(val)) {
				n++
			}
		}
		return n
	default:
		if v.IsEmpty() {
			return 0
		}
		return 1
	}
}

// isMarked reports whether a checkbox value is selected.
func isMarked(v rules.Value) bool {
	switch v.Kind() {
	case rules.KindBool:
		return v.Raw().(bool)
	case rules.KindString:
		s := strings.ToLower(strings.TrimSpace(v.Raw().(string)))
		return s != "" && s != "no" && s != "false"
	case rules.KindNumber:
		return v.Raw().(float64) != 0
	default:
		return !v.IsEmpty()
	}
}

// coPhysiciansHaveSpecialty fails when any listed co-physician has a name
// but no specialty.
func coPhysiciansHaveSpecialty(doc types.Document) (bool, error) {
	arr, ok := rules.ResolvePath(doc.Data, "otros_medicos").Array()
	if !ok {
		return false, nil
	}
	for _, elem := range arr {
		entry, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		if !rules.ValueOf(entry["nombre"]).IsEmpty() && rules.ValueOf(entry["especialidad"]).IsEmpty() {
			return true, nil
		}
	}
	return false, nil
}
