// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/medaudit/internal/types"
)

/*
 * Field path parsing and resolution for extracted documents.
 *
 * Paths are dotted key chains with optional bracketed array indexes:
 * "identificacion.sexo", "otros_medicos[0].especialidad", "a[1][2]".
 * Enforces MaxPathDepth (16) at parse time.
 *
 * Key functions:
 *   - ParsePath: string path -> PathSegment chain
 *   - Resolve: traverses a document following a PathSegment chain
 *   - ResolvePath: parse + resolve; malformed paths resolve to Absent
 *
 * Resolution is total: a missing key, an index into a non-array, a key
 * into a non-object or an out-of-range index all yield Absent.
 */

// ParsePath splits a field path into segments. Returns ErrInvalidPath for
// empty names, unbalanced brackets or non-numeric indexes, and
// ErrPathTooDeep when the segment count exceeds MaxPathDepth.
func ParsePath(path string) ([]types.PathSegment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, types.ErrInvalidPath
	}

	var segs []types.PathSegment
	for _, part := range strings.Split(path, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name == "" || strings.ContainsRune(name, ']') {
			return nil, types.ErrInvalidPath
		}
		segs = append(segs, types.PathSegment{Key: name})

		if len(part) > len(name) {
			idxs, err := parseIndexes("[" + rest)
			if err != nil {
				return nil, err
			}
			segs = append(segs, idxs...)
		}

		if len(segs) > types.MaxPathDepth {
			return nil, types.ErrPathTooDeep
		}
	}
	return segs, nil
}

// parseIndexes parses a run of "[n]" groups.
func parseIndexes(s string) ([]types.PathSegment, error) {
	var segs []types.PathSegment
	for s != "" {
		if s[0] != '[' {
			return nil, types.ErrInvalidPath
		}
		end := strings.IndexByte(s, ']')
		if end < 2 {
			return nil, types.ErrInvalidPath
		}
		n, err := strconv.Atoi(s[1:end])
		if err != nil || n < 0 {
			return nil, types.ErrInvalidPath
		}
		segs = append(segs, types.PathSegment{Index: n, IsIndex: true})
		s = s[end+1:]
	}
	return segs, nil
}

// Resolve traverses data following path. Never panics; any step that
// cannot be taken yields Absent.
func Resolve(data map[string]any, path []types.PathSegment) Value {
	if len(path) == 0 || len(path) > types.MaxPathDepth {
		return Absent
	}

	var current any = data
	for _, seg := range path {
		switch v := current.(type) {
		case map[string]any:
			if seg.IsIndex {
				return Absent
			}
			next, ok := v[seg.Key]
			if !ok {
				return Absent
			}
			current = next
		case []any:
			if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(v) {
				return Absent
			}
			current = v[seg.Index]
		default:
			return Absent
		}
	}
	return ValueOf(current)
}

// ResolvePath parses and resolves path in one step. Validators use it with
// constant paths; a malformed path resolves to Absent.
func ResolvePath(data map[string]any, path string) Value {
	segs, err := ParsePath(path)
	if err != nil {
		return Absent
	}
	return Resolve(data, segs)
}
