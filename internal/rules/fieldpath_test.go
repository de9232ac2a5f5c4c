package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/medaudit/internal/types"
)

func mustDecode(t *testing.T, data string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []types.PathSegment
		wantErr error
	}{
		{
			name: "single key",
			path: "provider",
			want: []types.PathSegment{{Key: "provider"}},
		},
		{
			name: "nested keys",
			path: "identificacion.sexo",
			want: []types.PathSegment{{Key: "identificacion"}, {Key: "sexo"}},
		},
		{
			name: "array index",
			path: "otros_medicos[0].especialidad",
			want: []types.PathSegment{{Key: "otros_medicos"}, {Index: 0, IsIndex: true}, {Key: "especialidad"}},
		},
		{
			name: "consecutive indexes",
			path: "a[1][2]",
			want: []types.PathSegment{{Key: "a"}, {Index: 1, IsIndex: true}, {Index: 2, IsIndex: true}},
		},
		{name: "empty path", path: "", wantErr: types.ErrInvalidPath},
		{name: "double dot", path: "a..b", wantErr: types.ErrInvalidPath},
		{name: "trailing dot", path: "a.", wantErr: types.ErrInvalidPath},
		{name: "leading index", path: "[0].a", wantErr: types.ErrInvalidPath},
		{name: "empty brackets", path: "a[]", wantErr: types.ErrInvalidPath},
		{name: "non-numeric index", path: "a[x]", wantErr: types.ErrInvalidPath},
		{name: "negative index", path: "a[-1]", wantErr: types.ErrInvalidPath},
		{name: "unclosed bracket", path: "a[0", wantErr: types.ErrInvalidPath},
		{name: "text after index", path: "a[0]b", wantErr: types.ErrInvalidPath},
		{name: "stray close bracket", path: "a]", wantErr: types.ErrInvalidPath},
		{
			name:    "too deep",
			path:    strings.TrimSuffix(strings.Repeat("a.", types.MaxPathDepth+1), "."),
			wantErr: types.ErrPathTooDeep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParsePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParsePath() len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParsePath()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolve_Normal(t *testing.T) {
	doc := `{
		"provider": "GNP",
		"identificacion": {"sexo": ["M", "F"], "edad": 42},
		"otros_medicos": [{"nombre": "Ana", "especialidad": "Cardiologia"}, {"nombre": "Luis"}],
		"matriz": [[1, 2], [3, 4]],
		"hospital": {"nombre_hospital": null}
	}`

	tests := []struct {
		name     string
		path     string
		wantKind Kind
		want     any
	}{
		{name: "top-level string", path: "provider", wantKind: KindString, want: "GNP"},
		{name: "nested number", path: "identificacion.edad", wantKind: KindNumber, want: float64(42)},
		{name: "nested array", path: "identificacion.sexo", wantKind: KindArray},
		{name: "array element", path: "identificacion.sexo[1]", wantKind: KindString, want: "F"},
		{name: "object in array", path: "otros_medicos[0].especialidad", wantKind: KindString, want: "Cardiologia"},
		{name: "nested indexes", path: "matriz[1][0]", wantKind: KindNumber, want: float64(3)},
		{name: "explicit null", path: "hospital.nombre_hospital", wantKind: KindNull},
		{name: "object", path: "hospital", wantKind: KindObject},
	}

	data := mustDecode(t, doc)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePath(data, tt.path)
			if got.Kind() != tt.wantKind {
				t.Fatalf("ResolvePath(%q) kind = %v, want %v", tt.path, got.Kind(), tt.wantKind)
			}
			if tt.want != nil && got.Raw() != tt.want {
				t.Errorf("ResolvePath(%q) = %v, want %v", tt.path, got.Raw(), tt.want)
			}
		})
	}
}

func TestResolve_Absent(t *testing.T) {
	data := mustDecode(t, `{"a": {"b": "x"}, "arr": [1, 2], "n": null, "s": "text"}`)

	paths := []string{
		"missing",
		"a.missing",
		"a.b.c",        // key into scalar
		"arr[2]",       // out of range
		"arr.key",      // key into array
		"a[0]",         // index into object
		"n.child",      // through null
		"s[0]",         // index into string
		"otros[0].x",   // missing array
		"a..b",         // malformed
		"arr[99][0].x", // deep out of range
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			if got := ResolvePath(data, p); !got.IsAbsent() {
				t.Errorf("ResolvePath(%q) = %v (%v), want Absent", p, got.Raw(), got.Kind())
			}
		})
	}
}

func TestResolve_NilDocument(t *testing.T) {
	if got := ResolvePath(nil, "a.b"); !got.IsAbsent() {
		t.Errorf("ResolvePath(nil) kind = %v, want Absent", got.Kind())
	}
}

func TestValue_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  bool
	}{
		{"absent", Absent, true},
		{"null", ValueOf(nil), true},
		{"empty string", ValueOf(""), true},
		{"blank string", ValueOf("   "), true},
		{"empty array", ValueOf([]any{}), true},
		{"empty object", ValueOf(map[string]any{}), true},
		{"text", ValueOf("x"), false},
		{"zero", ValueOf(0), false},
		{"false", ValueOf(false), false},
		{"array", ValueOf([]any{"M"}), false},
		{"string slice", ValueOf([]string{"M"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Property-based test: resolution is total
func TestResolve_PropertyNoPanic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	shapes := []string{
		`{}`,
		`{"a": null}`,
		`{"a": []}`,
		`{"a": [1, {"b": [null, "x"]}]}`,
		`{"a": {"b": {"c": "deep"}}}`,
		`{"a": "scalar"}`,
	}

	properties.Property("resolution never panics regardless of input", prop.ForAll(
		func(shape int, depth int, index int, useIndex bool) bool {
			data := mustDecode(t, shapes[shape])

			var sb strings.Builder
			sb.WriteString("a")
			for i := 0; i < depth; i++ {
				if useIndex && i%2 == 0 {
					fmt.Fprintf(&sb, "[%d]", index)
				} else {
					sb.WriteString(".b")
				}
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("ResolvePath(%s) panicked: %v", sb.String(), r)
				}
			}()

			_ = ResolvePath(data, sb.String())
			return true
		},
		gen.IntRange(0, len(shapes)-1),
		gen.IntRange(0, 20),
		gen.IntRange(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: in-range indexes resolve, out-of-range are Absent
func TestResolve_PropertyIndexBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("index resolves iff within bounds", prop.ForAll(
		func(length int, index int) bool {
			arr := make([]any, length)
			for i := range arr {
				arr[i] = float64(i)
			}
			data := map[string]any{"items": arr}

			got := ResolvePath(data, fmt.Sprintf("items[%d]", index))
			if index < length {
				return got.Kind() == KindNumber && got.Raw() == float64(index)
			}
			return got.IsAbsent()
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
