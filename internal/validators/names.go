package validators

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/solatis/medaudit/internal/rules"
	"github.com/solatis/medaudit/internal/types"
)

const (
	signerPath    = "firma.nombre_medico"
	attendingPath = "medico_tratante.nombre"

	// tokenSimilarity is the minimum per-token similarity for two name parts
	// to be considered the same word despite OCR noise.
	tokenSimilarity = 0.8

	// wholeNameSimilarity catches merged or split tokens ("Mariajose").
	wholeNameSimilarity = 0.85
)

// honorifics are dropped before comparing names.
var honorifics = map[string]bool{
	"dr": true, "dra": true, "doctor": true, "doctora": true,
	"med": true, "medico": true, "md": true, "lic": true, "cirujano": true,
}

// signerMatchesAttending fails when both the signer and the attending
// physician are present and their names do not match.
func signerMatchesAttending(doc types.Document) (bool, error) {
	signer, ok1 := rules.ResolvePath(doc.Data, signerPath).Text()
	attending, ok2 := rules.ResolvePath(doc.Data, attendingPath).Text()
	if !ok1 || !ok2 || strings.TrimSpace(signer) == "" || strings.TrimSpace(attending) == "" {
		return false, nil
	}
	return !NamesMatch(signer, attending), nil
}

// NamesMatch reports whether two person names plausibly refer to the same
// physician: accents, case, punctuation and honorifics are ignored, a
// shorter name may omit parts of a longer one, single letters match as
// initials, and individual parts tolerate small spelling differences.
func NamesMatch(a, b string) bool {
	ta, tb := nameTokens(a), nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}
	if similarity(strings.Join(ta, ""), strings.Join(tb, "")) >= wholeNameSimilarity {
		return true
	}

	small, large := ta, tb
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(small) < 2 && len(small) != len(large) {
		return false
	}

	used := make([]bool, len(large))
	for _, s := range small {
		found := false
		for i, l := range large {
			if !used[i] && tokensMatch(s, l) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// nameTokens folds accents, lower-cases and splits on non-letters.
func nameTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(foldAccents(s)), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !honorifics[f] {
			out = append(out, f)
		}
	}
	return out
}

// foldAccents strips combining marks: "Muñoz Pérez" -> "Munoz Perez".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 1 || len(rb) == 1 {
		return ra[0] == rb[0]
	}
	return similarity(a, b) >= tokenSimilarity
}

// similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), over runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
