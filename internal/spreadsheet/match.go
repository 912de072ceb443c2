package spreadsheet

import (
	"strings"

	"github.com/schollz/closestmatch"

	"remesas/internal/core"
)

// NameMatcher resolves free-text names from a sheet ("ACEROS DEL NORTE SA")
// to catalog names ("Aceros del Norte, S.A."). Exact folded matches win.
// Otherwise the closest candidate is accepted only when every significant
// word on each side has a near spelling on the other, so "Concretos
// Monterey" finds "Concretos Monterrey" but "Juan Pérez" never becomes
// "Juan López".
type NameMatcher struct {
	byKey map[string]string
	cm    *closestmatch.ClosestMatch
}

// NewNameMatcher indexes the given catalog names.
func NewNameMatcher(names []string) *NameMatcher {
	m := &NameMatcher{byKey: map[string]string{}}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		k := matchKey(n)
		if k == "" {
			continue
		}
		if _, dup := m.byKey[k]; dup {
			continue
		}
		m.byKey[k] = n
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		m.cm = closestmatch.New(keys, []int{2, 3})
	}
	return m
}

// Match returns the catalog name for name, if any.
func (m *NameMatcher) Match(name string) (string, bool) {
	key := matchKey(name)
	if key == "" || m == nil {
		return "", false
	}
	if n, ok := m.byKey[key]; ok {
		return n, true
	}
	if m.cm == nil {
		return "", false
	}
	candidate := m.cm.Closest(key)
	if candidate == "" || !closeWords(key, candidate) || !closeWords(candidate, key) {
		return "", false
	}
	n, ok := m.byKey[candidate]
	return n, ok
}

// Legal-form words dropped from the end of a name.
var legalSuffixes = map[string]bool{
	"sa": true, "de": true, "cv": true, "rl": true, "sc": true,
	"sapi": true, "srl": true, "sas": true, "ac": true,
}

// matchKey folds a name to lower case, drops punctuation and trailing legal
// forms, so "Aceros del Norte, S.A. de C.V." and "ACEROS DEL NORTE SA DE CV"
// share a key. Keys are lower case because closestmatch indexes lower case.
func matchKey(s string) string {
	s = strings.ReplaceAll(core.Fold(s), ".", "")
	s = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' {
			return r
		}
		return ' '
	}, s)
	words := strings.Fields(strings.ToLower(s))
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// significant drops short words ("de", "la", "y").
func significant(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len(w) >= 3 && !legalSuffixes[w] {
			out = append(out, w)
		}
	}
	return out
}

// closeWords reports whether every significant word of a is within typo
// distance of some word of b.
func closeWords(a, b string) bool {
	words := significant(a)
	if len(words) == 0 {
		return false
	}
	others := strings.Fields(b)
	for _, w := range words {
		found := false
		for _, o := range others {
			if editDistance(w, o) <= typoBudget(w) {
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

// typoBudget is one edit for words up to six letters, two beyond.
func typoBudget(w string) int {
	if len(w) <= 6 {
		return 1
	}
	return 2
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
