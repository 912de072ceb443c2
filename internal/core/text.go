package core

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Fold strips accents, upper-cases and collapses whitespace so that
// "Categoría " and "CATEGORIA" compare equal. Punctuation is kept.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(out)
	out = whitespaceRegex.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// SameName reports whether two catalog names match after folding.
func SameName(a, b string) bool {
	fa := Fold(a)
	return fa != "" && fa == Fold(b)
}
