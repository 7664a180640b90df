// Package normalize folds payer and owner names into a canonical form
// for comparison.
//
// Bank notifications upper-case and strip accents from payer names
// ("STEVEN BELANGER") while passport owners keep theirs
// ("Steven Bélanger"); both must normalize to the same key before any
// fuzzy scoring happens.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes to NFD, drops combining marks, and recomposes.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Name returns the canonical comparison key for a person name:
// accent-folded, lower-cased, with every run of non-alphanumeric
// characters collapsed to a single space. Idempotent.
func Name(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		// Malformed input falls back to the raw string; the scorer
		// still gets lowercase/collapse treatment.
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		} else {
			pendingSpace = true
		}
	}
	return b.String()
}
