// Package textnorm canonicalizes free text into the lowercased,
// diacritic-stripped, whitespace-collapsed form used throughout the catalog
// as a matching substrate and key generator. Grounded on the teacher's
// internal/prices/query_builder.go normalizeSetName/normalizeCardName and
// internal/analysis/sanitize.go, but generalized to use real Unicode
// canonical decomposition (golang.org/x/text) instead of ad hoc ToLower —
// the source card names include accented Spanish/French text (e.g. "Flabébé")
// that a plain strings.ToLower pass would not fold onto its ASCII form.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// stripMarks removes Unicode combining marks after NFD decomposition,
// folding e.g. "é" -> "e".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s, decomposes and strips diacritics, collapses
// whitespace runs to a single space, and trims. Empty/blank input yields "".
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	lowered := strings.ToLower(s)
	stripped, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		stripped = lowered
	}
	collapsed := whitespaceRun.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapsed)
}

// languageAliases maps free-text language tokens to their short form.
// Order doesn't matter; each alias is matched as a whole word.
var languageAliases = map[string]string{
	"jap":      "ja",
	"jpn":      "ja",
	"jp":       "ja",
	"giapponese": "ja",
	"eng":      "en",
	"en":       "en",
	"english":  "en",
	"inglese":  "en",
}

var wordBoundary = regexp.MustCompile(`\S+`)

// NormalizeQuery applies Normalize and then rewrites recognized language
// alias tokens to their short form ("jap" -> "ja", "english" -> "en"),
// surrounded by spaces, before re-collapsing whitespace. Intended for
// user-supplied search/query text (marketplace titles, search boxes) where
// the language hint needs to be pulled out as a discrete token.
func NormalizeQuery(s string) string {
	n := Normalize(s)
	if n == "" {
		return ""
	}
	rewritten := wordBoundary.ReplaceAllStringFunc(n, func(tok string) string {
		if alias, ok := languageAliases[tok]; ok {
			return alias
		}
		return tok
	})
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(rewritten, " "))
}
