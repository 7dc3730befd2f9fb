// Package title extracts structured signals from noisy marketplace listing
// titles: lot detection, price parsing, language hint, set code, local card
// number, and grading bucket (spec.md §4.7). Regexes are compiled once at
// package init, matching the teacher's internal/ebay/ebay.go gradedPattern
// idiom.
package title

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/guarzo/pkmcatalog/internal/model"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
)

var (
	lotPattern = regexp.MustCompile(`\b(lot|bundle|playset|choose|seleziona)\b|\b\d+\s*(cards|carte)\b`)

	priceStripDots  = regexp.MustCompile(`\.`)
	priceValuePattern = regexp.MustCompile(`(?i)(\d+,\d{1,2}|\d+)(?:\s*€|\s*eur)`)

	setCodePattern = regexp.MustCompile(`(?i)\b(sv\d{1,2}[a-z]?|m[a-z]{1,3})\b`)

	fractionPattern    = regexp.MustCompile(`\b(\d{1,3})/\d{1,3}\b`)
	promoSerialPattern = regexp.MustCompile(`\b[A-Z]{1,4}\d{1,4}\b`)
	gradeStripPattern  = regexp.MustCompile(`(?i)graad\s*\d{1,2}(?:[.,]5)?`)
	bareNumberPattern  = regexp.MustCompile(`\b#?\s*(\d{2,3})\b`)

	gradePattern = regexp.MustCompile(`(?i)graad\s*(\d{1,2}(?:[.,]5)?)`)

	jaAliasPattern = regexp.MustCompile(`(?i)\b(jap|jpn|jp|giapponese)\b`)
	enAliasPattern = regexp.MustCompile(`(?i)\b(eng|en|english|inglese)\b`)
)

// IsLikelyLot reports whether the title is likely a lot/bundle listing
// rather than a single card, per §4.7.
func IsLikelyLot(rawTitle string) bool {
	return lotPattern.MatchString(textnorm.Normalize(rawTitle))
}

// ParseEurPrice extracts a euro price from free text, or returns ok=false
// if none is found. Dots (thousand separators) are stripped before
// matching; a matched comma decimal separator is converted to a dot.
func ParseEurPrice(text string) (float64, bool) {
	stripped := priceStripDots.ReplaceAllString(text, "")
	m := priceValuePattern.FindStringSubmatch(stripped)
	if m == nil {
		return 0, false
	}
	numeric := strings.ReplaceAll(m[1], ",", ".")
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// DetectLanguage returns "ja", "en", or "" per the alias regexes from §4.1.
func DetectLanguage(rawTitle string) string {
	n := textnorm.Normalize(rawTitle)
	if jaAliasPattern.MatchString(n) {
		return "ja"
	}
	if enAliasPattern.MatchString(n) {
		return "en"
	}
	return ""
}

// ExtractSetCode returns the first matched set-code token, or "" if none.
func ExtractSetCode(rawTitle string) string {
	m := setCodePattern.FindString(rawTitle)
	return strings.ToLower(m)
}

// ExtractLocalID applies the ordered rules from §4.7: a "n/total" fraction's
// numerator, then a promo/serial token, then a bare 2-3 digit number found
// after stripping any grade token. Returns "" if none apply.
func ExtractLocalID(rawTitle string) string {
	if m := fractionPattern.FindStringSubmatch(rawTitle); m != nil {
		return m[1]
	}
	// A promo/serial token immediately followed by a decimal point (e.g.
	// the "SV3" in "SV3.5") is a set-code fragment, not a promo serial —
	// skip those candidates.
	for _, loc := range promoSerialPattern.FindAllStringIndex(rawTitle, -1) {
		end := loc[1]
		if end < len(rawTitle) && rawTitle[end] == '.' {
			continue
		}
		return rawTitle[loc[0]:end]
	}
	stripped := gradeStripPattern.ReplaceAllString(rawTitle, "")
	if m := bareNumberPattern.FindStringSubmatch(stripped); m != nil {
		return m[1]
	}
	return ""
}

// DetectGradingBucket returns "" if the title carries no "graad" token,
// model.BucketUnknown for a graad token that doesn't parse to a known
// grade, or the exact/rounded bucket per §4.7's half-open interval rule.
// Monotone in grade: a higher parsed grade never yields a lower bucket.
func DetectGradingBucket(rawTitle string) model.Bucket {
	m := gradePattern.FindStringSubmatch(rawTitle)
	if m == nil {
		return ""
	}
	numeric := strings.ReplaceAll(m[1], ",", ".")
	grade, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return model.BucketUnknown
	}

	switch {
	case grade == 7:
		return model.BucketGraad7
	case grade == 8:
		return model.BucketGraad8
	case grade == 9:
		return model.BucketGraad9
	case grade == 9.5:
		return model.BucketGraad95
	case grade == 10:
		return model.BucketGraad10
	case grade > 7 && grade < 8:
		return model.BucketGraad7
	case grade > 8 && grade < 9:
		return model.BucketGraad8
	case grade > 9 && grade < 9.5:
		return model.BucketGraad9
	default:
		return model.BucketUnknown
	}
}
