// Package match matches a parsed marketplace title against the catalog,
// producing a best candidate and confidence score (spec.md §4.8). Matching
// is deliberately limited to normalized substring containment (the source
// spec's Non-goals exclude fuzzy/approximate matching); weighting and
// tie-break structure are grounded on the teacher's
// internal/prices/match_confidence.go weighted scorer.
package match

import (
	"strings"

	"github.com/guarzo/pkmcatalog/internal/model"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
)

// Threshold is the acceptance confidence for downstream use (§4.8).
const Threshold = 0.72

// Mode identifies which matching pass produced a Result.
type Mode string

const (
	ModeNameOnly Mode = "name_only"
	ModeStrict   Mode = "strict"
	ModeLoose    Mode = "loose"
)

// Query is the set of signals the title parser extracted from a listing.
type Query struct {
	NormalizedTitle string
	Language        string // "ja", "en", or ""
	SetCode         string
	LocalID         string // "" if not extracted
}

// Result is the outcome of matching a Query against the catalog.
type Result struct {
	Card       *model.Card
	Confidence float64
	Mode       Mode
}

// Match runs the matcher against candidates. Callers are expected to have
// already rejected lots (§4.7 IsLikelyLot) before calling.
func Match(q Query, candidates []model.Card) Result {
	if q.LocalID == "" {
		return matchNameOnly(q, candidates)
	}

	if r, ok := matchStrict(q, candidates); ok {
		return r
	}
	return matchLoose(q, candidates)
}

func languageMatches(q Query, c model.Card) bool {
	if q.Language == "" {
		return true
	}
	return string(c.PrintingLang) == q.Language
}

func titleContainsName(normalizedTitle string, c model.Card) bool {
	if c.Name != "" && strings.Contains(normalizedTitle, textnorm.Normalize(c.Name)) {
		return true
	}
	if c.NameEn != "" && strings.Contains(normalizedTitle, textnorm.Normalize(c.NameEn)) {
		return true
	}
	return false
}

// matchNameOnly implements §4.8's name-only mode: language, optional setId
// equality, substring containment. Base 0.72, +0.05 set, +0.03 language,
// cap 0.82.
func matchNameOnly(q Query, candidates []model.Card) Result {
	var best *model.Card
	var bestScore float64

	for i := range candidates {
		c := &candidates[i]
		if !languageMatches(q, *c) {
			continue
		}
		if !titleContainsName(q.NormalizedTitle, *c) {
			continue
		}

		score := 0.72
		if q.SetCode != "" && strings.EqualFold(c.SetID, q.SetCode) {
			score += 0.05
		}
		if q.Language != "" {
			score += 0.03
		}
		if score > 0.82 {
			score = 0.82
		}

		if betterCandidate(score, c, bestScore, best) {
			bestScore = score
			best = c
		}
	}

	if best == nil {
		return Result{}
	}
	return Result{Card: best, Confidence: bestScore, Mode: ModeNameOnly}
}

// matchStrict implements pass 1 (§4.8): exact language, normalized set-id
// equality (if extracted), normalized number equality, and containment.
// Base 0.86, +0.04 language, cap 1.0.
func matchStrict(q Query, candidates []model.Card) (Result, bool) {
	var best *model.Card
	var bestScore float64

	for i := range candidates {
		c := &candidates[i]
		if !languageMatches(q, *c) {
			continue
		}
		if q.SetCode != "" && !strings.EqualFold(c.SetID, q.SetCode) {
			continue
		}
		if !strings.EqualFold(strings.TrimLeft(c.Number, "0"), strings.TrimLeft(q.LocalID, "0")) {
			continue
		}
		if !titleContainsName(q.NormalizedTitle, *c) {
			continue
		}

		score := 0.86
		if q.Language != "" {
			score += 0.04
		}
		if score > 1.0 {
			score = 1.0
		}

		if betterCandidate(score, c, bestScore, best) {
			bestScore = score
			best = c
		}
	}

	if best == nil {
		return Result{}, false
	}
	return Result{Card: best, Confidence: bestScore, Mode: ModeStrict}, true
}

// matchLoose implements pass 2 (§4.8): drop set-code equality, prefer
// family (first two chars of the extracted set code) tie-break among
// survivors. Base 0.80, +0.05 language, cap 0.90.
func matchLoose(q Query, candidates []model.Card) Result {
	var family string
	if len(q.SetCode) >= 2 {
		family = strings.ToLower(q.SetCode[:2])
	}

	var best *model.Card
	var bestScore float64
	var bestIsFamily bool

	for i := range candidates {
		c := &candidates[i]
		if !languageMatches(q, *c) {
			continue
		}
		if !strings.EqualFold(strings.TrimLeft(c.Number, "0"), strings.TrimLeft(q.LocalID, "0")) {
			continue
		}
		if !titleContainsName(q.NormalizedTitle, *c) {
			continue
		}

		score := 0.80
		if q.Language != "" {
			score += 0.05
		}
		if score > 0.90 {
			score = 0.90
		}

		isFamily := family != "" && strings.HasPrefix(strings.ToLower(c.SetID), family)

		if best == nil {
			best, bestScore, bestIsFamily = c, score, isFamily
			continue
		}
		// Family membership is the primary tie-break within this pass,
		// then the shared image-preference rule.
		if isFamily && !bestIsFamily {
			best, bestScore, bestIsFamily = c, score, isFamily
			continue
		}
		if isFamily == bestIsFamily && betterCandidate(score, c, bestScore, best) {
			best, bestScore, bestIsFamily = c, score, isFamily
		}
	}

	if best == nil {
		return Result{}
	}
	return Result{Card: best, Confidence: bestScore, Mode: ModeLoose}
}

// betterCandidate breaks ties within a pass toward the candidate with a
// non-empty imageLarge (§4.8).
func betterCandidate(score float64, c *model.Card, bestScore float64, best *model.Card) bool {
	if best == nil {
		return true
	}
	if score > bestScore {
		return true
	}
	if score == bestScore && best.ImageLarge == "" && c.ImageLarge != "" {
		return true
	}
	return false
}
