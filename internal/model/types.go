// Package model holds the catalog's core domain types: cards, sales, and
// price aggregates. Card and Sale carry Validate methods that check the
// per-record invariants documented in the data model; callers run them.
package model

import (
	"fmt"
	"math"
	"time"
)

// PrintingLang is the language of a physical card printing.
type PrintingLang string

const (
	LangEN PrintingLang = "en"
	LangJA PrintingLang = "ja"
)

func (l PrintingLang) Valid() bool {
	return l == LangEN || l == LangJA
}

// Bucket is a grading bucket for a sold listing.
type Bucket string

const (
	BucketRaw     Bucket = "raw"
	BucketGraad7  Bucket = "graad_7"
	BucketGraad8  Bucket = "graad_8"
	BucketGraad9  Bucket = "graad_9"
	BucketGraad95 Bucket = "graad_9_5"
	BucketGraad10 Bucket = "graad_10"
	BucketUnknown Bucket = "graad_unknown" // transient, never persisted
)

// CanonicalBuckets are the six bucket keys ever emitted for a card.
var CanonicalBuckets = []Bucket{BucketRaw, BucketGraad7, BucketGraad8, BucketGraad9, BucketGraad95, BucketGraad10}

// Card is the canonical, one-per-printing catalog record.
type Card struct {
	ID           string       `json:"id"`
	CardKey      string       `json:"cardKey"`
	SetID        string       `json:"setId"`
	SetName      string       `json:"setName"`
	Number       string       `json:"number"`
	NumberFull   string       `json:"numberFull,omitempty"`
	PrintingLang PrintingLang `json:"lang"`
	Name         string       `json:"name"`
	NameEn       string       `json:"nameEn,omitempty"`
	NameJa       string       `json:"nameJa,omitempty"`
	PokemonKey   string       `json:"pokemonKey,omitempty"`
	Rarity       string       `json:"rarity,omitempty"`
	Features     []string     `json:"features,omitempty"`
	ImageLarge   string       `json:"imageLarge,omitempty"`
}

// Validate checks the Card invariants from the data model (§3(a)).
func (c Card) Validate() error {
	if c.SetID == "" {
		return fmt.Errorf("model: card %q: empty setId", c.ID)
	}
	if c.Number == "" {
		return fmt.Errorf("model: card %q: empty number", c.ID)
	}
	if !c.PrintingLang.Valid() {
		return fmt.Errorf("model: card %q: invalid printingLang %q", c.ID, c.PrintingLang)
	}
	if c.Name == "" {
		return fmt.Errorf("model: card %q: empty name", c.ID)
	}
	if c.NameEn != "" && c.PokemonKey == "" {
		return fmt.Errorf("model: card %q: nameEn set without pokemonKey", c.ID)
	}
	return nil
}

// BuildCardKey computes the internal join key {setId}|{number}|{printingLang}.
func BuildCardKey(setID, number string, lang PrintingLang) string {
	return setID + "|" + number + "|" + string(lang)
}

// BuildCardID computes the deterministic id {setId}-{number}-{normalized-preferred-name}-{printingLang}.
// preferredName should already be normalized (see internal/textnorm) by the caller so the id
// stays stable across runs even when the display name is in the printing language.
func BuildCardID(setID, number, normalizedPreferredName string, lang PrintingLang) string {
	return fmt.Sprintf("%s-%s-%s-%s", setID, number, normalizedPreferredName, lang)
}

// Sale is an observed marketplace listing, classified into a grading bucket
// and matched to a Card.
type Sale struct {
	CollectedAt time.Time `json:"collectedAt"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PriceEur    float64   `json:"priceEur"`
	CardID      string    `json:"cardId"`
	Bucket      Bucket    `json:"bucket"`
}

// Validate checks the Sale invariants (a)/(b) from §3. Invariant (c), the
// dedup key uniqueness within the window, is enforced by the rolling-window
// store, not by an individual Sale.
func (s Sale) Validate() error {
	if s.CardID == "" {
		return fmt.Errorf("model: sale %q: empty cardId", s.URL)
	}
	if math.IsNaN(s.PriceEur) || math.IsInf(s.PriceEur, 0) {
		return fmt.Errorf("model: sale %q: non-finite priceEur", s.URL)
	}
	if s.PriceEur <= 0 {
		return fmt.Errorf("model: sale %q: non-positive priceEur %v", s.URL, s.PriceEur)
	}
	return nil
}

// DedupKey returns the composite key used to deduplicate sales across runs
// within the rolling window: (url, priceEur, cardId, bucket).
func (s Sale) DedupKey() string {
	return fmt.Sprintf("%s|%.2f|%s|%s", s.URL, s.PriceEur, s.CardID, s.Bucket)
}

// PriceAggregate is the median price and sample count for one (card, bucket) pair.
type PriceAggregate struct {
	MedianEur *float64 `json:"median_eur"`
	N         int      `json:"n"`
}
