// Package catalog builds the unified EN/JA card catalog: three source
// adapters produce partial records keyed by (setId, localId), which the
// Reconciler merges, enriches, and explodes into the final Card sequence
// (spec.md §4.4-4.6). Grounded on the teacher's internal/fusion package for
// the merge/enrichment shape and internal/cards + internal/population for
// the adapter shapes.
package catalog

import "github.com/guarzo/pkmcatalog/internal/model"

// PartialRecord accumulates everything the adapters have learned about one
// (setId, localId) pair before the Reconciler explodes it into Cards. Unlike
// model.Card, fields here may legitimately be empty pending enrichment.
type PartialRecord struct {
	SetID      string
	SetName    string
	Number     string
	NumberFull string

	NameEn string
	NameJa string
	// PlaceholderJa is set when NameJa holds romanized text retained as a
	// placeholder rather than genuine Japanese script (§4.4.3 step 3).
	PlaceholderJa bool

	DexID      int
	HasDexID   bool
	PokemonKey string

	Rarity     string
	Features   []string
	ImageLarge string

	// EnDetailURL/JaDetailURL let the Reconciler fetch a detail page only
	// when strictly needed for enrichment (§4.5 step 1/2).
	EnDetailURL string
	JaDetailURL string

	// FromJaIndex/FromEnIndex record which locale or index a record was
	// observed under; mergeCard ORs them together. The japaneseExclusiveSets
	// set is computed from set ids, not from these flags.
	FromJaIndex bool
	FromEnIndex bool
}

// RecordKey identifies a PartialRecord by (setId, localId).
type RecordKey struct {
	SetID string
	Local string
}

// aggregation is the working map the source adapters populate and the
// Reconciler consumes; keys are RecordKey, values are *PartialRecord so
// adapters can mutate a record in place as they learn more about it.
type aggregation = map[RecordKey]*PartialRecord

// SpeciesLookup abstracts the two on-disk caches from internal/cache the
// Reconciler and adapters use for cross-language species resolution
// (spec.md §4.3): dex id -> canonical English name, and Japanese name ->
// {dexId, enName, normalizedKey}.
type SpeciesLookup interface {
	EnglishNameForDex(dexID int) (string, error)
	SpeciesForJapaneseName(name string) (SpeciesEntry, bool, error)
}

// SpeciesEntry is one resolved species record.
type SpeciesEntry struct {
	DexID         int
	EnglishName   string
	NormalizedKey string
}

// mergeNonEmpty keeps a's non-empty value, otherwise takes b's — the
// "first-seen field precedence" rule from §4.4.1.
func mergeNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func mergeCard(dst *PartialRecord, src PartialRecord) {
	dst.SetName = mergeNonEmpty(dst.SetName, src.SetName)
	dst.NumberFull = mergeNonEmpty(dst.NumberFull, src.NumberFull)
	dst.NameEn = mergeNonEmpty(dst.NameEn, src.NameEn)
	if dst.NameJa == "" || (dst.PlaceholderJa && !src.PlaceholderJa && src.NameJa != "") {
		dst.NameJa = src.NameJa
		dst.PlaceholderJa = src.PlaceholderJa
	}
	if !dst.HasDexID && src.HasDexID {
		dst.DexID = src.DexID
		dst.HasDexID = true
	}
	dst.PokemonKey = mergeNonEmpty(dst.PokemonKey, src.PokemonKey)
	dst.Rarity = mergeNonEmpty(dst.Rarity, src.Rarity)
	if len(dst.Features) == 0 {
		dst.Features = src.Features
	}
	dst.ImageLarge = mergeNonEmpty(dst.ImageLarge, src.ImageLarge)
	dst.EnDetailURL = mergeNonEmpty(dst.EnDetailURL, src.EnDetailURL)
	dst.JaDetailURL = mergeNonEmpty(dst.JaDetailURL, src.JaDetailURL)
	dst.FromJaIndex = dst.FromJaIndex || src.FromJaIndex
	dst.FromEnIndex = dst.FromEnIndex || src.FromEnIndex
}

func upsert(agg aggregation, key RecordKey, rec PartialRecord) {
	if existing, ok := agg[key]; ok {
		mergeCard(existing, rec)
		return
	}
	cp := rec
	agg[key] = &cp
}

// Result is the output of building the catalog: the reconciled cards. The
// japaneseExclusiveSets set is handed to the Reconciler inside Build and is
// not part of the result.
type Result struct {
	Cards []model.Card
}
