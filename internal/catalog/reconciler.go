package catalog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/guarzo/pkmcatalog/internal/model"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
)

// Reconciler merges the per-(setId, localId) aggregation produced by the
// source adapters into the final Card sequence, per §4.5. Grounded on the
// teacher's internal/fusion/engine.go and resolver.go merge-by-precedence
// pattern.
type Reconciler struct {
	Species SpeciesLookup

	// JapaneseExclusiveSets are setIds observed only under the ja locale
	// (populated by TCGdex.Walk or by buildSplit, consumed here for
	// language inference rule 1).
	JapaneseExclusiveSets map[string]bool

	// EnrichEnglishPokemonKey opts into the optional English linkage pass
	// (§4.5 step 3), off by default per §6's configuration table.
	EnrichEnglishPokemonKey bool

	fetchDetail func(ctx context.Context, url string) (dexID int, image string, err error)

	log *log.Logger

	detailFetches int
}

func NewReconciler(species SpeciesLookup, japaneseExclusiveSets map[string]bool) *Reconciler {
	if japaneseExclusiveSets == nil {
		japaneseExclusiveSets = make(map[string]bool)
	}
	return &Reconciler{
		Species:               species,
		JapaneseExclusiveSets: japaneseExclusiveSets,
		log:                   log.New(log.Writer(), "[reconciler] ", log.LstdFlags),
	}
}

// SetDetailFetcher wires a function that fetches a card detail page and
// returns whatever dex id / image it carries, used by the enrichment pass
// (§4.5 step 1/2/3). Adapters own the actual HTTP/HTML parsing; the
// Reconciler only calls this hook when a record strictly needs it.
func (r *Reconciler) SetDetailFetcher(fn func(ctx context.Context, url string) (dexID int, image string, err error)) {
	r.fetchDetail = fn
}

// inferredPrintingLang implements the three-rule language inference from
// §4.5. "" means unspecified (record may emit both printings).
func (r *Reconciler) inferredPrintingLang(setID string) model.PrintingLang {
	if r.JapaneseExclusiveSets[setID] {
		return model.LangJA
	}
	if japaneseExclusiveSetPattern.MatchString(setID) {
		return model.LangJA
	}
	return ""
}

// Reconcile runs the enrichment pass and explosion described in §4.5 over
// agg, producing the final Card sequence.
func (r *Reconciler) Reconcile(ctx context.Context, agg map[RecordKey]*PartialRecord) ([]model.Card, error) {
	cards := make([]model.Card, 0, len(agg)*2)

	for key, rec := range agg {
		lang := r.inferredPrintingLang(key.SetID)
		if err := r.enrich(ctx, rec, lang); err != nil {
			r.log.Printf("enrich %s/%s: %v", key.SetID, key.Local, err)
		}

		emitted := r.explode(rec, lang)
		cards = append(cards, emitted...)
	}

	return cards, nil
}

// enrich runs the three-step pass from §4.5, in the mandated order: image
// backfill, then language linkage.
func (r *Reconciler) enrich(ctx context.Context, rec *PartialRecord, lang model.PrintingLang) error {
	// Step 1: image backfill.
	if rec.ImageLarge == "" && r.fetchDetail != nil {
		detailURL := rec.EnDetailURL
		if lang == model.LangJA && rec.JaDetailURL != "" {
			detailURL = rec.JaDetailURL
		}
		if detailURL != "" {
			if _, image, err := r.callDetail(ctx, detailURL); err == nil && image != "" {
				rec.ImageLarge = image
			}
		}
	}

	// Step 2: Japanese -> English linkage.
	if lang == model.LangJA && (rec.NameEn == "" || rec.PokemonKey == "") {
		if err := r.linkJapaneseToEnglish(ctx, rec); err != nil {
			return err
		}
	}

	// Step 3a: cheap English linkage — dex id is already known, so this is
	// a cache-backed species lookup, not a detail-page fetch. Runs
	// unconditionally, closing Card invariant (d) (nameEn implies
	// pokemonKey) regardless of EnrichEnglishPokemonKey.
	if lang != model.LangJA && rec.PokemonKey == "" && rec.NameEn != "" && rec.HasDexID {
		if err := r.linkEnglishFromDex(rec); err != nil {
			return err
		}
	}

	// Step 3b: expensive English linkage, opt-in only — the dex id is
	// unknown here, so resolving it means fetching a detail page, the cost
	// EnrichEnglishPokemonKey exists to gate.
	if r.EnrichEnglishPokemonKey && lang != model.LangJA && rec.PokemonKey == "" && rec.NameEn != "" && !rec.HasDexID {
		if err := r.linkEnglish(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) callDetail(ctx context.Context, url string) (int, string, error) {
	r.detailFetches++
	if r.detailFetches%40 == 0 {
		time.Sleep(700 * time.Millisecond)
	}
	return r.fetchDetail(ctx, url)
}

func (r *Reconciler) linkJapaneseToEnglish(ctx context.Context, rec *PartialRecord) error {
	if !rec.HasDexID && r.fetchDetail != nil && rec.JaDetailURL != "" {
		if dexID, _, err := r.callDetail(ctx, rec.JaDetailURL); err == nil && dexID > 0 {
			rec.DexID = dexID
			rec.HasDexID = true
		}
	}

	if rec.HasDexID && r.Species != nil {
		enName, err := r.Species.EnglishNameForDex(rec.DexID)
		if err != nil {
			return fmt.Errorf("resolve dex %d: %w", rec.DexID, err)
		}
		if enName != "" {
			rec.NameEn = enName
			rec.PokemonKey = textnorm.Normalize(enName)
			return nil
		}
	}

	if rec.NameJa != "" && r.Species != nil {
		entry, found, err := r.Species.SpeciesForJapaneseName(rec.NameJa)
		if err != nil {
			return fmt.Errorf("lookup japanese name %q: %w", rec.NameJa, err)
		}
		if found {
			rec.NameEn = entry.EnglishName
			rec.PokemonKey = entry.NormalizedKey
			if !rec.HasDexID {
				rec.DexID = entry.DexID
				rec.HasDexID = true
			}
		}
	}
	return nil
}

// linkEnglishFromDex resolves pokemonKey for a record whose dex id is
// already known. It never fetches a detail page; EnglishNameForDex is a
// cache-backed lookup (§4.3), so this runs unconditionally rather than
// behind EnrichEnglishPokemonKey.
func (r *Reconciler) linkEnglishFromDex(rec *PartialRecord) error {
	if r.Species == nil {
		rec.PokemonKey = textnorm.Normalize(rec.NameEn)
		return nil
	}
	enName, err := r.Species.EnglishNameForDex(rec.DexID)
	if err != nil {
		return fmt.Errorf("resolve dex %d: %w", rec.DexID, err)
	}
	if enName != "" {
		rec.PokemonKey = textnorm.Normalize(enName)
	} else {
		rec.PokemonKey = textnorm.Normalize(rec.NameEn)
	}
	return nil
}

func (r *Reconciler) linkEnglish(ctx context.Context, rec *PartialRecord) error {
	if !rec.HasDexID && r.fetchDetail != nil && rec.EnDetailURL != "" {
		if dexID, _, err := r.callDetail(ctx, rec.EnDetailURL); err == nil && dexID > 0 {
			rec.DexID = dexID
			rec.HasDexID = true
		}
	}
	if !rec.HasDexID {
		rec.PokemonKey = textnorm.Normalize(rec.NameEn)
		return nil
	}
	enName, err := r.Species.EnglishNameForDex(rec.DexID)
	if err != nil {
		return fmt.Errorf("resolve dex %d: %w", rec.DexID, err)
	}
	if enName != "" {
		rec.PokemonKey = textnorm.Normalize(enName)
	}
	return nil
}

// explode implements the per-record explosion into output Cards from §4.5.
func (r *Reconciler) explode(rec *PartialRecord, lang model.PrintingLang) []model.Card {
	if lang == model.LangJA {
		name := rec.NameJa
		if name == "" {
			name = rec.NameEn
		}
		if name == "" {
			return nil
		}
		return []model.Card{r.buildCard(rec, model.LangJA, name)}
	}

	var out []model.Card
	if rec.NameEn != "" {
		out = append(out, r.buildCard(rec, model.LangEN, rec.NameEn))
	}
	if rec.NameJa != "" {
		out = append(out, r.buildCard(rec, model.LangJA, rec.NameJa))
	}
	return out
}

func (r *Reconciler) buildCard(rec *PartialRecord, lang model.PrintingLang, name string) model.Card {
	preferredName := rec.NameEn
	if preferredName == "" {
		preferredName = name
	}
	normalizedPreferred := textnorm.Normalize(preferredName)

	return model.Card{
		ID:           model.BuildCardID(rec.SetID, rec.Number, normalizedPreferred, lang),
		CardKey:      model.BuildCardKey(rec.SetID, rec.Number, lang),
		SetID:        rec.SetID,
		SetName:      rec.SetName,
		Number:       rec.Number,
		NumberFull:   rec.NumberFull,
		PrintingLang: lang,
		Name:         name,
		NameEn:       rec.NameEn,
		NameJa:       rec.NameJa,
		PokemonKey:   rec.PokemonKey,
		Rarity:       rec.Rarity,
		Features:     rec.Features,
		ImageLarge:   rec.ImageLarge,
	}
}
