package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/guarzo/pkmcatalog/internal/cache"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
)

// Strategy selects which adapter combination builds the catalog (§4.4, §6).
type Strategy string

const (
	StrategyTCGdex Strategy = "tcgdex"
	StrategySplit  Strategy = "split"
)

// BuildConfig is everything Build needs to reach the source adapters.
type BuildConfig struct {
	Strategy                Strategy
	EnrichEnglishPokemonKey bool

	TCGdexBaseURL  string
	EnglishBaseURL string
	JapaneseBaseURL string
	SpeciesBaseURL string
}

// throttle is the subset of ratelimit.Limiter that Species.BuildJapaneseIndex
// needs; kept as an interface so callers can pass any compatible limiter.
type throttle interface {
	Wait()
}

// Build runs the configured adapter strategy, reconciles the resulting
// aggregation, and returns the final Card sequence (§4.4-4.5).
func Build(ctx context.Context, cfg BuildConfig, fetcher *httpfetch.Fetcher, dexCache, jaCache *cache.Cache, limiter throttle) (Result, error) {
	logger := log.New(log.Writer(), "[catalog] ", log.LstdFlags)

	species := NewSpecies(fetcher, dexCache, jaCache, cfg.SpeciesBaseURL)
	if jaCache.Len() == 0 {
		if err := species.BuildJapaneseIndex(ctx, limiter); err != nil {
			logger.Printf("species: japanese index build incomplete: %v", err)
		}
	}

	var agg map[RecordKey]*PartialRecord
	var japaneseExclusiveSets map[string]bool

	switch cfg.Strategy {
	case StrategySplit:
		var err error
		agg, japaneseExclusiveSets, err = buildSplit(ctx, cfg, fetcher, species, logger)
		if err != nil {
			return Result{}, err
		}
	default:
		tcgdex := NewTCGdex(fetcher, cfg.TCGdexBaseURL)
		var err error
		agg, err = tcgdex.Walk(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("catalog: tcgdex strategy: %w", err)
		}
		japaneseExclusiveSets = tcgdex.JapaneseExclusiveSets
	}

	reconciler := NewReconciler(species, japaneseExclusiveSets)
	reconciler.EnrichEnglishPokemonKey = cfg.EnrichEnglishPokemonKey

	cards, err := reconciler.Reconcile(ctx, agg)
	if err != nil {
		return Result{}, fmt.Errorf("catalog: reconcile: %w", err)
	}
	return Result{Cards: cards}, nil
}

func buildSplit(ctx context.Context, cfg BuildConfig, fetcher *httpfetch.Fetcher, species SpeciesLookup, logger *log.Logger) (map[RecordKey]*PartialRecord, map[string]bool, error) {
	englishAPI := NewEnglishAPI(fetcher, cfg.EnglishBaseURL)
	enAgg, err := englishAPI.Walk(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceFatal) {
			return nil, nil, fmt.Errorf("catalog: split strategy english half: %w", err)
		}
		logger.Printf("english primary adapter failed, falling back to tcgdex english-only: %v", err)
		fallback := NewTCGdex(fetcher, cfg.TCGdexBaseURL)
		enAgg, err = fallback.WalkEnglishOnly(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: english fallback: %w", err)
		}
	}

	japaneseIndex := NewJapaneseIndex(fetcher, cfg.JapaneseBaseURL)
	jaAgg, err := japaneseIndex.Walk(ctx, species)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: split strategy japanese half: %w", err)
	}

	enSetIDs := make(map[string]bool)
	for key := range enAgg {
		enSetIDs[key.SetID] = true
	}
	japaneseExclusiveSets := make(map[string]bool)
	for key := range jaAgg {
		if !enSetIDs[key.SetID] {
			japaneseExclusiveSets[key.SetID] = true
		}
	}

	merged := make(map[RecordKey]*PartialRecord, len(enAgg)+len(jaAgg))
	for key, rec := range enAgg {
		merged[key] = rec
	}
	for key, rec := range jaAgg {
		upsert(merged, key, *rec)
	}

	return merged, japaneseExclusiveSets, nil
}
