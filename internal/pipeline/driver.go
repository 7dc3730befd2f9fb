// Package pipeline sequences the catalog build, validation, persistence,
// marketplace collection, and price aggregation phases into one driver run
// (spec.md §4.12). The phase sequencing and progress reporting shape are a
// simplified, sequential-phase adaptation of the teacher's
// internal/pipeline/processor.go (which ran stages concurrently over
// channels; §5 calls for a logically single-threaded stage sequence here).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/guarzo/pkmcatalog/internal/aggregate"
	"github.com/guarzo/pkmcatalog/internal/cache"
	"github.com/guarzo/pkmcatalog/internal/catalog"
	"github.com/guarzo/pkmcatalog/internal/config"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/marketplace"
	"github.com/guarzo/pkmcatalog/internal/model"
	"github.com/guarzo/pkmcatalog/internal/pkmerr"
	"github.com/guarzo/pkmcatalog/internal/progress"
	"github.com/guarzo/pkmcatalog/internal/ratelimit"
	"github.com/guarzo/pkmcatalog/internal/report"
	"github.com/guarzo/pkmcatalog/internal/sales"
)

// SourceURLs holds the base URLs for every external source the catalog
// adapters reach (§6 Consumed sources).
type SourceURLs struct {
	TCGdexBaseURL   string
	EnglishBaseURL  string
	JapaneseBaseURL string
	SpeciesBaseURL  string
}

// Driver runs one full pipeline pass end to end.
type Driver struct {
	Config     config.Config
	Sources    SourceURLs
	Fetcher    *httpfetch.Fetcher
	Limiters   *ratelimit.SourceLimiters
	DexCache   *cache.Cache
	JaCache    *cache.Cache
	Marketplace marketplace.Config
	Quiet      bool
	log        *log.Logger
}

// New builds a Driver from resolved runtime configuration.
func New(cfg config.Config, sources SourceURLs, fetcher *httpfetch.Fetcher, limiters *ratelimit.SourceLimiters, dexCache, jaCache *cache.Cache, mcfg marketplace.Config, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		Config: cfg, Sources: sources, Fetcher: fetcher, Limiters: limiters,
		DexCache: dexCache, JaCache: jaCache, Marketplace: mcfg, log: logger,
	}
}

type catalogDocument struct {
	Cards []model.Card `json:"cards"`
}

type pricesDocument struct {
	ByCard aggregate.ByCard `json:"byCard"`
}

type metaDocument struct {
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *Driver) paths() (catalogPath, pricesPath, metaPath string) {
	dir := d.Config.DataDir
	return filepath.Join(dir, "catalog.json"), filepath.Join(dir, "prices.json"), filepath.Join(dir, "meta.json")
}

func loadCatalog(path string) (catalogDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalogDocument{}, err
	}
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return catalogDocument{}, err
	}
	return doc, nil
}

// Run executes the full sequential phase pipeline (§4.12).
func (d *Driver) Run(ctx context.Context) error {
	catalogPath, pricesPath, metaPath := d.paths()

	cards, err := d.resolveCatalog(ctx, catalogPath)
	if err != nil {
		return err
	}

	if err := report.WriteJSONAtomic(catalogPath, catalogDocument{Cards: cards}); err != nil {
		return pkmerr.Wrap(pkmerr.Programmer, "pipeline.Run", fmt.Errorf("persist catalog: %w", err))
	}

	now := time.Now().UTC()
	windowDays := d.Config.DaysWindow
	if windowDays <= 0 {
		windowDays = 30
	}
	store := sales.New(d.Config.DataDir, time.Duration(windowDays)*24*time.Hour)

	ind := progress.Simple("sales:load", d.Quiet)
	ind.Start()
	previous, err := store.Load()
	if err != nil {
		ind.FinishWithError(err)
		return pkmerr.Wrap(pkmerr.Programmer, "pipeline.Run", fmt.Errorf("load sales: %w", err))
	}
	retained := store.Prune(previous, now)
	ind.Finish()

	mcfg := d.Marketplace
	if d.Config.ConfidenceThreshold > 0 {
		mcfg.Threshold = d.Config.ConfidenceThreshold
	}

	ind = progress.Simple("marketplace:collect", d.Quiet)
	ind.Start()
	collector := marketplace.New(d.Fetcher, d.Limiters.Marketplace, mcfg, cards, d.log)
	newSales := collector.Collect(ctx)
	ind.Finish()

	merged := sales.Merge(retained, newSales)
	if err := store.Save(merged); err != nil {
		return pkmerr.Wrap(pkmerr.Programmer, "pipeline.Run", fmt.Errorf("persist sales: %w", err))
	}

	ind = progress.Simple("aggregate", d.Quiet)
	ind.Start()
	byCard := aggregate.Build(merged)
	ind.Finish()

	if err := report.WriteJSONAtomic(pricesPath, pricesDocument{ByCard: byCard}); err != nil {
		return pkmerr.Wrap(pkmerr.Programmer, "pipeline.Run", fmt.Errorf("persist prices: %w", err))
	}
	if err := report.WriteJSONAtomic(metaPath, metaDocument{UpdatedAt: now}); err != nil {
		return pkmerr.Wrap(pkmerr.Programmer, "pipeline.Run", fmt.Errorf("persist meta: %w", err))
	}

	if d.Config.Debug {
		csvPath := filepath.Join(d.Config.DataDir, "prices_debug.csv")
		if err := report.WritePricesCSV(csvPath, cards, byCard); err != nil {
			d.log.Printf("debug csv dump failed: %v", err)
		}
	}

	return nil
}

// resolveCatalog implements the "build (or load) -> validate" phases,
// preserving the previous persisted catalog on a non-strict failure (§4.12,
// §7).
func (d *Driver) resolveCatalog(ctx context.Context, catalogPath string) ([]model.Card, error) {
	if d.Config.SkipCatalog {
		if doc, err := loadCatalog(catalogPath); err == nil && len(doc.Cards) > 0 {
			d.log.Printf("catalog: reusing persisted catalog (%d cards), skipCatalog=true", len(doc.Cards))
			return doc.Cards, nil
		}
	}

	ind := progress.Simple("catalog:build", d.Quiet)
	ind.Start()
	buildCfg := catalog.BuildConfig{
		Strategy:                catalog.Strategy(d.Config.CatalogStrategy),
		EnrichEnglishPokemonKey: d.Config.EnrichEnglishPokemonKey,
		TCGdexBaseURL:           d.Sources.TCGdexBaseURL,
		EnglishBaseURL:          d.Sources.EnglishBaseURL,
		JapaneseBaseURL:         d.Sources.JapaneseBaseURL,
		SpeciesBaseURL:          d.Sources.SpeciesBaseURL,
	}
	result, buildErr := catalog.Build(ctx, buildCfg, d.Fetcher, d.DexCache, d.JaCache, d.Limiters.JapaneseIndex)
	if buildErr != nil {
		ind.FinishWithError(buildErr)
		return d.fallbackOrFail(catalogPath, fmt.Errorf("catalog build: %w", buildErr))
	}
	ind.Finish()

	ind = progress.Simple("catalog:validate", d.Quiet)
	ind.Start()
	thresholds := catalog.ValidationThresholds{
		MinCatalogCards: d.Config.MinCatalogCards,
		MinEnglishCards: d.Config.MinEnglishCards,
	}
	if err := catalog.Validate(result.Cards, thresholds); err != nil {
		ind.FinishWithError(err)
		return d.fallbackOrFail(catalogPath, err)
	}
	ind.Finish()

	return result.Cards, nil
}

// fallbackOrFail is the non-strict/strict branch shared by build and
// validation failures (§7 Validation kind: fatal under strict mode,
// non-fatal otherwise with the previous catalog retained).
func (d *Driver) fallbackOrFail(catalogPath string, cause error) ([]model.Card, error) {
	if d.Config.StrictCatalog {
		return nil, pkmerr.Wrap(pkmerr.Validation, "pipeline.resolveCatalog", cause)
	}
	prev, err := loadCatalog(catalogPath)
	if err != nil || len(prev.Cards) == 0 {
		return nil, pkmerr.Wrap(pkmerr.SourceFatal, "pipeline.resolveCatalog", fmt.Errorf("catalog phase failed and no previous catalog to fall back to: %w", cause))
	}
	d.log.Printf("catalog phase failed, retaining previous catalog (%d cards): %v", len(prev.Cards), cause)
	return prev.Cards, nil
}
