// Command pkmcatalog runs one pass of the catalog/marketplace/pricing
// pipeline (spec.md §4.12) and, if PKM_CRON_SPEC is set, keeps running it on
// a schedule instead of exiting after the first pass.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/guarzo/pkmcatalog/internal/cache"
	"github.com/guarzo/pkmcatalog/internal/config"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/marketplace"
	"github.com/guarzo/pkmcatalog/internal/pipeline"
	"github.com/guarzo/pkmcatalog/internal/ratelimit"
	"github.com/guarzo/pkmcatalog/internal/schedule"
)

const (
	defaultTCGdexBaseURL   = "https://api.tcgdex.dev/v2"
	defaultEnglishBaseURL  = "https://api.pokemontcg.io"
	defaultJapaneseBaseURL = "https://www.pokemon-card.com"
	defaultSpeciesBaseURL  = "https://pokeapi.co/api/v2"
	defaultMarketplaceURL  = "https://www.ebay.com/sch/i.html"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit, ignoring PKM_CRON_SPEC")
	flag.Parse()

	logger := log.New(os.Stdout, "[pkmcatalog] ", log.LstdFlags)
	cfg := config.Load()

	driver := buildDriver(cfg, logger)

	cronSpec := os.Getenv("PKM_CRON_SPEC")
	if *once || cronSpec == "" {
		if err := driver.Run(context.Background()); err != nil {
			logger.Fatalf("run failed: %v", err)
		}
		return
	}

	runner := schedule.New(logger)
	if err := runner.AddJob(cronSpec, func() {
		if err := driver.Run(context.Background()); err != nil {
			logger.Printf("scheduled run failed: %v", err)
		}
	}); err != nil {
		logger.Fatalf("invalid PKM_CRON_SPEC %q: %v", cronSpec, err)
	}
	runner.Start()
	logger.Printf("scheduled pipeline runs on %q; press Ctrl+C to stop", cronSpec)

	waitForSignal()
	runner.Stop()
}

func buildDriver(cfg config.Config, logger *log.Logger) *pipeline.Driver {
	fetcher := httpfetch.New(logger)
	if cfg.UserAgent != "" {
		fetcher.UserAgent = cfg.UserAgent
	}

	limiters := ratelimit.NewDefaultSourceLimiters()

	dexCache, err := cache.New(cfg.DataDir + "/cache/dex")
	if err != nil {
		logger.Fatalf("open dex cache: %v", err)
	}
	jaCache, err := cache.New(cfg.DataDir + "/cache/ja")
	if err != nil {
		logger.Fatalf("open japanese cache: %v", err)
	}

	sources := pipeline.SourceURLs{
		TCGdexBaseURL:   defaultTCGdexBaseURL,
		EnglishBaseURL:  defaultEnglishBaseURL,
		JapaneseBaseURL: defaultJapaneseBaseURL,
		SpeciesBaseURL:  defaultSpeciesBaseURL,
	}

	mcfg := marketplace.DefaultConfig()
	mcfg.BaseURL = defaultMarketplaceURL
	if cfg.PagesPerQuery > 0 {
		mcfg.PagesPerQuery = cfg.PagesPerQuery
	}

	return pipeline.New(cfg, sources, fetcher, limiters, dexCache, jaCache, mcfg, logger)
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
