// Package config loads the pipeline's runtime configuration from the
// environment (optionally seeded from a .env file via godotenv), covering
// every recognized option from spec.md §6.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// CatalogStrategy selects which adapter combination builds the catalog.
type CatalogStrategy string

const (
	StrategyTCGdex CatalogStrategy = "tcgdex"
	StrategySplit  CatalogStrategy = "split"
)

// Config is the fully resolved runtime configuration for one pipeline run.
type Config struct {
	SkipCatalog             bool
	CatalogStrategy         CatalogStrategy
	EnrichEnglishPokemonKey bool
	StrictCatalog           bool
	MinCatalogCards         int
	MinEnglishCards         int
	DaysWindow              int
	PagesPerQuery           int
	ConfidenceThreshold     float64
	DataDir                 string
	EbayAppID               string
	PokemonAPIKey           string
	UserAgent               string
	Debug                   bool
}

// Load reads a .env file if present (missing is not an error) and resolves
// Config from the environment, applying the documented defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SkipCatalog:             getBool("PKM_SKIP_CATALOG", false),
		CatalogStrategy:         CatalogStrategy(getString("PKM_CATALOG_STRATEGY", string(StrategyTCGdex))),
		EnrichEnglishPokemonKey: getBool("PKM_ENRICH_ENGLISH_POKEMON_KEY", false),
		StrictCatalog:           getBool("PKM_STRICT_CATALOG", false),
		MinCatalogCards:         getInt("PKM_MIN_CATALOG_CARDS", 12000),
		MinEnglishCards:         getInt("PKM_MIN_ENGLISH_CARDS", 8000),
		DaysWindow:              getInt("PKM_DAYS_WINDOW", 30),
		PagesPerQuery:           getInt("PKM_PAGES_PER_QUERY", 2),
		ConfidenceThreshold:     getFloat("PKM_CONFIDENCE_THRESHOLD", 0.72),
		DataDir:                 getString("PKM_DATA_DIR", "data"),
		EbayAppID:               os.Getenv("PKM_EBAY_APP_ID"),
		PokemonAPIKey:           os.Getenv("PKM_POKEMON_API_KEY"),
		UserAgent:               getString("PKM_USER_AGENT", ""),
		Debug:                   getBool("PKM_DEBUG", false),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}
