package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guarzo/pkmcatalog/internal/cache"
	"github.com/guarzo/pkmcatalog/internal/config"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/marketplace"
	"github.com/guarzo/pkmcatalog/internal/ratelimit"
)

func newDriverTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.New(filepath.Join(dir, "cache.json"))
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return c
}

func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [], "next": null}`)
	})
	mux.HandleFunc("/en/sets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"s1","name":"Set One"}]`)
	})
	mux.HandleFunc("/en/sets/s1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"s1","name":"Set One","cards":[
			{"id":"s1-025","localId":"025","name":"Pikachu","image":"https://example.com/pikachu.png","rarity":"Rare","dexId":25}
		]}`)
	})
	mux.HandleFunc("/ja/sets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/cards/jp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	mux.HandleFunc("/sch/i.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	return mux
}

func newTestDriver(t *testing.T, srv *httptest.Server, dataDir string) *Driver {
	t.Helper()
	cfg := config.Config{
		CatalogStrategy: config.StrategyTCGdex,
		MinCatalogCards: 1,
		MinEnglishCards: 1,
		DaysWindow:      30,
		DataDir:         dataDir,
	}
	sources := SourceURLs{
		TCGdexBaseURL:   srv.URL,
		EnglishBaseURL:  srv.URL,
		JapaneseBaseURL: srv.URL,
		SpeciesBaseURL:  srv.URL,
	}
	mcfg := marketplace.Config{
		BaseURL:       srv.URL + "/sch/i.html",
		Category:      "183454",
		PagesPerQuery: 1,
		Queries:       []marketplace.QueryConfig{{Keywords: "pokemon card", GradedOnly: false}},
	}
	limiters := &ratelimit.SourceLimiters{
		DualLanguageAPI: ratelimit.NewLimiter(5, time.Millisecond),
		EnglishAPI:      ratelimit.NewLimiter(5, time.Millisecond),
		JapaneseIndex:   ratelimit.NewLimiter(5, time.Millisecond),
		Marketplace:     ratelimit.NewLimiter(5, time.Millisecond),
	}
	return New(cfg, sources, httpfetch.New(nil), limiters, newDriverTestCache(t), newDriverTestCache(t), mcfg, nil)
}

func TestDriver_Run_ProducesAllFourArtifacts(t *testing.T) {
	srv := httptest.NewServer(newTestMux())
	defer srv.Close()

	dataDir := t.TempDir()
	d := newTestDriver(t, srv, dataDir)
	d.Quiet = true

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"catalog.json", "sales_30d.json", "prices.json", "meta.json"} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	var doc catalogDocument
	data, err := os.ReadFile(filepath.Join(dataDir, "catalog.json"))
	if err != nil {
		t.Fatalf("read catalog.json: %v", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal catalog.json: %v", err)
	}
	if len(doc.Cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(doc.Cards))
	}
}

func TestDriver_Run_NonStrictFailurePreservesPreviousCatalog(t *testing.T) {
	brokenMux := http.NewServeMux()
	brokenMux.HandleFunc("/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [], "next": null}`)
	})
	brokenMux.HandleFunc("/en/sets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	brokenMux.HandleFunc("/cards/jp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	brokenMux.HandleFunc("/sch/i.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	srv := httptest.NewServer(brokenMux)
	defer srv.Close()

	dataDir := t.TempDir()
	previous := `{"cards":[{"id":"prev-1","cardKey":"prev-1","setId":"s0","setName":"Old Set","number":"001","lang":"en","name":"Old Card"}]}`
	if err := os.WriteFile(filepath.Join(dataDir, "catalog.json"), []byte(previous), 0o644); err != nil {
		t.Fatalf("seed catalog.json: %v", err)
	}

	d := newTestDriver(t, srv, dataDir)
	d.Quiet = true

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var doc catalogDocument
	data, err := os.ReadFile(filepath.Join(dataDir, "catalog.json"))
	if err != nil {
		t.Fatalf("read catalog.json: %v", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal catalog.json: %v", err)
	}
	if len(doc.Cards) != 1 || doc.Cards[0].ID != "prev-1" {
		t.Fatalf("expected previous catalog to be preserved, got %+v", doc.Cards)
	}
}

func TestDriver_Run_StrictModePropagatesFailure(t *testing.T) {
	brokenMux := http.NewServeMux()
	brokenMux.HandleFunc("/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [], "next": null}`)
	})
	brokenMux.HandleFunc("/en/sets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	brokenMux.HandleFunc("/cards/jp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	srv := httptest.NewServer(brokenMux)
	defer srv.Close()

	dataDir := t.TempDir()
	d := newTestDriver(t, srv, dataDir)
	d.Quiet = true
	d.Config.StrictCatalog = true

	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected strict mode to propagate the catalog build failure")
	}
}

func TestDriver_Run_SkipCatalogReusesPersistedCatalog(t *testing.T) {
	dataDir := t.TempDir()
	previous := `{"cards":[{"id":"prev-1","cardKey":"prev-1","setId":"s0","setName":"Old Set","number":"001","lang":"en","name":"Old Card"}]}`
	if err := os.WriteFile(filepath.Join(dataDir, "catalog.json"), []byte(previous), 0o644); err != nil {
		t.Fatalf("seed catalog.json: %v", err)
	}

	srv := httptest.NewServer(newTestMux())
	defer srv.Close()

	d := newTestDriver(t, srv, dataDir)
	d.Quiet = true
	d.Config.SkipCatalog = true

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var doc catalogDocument
	data, err := os.ReadFile(filepath.Join(dataDir, "catalog.json"))
	if err != nil {
		t.Fatalf("read catalog.json: %v", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal catalog.json: %v", err)
	}
	if len(doc.Cards) != 1 || doc.Cards[0].ID != "prev-1" {
		t.Fatalf("expected skip-catalog run to reuse the persisted catalog, got %+v", doc.Cards)
	}
}
