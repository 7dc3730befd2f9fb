package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guarzo/pkmcatalog/internal/cache"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/ratelimit"
)

func TestBuild_SplitStrategyMergesEnglishAndJapaneseHalves(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [], "next": null}`)
	})
	mux.HandleFunc("/v2/cards", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": [{"id":"s1-025","name":"Pikachu","number":"025","rarity":"Rare",
				"nationalPokedexNumbers":[25],"imageLarge":"https://example.com/pikachu.png",
				"set":{"id":"s1","name":"Set One"}}],
			"page": 1, "pageSize": 250, "totalCount": 1
		}`)
	})
	mux.HandleFunc("/cards/jp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/cards/jp/s1">Set One</a></body></html>`)
	})
	mux.HandleFunc("/cards/jp/s1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table><tr><td>
			<a href="/cards/jp/s1/025" title="ピカチュウ">Pikachu</a>
		</td></tr></table></body></html>`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := httpfetch.New(nil)
	dexCache := newTestCache(t)
	jaCache := newTestCache(t)

	cfg := BuildConfig{
		Strategy:        StrategySplit,
		TCGdexBaseURL:   srv.URL,
		EnglishBaseURL:  srv.URL,
		JapaneseBaseURL: srv.URL,
		SpeciesBaseURL:  srv.URL,
	}

	result, err := Build(context.Background(), cfg, fetcher, dexCache, jaCache, ratelimit.NewLimiter(5, time.Millisecond))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Cards) != 2 {
		t.Fatalf("expected one english and one japanese card, got %d: %+v", len(result.Cards), result.Cards)
	}
}

func TestBuild_SkipsJapaneseIndexRebuildWhenCacheAlreadyPopulated(t *testing.T) {
	var speciesHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&speciesHits, 1)
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

	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := httpfetch.New(nil)
	dexCache := newTestCache(t)
	jaCache := newTestCache(t)

	cfg := BuildConfig{
		Strategy:       StrategyTCGdex,
		TCGdexBaseURL:  srv.URL,
		SpeciesBaseURL: srv.URL,
	}
	limiter := ratelimit.NewLimiter(5, time.Millisecond)

	if _, err := Build(context.Background(), cfg, fetcher, dexCache, jaCache, limiter); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if got := atomic.LoadInt32(&speciesHits); got != 1 {
		t.Fatalf("expected exactly 1 species index page fetch on an empty cache, got %d", got)
	}

	// The species walk above returned zero results, so populate jaCache
	// directly to simulate a prior run that actually found entries.
	if err := jaCache.Put(cache.JapaneseSpeciesKey("ピカチュウ"), SpeciesEntry{DexID: 25, EnglishName: "Pikachu", NormalizedKey: "pikachu"}, 0); err != nil {
		t.Fatalf("seed jaCache: %v", err)
	}

	if _, err := Build(context.Background(), cfg, fetcher, dexCache, jaCache, limiter); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if got := atomic.LoadInt32(&speciesHits); got != 1 {
		t.Fatalf("expected second Build with a populated jaCache to skip the species index rebuild, but hit count is now %d", got)
	}
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	dir, err := os.MkdirTemp("", "catalog-cache")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	c, err := cache.New(dir + "/cache.json")
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return c
}
