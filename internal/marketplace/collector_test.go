package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/model"
	"github.com/guarzo/pkmcatalog/internal/ratelimit"
)

func TestCollector_Collect_MatchesRowsAcrossQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="s-item">
				<div class="s-item__title">Charizard ex 006/165 SV2A ENG</div>
				<div class="s-item__price">29,90 €</div>
				<a class="s-item__link" href="https://example.com/itm/1">listing</a>
			</div>
			<div class="s-item">
				<div class="s-item__title">Random Sports Card Lot of 50</div>
				<div class="s-item__price">10,00 €</div>
				<a class="s-item__link" href="https://example.com/itm/2">listing</a>
			</div>
		</body></html>`)
	}))
	defer srv.Close()

	catalog := []model.Card{
		{ID: "sv2a-006-charizard-en", SetID: "sv2a", Number: "006", PrintingLang: model.LangEN, Name: "Charizard ex", NameEn: "Charizard ex", PokemonKey: "charizard ex"},
	}

	cfg := Config{
		BaseURL:       srv.URL,
		Category:      "183454",
		PagesPerQuery: 1,
		Queries: []QueryConfig{
			{Keywords: "pokemon card raw near mint", GradedOnly: false},
		},
	}

	c := New(httpfetch.New(nil), ratelimit.NewLimiter(5, time.Millisecond), cfg, catalog, nil)
	sales := c.Collect(context.Background())

	if len(sales) != 1 {
		t.Fatalf("expected exactly 1 accepted sale, got %d: %+v", len(sales), sales)
	}
	if sales[0].CardID != "sv2a-006-charizard-en" {
		t.Errorf("cardId = %q, want sv2a-006-charizard-en", sales[0].CardID)
	}
	if sales[0].PriceEur != 29.90 {
		t.Errorf("priceEur = %v, want 29.90", sales[0].PriceEur)
	}
	if sales[0].Bucket != model.BucketRaw {
		t.Errorf("bucket = %q, want raw (ungraded listing defaults to raw)", sales[0].Bucket)
	}
}

func TestCollector_Collect_GradedOnlyDropsUnclassifiedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="s-item">
				<div class="s-item__title">Charizard ex 006/165 SV2A ENG</div>
				<div class="s-item__price">29,90 €</div>
				<a class="s-item__link" href="https://example.com/itm/1">listing</a>
			</div>
		</body></html>`)
	}))
	defer srv.Close()

	catalog := []model.Card{
		{ID: "sv2a-006-charizard-en", SetID: "sv2a", Number: "006", PrintingLang: model.LangEN, Name: "Charizard ex", NameEn: "Charizard ex", PokemonKey: "charizard ex"},
	}

	cfg := Config{
		BaseURL:       srv.URL,
		Category:      "183454",
		PagesPerQuery: 1,
		Queries: []QueryConfig{
			{Keywords: "pokemon card graded", GradedOnly: true},
		},
	}

	c := New(httpfetch.New(nil), ratelimit.NewLimiter(5, time.Millisecond), cfg, catalog, nil)
	sales := c.Collect(context.Background())

	if len(sales) != 0 {
		t.Fatalf("expected graded-only query to drop an ungraded row, got %+v", sales)
	}
}

func TestCollector_Collect_RespectsConfiguredThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="s-item">
				<div class="s-item__title">Charizard ex 006/165 SV2A ENG</div>
				<div class="s-item__price">29,90 €</div>
				<a class="s-item__link" href="https://example.com/itm/1">listing</a>
			</div>
		</body></html>`)
	}))
	defer srv.Close()

	catalog := []model.Card{
		{ID: "sv2a-006-charizard-en", SetID: "sv2a", Number: "006", PrintingLang: model.LangEN, Name: "Charizard ex", NameEn: "Charizard ex", PokemonKey: "charizard ex"},
	}

	baseCfg := Config{
		BaseURL:       srv.URL,
		Category:      "183454",
		PagesPerQuery: 1,
		Queries: []QueryConfig{
			{Keywords: "pokemon card raw near mint", GradedOnly: false},
		},
	}

	// This row matches strictly (setId, number, name, language all agree)
	// so it clears the default 0.72 threshold, but a configured threshold
	// above the strict pass's own cap (1.0) must reject it.
	strict := baseCfg
	strict.Threshold = 1.01
	c := New(httpfetch.New(nil), ratelimit.NewLimiter(5, time.Millisecond), strict, catalog, nil)
	if sales := c.Collect(context.Background()); len(sales) != 0 {
		t.Fatalf("expected an unreachably high configured threshold to reject every row, got %+v", sales)
	}

	lenient := baseCfg
	lenient.Threshold = 0.5
	c = New(httpfetch.New(nil), ratelimit.NewLimiter(5, time.Millisecond), lenient, catalog, nil)
	if sales := c.Collect(context.Background()); len(sales) != 1 {
		t.Fatalf("expected a low configured threshold to accept the row, got %d sales: %+v", len(sales), sales)
	}
}

func TestCollector_Collect_ContinuesPastAFailedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("_nkw"), "broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<html><body></body></html>`)
	}))
	defer srv.Close()

	cfg := Config{
		BaseURL:       srv.URL,
		Category:      "183454",
		PagesPerQuery: 1,
		Queries: []QueryConfig{
			{Keywords: "broken query", GradedOnly: false},
			{Keywords: "fine query", GradedOnly: false},
		},
	}

	c := New(httpfetch.New(nil), ratelimit.NewLimiter(5, time.Millisecond), cfg, nil, nil)
	sales := c.Collect(context.Background())

	if sales != nil {
		t.Fatalf("expected no sales from empty result pages, got %+v", sales)
	}
}
