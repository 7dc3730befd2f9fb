package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
)

// excludedSubSeriesPattern matches the "pocket edition" sub-series tag that
// §4.4.1 says must be skipped entirely.
var excludedSubSeriesPattern = regexp.MustCompile(`(?i)pocket`)

// japaneseExclusiveSetPattern is the heuristic from §4.5 language inference
// rule 2, reused here so the dual-language walk can mark exclusivity as it
// discovers sets under the ja locale.
var japaneseExclusiveSetPattern = regexp.MustCompile(`^(sv|s|sm|bw|xy)\d{1,3}a$`)

type tcgdexSet struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cards []struct {
		ID     string `json:"id"`
		LocalID string `json:"localId"`
		Number string `json:"number"`
		Name   string `json:"name"`
		Image  string `json:"image"`
		Rarity string `json:"rarity"`
		DexID  any    `json:"dexId"`
	} `json:"cards"`
}

// TCGdex is the dual-language structured adapter (§4.4.1) and, restricted
// to en, the English fallback (§4.4.4). Grounded on internal/cards/poketcgio.go's
// pagination/JSON-walking pattern.
type TCGdex struct {
	fetcher *httpfetch.Fetcher
	baseURL string
	log     *log.Logger

	// JapaneseExclusiveSets accumulates setIds observed only under the ja
	// locale, consumed by the Reconciler's language inference (§4.5).
	JapaneseExclusiveSets map[string]bool
}

func NewTCGdex(fetcher *httpfetch.Fetcher, baseURL string) *TCGdex {
	return &TCGdex{
		fetcher:               fetcher,
		baseURL:               baseURL,
		log:                   log.New(log.Writer(), "[tcgdex] ", log.LstdFlags),
		JapaneseExclusiveSets: make(map[string]bool),
	}
}

// Walk fetches the set list for both languages and returns the merged
// aggregation of partial records, per §4.4.1.
func (t *TCGdex) Walk(ctx context.Context) (map[RecordKey]*PartialRecord, error) {
	agg := make(aggregation)
	enSetIDs, err := t.walkLang(ctx, "en", agg, nil)
	if err != nil {
		return nil, fmt.Errorf("tcgdex: en walk: %w", err)
	}
	jaSetIDs, err := t.walkLang(ctx, "ja", agg, enSetIDs)
	if err != nil {
		return nil, fmt.Errorf("tcgdex: ja walk: %w", err)
	}
	for id := range jaSetIDs {
		if !enSetIDs[id] {
			t.JapaneseExclusiveSets[id] = true
		}
	}
	return agg, nil
}

// WalkEnglishOnly is the restricted walk used as the English fallback
// (§4.4.4) when the primary English adapter fails.
func (t *TCGdex) WalkEnglishOnly(ctx context.Context) (map[RecordKey]*PartialRecord, error) {
	agg := make(aggregation)
	if _, err := t.walkLang(ctx, "en", agg, nil); err != nil {
		return nil, fmt.Errorf("tcgdex: english-only walk: %w", err)
	}
	return agg, nil
}

func (t *TCGdex) walkLang(ctx context.Context, lang string, agg aggregation, seenOtherLang map[string]bool) (map[string]bool, error) {
	setIDs := make(map[string]bool)

	listURL := fmt.Sprintf("%s/%s/sets", t.baseURL, lang)
	body, err := t.fetcher.FetchJSON(ctx, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	var sets []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &sets); err != nil {
		return nil, fmt.Errorf("decode set list: %w", err)
	}

	fetches := 0
	for _, s := range sets {
		if excludedSubSeriesPattern.MatchString(s.ID) || excludedSubSeriesPattern.MatchString(s.Name) {
			continue
		}
		setIDs[s.ID] = true

		detailURL := fmt.Sprintf("%s/%s/sets/%s", t.baseURL, lang, s.ID)
		detailBody, err := t.fetcher.FetchJSON(ctx, detailURL, nil)
		if err != nil {
			t.log.Printf("skip set %s (%s): %v", s.ID, lang, err)
			continue
		}
		var set tcgdexSet
		if err := json.Unmarshal(detailBody, &set); err != nil {
			t.log.Printf("decode set %s (%s): %v", s.ID, lang, err)
			continue
		}
		if set.Name == "" {
			set.Name = s.Name
		}

		for _, c := range set.Cards {
			local := c.LocalID
			if local == "" {
				local = c.Number
			}
			if local == "" {
				continue
			}
			key := RecordKey{SetID: s.ID, Local: local}
			rec := PartialRecord{
				SetID:       s.ID,
				SetName:     set.Name,
				Number:      local,
				Rarity:      c.Rarity,
				ImageLarge:  c.Image,
				FromEnIndex: lang == "en",
				FromJaIndex: lang == "ja",
			}
			if dexID, ok := parseDexID(c.DexID); ok {
				rec.DexID = dexID
				rec.HasDexID = true
			}
			if c.Rarity != "" {
				rec.Features = []string{c.Rarity}
			}
			switch lang {
			case "en":
				rec.NameEn = c.Name
				if rec.HasDexID {
					rec.PokemonKey = "" // resolved later from dex cache by Reconciler
				} else {
					rec.PokemonKey = textnorm.Normalize(c.Name)
				}
			case "ja":
				rec.NameJa = c.Name
			}
			upsert(agg, key, rec)
		}

		fetches++
		if fetches%9 == 0 {
			time.Sleep(250 * time.Millisecond)
		}
	}

	return setIDs, nil
}
