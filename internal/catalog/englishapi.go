package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
)

// ErrSourceFatal signals that the English primary adapter could not make
// any progress at all (§7 Source-fatal) and the caller should fall back to
// TCGdex.WalkEnglishOnly (§4.4.4).
var ErrSourceFatal = errors.New("catalog: english primary adapter failed")

type englishAPICard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Rarity string `json:"rarity"`
	DexID  any    `json:"nationalPokedexNumbers"`
	Image  string `json:"imageLarge"`
	Set    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
}

type englishAPIResponse struct {
	Data       []englishAPICard `json:"data"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalCount int              `json:"totalCount"`
}

// EnglishAPI is the English primary adapter (§4.4.2), a near 1:1 port of the
// teacher's internal/cards/poketcgio.go pagination walk.
type EnglishAPI struct {
	fetcher  *httpfetch.Fetcher
	baseURL  string
	pageSize int
	log      *log.Logger
}

func NewEnglishAPI(fetcher *httpfetch.Fetcher, baseURL string) *EnglishAPI {
	return &EnglishAPI{
		fetcher:  fetcher,
		baseURL:  baseURL,
		pageSize: 250,
		log:      log.New(log.Writer(), "[englishapi] ", log.LstdFlags),
	}
}

// Walk paginates the English card API and returns one PartialRecord per row.
// Returns ErrSourceFatal, wrapped with the underlying cause, on unrecoverable
// status codes, retries exhausted, an empty page claiming a non-zero total
// (the hard-failure conditions of §4.4.2), and also on an undecodable page
// or a walk that yields no cards at all.
func (e *EnglishAPI) Walk(ctx context.Context) (map[RecordKey]*PartialRecord, error) {
	agg := make(aggregation)
	page := 1
	pages := 0

	for {
		url := fmt.Sprintf("%s/v2/cards?page=%d&pageSize=%d&q=supertype:pokemon", e.baseURL, page, e.pageSize)
		body, err := e.fetcher.FetchJSON(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrSourceFatal, page, err)
		}

		var resp englishAPIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: decode page %d: %v", ErrSourceFatal, page, err)
		}

		if len(resp.Data) == 0 {
			if resp.TotalCount > 0 {
				return nil, fmt.Errorf("%w: empty page %d with declared total %d", ErrSourceFatal, page, resp.TotalCount)
			}
			break
		}

		for _, c := range resp.Data {
			if c.Number == "" {
				continue
			}
			key := RecordKey{SetID: c.Set.ID, Local: c.Number}
			rec := PartialRecord{
				SetID:       c.Set.ID,
				SetName:     c.Set.Name,
				Number:      c.Number,
				NameEn:      c.Name,
				Rarity:      c.Rarity,
				ImageLarge:  c.Image,
				FromEnIndex: true,
			}
			if c.Rarity != "" {
				rec.Features = []string{c.Rarity}
			}
			if dexID, ok := parseDexID(c.DexID); ok {
				rec.DexID = dexID
				rec.HasDexID = true
			} else {
				rec.PokemonKey = textnorm.Normalize(c.Name)
			}
			upsert(agg, key, rec)
		}

		pages++
		if pages%6 == 0 {
			time.Sleep(200 * time.Millisecond)
		}

		got := resp.Page * resp.PageSize
		if resp.TotalCount == 0 || got >= resp.TotalCount {
			break
		}
		page++
	}

	if len(agg) == 0 {
		return nil, fmt.Errorf("%w: no cards produced", ErrSourceFatal)
	}
	return agg, nil
}
