package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/guarzo/pkmcatalog/internal/cache"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
)

const speciesCacheTTL = 0 // caches grow monotonically, never expire (§3 Lifecycles)

// parseDexID accepts the several shapes a source's dex-id field arrives in
// (a bare int, a numeric string, or a slice of either, of which only the
// first element is used) and
// returns the resolved id, or ok=false if raw carries no usable dex id. This
// is the resolution to Open Question #1 in spec.md §9.
func parseDexID(raw any) (int, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case int:
		return v, v > 0
	case int64:
		return int(v), v > 0
	case float64:
		return int(v), v > 0
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, false
		}
		return n, n > 0
	case []any:
		if len(v) == 0 {
			return 0, false
		}
		return parseDexID(v[0])
	case []int:
		if len(v) == 0 {
			return 0, false
		}
		return parseDexID(v[0])
	case []string:
		if len(v) == 0 {
			return 0, false
		}
		return parseDexID(v[0])
	default:
		return 0, false
	}
}

// speciesName holds one localized name entry from the species API's
// names[{language:{name}, name}] payload.
type speciesName struct {
	Language struct {
		Name string `json:"name"`
	} `json:"language"`
	Name string `json:"name"`
}

type speciesDetail struct {
	ID    int           `json:"id"`
	Name  string        `json:"name"`
	Names []speciesName `json:"names"`
}

// Species resolves cross-language species identity via the dex-id and
// Japanese-name caches (§4.3), backed by the species API described in §6.
type Species struct {
	fetcher   *httpfetch.Fetcher
	dexCache  *cache.Cache
	jaCache   *cache.Cache
	baseURL   string
	log       *log.Logger
	callCount int
}

// NewSpecies builds a Species resolver. baseURL is the species API root,
// e.g. "https://pokeapi.co/api/v2".
func NewSpecies(fetcher *httpfetch.Fetcher, dexCache, jaCache *cache.Cache, baseURL string) *Species {
	return &Species{
		fetcher:  fetcher,
		dexCache: dexCache,
		jaCache:  jaCache,
		baseURL:  baseURL,
		log:      log.New(log.Writer(), "[species] ", log.LstdFlags),
	}
}

// EnglishNameForDex resolves dexId to its canonical English species name,
// filling the on-disk cache on a miss (§4.3 dexIdToEnglish).
func (s *Species) EnglishNameForDex(dexID int) (string, error) {
	key := cache.DexToEnglishKey(dexID)
	var name string
	err := s.dexCache.GetOrLoad(key, speciesCacheTTL, &name, func() (interface{}, error) {
		detail, err := s.fetchSpeciesDetail(fmt.Sprintf("%s/pokemon-species/%d/", s.baseURL, dexID))
		if err != nil {
			return nil, err
		}
		return englishNameFrom(detail), nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// SpeciesForJapaneseName looks up a Japanese species name in the on-disk
// map built by BuildJapaneseIndex. Unlike EnglishNameForDex this cache is
// never filled on a per-key miss — it is built once by walking the paginated
// species index (§4.3), so a miss here simply means "not found".
func (s *Species) SpeciesForJapaneseName(name string) (SpeciesEntry, bool, error) {
	key := cache.JapaneseSpeciesKey(name)
	var entry SpeciesEntry
	hit, err := s.jaCache.Get(key, &entry)
	if err != nil {
		return SpeciesEntry{}, false, err
	}
	return entry, hit, nil
}

// BuildJapaneseIndex walks the paginated species index once, resolving each
// species' Japanese name and caching {dexId, enName, normalizedKey} under
// it. Only runs when the on-disk cache is empty or missing (§4.3); the
// caller is responsible for skipping the call otherwise.
func (s *Species) BuildJapaneseIndex(ctx context.Context, limiter interface{ Wait() }) error {
	url := fmt.Sprintf("%s/pokemon-species?limit=100&offset=0", s.baseURL)
	fetched := 0
	for url != "" {
		var page struct {
			Results []struct {
				URL string `json:"url"`
			} `json:"results"`
			Next *string `json:"next"`
		}
		body, err := s.fetcher.FetchJSON(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("species index page %q: %w", url, err)
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("species index page %q: decode: %w", url, err)
		}

		for _, r := range page.Results {
			detail, err := s.fetchSpeciesDetail(r.URL)
			if err != nil {
				s.log.Printf("skip species %s: %v", r.URL, err)
				continue
			}
			jaName := japaneseNameFrom(detail)
			if jaName == "" {
				continue
			}
			enName := englishNameFrom(detail)
			entry := SpeciesEntry{
				DexID:         detail.ID,
				EnglishName:   enName,
				NormalizedKey: textnorm.Normalize(enName),
			}
			if err := s.jaCache.Put(cache.JapaneseSpeciesKey(jaName), entry, speciesCacheTTL); err != nil {
				return fmt.Errorf("persist species entry for %q: %w", jaName, err)
			}

			fetched++
			if fetched%40 == 0 {
				sleep(700 * time.Millisecond)
			}
			if limiter != nil {
				limiter.Wait()
			}
		}

		if page.Next != nil {
			url = *page.Next
		} else {
			url = ""
		}
	}
	return nil
}

func (s *Species) fetchSpeciesDetail(url string) (speciesDetail, error) {
	body, err := s.fetcher.FetchJSON(context.Background(), url, nil)
	if err != nil {
		return speciesDetail{}, err
	}
	var d speciesDetail
	if err := json.Unmarshal(body, &d); err != nil {
		return speciesDetail{}, fmt.Errorf("decode species detail: %w", err)
	}
	return d, nil
}

func englishNameFrom(d speciesDetail) string {
	for _, n := range d.Names {
		if n.Language.Name == "en" {
			return n.Name
		}
	}
	return d.Name
}

func japaneseNameFrom(d speciesDetail) string {
	for _, n := range d.Names {
		if n.Language.Name == "ja" || n.Language.Name == "ja-Hrkt" {
			return n.Name
		}
	}
	return ""
}

var sleep = time.Sleep
