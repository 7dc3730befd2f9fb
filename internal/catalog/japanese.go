package catalog

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
)

var (
	setLinkPattern  = regexp.MustCompile(`^/cards/jp/([^/]+)$`)
	cardLinkPattern = regexp.MustCompile(`^/cards/jp/([^/]+)/([^/]+)$`)
	dexNumberPattern = regexp.MustCompile(`(?:National )?Pok[eé]dex[: #]?(\d+)`)
)

// hasJapaneseScript reports whether s contains a rune in the hiragana/
// katakana block (U+3040-U+30FF) or the CJK unified ideograph block
// (U+3400-U+9FFF), per §4.4.3 step 3.
func hasJapaneseScript(s string) bool {
	for _, r := range s {
		if (r >= 0x3040 && r <= 0x30FF) || (r >= 0x3400 && r <= 0x9FFF) {
			return true
		}
	}
	return false
}

// JapaneseIndex is the Japanese HTML index adapter (§4.4.3). Grounded on the
// teacher's internal/population/psa_scraper.go goquery Find/Each walking
// pattern.
type JapaneseIndex struct {
	fetcher *httpfetch.Fetcher
	baseURL string
	log     *log.Logger

	// setImages is the per-set image map built once per Japanese set from
	// the structured API's bulk image data, preferred over a row's own
	// image per §4.4.3.
	setImages map[RecordKey]string
}

func NewJapaneseIndex(fetcher *httpfetch.Fetcher, baseURL string) *JapaneseIndex {
	return &JapaneseIndex{
		fetcher:   fetcher,
		baseURL:   baseURL,
		log:       log.New(log.Writer(), "[japanese] ", log.LstdFlags),
		setImages: make(map[RecordKey]string),
	}
}

// SetStructuredImages preloads the per-set image map built once per
// Japanese set from the structured (TCGdex) API, so the row walk can prefer
// it over its own scraped image (§4.4.3).
func (j *JapaneseIndex) SetStructuredImages(images map[RecordKey]string) {
	j.setImages = images
}

// Walk performs the three-step scrape described in §4.4.3: index page ->
// per-set listing -> per-row extraction, with lazy per-card detail fetches.
func (j *JapaneseIndex) Walk(ctx context.Context, species SpeciesLookup) (map[RecordKey]*PartialRecord, error) {
	agg := make(aggregation)

	indexURL := j.baseURL + "/cards/jp"
	indexHTML, err := j.fetcher.FetchHTML(ctx, indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("japanese: fetch index: %w", err)
	}
	indexDoc, err := goquery.NewDocumentFromReader(strings.NewReader(indexHTML))
	if err != nil {
		return nil, fmt.Errorf("japanese: parse index: %w", err)
	}

	setIDs := map[string]bool{}
	indexDoc.Find("a[href^='/cards/jp/']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := setLinkPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		setIDs[m[1]] = true
	})

	detailFetches := 0
	setFetches := 0
	for setID := range setIDs {
		setURL := fmt.Sprintf("%s/cards/jp/%s", j.baseURL, setID)
		setHTML, err := j.fetcher.FetchHTML(ctx, setURL, nil)
		if err != nil {
			j.log.Printf("skip set %s: %v", setID, err)
			continue
		}
		setDoc, err := goquery.NewDocumentFromReader(strings.NewReader(setHTML))
		if err != nil {
			j.log.Printf("parse set %s: %v", setID, err)
			continue
		}

		prefix := fmt.Sprintf("/cards/jp/%s/", setID)
		setDoc.Find(fmt.Sprintf("a[href^='%s']", prefix)).Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			m := cardLinkPattern.FindStringSubmatch(href)
			if m == nil || m[1] != setID {
				return
			}
			number := m[2]

			row := link.Closest("tr")
			if row.Length() == 0 {
				row = link.Parent()
			}
			imgSrc, _ := row.Find("img").First().Attr("src")

			nameJa, placeholder := j.chooseName(link, row)

			key := RecordKey{SetID: setID, Local: number}
			rec := PartialRecord{
				SetID:         setID,
				Number:        number,
				NameJa:        nameJa,
				PlaceholderJa: placeholder,
				FromJaIndex:   true,
				JaDetailURL:   j.baseURL + href,
			}
			if img, ok := j.setImages[key]; ok && img != "" {
				rec.ImageLarge = img
			} else if imgSrc != "" {
				rec.ImageLarge = resolveURL(j.baseURL, imgSrc)
			}

			needsDetail := placeholder || nameJa == ""
			if needsDetail && species != nil {
				if _, found, _ := species.SpeciesForJapaneseName(nameJa); found {
					needsDetail = false
				}
			}
			if needsDetail {
				if detail, err := j.fetchDetail(ctx, rec.JaDetailURL); err == nil {
					if detail.nameJa != "" {
						rec.NameJa = detail.nameJa
						rec.PlaceholderJa = false
					}
					if detail.dexID > 0 {
						rec.DexID = detail.dexID
						rec.HasDexID = true
					}
					if rec.ImageLarge == "" {
						rec.ImageLarge = detail.image
					}
				}
				detailFetches++
				if detailFetches%40 == 0 {
					time.Sleep(700 * time.Millisecond)
				}
			}

			upsert(agg, key, rec)
		})

		setFetches++
		if setFetches%9 == 0 {
			time.Sleep(250 * time.Millisecond)
		}
	}

	return agg, nil
}

// chooseName implements §4.4.3 step 3: prefer link title, aria-label, inner
// text, then adjacent cell text, taking the first candidate containing
// actual Japanese script; otherwise retain the romanized text as a
// placeholder.
func (j *JapaneseIndex) chooseName(link, row *goquery.Selection) (name string, placeholder bool) {
	candidates := []string{}
	if title, ok := link.Attr("title"); ok {
		candidates = append(candidates, title)
	}
	if aria, ok := link.Attr("aria-label"); ok {
		candidates = append(candidates, aria)
	}
	candidates = append(candidates, strings.TrimSpace(link.Text()))
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		candidates = append(candidates, strings.TrimSpace(cell.Text()))
	})

	for _, c := range candidates {
		if c != "" && hasJapaneseScript(c) {
			return c, false
		}
	}
	for _, c := range candidates {
		if c != "" {
			return c, true
		}
	}
	return "", true
}

type jaDetail struct {
	nameJa string
	dexID  int
	image  string
}

// fetchDetail parses a per-card detail page: nameJa from the first short
// text node with Japanese script (cap 40 chars), dex number from a Pokedex
// regex against the body text, image from og:image or the first
// cards/image/img URL (§4.4.3).
func (j *JapaneseIndex) fetchDetail(ctx context.Context, detailURL string) (jaDetail, error) {
	html, err := j.fetcher.FetchHTML(ctx, detailURL, nil)
	if err != nil {
		return jaDetail{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return jaDetail{}, fmt.Errorf("parse detail: %w", err)
	}

	var d jaDetail

	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := strings.TrimSpace(s.Text())
		if text == "" || len([]rune(text)) > 40 {
			return true
		}
		if hasJapaneseScript(text) {
			d.nameJa = text
			return false
		}
		return true
	})

	bodyText := doc.Find("body").Text()
	if m := dexNumberPattern.FindStringSubmatch(bodyText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.dexID = n
		}
	}

	if og, ok := doc.Find("meta[property='og:image']").Attr("content"); ok && og != "" {
		d.image = resolveURL(j.baseURL, og)
	} else {
		imgPattern := regexp.MustCompile(`(?i)cards?|image|img`)
		doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src, ok := img.Attr("src")
			if !ok || !imgPattern.MatchString(src) {
				return true
			}
			d.image = resolveURL(j.baseURL, src)
			return false
		})
	}

	return d, nil
}

func resolveURL(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
