// Collector walks the marketplace sold/completed-listings search HTML for a
// fixed list of keyword queries and turns matched rows into model.Sale
// records (spec.md §4.9). Query construction and per-item parsing are
// grounded on the teacher's internal/ebay/ebay.go; the HTML row scraping
// idiom (goquery Find/Each over search-result rows) is grounded on
// internal/catalog/japanese.go. Page fetches fan out through
// internal/concurrent.Pool (§5: bounded outstanding requests per host).
package marketplace

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/guarzo/pkmcatalog/internal/concurrent"
	"github.com/guarzo/pkmcatalog/internal/httpfetch"
	"github.com/guarzo/pkmcatalog/internal/match"
	"github.com/guarzo/pkmcatalog/internal/model"
	"github.com/guarzo/pkmcatalog/internal/ratelimit"
	"github.com/guarzo/pkmcatalog/internal/textnorm"
	"github.com/guarzo/pkmcatalog/internal/title"
)

// maxOutstandingPageFetches bounds concurrent page fetches per collector
// run, independent of the rate limiter's steady-state pace (§5).
const maxOutstandingPageFetches = 4

// pageStartRate caps how fast new page fetches can start within a run, on
// top of the worker-count bound. c.limiter enforces the steady-state
// per-source floor (shared across a whole pipeline pass); this caps the
// burst at the start of a single Collect call, before that floor has had a
// chance to settle the pace.
var pageStartRate = rate.Every(150 * time.Millisecond)

// QueryConfig is one keyword search the collector runs every pass.
// GradedOnly selects the remote "graded" item-condition filter and, locally,
// drops rows the title parser can't classify into a grading bucket.
type QueryConfig struct {
	Keywords   string
	GradedOnly bool
}

// Config is the collector's fixed configuration (spec.md §4.9).
type Config struct {
	BaseURL       string
	Category      string
	PagesPerQuery int
	Queries       []QueryConfig

	// Threshold is the minimum match.Result.Confidence a row must clear to
	// be accepted (§4.8, §6 PKM_CONFIDENCE_THRESHOLD). Zero means "use
	// match.Threshold", so a zero-value Config still behaves sensibly.
	Threshold float64
}

// DefaultConfig returns the collector's default query list: a mix of
// graded and raw keyword searches spanning both printing languages.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://www.ebay.com/sch/i.html",
		Category:      "183454", // Trading Card Games
		PagesPerQuery: 2,
		Threshold:     match.Threshold,
		Queries: []QueryConfig{
			{Keywords: "pokemon card graded", GradedOnly: true},
			{Keywords: "pokemon card psa bgs cgc", GradedOnly: true},
			{Keywords: "pokemon card raw near mint", GradedOnly: false},
			{Keywords: "pokemon card japanese", GradedOnly: false},
		},
	}
}

// Collector runs the configured queries against the catalog and produces
// accepted Sales. It never returns an error for a single failed query
// (§7: "No operation in the Collector is ever fatal").
type Collector struct {
	fetcher *httpfetch.Fetcher
	limiter *ratelimit.Limiter
	cfg     Config
	catalog []model.Card
	log     *log.Logger
}

// New builds a Collector against the given catalog snapshot.
func New(fetcher *httpfetch.Fetcher, limiter *ratelimit.Limiter, cfg Config, catalog []model.Card, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{fetcher: fetcher, limiter: limiter, cfg: cfg, catalog: catalog, log: logger}
}

// pageJob is one (query, page) pair to fetch and parse.
type pageJob struct {
	query QueryConfig
	page  int
}

// Collect runs every configured query for PagesPerQuery pages each and
// returns the accepted Sales. A page fetch or parse failure only drops that
// page's contribution; it never aborts the run. Page fetches for the whole
// run are pooled together rather than serialized query-by-query, since the
// rate limiter (not the worker count) is what actually paces requests to the
// host.
func (c *Collector) Collect(ctx context.Context) []model.Sale {
	pages := c.cfg.PagesPerQuery
	if pages <= 0 {
		pages = 2
	}

	var jobs []pageJob
	for _, q := range c.cfg.Queries {
		for page := 1; page <= pages; page++ {
			jobs = append(jobs, pageJob{query: q, page: page})
		}
	}

	pool := concurrent.New(maxOutstandingPageFetches).WithRateLimit(rate.NewLimiter(pageStartRate, maxOutstandingPageFetches))
	results, errs := concurrent.Run(ctx, pool, jobs, func(ctx context.Context, j pageJob) ([]model.Sale, error) {
		c.limiter.Wait()

		pageURL := c.buildURL(j.query, j.page)
		html, err := c.fetcher.FetchHTML(ctx, pageURL, nil)
		if err != nil {
			return nil, fmt.Errorf("query %q page %d: %w", j.query.Keywords, j.page, err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("query %q page %d: parse html: %w", j.query.Keywords, j.page, err)
		}

		return c.collectRows(doc, j.query), nil
	})

	var sales []model.Sale
	for i, err := range errs {
		if err != nil {
			c.log.Printf("marketplace: %v", err)
			continue
		}
		sales = append(sales, results[i]...)
	}
	return sales
}

// threshold returns the configured acceptance confidence (§6
// PKM_CONFIDENCE_THRESHOLD), falling back to match.Threshold for a
// zero-value Config so callers that don't set it (older tests, ad hoc
// construction) keep the documented default.
func (c *Collector) threshold() float64 {
	if c.cfg.Threshold > 0 {
		return c.cfg.Threshold
	}
	return match.Threshold
}

func (c *Collector) buildURL(q QueryConfig, page int) string {
	params := url.Values{}
	params.Set("_nkw", q.Keywords)
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	params.Set("rt", "nc")
	params.Set("_pgn", fmt.Sprintf("%d", page))
	params.Set("_sacat", c.cfg.Category)
	if q.GradedOnly {
		params.Set("LH_ItemCondition", "2750")
	}
	return c.cfg.BaseURL + "?" + params.Encode()
}

func (c *Collector) collectRows(doc *goquery.Document, q QueryConfig) []model.Sale {
	var sales []model.Sale
	now := time.Now().UTC().Truncate(time.Second)

	doc.Find(".s-item").Each(func(_ int, row *goquery.Selection) {
		rawTitle := strings.TrimSpace(row.Find(".s-item__title").First().Text())
		if rawTitle == "" {
			return
		}
		if title.IsLikelyLot(rawTitle) {
			return
		}

		detected := title.DetectGradingBucket(rawTitle)
		if detected == model.BucketUnknown {
			return
		}
		if q.GradedOnly && detected == "" {
			return
		}
		bucket := detected
		if bucket == "" {
			bucket = model.BucketRaw
		}

		priceText := row.Find(".s-item__price").First().Text()
		price, ok := title.ParseEurPrice(priceText)
		if !ok {
			price, ok = title.ParseEurPrice(rawTitle)
		}
		if !ok {
			return
		}

		itemURL, _ := row.Find(".s-item__link").First().Attr("href")
		if itemURL == "" {
			return
		}

		mq := match.Query{
			NormalizedTitle: textnorm.Normalize(rawTitle),
			Language:        title.DetectLanguage(rawTitle),
			SetCode:         title.ExtractSetCode(rawTitle),
			LocalID:         title.ExtractLocalID(rawTitle),
		}
		result := match.Match(mq, c.catalog)
		if result.Card == nil || result.Confidence < c.threshold() {
			return
		}

		sale := model.Sale{
			CollectedAt: now,
			Source:      "marketplace",
			Title:       rawTitle,
			URL:         itemURL,
			PriceEur:    price,
			CardID:      result.Card.ID,
			Bucket:      bucket,
		}
		if err := sale.Validate(); err != nil {
			return
		}
		sales = append(sales, sale)
	})

	return sales
}
