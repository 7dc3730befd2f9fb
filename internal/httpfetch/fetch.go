// Package httpfetch is the bounded-retry HTTP client shared by every
// catalog adapter and the marketplace collector. Grounded on the teacher's
// internal/gamestop/client.go (exponential backoff, transparent brotli/gzip
// decoding, browser-shaped headers) and internal/ebay/ebay.go (a
// rate-limited client wrapping a single external API). Fetch calls never
// return a transport-level error to the caller: a transient fault retried
// to exhaustion and a non-retryable 4xx both surface as ErrMissing, exactly
// as spec'd ("never throws... returns null"); callers decide by context
// whether a missing payload is fatal.
package httpfetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

// ErrMissing is returned whenever a fetch yields no usable payload: a
// non-retryable 4xx, or a retryable fault that was never recovered within
// the retry budget.
var ErrMissing = errors.New("httpfetch: no payload")

const (
	DefaultRetries      = 4
	DefaultJSONBackoff  = 400 * time.Millisecond
	DefaultHTMLBackoff  = 500 * time.Millisecond
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultReqTimeout   = 20 * time.Second
)

// Fetcher performs bounded-retry HTTP GETs for JSON and HTML payloads.
type Fetcher struct {
	Client      *http.Client
	Retries     int
	UserAgent   string
	Logger      *log.Logger
}

// New builds a Fetcher with the documented defaults (§4.2, §5): a
// transport-level timeout in the 15-30s recommended range, up to
// DefaultRetries attempts, and the shared browser-shaped user agent.
func New(logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		Client:    &http.Client{Timeout: defaultReqTimeout},
		Retries:   DefaultRetries,
		UserAgent: DefaultUserAgent,
		Logger:    logger,
	}
}

// FetchJSON fetches url and returns the raw response body when the request
// eventually succeeds with a 2xx status. Retries per the fetcher contract;
// returns ErrMissing (never a transport error) otherwise.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	h := mergeHeaders(headers, map[string]string{"Accept": "application/json"})
	return f.fetch(ctx, url, h, DefaultJSONBackoff, "json")
}

// FetchHTML fetches url and returns the raw HTML body on success, or
// ErrMissing otherwise.
func (f *Fetcher) FetchHTML(ctx context.Context, url string, headers map[string]string) (string, error) {
	h := mergeHeaders(headers, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	body, err := f.fetch(ctx, url, h, DefaultHTMLBackoff, "html")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func mergeHeaders(base, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, url string, headers map[string]string, backoffBase time.Duration, kind string) ([]byte, error) {
	retries := f.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}

	var lastStatus int
	for attempt := 0; attempt < retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			// A malformed URL is a programmer error, not a transient fault;
			// still surfaces as ErrMissing per the "never throws" contract.
			f.Logger.Printf("httpfetch: bad request %s: %v", url, err)
			return nil, ErrMissing
		}
		req.Header.Set("User-Agent", f.UserAgent)
		req.Header.Set("Accept-Encoding", "gzip, br")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			// Network failure: transient, retry.
			f.Logger.Printf("httpfetch: %s attempt %d/%d network error for %s: %v", kind, attempt+1, retries, url, err)
			f.sleep(ctx, backoffBase, attempt)
			continue
		}

		body, readErr := readBody(resp)
		resp.Body.Close()
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				f.Logger.Printf("httpfetch: %s read error for %s: %v", kind, url, readErr)
				return nil, ErrMissing
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			f.Logger.Printf("httpfetch: %s attempt %d/%d status %d for %s, retrying", kind, attempt+1, retries, resp.StatusCode, url)
			f.sleep(ctx, backoffBase, attempt)
			continue
		default:
			// Any other non-success status: no retry, return missing immediately.
			f.Logger.Printf("httpfetch: %s status %d for %s, not retrying", kind, resp.StatusCode, url)
			return nil, ErrMissing
		}
	}

	f.Logger.Printf("httpfetch: %s exhausted %d retries for %s (last status %d)", kind, retries, url, lastStatus)
	return nil, ErrMissing
}

func (f *Fetcher) sleep(ctx context.Context, base time.Duration, attempt int) {
	d := base * time.Duration(attempt+1)
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpfetch: gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}
