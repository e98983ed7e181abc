// Package collector scrapes the Hungarian police missing-persons search
// and materializes the results as a snapshot for the reconciliation
// engine. It owns paging, rate limiting, retries, and HTML field
// extraction; the engine never sees any of it.
package collector

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

// DefaultBaseURL is the public missing-persons search page.
const DefaultBaseURL = "https://www.police.hu/hu/koral/eltunt-szemelyek"

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 2 << 20

// Filter narrows the search. Zero values mean no filtering; the site
// expects "All" for unset code-valued filters.
type Filter struct {
	Name                   string `json:"name,omitempty"`
	BirthPlace             string `json:"birth_place,omitempty"`
	BirthDateMin           string `json:"birth_date_min,omitempty"` // YYYY-MM-DD
	BirthDateMax           string `json:"birth_date_max,omitempty"` // YYYY-MM-DD
	Gender                 string `json:"gender,omitempty"`
	InvestigatingAuthority string `json:"investigating_authority,omitempty"`
	RequestingAuthority    string `json:"requesting_authority,omitempty"`
}

func orAll(s string) string {
	if s == "" {
		return "All"
	}
	return s
}

func (f Filter) queryValues() url.Values {
	v := url.Values{}
	v.Set("ent_szemely_eltunt_viselt_nev_teljes", f.Name)
	v.Set("ent_szemely_eltunt_szuletesi_hely", f.BirthPlace)
	v.Set("ent_szemely_eltunt_kore_szerv_fk_kod_ertekek", orAll(f.InvestigatingAuthority))
	v.Set("ent_szemely_eltunt_kori_szerv_fk_kod_ertekek", orAll(f.RequestingAuthority))
	v.Set("ent_szemely_eltunt_szuletesi_datum[min]", f.BirthDateMin)
	v.Set("ent_szemely_eltunt_szuletesi_datum[max]", f.BirthDateMax)
	v.Set("ent_szemely_eltunt_nem_fk_kod_ertekek", orAll(f.Gender))
	return v
}

// Options configures the collector.
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	DetailConcurrency int
}

// Collector fetches listing and detail pages and assembles a snapshot.
type Collector struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	now     func() time.Time
}

// New creates a Collector with defaults filled in.
func New(opts Options) *Collector {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; eltunt-cli/1.0)"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst == 0 {
		opts.Burst = 2
	}
	if opts.DetailConcurrency == 0 {
		opts.DetailConcurrency = 5
	}
	return &Collector{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		opts:    opts,
		now:     time.Now,
	}
}

// Collect walks every result page of a search and fetches each person's
// detail page. The returned snapshot carries the biographical columns
// plus a dated observation column for today's cycle.
func (c *Collector) Collect(ctx context.Context, filter Filter) (*model.Snapshot, error) {
	log := zap.L().With(zap.String("component", "collector"))

	base, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "collector: parse base url")
	}

	cycleCol := model.ObservationColumn(c.now().Format("2006-01-02"))
	snap := model.NewSnapshot(append(model.BaseColumns(), cycleCol)...)

	params := filter.queryValues()
	total := -1

	for page := 0; ; page++ {
		pageParams := url.Values{}
		for k, v := range params {
			pageParams[k] = v
		}
		if page > 0 {
			pageParams.Set("page", strconv.Itoa(page))
		}

		html, err := c.fetch(ctx, c.opts.BaseURL+"?"+pageParams.Encode())
		if err != nil {
			return nil, eris.Wrapf(err, "collector: fetch page %d", page)
		}

		if hasNoResults(html) {
			log.Debug("no more results", zap.Int("page", page))
			break
		}

		if total < 0 {
			if n, ok := parseTotal(html); ok {
				total = n
				log.Info("total missing persons reported", zap.Int("total", total))
			}
		}

		refs := parseListing(base, html)
		if len(refs) == 0 {
			log.Warn("no person entries found on page, stopping", zap.Int("page", page))
			break
		}
		log.Debug("listing page parsed", zap.Int("page", page), zap.Int("persons", len(refs)))

		records, err := c.fetchDetails(ctx, cycleCol, refs)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			snap.Append(rec)
		}

		log.Info("collected", zap.Int("persons", snap.Len()), zap.Int("of", total))
	}

	return snap, nil
}

// fetchDetails fetches the detail pages of one listing page
// concurrently, preserving listing order in the result.
func (c *Collector) fetchDetails(ctx context.Context, cycleCol string, refs []personRef) ([]model.Record, error) {
	log := zap.L().With(zap.String("component", "collector"))

	records := make([]model.Record, len(refs))
	var mu sync.Mutex
	var failed int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.DetailConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			html, err := c.fetch(gctx, ref.URL)
			if err != nil {
				// Keep the listing's partial data rather than dropping
				// the person; the failure is counted and logged.
				log.Warn("detail page fetch failed, keeping listing data",
					zap.String("url", ref.URL),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				records[i] = parseDetail("", cycleCol, ref)
				return nil
			}
			records[i] = parseDetail(html, cycleCol, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed > 0 {
		log.Warn("some detail pages failed", zap.Int("failed", failed), zap.Int("of", len(refs)))
	}

	out := records[:0]
	for _, rec := range records {
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fetch gets one page with rate limiting and retry, decoding the body
// to UTF-8 when the response declares another charset.
func (c *Collector) fetch(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "collector: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", eris.Wrap(err, "collector: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.backoff(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = eris.Errorf("collector: status %d from %s", resp.StatusCode, rawURL)
			c.backoff(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return "", eris.Errorf("collector: status %d from %s", resp.StatusCode, rawURL)
		}

		return decodeBody(body, resp.Header.Get("Content-Type"))
	}
	return "", eris.Wrapf(lastErr, "collector: giving up after %d attempts", c.opts.MaxRetries)
}

func (c *Collector) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(1<<attempt) * 500 * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// decodeBody converts a response body to UTF-8 according to the
// Content-Type charset. Unknown or absent charsets pass through.
func decodeBody(body []byte, contentType string) (string, error) {
	if contentType == "" {
		return string(body), nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	charset, ok := params["charset"]
	if !ok || charset == "" || charset == "utf-8" || charset == "UTF-8" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "collector: unsupported charset %q", charset)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "collector: decode %s body", charset)
	}
	return string(decoded), nil
}
