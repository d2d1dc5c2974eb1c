package collector

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"PriceVault/internal/model"
)

const (
	ProviderYahoo        = "yahoo"
	ProviderAlphaVantage = "alphavantage"
	ProviderBars         = "bars"
)

// Options configures the HTTP-backed fetchers.
type Options struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Proxy     string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// NewFetcher builds the fetcher named by opts.Provider.
func NewFetcher(opts Options) (Fetcher, error) {
	c := newHTTPClient(opts)
	switch strings.ToLower(opts.Provider) {
	case "", ProviderYahoo:
		f := NewYahooFetcher(c)
		if opts.BaseURL != "" {
			f.BaseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		return f, nil
	case ProviderAlphaVantage:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%s: api key is required", ProviderAlphaVantage)
		}
		f := NewAlphaVantageFetcher(c, opts.APIKey)
		if opts.BaseURL != "" {
			f.BaseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		return f, nil
	case ProviderBars:
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("%s: base url is required", ProviderBars)
		}
		return NewBarsFetcher(c, opts.BaseURL, opts.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", opts.Provider)
	}
}

// httpClient is an *http.Client behind an optional rate limiter.
type httpClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(opts Options) *httpClient {
	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &httpClient{client: &http.Client{Timeout: timeout, Transport: transport}}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

func (c *httpClient) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	return c.client.Do(req)
}

// finishSeries keeps records inside [start, end], sorts them, collapses duplicate
// days and derives Change/PercentChange from the previous close where missing.
func finishSeries(records []model.PriceRecord, start, end time.Time) []model.PriceRecord {
	out := make([]model.PriceRecord, 0, len(records))
	for _, r := range records {
		if model.InRange(r.Date, start, end) {
			out = append(out, r)
		}
	}
	model.SortByDate(out)
	out = model.DedupeByDate(out)
	for i := 1; i < len(out); i++ {
		prev := out[i-1].Price
		if out[i].Change == 0 && prev > 0 {
			out[i].Change = out[i].Price - prev
			out[i].PercentChange = out[i].Change / prev * 100
		}
	}
	return out
}
