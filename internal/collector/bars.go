package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PriceVault/internal/model"
)

// BarsFetcher implements Fetcher against a plain JSON daily-bars REST API.
type BarsFetcher struct {
	BaseURL string
	APIKey  string
	Client  *httpClient
}

func NewBarsFetcher(c *httpClient, baseURL, apiKey string) *BarsFetcher {
	return &BarsFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  c,
	}
}

func (f *BarsFetcher) Name() string { return ProviderBars }

// bar is the expected JSON shape. Either Date or Timestamp identifies the day.
type bar struct {
	Date      string   `json:"date"`
	Timestamp int64    `json:"timestamp"`
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Close     *float64 `json:"close"`
	Volume    float64  `json:"volume"`
}

func (b bar) day() (time.Time, error) {
	if b.Date != "" {
		return model.ParseDate(b.Date)
	}
	if b.Timestamp > 0 {
		return model.DateOf(time.Unix(b.Timestamp, 0).UTC()), nil
	}
	return time.Time{}, fmt.Errorf("bar without date")
}

func (f *BarsFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	start, end = model.DateOf(start), model.DateOf(end)
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", model.FormatDate(start))
	q.Set("to", model.FormatDate(end))
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode, string(body))
	}

	var bars []bar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w: %v", ErrMalformed, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars: %w", ErrNoData)
	}

	symbol = model.NormalizeSymbol(symbol)
	records := make([]model.PriceRecord, len(bars))
	for i, b := range bars {
		day, err := b.day()
		if err != nil {
			return nil, fmt.Errorf("bars: %w: %v", ErrMalformed, err)
		}
		if b.Close == nil || *b.Close <= 0 {
			return nil, fmt.Errorf("bars: %w: missing close on %s", ErrMalformed, model.FormatDate(day))
		}
		records[i] = model.PriceRecord{
			Symbol: symbol,
			Date:   day,
			Price:  *b.Close,
			Volume: int64(b.Volume),
		}
	}
	return finishSeries(records, start, end), nil
}
