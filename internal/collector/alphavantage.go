package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PriceVault/internal/model"
)

// AlphaVantageFetcher implements Fetcher using the TIME_SERIES_DAILY CSV endpoint.
type AlphaVantageFetcher struct {
	BaseURL string
	APIKey  string
	Client  *httpClient
}

func NewAlphaVantageFetcher(c *httpClient, apiKey string) *AlphaVantageFetcher {
	return &AlphaVantageFetcher{
		BaseURL: "https://www.alphavantage.co",
		APIKey:  apiKey,
		Client:  c,
	}
}

func (f *AlphaVantageFetcher) Name() string { return ProviderAlphaVantage }

// csv columns: timestamp,open,high,low,close,volume
const (
	avColDate   = 0
	avColClose  = 4
	avColVolume = 5
)

func (f *AlphaVantageFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	start, end = model.DateOf(start), model.DateOf(end)
	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", "full")
	q.Set("datatype", "csv")
	q.Set("apikey", f.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("alphavantage: status %d, body: %s", resp.StatusCode, string(body))
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("alphavantage: %w: %v", ErrMalformed, err)
	}
	// Errors and throttling notes come back as a JSON body instead of CSV.
	if len(header) <= avColVolume || strings.TrimSpace(header[avColDate]) != "timestamp" {
		return nil, fmt.Errorf("alphavantage: %w: unexpected header %q", ErrMalformed, strings.Join(header, ","))
	}

	symbol = model.NormalizeSymbol(symbol)
	var records []model.PriceRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("alphavantage read: %w", err)
		}
		if len(row) <= avColVolume {
			return nil, fmt.Errorf("alphavantage: %w: short row %q", ErrMalformed, strings.Join(row, ","))
		}
		day, err := model.ParseDate(row[avColDate])
		if err != nil {
			return nil, fmt.Errorf("alphavantage: %w: %v", ErrMalformed, err)
		}
		if !model.InRange(day, start, end) {
			continue
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(row[avColClose]), 64)
		if err != nil || closePrice <= 0 {
			return nil, fmt.Errorf("alphavantage: %w: bad close %q on %s", ErrMalformed, row[avColClose], row[avColDate])
		}
		volume, _ := strconv.ParseFloat(strings.TrimSpace(row[avColVolume]), 64)
		records = append(records, model.PriceRecord{
			Symbol: symbol,
			Date:   day,
			Price:  closePrice,
			Volume: int64(volume),
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("alphavantage: %w", ErrNoData)
	}
	return finishSeries(records, start, end), nil
}
