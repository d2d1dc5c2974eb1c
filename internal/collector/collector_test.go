package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceVault/internal/model"
)

func day(d int) time.Time { return model.NewDate(2024, 1, d) }

// yahooBody renders a chart response with one bar per day starting at 2024-01-01 14:30 UTC.
func yahooBody(closes ...string) string {
	ts, opens, cl := "", "", ""
	for i, c := range closes {
		sep := ","
		if i == 0 {
			sep = ""
		}
		ts += fmt.Sprintf("%s%d", sep, time.Date(2024, 1, 1+i, 14, 30, 0, 0, time.UTC).Unix())
		if c == "null" {
			opens += sep + "null"
		} else {
			opens += sep + "100"
		}
		cl += sep + c
	}
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"gmtoffset":-18000},"timestamp":[%s],
		"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],"error":null}}`,
		ts, opens, opens, opens, cl, opens)
}

func newYahoo(t *testing.T, handler http.HandlerFunc) *YahooFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewYahooFetcher(newHTTPClient(Options{}))
	f.BaseURL = srv.URL
	return f
}

func TestYahooFetch_ParsesColumnarBars(t *testing.T) {
	var gotPath, gotP1, gotP2 string
	f := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotP1, gotP2 = r.URL.Query().Get("period1"), r.URL.Query().Get("period2")
		fmt.Fprint(w, yahooBody("185.5", "184.25", "null", "181.0", "182.1"))
	})

	recs, err := f.Fetch(context.Background(), "aapl", day(1), day(5))
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, "/v8/finance/chart/aapl", gotPath)
	assert.Equal(t, fmt.Sprint(day(1).Unix()), gotP1)
	assert.Equal(t, fmt.Sprint(day(6).Unix()), gotP2)

	assert.Equal(t, "AAPL", recs[0].Symbol)
	assert.Equal(t, day(1), recs[0].Date)
	assert.Equal(t, day(4), recs[2].Date)
	assert.Equal(t, 185.5, recs[0].Price)
	assert.InDelta(t, -1.25, recs[1].Change, 1e-9)
	assert.Equal(t, int64(100), recs[0].Volume)
}

func TestYahooFetch_SymbolAlias(t *testing.T) {
	var gotPath string
	f := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, yahooBody("5000"))
	})
	_, err := f.Fetch(context.Background(), "SPX500", day(1), day(1))
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
}

func TestYahooFetch_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{"server error", http.StatusInternalServerError, "boom", nil},
		{"api error", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, nil},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, ErrNoData},
		{"not json", http.StatusOK, `<html>`, ErrMalformed},
		{"all null", http.StatusOK, yahooBody("null", "null"), ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := f.Fetch(context.Background(), "AAPL", day(1), day(5))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestYahooFetch_MissingCloseIsMalformed(t *testing.T) {
	body := `{"chart":{"result":[{"meta":{"gmtoffset":0},"timestamp":[1704117600],
		"indicators":{"quote":[{"open":[1],"high":[1],"low":[1],"close":[null],"volume":[1]}]}}]}}`
	f := newYahoo(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, body) })
	_, err := f.Fetch(context.Background(), "AAPL", day(1), day(5))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestYahooFetch_HonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, "AAPL", day(1), day(5))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAlphaVantageFetch_FiltersRange(t *testing.T) {
	csvBody := "timestamp,open,high,low,close,volume\n" +
		"2024-01-06,1,1,1,106.0,600\n" +
		"2024-01-05,1,1,1,105.0,500\n" +
		"2024-01-03,1,1,1,103.0,300\n" +
		"2024-01-02,1,1,1,102.0,200\n" +
		"2023-12-29,1,1,1,99.0,100\n"
	var gotKey, gotFn string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, gotFn = r.URL.Query().Get("apikey"), r.URL.Query().Get("function")
		fmt.Fprint(w, csvBody)
	}))
	defer srv.Close()

	f := NewAlphaVantageFetcher(newHTTPClient(Options{}), "k1")
	f.BaseURL = srv.URL
	recs, err := f.Fetch(context.Background(), "msft", day(1), day(5))
	require.NoError(t, err)

	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, "TIME_SERIES_DAILY", gotFn)
	require.Len(t, recs, 3)
	assert.Equal(t, day(2), recs[0].Date)
	assert.Equal(t, day(5), recs[2].Date)
	assert.Equal(t, "MSFT", recs[0].Symbol)
	assert.Equal(t, int64(500), recs[2].Volume)
}

func TestAlphaVantageFetch_Malformed(t *testing.T) {
	bodies := map[string]string{
		"json error":  `{"Information": "rate limit"}`,
		"bad date":    "timestamp,open,high,low,close,volume\n01/02/2024,1,1,1,5,1\n",
		"bad close":   "timestamp,open,high,low,close,volume\n2024-01-02,1,1,1,,1\n",
		"short row":   "timestamp,open,high,low,close,volume\n2024-01-02,1,1\n",
		"header only": "timestamp,open,high,low,close,volume\n",
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer srv.Close()
			f := NewAlphaVantageFetcher(newHTTPClient(Options{}), "k")
			f.BaseURL = srv.URL
			_, err := f.Fetch(context.Background(), "MSFT", day(1), day(5))
			assert.Error(t, err)
		})
	}
}

func TestBarsFetch(t *testing.T) {
	var gotAuth, gotFrom, gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFrom, gotTo = r.URL.Query().Get("from"), r.URL.Query().Get("to")
		fmt.Fprint(w, `[{"date":"2024-01-03","close":12.5,"volume":10},{"timestamp":1704153600,"close":12.0}]`)
	}))
	defer srv.Close()

	f := NewBarsFetcher(newHTTPClient(Options{}), srv.URL+"/", "secret")
	recs, err := f.Fetch(context.Background(), "goog", day(1), day(3))
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "2024-01-01", gotFrom)
	assert.Equal(t, "2024-01-03", gotTo)
	require.Len(t, recs, 2)
	assert.Equal(t, day(2), recs[0].Date)
	assert.Equal(t, 12.0, recs[0].Price)
	assert.InDelta(t, 0.5, recs[1].Change, 1e-9)
}

func TestBarsFetch_MissingClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"date":"2024-01-03"}]`)
	}))
	defer srv.Close()
	f := NewBarsFetcher(newHTTPClient(Options{}), srv.URL, "")
	_, err := f.Fetch(context.Background(), "GOOG", day(1), day(3))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewFetcher(t *testing.T) {
	f, err := NewFetcher(Options{})
	require.NoError(t, err)
	assert.Equal(t, ProviderYahoo, f.Name())

	_, err = NewFetcher(Options{Provider: ProviderAlphaVantage})
	assert.Error(t, err)

	f, err = NewFetcher(Options{Provider: "AlphaVantage", APIKey: "k", RateLimit: 0.2})
	require.NoError(t, err)
	assert.Equal(t, ProviderAlphaVantage, f.Name())

	_, err = NewFetcher(Options{Provider: ProviderBars})
	assert.Error(t, err)

	_, err = NewFetcher(Options{Provider: "bloomberg"})
	assert.Error(t, err)
}

func TestRateLimitedClientStopsOnCancel(t *testing.T) {
	c := newHTTPClient(Options{RateLimit: 0.001, Burst: 1})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ = http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err = c.Do(req)
	assert.Error(t, err)
}
