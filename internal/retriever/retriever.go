// Package retriever answers history lookups from the store first, then the
// provider, and finally the synthetic generator.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"PriceVault/internal/calculator"
	"PriceVault/internal/collector"
	"PriceVault/internal/metrics"
	"PriceVault/internal/model"
	"PriceVault/internal/store"
	"PriceVault/internal/synthetic"
)

// Outcome names where a GetHistory result came from.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeCache     Outcome = "cache"
	OutcomeProvider  Outcome = "provider"
	OutcomeSynthetic Outcome = "synthetic"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	// LatestLookbackDays is the window fetched when a symbol has no stored price.
	LatestLookbackDays = 5
)

// Retriever holds no per-request state; it is safe for concurrent use.
type Retriever struct {
	store        store.Store
	fetcher      collector.Fetcher
	gen          *synthetic.Generator
	fetchTimeout time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	today        func() time.Time
}

type Option func(*Retriever)

// WithFetchTimeout bounds each provider call. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// WithClock sets the source of "today" used by Latest.
func WithClock(today func() time.Time) Option {
	return func(r *Retriever) {
		if today != nil {
			r.today = today
		}
	}
}

func New(st store.Store, f collector.Fetcher, gen *synthetic.Generator, opts ...Option) *Retriever {
	r := &Retriever{
		store:        st,
		fetcher:      f,
		gen:          gen,
		fetchTimeout: DefaultFetchTimeout,
		logger:       log.Logger.With().Str("component", "retriever").Logger(),
		today:        model.Today,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.gen == nil {
		r.gen = synthetic.NewRandom()
	}
	return r
}

// GetHistory returns one record per available day in [start, end], ascending.
// Only storage failures are returned as errors. A context that is already
// done is treated like an unreachable provider.
func (r *Retriever) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	recs, _, err := r.GetHistoryWithOutcome(ctx, symbol, start, end)
	return recs, err
}

func (r *Retriever) GetHistoryWithOutcome(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, Outcome, error) {
	symbol = model.NormalizeSymbol(symbol)
	start, end = model.DateOf(start), model.DateOf(end)
	if symbol == "" || start.IsZero() || end.IsZero() || start.After(end) {
		return []model.PriceRecord{}, OutcomeNone, nil
	}
	l := r.logger.With().Str("symbol", symbol).
		Str("start", model.FormatDate(start)).
		Str("end", model.FormatDate(end)).Logger()

	if err := ctx.Err(); err != nil {
		return r.synthesize(l, symbol, start, end, err), OutcomeSynthetic, nil
	}

	cached, err := r.store.HasData(ctx, symbol, start, end)
	if err != nil {
		l.Error().Err(err).Msg("store lookup failed")
		return nil, OutcomeNone, err
	}
	if cached {
		recs, err := r.store.Query(ctx, symbol, start, end)
		if err != nil {
			l.Error().Err(err).Msg("store query failed")
			return nil, OutcomeNone, err
		}
		r.metrics.RecordRetrieval(string(OutcomeCache))
		l.Debug().Int("records", len(recs)).Msg("served from store")
		return recs, OutcomeCache, nil
	}

	return r.fetchAndPersist(ctx, l, symbol, start, end)
}

// fetchAndPersist skips the store lookup. Provider data is saved best-effort;
// synthetic data never is.
func (r *Retriever) fetchAndPersist(ctx context.Context, l zerolog.Logger, symbol string, start, end time.Time) ([]model.PriceRecord, Outcome, error) {
	recs, err := r.fetch(ctx, symbol, start, end)
	if err != nil {
		r.metrics.RecordProviderFailure(r.provider())
		return r.synthesize(l, symbol, start, end, err), OutcomeSynthetic, nil
	}

	saved := 0
	for _, rec := range recs {
		if err := r.store.Save(ctx, rec); err != nil {
			r.metrics.RecordPersistFailure()
			l.Warn().Err(err).Str("date", model.FormatDate(rec.Date)).Msg("failed to persist fetched record")
			continue
		}
		saved++
	}
	r.metrics.RecordRetrieval(string(OutcomeProvider))
	l.Info().Int("records", len(recs)).Int("saved", saved).Str("provider", r.provider()).Msg("fetched from provider")
	return recs, OutcomeProvider, nil
}

func (r *Retriever) synthesize(l zerolog.Logger, symbol string, start, end time.Time, cause error) []model.PriceRecord {
	l.Warn().Err(cause).Str("provider", r.provider()).Msg("provider unavailable, generating synthetic history")
	r.metrics.RecordRetrieval(string(OutcomeSynthetic))
	return r.gen.Generate(symbol, start, end)
}

func (r *Retriever) provider() string {
	if r.fetcher == nil {
		return "none"
	}
	return r.fetcher.Name()
}

// fetch makes one bounded provider call and rejects any unusable result.
func (r *Retriever) fetch(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	if r.fetcher == nil {
		return nil, errors.New("no provider configured")
	}
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	began := time.Now()
	recs, err := r.fetcher.Fetch(fctx, symbol, start, end)
	r.metrics.ObserveFetch(r.fetcher.Name(), time.Since(began))
	if err != nil {
		return nil, err
	}

	kept := make([]model.PriceRecord, 0, len(recs))
	for _, rec := range recs {
		rec.Symbol = model.NormalizeSymbol(rec.Symbol)
		rec.Date = model.DateOf(rec.Date)
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", collector.ErrMalformed, err)
		}
		if rec.Symbol != symbol {
			return nil, fmt.Errorf("%w: record for %s in %s response", collector.ErrMalformed, rec.Symbol, symbol)
		}
		if model.InRange(rec.Date, start, end) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		return nil, collector.ErrNoData
	}
	model.SortByDate(kept)
	return model.DedupeByDate(kept), nil
}

// Compare runs both lookups concurrently. Any error discards both results.
func (r *Retriever) Compare(ctx context.Context, sym1, sym2 string, start, end time.Time) ([]model.PriceRecord, []model.PriceRecord, error) {
	var h1, h2 []model.PriceRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		h1, err = r.GetHistory(gctx, sym1, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		h2, err = r.GetHistory(gctx, sym2, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return h1, h2, nil
}

// Latest returns the newest stored price, falling back to a lookup over the
// last few days when nothing is stored.
func (r *Retriever) Latest(ctx context.Context, symbol string) (model.PriceRecord, Outcome, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.PriceRecord{}, OutcomeNone, model.ErrEmptySymbol
	}
	rec, ok, err := r.store.Latest(ctx, symbol)
	if err != nil {
		return model.PriceRecord{}, OutcomeNone, err
	}
	if ok {
		return rec, OutcomeCache, nil
	}

	end := r.today()
	recs, outcome, err := r.GetHistoryWithOutcome(ctx, symbol, end.AddDate(0, 0, -LatestLookbackDays), end)
	if err != nil {
		return model.PriceRecord{}, OutcomeNone, err
	}
	if len(recs) == 0 {
		return model.PriceRecord{}, OutcomeNone, fmt.Errorf("%s: %w", symbol, collector.ErrNoData)
	}
	return recs[len(recs)-1], outcome, nil
}

// RefreshResult reports one symbol of a Refresh run.
type RefreshResult struct {
	Symbol  string
	Records int
	Outcome Outcome
	Err     error
}

// Refresh fetches [end-days, end] from the provider for each symbol, bypassing
// the store so days added since the last run are picked up. Per-symbol
// failures are recorded in the results; the first one is also returned.
func (r *Retriever) Refresh(ctx context.Context, symbols []string, end time.Time, days int) ([]RefreshResult, error) {
	if days <= 0 {
		days = LatestLookbackDays
	}
	end = model.DateOf(end)
	start := end.AddDate(0, 0, -days)

	results := make([]RefreshResult, 0, len(symbols))
	var firstErr error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		recs, outcome, err := r.refreshOne(ctx, sym, start, end)
		res := RefreshResult{Symbol: model.NormalizeSymbol(sym), Records: len(recs), Outcome: outcome, Err: err}
		if err != nil {
			r.logger.Error().Err(err).Str("symbol", res.Symbol).Msg("refresh failed")
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, res)
	}
	return results, firstErr
}

func (r *Retriever) refreshOne(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, Outcome, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" || end.IsZero() {
		return []model.PriceRecord{}, OutcomeNone, nil
	}
	l := r.logger.With().Str("symbol", symbol).
		Str("start", model.FormatDate(start)).
		Str("end", model.FormatDate(end)).Logger()
	return r.fetchAndPersist(ctx, l, symbol, start, end)
}

// Analyze summarises GetHistory output for the range.
func (r *Retriever) Analyze(ctx context.Context, symbol string, start, end time.Time) (model.Analysis, Outcome, error) {
	recs, outcome, err := r.GetHistoryWithOutcome(ctx, symbol, start, end)
	if err != nil {
		return model.Analysis{}, OutcomeNone, err
	}
	return calculator.Analyze(symbol, start, end, recs), outcome, nil
}
