// Package synthetic produces stand-in price series used when the provider is unreachable.
// Its output is never persisted.
package synthetic

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"PriceVault/internal/model"
)

const (
	// DefaultBasePrice is used for symbols missing from BasePrices.
	DefaultBasePrice = 100.0
	// MaxDailyMove bounds the daily percentage change (±2.5%).
	MaxDailyMove = 2.5

	minVolume = 1_000_000
	maxVolume = 10_000_000
)

// BasePrices holds starting prices for well-known symbols.
var BasePrices = map[string]float64{
	"AAPL":  180.0,
	"MSFT":  340.0,
	"GOOGL": 140.0,
	"AMZN":  178.0,
}

// BasePrice returns the starting price for symbol.
func BasePrice(symbol string) float64 {
	if p, ok := BasePrices[model.NormalizeSymbol(symbol)]; ok {
		return p
	}
	return DefaultBasePrice
}

// Generator is a random walk over calendar days. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a Generator with a fixed seed, mainly for tests.
func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// NewRandom creates a Generator seeded from the clock.
func NewRandom() *Generator {
	return New(time.Now().UnixNano())
}

// Generate returns one record per calendar day in [start, end]. It never fails;
// an empty symbol or an inverted range yields an empty slice.
func (g *Generator) Generate(symbol string, start, end time.Time) []model.PriceRecord {
	symbol = model.NormalizeSymbol(symbol)
	start, end = model.DateOf(start), model.DateOf(end)
	n := model.DaysInRange(start, end)
	if symbol == "" || n == 0 {
		return []model.PriceRecord{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]model.PriceRecord, 0, n)
	prev := decimal.NewFromFloat(BasePrice(symbol))
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		movePct := (g.rnd.Float64()*2 - 1) * MaxDailyMove
		next := prev.Mul(decimal.NewFromFloat(1 + movePct/100)).Round(2)
		change := next.Sub(prev)

		records = append(records, model.PriceRecord{
			Symbol:        symbol,
			Date:          day,
			Price:         next.InexactFloat64(),
			Change:        change.InexactFloat64(),
			PercentChange: decimal.NewFromFloat(movePct).Round(2).InexactFloat64(),
			Volume:        minVolume + g.rnd.Int63n(maxVolume-minVolume),
		})
		prev = next
	}
	return records
}
