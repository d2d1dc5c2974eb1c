package synthetic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceVault/internal/model"
)

func TestGenerate_OneRecordPerDay(t *testing.T) {
	g := New(42)
	start, end := model.NewDate(2024, 2, 1), model.NewDate(2024, 2, 3)

	recs := g.Generate("msft", start, end)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, "MSFT", r.Symbol)
		assert.Equal(t, start.AddDate(0, 0, i), r.Date)
		assert.NoError(t, r.Validate())
	}
}

func TestGenerate_SpansWeekendsAndMonths(t *testing.T) {
	recs := New(1).Generate("AAPL", model.NewDate(2023, 12, 25), model.NewDate(2024, 1, 7))
	assert.Len(t, recs, 14)
}

func TestGenerate_BoundedDailyMove(t *testing.T) {
	recs := New(7).Generate("GOOGL", model.NewDate(2024, 1, 1), model.NewDate(2024, 12, 31))
	require.Len(t, recs, 366)

	prev := BasePrice("GOOGL")
	for _, r := range recs {
		// rounding to cents can push the realised move a hair past the bound
		move := (r.Price - prev) / prev * 100
		assert.LessOrEqual(t, move, MaxDailyMove+0.05)
		assert.GreaterOrEqual(t, move, -MaxDailyMove-0.05)
		assert.GreaterOrEqual(t, r.Volume, int64(minVolume))
		assert.Less(t, r.Volume, int64(maxVolume))
		prev = r.Price
	}
}

func TestGenerate_StartsNearBasePrice(t *testing.T) {
	tests := []struct {
		symbol string
		base   float64
	}{
		{"AAPL", 180},
		{"MSFT", 340},
		{"GOOGL", 140},
		{"AMZN", 178},
		{"TSLA", DefaultBasePrice},
	}
	for _, tt := range tests {
		recs := New(3).Generate(tt.symbol, model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 1))
		require.Len(t, recs, 1)
		assert.InDelta(t, tt.base, recs[0].Price, tt.base*MaxDailyMove/100+0.01, tt.symbol)
	}
}

func TestGenerate_EmptyInputs(t *testing.T) {
	g := New(1)
	assert.Empty(t, g.Generate("AAPL", model.NewDate(2024, 1, 5), model.NewDate(2024, 1, 1)))
	assert.Empty(t, g.Generate("  ", model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 5)))
	assert.NotNil(t, g.Generate("", model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 5)))
}

func TestGenerate_Deterministic(t *testing.T) {
	a := New(99).Generate("AMZN", model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 10))
	b := New(99).Generate("AMZN", model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 10))
	assert.Equal(t, a, b)
}

func TestGenerate_ConcurrentUse(t *testing.T) {
	g := NewRandom()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs := g.Generate("AAPL", model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 31))
			assert.Len(t, recs, 31)
		}()
	}
	wg.Wait()
}
