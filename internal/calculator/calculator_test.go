package calculator

import (
	"math"
	"testing"

	"PriceVault/internal/model"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCalculateSMA(t *testing.T) {
	sma, err := CalculateSMA([]float64{1, 2, 3, 4, 5}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !almost(sma, 4.5) {
		t.Errorf("expected 4.5, got %f", sma)
	}
	if _, err := CalculateSMA([]float64{1}, 2); err == nil {
		t.Error("expected error for short series")
	}
	if _, err := CalculateSMA([]float64{1}, 0); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestCalculateRSI(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	rsi, err := CalculateRSI(rising, 14)
	if err != nil {
		t.Fatal(err)
	}
	if rsi != 100 {
		t.Errorf("expected 100 for monotonic rise, got %f", rsi)
	}

	rsi, _ = CalculateRSI(rising[:5], 14)
	if rsi != 50 {
		t.Errorf("expected 50 for insufficient data, got %f", rsi)
	}

	flat := []float64{10, 10, 10, 10}
	rsi, _ = CalculateRSI(flat, 3)
	if rsi != 50 {
		t.Errorf("expected 50 for flat series, got %f", rsi)
	}

	mixed := []float64{10, 11, 10, 11, 10}
	rsi, _ = CalculateRSI(mixed, 4)
	if !almost(rsi, 50) {
		t.Errorf("expected 50 for balanced moves, got %f", rsi)
	}
}

func TestCalculateRangeAndPosition(t *testing.T) {
	high, low, err := CalculateRange([]float64{5, 9, 3, 7})
	if err != nil {
		t.Fatal(err)
	}
	if high != 9 || low != 3 {
		t.Errorf("expected 9/3, got %f/%f", high, low)
	}
	if _, _, err := CalculateRange(nil); err == nil {
		t.Error("expected error for empty series")
	}

	pos, _ := CalculatePosition(6, high, low)
	if !almost(pos, 0.5) {
		t.Errorf("expected 0.5, got %f", pos)
	}
	pos, _ = CalculatePosition(12, high, low)
	if pos != 1 {
		t.Errorf("expected clamp to 1, got %f", pos)
	}
	pos, _ = CalculatePosition(4, 4, 4)
	if pos != 0.5 {
		t.Errorf("expected 0.5 for flat range, got %f", pos)
	}
	if _, err := CalculatePosition(1, 1, 2); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestAnalyze(t *testing.T) {
	var recs []model.PriceRecord
	for d := 1; d <= 25; d++ {
		recs = append(recs, model.PriceRecord{
			Symbol: "AAPL",
			Date:   model.NewDate(2024, 1, d),
			Price:  float64(100 + d),
			Volume: 1000,
		})
	}
	a := Analyze("aapl", recs[0].Date, recs[24].Date, recs)

	if a.Symbol != "AAPL" || a.Count != 25 {
		t.Fatalf("unexpected header: %+v", a)
	}
	if a.First != 101 || a.Last != 125 || a.High != 125 || a.Low != 101 {
		t.Errorf("unexpected first/last/high/low: %+v", a)
	}
	if !almost(a.Mean, 113) {
		t.Errorf("expected mean 113, got %f", a.Mean)
	}
	if !almost(a.ReturnPct, 24.0/101*100) {
		t.Errorf("unexpected return %f", a.ReturnPct)
	}
	if !almost(a.SMA20, 115.5) {
		t.Errorf("expected SMA20 115.5, got %f", a.SMA20)
	}
	if a.RSI14 != 100 || a.Position != 1 || a.AvgVolume != 1000 {
		t.Errorf("unexpected rsi/position/volume: %+v", a)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze("MSFT", model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 5), nil)
	if a.Count != 0 || a.RSI14 != 50 || a.SMA20 != 0 {
		t.Errorf("unexpected analysis for empty series: %+v", a)
	}
}
