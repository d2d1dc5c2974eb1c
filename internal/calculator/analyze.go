package calculator

import (
	"time"

	"PriceVault/internal/model"
)

const (
	smaPeriod = 20
	rsiPeriod = 14
)

// Analyze summarises records, which must be sorted ascending by date.
// An empty series yields an Analysis with only the symbol and range set.
func Analyze(symbol string, start, end time.Time, records []model.PriceRecord) model.Analysis {
	a := model.Analysis{
		Symbol: model.NormalizeSymbol(symbol),
		Start:  model.DateOf(start),
		End:    model.DateOf(end),
		Count:  len(records),
		RSI14:  50,
	}
	if len(records) == 0 {
		return a
	}

	closes := extractCloses(records)
	a.First = closes[0]
	a.Last = closes[len(closes)-1]
	a.Mean = CalculateMean(closes)
	a.High, a.Low, _ = CalculateRange(closes)
	a.Position, _ = CalculatePosition(a.Last, a.High, a.Low)
	if a.First != 0 {
		a.ReturnPct = (a.Last - a.First) / a.First * 100
	}
	if sma, err := CalculateSMA(closes, smaPeriod); err == nil {
		a.SMA20 = sma
	}
	a.RSI14, _ = CalculateRSI(closes, rsiPeriod)

	var vol int64
	for _, r := range records {
		vol += r.Volume
	}
	a.AvgVolume = vol / int64(len(records))
	return a
}
