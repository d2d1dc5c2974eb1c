package model

import "time"

// Analysis summarises a price series over a date range.
type Analysis struct {
	Symbol    string    `json:"symbol"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Count     int       `json:"count"`
	First     float64   `json:"first"`
	Last      float64   `json:"last"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Mean      float64   `json:"mean"`
	ReturnPct float64   `json:"return_pct"`
	SMA20     float64   `json:"sma20"`    // 0 when fewer than 20 records
	RSI14     float64   `json:"rsi14"`
	Position  float64   `json:"position"` // 0.0 ~ 1.0 within [Low, High]
	AvgVolume int64     `json:"avg_volume"`
}
