package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

var (
	ErrEmptySymbol  = errors.New("empty symbol")
	ErrZeroDate     = errors.New("zero date")
	ErrInvalidPrice = errors.New("invalid close price")
)

// PriceRecord is one day's price for one symbol. Date carries no time component.
type PriceRecord struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	PercentChange float64   `json:"percent_change"`
	Volume        int64     `json:"volume"`
}

// ArchivedPriceRecord is a PriceRecord moved out of the live set.
type ArchivedPriceRecord struct {
	PriceRecord
	ArchivedAt time.Time `json:"archived_at"`
}

// StorageStats is derived on demand from the live and archive sets.
type StorageStats struct {
	TotalRecords    int       `json:"total_records"`
	UniqueSymbols   int       `json:"unique_symbols"`
	ArchivedRecords int       `json:"archived_records"`
	EarliestDate    time.Time `json:"earliest_date"`
	LatestDate      time.Time `json:"latest_date"`
}

// Validate reports whether the record can be trusted as real history.
func (r PriceRecord) Validate() error {
	if r.Symbol == "" {
		return ErrEmptySymbol
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%s: %w", r.Symbol, ErrZeroDate)
	}
	if r.Price <= 0 || math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return fmt.Errorf("%s %s: %w", r.Symbol, FormatDate(r.Date), ErrInvalidPrice)
	}
	return nil
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NewDate returns the given calendar day at 00:00 UTC.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the time-of-day, keeping the calendar day as seen in t's location.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today is the current calendar day in local time.
func Today() time.Time {
	return DateOf(time.Now())
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// DaysInRange counts calendar days in [start, end]; 0 when start is after end.
func DaysInRange(start, end time.Time) int {
	start, end = DateOf(start), DateOf(end)
	if start.After(end) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// InRange reports whether d lies in [start, end].
func InRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}

// SortByDate sorts records ascending by date in place.
func SortByDate(records []PriceRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
}

// DedupeByDate collapses a date-sorted slice to one record per day, keeping the last one seen.
func DedupeByDate(records []PriceRecord) []PriceRecord {
	if len(records) < 2 {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}
