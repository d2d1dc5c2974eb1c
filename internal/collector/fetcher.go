package collector

import (
	"context"
	"errors"
	"time"

	"PriceVault/internal/model"
)

var (
	ErrNoData    = errors.New("provider returned no data")
	ErrMalformed = errors.New("malformed provider response")
)

// Fetcher fetches daily price history from an external provider.
// Implementations make a single attempt and honour ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error)
	Name() string
}
