// Package store persists daily price records in a live set and an archive set
// keyed by (symbol, date). A key lives in exactly one of the two sets.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceVault/internal/model"
)

var (
	// ErrStorage wraps every persistence-layer failure.
	ErrStorage = errors.New("storage failure")
	// ErrArchiveMismatch means the archive copied and deleted different row counts
	// and the transaction was rolled back.
	ErrArchiveMismatch = errors.New("archive moved/deleted count mismatch")
)

// Store is the durable home for price history.
type Store interface {
	// Save upserts rec by (symbol, date). Keys already archived are left untouched.
	Save(ctx context.Context, rec model.PriceRecord) error
	// SaveAll upserts recs in one transaction and returns how many were written.
	SaveAll(ctx context.Context, recs []model.PriceRecord) (int, error)
	// Query returns live records in [start, end], ascending by date. Never nil.
	Query(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error)
	// HasData reports whether Query over the same range would be non-empty.
	HasData(ctx context.Context, symbol string, start, end time.Time) (bool, error)
	// Latest returns the most recent live record for symbol.
	Latest(ctx context.Context, symbol string) (model.PriceRecord, bool, error)
	// Archive atomically moves live records dated before olderThan into the archive set.
	Archive(ctx context.Context, olderThan time.Time) (int, error)
	// QueryArchive returns archived records in [start, end], ascending by date.
	QueryArchive(ctx context.Context, symbol string, start, end time.Time) ([]model.ArchivedPriceRecord, error)
	Stats(ctx context.Context) (model.StorageStats, error)
	Close() error
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a Store implementation.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case DriverPostgres, "pgx":
		return NewPostgresStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// normalizeRange reports ok=false when the query can match nothing.
func normalizeRange(symbol string, start, end time.Time) (string, time.Time, time.Time, bool) {
	symbol = model.NormalizeSymbol(symbol)
	start, end = model.DateOf(start), model.DateOf(end)
	if symbol == "" || start.After(end) {
		return symbol, start, end, false
	}
	return symbol, start, end, true
}
