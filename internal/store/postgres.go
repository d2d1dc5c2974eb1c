package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"PriceVault/internal/model"
)

// PostgresStore persists price history to PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore connects to dsn and creates the tables when missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("postgres store opened")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			symbol         TEXT             NOT NULL,
			date           DATE             NOT NULL,
			price          DOUBLE PRECISION NOT NULL,
			change         DOUBLE PRECISION NOT NULL DEFAULT 0,
			percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume         BIGINT           NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_date ON prices(date)`,

		`CREATE TABLE IF NOT EXISTS archived_prices (
			symbol         TEXT             NOT NULL,
			date           DATE             NOT NULL,
			price          DOUBLE PRECISION NOT NULL,
			change         DOUBLE PRECISION NOT NULL DEFAULT 0,
			percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume         BIGINT           NOT NULL DEFAULT 0,
			archived_at    TIMESTAMPTZ      NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_date ON archived_prices(date)`,
	}
	for _, st := range stmts {
		if _, err := s.pool.Exec(ctx, st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

const pgUpsert = `INSERT INTO prices (symbol, date, price, change, percent_change, volume)
	SELECT $1::text, $2::date, $3::float8, $4::float8, $5::float8, $6::bigint
	WHERE NOT EXISTS (SELECT 1 FROM archived_prices WHERE symbol = $1::text AND date = $2::date)
	ON CONFLICT (symbol, date) DO UPDATE SET
		price = EXCLUDED.price,
		change = EXCLUDED.change,
		percent_change = EXCLUDED.percent_change,
		volume = EXCLUDED.volume`

// archiveLockKey is the advisory lock that orders saves against archive moves.
// Saves hold it shared and Archive holds it exclusively, so a save never
// checks archived_prices before a concurrent move commits and inserts after.
const archiveLockKey int64 = 0x70726963

func lockForSave(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, archiveLockKey)
	return err
}

func lockForArchive(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, archiveLockKey)
	return err
}

func pgUpsertArgs(rec model.PriceRecord) []any {
	return []any{model.NormalizeSymbol(rec.Symbol), model.DateOf(rec.Date), rec.Price, rec.Change, rec.PercentChange, rec.Volume}
}

func (s *PostgresStore) Save(ctx context.Context, rec model.PriceRecord) error {
	_, err := s.SaveAll(ctx, []model.PriceRecord{rec})
	return err
}

func (s *PostgresStore) SaveAll(ctx context.Context, recs []model.PriceRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, storageErr("save all: begin", err)
	}
	defer tx.Rollback(ctx)

	if err := lockForSave(ctx, tx); err != nil {
		return 0, storageErr("save all: lock", err)
	}
	saved := 0
	for _, rec := range recs {
		tag, err := tx.Exec(ctx, pgUpsert, pgUpsertArgs(rec)...)
		if err != nil {
			return 0, storageErr("save all", err)
		}
		if tag.RowsAffected() > 0 {
			saved++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storageErr("save all: commit", err)
	}
	return saved, nil
}

func scanPrices(rows pgx.Rows) ([]model.PriceRecord, error) {
	defer rows.Close()
	records := []model.PriceRecord{}
	for rows.Next() {
		var r model.PriceRecord
		if err := rows.Scan(&r.Symbol, &r.Date, &r.Price, &r.Change, &r.PercentChange, &r.Volume); err != nil {
			return nil, err
		}
		r.Date = model.DateOf(r.Date)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Query(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	symbol, start, end, ok := normalizeRange(symbol, start, end)
	if !ok {
		return []model.PriceRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT symbol, date, price, change, percent_change, volume
		FROM prices
		WHERE symbol = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC`, symbol, start, end)
	if err != nil {
		return nil, storageErr("query", err)
	}
	records, err := scanPrices(rows)
	if err != nil {
		return nil, storageErr("query", err)
	}
	return records, nil
}

func (s *PostgresStore) HasData(ctx context.Context, symbol string, start, end time.Time) (bool, error) {
	symbol, start, end, ok := normalizeRange(symbol, start, end)
	if !ok {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(
		SELECT 1 FROM prices WHERE symbol = $1 AND date BETWEEN $2 AND $3)`,
		symbol, start, end).Scan(&exists)
	if err != nil {
		return false, storageErr("has data", err)
	}
	return exists, nil
}

func (s *PostgresStore) Latest(ctx context.Context, symbol string) (model.PriceRecord, bool, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.PriceRecord{}, false, nil
	}
	var r model.PriceRecord
	err := s.pool.QueryRow(ctx, `SELECT symbol, date, price, change, percent_change, volume
		FROM prices WHERE symbol = $1 ORDER BY date DESC LIMIT 1`, symbol).
		Scan(&r.Symbol, &r.Date, &r.Price, &r.Change, &r.PercentChange, &r.Volume)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PriceRecord{}, false, nil
	}
	if err != nil {
		return model.PriceRecord{}, false, storageErr("latest", err)
	}
	r.Date = model.DateOf(r.Date)
	return r, true, nil
}

func (s *PostgresStore) Archive(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := model.DateOf(olderThan)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, storageErr("archive: begin", err)
	}
	defer tx.Rollback(ctx)

	if err := lockForArchive(ctx, tx); err != nil {
		return 0, storageErr("archive: lock", err)
	}
	copied, err := tx.Exec(ctx, `INSERT INTO archived_prices
		(symbol, date, price, change, percent_change, volume, archived_at)
		SELECT symbol, date, price, change, percent_change, volume, $1
		FROM prices WHERE date < $2`, s.now(), cutoff)
	if err != nil {
		return 0, storageErr("archive: copy", err)
	}
	deleted, err := tx.Exec(ctx, `DELETE FROM prices WHERE date < $1`, cutoff)
	if err != nil {
		return 0, storageErr("archive: delete", err)
	}

	moved := copied.RowsAffected()
	if moved != deleted.RowsAffected() {
		return 0, fmt.Errorf("archive before %s: moved %d, deleted %d: %w",
			model.FormatDate(cutoff), moved, deleted.RowsAffected(), ErrArchiveMismatch)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storageErr("archive: commit", err)
	}

	log.Info().Int64("moved", moved).Str("older_than", model.FormatDate(cutoff)).Msg("archived price records")
	return int(moved), nil
}

func (s *PostgresStore) QueryArchive(ctx context.Context, symbol string, start, end time.Time) ([]model.ArchivedPriceRecord, error) {
	symbol, start, end, ok := normalizeRange(symbol, start, end)
	if !ok {
		return []model.ArchivedPriceRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT symbol, date, price, change, percent_change, volume, archived_at
		FROM archived_prices
		WHERE symbol = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC`, symbol, start, end)
	if err != nil {
		return nil, storageErr("query archive", err)
	}
	defer rows.Close()

	records := []model.ArchivedPriceRecord{}
	for rows.Next() {
		var r model.ArchivedPriceRecord
		if err := rows.Scan(&r.Symbol, &r.Date, &r.Price, &r.Change, &r.PercentChange, &r.Volume, &r.ArchivedAt); err != nil {
			return nil, storageErr("query archive", err)
		}
		r.Date = model.DateOf(r.Date)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query archive", err)
	}
	return records, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (model.StorageStats, error) {
	var (
		stats            model.StorageStats
		earliest, latest *time.Time
	)
	err := s.pool.QueryRow(ctx, statsQuery).Scan(
		&stats.TotalRecords,
		&stats.UniqueSymbols,
		&stats.ArchivedRecords,
		&earliest,
		&latest,
	)
	if err != nil {
		return model.StorageStats{}, storageErr("stats", err)
	}
	if earliest != nil {
		stats.EarliestDate = model.DateOf(*earliest)
	}
	if latest != nil {
		stats.LatestDate = model.DateOf(*latest)
	}
	return stats, nil
}

func (s *PostgresStore) Close() error {
	log.Info().Msg("closing postgres store")
	s.pool.Close()
	return nil
}
