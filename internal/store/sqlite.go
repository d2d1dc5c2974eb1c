package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"PriceVault/internal/model"
)

// SQLiteStore persists price history to a SQLite database file.
type SQLiteStore struct {
	db  *sqlx.DB
	mu  sync.Mutex // serialises writers on the single database file
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets readers proceed while the archive job holds the write lock.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := newSQLiteStore(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	// sqlx only uses the name to pick the bind style.
	return &SQLiteStore{db: sqlx.NewDb(db, "sqlite3"), now: time.Now}
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			symbol         TEXT    NOT NULL,
			date           TEXT    NOT NULL,
			price          REAL    NOT NULL,
			change         REAL    NOT NULL DEFAULT 0,
			percent_change REAL    NOT NULL DEFAULT 0,
			volume         INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_date ON prices(date)`,

		`CREATE TABLE IF NOT EXISTS archived_prices (
			symbol         TEXT    NOT NULL,
			date           TEXT    NOT NULL,
			price          REAL    NOT NULL,
			change         REAL    NOT NULL DEFAULT 0,
			percent_change REAL    NOT NULL DEFAULT 0,
			volume         INTEGER NOT NULL DEFAULT 0,
			archived_at    INTEGER NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_date ON archived_prices(date)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

type priceRow struct {
	Symbol        string  `db:"symbol"`
	Date          string  `db:"date"`
	Price         float64 `db:"price"`
	Change        float64 `db:"change"`
	PercentChange float64 `db:"percent_change"`
	Volume        int64   `db:"volume"`
}

func (r priceRow) record() (model.PriceRecord, error) {
	d, err := model.ParseDate(r.Date)
	if err != nil {
		return model.PriceRecord{}, err
	}
	return model.PriceRecord{
		Symbol:        r.Symbol,
		Date:          d,
		Price:         r.Price,
		Change:        r.Change,
		PercentChange: r.PercentChange,
		Volume:        r.Volume,
	}, nil
}

type archivedRow struct {
	priceRow
	ArchivedAt int64 `db:"archived_at"`
}

const sqliteUpsert = `INSERT INTO prices (symbol, date, price, change, percent_change, volume)
	SELECT ?, ?, ?, ?, ?, ?
	WHERE NOT EXISTS (SELECT 1 FROM archived_prices WHERE symbol = ? AND date = ?)
	ON CONFLICT(symbol, date) DO UPDATE SET
		price = excluded.price,
		change = excluded.change,
		percent_change = excluded.percent_change,
		volume = excluded.volume`

func upsertArgs(rec model.PriceRecord) []any {
	symbol := model.NormalizeSymbol(rec.Symbol)
	date := model.FormatDate(model.DateOf(rec.Date))
	return []any{symbol, date, rec.Price, rec.Change, rec.PercentChange, rec.Volume, symbol, date}
}

func (s *SQLiteStore) Save(ctx context.Context, rec model.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, sqliteUpsert, upsertArgs(rec)...); err != nil {
		return storageErr("save", err)
	}
	return nil
}

func (s *SQLiteStore) SaveAll(ctx context.Context, recs []model.PriceRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("save all: begin", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, rec := range recs {
		res, err := tx.ExecContext(ctx, sqliteUpsert, upsertArgs(rec)...)
		if err != nil {
			return 0, storageErr("save all", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			saved++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("save all: commit", err)
	}
	return saved, nil
}

func (s *SQLiteStore) Query(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	symbol, start, end, ok := normalizeRange(symbol, start, end)
	if !ok {
		return []model.PriceRecord{}, nil
	}

	var rows []priceRow
	err := s.db.SelectContext(ctx, &rows, `SELECT symbol, date, price, change, percent_change, volume
		FROM prices
		WHERE symbol = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC`,
		symbol, model.FormatDate(start), model.FormatDate(end))
	if err != nil {
		return nil, storageErr("query", err)
	}

	records := make([]model.PriceRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, storageErr("query", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *SQLiteStore) HasData(ctx context.Context, symbol string, start, end time.Time) (bool, error) {
	symbol, start, end, ok := normalizeRange(symbol, start, end)
	if !ok {
		return false, nil
	}

	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(
		SELECT 1 FROM prices WHERE symbol = ? AND date BETWEEN ? AND ?)`,
		symbol, model.FormatDate(start), model.FormatDate(end))
	if err != nil {
		return false, storageErr("has data", err)
	}
	return exists, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, symbol string) (model.PriceRecord, bool, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.PriceRecord{}, false, nil
	}

	var row priceRow
	err := s.db.GetContext(ctx, &row, `SELECT symbol, date, price, change, percent_change, volume
		FROM prices WHERE symbol = ? ORDER BY date DESC LIMIT 1`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PriceRecord{}, false, nil
	}
	if err != nil {
		return model.PriceRecord{}, false, storageErr("latest", err)
	}
	rec, err := row.record()
	if err != nil {
		return model.PriceRecord{}, false, storageErr("latest", err)
	}
	return rec, true, nil
}

// Archive copies then deletes inside one transaction and commits only when
// both statements touched the same number of rows.
func (s *SQLiteStore) Archive(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := model.FormatDate(model.DateOf(olderThan))

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("archive: begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error().Err(err).Msg("archive rollback failed")
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO archived_prices
		(symbol, date, price, change, percent_change, volume, archived_at)
		SELECT symbol, date, price, change, percent_change, volume, ?
		FROM prices WHERE date < ?`,
		s.now().Unix(), cutoff)
	if err != nil {
		return 0, storageErr("archive: copy", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("archive: copy", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM prices WHERE date < ?`, cutoff)
	if err != nil {
		return 0, storageErr("archive: delete", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("archive: delete", err)
	}

	if moved != deleted {
		return 0, fmt.Errorf("archive before %s: moved %d, deleted %d: %w", cutoff, moved, deleted, ErrArchiveMismatch)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("archive: commit", err)
	}
	committed = true

	log.Info().Int64("moved", moved).Str("older_than", cutoff).Msg("archived price records")
	return int(moved), nil
}

func (s *SQLiteStore) QueryArchive(ctx context.Context, symbol string, start, end time.Time) ([]model.ArchivedPriceRecord, error) {
	symbol, start, end, ok := normalizeRange(symbol, start, end)
	if !ok {
		return []model.ArchivedPriceRecord{}, nil
	}

	var rows []archivedRow
	err := s.db.SelectContext(ctx, &rows, `SELECT symbol, date, price, change, percent_change, volume, archived_at
		FROM archived_prices
		WHERE symbol = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC`,
		symbol, model.FormatDate(start), model.FormatDate(end))
	if err != nil {
		return nil, storageErr("query archive", err)
	}

	records := make([]model.ArchivedPriceRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, storageErr("query archive", err)
		}
		records = append(records, model.ArchivedPriceRecord{PriceRecord: rec, ArchivedAt: time.Unix(r.ArchivedAt, 0)})
	}
	return records, nil
}

const statsQuery = `SELECT
	(SELECT COUNT(*) FROM prices) AS total_records,
	(SELECT COUNT(*) FROM (SELECT symbol FROM prices UNION SELECT symbol FROM archived_prices) AS u) AS unique_symbols,
	(SELECT COUNT(*) FROM archived_prices) AS archived_records,
	(SELECT MIN(d) FROM (SELECT MIN(date) AS d FROM prices UNION ALL SELECT MIN(date) FROM archived_prices) AS lo) AS earliest_date,
	(SELECT MAX(d) FROM (SELECT MAX(date) AS d FROM prices UNION ALL SELECT MAX(date) FROM archived_prices) AS hi) AS latest_date`

type statsRow struct {
	TotalRecords    int            `db:"total_records"`
	UniqueSymbols   int            `db:"unique_symbols"`
	ArchivedRecords int            `db:"archived_records"`
	EarliestDate    sql.NullString `db:"earliest_date"`
	LatestDate      sql.NullString `db:"latest_date"`
}

func (s *SQLiteStore) Stats(ctx context.Context) (model.StorageStats, error) {
	var row statsRow
	if err := s.db.GetContext(ctx, &row, statsQuery); err != nil {
		return model.StorageStats{}, storageErr("stats", err)
	}

	stats := model.StorageStats{
		TotalRecords:    row.TotalRecords,
		UniqueSymbols:   row.UniqueSymbols,
		ArchivedRecords: row.ArchivedRecords,
	}
	var err error
	if row.EarliestDate.Valid {
		if stats.EarliestDate, err = model.ParseDate(row.EarliestDate.String); err != nil {
			return model.StorageStats{}, storageErr("stats", err)
		}
	}
	if row.LatestDate.Valid {
		if stats.LatestDate, err = model.ParseDate(row.LatestDate.String); err != nil {
			return model.StorageStats{}, storageErr("stats", err)
		}
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
