package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLiteStore(db), mock
}

func TestArchive_DeleteFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO archived_prices").
		WithArgs(sqlmock.AnyArg(), "2024-01-11").
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("DELETE FROM prices").
		WithArgs("2024-01-11").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	moved, err := s.Archive(context.Background(), jan(11))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_CountMismatchRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO archived_prices").
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("DELETE FROM prices").
		WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectRollback()

	moved, err := s.Archive(context.Background(), jan(11))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveMismatch)
	assert.Zero(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_CopyFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO archived_prices").
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := s.Archive(context.Background(), jan(11))
	assert.ErrorIs(t, err, ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_CommitsWhenCountsMatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO archived_prices").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM prices").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	moved, err := s.Archive(context.Background(), jan(11))
	require.NoError(t, err)
	assert.Equal(t, 4, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_StorageErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT symbol, date").
		WillReturnError(errors.New("database is locked"))

	_, err := s.Query(context.Background(), "AAPL", jan(1), jan(5))
	assert.ErrorIs(t, err, ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
