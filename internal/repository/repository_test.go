package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"request_id", "from_public_key", "new_public_key", "recovery_status", "logged_on", "updated_on"})
}
