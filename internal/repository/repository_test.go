package repository

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func mustDate(t *testing.T, raw string) scheduling.CalendarDate {
	t.Helper()
	d, err := scheduling.ParseFlexibleDate(raw)
	require.NoError(t, err)
	return d
}

func mustTime(t *testing.T, raw string) scheduling.TimeOfDay {
	t.Helper()
	tod, err := scheduling.NormalizeTime(raw)
	require.NoError(t, err)
	return tod
}
