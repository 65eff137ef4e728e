package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/praksys/wsmonitor/internal/metric"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithDB(mock)
	require.NoError(t, err)
	return store, mock
}

func sampleMetric() metric.Metric {
	return metric.Metric{
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		ResponseTime: 142,
		ReturnCode:   200,
		RegexCheck:   true,
	}
}

func TestAppendMetricAppends(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	m := sampleMetric()

	mock.ExpectExec("UPDATE websites").
		WithArgs(int64(7), m.Timestamp, m.ResponseTime, m.ReturnCode, m.RegexCheck).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	outcome, err := store.AppendMetric(context.Background(), 7, m)
	require.NoError(t, err)
	require.Equal(t, Appended, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMetricDuplicateTimestamp(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	m := sampleMetric()

	mock.ExpectExec("UPDATE websites").
		WithArgs(int64(7), m.Timestamp, m.ResponseTime, m.ReturnCode, m.RegexCheck).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	outcome, err := store.AppendMetric(context.Background(), 7, m)
	require.NoError(t, err)
	require.Equal(t, Duplicate, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMetricOrphanedURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	m := sampleMetric()

	mock.ExpectExec("UPDATE websites").
		WithArgs(int64(404), m.Timestamp, m.ResponseTime, m.ReturnCode, m.RegexCheck).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	outcome, err := store.AppendMetric(context.Background(), 404, m)
	require.NoError(t, err)
	require.Equal(t, Orphaned, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMetricPropagatesError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	m := sampleMetric()

	mock.ExpectExec("UPDATE websites").
		WithArgs(int64(7), m.Timestamp, m.ResponseTime, m.ReturnCode, m.RegexCheck).
		WillReturnError(errors.New("connection reset"))

	_, err := store.AppendMetric(context.Background(), 7, m)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchemaCreatesTypeAndTable(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TYPE metric").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS websites").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchemaToleratesExistingType(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TYPE metric").
		WillReturnError(&pgconn.PgError{Code: pgDuplicateObject})
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS websites").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetSchemaDropsTableThenType(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("DROP TABLE IF EXISTS websites").
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec("DROP TYPE IF EXISTS metric").
		WillReturnResult(pgxmock.NewResult("DROP", 0))

	require.NoError(t, store.ResetSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddURLReturnsID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	pattern := "status.?:.?(ok|up)"

	mock.ExpectQuery("INSERT INTO websites").
		WithArgs("https://example.com", &pattern).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.AddURL(context.Background(), "https://example.com", &pattern)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveURLReportsWhetherRowExisted(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM websites").
		WithArgs("https://example.com").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM websites").
		WithArgs("https://gone.example.com").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	removed, err := store.RemoveURL(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = store.RemoveURL(context.Background(), "https://gone.example.com")
	require.NoError(t, err)
	require.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListURLsScansRegistry(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	pattern := "OK"

	mock.ExpectQuery("SELECT id, url, regexp FROM websites").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "regexp"}).
			AddRow(int64(1), "https://example.com", &pattern).
			AddRow(int64(2), "https://example.org", (*string)(nil)))

	urls, err := store.ListURLs(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Equal(t, int64(1), urls[0].ID)
	require.Equal(t, "https://example.com", urls[0].URL)
	require.NotNil(t, urls[0].Regexp)
	require.Equal(t, "OK", *urls[0].Regexp)
	require.Equal(t, int64(2), urls[1].ID)
	require.Nil(t, urls[1].Regexp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMetricsPreservesAppendOrder(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	first := time.Unix(1700000000, 0).UTC()
	second := first.Add(time.Minute)
	matched := true

	mock.ExpectQuery("unnest").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(
			[]string{"time_stamp", "response_time", "return_code", "regex_check"}).
			AddRow(first, int64(120), 200, &matched).
			AddRow(second, int64(0), 599, (*bool)(nil)))

	metrics, err := store.ListMetrics(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	require.Equal(t, first, metrics[0].Timestamp)
	require.Equal(t, int64(120), metrics[0].ResponseTime)
	require.True(t, metrics[0].RegexCheck)
	require.Equal(t, second, metrics[1].Timestamp)
	require.Equal(t, metric.ReturnCodeUnreachable, metrics[1].ReturnCode)
	require.False(t, metrics[1].RegexCheck)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusHandlesURLsWithoutHistory(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	checked := true

	mock.ExpectQuery("LEFT JOIN LATERAL").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "regexp",
			"time_stamp", "response_time", "return_code", "regex_check",
		}).
			AddRow(int64(1), "https://example.com", (*string)(nil),
				&at, ptr(int64(95)), ptr(200), &checked).
			AddRow(int64(2), "https://fresh.example.com", (*string)(nil),
				(*time.Time)(nil), (*int64)(nil), (*int)(nil), (*bool)(nil)))

	rows, err := store.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].Latest)
	require.Equal(t, at, rows[0].Latest.Timestamp)
	require.Equal(t, int64(95), rows[0].Latest.ResponseTime)
	require.Equal(t, 200, rows[0].Latest.ReturnCode)
	require.True(t, rows[0].Latest.RegexCheck)

	require.Nil(t, rows[1].Latest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
