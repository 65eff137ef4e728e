// Package postgres implements the wsmonitor persistence layer: the
// watched-URL registry and the per-URL metric history.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/registry"
)

// pgDuplicateObject is the SQLSTATE raised when the metric type exists.
const pgDuplicateObject = "42710"

// AppendOutcome classifies the result of AppendMetric.
type AppendOutcome int

// Append outcomes. Duplicate and Orphaned are successful no-ops, not errors.
const (
	Appended AppendOutcome = iota
	Duplicate
	Orphaned
)

// String names the outcome for logs and counters.
func (o AppendOutcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	case Orphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// StatusRow reports a watched URL together with its most recent metric.
type StatusRow struct {
	ID     int64
	URL    string
	Regexp *string
	Latest *metric.Metric
}

// DB is the subset of pgxpool.Pool the store needs, narrow enough for
// pgxmock to stand in during tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store persists websites and their metric histories.
type Store struct {
	db DB
}

// New connects a pgx pool and verifies it with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewWithDB constructs a store from an existing connection, primarily for
// tests.
func NewWithDB(db DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// InitSchema creates the metric composite type and the websites table.
// Re-running against an initialized database is a no-op.
func (s *Store) InitSchema(ctx context.Context) error {
	createType := `CREATE TYPE metric AS (
	time_stamp TIMESTAMP(0) WITH TIME ZONE,
	response_time INTEGER,
	return_code INTEGER,
	regex_check BOOL
)`
	if _, err := s.db.Exec(ctx, createType); err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgDuplicateObject {
			return fmt.Errorf("create metric type: %w", err)
		}
	}
	createTable := `CREATE TABLE IF NOT EXISTS websites (
	id SERIAL PRIMARY KEY,
	url VARCHAR,
	regexp TEXT,
	metrics metric[]
)`
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create websites table: %w", err)
	}
	return nil
}

// ResetSchema drops the websites table and the metric type.
func (s *Store) ResetSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS websites`); err != nil {
		return fmt.Errorf("drop websites table: %w", err)
	}
	if _, err := s.db.Exec(ctx, `DROP TYPE IF EXISTS metric`); err != nil {
		return fmt.Errorf("drop metric type: %w", err)
	}
	return nil
}

// AddURL inserts a new watched URL and returns its id.
func (s *Store) AddURL(ctx context.Context, url string, pattern *string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO websites (url, regexp, metrics) VALUES ($1, $2, '{}') RETURNING id`,
		url, pattern,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert website: %w", err)
	}
	return id, nil
}

// RemoveURL deletes a watched URL by its URL string and reports whether a
// row was removed.
func (s *Store) RemoveURL(ctx context.Context, url string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM websites WHERE url = $1`, url)
	if err != nil {
		return false, fmt.Errorf("delete website: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListURLs returns the current registry of watched URLs.
func (s *Store) ListURLs(ctx context.Context) ([]registry.MonitoredURL, error) {
	rows, err := s.db.Query(ctx, `SELECT id, url, regexp FROM websites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	defer rows.Close()

	var urls []registry.MonitoredURL
	for rows.Next() {
		var u registry.MonitoredURL
		if err := rows.Scan(&u.ID, &u.URL, &u.Regexp); err != nil {
			return nil, fmt.Errorf("scan website: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	return urls, nil
}

// AppendMetric appends one metric to the URL's history in a single atomic
// statement. The row lock taken by UPDATE serializes concurrent appends to
// the same website; the timestamp guard makes redelivery a no-op, so the
// history never holds two entries with the same (url id, timestamp).
func (s *Store) AppendMetric(ctx context.Context, urlID int64, m metric.Metric) (AppendOutcome, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE websites
SET metrics = array_append(metrics, ROW($2, $3, $4, $5)::metric)
WHERE id = $1
  AND NOT EXISTS (
	SELECT 1 FROM unnest(websites.metrics) AS m
	WHERE m.time_stamp = $2
  )`,
		urlID, m.Timestamp, m.ResponseTime, m.ReturnCode, m.RegexCheck,
	)
	if err != nil {
		return 0, fmt.Errorf("append metric: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return Appended, nil
	}

	// Nothing updated: the URL is gone or the metric is already there.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM websites WHERE id = $1)`, urlID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check website exists: %w", err)
	}
	if !exists {
		return Orphaned, nil
	}
	return Duplicate, nil
}

// ListMetrics returns a URL's full metric history in append order.
func (s *Store) ListMetrics(ctx context.Context, urlID int64) ([]metric.Metric, error) {
	rows, err := s.db.Query(ctx, `
SELECT m.time_stamp, m.response_time, m.return_code, m.regex_check
FROM websites w,
	unnest(w.metrics) WITH ORDINALITY
	AS m(time_stamp, response_time, return_code, regex_check, ord)
WHERE w.id = $1
ORDER BY m.ord`,
		urlID,
	)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var out []metric.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	return out, nil
}

// Status returns every watched URL with its most recently appended metric,
// nil Latest when no check has been persisted yet.
func (s *Store) Status(ctx context.Context) ([]StatusRow, error) {
	rows, err := s.db.Query(ctx, `
SELECT w.id, w.url, w.regexp,
	m.time_stamp, m.response_time, m.return_code, m.regex_check
FROM websites w
LEFT JOIN LATERAL (
	SELECT * FROM unnest(w.metrics) WITH ORDINALITY
		AS u(time_stamp, response_time, return_code, regex_check, ord)
	ORDER BY ord DESC
	LIMIT 1
) m ON TRUE
ORDER BY w.id`)
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	defer rows.Close()

	var out []StatusRow
	for rows.Next() {
		var (
			row          StatusRow
			ts           *time.Time
			responseTime *int64
			returnCode   *int
			regexCheck   *bool
		)
		if err := rows.Scan(&row.ID, &row.URL, &row.Regexp,
			&ts, &responseTime, &returnCode, &regexCheck); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		if ts != nil && responseTime != nil && returnCode != nil {
			m := metric.Metric{
				Timestamp:    ts.UTC(),
				ResponseTime: *responseTime,
				ReturnCode:   *returnCode,
			}
			if regexCheck != nil {
				m.RegexCheck = *regexCheck
			}
			row.Latest = &m
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	return out, nil
}

func scanMetric(rows pgx.Rows) (metric.Metric, error) {
	var (
		m          metric.Metric
		ts         time.Time
		regexCheck *bool
	)
	if err := rows.Scan(&ts, &m.ResponseTime, &m.ReturnCode, &regexCheck); err != nil {
		return metric.Metric{}, fmt.Errorf("scan metric: %w", err)
	}
	m.Timestamp = ts.UTC()
	if regexCheck != nil {
		m.RegexCheck = *regexCheck
	}
	return m, nil
}
