// Package history is an optional SQLite log of stock transitions and run
// summaries, for the `history` and `stats` commands. The JSON state file
// remains the source of truth for reconciliation; this DB is append-only
// operator tooling.
package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Event types recorded in stock_events.
const (
	EventFirstSeen   = "first_seen"
	EventRestock     = "restock"
	EventRepeatAlert = "repeat_alert"
	EventOutOfStock  = "out_of_stock"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS stock_events (
  id           INTEGER PRIMARY KEY,
  occurred_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  watch        TEXT NOT NULL,
  product_id   TEXT NOT NULL,
  product_name TEXT,
  size_label   TEXT NOT NULL,
  product_url  TEXT,
  event_type   TEXT NOT NULL CHECK (event_type IN ('first_seen','restock','repeat_alert','out_of_stock'))
);
CREATE INDEX IF NOT EXISTS idx_events_time ON stock_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_item ON stock_events(product_id, size_label, occurred_at);
CREATE TABLE IF NOT EXISTS runs (
  id           INTEGER PRIMARY KEY,
  started_at   DATETIME NOT NULL,
  finished_at  DATETIME NOT NULL,
  watch_count  INTEGER NOT NULL,
  fact_count   INTEGER NOT NULL,
  intent_count INTEGER NOT NULL,
  error_count  INTEGER NOT NULL,
  status       TEXT NOT NULL CHECK (status IN ('done','done_with_errors'))
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Event is one stock transition or alert.
type Event struct {
	OccurredAt  time.Time
	Watch       string
	ProductID   string
	ProductName string
	SizeLabel   string
	ProductURL  string
	EventType   string
}

// LogEvents appends events in one transaction.
func (d *DB) LogEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	for _, e := range events {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stock_events(occurred_at, watch, product_id, product_name, size_label, product_url, event_type) VALUES(?,?,?,?,?,?,?)`,
			e.OccurredAt.UTC().Format("2006-01-02 15:04:05"), e.Watch, e.ProductID, nullIfEmpty(e.ProductName), e.SizeLabel, nullIfEmpty(e.ProductURL), e.EventType)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RunSummary is one orchestrator run.
type RunSummary struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	WatchCount  int
	FactCount   int
	IntentCount int
	ErrorCount  int
	Status      string
}

// LogRun records a finished run.
func (d *DB) LogRun(ctx context.Context, r RunSummary) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO runs(started_at, finished_at, watch_count, fact_count, intent_count, error_count, status) VALUES(?,?,?,?,?,?,?)`,
		r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.FinishedAt.UTC().Format("2006-01-02 15:04:05"),
		r.WatchCount, r.FactCount, r.IntentCount, r.ErrorCount, r.Status)
	return err
}

// RecentEvents returns the most recent N events, newest first.
func (d *DB) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, watch, product_id, product_name, size_label, product_url, event_type FROM stock_events ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var occurredAtStr string
		var name, url sql.NullString
		if err := rows.Scan(&occurredAtStr, &e.Watch, &e.ProductID, &name, &e.SizeLabel, &url, &e.EventType); err != nil {
			return nil, err
		}
		e.OccurredAt = parseSQLiteTime(occurredAtStr)
		e.ProductName = name.String
		e.ProductURL = url.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// WatchStats aggregates event counts per watch.
type WatchStats struct {
	Watch        string
	RestockCount int
	AlertCount   int
	ItemCount    int
}

func (d *DB) GetStats(ctx context.Context) ([]WatchStats, error) {
	query := `
		SELECT
			watch,
			SUM(CASE WHEN event_type = 'restock' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event_type IN ('first_seen','restock','repeat_alert') THEN 1 ELSE 0 END),
			COUNT(DISTINCT product_id || '|' || size_label)
		FROM
			stock_events
		GROUP BY
			watch
		ORDER BY
			watch;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []WatchStats
	for rows.Next() {
		var s WatchStats
		if err := rows.Scan(&s.Watch, &s.RestockCount, &s.AlertCount, &s.ItemCount); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// parseSQLiteTime handles both CURRENT_TIMESTAMP and RFC3339 formats.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
