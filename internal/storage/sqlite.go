package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/proptradetools/clickstack/internal/models"
)

// Timestamps are stored as RFC 3339 UTC strings and days as ISO dates,
// so lexicographic comparison matches chronological order.
const (
	sqliteTimeLayout = "2006-01-02T15:04:05Z"
	sqliteDayLayout  = "2006-01-02"
)

// SQLiteStore implements Store on the embedded single-file backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed click store and ensures its
// schema exists.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS guide_clicks (
			id TEXT PRIMARY KEY,
			guide_id TEXT NOT NULL,
			guide_title TEXT,
			href TEXT,
			ua TEXT,
			ts_utc TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_ts ON guide_clicks (ts_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_gid ON guide_clicks (guide_id)`,
		`CREATE TABLE IF NOT EXISTS guide_clicks_daily (
			day TEXT NOT NULL,
			guide_id TEXT NOT NULL,
			clicks INTEGER NOT NULL,
			PRIMARY KEY (day, guide_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_gid ON guide_clicks_daily (guide_id)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_date ON guide_clicks_daily (day)`,
		`CREATE TABLE IF NOT EXISTS rollup_runs (
			day TEXT PRIMARY KEY,
			guide_count INTEGER NOT NULL,
			completed_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate click schema: %w", err)
		}
	}
	return nil
}

// =============================================
// RawEventStore
// =============================================

// Append stores one click event.
func (s *SQLiteStore) Append(ctx context.Context, event *models.ClickEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO guide_clicks (id, guide_id, guide_title, href, ua, ts_utc)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.GuideID, event.Title, event.Href, event.UserAgent,
		event.Timestamp.UTC().Format(sqliteTimeLayout))

	if err != nil {
		return fmt.Errorf("failed to append click: %w", err)
	}
	return nil
}

// CountByKeySince counts raw events newer than since, grouped by guide.
func (s *SQLiteStore) CountByKeySince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guide_id, COUNT(*)
		FROM guide_clicks
		WHERE ts_utc >= ?
		GROUP BY guide_id
	`, since.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks since %s: %w", since.Format(time.RFC3339), err)
	}
	return scanSQLCounts(rows)
}

// CountByKeyOnDay counts raw events on one UTC day, grouped by guide.
func (s *SQLiteStore) CountByKeyOnDay(ctx context.Context, day time.Time) (map[string]int64, error) {
	start := models.DayOf(day)
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT guide_id, COUNT(*)
		FROM guide_clicks
		WHERE ts_utc >= ? AND ts_utc < ?
		GROUP BY guide_id
	`, start.Format(sqliteTimeLayout), end.Format(sqliteTimeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks on %s: %w", start.Format(sqliteDayLayout), err)
	}
	return scanSQLCounts(rows)
}

// PurgeOlderThan deletes raw events older than cutoff.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guide_clicks WHERE ts_utc < ?`,
		cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to purge clicks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged clicks: %w", err)
	}
	return n, nil
}

// =============================================
// DailyRollupStore
// =============================================

// UpsertAdd atomically adds delta to the (day, guide) counter.
func (s *SQLiteStore) UpsertAdd(ctx context.Context, day time.Time, guideID string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guide_clicks_daily (day, guide_id, clicks)
		VALUES (?, ?, ?)
		ON CONFLICT (day, guide_id)
		DO UPDATE SET clicks = clicks + excluded.clicks
	`, models.DayOf(day).Format(sqliteDayLayout), guideID, delta)

	if err != nil {
		return fmt.Errorf("failed to upsert daily counter: %w", err)
	}
	return nil
}

// SumByKeySince sums counters over [sinceDay, untilDay), grouped by guide.
func (s *SQLiteStore) SumByKeySince(ctx context.Context, sinceDay, untilDay time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guide_id, SUM(clicks)
		FROM guide_clicks_daily
		WHERE day >= ? AND day < ?
		GROUP BY guide_id
	`, models.DayOf(sinceDay).Format(sqliteDayLayout), models.DayOf(untilDay).Format(sqliteDayLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to sum daily counters: %w", err)
	}
	return scanSQLCounts(rows)
}

// ApplyRollup writes a completed day's counts and its completion marker
// in one transaction, skipping days already marked complete.
func (s *SQLiteStore) ApplyRollup(ctx context.Context, day time.Time, counts map[string]int64) (bool, error) {
	dayStr := models.DayOf(day).Format(sqliteDayLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin rollup transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO rollup_runs (day, guide_count, completed_at)
		VALUES (?, ?, ?)
	`, dayStr, len(counts), time.Now().UTC().Format(sqliteTimeLayout))
	if err != nil {
		return false, fmt.Errorf("failed to record rollup marker: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rollup marker: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	for guideID, clicks := range counts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guide_clicks_daily (day, guide_id, clicks)
			VALUES (?, ?, ?)
			ON CONFLICT (day, guide_id)
			DO UPDATE SET clicks = clicks + excluded.clicks
		`, dayStr, guideID, clicks); err != nil {
			return false, fmt.Errorf("failed to apply counter for %s: %w", guideID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rollup: %w", err)
	}
	return true, nil
}

// LastCompletedDay returns the newest day with a completion marker.
func (s *SQLiteStore) LastCompletedDay(ctx context.Context) (time.Time, bool, error) {
	var dayStr string
	err := s.db.QueryRowContext(ctx, `SELECT day FROM rollup_runs ORDER BY day DESC LIMIT 1`).Scan(&dayStr)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last rollup day: %w", err)
	}

	day, err := time.ParseInLocation(sqliteDayLayout, dayStr, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse rollup day %q: %w", dayStr, err)
	}
	return day, true, nil
}

func scanSQLCounts(rows *sql.Rows) (map[string]int64, error) {
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var guideID string
		var n int64
		if err := rows.Scan(&guideID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[guideID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read count rows: %w", err)
	}
	return counts, nil
}
