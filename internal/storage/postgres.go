package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proptradetools/clickstack/internal/models"
)

// PostgresStore implements Store on a pgx connection pool. Each call
// acquires a connection from the pool for its own duration only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed click store and ensures
// its schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS guide_clicks (
			id UUID PRIMARY KEY,
			guide_id TEXT NOT NULL,
			guide_title TEXT,
			href TEXT,
			ua TEXT,
			ts_utc TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_ts ON guide_clicks (ts_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_gid ON guide_clicks (guide_id)`,
		`CREATE TABLE IF NOT EXISTS guide_clicks_daily (
			day DATE NOT NULL,
			guide_id TEXT NOT NULL,
			clicks BIGINT NOT NULL,
			PRIMARY KEY (day, guide_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_gid ON guide_clicks_daily (guide_id)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_date ON guide_clicks_daily (day)`,
		`CREATE TABLE IF NOT EXISTS rollup_runs (
			day DATE PRIMARY KEY,
			guide_count INTEGER NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate click schema: %w", err)
		}
	}
	return nil
}

// =============================================
// RawEventStore
// =============================================

// Append stores one click event.
func (s *PostgresStore) Append(ctx context.Context, event *models.ClickEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guide_clicks (id, guide_id, guide_title, href, ua, ts_utc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.GuideID, nullString(event.Title), nullString(event.Href),
		nullString(event.UserAgent), event.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to append click: %w", err)
	}
	return nil
}

// CountByKeySince counts raw events newer than since, grouped by guide.
func (s *PostgresStore) CountByKeySince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guide_id, COUNT(*)
		FROM guide_clicks
		WHERE ts_utc >= $1
		GROUP BY guide_id
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks since %s: %w", since.Format(time.RFC3339), err)
	}
	return scanCounts(rows)
}

// CountByKeyOnDay counts raw events on one UTC day, grouped by guide.
func (s *PostgresStore) CountByKeyOnDay(ctx context.Context, day time.Time) (map[string]int64, error) {
	start := models.DayOf(day)
	end := start.AddDate(0, 0, 1)

	rows, err := s.pool.Query(ctx, `
		SELECT guide_id, COUNT(*)
		FROM guide_clicks
		WHERE ts_utc >= $1 AND ts_utc < $2
		GROUP BY guide_id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks on %s: %w", start.Format("2006-01-02"), err)
	}
	return scanCounts(rows)
}

// PurgeOlderThan deletes raw events older than cutoff.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM guide_clicks WHERE ts_utc < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge clicks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// =============================================
// DailyRollupStore
// =============================================

// UpsertAdd atomically adds delta to the (day, guide) counter.
func (s *PostgresStore) UpsertAdd(ctx context.Context, day time.Time, guideID string, delta int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guide_clicks_daily (day, guide_id, clicks)
		VALUES ($1, $2, $3)
		ON CONFLICT (day, guide_id)
		DO UPDATE SET clicks = guide_clicks_daily.clicks + EXCLUDED.clicks
	`, models.DayOf(day), guideID, delta)

	if err != nil {
		return fmt.Errorf("failed to upsert daily counter: %w", err)
	}
	return nil
}

// SumByKeySince sums counters over [sinceDay, untilDay), grouped by guide.
func (s *PostgresStore) SumByKeySince(ctx context.Context, sinceDay, untilDay time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guide_id, SUM(clicks)
		FROM guide_clicks_daily
		WHERE day >= $1 AND day < $2
		GROUP BY guide_id
	`, models.DayOf(sinceDay), models.DayOf(untilDay))
	if err != nil {
		return nil, fmt.Errorf("failed to sum daily counters: %w", err)
	}
	return scanCounts(rows)
}

// ApplyRollup writes a completed day's counts and its completion marker
// in one transaction. The marker insert doubles as the mutual-exclusion
// check: a day that already has one is left untouched.
func (s *PostgresStore) ApplyRollup(ctx context.Context, day time.Time, counts map[string]int64) (bool, error) {
	day = models.DayOf(day)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin rollup transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO rollup_runs (day, guide_count, completed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (day) DO NOTHING
	`, day, len(counts))
	if err != nil {
		return false, fmt.Errorf("failed to record rollup marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for guideID, clicks := range counts {
		if _, err := tx.Exec(ctx, `
			INSERT INTO guide_clicks_daily (day, guide_id, clicks)
			VALUES ($1, $2, $3)
			ON CONFLICT (day, guide_id)
			DO UPDATE SET clicks = guide_clicks_daily.clicks + EXCLUDED.clicks
		`, day, guideID, clicks); err != nil {
			return false, fmt.Errorf("failed to apply counter for %s: %w", guideID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit rollup: %w", err)
	}
	return true, nil
}

// LastCompletedDay returns the newest day with a completion marker.
func (s *PostgresStore) LastCompletedDay(ctx context.Context) (time.Time, bool, error) {
	var day time.Time
	err := s.pool.QueryRow(ctx, `SELECT day FROM rollup_runs ORDER BY day DESC LIMIT 1`).Scan(&day)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last rollup day: %w", err)
	}
	return models.DayOf(day), true, nil
}

func scanCounts(rows pgx.Rows) (map[string]int64, error) {
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

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
