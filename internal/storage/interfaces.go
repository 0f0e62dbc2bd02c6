package storage

import (
	"context"
	"time"

	"github.com/proptradetools/clickstack/internal/models"
)

// =============================================
// RAW EVENT STORE
// =============================================

// RawEventStore is the append-only click log. Events are never updated;
// the only deletion path is the retention purge.
type RawEventStore interface {
	// Append durably stores one event. Safe under concurrent callers.
	Append(ctx context.Context, event *models.ClickEvent) error

	// CountByKeySince counts events with Timestamp >= since, grouped by
	// guide id. Used for the open tail of ranking queries and for the
	// raw-only fallback.
	CountByKeySince(ctx context.Context, since time.Time) (map[string]int64, error)

	// CountByKeyOnDay counts events whose timestamp falls on the given
	// UTC day, grouped by guide id. Used by the rollup.
	CountByKeyOnDay(ctx context.Context, day time.Time) (map[string]int64, error)

	// PurgeOlderThan deletes events with Timestamp < cutoff and returns
	// the number removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// =============================================
// DAILY ROLLUP STORE
// =============================================

// DailyRollupStore holds per-(day, guide) click counters plus the
// per-day rollup completion markers that guard re-aggregation.
type DailyRollupStore interface {
	// UpsertAdd atomically adds delta to the (day, guide) counter,
	// inserting it if absent. Implemented with the backend's native
	// upsert primitive, never read-then-write.
	UpsertAdd(ctx context.Context, day time.Time, guideID string, delta int64) error

	// SumByKeySince sums counters over the half-open day range
	// [sinceDay, untilDay), grouped by guide id.
	SumByKeySince(ctx context.Context, sinceDay, untilDay time.Time) (map[string]int64, error)

	// ApplyRollup applies a full day's counts and records the completion
	// marker in a single transaction. Returns false without writing
	// anything when the day is already marked complete, so a retried or
	// racing rollup cannot double count.
	ApplyRollup(ctx context.Context, day time.Time, counts map[string]int64) (bool, error)

	// LastCompletedDay returns the most recent day with a completion
	// marker. ok is false when no rollup has ever completed.
	LastCompletedDay(ctx context.Context) (day time.Time, ok bool, err error)
}

// Store bundles both halves of the tiered click store, implemented
// together by each backend.
type Store interface {
	RawEventStore
	DailyRollupStore
}
