// Package rollup compacts raw click events into daily counters and
// bounds raw-log growth. A run targets yesterday (UTC), applies its
// counts together with a per-day completion marker in one transaction,
// then purges raw events past the retention horizon. The marker makes
// re-triggered and concurrently triggered runs no-ops for an already
// completed day, and a failed run leaves nothing applied, so a retry
// cannot double count.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/proptradetools/clickstack/internal/metrics"
	"github.com/proptradetools/clickstack/internal/models"
	"github.com/proptradetools/clickstack/internal/storage"
	"go.uber.org/zap"
)

// DefaultRetentionDays is the raw-event retention horizon.
const DefaultRetentionDays = 90

// Engine converts completed days of raw events into daily counters.
type Engine struct {
	raw           storage.RawEventStore
	daily         storage.DailyRollupStore
	retentionDays int
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewEngine creates a rollup engine. retentionDays falls back to the
// default when non-positive.
func NewEngine(raw storage.RawEventStore, daily storage.DailyRollupStore, retentionDays int, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Engine{
		raw:           raw,
		daily:         daily,
		retentionDays: retentionDays,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Run rolls up yesterday's raw events and purges expired ones. Safe to
// invoke repeatedly and concurrently.
func (e *Engine) Run(ctx context.Context) (*models.RollupResult, error) {
	start := e.now()
	today := models.DayOf(start)
	target := today.AddDate(0, 0, -1)

	result := &models.RollupResult{Day: target}

	counts, err := e.raw.CountByKeyOnDay(ctx, target)
	if err != nil {
		e.metrics.RecordRollup("failed", e.now().Sub(start), 0)
		e.metrics.RecordStorageError("rollup_count")
		return nil, fmt.Errorf("failed to count events for %s: %w", target.Format("2006-01-02"), err)
	}

	applied, err := e.daily.ApplyRollup(ctx, target, counts)
	if err != nil {
		e.metrics.RecordRollup("failed", e.now().Sub(start), 0)
		e.metrics.RecordStorageError("rollup_apply")
		e.logger.Error("rollup apply failed",
			zap.Time("day", target),
			zap.Int("guide_count", len(counts)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to apply rollup for %s: %w", target.Format("2006-01-02"), err)
	}

	if applied {
		result.AggregatedKeys = len(counts)
	} else {
		result.AlreadyComplete = true
		e.logger.Info("rollup already complete for day, skipping aggregation",
			zap.Time("day", target),
		)
	}

	purged, err := e.purge(ctx, today)
	if err != nil {
		// Aggregation succeeded; report the purge failure without
		// discarding that progress. The next run purges more.
		e.metrics.RecordRollup("failed", e.now().Sub(start), 0)
		return result, fmt.Errorf("rollup aggregated but purge failed: %w", err)
	}
	result.PurgedEvents = purged

	status := "applied"
	if result.AlreadyComplete {
		status = "skipped"
	}
	e.metrics.RecordRollup(status, e.now().Sub(start), purged)

	e.logger.Info("rollup complete",
		zap.Time("day", target),
		zap.Int("aggregated_guides", result.AggregatedKeys),
		zap.Int64("purged_records", purged),
		zap.Bool("already_complete", result.AlreadyComplete),
	)
	return result, nil
}

// purge deletes raw events older than the retention horizon, clamped so
// it never outruns the last completed rollup: an event is deletable only
// once its day is reflected in the daily counters.
func (e *Engine) purge(ctx context.Context, today time.Time) (int64, error) {
	last, ok, err := e.daily.LastCompletedDay(ctx)
	if err != nil {
		e.metrics.RecordStorageError("rollup_marker")
		return 0, fmt.Errorf("failed to determine purge bound: %w", err)
	}
	if !ok {
		// Nothing rolled up yet, nothing is safe to delete.
		return 0, nil
	}

	cutoff := today.AddDate(0, 0, -e.retentionDays)
	rolledThrough := last.AddDate(0, 0, 1)
	if cutoff.After(rolledThrough) {
		cutoff = rolledThrough
	}

	purged, err := e.raw.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		e.metrics.RecordStorageError("purge")
		return 0, fmt.Errorf("failed to purge events before %s: %w", cutoff.Format("2006-01-02"), err)
	}
	return purged, nil
}
