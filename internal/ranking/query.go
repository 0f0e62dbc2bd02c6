// Package ranking answers "top guides over the last N days" by stitching
// rolled-up daily counters with the raw tail that has not been rolled up
// yet. The rollup completion marker anchors the seam between the two, so
// every event is counted exactly once across the moving boundary.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/proptradetools/clickstack/internal/catalog"
	"github.com/proptradetools/clickstack/internal/metrics"
	"github.com/proptradetools/clickstack/internal/models"
	"github.com/proptradetools/clickstack/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Query window and result-size bounds.
const (
	MaxWindowDays  = 365
	MaxLimit       = 100
	MaxWidgetLimit = 20
)

// RankedGuide is one row of a ranking result.
type RankedGuide struct {
	GuideID string `json:"guide_id"`
	Title   string `json:"title"`
	Clicks  int64  `json:"clicks"`
}

// PopularGuide is a catalog-enriched ranking row for the widget.
type PopularGuide struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Href   string `json:"href"`
	Group  string `json:"group"`
	Clicks int64  `json:"clicks"`
}

// Query computes click rankings over the tiered store.
type Query struct {
	raw      storage.RawEventStore
	daily    storage.DailyRollupStore
	catalog  catalog.Lookup
	cache    *redis.Client
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewQuery creates a ranking query. cache may be nil; enrichment uses
// the given catalog for display metadata.
func NewQuery(raw storage.RawEventStore, daily storage.DailyRollupStore, cat catalog.Lookup, m *metrics.Metrics, logger *zap.Logger) *Query {
	return &Query{
		raw:     raw,
		daily:   daily,
		catalog: cat,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SetCache enables caching of widget responses in Redis.
func (q *Query) SetCache(client *redis.Client, ttl time.Duration) {
	q.cache = client
	q.cacheTTL = ttl
}

// SetClock overrides the time source. Test hook.
func (q *Query) SetClock(now func() time.Time) { q.now = now }

// TopKeys returns guide ids ranked by click count over the last
// windowDays, ordered by count descending then id ascending. An empty
// result is valid when no events exist.
func (q *Query) TopKeys(ctx context.Context, windowDays, limit int) ([]models.KeyCount, error) {
	windowDays = clamp(windowDays, 1, MaxWindowDays)
	limit = clamp(limit, 1, MaxLimit)

	start := q.now()
	today := models.DayOf(start)
	windowStart := today.AddDate(0, 0, -windowDays)

	counts, hybrid := q.countWindow(ctx, windowStart, today)
	if counts == nil {
		// Both paths failed; ranking is advisory, but the caller still
		// needs to know nothing was computed.
		return nil, fmt.Errorf("ranking query failed for %d day window", windowDays)
	}

	path := "hybrid"
	if !hybrid {
		path = "raw"
	}
	q.metrics.RecordQuery(path, q.now().Sub(start))

	return rank(counts, limit), nil
}

// countWindow produces per-guide counts for [windowStart, now). The
// second return is true when the hybrid path was used, false when the
// raw-only fallback answered. A nil map means both paths failed.
func (q *Query) countWindow(ctx context.Context, windowStart, today time.Time) (map[string]int64, bool) {
	last, ok, err := q.daily.LastCompletedDay(ctx)
	if err != nil {
		q.metrics.RecordStorageError("query_marker")
		q.logger.Warn("rollup marker lookup failed, falling back to raw scan", zap.Error(err))
		return q.rawOnly(ctx, windowStart), false
	}
	if !ok {
		// Fresh store: nothing rolled up yet.
		return q.rawOnly(ctx, windowStart), false
	}

	closedUntil := last.AddDate(0, 0, 1)
	if closedUntil.After(today) {
		closedUntil = today
	}

	closed, err := q.daily.SumByKeySince(ctx, windowStart, closedUntil)
	if err != nil {
		q.metrics.RecordStorageError("query_daily")
		q.logger.Warn("daily counter scan failed, falling back to raw scan", zap.Error(err))
		return q.rawOnly(ctx, windowStart), false
	}
	if len(closed) == 0 && windowStart.Before(closedUntil) {
		// No rolled-up rows in the window. Raw data may predate the
		// first rollup, so scan the whole window as a backstop.
		return q.rawOnly(ctx, windowStart), false
	}

	if closed == nil {
		closed = make(map[string]int64)
	}

	openSince := closedUntil
	if openSince.Before(windowStart) {
		openSince = windowStart
	}

	open, err := q.raw.CountByKeySince(ctx, openSince)
	if err != nil {
		q.metrics.RecordStorageError("query_raw")
		q.logger.Warn("raw tail scan failed, falling back to raw scan", zap.Error(err))
		return q.rawOnly(ctx, windowStart), false
	}

	for guideID, n := range open {
		closed[guideID] += n
	}
	return closed, true
}

func (q *Query) rawOnly(ctx context.Context, windowStart time.Time) map[string]int64 {
	counts, err := q.raw.CountByKeySince(ctx, windowStart)
	if err != nil {
		q.metrics.RecordStorageError("query_raw")
		q.logger.Error("raw fallback scan failed", zap.Error(err))
		return nil
	}
	return counts
}

// TopGuides returns the ranked guides with display titles for the
// reporting endpoint. Guides missing from the catalog keep their id as
// the title so raw data stays inspectable.
func (q *Query) TopGuides(ctx context.Context, windowDays, limit int) ([]RankedGuide, error) {
	keys, err := q.TopKeys(ctx, windowDays, limit)
	if err != nil {
		return nil, err
	}

	guides := make([]RankedGuide, 0, len(keys))
	for _, kc := range keys {
		title := kc.GuideID
		if g, ok := q.catalog.ByID(kc.GuideID); ok {
			title = g.Title
		}
		guides = append(guides, RankedGuide{GuideID: kc.GuideID, Title: title, Clicks: kc.Clicks})
	}
	return guides, nil
}

// Popular returns the catalog-enriched ranking for the widget. Entries
// not present in the catalog are dropped; navigation pseudo-keys fall
// out here naturally. Responses are cached briefly when Redis is wired.
func (q *Query) Popular(ctx context.Context, windowDays, limit int) ([]PopularGuide, error) {
	windowDays = clamp(windowDays, 1, MaxWindowDays)
	limit = clamp(limit, 1, MaxWidgetLimit)

	cacheKey := fmt.Sprintf("clickstack:popular:%d:%d", windowDays, limit)
	if cached, ok := q.cacheGet(ctx, cacheKey); ok {
		return cached, nil
	}

	// Over-fetch so catalog filtering does not shrink the page.
	keys, err := q.TopKeys(ctx, windowDays, MaxLimit)
	if err != nil {
		return nil, err
	}

	guides := make([]PopularGuide, 0, limit)
	for _, kc := range keys {
		g, ok := q.catalog.ByID(kc.GuideID)
		if !ok {
			continue
		}
		guides = append(guides, PopularGuide{
			ID:     g.ID,
			Title:  g.Title,
			Href:   g.Href,
			Group:  g.Group,
			Clicks: kc.Clicks,
		})
		if len(guides) == limit {
			break
		}
	}

	q.cacheSet(ctx, cacheKey, guides)
	return guides, nil
}

func (q *Query) cacheGet(ctx context.Context, key string) ([]PopularGuide, bool) {
	if q.cache == nil {
		return nil, false
	}
	raw, err := q.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			q.logger.Debug("popular cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var guides []PopularGuide
	if err := json.Unmarshal(raw, &guides); err != nil {
		return nil, false
	}
	return guides, true
}

func (q *Query) cacheSet(ctx context.Context, key string, guides []PopularGuide) {
	if q.cache == nil {
		return
	}
	raw, err := json.Marshal(guides)
	if err != nil {
		return
	}
	if err := q.cache.Set(ctx, key, raw, q.cacheTTL).Err(); err != nil {
		q.logger.Debug("popular cache write failed", zap.Error(err))
	}
}

// rank orders counts by clicks descending, guide id ascending, and
// truncates to limit.
func rank(counts map[string]int64, limit int) []models.KeyCount {
	ranked := make([]models.KeyCount, 0, len(counts))
	for guideID, n := range counts {
		ranked = append(ranked, models.KeyCount{GuideID: guideID, Clicks: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Clicks != ranked[j].Clicks {
			return ranked[i].Clicks > ranked[j].Clicks
		}
		return ranked[i].GuideID < ranked[j].GuideID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
