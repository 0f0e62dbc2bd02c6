package storage

import (
	"context"
	"sync"
	"time"

	"github.com/proptradetools/clickstack/internal/models"
)

// InMemoryStore provides in-memory storage for events and counters.
// Used in tests and as a development fallback; it honors the same
// semantics as the SQL backends, including the rollup marker guard.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    []*models.ClickEvent
	daily     map[string]map[string]int64 // day -> guide_id -> clicks
	completed map[string]int              // day -> guide count at completion
}

// NewInMemoryStore creates a new in-memory click store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		daily:     make(map[string]map[string]int64),
		completed: make(map[string]int),
	}
}

// =============================================
// RawEventStore
// =============================================

func (s *InMemoryStore) Append(ctx context.Context, event *models.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

func (s *InMemoryStore) CountByKeySince(ctx context.Context, since time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			counts[e.GuideID]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) CountByKeyOnDay(ctx context.Context, day time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := models.DayOf(day)
	end := start.AddDate(0, 0, 1)

	counts := make(map[string]int64)
	for _, e := range s.events {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			counts[e.GuideID]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var purged int64
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return purged, nil
}

// EventCount returns the number of raw events currently held.
func (s *InMemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// =============================================
// DailyRollupStore
// =============================================

func (s *InMemoryStore) UpsertAdd(ctx context.Context, day time.Time, guideID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertAddLocked(day, guideID, delta)
	return nil
}

func (s *InMemoryStore) upsertAddLocked(day time.Time, guideID string, delta int64) {
	key := models.DayOf(day).Format("2006-01-02")
	if s.daily[key] == nil {
		s.daily[key] = make(map[string]int64)
	}
	s.daily[key][guideID] += delta
}

func (s *InMemoryStore) SumByKeySince(ctx context.Context, sinceDay, untilDay time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := models.DayOf(sinceDay).Format("2006-01-02")
	until := models.DayOf(untilDay).Format("2006-01-02")

	counts := make(map[string]int64)
	for day, byGuide := range s.daily {
		if day < since || day >= until {
			continue
		}
		for guideID, clicks := range byGuide {
			counts[guideID] += clicks
		}
	}
	return counts, nil
}

func (s *InMemoryStore) ApplyRollup(ctx context.Context, day time.Time, counts map[string]int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.DayOf(day).Format("2006-01-02")
	if _, done := s.completed[key]; done {
		return false, nil
	}

	for guideID, clicks := range counts {
		s.upsertAddLocked(day, guideID, clicks)
	}
	s.completed[key] = len(counts)
	return true, nil
}

func (s *InMemoryStore) LastCompletedDay(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last string
	for day := range s.completed {
		if day > last {
			last = day
		}
	}
	if last == "" {
		return time.Time{}, false, nil
	}

	day, err := time.ParseInLocation("2006-01-02", last, time.UTC)
	if err != nil {
		return time.Time{}, false, err
	}
	return day, true, nil
}

// Interface compliance
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
