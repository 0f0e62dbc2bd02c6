package storage

import (
	"context"
	"testing"
	"time"

	"github.com/proptradetools/clickstack/internal/models"
)

func day(s string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func appendClick(t *testing.T, s *InMemoryStore, guideID string, ts time.Time) {
	t.Helper()
	err := s.Append(context.Background(), &models.ClickEvent{
		ID:        guideID + ts.Format(time.RFC3339Nano),
		GuideID:   guideID,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestCountByKeySince(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	appendClick(t, s, "ftmo-challenge", day("2026-01-10").Add(3*time.Hour))
	appendClick(t, s, "ftmo-challenge", day("2026-01-11").Add(5*time.Hour))
	appendClick(t, s, "prop-firm-basics", day("2026-01-11").Add(6*time.Hour))
	appendClick(t, s, "prop-firm-basics", day("2026-01-09"))

	counts, err := s.CountByKeySince(ctx, day("2026-01-10"))
	if err != nil {
		t.Fatalf("CountByKeySince: %v", err)
	}
	if counts["ftmo-challenge"] != 2 {
		t.Errorf("ftmo-challenge = %d, want 2", counts["ftmo-challenge"])
	}
	if counts["prop-firm-basics"] != 1 {
		t.Errorf("prop-firm-basics = %d, want 1", counts["prop-firm-basics"])
	}
}

func TestCountByKeyOnDayBounds(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	target := day("2026-01-10")
	appendClick(t, s, "g", target)                                   // midnight, inclusive
	appendClick(t, s, "g", target.Add(23*time.Hour+59*time.Minute))  // end of day
	appendClick(t, s, "g", target.AddDate(0, 0, 1))                  // next midnight, exclusive
	appendClick(t, s, "g", target.Add(-time.Nanosecond))             // previous day

	counts, err := s.CountByKeyOnDay(ctx, target)
	if err != nil {
		t.Fatalf("CountByKeyOnDay: %v", err)
	}
	if counts["g"] != 2 {
		t.Errorf("counts[g] = %d, want 2", counts["g"])
	}
}

func TestPurgeOlderThan(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	appendClick(t, s, "old", day("2026-01-01"))
	appendClick(t, s, "old", day("2026-01-02"))
	appendClick(t, s, "new", day("2026-01-05"))

	purged, err := s.PurgeOlderThan(ctx, day("2026-01-05"))
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
	if s.EventCount() != 1 {
		t.Errorf("EventCount = %d, want 1", s.EventCount())
	}

	// Purge is idempotent once the window is clear.
	purged, err = s.PurgeOlderThan(ctx, day("2026-01-05"))
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if purged != 0 {
		t.Errorf("second purge = %d, want 0", purged)
	}
}

func TestSumByKeySinceHalfOpen(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, d := range []string{"2026-01-08", "2026-01-09", "2026-01-10"} {
		if err := s.UpsertAdd(ctx, day(d), "g", 1); err != nil {
			t.Fatalf("UpsertAdd: %v", err)
		}
	}

	sums, err := s.SumByKeySince(ctx, day("2026-01-08"), day("2026-01-10"))
	if err != nil {
		t.Fatalf("SumByKeySince: %v", err)
	}
	if sums["g"] != 2 {
		t.Errorf("sums[g] = %d, want 2 (until day excluded)", sums["g"])
	}
}

func TestUpsertAddAccumulates(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	d := day("2026-01-10")
	if err := s.UpsertAdd(ctx, d, "g", 3); err != nil {
		t.Fatalf("UpsertAdd: %v", err)
	}
	if err := s.UpsertAdd(ctx, d, "g", 4); err != nil {
		t.Fatalf("UpsertAdd: %v", err)
	}

	sums, err := s.SumByKeySince(ctx, d, d.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("SumByKeySince: %v", err)
	}
	if sums["g"] != 7 {
		t.Errorf("sums[g] = %d, want 7", sums["g"])
	}
}

func TestApplyRollupGuard(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	d := day("2026-01-10")
	applied, err := s.ApplyRollup(ctx, d, map[string]int64{"g": 5})
	if err != nil {
		t.Fatalf("ApplyRollup: %v", err)
	}
	if !applied {
		t.Fatal("first ApplyRollup returned applied=false")
	}

	// Re-applying the same day must be a no-op, even with different counts.
	applied, err = s.ApplyRollup(ctx, d, map[string]int64{"g": 99})
	if err != nil {
		t.Fatalf("ApplyRollup: %v", err)
	}
	if applied {
		t.Fatal("second ApplyRollup returned applied=true")
	}

	sums, err := s.SumByKeySince(ctx, d, d.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("SumByKeySince: %v", err)
	}
	if sums["g"] != 5 {
		t.Errorf("sums[g] = %d, want 5 (no double counting)", sums["g"])
	}
}

func TestApplyRollupEmptyDayStillCompletes(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	d := day("2026-01-10")
	applied, err := s.ApplyRollup(ctx, d, nil)
	if err != nil {
		t.Fatalf("ApplyRollup: %v", err)
	}
	if !applied {
		t.Fatal("empty-day ApplyRollup returned applied=false")
	}

	last, ok, err := s.LastCompletedDay(ctx)
	if err != nil {
		t.Fatalf("LastCompletedDay: %v", err)
	}
	if !ok || !last.Equal(d) {
		t.Errorf("LastCompletedDay = (%v, %v), want (%v, true)", last, ok, d)
	}
}

func TestLastCompletedDay(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, ok, err := s.LastCompletedDay(ctx)
	if err != nil {
		t.Fatalf("LastCompletedDay: %v", err)
	}
	if ok {
		t.Fatal("fresh store reports a completed day")
	}

	for _, d := range []string{"2026-01-08", "2026-01-10", "2026-01-09"} {
		if _, err := s.ApplyRollup(ctx, day(d), nil); err != nil {
			t.Fatalf("ApplyRollup(%s): %v", d, err)
		}
	}

	last, ok, err := s.LastCompletedDay(ctx)
	if err != nil {
		t.Fatalf("LastCompletedDay: %v", err)
	}
	if !ok || !last.Equal(day("2026-01-10")) {
		t.Errorf("LastCompletedDay = (%v, %v), want 2026-01-10", last, ok)
	}
}
