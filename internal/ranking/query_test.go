package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/proptradetools/clickstack/internal/catalog"
	"github.com/proptradetools/clickstack/internal/models"
	"github.com/proptradetools/clickstack/internal/storage"
	"go.uber.org/zap"
)

func day(s string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func fillDay(t *testing.T, store *storage.InMemoryStore, guideID string, d time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Append(context.Background(), &models.ClickEvent{
			ID:        guideID + d.Format("2006-01-02") + string(rune('a'+i)),
			GuideID:   guideID,
			Timestamp: d.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func newTestQuery(store storage.Store, today time.Time) *Query {
	q := NewQuery(store, store, catalog.Default(), nil, zap.NewNop())
	q.SetClock(func() time.Time { return today.Add(12 * time.Hour) })
	return q
}

func TestTopKeysRawOnlyFreshStore(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")

	fillDay(t, store, "what-is-a-prop-firm", today, 5)
	fillDay(t, store, "best-prop-firm-to-start", today, 3)

	q := newTestQuery(store, today)
	keys, err := q.TopKeys(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("TopKeys: %v", err)
	}

	want := []models.KeyCount{
		{GuideID: "what-is-a-prop-firm", Clicks: 5},
		{GuideID: "best-prop-firm-to-start", Clicks: 3},
	}
	assertRanking(t, keys, want)
}

func TestTopKeysHybridCountsExactlyOnce(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")
	yesterday := day("2026-01-10")

	// Yesterday's events are rolled up but still present in the raw log
	// (purge has not caught up). They must not count twice.
	fillDay(t, store, "what-is-a-prop-firm", yesterday, 5)
	fillDay(t, store, "best-prop-firm-to-start", yesterday, 3)
	if _, err := store.ApplyRollup(context.Background(), yesterday, map[string]int64{
		"what-is-a-prop-firm":     5,
		"best-prop-firm-to-start": 3,
	}); err != nil {
		t.Fatalf("ApplyRollup: %v", err)
	}

	// Today's tail exists only in the raw log.
	fillDay(t, store, "what-is-a-prop-firm", today, 2)

	q := newTestQuery(store, today)
	keys, err := q.TopKeys(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("TopKeys: %v", err)
	}

	want := []models.KeyCount{
		{GuideID: "what-is-a-prop-firm", Clicks: 7},
		{GuideID: "best-prop-firm-to-start", Clicks: 3},
	}
	assertRanking(t, keys, want)
}

func TestTopKeysOrderingAndTieBreak(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")

	fillDay(t, store, "zebra-guide", today, 4)
	fillDay(t, store, "alpha-guide", today, 4)
	fillDay(t, store, "mid-guide", today, 9)

	q := newTestQuery(store, today)
	keys, err := q.TopKeys(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("TopKeys: %v", err)
	}

	want := []models.KeyCount{
		{GuideID: "mid-guide", Clicks: 9},
		{GuideID: "alpha-guide", Clicks: 4},
		{GuideID: "zebra-guide", Clicks: 4},
	}
	assertRanking(t, keys, want)
}

func TestTopKeysLimitTruncates(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")

	for _, g := range []string{"a-guide", "b-guide", "c-guide", "d-guide"} {
		fillDay(t, store, g, today, 1)
	}

	q := newTestQuery(store, today)
	keys, err := q.TopKeys(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("TopKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len = %d, want 2", len(keys))
	}
}

func TestTopKeysEmptyStore(t *testing.T) {
	q := newTestQuery(storage.NewInMemoryStore(), day("2026-01-11"))
	keys, err := q.TopKeys(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("TopKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("len = %d, want 0", len(keys))
	}
}

func TestTopKeysClampsWindowAndLimit(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")
	fillDay(t, store, "what-is-a-prop-firm", today, 1)

	q := newTestQuery(store, today)
	for _, args := range [][2]int{{-5, 0}, {0, -1}, {100000, 100000}} {
		if _, err := q.TopKeys(context.Background(), args[0], args[1]); err != nil {
			t.Errorf("TopKeys(%d, %d): %v", args[0], args[1], err)
		}
	}
}

func TestTopKeysFallsBackWhenDailyFails(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")
	fillDay(t, store, "what-is-a-prop-firm", today, 4)

	broken := &brokenDailyStore{InMemoryStore: store}
	q := NewQuery(store, broken, catalog.Default(), nil, zap.NewNop())
	q.SetClock(func() time.Time { return today.Add(12 * time.Hour) })

	keys, err := q.TopKeys(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("TopKeys: %v", err)
	}
	assertRanking(t, keys, []models.KeyCount{{GuideID: "what-is-a-prop-firm", Clicks: 4}})
}

func TestTopKeysErrorsWhenBothTiersFail(t *testing.T) {
	q := NewQuery(&brokenRawStore{}, &brokenDailyStore{}, catalog.Default(), nil, zap.NewNop())
	q.SetClock(func() time.Time { return day("2026-01-11") })

	if _, err := q.TopKeys(context.Background(), 7, 10); err == nil {
		t.Fatal("TopKeys succeeded with both tiers failing")
	}
}

func TestTopGuidesEnrichesTitles(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")

	fillDay(t, store, "what-is-a-prop-firm", today, 3)
	fillDay(t, store, "not-in-catalog", today, 1)

	q := newTestQuery(store, today)
	guides, err := q.TopGuides(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("TopGuides: %v", err)
	}
	if len(guides) != 2 {
		t.Fatalf("len = %d, want 2", len(guides))
	}
	if guides[0].GuideID != "what-is-a-prop-firm" || guides[0].Title == "what-is-a-prop-firm" {
		t.Errorf("catalog guide not enriched: %+v", guides[0])
	}
	if guides[1].Title != "not-in-catalog" {
		t.Errorf("unknown guide should keep id as title: %+v", guides[1])
	}
}

func TestPopularFiltersToCatalog(t *testing.T) {
	store := storage.NewInMemoryStore()
	today := day("2026-01-11")

	fillDay(t, store, "what-is-a-prop-firm", today, 5)
	fillDay(t, store, "back_context", today, 9) // navigation pseudo-key
	fillDay(t, store, "unknown-guide", today, 7)

	q := newTestQuery(store, today)
	guides, err := q.Popular(context.Background(), 30, 5)
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if len(guides) != 1 {
		t.Fatalf("len = %d, want 1: %+v", len(guides), guides)
	}
	if guides[0].ID != "what-is-a-prop-firm" || guides[0].Href == "" || guides[0].Clicks != 5 {
		t.Errorf("guide = %+v", guides[0])
	}
}

func assertRanking(t *testing.T, got, want []models.KeyCount) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rank %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

type brokenDailyStore struct {
	*storage.InMemoryStore
}

func (b *brokenDailyStore) LastCompletedDay(ctx context.Context) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("connection refused")
}

func (b *brokenDailyStore) SumByKeySince(ctx context.Context, sinceDay, untilDay time.Time) (map[string]int64, error) {
	return nil, errors.New("connection refused")
}

func (b *brokenDailyStore) UpsertAdd(ctx context.Context, d time.Time, guideID string, delta int64) error {
	return errors.New("connection refused")
}

func (b *brokenDailyStore) ApplyRollup(ctx context.Context, d time.Time, counts map[string]int64) (bool, error) {
	return false, errors.New("connection refused")
}

type brokenRawStore struct{}

func (b *brokenRawStore) Append(ctx context.Context, event *models.ClickEvent) error {
	return errors.New("connection refused")
}

func (b *brokenRawStore) CountByKeySince(ctx context.Context, since time.Time) (map[string]int64, error) {
	return nil, errors.New("connection refused")
}

func (b *brokenRawStore) CountByKeyOnDay(ctx context.Context, d time.Time) (map[string]int64, error) {
	return nil, errors.New("connection refused")
}

func (b *brokenRawStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}
