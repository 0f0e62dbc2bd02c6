package models

import "time"

// ClickEvent is one recorded guide click. Events are immutable once
// written; only the retention purge removes them.
type ClickEvent struct {
	ID        string    `json:"id"`
	GuideID   string    `json:"guide_id"`
	Title     string    `json:"guide_title,omitempty"`
	Href      string    `json:"href,omitempty"`
	UserAgent string    `json:"-"`
	Timestamp time.Time `json:"ts_utc"`
}

// DailyCounter is the per-(day, guide) rollup row. Count only ever grows.
type DailyCounter struct {
	Day     time.Time `json:"day"`
	GuideID string    `json:"guide_id"`
	Clicks  int64     `json:"clicks"`
}

// KeyCount pairs a guide id with an aggregate click count.
type KeyCount struct {
	GuideID string `json:"guide_id"`
	Clicks  int64  `json:"clicks"`
}

// RollupResult summarizes one rollup invocation.
type RollupResult struct {
	Day             time.Time `json:"day"`
	AggregatedKeys  int       `json:"aggregated_guides"`
	PurgedEvents    int64     `json:"purged_records"`
	AlreadyComplete bool      `json:"already_complete"`
}

// NavigationKeys are the pseudo guide ids accepted by the back-link
// instrumentation endpoint. They share storage with real guide clicks
// but bypass the slug rule.
var NavigationKeys = map[string]bool{
	"back_context": true,
	"back_index":   true,
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
