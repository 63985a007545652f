package store

import (
	"testing"
	"time"
)

func TestWeekAtMidYear(t *testing.T) {
	w := WeekAt(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), time.UTC)
	if w.Year != 2026 || w.Week != 35 {
		t.Fatalf("expected 35/2026, got %+v", w)
	}
}

// Dec 29-31 can belong to ISO week 1 of the following year; the record must then live
// under the ISO year, not the civil one.
func TestWeekAtYearBoundaryForward(t *testing.T) {
	w := WeekAt(time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC), time.UTC)
	if w.Year != 2025 || w.Week != 1 {
		t.Fatalf("expected 1/2025 for 2024-12-30, got %+v", w)
	}
}

// A week-53 year keeps its own ISO year: 2020-12-31 is week 53 of 2020, not year+1.
func TestWeekAtWeek53(t *testing.T) {
	w := WeekAt(time.Date(2020, 12, 31, 12, 0, 0, 0, time.UTC), time.UTC)
	if w.Year != 2020 || w.Week != 53 {
		t.Fatalf("expected 53/2020 for 2020-12-31, got %+v", w)
	}
}

func TestWeekAtUsesCivilTimezone(t *testing.T) {
	// 23:30 UTC on Sunday is already Monday in Warsaw, i.e. the next ISO week
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	instant := time.Date(2026, 8, 30, 22, 30, 0, 0, time.UTC) // Sunday 22:30 UTC = Monday 00:30 CEST
	utcWeek := WeekAt(instant, time.UTC)
	warsawWeek := WeekAt(instant, warsaw)
	if utcWeek.Week == warsawWeek.Week {
		t.Fatalf("expected differing weeks across timezones, got %+v / %+v", utcWeek, warsawWeek)
	}
	if warsawWeek.Week != utcWeek.Week+1 {
		t.Fatalf("expected Warsaw one week ahead, got %+v vs %+v", warsawWeek, utcWeek)
	}
}
