package trigger

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expr string) *Schedule {
	t.Helper()
	s, err := ParseSchedule(expr)
	if err != nil {
		t.Fatalf("ParseSchedule(%q): %v", expr, err)
	}
	return s
}

func TestScheduleWeekdayMornings(t *testing.T) {
	s := mustParse(t, "0 9 * * 1-5")

	monday := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) // a Monday
	if !s.Matches(monday) {
		t.Errorf("expected match on Monday 09:00")
	}

	saturday := time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC) // a Saturday
	if s.Matches(saturday) {
		t.Errorf("expected no match on Saturday 09:00")
	}

	wrongMinute := time.Date(2025, 3, 3, 9, 1, 0, 0, time.UTC)
	if s.Matches(wrongMinute) {
		t.Errorf("expected no match at 09:01")
	}
}

func TestScheduleWildcards(t *testing.T) {
	s := mustParse(t, "* * * * *")
	times := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC),
	}
	for _, tm := range times {
		if !s.Matches(tm) {
			t.Errorf("wildcard schedule should match %v", tm)
		}
	}
}

func TestScheduleSpecificDay(t *testing.T) {
	s := mustParse(t, "30 14 15 6 *")

	match := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	if !s.Matches(match) {
		t.Errorf("expected match on June 15 14:30")
	}

	wrongMonth := time.Date(2025, 7, 15, 14, 30, 0, 0, time.UTC)
	if s.Matches(wrongMonth) {
		t.Errorf("expected no match in July")
	}
}

func TestScheduleSundayIsZero(t *testing.T) {
	s := mustParse(t, "0 0 * * 0")

	sunday := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC) // a Sunday
	if !s.Matches(sunday) {
		t.Errorf("expected match on Sunday midnight")
	}
	monday := sunday.AddDate(0, 0, 1)
	if s.Matches(monday) {
		t.Errorf("expected no match on Monday")
	}
}

func TestParseScheduleErrors(t *testing.T) {
	cases := []string{
		"",               // empty
		"0 9 * *",        // 4 fields
		"0 9 * * 1-5 *",  // 6 fields
		"60 * * * *",     // minute out of range
		"* 24 * * *",     // hour out of range
		"* * 0 * *",      // day of month out of range
		"* * * 13 *",     // month out of range
		"* * * * 7",      // day of week out of range
		"* * * * 5-1",    // inverted range
		"x * * * *",      // not a number
		"* * * * mon-fri", // names unsupported
	}
	for _, expr := range cases {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q): expected error", expr)
		}
	}
}

func TestScheduleRangeBounds(t *testing.T) {
	s := mustParse(t, "0 9 * * 1-5")

	friday := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC) // a Friday
	if !s.Matches(friday) {
		t.Errorf("expected match on Friday (range end inclusive)")
	}
}
