package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression
// (minute hour dayOfMonth month dayOfWeek), evaluated at minute
// resolution. "*" leaves a field unconstrained. The dayOfWeek field
// additionally supports simple ranges like "1-5" (Sunday = 0).
//
// Expressions are parsed once into a Schedule and matched repeatedly
// against instants, instead of re-parsing the string on every tick.
type Schedule struct {
	minute     fieldMatcher
	hour       fieldMatcher
	dayOfMonth fieldMatcher
	month      fieldMatcher
	dayOfWeek  fieldMatcher
}

// fieldMatcher matches one cron field. A nil allowed set means wildcard.
type fieldMatcher struct {
	allowed map[int]bool
}

func (f fieldMatcher) matches(v int) bool {
	return f.allowed == nil || f.allowed[v]
}

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("schedule %q: expected 5 fields, got %d", expr, len(fields))
	}

	s := &Schedule{}
	specs := []struct {
		name   string
		min    int
		max    int
		target *fieldMatcher
	}{
		{"minute", 0, 59, &s.minute},
		{"hour", 0, 23, &s.hour},
		{"day_of_month", 1, 31, &s.dayOfMonth},
		{"month", 1, 12, &s.month},
		{"day_of_week", 0, 6, &s.dayOfWeek},
	}

	for i, spec := range specs {
		m, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %s: %w", expr, spec.name, err)
		}
		*spec.target = m
	}
	return s, nil
}

// parseField parses a single cron field: "*", a number, or "a-b".
func parseField(field string, min, max int) (fieldMatcher, error) {
	if field == "*" {
		return fieldMatcher{}, nil
	}

	allowed := make(map[int]bool)
	if lo, hi, ok := strings.Cut(field, "-"); ok {
		start, err := parseBounded(lo, min, max)
		if err != nil {
			return fieldMatcher{}, err
		}
		end, err := parseBounded(hi, min, max)
		if err != nil {
			return fieldMatcher{}, err
		}
		if start > end {
			return fieldMatcher{}, fmt.Errorf("range %q: start after end", field)
		}
		for v := start; v <= end; v++ {
			allowed[v] = true
		}
		return fieldMatcher{allowed: allowed}, nil
	}

	v, err := parseBounded(field, min, max)
	if err != nil {
		return fieldMatcher{}, err
	}
	allowed[v] = true
	return fieldMatcher{allowed: allowed}, nil
}

func parseBounded(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("value %q: not a number", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", v, min, max)
	}
	return v, nil
}

// Matches reports whether the instant t satisfies every specified field.
// The caller is responsible for converting t to the evaluation timezone.
func (s *Schedule) Matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}
