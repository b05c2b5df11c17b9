// Package scheduler dispatches registered jobs on 5-field cron expressions,
// with a file lock against overlapping processes and per-category
// concurrency caps. It drives the monthly and quarterly synthesis sweeps.
package scheduler

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed 5-field cron expression
// (minute hour day-of-month month day-of-week).
type CronExpr struct {
	Minute     []int
	Hour       []int
	DayOfMonth []int
	Month      []int
	DayOfWeek  []int
}

// ParseCron parses a 5-field cron expression. Fields accept *, N, N-M,
// comma-separated lists, and a /S step suffix on * or a range.
func ParseCron(expr string) (*CronExpr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	var c CronExpr
	specs := []struct {
		name     string
		min, max int
		dst      *[]int
	}{
		{"minute", 0, 59, &c.Minute},
		{"hour", 0, 23, &c.Hour},
		{"day-of-month", 1, 31, &c.DayOfMonth},
		{"month", 1, 12, &c.Month},
		{"day-of-week", 0, 6, &c.DayOfWeek},
	}
	for i, spec := range specs {
		vals, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", spec.name, err)
		}
		*spec.dst = vals
	}
	return &c, nil
}

// Matches reports whether t satisfies every field of the expression.
func (c *CronExpr) Matches(t time.Time) bool {
	return slices.Contains(c.Minute, t.Minute()) &&
		slices.Contains(c.Hour, t.Hour()) &&
		slices.Contains(c.DayOfMonth, t.Day()) &&
		slices.Contains(c.Month, int(t.Month())) &&
		slices.Contains(c.DayOfWeek, int(t.Weekday()))
}

// Next returns the first time after t matching the expression, searching at
// most two years ahead (zero time beyond that). Non-matching months and
// days are skipped whole rather than minute by minute.
func (c *CronExpr) Next(t time.Time) time.Time {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(2, 0, 0)

	for candidate.Before(limit) {
		switch {
		case !slices.Contains(c.Month, int(candidate.Month())):
			candidate = time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, candidate.Location())
		case !slices.Contains(c.DayOfMonth, candidate.Day()) || !slices.Contains(c.DayOfWeek, int(candidate.Weekday())):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, 0, 0, 0, 0, candidate.Location())
		case !slices.Contains(c.Hour, candidate.Hour()):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), candidate.Hour()+1, 0, 0, 0, candidate.Location())
		case !slices.Contains(c.Minute, candidate.Minute()):
			candidate = candidate.Add(time.Minute)
		default:
			return candidate
		}
	}
	return time.Time{}
}

// parseField expands one field into a sorted, deduplicated value list.
func parseField(field string, min, max int) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		lo, hi, step, err := parsePart(part, min, max)
		if err != nil {
			return nil, err
		}
		for v := lo; v <= hi; v += step {
			seen[v] = true
		}
	}
	vals := make([]int, 0, len(seen))
	for v := range seen {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	return vals, nil
}

// parsePart resolves one list element to an inclusive range plus step.
func parsePart(part string, min, max int) (lo, hi, step int, err error) {
	step = 1
	base := part
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		base = part[:idx]
		step, err = strconv.Atoi(part[idx+1:])
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid step in %q", part)
		}
	}

	switch {
	case base == "*":
		return min, max, step, nil

	case strings.Contains(base, "-"):
		bounds := strings.SplitN(base, "-", 2)
		lo, err = strconv.Atoi(bounds[0])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start %q", bounds[0])
		}
		hi, err = strconv.Atoi(bounds[1])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end %q", bounds[1])
		}
		if lo < min || hi > max || lo > hi {
			return 0, 0, 0, fmt.Errorf("range %d-%d out of bounds [%d,%d]", lo, hi, min, max)
		}
		return lo, hi, step, nil

	default:
		v, convErr := strconv.Atoi(base)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("invalid value %q", base)
		}
		if v < min || v > max {
			return 0, 0, 0, fmt.Errorf("value %d out of bounds [%d,%d]", v, min, max)
		}
		return v, v, step, nil
	}
}
