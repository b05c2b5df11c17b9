package scheduler

import (
	"slices"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	valid := []string{
		"* * * * *",
		"0 6 1 * *",
		"0 7 1 1,4,7,10 *",
		"*/15 * * * *",
		"30 9-17 * * 1-5",
		"0,30 * * * *",
	}
	for _, expr := range valid {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("ParseCron(%q): unexpected error %v", expr, err)
		}
	}

	invalid := []string{
		"",
		"* * *",
		"* * * * * *",
		"60 * * * *",
		"* 25 * * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"abc * * * *",
		"* * 5-2 * *",
	}
	for _, expr := range invalid {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q): expected error, got nil", expr)
		}
	}
}

func TestParseCronFields(t *testing.T) {
	c, err := ParseCron("*/15 6 1,15 1,4,7,10 *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []int{0, 15, 30, 45}; !slices.Equal(c.Minute, want) {
		t.Errorf("expected minutes %v, got %v", want, c.Minute)
	}
	if want := []int{6}; !slices.Equal(c.Hour, want) {
		t.Errorf("expected hours %v, got %v", want, c.Hour)
	}
	if want := []int{1, 15}; !slices.Equal(c.DayOfMonth, want) {
		t.Errorf("expected days %v, got %v", want, c.DayOfMonth)
	}
	if want := []int{1, 4, 7, 10}; !slices.Equal(c.Month, want) {
		t.Errorf("expected months %v, got %v", want, c.Month)
	}
	if len(c.DayOfWeek) != 7 {
		t.Errorf("expected all 7 weekdays, got %v", c.DayOfWeek)
	}
}

func TestCronMatches(t *testing.T) {
	tests := []struct {
		expr string
		at   time.Time
		want bool
	}{
		{"0 6 1 * *", time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC), true},
		{"0 6 1 * *", time.Date(2025, 7, 2, 6, 0, 0, 0, time.UTC), false},
		{"0 6 1 * *", time.Date(2025, 7, 1, 7, 0, 0, 0, time.UTC), false},
		{"0 6 1 * *", time.Date(2025, 7, 1, 6, 1, 0, 0, time.UTC), false},
		{"0 7 1 1,4,7,10 *", time.Date(2025, 10, 1, 7, 0, 0, 0, time.UTC), true},
		{"0 7 1 1,4,7,10 *", time.Date(2025, 2, 1, 7, 0, 0, 0, time.UTC), false},
		{"30 9-17 * * 1-5", time.Date(2025, 7, 7, 10, 30, 0, 0, time.UTC), true},  // Monday
		{"30 9-17 * * 1-5", time.Date(2025, 7, 6, 10, 30, 0, 0, time.UTC), false}, // Sunday
	}
	for _, tt := range tests {
		c, err := ParseCron(tt.expr)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.expr, err)
		}
		if got := c.Matches(tt.at); got != tt.want {
			t.Errorf("%q.Matches(%v): expected %v, got %v", tt.expr, tt.at, tt.want, got)
		}
	}
}

func TestCronNext(t *testing.T) {
	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			"0 6 1 * *",
			time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			"0 6 1 * *",
			time.Date(2025, 7, 1, 5, 59, 0, 0, time.UTC),
			time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			// Next is exclusive of the given instant.
			"0 6 1 * *",
			time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC),
			time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			"0 7 1 1,4,7,10 *",
			time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC),
		},
		{
			"* * * * *",
			time.Date(2025, 7, 1, 6, 0, 30, 0, time.UTC),
			time.Date(2025, 7, 1, 6, 1, 0, 0, time.UTC),
		},
		{
			"0 9 * * 1",
			time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC),
			time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		c, err := ParseCron(tt.expr)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.expr, err)
		}
		if got := c.Next(tt.after); !got.Equal(tt.want) {
			t.Errorf("%q.Next(%v): expected %v, got %v", tt.expr, tt.after, tt.want, got)
		}
	}
}

func TestCronNextUnreachable(t *testing.T) {
	// February 30th never exists.
	c, err := ParseCron("0 0 30 2 *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := c.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if !got.IsZero() {
		t.Errorf("expected zero time for unreachable expression, got %v", got)
	}
}
