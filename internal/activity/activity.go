package activity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// WeeklyActivity is one ingested week of signals for an employee from a
// single source. Re-ingesting the same (employee, source, week) replaces
// the payload.
type WeeklyActivity struct {
	ID            int64     `json:"id"`
	EmployeeEmail string    `json:"employeeEmail"`
	Source        string    `json:"source"`
	WeekStart     time.Time `json:"weekStart"`
	Payload       string    `json:"payload"` // JSON rollup, shape depends on source
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

const (
	SourceGitHub = "github"
	SourceSlack  = "slack"
)

// GitHubWeek is the payload shape for a github weekly rollup.
type GitHubWeek struct {
	Commits      int      `json:"commits"`
	PullsOpened  int      `json:"pullsOpened"`
	PullsMerged  int      `json:"pullsMerged"`
	ReviewsGiven int      `json:"reviewsGiven"`
	IssuesClosed int      `json:"issuesClosed"`
	ReposTouched []string `json:"reposTouched,omitempty"`
}

// SlackWeek is the payload shape for a slack weekly rollup.
type SlackWeek struct {
	MessagesSent   int      `json:"messagesSent"`
	ThreadsStarted int      `json:"threadsStarted"`
	RepliesGiven   int      `json:"repliesGiven"`
	ReactionsGiven int      `json:"reactionsGiven"`
	ChannelsActive []string `json:"channelsActive,omitempty"`
}

var quarterPattern = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)

// ValidSource reports whether s is a known activity source.
func ValidSource(s string) bool {
	return s == SourceGitHub || s == SourceSlack
}

// ParseQuarter splits a quarter key like "2025-Q3" into year and quarter.
func ParseQuarter(q string) (int, int, error) {
	m := quarterPattern.FindStringSubmatch(strings.TrimSpace(q))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid quarter %q, expected YYYY-Q[1-4]", q)
	}
	year, _ := strconv.Atoi(m[1])
	quarter, _ := strconv.Atoi(m[2])
	return year, quarter, nil
}

// QuarterMonthKeys returns the three month keys of a quarter in calendar
// order, e.g. "2025-Q3" -> ["2025-07", "2025-08", "2025-09"].
func QuarterMonthKeys(q string) ([]string, error) {
	year, quarter, err := ParseQuarter(q)
	if err != nil {
		return nil, err
	}
	first := (quarter-1)*3 + 1
	keys := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		keys = append(keys, fmt.Sprintf("%04d-%02d", year, first+i))
	}
	return keys, nil
}

// ParseMonthKey parses "YYYY-MM" into the first instant of that month (UTC).
func ParseMonthKey(mk string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(mk))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q, expected YYYY-MM", mk)
	}
	return t.UTC(), nil
}

// MonthKeyOf formats the month key of an instant, e.g. "2025-07".
func MonthKeyOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ParseWeekStart parses an ISO date ("YYYY-MM-DD") and truncates to day.
func ParseWeekStart(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week start %q, expected YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// WeekKey formats a week-start date as its ISO day string.
func WeekKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthRange returns [start, end) bounds of a month key.
func MonthRange(mk string) (time.Time, time.Time, error) {
	start, err := ParseMonthKey(mk)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

// QuarterRange returns [start, end) bounds of a quarter key.
func QuarterRange(q string) (time.Time, time.Time, error) {
	year, quarter, err := ParseQuarter(q)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 3, 0), nil
}

// QuarterOf returns the quarter key containing t, e.g. "2025-Q3".
func QuarterOf(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%d-Q%d", u.Year(), (int(u.Month())-1)/3+1)
}

// PreviousMonthKey returns the month key of the month before t. Scheduled
// sweeps run early in a period and synthesize the one just closed.
func PreviousMonthKey(t time.Time) string {
	u := t.UTC()
	return MonthKeyOf(time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0))
}

// PreviousQuarter returns the quarter key before the one containing t.
func PreviousQuarter(t time.Time) string {
	u := t.UTC()
	firstMonth := (int(u.Month())-1)/3*3 + 1
	return QuarterOf(time.Date(u.Year(), time.Month(firstMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -3, 0))
}
