package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/ingest"
)

func newTestBridge(cfg config) *bridge {
	return &bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

type capturedMessage struct {
	topic string
	msg   ingest.WeeklyMessage
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []capturedMessage
}

func (p *capturePublisher) Publish(_ context.Context, topic string, msg ingest.WeeklyMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, capturedMessage{topic: topic, msg: msg})
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func slackTS(t time.Time) string {
	return fmt.Sprintf("%d.000100", t.Unix())
}

func TestParseEmployees(t *testing.T) {
	got := parseEmployees("dev@example.com=octocat, ana@example.com, ,=orphan")
	if len(got) != 2 {
		t.Fatalf("expected 2 employees, got %d: %#v", len(got), got)
	}
	if got[0].Email != "dev@example.com" || got[0].GitHubLogin != "octocat" {
		t.Fatalf("unexpected first entry: %#v", got[0])
	}
	if got[1].Email != "ana@example.com" || got[1].GitHubLogin != "" {
		t.Fatalf("unexpected second entry: %#v", got[1])
	}
}

func TestWeekHelpers(t *testing.T) {
	wednesday := time.Date(2025, 6, 4, 15, 30, 0, 0, time.UTC)
	if got := weekStartOf(wednesday); !got.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2025-06-02, got %s", got)
	}
	sunday := time.Date(2025, 6, 8, 23, 59, 0, 0, time.UTC)
	if got := weekStartOf(sunday); !got.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2025-06-02 for sunday, got %s", got)
	}
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if got := weekStartOf(monday); !got.Equal(monday) {
		t.Fatalf("expected monday unchanged, got %s", got)
	}

	weeks := closedWeekStarts(wednesday, 2)
	if len(weeks) != 2 {
		t.Fatalf("expected 2 weeks, got %d", len(weeks))
	}
	if activity.WeekKey(weeks[0]) != "2025-05-19" || activity.WeekKey(weeks[1]) != "2025-05-26" {
		t.Fatalf("unexpected weeks: %s, %s", activity.WeekKey(weeks[0]), activity.WeekKey(weeks[1]))
	}

	ts, err := slackTimestamp("1749038400.000100")
	if err != nil {
		t.Fatalf("slackTimestamp: %v", err)
	}
	if ts.Unix() != 1749038400 {
		t.Fatalf("expected 1749038400, got %d", ts.Unix())
	}
	if _, err := slackTimestamp("not-a-ts"); err == nil {
		t.Fatalf("expected error for malformed timestamp")
	}
}

func TestCollectGitHubWeek(t *testing.T) {
	var authHeader string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		q := r.URL.Query().Get("q")
		var resp map[string]any
		switch {
		case r.URL.Path == "/search/commits":
			resp = map[string]any{
				"total_count": 5,
				"items": []map[string]any{
					{"repository": map[string]any{"full_name": "acme/api"}},
					{"repository": map[string]any{"full_name": "acme/api"}},
				},
			}
		case strings.Contains(q, "reviewed-by:"):
			resp = map[string]any{"total_count": 8, "items": []map[string]any{}}
		case strings.Contains(q, "type:issue"):
			resp = map[string]any{"total_count": 3, "items": []map[string]any{}}
		case strings.Contains(q, "merged:"):
			resp = map[string]any{
				"total_count": 1,
				"items": []map[string]any{
					{"repository_url": "https://api.github.com/repos/acme/api"},
				},
			}
		case strings.Contains(q, "created:"):
			resp = map[string]any{
				"total_count": 2,
				"items": []map[string]any{
					{"repository_url": "https://api.github.com/repos/acme/web"},
				},
			}
		default:
			t.Errorf("unexpected query %q", q)
			resp = map[string]any{"total_count": 0}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer api.Close()

	b := newTestBridge(config{
		GitHubToken:   "test-token",
		GitHubAPIBase: api.URL,
	})
	week, err := b.collectGitHubWeek(context.Background(), "octocat", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("collectGitHubWeek: %v", err)
	}

	if authHeader != "Bearer test-token" {
		t.Fatalf("expected bearer auth, got %q", authHeader)
	}
	if week.Commits != 5 || week.PullsOpened != 2 || week.PullsMerged != 1 {
		t.Fatalf("unexpected counts: %+v", week)
	}
	if week.ReviewsGiven != 8 || week.IssuesClosed != 3 {
		t.Fatalf("unexpected review/issue counts: %+v", week)
	}
	if len(week.ReposTouched) != 2 || week.ReposTouched[0] != "acme/api" || week.ReposTouched[1] != "acme/web" {
		t.Fatalf("unexpected repos: %v", week.ReposTouched)
	}
}

func TestCollectGitHubWeekSurfacesAPIErrors(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer api.Close()

	b := newTestBridge(config{
		GitHubToken:   "test-token",
		GitHubAPIBase: api.URL,
	})
	_, err := b.collectGitHubWeek(context.Background(), "octocat", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatalf("expected error from 403 response")
	}
	if !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestCollectSlackAggregatesWeekly(t *testing.T) {
	weekStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	ts1 := slackTS(time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC))
	ts2 := slackTS(time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC))
	ts3 := slackTS(time.Date(2025, 6, 4, 11, 0, 0, 0, time.UTC))
	ts4 := slackTS(time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC))

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp map[string]any
		switch r.URL.Path {
		case "/users.list":
			resp = map[string]any{
				"ok": true,
				"members": []map[string]any{
					{"id": "U1", "profile": map[string]any{"email": "dev@example.com"}},
					{"id": "U2", "profile": map[string]any{"email": "other@example.com"}},
				},
			}
		case "/conversations.list":
			resp = map[string]any{
				"ok": true,
				"channels": []map[string]any{
					{"id": "C1", "name": "eng", "is_member": true},
					{"id": "C2", "name": "random", "is_member": false},
				},
				"response_metadata": map[string]any{"next_cursor": ""},
			}
		case "/conversations.history":
			resp = map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"type": "message", "user": "U1", "text": "standup notes", "ts": ts1},
					{"type": "message", "user": "U1", "text": "rollout plan", "ts": ts2, "thread_ts": ts2, "reply_count": 1},
					{"type": "message", "user": "U2", "text": "release shipped", "ts": ts4,
						"reactions": []map[string]any{{"name": "tada", "count": 1, "users": []string{"U1"}}}},
				},
				"has_more": false,
			}
		case "/conversations.replies":
			resp = map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"type": "message", "user": "U1", "text": "rollout plan", "ts": ts2, "thread_ts": ts2},
					{"type": "message", "user": "U1", "text": "done, monitoring", "ts": ts3, "thread_ts": ts2},
				},
				"has_more": false,
			}
		default:
			t.Errorf("unexpected slack call %s", r.URL.Path)
			resp = map[string]any{"ok": false, "error": "unknown_method"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer api.Close()

	b := newTestBridge(config{
		SlackBotToken: "xoxb-test",
		SlackAPIBase:  api.URL,
		Employees:     []employee{{Email: "dev@example.com"}},
	})

	rollups, err := b.collectSlack(context.Background(), []time.Time{weekStart})
	if err != nil {
		t.Fatalf("collectSlack: %v", err)
	}
	if len(rollups) != 1 {
		t.Fatalf("expected 1 rollup, got %d: %#v", len(rollups), rollups)
	}

	week, ok := rollups[weekRef{email: "dev@example.com", week: "2025-06-02"}]
	if !ok {
		t.Fatalf("expected rollup for dev@example.com 2025-06-02, got %#v", rollups)
	}
	if week.MessagesSent != 2 {
		t.Fatalf("expected 2 messages, got %d", week.MessagesSent)
	}
	if week.ThreadsStarted != 1 {
		t.Fatalf("expected 1 thread, got %d", week.ThreadsStarted)
	}
	if week.RepliesGiven != 1 {
		t.Fatalf("expected 1 reply, got %d", week.RepliesGiven)
	}
	if week.ReactionsGiven != 1 {
		t.Fatalf("expected 1 reaction, got %d", week.ReactionsGiven)
	}
	if len(week.ChannelsActive) != 1 || week.ChannelsActive[0] != "eng" {
		t.Fatalf("unexpected channels: %v", week.ChannelsActive)
	}
}

func TestRunPublishesPerEmployeeSourceWeek(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": 3, "items": []map[string]any{}})
	}))
	defer api.Close()

	pub := &capturePublisher{}
	b := newTestBridge(config{
		GitHubToken:   "test-token",
		GitHubAPIBase: api.URL,
		GitHubTopic:   "pulse.github.weekly",
		SlackTopic:    "pulse.slack.weekly",
		Employees: []employee{
			{Email: "dev@example.com", GitHubLogin: "octocat"},
			{Email: "ana@example.com", GitHubLogin: "anna"},
		},
	})
	b.pub = pub

	weeks := []time.Time{
		time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
	}
	if err := b.run(context.Background(), weeks); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(pub.msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(pub.msgs))
	}
	seen := map[string]bool{}
	for _, cm := range pub.msgs {
		if cm.topic != "pulse.github.weekly" {
			t.Fatalf("expected github topic, got %q", cm.topic)
		}
		if cm.msg.Source != activity.SourceGitHub {
			t.Fatalf("expected github source, got %q", cm.msg.Source)
		}
		var week activity.GitHubWeek
		if err := json.Unmarshal(cm.msg.Payload, &week); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if week.Commits != 3 || week.PullsMerged != 3 {
			t.Fatalf("unexpected rollup: %+v", week)
		}
		seen[cm.msg.EmployeeEmail+" "+cm.msg.WeekStart] = true
	}
	for _, want := range []string{
		"dev@example.com 2025-06-02",
		"dev@example.com 2025-06-09",
		"ana@example.com 2025-06-02",
		"ana@example.com 2025-06-09",
	} {
		if !seen[want] {
			t.Fatalf("missing message for %s, got %v", want, seen)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_API_BASE", "")
	t.Setenv("ACTIVITY_BRIDGE_GITHUB_API", "")
	t.Setenv("ACTIVITY_BRIDGE_GITHUB_ORG", "")
	t.Setenv("ACTIVITY_BRIDGE_SLACK_CHANNELS", "C1, C2")
	t.Setenv("ACTIVITY_BRIDGE_KAFKA_BROKERS", "")
	t.Setenv("ACTIVITY_BRIDGE_GITHUB_TOPIC", "")
	t.Setenv("ACTIVITY_BRIDGE_SLACK_TOPIC", "")
	t.Setenv("ACTIVITY_BRIDGE_EMPLOYEES", "dev@example.com=octocat")

	cfg := loadConfig()
	if cfg.GitHubToken != "gh-token" {
		t.Fatalf("expected github token, got %q", cfg.GitHubToken)
	}
	if cfg.GitHubAPIBase != "https://api.github.com" {
		t.Fatalf("unexpected github api base %q", cfg.GitHubAPIBase)
	}
	if cfg.SlackAPIBase != "https://slack.com/api" {
		t.Fatalf("unexpected slack api base %q", cfg.SlackAPIBase)
	}
	if cfg.KafkaBrokers != "localhost:9092" {
		t.Fatalf("unexpected brokers %q", cfg.KafkaBrokers)
	}
	if cfg.GitHubTopic != "pulse.github.weekly" || cfg.SlackTopic != "pulse.slack.weekly" {
		t.Fatalf("unexpected topics %q / %q", cfg.GitHubTopic, cfg.SlackTopic)
	}
	if len(cfg.SlackChannels) != 2 || cfg.SlackChannels[0] != "C1" || cfg.SlackChannels[1] != "C2" {
		t.Fatalf("unexpected channels %v", cfg.SlackChannels)
	}
	if len(cfg.Employees) != 1 || cfg.Employees[0].GitHubLogin != "octocat" {
		t.Fatalf("unexpected employees %#v", cfg.Employees)
	}
}
