// Command activitybridge collects weekly GitHub and Slack activity for a
// roster of employees and publishes one rollup message per (employee,
// source, week) to the Kafka topics the gateway ingests from. It is a
// batch sidecar: each run covers the most recent closed ISO weeks and
// exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/ingest"
)

type config struct {
	GitHubToken   string
	GitHubAPIBase string
	GitHubOrg     string

	SlackBotToken string
	SlackAPIBase  string
	SlackChannels []string

	KafkaBrokers string
	GitHubTopic  string
	SlackTopic   string

	Employees []employee
}

// employee maps a roster email to a GitHub login. Slack identity is
// resolved at runtime from the workspace user list by email.
type employee struct {
	Email       string
	GitHubLogin string
}

type bridge struct {
	cfg    config
	client *http.Client
	pub    publisher
}

type publisher interface {
	Publish(ctx context.Context, topic string, msg ingest.WeeklyMessage) error
	Close() error
}

func main() {
	weeks := flag.Int("weeks", 1, "closed ISO weeks to collect, ending with the most recent")
	dryRun := flag.Bool("dry-run", false, "log rollups instead of publishing to Kafka")
	flag.Parse()

	cfg := loadConfig()
	if len(cfg.Employees) == 0 {
		log.Fatalf("activitybridge: ACTIVITY_BRIDGE_EMPLOYEES is required (comma-separated email=githubLogin)")
	}
	if cfg.GitHubToken == "" && cfg.SlackBotToken == "" {
		log.Fatalf("activitybridge: set GITHUB_TOKEN or SLACK_BOT_TOKEN, nothing to collect otherwise")
	}
	if *weeks < 1 {
		log.Fatalf("activitybridge: -weeks must be at least 1")
	}

	var pub publisher
	if *dryRun {
		pub = logPublisher{}
	} else {
		pub = newKafkaPublisher(cfg.KafkaBrokers)
	}

	b := &bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
		pub:    pub,
	}

	if err := b.run(context.Background(), closedWeekStarts(time.Now().UTC(), *weeks)); err != nil {
		log.Fatalf("activitybridge failed: %v", err)
	}
	if err := pub.Close(); err != nil {
		log.Printf("activitybridge: close publisher: %v", err)
	}
}

func loadConfig() config {
	return config{
		GitHubToken:   strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		GitHubAPIBase: strings.TrimSpace(getEnvDefault("ACTIVITY_BRIDGE_GITHUB_API", "https://api.github.com")),
		GitHubOrg:     strings.TrimSpace(os.Getenv("ACTIVITY_BRIDGE_GITHUB_ORG")),

		SlackBotToken: strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN")),
		SlackAPIBase:  strings.TrimSpace(getEnvDefault("SLACK_API_BASE", "https://slack.com/api")),
		SlackChannels: splitList(os.Getenv("ACTIVITY_BRIDGE_SLACK_CHANNELS")),

		KafkaBrokers: strings.TrimSpace(getEnvDefault("ACTIVITY_BRIDGE_KAFKA_BROKERS", "localhost:9092")),
		GitHubTopic:  strings.TrimSpace(getEnvDefault("ACTIVITY_BRIDGE_GITHUB_TOPIC", "pulse.github.weekly")),
		SlackTopic:   strings.TrimSpace(getEnvDefault("ACTIVITY_BRIDGE_SLACK_TOPIC", "pulse.slack.weekly")),

		Employees: parseEmployees(os.Getenv("ACTIVITY_BRIDGE_EMPLOYEES")),
	}
}

func getEnvDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseEmployees parses "email=githubLogin,email2=login2". The login is
// optional; an entry without one is skipped during GitHub collection.
func parseEmployees(s string) []employee {
	var out []employee
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, login, _ := strings.Cut(entry, "=")
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		out = append(out, employee{Email: email, GitHubLogin: strings.TrimSpace(login)})
	}
	return out
}

func (b *bridge) run(ctx context.Context, weeks []time.Time) error {
	if len(weeks) == 0 {
		return errors.New("no weeks to collect")
	}
	log.Printf("activitybridge collecting %s..%s for %d employee(s)",
		activity.WeekKey(weeks[0]), activity.WeekKey(weeks[len(weeks)-1]), len(b.cfg.Employees))

	var published atomic.Int64

	if b.cfg.GitHubToken != "" {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, emp := range b.cfg.Employees {
			if emp.GitHubLogin == "" {
				log.Printf("activitybridge: %s has no github login, skipping github", emp.Email)
				continue
			}
			g.Go(func() error {
				for _, week := range weeks {
					rollup, err := b.collectGitHubWeek(gctx, emp.GitHubLogin, week)
					if err != nil {
						return fmt.Errorf("github %s week %s: %w", emp.Email, activity.WeekKey(week), err)
					}
					if err := b.publishWeekly(gctx, b.cfg.GitHubTopic, activity.SourceGitHub, emp.Email, week, rollup); err != nil {
						return err
					}
					published.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if b.cfg.SlackBotToken != "" {
		rollups, err := b.collectSlack(ctx, weeks)
		if err != nil {
			return fmt.Errorf("slack: %w", err)
		}
		refs := make([]weekRef, 0, len(rollups))
		for ref := range rollups {
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].email != refs[j].email {
				return refs[i].email < refs[j].email
			}
			return refs[i].week < refs[j].week
		})
		for _, ref := range refs {
			week, err := activity.ParseWeekStart(ref.week)
			if err != nil {
				return err
			}
			if err := b.publishWeekly(ctx, b.cfg.SlackTopic, activity.SourceSlack, ref.email, week, rollups[ref]); err != nil {
				return err
			}
			published.Add(1)
		}
	}

	log.Printf("activitybridge published %d weekly rollup(s)", published.Load())
	return nil
}

func (b *bridge) publishWeekly(ctx context.Context, topic, source, email string, weekStart time.Time, rollup any) error {
	payload, err := json.Marshal(rollup)
	if err != nil {
		return fmt.Errorf("marshal %s rollup: %w", source, err)
	}
	msg := ingest.WeeklyMessage{
		EmployeeEmail: email,
		Source:        source,
		WeekStart:     activity.WeekKey(weekStart),
		Payload:       payload,
	}
	if err := b.pub.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("publish %s %s week %s: %w", source, email, msg.WeekStart, err)
	}
	log.Printf("activitybridge: published %s %s week=%s", source, email, msg.WeekStart)
	return nil
}

// GitHub collection. Weekly counts come from the search API: one query
// per metric, scoped to the week's date range and optionally to an org.

func (b *bridge) collectGitHubWeek(ctx context.Context, login string, weekStart time.Time) (activity.GitHubWeek, error) {
	from := weekStart.Format("2006-01-02")
	to := weekStart.AddDate(0, 0, 6).Format("2006-01-02")
	scope := ""
	if b.cfg.GitHubOrg != "" {
		scope = " org:" + b.cfg.GitHubOrg
	}

	var week activity.GitHubWeek
	repos := map[string]bool{}

	count, items, err := b.githubSearch(ctx, "commits",
		fmt.Sprintf("author:%s committer-date:%s..%s%s", login, from, to, scope), 100)
	if err != nil {
		return activity.GitHubWeek{}, fmt.Errorf("commits: %w", err)
	}
	week.Commits = count
	markRepos(repos, items)

	count, items, err = b.githubSearch(ctx, "issues",
		fmt.Sprintf("author:%s type:pr created:%s..%s%s", login, from, to, scope), 100)
	if err != nil {
		return activity.GitHubWeek{}, fmt.Errorf("opened prs: %w", err)
	}
	week.PullsOpened = count
	markRepos(repos, items)

	count, items, err = b.githubSearch(ctx, "issues",
		fmt.Sprintf("author:%s type:pr merged:%s..%s%s", login, from, to, scope), 100)
	if err != nil {
		return activity.GitHubWeek{}, fmt.Errorf("merged prs: %w", err)
	}
	week.PullsMerged = count
	markRepos(repos, items)

	count, _, err = b.githubSearch(ctx, "issues",
		fmt.Sprintf("reviewed-by:%s -author:%s type:pr updated:%s..%s%s", login, login, from, to, scope), 1)
	if err != nil {
		return activity.GitHubWeek{}, fmt.Errorf("reviews: %w", err)
	}
	week.ReviewsGiven = count

	count, _, err = b.githubSearch(ctx, "issues",
		fmt.Sprintf("assignee:%s type:issue closed:%s..%s%s", login, from, to, scope), 1)
	if err != nil {
		return activity.GitHubWeek{}, fmt.Errorf("closed issues: %w", err)
	}
	week.IssuesClosed = count

	// ReposTouched reflects commit and PR activity; review-only repos
	// are not tracked.
	for repo := range repos {
		week.ReposTouched = append(week.ReposTouched, repo)
	}
	sort.Strings(week.ReposTouched)
	return week, nil
}

type githubSearchItem struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	RepositoryURL string `json:"repository_url"`
}

func (b *bridge) githubSearch(ctx context.Context, kind, query string, perPage int) (int, []githubSearchItem, error) {
	u := strings.TrimRight(b.cfg.GitHubAPIBase, "/") + "/search/" + kind +
		"?per_page=" + strconv.Itoa(perPage) + "&q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.GitHubToken)
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, nil, fmt.Errorf("github search %s status %d", kind, resp.StatusCode)
	}
	var out struct {
		TotalCount int                `json:"total_count"`
		Items      []githubSearchItem `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, nil, fmt.Errorf("decode github search: %w", err)
	}
	return out.TotalCount, out.Items, nil
}

func markRepos(repos map[string]bool, items []githubSearchItem) {
	for _, item := range items {
		name := strings.TrimSpace(item.Repository.FullName)
		if name == "" {
			if _, after, ok := strings.Cut(item.RepositoryURL, "/repos/"); ok {
				name = strings.TrimSpace(after)
			}
		}
		if name != "" {
			repos[name] = true
		}
	}
}

// Slack collection. One pass over the configured channels covers the
// whole roster: the workspace user list maps Slack user IDs back to
// roster emails, and every message inside the window is bucketed into
// the ISO week of its own timestamp.

type weekRef struct {
	email string
	week  string
}

type slackTally struct {
	messages  int
	threads   int
	replies   int
	reactions int
	channels  map[string]bool
}

// slackScan accumulates per-(employee, week) tallies across channels.
type slackScan struct {
	api       *slack.Client
	idToEmail map[string]string
	wanted    map[string]bool
	oldest    string
	latest    string
	tallies   map[weekRef]*slackTally
}

func (b *bridge) collectSlack(ctx context.Context, weeks []time.Time) (map[weekRef]activity.SlackWeek, error) {
	api := b.slackClient()

	idToEmail, err := b.slackResolveMembers(ctx, api)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	if len(idToEmail) == 0 {
		log.Printf("activitybridge: no slack users matched the employee roster")
		return map[weekRef]activity.SlackWeek{}, nil
	}

	channels := b.cfg.SlackChannels
	channelNames := map[string]string{}
	if len(channels) == 0 {
		channels, channelNames, err = b.slackListChannels(ctx, api)
		if err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
	}

	wanted := make(map[string]bool, len(weeks))
	for _, w := range weeks {
		wanted[activity.WeekKey(w)] = true
	}

	scan := &slackScan{
		api:       api,
		idToEmail: idToEmail,
		wanted:    wanted,
		oldest:    strconv.FormatInt(weeks[0].Unix(), 10),
		latest:    strconv.FormatInt(weeks[len(weeks)-1].AddDate(0, 0, 7).Unix(), 10),
		tallies:   map[weekRef]*slackTally{},
	}
	for _, ch := range channels {
		label := channelNames[ch]
		if label == "" {
			label = ch
		}
		if err := scan.channel(ctx, ch, label); err != nil {
			log.Printf("activitybridge: channel %s: %v", label, err)
		}
	}

	out := make(map[weekRef]activity.SlackWeek, len(scan.tallies))
	for ref, tl := range scan.tallies {
		week := activity.SlackWeek{
			MessagesSent:   tl.messages,
			ThreadsStarted: tl.threads,
			RepliesGiven:   tl.replies,
			ReactionsGiven: tl.reactions,
		}
		for name := range tl.channels {
			week.ChannelsActive = append(week.ChannelsActive, name)
		}
		sort.Strings(week.ChannelsActive)
		out[ref] = week
	}
	return out, nil
}

func (s *slackScan) channel(ctx context.Context, channelID, label string) error {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    s.oldest,
		Latest:    s.latest,
		Limit:     200,
	}
	for {
		resp, err := s.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		for _, m := range resp.Messages {
			// Thread broadcasts reappear under their parent; the
			// replies scan owns them.
			if m.ThreadTimestamp != "" && m.ThreadTimestamp != m.Timestamp {
				continue
			}
			s.tally(m, label, false)
			if m.ReplyCount > 0 {
				if err := s.thread(ctx, channelID, label, m.Timestamp); err != nil {
					log.Printf("activitybridge: thread %s in %s: %v", m.Timestamp, label, err)
				}
			}
		}
		if !resp.HasMore {
			return nil
		}
		params.Cursor = strings.TrimSpace(resp.ResponseMetaData.NextCursor)
		if params.Cursor == "" {
			return nil
		}
	}
}

func (s *slackScan) thread(ctx context.Context, channelID, label, parentTS string) error {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: parentTS,
		Oldest:    s.oldest,
		Latest:    s.latest,
		Limit:     200,
	}
	for {
		msgs, hasMore, nextCursor, err := s.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			// The parent rides along as the first message and was
			// already tallied from the history page.
			if m.Timestamp == parentTS {
				continue
			}
			s.tally(m, label, true)
		}
		if !hasMore {
			return nil
		}
		params.Cursor = strings.TrimSpace(nextCursor)
		if params.Cursor == "" {
			return nil
		}
	}
}

func (s *slackScan) bump(email, week, channel string) *slackTally {
	ref := weekRef{email: email, week: week}
	tl := s.tallies[ref]
	if tl == nil {
		tl = &slackTally{channels: map[string]bool{}}
		s.tallies[ref] = tl
	}
	if channel != "" {
		tl.channels[channel] = true
	}
	return tl
}

func (s *slackScan) tally(m slack.Message, channel string, isReply bool) {
	ts, err := slackTimestamp(m.Timestamp)
	if err != nil {
		return
	}
	week := activity.WeekKey(weekStartOf(ts))
	if !s.wanted[week] {
		return
	}

	// Reactions carry no timestamp of their own; they land in the week
	// of the message they sit on.
	for _, re := range m.Reactions {
		for _, uid := range re.Users {
			if email, ok := s.idToEmail[uid]; ok {
				s.bump(email, week, channel).reactions++
			}
		}
	}

	if m.BotID != "" {
		return
	}
	if m.SubType != "" && m.SubType != "thread_broadcast" {
		return
	}
	email, ok := s.idToEmail[m.User]
	if !ok {
		return
	}
	tl := s.bump(email, week, channel)
	if isReply {
		tl.replies++
		return
	}
	tl.messages++
	if m.ReplyCount > 0 {
		tl.threads++
	}
}

func (b *bridge) slackClient() *slack.Client {
	base := strings.TrimRight(b.cfg.SlackAPIBase, "/") + "/"
	return slack.New(b.cfg.SlackBotToken, slack.OptionHTTPClient(b.client), slack.OptionAPIURL(base))
}

func (b *bridge) slackResolveMembers(ctx context.Context, api *slack.Client) (map[string]string, error) {
	users, err := api.GetUsersContext(ctx, slack.GetUsersOptionLimit(200))
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]string, len(b.cfg.Employees))
	for _, emp := range b.cfg.Employees {
		byEmail[strings.ToLower(emp.Email)] = emp.Email
	}
	idToEmail := map[string]string{}
	for _, u := range users {
		if u.Deleted || u.IsBot || u.Profile.Email == "" {
			continue
		}
		if email, ok := byEmail[strings.ToLower(u.Profile.Email)]; ok {
			idToEmail[u.ID] = email
		}
	}
	return idToEmail, nil
}

func (b *bridge) slackListChannels(ctx context.Context, api *slack.Client) ([]string, map[string]string, error) {
	var ids []string
	names := map[string]string{}
	cursor := ""
	for {
		chs, next, err := api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor: cursor,
			Limit:  200,
			Types:  []string{"public_channel", "private_channel"},
		})
		if err != nil {
			return nil, nil, err
		}
		for _, ch := range chs {
			if !ch.IsMember {
				continue
			}
			ids = append(ids, ch.ID)
			names[ch.ID] = ch.Name
		}
		cursor = strings.TrimSpace(next)
		if cursor == "" {
			break
		}
	}
	return ids, names, nil
}

func slackTimestamp(ts string) (time.Time, error) {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slack timestamp %q", ts)
	}
	return time.Unix(n, 0).UTC(), nil
}

// weekStartOf truncates t to the Monday of its ISO week, UTC midnight.
func weekStartOf(t time.Time) time.Time {
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// closedWeekStarts returns the Mondays of the n most recent fully closed
// ISO weeks, oldest first.
func closedWeekStarts(now time.Time, n int) []time.Time {
	current := weekStartOf(now)
	out := make([]time.Time, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, current.AddDate(0, 0, -7*i))
	}
	return out
}

// kafkaPublisher writes rollups with one writer per topic. Hashing on the
// employee key keeps each employee's weeks on one partition.
type kafkaPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func newKafkaPublisher(brokers string) *kafkaPublisher {
	return &kafkaPublisher{
		brokers: strings.Split(brokers, ","),
		writers: map[string]*kafka.Writer{},
	}
}

func (p *kafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		}
		p.writers[topic] = w
	}
	return w
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic string, msg ingest.WeeklyMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.writer(topic).WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(msg.EmployeeEmail),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *kafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// logPublisher backs -dry-run.
type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, topic string, msg ingest.WeeklyMessage) error {
	log.Printf("activitybridge dry-run: %s %s week=%s payload=%s",
		topic, msg.EmployeeEmail, msg.WeekStart, string(msg.Payload))
	return nil
}

func (logPublisher) Close() error { return nil }
