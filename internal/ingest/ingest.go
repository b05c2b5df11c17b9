// Package ingest consumes weekly activity rollups from Kafka and upserts
// them into the store. Ingestion is best-effort: malformed messages are
// logged and skipped, and thin coverage surfaces later through the data
// sufficiency assessment rather than as ingest failures.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

// WeeklyMessage is the wire format on the activity topics, one message per
// (employee, source, week). Source may be omitted; the topic implies it.
type WeeklyMessage struct {
	EmployeeEmail string          `json:"employeeEmail"`
	Source        string          `json:"source,omitempty"`
	WeekStart     string          `json:"weekStart"` // ISO date, Monday
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Router routes incoming activity messages into the weekly_activity table.
type Router struct {
	store       *store.Store
	consumer    Consumer
	githubTopic string
	slackTopic  string
}

// NewRouter creates a router that bridges activity topics into the store.
func NewRouter(st *store.Store, consumer Consumer, cfg config.IngestConfig) *Router {
	return &Router{
		store:       st,
		consumer:    consumer,
		githubTopic: cfg.GitHubTopic,
		slackTopic:  cfg.SlackTopic,
	}
}

// Run starts consuming and routing messages. Blocks until the context is
// cancelled or the consumer channel closes.
func (r *Router) Run(ctx context.Context) error {
	if err := r.consumer.Start(ctx); err != nil {
		return fmt.Errorf("ingest: start consumer: %w", err)
	}
	defer r.consumer.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.consumer.Messages():
			if !ok {
				return nil
			}
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg ConsumerMessage) {
	var wm WeeklyMessage
	if err := json.Unmarshal(msg.Value, &wm); err != nil {
		slog.Warn("ingest: unmarshal weekly message", "topic", msg.Topic, "error", err)
		return
	}

	source, ok := r.sourceForTopic(msg.Topic)
	if !ok {
		slog.Debug("ingest: unknown topic", "topic", msg.Topic)
		return
	}
	if wm.Source != "" && wm.Source != source {
		slog.Warn("ingest: source does not match topic",
			"topic", msg.Topic, "source", wm.Source, "expected", source)
		return
	}

	email := strings.TrimSpace(wm.EmployeeEmail)
	if email == "" {
		slog.Warn("ingest: weekly message without employeeEmail", "topic", msg.Topic)
		return
	}
	weekStart, err := activity.ParseWeekStart(wm.WeekStart)
	if err != nil {
		slog.Warn("ingest: bad weekStart", "topic", msg.Topic, "employee", email, "error", err)
		return
	}

	if err := r.store.UpsertWeeklyActivity(ctx, email, source, weekStart, string(wm.Payload)); err != nil {
		slog.Warn("ingest: store weekly activity",
			"employee", email, "source", source, "week", activity.WeekKey(weekStart), "error", err)
		return
	}
	slog.Info("ingest: weekly activity stored",
		"employee", email, "source", source, "week", activity.WeekKey(weekStart))
}

func (r *Router) sourceForTopic(topic string) (string, bool) {
	switch topic {
	case r.githubTopic:
		return activity.SourceGitHub, true
	case r.slackTopic:
		return activity.SourceSlack, true
	}
	return "", false
}
