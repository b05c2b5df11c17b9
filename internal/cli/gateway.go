package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/analysis"
	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/gateway"
	"github.com/PulseLoom/PulseLoom/internal/ingest"
	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/ratelimit"
	"github.com/PulseLoom/PulseLoom/internal/scheduler"
	"github.com/PulseLoom/PulseLoom/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the HTTP gateway (analysis API, ingest, scheduler)",
	Run:   runGateway,
}

var gatewaySignalNotify = signal.Notify
var gatewaySignalStop = signal.Stop

func runGateway(cmd *cobra.Command, args []string) {
	printHeader("🌐 PulseLoom Gateway")
	fmt.Println("Starting PulseLoom Gateway...")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		fmt.Printf("Data dir error: %v\n", err)
		os.Exit(1)
	}

	// 2. Open store
	st, err := store.New(cfg.DBPath())
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// 3. Resolve generators. Analysis and insight can point at different
	// models; both funnel through one limiter so spacing holds process-wide.
	analysisGen, err := provider.ResolveAnalysis(cfg)
	if err != nil {
		fmt.Printf("Analysis provider error: %v\n", err)
		os.Exit(1)
	}
	insightGen, err := provider.ResolveInsight(cfg)
	if err != nil {
		fmt.Printf("Insight provider error: %v\n", err)
		os.Exit(1)
	}

	limiter := ratelimit.New()
	limiter.SetLimit(analysis.LimiterKey, cfg.RateLimit.AnalysisInterval)
	limiter.SetLimit(insight.LimiterKey, cfg.RateLimit.InsightInterval)

	orch := analysis.NewOrchestrator(st, analysisGen, limiter, analysis.Options{
		MaxTokens:   cfg.Analysis.MaxTokens,
		Temperature: cfg.Analysis.Temperature,
	})
	pipe := insight.NewPipeline(st, insightGen, limiter, insight.Options{
		MaxTokens:   cfg.Insight.MaxTokens,
		Temperature: cfg.Insight.Temperature,
		SinglePass:  cfg.Insight.SinglePass,
	})

	srv := gateway.New(cfg.Gateway, st, orch, pipe, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	gatewaySignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer gatewaySignalStop(sigChan)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	// 4. Kafka ingest (optional)
	if cfg.Ingest.Enabled {
		topics := []string{cfg.Ingest.GitHubTopic, cfg.Ingest.SlackTopic}
		consumer := ingest.NewKafkaConsumer(cfg.Ingest.KafkaBrokers, cfg.Ingest.ConsumerGroup, topics)
		router := ingest.NewRouter(st, consumer, cfg.Ingest)
		g.Go(func() error {
			return router.Run(ctx)
		})
		fmt.Printf("📥 Ingest consuming %s (%s)\n", strings.Join(topics, ", "), cfg.Ingest.KafkaBrokers)
	}

	// 5. Synthesis scheduler (optional)
	if cfg.Scheduler.Enabled {
		sched, err := buildScheduler(cfg, st, pipe)
		if err != nil {
			fmt.Printf("Scheduler error: %v\n", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return sched.Run(ctx)
		})
		fmt.Printf("⏰ Scheduler enabled (monthly %q, quarterly %q)\n",
			cfg.Scheduler.MonthlyCron, cfg.Scheduler.QuarterlyCron)
	}

	go func() {
		<-sigChan
		fmt.Println("Shutting down...")
		cancel()
	}()

	fmt.Println("Gateway running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Gateway error: %v\n", err)
		os.Exit(1)
	}
}

// buildScheduler wires the periodic synthesis sweeps. Each sweep derives
// its period from the tick instant, so the first-of-month run covers the
// month that just closed.
func buildScheduler(cfg *config.Config, st *store.Store, pipe *insight.Pipeline) (*scheduler.Scheduler, error) {
	monthlyCron, err := scheduler.ParseCron(cfg.Scheduler.MonthlyCron)
	if err != nil {
		return nil, fmt.Errorf("monthly cron: %w", err)
	}
	quarterlyCron, err := scheduler.ParseCron(cfg.Scheduler.QuarterlyCron)
	if err != nil {
		return nil, fmt.Errorf("quarterly cron: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Enabled:        true,
		TickInterval:   cfg.Scheduler.TickInterval,
		MaxConcLLM:     cfg.Scheduler.MaxConcLLM,
		MaxConcIngest:  cfg.Scheduler.MaxConcIngest,
		MaxConcDefault: cfg.Scheduler.MaxConcDefault,
		LockPath:       filepath.Join(cfg.Paths.DataDir, "scheduler.lock"),
	}, st)

	sched.Register(&scheduler.Job{
		Name:     "synthesis-monthly",
		Cron:     monthlyCron,
		Category: scheduler.CategoryLLM,
		Run: func(ctx context.Context, tick time.Time) error {
			_, err := pipe.SweepMonthly(ctx, activity.PreviousMonthKey(tick))
			return err
		},
	})
	sched.Register(&scheduler.Job{
		Name:     "synthesis-quarterly",
		Cron:     quarterlyCron,
		Category: scheduler.CategoryLLM,
		Run: func(ctx context.Context, tick time.Time) error {
			_, err := pipe.SweepQuarterly(ctx, activity.PreviousQuarter(tick))
			return err
		},
	})
	return sched, nil
}
