package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/store"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ PulseLoom Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 PulseLoom Status")
		fmt.Printf("Version:   %s\n", version)

		// Check config
		if path, err := config.ConfigPath(); err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:    ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:    ✗ Not found (defaults in effect)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:    ✗ %v\n", err)
			return
		}

		// Check provider credentials for both generator roles
		if _, err := provider.ResolveAnalysis(cfg); err == nil {
			fmt.Println("Analysis:  ✓ Provider ready (" + cfg.AnalysisModel() + ")")
		} else {
			fmt.Printf("Analysis:  ✗ %v\n", err)
		}
		if _, err := provider.ResolveInsight(cfg); err == nil {
			fmt.Println("Insight:   ✓ Provider ready (" + cfg.InsightModel() + ")")
		} else {
			fmt.Printf("Insight:   ✗ %v\n", err)
		}

		if cfg.Ingest.Enabled {
			fmt.Println("Ingest:    ✓ Enabled (" + cfg.Ingest.KafkaBrokers + ")")
		} else {
			fmt.Println("Ingest:    ✗ Disabled")
		}
		if cfg.Scheduler.Enabled {
			fmt.Println("Scheduler: ✓ Enabled")
		} else {
			fmt.Println("Scheduler: ✗ Disabled")
		}

		printStoreStatus(cfg)
		fmt.Println("Status:  Ready")
	},
}

// printStoreStatus reports database presence and, when available, roster
// size, token spend, and recorded scheduler runs.
func printStoreStatus(cfg *config.Config) {
	dbPath := cfg.DBPath()
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("Database:  ✗ Not found (run 'pulseloom gateway' to create it)")
		return
	}
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Printf("Database:  ✗ %v\n", err)
		return
	}
	defer st.Close()
	fmt.Println("Database:  ✓ Found (" + dbPath + ")")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if employees, err := st.ListEmployees(ctx, false); err == nil {
		fmt.Printf("Employees: %d tracked\n", len(employees))
	}
	if tokens, err := st.GetDailyTokenUsage(ctx); err == nil {
		fmt.Printf("Tokens:    %d used today\n", tokens)
	}
	jobs, err := st.ListScheduledJobs(ctx)
	if err != nil || len(jobs) == 0 {
		return
	}
	fmt.Println("Jobs:")
	for _, j := range jobs {
		fmt.Printf("  %s: %s (runs %d, last %s)\n",
			j.JobName, j.LastStatus, j.RunCount, j.LastRunAt.Format(time.RFC3339))
	}
}
