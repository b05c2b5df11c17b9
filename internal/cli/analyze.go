package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/analysis"
	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/ratelimit"
	"github.com/PulseLoom/PulseLoom/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the manager analysis workflow for one employee",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("employee", "", "Employee email")
	analyzeCmd.Flags().String("quarter", "", "Quarter, e.g. 2025-Q3")
	analyzeCmd.Flags().StringSlice("months", nil, "Month keys to include (default: the quarter's months)")
	analyzeCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	employee, _ := cmd.Flags().GetString("employee")
	quarter, _ := cmd.Flags().GetString("quarter")
	months, _ := cmd.Flags().GetStringSlice("months")
	asJSON, _ := cmd.Flags().GetBool("json")
	employee = strings.TrimSpace(employee)
	quarter = strings.TrimSpace(quarter)
	if employee == "" {
		return fmt.Errorf("--employee is required")
	}
	if quarter == "" {
		return fmt.Errorf("--quarter is required")
	}
	if len(months) == 0 {
		// A malformed quarter is reported by input validation below.
		if keys, err := activity.QuarterMonthKeys(quarter); err == nil {
			months = keys
		}
	}

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	gen, err := provider.ResolveAnalysis(cfg)
	if err != nil {
		return err
	}
	limiter := ratelimit.New()
	limiter.SetLimit(analysis.LimiterKey, cfg.RateLimit.AnalysisInterval)
	orch := analysis.NewOrchestrator(st, gen, limiter, analysis.Options{
		MaxTokens:   cfg.Analysis.MaxTokens,
		Temperature: cfg.Analysis.Temperature,
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzing %s for %s...\n", employee, quarter)

	res, err := orch.Run(cmd.Context(), analysis.RunInput{
		EmployeeEmail: employee,
		Quarter:       quarter,
		MonthKeys:     months,
	})
	if err != nil {
		var ae *analysis.Error
		if errors.As(err, &ae) {
			return fmt.Errorf("%s stage failed (%s): %s", ae.Stage, ae.Code, ae.Detail())
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "%s Run %s completed (id %d)\n", color.GreenString("✓"), res.RunUID, res.RunID)
	if a := res.Outputs.Arbiter; a != nil {
		fmt.Fprintf(out, "Bonus:     %s\n", a.BonusDecision)
		fmt.Fprintf(out, "Promotion: %s\n", a.PromotionDecision)
		fmt.Fprintf(out, "Rationale: %s\n", a.Rationale)
	}
	if g := res.Outputs.Guidance; g != nil {
		fmt.Fprintf(out, "Guidance:  %d employee pings, %d coaching points\n",
			len(g.EmployeePings), len(g.ManagerCoaching.CoachingPoints))
	}
	fmt.Fprintf(out, "Details:   pulseloom runs show %d\n", res.RunID)
	return nil
}

// openStore loads config and opens the SQLite store under the data dir.
// Callers own the returned store and must Close it.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}
