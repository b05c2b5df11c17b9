package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/ratelimit"
	"github.com/PulseLoom/PulseLoom/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	synthesizeCmd = &cobra.Command{
		Use:   "synthesize",
		Short: "Generate monthly or quarterly insight syntheses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	synthesizeMonthlyCmd = &cobra.Command{
		Use:   "monthly",
		Short: "Synthesize one month for an employee, or sweep the roster",
		RunE:  runSynthesizeMonthly,
	}

	synthesizeQuarterlyCmd = &cobra.Command{
		Use:   "quarterly",
		Short: "Synthesize one quarter for an employee, or sweep the roster",
		RunE:  runSynthesizeQuarterly,
	}
)

func init() {
	synthesizeMonthlyCmd.Flags().String("employee", "", "Employee email")
	synthesizeMonthlyCmd.Flags().String("month", "", "Month key, e.g. 2025-07 (default: last month)")
	synthesizeMonthlyCmd.Flags().Bool("all", false, "Sweep every employee with activity in the month")
	synthesizeMonthlyCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	synthesizeQuarterlyCmd.Flags().String("employee", "", "Employee email")
	synthesizeQuarterlyCmd.Flags().String("quarter", "", "Quarter, e.g. 2025-Q3 (default: last quarter)")
	synthesizeQuarterlyCmd.Flags().Bool("all", false, "Sweep every employee with activity in the quarter")
	synthesizeQuarterlyCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	synthesizeCmd.AddCommand(synthesizeMonthlyCmd)
	synthesizeCmd.AddCommand(synthesizeQuarterlyCmd)
	rootCmd.AddCommand(synthesizeCmd)
}

func runSynthesizeMonthly(cmd *cobra.Command, args []string) error {
	employee, _ := cmd.Flags().GetString("employee")
	monthKey, _ := cmd.Flags().GetString("month")
	all, _ := cmd.Flags().GetBool("all")
	asJSON, _ := cmd.Flags().GetBool("json")
	employee = strings.TrimSpace(employee)
	monthKey = strings.TrimSpace(monthKey)
	if monthKey == "" {
		monthKey = activity.PreviousMonthKey(time.Now().UTC())
	}
	if _, err := activity.ParseMonthKey(monthKey); err != nil {
		return err
	}
	if !all && employee == "" {
		return fmt.Errorf("--employee is required unless --all is set")
	}

	pipe, st, err := buildPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if all {
		n, err := pipe.SweepMonthly(cmd.Context(), monthKey)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Synthesized %s for %d employee(s)\n", monthKey, n)
		return nil
	}

	syn, err := pipe.SynthesizeMonthly(cmd.Context(), employee, monthKey)
	if err != nil {
		return synthesisError(err)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(syn)
	}
	fmt.Fprintf(out, "%s %s %s\n", color.GreenString("✓"), employee, monthKey)
	fmt.Fprintf(out, "Summary:    %s\n", syn.Summary)
	fmt.Fprintf(out, "Confidence: %s\n", syn.Confidence)
	return nil
}

func runSynthesizeQuarterly(cmd *cobra.Command, args []string) error {
	employee, _ := cmd.Flags().GetString("employee")
	quarter, _ := cmd.Flags().GetString("quarter")
	all, _ := cmd.Flags().GetBool("all")
	asJSON, _ := cmd.Flags().GetBool("json")
	employee = strings.TrimSpace(employee)
	quarter = strings.TrimSpace(quarter)
	if quarter == "" {
		quarter = activity.PreviousQuarter(time.Now().UTC())
	}
	if _, _, err := activity.ParseQuarter(quarter); err != nil {
		return err
	}
	if !all && employee == "" {
		return fmt.Errorf("--employee is required unless --all is set")
	}

	pipe, st, err := buildPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if all {
		n, err := pipe.SweepQuarterly(cmd.Context(), quarter)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Synthesized %s for %d employee(s)\n", quarter, n)
		return nil
	}

	syn, err := pipe.SynthesizeQuarterly(cmd.Context(), employee, quarter)
	if err != nil {
		return synthesisError(err)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(syn)
	}
	fmt.Fprintf(out, "%s %s %s\n", color.GreenString("✓"), employee, quarter)
	fmt.Fprintf(out, "Trajectory: %s\n", syn.Trajectory)
	fmt.Fprintf(out, "Confidence: %s\n", syn.Confidence)
	return nil
}

// buildPipeline wires a synthesis pipeline backed by the configured
// insight provider. Callers own the returned store.
func buildPipeline() (*insight.Pipeline, *store.Store, error) {
	cfg, st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	gen, err := provider.ResolveInsight(cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	limiter := ratelimit.New()
	limiter.SetLimit(insight.LimiterKey, cfg.RateLimit.InsightInterval)
	pipe := insight.NewPipeline(st, gen, limiter, insight.Options{
		MaxTokens:   cfg.Insight.MaxTokens,
		Temperature: cfg.Insight.Temperature,
		SinglePass:  cfg.Insight.SinglePass,
	})
	return pipe, st, nil
}

func synthesisError(err error) error {
	var pe *insight.PipelineError
	if errors.As(err, &pe) {
		return fmt.Errorf("%s stage failed (%s): %v", pe.Stage, pe.Code, pe.Err)
	}
	return err
}
