package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/analysis"
	"github.com/PulseLoom/PulseLoom/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect manager analysis runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recent analysis runs",
		RunE:  runRunsList,
	}

	runsShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run with its debate, decision, and guidance",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}
)

func init() {
	runsListCmd.Flags().String("employee", "", "Filter by employee email")
	runsListCmd.Flags().String("quarter", "", "Filter by quarter")
	runsListCmd.Flags().Int("limit", 20, "Maximum rows")
	runsListCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	runsShowCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	employee, _ := cmd.Flags().GetString("employee")
	quarter, _ := cmd.Flags().GetString("quarter")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListAnalysisRuns(cmd.Context(), strings.TrimSpace(employee), strings.TrimSpace(quarter), limit, 0)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if runs == nil {
			runs = []store.AnalysisRun{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No analysis runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%4d  %s  %-10s  %s  %s  (%d tokens)\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Status, r.Quarter, r.EmployeeEmail, r.TotalTokens)
		if r.Status == store.RunStatusFailed {
			fmt.Fprintf(out, "      %s %s: %s\n", color.RedString("✗"), r.FailedStage, r.FailureReason)
		}
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid run id %q", args[0])
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	run, err := st.GetAnalysisRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d not found", id)
	}
	debate, err := st.ListDebateResponses(ctx, id)
	if err != nil {
		return err
	}
	arbiter, err := st.GetArbiterDecision(ctx, id)
	if err != nil {
		return err
	}
	prompts, err := st.ListEmployeePrompts(ctx, id)
	if err != nil {
		return err
	}
	feedback, err := st.GetManagerFeedback(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run":             run,
			"debate":          debate,
			"arbiter":         arbiter,
			"employeePrompts": prompts,
			"managerFeedback": feedback,
		})
	}

	fmt.Fprintf(out, "Run %d (%s)\n", run.ID, run.RunUID)
	fmt.Fprintf(out, "Employee: %s  Manager: %s  Quarter: %s\n", run.EmployeeEmail, run.ManagerEmail, run.Quarter)
	fmt.Fprintf(out, "Status:   %s  Tokens: %d\n", run.Status, run.TotalTokens)
	if run.Status == store.RunStatusFailed {
		fmt.Fprintf(out, "%s %s stage failed (%s): %s\n",
			color.RedString("✗"), run.FailedStage, run.ErrorCode, run.FailureReason)
	}
	for _, d := range debate {
		printDebateRow(out, d)
	}
	if arbiter != nil {
		printArbiterRow(out, arbiter)
	}
	if len(prompts) > 0 {
		fmt.Fprintln(out, "Employee pings:")
		for _, p := range prompts {
			fmt.Fprintf(out, "  [%s] %s\n", p.Theme, p.Message)
		}
	}
	if feedback != nil {
		printCoachingRow(out, feedback)
	}
	return nil
}

func printDebateRow(w io.Writer, d store.DebateResponse) {
	var a analysis.DebateAssessment
	if err := json.Unmarshal([]byte(d.Payload), &a); err != nil {
		fmt.Fprintf(w, "%s (%s): unreadable payload\n", d.AgentRole, d.Stance)
		return
	}
	fmt.Fprintf(w, "%s (%s, confidence %s): bonus %s, promotion %s, %d argument(s)\n",
		d.AgentRole, d.Stance, a.Confidence, a.BonusRecommendation, a.PromotionRecommendation, len(a.Arguments))
}

func printArbiterRow(w io.Writer, rec *store.ArbiterDecision) {
	var o analysis.ArbiterOutcome
	if err := json.Unmarshal([]byte(rec.Payload), &o); err != nil {
		fmt.Fprintln(w, "arbiter: unreadable payload")
		return
	}
	fmt.Fprintf(w, "Arbiter (confidence %s): bonus %s, promotion %s\n", o.Confidence, o.BonusDecision, o.PromotionDecision)
	fmt.Fprintf(w, "  %s\n", o.Rationale)
}

func printCoachingRow(w io.Writer, rec *store.ManagerFeedback) {
	var c analysis.ManagerCoaching
	if err := json.Unmarshal([]byte(rec.Payload), &c); err != nil {
		fmt.Fprintln(w, "coaching: unreadable payload")
		return
	}
	fmt.Fprintf(w, "Coaching: %s\n", c.Summary)
	for _, p := range c.CoachingPoints {
		fmt.Fprintf(w, "  [%s] %s\n", p.Topic, p.Advice)
	}
}
