package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/analysis/baseline"
	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/policy"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/ratelimit"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

// LimiterKey serializes analysis generator calls across concurrent runs.
const LimiterKey = "manager-analysis"

// Options configure an Orchestrator.
type Options struct {
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// Orchestrator executes the debate, arbiter, and guidance stages for one
// employee quarter. It is the only writer of analysis run rows; stage
// functions transform generator output and never touch storage.
type Orchestrator struct {
	store   *store.Store
	gen     provider.Generator
	limiter *ratelimit.Limiter
	screen  *policy.Screen
	logger  *slog.Logger

	maxTokens   int
	temperature float64
}

// NewOrchestrator wires an analysis orchestrator. The limiter is shared
// across the process so concurrent runs still space their generator calls.
func NewOrchestrator(st *store.Store, gen provider.Generator, limiter *ratelimit.Limiter, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Orchestrator{
		store:       st,
		gen:         gen,
		limiter:     limiter,
		screen:      policy.NewScreen(),
		logger:      logger,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}
}

// runEvidence is the loaded, validated input every stage prompt draws on.
// It is assembled once per run and read-only afterwards.
type runEvidence struct {
	employee    *store.Employee
	context     *store.AnalysisContext
	quarterly   *insight.QuarterlySynthesis
	monthlies   []insight.MonthlySynthesis
	catalog     []CatalogEntry
	catalogIDs  map[string]bool
	sufficiency insight.DataSufficiency
	eligibility Eligibility
	rubric      baseline.Rubric
}

// Run executes the full pipeline for one request. Failures before the run
// row is inserted leave no trace; once the row exists, every failure path
// marks it failed so no running row is ever orphaned.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if verr := validateInput(in); verr != nil {
		return nil, verr
	}

	existing, err := o.store.FindRunningRun(ctx, in.EmployeeEmail, in.Quarter)
	if err != nil {
		return nil, fmt.Errorf("check for running run: %w", err)
	}
	if existing != nil {
		return nil, conflictError(existing)
	}

	ev, err := o.loadEvidence(ctx, in)
	if err != nil {
		return nil, err
	}

	run, err := o.createRun(ctx, in, ev)
	if err != nil {
		return nil, err
	}
	state := StateRunning
	o.logger.Info("analysis run started",
		"run", run.ID,
		"employee", in.EmployeeEmail,
		"quarter", in.Quarter,
		"state", state,
		"catalogEntries", len(ev.catalog),
		"sufficiency", ev.sufficiency.Level)

	stageUsage := make(map[string]provider.Usage)
	var totals provider.Usage

	debate, usage, derr := o.runDebate(ctx, ev)
	o.recordUsage(ctx, run, StageDebate, usage, stageUsage, &totals)
	if derr != nil {
		return nil, o.fail(ctx, run, stageError(derr, StageDebate, CodeDebateGenerationFailed))
	}
	if perr := o.persistDebate(ctx, run.ID, debate); perr != nil {
		return nil, o.fail(ctx, run, &Error{Stage: StagePersistence, Code: CodeDebatePersistenceFailed, Message: "persist debate responses", Err: perr})
	}
	state = StateDebateDone
	o.logger.Info("debate stage persisted", "run", run.ID, "state", state)

	arbiter, usage, aerr := o.runArbiter(ctx, ev, debate)
	o.recordUsage(ctx, run, StageArbiter, usage, stageUsage, &totals)
	if aerr != nil {
		return nil, o.fail(ctx, run, stageError(aerr, StageArbiter, CodeArbiterGenerationFailed))
	}
	if perr := o.store.SaveArbiterDecision(ctx, run.ID, mustJSON(arbiter), arbiter.Confidence); perr != nil {
		return nil, o.fail(ctx, run, &Error{Stage: StagePersistence, Code: CodeArbiterPersistenceFailed, Message: "persist arbiter decision", Err: perr})
	}
	state = StateArbiterDone
	o.logger.Info("arbiter stage persisted", "run", run.ID, "state", state)

	guidance, usage, gerr := o.runGuidance(ctx, ev, debate, arbiter)
	o.recordUsage(ctx, run, StageGuidance, usage, stageUsage, &totals)
	if gerr != nil {
		return nil, o.fail(ctx, run, stageError(gerr, StageGuidance, CodeGuidanceGenerationFailed))
	}
	state = StateGuidanceDone
	o.logger.Info("guidance stage validated", "run", run.ID, "state", state)

	prompts := make([]store.EmployeePrompt, 0, len(guidance.EmployeePings))
	for _, ping := range guidance.EmployeePings {
		prompts = append(prompts, store.EmployeePrompt{
			Theme:        ping.Theme,
			Message:      ping.Message,
			EvidenceRefs: mustJSON(ping.EvidenceRefs),
		})
	}
	if perr := o.store.SaveGuidanceAndComplete(ctx, run.ID, prompts, mustJSON(guidance.ManagerCoaching)); perr != nil {
		return nil, o.fail(ctx, run, &Error{Stage: StagePersistence, Code: CodeGuidancePersistenceFailed, Message: "persist guidance outputs", Err: perr})
	}
	state = StateCompleted

	o.logger.Info("analysis run completed",
		"run", run.ID,
		"employee", in.EmployeeEmail,
		"quarter", in.Quarter,
		"state", state,
		"employeePings", len(guidance.EmployeePings),
		"totalTokens", totals.TotalTokens)
	return &RunResult{
		RunID:         run.ID,
		RunUID:        run.RunUID,
		EmployeeEmail: in.EmployeeEmail,
		Quarter:       in.Quarter,
		Outputs:       RunOutputs{Debate: debate, Arbiter: arbiter, Guidance: guidance},
	}, nil
}

func validateInput(in RunInput) *Error {
	invalid := func(format string, args ...any) *Error {
		return &Error{Stage: StageInputValidation, Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(in.EmployeeEmail) == "" {
		return invalid("employeeEmail is required")
	}
	want, err := activity.QuarterMonthKeys(in.Quarter)
	if err != nil {
		return invalid("%v", err)
	}
	if len(in.MonthKeys) != len(want) {
		return invalid("monthKeys must list exactly the %d months of %s", len(want), in.Quarter)
	}
	seen := make(map[string]bool, len(in.MonthKeys))
	for _, key := range in.MonthKeys {
		if seen[key] {
			return invalid("duplicate month key %q", key)
		}
		seen[key] = true
	}
	for _, key := range want {
		if !seen[key] {
			return invalid("month key %s missing for %s", key, in.Quarter)
		}
	}
	return nil
}

func conflictError(existing *store.AnalysisRun) *Error {
	return &Error{
		Stage:   StageInputValidation,
		Code:    CodeRunAlreadyInProgress,
		RunID:   existing.ID,
		RunUID:  existing.RunUID,
		Message: fmt.Sprintf("analysis for %s %s is already in progress as run %d", existing.EmployeeEmail, existing.Quarter, existing.ID),
	}
}

// loadEvidence resolves every precondition row. Missing rows return typed
// errors with evidence_load codes; infrastructure failures return plain
// wrapped errors since they say nothing about the request itself.
func (o *Orchestrator) loadEvidence(ctx context.Context, in RunInput) (*runEvidence, error) {
	employee, err := o.store.GetEmployee(ctx, in.EmployeeEmail)
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	if employee == nil {
		return nil, &Error{Stage: StageEvidenceLoad, Code: CodeEmployeeNotFound, Message: fmt.Sprintf("employee %s not found", in.EmployeeEmail)}
	}

	acx, err := o.store.GetAnalysisContext(ctx, in.EmployeeEmail)
	if err != nil {
		return nil, fmt.Errorf("load analysis context: %w", err)
	}
	if acx == nil {
		return nil, &Error{Stage: StageEvidenceLoad, Code: CodeMissingAnalysisContext, Message: fmt.Sprintf("no analysis context configured for %s", in.EmployeeEmail)}
	}

	qrec, err := o.store.LatestQuarterlySynthesis(ctx, in.EmployeeEmail, in.Quarter)
	if err != nil {
		return nil, fmt.Errorf("load quarterly synthesis: %w", err)
	}
	if qrec == nil {
		return nil, &Error{Stage: StageEvidenceLoad, Code: CodeMissingQuarterlyEvidence, Message: fmt.Sprintf("no quarterly synthesis for %s %s", in.EmployeeEmail, in.Quarter)}
	}
	quarterly, err := decodeQuarterlyRecord(qrec)
	if err != nil {
		return nil, fmt.Errorf("decode quarterly synthesis %d: %w", qrec.ID, err)
	}

	monthKeys, err := activity.QuarterMonthKeys(in.Quarter)
	if err != nil {
		return nil, fmt.Errorf("quarter month keys: %w", err)
	}
	monthlies := make([]insight.MonthlySynthesis, 0, len(monthKeys))
	for _, monthKey := range monthKeys {
		mrec, err := o.store.LatestMonthlySynthesis(ctx, in.EmployeeEmail, monthKey)
		if err != nil {
			return nil, fmt.Errorf("load monthly synthesis %s: %w", monthKey, err)
		}
		if mrec == nil {
			return nil, &Error{Stage: StageEvidenceLoad, Code: CodeMissingMonthlyEvidence, Message: fmt.Sprintf("no monthly synthesis for %s %s", in.EmployeeEmail, monthKey)}
		}
		monthly, err := decodeMonthlyRecord(mrec)
		if err != nil {
			return nil, fmt.Errorf("decode monthly synthesis %d: %w", mrec.ID, err)
		}
		monthlies = append(monthlies, *monthly)
	}

	from, to, err := activity.QuarterRange(in.Quarter)
	if err != nil {
		return nil, fmt.Errorf("quarter range: %w", err)
	}
	records, err := o.store.ListWeeklyActivity(ctx, in.EmployeeEmail, from, to)
	if err != nil {
		return nil, fmt.Errorf("load weekly activity: %w", err)
	}
	var github, slack []activity.WeeklyActivity
	for _, rec := range records {
		switch rec.Source {
		case activity.SourceGitHub:
			github = append(github, rec)
		case activity.SourceSlack:
			slack = append(slack, rec)
		}
	}

	catalog := BuildCatalog(quarterly, monthlies)
	if len(catalog) == 0 {
		return nil, &Error{Stage: StageEvidenceLoad, Code: CodeEmptyEvidenceCatalog, Message: fmt.Sprintf("no citable evidence for %s %s", in.EmployeeEmail, in.Quarter)}
	}

	return &runEvidence{
		employee:    employee,
		context:     acx,
		quarterly:   quarterly,
		monthlies:   monthlies,
		catalog:     catalog,
		catalogIDs:  catalogIDSet(catalog),
		sufficiency: insight.Assess(insight.PeriodQuarter, github, slack),
		eligibility: Eligibility{Bonus: acx.BonusEligible, Promotion: acx.PromotionEligible},
		rubric:      baseline.ForRole(employee.Role),
	}, nil
}

// createRun inserts the run row, the first durable side effect. A unique
// violation means another run won the race; the conflict is reported with
// that run's id.
func (o *Orchestrator) createRun(ctx context.Context, in RunInput, ev *runEvidence) (*store.AnalysisRun, error) {
	run, err := o.store.CreateAnalysisRun(ctx, &store.AnalysisRun{
		EmployeeEmail:   in.EmployeeEmail,
		ManagerEmail:    ev.context.ManagerEmail,
		Quarter:         in.Quarter,
		RequestPayload:  mustJSON(in),
		EvidenceCatalog: mustJSON(ev.catalog),
		DataSufficiency: mustJSON(ev.sufficiency),
	})
	if err == nil {
		return run, nil
	}
	if store.IsUniqueViolation(err) {
		if existing, ferr := o.store.FindRunningRun(ctx, in.EmployeeEmail, in.Quarter); ferr == nil && existing != nil {
			return nil, conflictError(existing)
		}
	}
	return nil, fmt.Errorf("create analysis run: %w", err)
}

func (o *Orchestrator) persistDebate(ctx context.Context, runID int64, out *DebateOutput) error {
	advocate := &store.DebateResponse{
		AgentRole:  store.AgentRoleAdvocate,
		Stance:     out.Advocate.Stance,
		Payload:    mustJSON(out.Advocate),
		Confidence: out.Advocate.Confidence,
	}
	examiner := &store.DebateResponse{
		AgentRole:  store.AgentRoleExaminer,
		Stance:     out.Examiner.Stance,
		Payload:    mustJSON(out.Examiner),
		Confidence: out.Examiner.Confidence,
	}
	return o.store.SaveDebateResponses(ctx, runID, advocate, examiner)
}

// recordUsage checkpoints token usage immediately after a generator call so
// partial usage survives later failures. A failed usage write is logged and
// otherwise ignored; it must not fail an otherwise healthy run.
func (o *Orchestrator) recordUsage(ctx context.Context, run *store.AnalysisRun, stage string, usage provider.Usage, perStage map[string]provider.Usage, totals *provider.Usage) {
	perStage[stage] = usage
	totals.Add(usage)
	if err := o.store.UpdateRunUsage(ctx, run.ID, mustJSON(perStage), totals.PromptTokens, totals.CompletionTokens, totals.TotalTokens); err != nil {
		o.logger.Warn("update run usage", "run", run.ID, "stage", stage, "error", err)
	}
}

// fail marks the run row failed and stamps the run identifiers onto the
// error before returning it.
func (o *Orchestrator) fail(ctx context.Context, run *store.AnalysisRun, e *Error) error {
	e.RunID = run.ID
	e.RunUID = run.RunUID
	if err := o.store.MarkRunFailed(ctx, run.ID, e.Stage, e.Code, e.Detail()); err != nil {
		o.logger.Error("mark run failed", "run", run.ID, "error", err)
	}
	o.logger.Warn("analysis run failed", "run", run.ID, "stage", e.Stage, "code", e.Code, "reason", e.Detail())
	return e
}

func stageError(err error, stage, code string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Stage: stage, Code: code, Err: err}
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, provider.Usage, error) {
	var resp *provider.GenerateResponse
	err := o.limiter.Do(ctx, LimiterKey, func(ctx context.Context) error {
		var err error
		resp, err = o.gen.Generate(ctx, &provider.GenerateRequest{
			System:      analysisSystemPrompt,
			Prompt:      prompt,
			MaxTokens:   o.maxTokens,
			Temperature: o.temperature,
		})
		return err
	})
	if err != nil {
		return "", provider.Usage{}, err
	}
	return resp.Text, resp.Usage, nil
}

func decodeQuarterlyRecord(rec *store.QuarterlySynthesisRecord) (*insight.QuarterlySynthesis, error) {
	q := &insight.QuarterlySynthesis{
		EmployeeEmail: rec.EmployeeEmail,
		Quarter:       rec.Quarter,
		Trajectory:    rec.Trajectory,
		Confidence:    rec.Confidence,
	}
	fields := []struct {
		name string
		raw  string
		dst  any
	}{
		{"strengths", rec.Strengths, &q.Strengths},
		{"concerns", rec.Concerns, &q.Concerns},
		{"assessments", rec.Assessments, &q.Assessments},
		{"actions", rec.Actions, &q.Actions},
		{"evidenceSnapshots", rec.EvidenceSnapshots, &q.EvidenceSnapshots},
		{"dataSufficiency", rec.DataSufficiency, &q.DataSufficiency},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return q, nil
}

func decodeMonthlyRecord(rec *store.MonthlySynthesisRecord) (*insight.MonthlySynthesis, error) {
	m := &insight.MonthlySynthesis{
		EmployeeEmail: rec.EmployeeEmail,
		MonthKey:      rec.MonthKey,
		Summary:       rec.Summary,
		Confidence:    rec.Confidence,
	}
	fields := []struct {
		name string
		raw  string
		dst  any
	}{
		{"risks", rec.Risks, &m.Risks},
		{"opportunities", rec.Opportunities, &m.Opportunities},
		{"insights", rec.Insights, &m.Insights},
		{"signals", rec.Signals, &m.Signals},
		{"dataSufficiency", rec.DataSufficiency, &m.DataSufficiency},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return m, nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
