package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/llmjson"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/ratelimit"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

// LimiterKey serializes every synthesis generator call.
const LimiterKey = "insight-synthesis"

// Pipeline stage names used in error tagging.
const (
	StageExtraction = "extraction"
	StageReasoning  = "reasoning"
	StageSynthesis  = "synthesis"
)

// Error codes raised by the pipeline.
const (
	CodeInvalidJSON       = "invalid_json"
	CodeGenerationFailed  = "generation_failed"
	CodePersistenceFailed = "persistence_failed"
)

// PipelineError tags a synthesis failure with the stage that raised it.
type PipelineError struct {
	Stage string
	Code  string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("insight %s: %s: %v", e.Stage, e.Code, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Options configure a Pipeline.
type Options struct {
	MaxTokens   int
	Temperature float64
	SinglePass  bool
	Logger      *slog.Logger
}

// Pipeline generates and persists monthly and quarterly syntheses.
type Pipeline struct {
	store   *store.Store
	gen     provider.Generator
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	maxTokens   int
	temperature float64
	singlePass  bool
}

// NewPipeline wires a synthesis pipeline. The limiter is shared across the
// process so concurrent invocations still space their generator calls.
func NewPipeline(st *store.Store, gen provider.Generator, limiter *ratelimit.Limiter, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Pipeline{
		store:       st,
		gen:         gen,
		limiter:     limiter,
		logger:      logger,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		singlePass:  opts.SinglePass,
	}
}

// SynthesizeMonthly generates and persists the monthly synthesis for one
// employee. Rows are appended, never upserted; the newest row wins on read.
func (p *Pipeline) SynthesizeMonthly(ctx context.Context, employeeEmail, monthKey string) (*MonthlySynthesis, error) {
	from, to, err := activity.MonthRange(monthKey)
	if err != nil {
		return nil, fmt.Errorf("invalid month key %q: %w", monthKey, err)
	}
	github, slack, err := p.loadActivity(ctx, employeeEmail, from, to)
	if err != nil {
		return nil, err
	}
	suff := Assess(PeriodMonth, github, slack)

	var (
		syn   *MonthlySynthesis
		usage provider.Usage
	)
	if len(github)+len(slack) == 0 {
		syn = fallbackMonthly(employeeEmail, monthKey, suff)
	} else {
		payload, err := activityPayload(github, slack, suff)
		if err != nil {
			return nil, fmt.Errorf("build activity payload: %w", err)
		}
		if p.singlePass {
			syn, usage, err = p.monthlySinglePass(ctx, employeeEmail, monthKey, payload, suff)
		} else {
			syn, usage, err = p.monthlyThreeStage(ctx, employeeEmail, monthKey, payload, suff)
		}
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.store.InsertMonthlySynthesis(ctx, monthlyRecord(syn, p.gen.DefaultModel())); err != nil {
		return nil, &PipelineError{Stage: StageSynthesis, Code: CodePersistenceFailed, Err: err}
	}
	p.logger.Info("monthly synthesis persisted",
		"employee", employeeEmail, "month", monthKey,
		"sufficiency", suff.Level, "confidence", syn.Confidence,
		"signals", len(syn.Signals), "totalTokens", usage.TotalTokens)
	return syn, nil
}

// SynthesizeQuarterly generates and persists the quarterly synthesis for
// one employee. Append-only like the monthly path.
func (p *Pipeline) SynthesizeQuarterly(ctx context.Context, employeeEmail, quarter string) (*QuarterlySynthesis, error) {
	from, to, err := activity.QuarterRange(quarter)
	if err != nil {
		return nil, fmt.Errorf("invalid quarter %q: %w", quarter, err)
	}
	github, slack, err := p.loadActivity(ctx, employeeEmail, from, to)
	if err != nil {
		return nil, err
	}
	suff := Assess(PeriodQuarter, github, slack)

	var (
		syn   *QuarterlySynthesis
		usage provider.Usage
	)
	if len(github)+len(slack) == 0 {
		syn = fallbackQuarterly(employeeEmail, quarter, suff)
	} else {
		payload, err := activityPayload(github, slack, suff)
		if err != nil {
			return nil, fmt.Errorf("build activity payload: %w", err)
		}
		if p.singlePass {
			syn, usage, err = p.quarterlySinglePass(ctx, employeeEmail, quarter, payload, suff)
		} else {
			syn, usage, err = p.quarterlyThreeStage(ctx, employeeEmail, quarter, payload, suff)
		}
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.store.InsertQuarterlySynthesis(ctx, quarterlyRecord(syn, p.gen.DefaultModel())); err != nil {
		return nil, &PipelineError{Stage: StageSynthesis, Code: CodePersistenceFailed, Err: err}
	}
	p.logger.Info("quarterly synthesis persisted",
		"employee", employeeEmail, "quarter", quarter,
		"sufficiency", suff.Level, "confidence", syn.Confidence,
		"snapshots", len(syn.EvidenceSnapshots), "totalTokens", usage.TotalTokens)
	return syn, nil
}

// ---------------------------------------------------------------------------
// Stage execution
// ---------------------------------------------------------------------------

type extractionResponse struct {
	Signals []Signal `json:"signals"`
}

type reasoningResponse struct {
	Insights []DimensionInsight `json:"insights"`
}

type monthlyNarrative struct {
	Summary       string   `json:"summary"`
	Risks         []string `json:"risks"`
	Opportunities []string `json:"opportunities"`
	Confidence    string   `json:"confidence"`
}

type quarterlyNarrative struct {
	Trajectory  string                `json:"trajectory"`
	Strengths   []string              `json:"strengths"`
	Concerns    []string              `json:"concerns"`
	Assessments []DimensionAssessment `json:"assessments"`
	Actions     []string              `json:"actions"`
	Confidence  string                `json:"confidence"`
}

type monthlySinglePassResponse struct {
	Signals   []Signal           `json:"signals"`
	Insights  []DimensionInsight `json:"insights"`
	Synthesis monthlyNarrative   `json:"synthesis"`
}

type quarterlySinglePassResponse struct {
	Signals   []Signal           `json:"signals"`
	Insights  []DimensionInsight `json:"insights"`
	Synthesis quarterlyNarrative `json:"synthesis"`
}

func (p *Pipeline) monthlyThreeStage(ctx context.Context, email, monthKey, payload string, suff DataSufficiency) (*MonthlySynthesis, provider.Usage, error) {
	var total provider.Usage

	signals, usage, err := p.extractSignals(ctx, payload)
	total.Add(usage)
	if err != nil {
		return nil, total, err
	}
	if len(signals) == 0 {
		return fallbackMonthly(email, monthKey, suff), total, nil
	}

	insights, usage, err := p.reasonDimensions(ctx, signals, suff)
	total.Add(usage)
	if err != nil {
		return nil, total, err
	}

	narrativePayload, err := insightPayload(signals, insights, suff)
	if err != nil {
		return nil, total, fmt.Errorf("build insight payload: %w", err)
	}
	resp, err := p.generate(ctx, buildMonthlySynthesisPrompt(monthKey, narrativePayload))
	if err != nil {
		return nil, total, &PipelineError{Stage: StageSynthesis, Code: CodeGenerationFailed, Err: err}
	}
	total.Add(resp.Usage)
	narrative, err := llmjson.Parse[monthlyNarrative](resp.Text)
	if err != nil {
		return nil, total, &PipelineError{Stage: StageSynthesis, Code: CodeInvalidJSON, Err: err}
	}
	return normalizeMonthly(email, monthKey, *narrative, insights, signals, suff), total, nil
}

func (p *Pipeline) quarterlyThreeStage(ctx context.Context, email, quarter, payload string, suff DataSufficiency) (*QuarterlySynthesis, provider.Usage, error) {
	var total provider.Usage

	signals, usage, err := p.extractSignals(ctx, payload)
	total.Add(usage)
	if err != nil {
		return nil, total, err
	}
	if len(signals) == 0 {
		return fallbackQuarterly(email, quarter, suff), total, nil
	}

	insights, usage, err := p.reasonDimensions(ctx, signals, suff)
	total.Add(usage)
	if err != nil {
		return nil, total, err
	}

	narrativePayload, err := insightPayload(signals, insights, suff)
	if err != nil {
		return nil, total, fmt.Errorf("build insight payload: %w", err)
	}
	resp, err := p.generate(ctx, buildQuarterlySynthesisPrompt(quarter, narrativePayload))
	if err != nil {
		return nil, total, &PipelineError{Stage: StageSynthesis, Code: CodeGenerationFailed, Err: err}
	}
	total.Add(resp.Usage)
	narrative, err := llmjson.Parse[quarterlyNarrative](resp.Text)
	if err != nil {
		return nil, total, &PipelineError{Stage: StageSynthesis, Code: CodeInvalidJSON, Err: err}
	}
	return normalizeQuarterly(email, quarter, *narrative, insights, signals, suff), total, nil
}

func (p *Pipeline) monthlySinglePass(ctx context.Context, email, monthKey, payload string, suff DataSufficiency) (*MonthlySynthesis, provider.Usage, error) {
	resp, err := p.generate(ctx, buildMonthlySinglePassPrompt(monthKey, payload))
	if err != nil {
		return nil, provider.Usage{}, &PipelineError{Stage: StageSynthesis, Code: CodeGenerationFailed, Err: err}
	}
	parsed, err := llmjson.Parse[monthlySinglePassResponse](resp.Text)
	if err != nil {
		return nil, resp.Usage, &PipelineError{Stage: StageSynthesis, Code: CodeInvalidJSON, Err: err}
	}
	signals := NormalizeSignals(parsed.Signals)
	if len(signals) == 0 {
		return fallbackMonthly(email, monthKey, suff), resp.Usage, nil
	}
	insights := NormalizeInsights(parsed.Insights, signals, suff)
	return normalizeMonthly(email, monthKey, parsed.Synthesis, insights, signals, suff), resp.Usage, nil
}

func (p *Pipeline) quarterlySinglePass(ctx context.Context, email, quarter, payload string, suff DataSufficiency) (*QuarterlySynthesis, provider.Usage, error) {
	resp, err := p.generate(ctx, buildQuarterlySinglePassPrompt(quarter, payload))
	if err != nil {
		return nil, provider.Usage{}, &PipelineError{Stage: StageSynthesis, Code: CodeGenerationFailed, Err: err}
	}
	parsed, err := llmjson.Parse[quarterlySinglePassResponse](resp.Text)
	if err != nil {
		return nil, resp.Usage, &PipelineError{Stage: StageSynthesis, Code: CodeInvalidJSON, Err: err}
	}
	signals := NormalizeSignals(parsed.Signals)
	if len(signals) == 0 {
		return fallbackQuarterly(email, quarter, suff), resp.Usage, nil
	}
	insights := NormalizeInsights(parsed.Insights, signals, suff)
	return normalizeQuarterly(email, quarter, parsed.Synthesis, insights, signals, suff), resp.Usage, nil
}

func (p *Pipeline) extractSignals(ctx context.Context, payload string) ([]Signal, provider.Usage, error) {
	resp, err := p.generate(ctx, buildExtractionPrompt(payload))
	if err != nil {
		return nil, provider.Usage{}, &PipelineError{Stage: StageExtraction, Code: CodeGenerationFailed, Err: err}
	}
	parsed, err := llmjson.Parse[extractionResponse](resp.Text)
	if err != nil {
		return nil, resp.Usage, &PipelineError{Stage: StageExtraction, Code: CodeInvalidJSON, Err: err}
	}
	return NormalizeSignals(parsed.Signals), resp.Usage, nil
}

func (p *Pipeline) reasonDimensions(ctx context.Context, signals []Signal, suff DataSufficiency) ([]DimensionInsight, provider.Usage, error) {
	payload, err := signalPayload(signals, suff)
	if err != nil {
		return nil, provider.Usage{}, fmt.Errorf("build signal payload: %w", err)
	}
	resp, err := p.generate(ctx, buildReasoningPrompt(payload))
	if err != nil {
		return nil, provider.Usage{}, &PipelineError{Stage: StageReasoning, Code: CodeGenerationFailed, Err: err}
	}
	parsed, err := llmjson.Parse[reasoningResponse](resp.Text)
	if err != nil {
		return nil, resp.Usage, &PipelineError{Stage: StageReasoning, Code: CodeInvalidJSON, Err: err}
	}
	return NormalizeInsights(parsed.Insights, signals, suff), resp.Usage, nil
}

// generate runs one rate-limited generator call.
func (p *Pipeline) generate(ctx context.Context, prompt string) (*provider.GenerateResponse, error) {
	var resp *provider.GenerateResponse
	err := p.limiter.Do(ctx, LimiterKey, func(ctx context.Context) error {
		var err error
		resp, err = p.gen.Generate(ctx, &provider.GenerateRequest{
			System:      insightSystemPrompt,
			Prompt:      prompt,
			MaxTokens:   p.maxTokens,
			Temperature: p.temperature,
		})
		return err
	})
	return resp, err
}

// ---------------------------------------------------------------------------
// Payload + result shaping
// ---------------------------------------------------------------------------

func (p *Pipeline) loadActivity(ctx context.Context, email string, from, to time.Time) (github, slack []activity.WeeklyActivity, err error) {
	records, err := p.store.ListWeeklyActivity(ctx, email, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load weekly activity: %w", err)
	}
	for _, rec := range records {
		switch rec.Source {
		case activity.SourceGitHub:
			github = append(github, rec)
		case activity.SourceSlack:
			slack = append(slack, rec)
		}
	}
	return github, slack, nil
}

type promptWeek struct {
	Source    string          `json:"source"`
	WeekStart string          `json:"weekStart"`
	Metrics   json.RawMessage `json:"metrics"`
}

func activityPayload(github, slack []activity.WeeklyActivity, suff DataSufficiency) (string, error) {
	weeks := make([]promptWeek, 0, len(github)+len(slack))
	for _, rec := range github {
		weeks = append(weeks, promptWeek{
			Source:    SourceGitHubWeekly,
			WeekStart: activity.WeekKey(rec.WeekStart),
			Metrics:   rawMetrics(rec.Payload),
		})
	}
	for _, rec := range slack {
		weeks = append(weeks, promptWeek{
			Source:    SourceSlackWeekly,
			WeekStart: activity.WeekKey(rec.WeekStart),
			Metrics:   rawMetrics(rec.Payload),
		})
	}
	body, err := json.MarshalIndent(map[string]any{
		"weeks":           weeks,
		"dataSufficiency": suff,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// rawMetrics embeds a stored payload verbatim when it is valid JSON and
// quotes it otherwise so one corrupt row cannot break payload assembly.
func rawMetrics(payload string) json.RawMessage {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	return json.RawMessage(strconv.Quote(payload))
}

func signalPayload(signals []Signal, suff DataSufficiency) (string, error) {
	body, err := json.MarshalIndent(map[string]any{
		"signals":         signals,
		"dataSufficiency": suff,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func insightPayload(signals []Signal, insights []DimensionInsight, suff DataSufficiency) (string, error) {
	body, err := json.MarshalIndent(map[string]any{
		"signals":         signals,
		"insights":        insights,
		"dataSufficiency": suff,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func normalizeMonthly(email, monthKey string, narrative monthlyNarrative, insights []DimensionInsight, signals []Signal, suff DataSufficiency) *MonthlySynthesis {
	summary := strings.TrimSpace(narrative.Summary)
	if summary == "" {
		summary = fmt.Sprintf("No synthesis produced for %s.", monthKey)
	}
	return &MonthlySynthesis{
		EmployeeEmail:   email,
		MonthKey:        monthKey,
		Summary:         applyUncertaintyNote(summary, suff),
		Risks:           normalizeList(narrative.Risks, suff),
		Opportunities:   normalizeList(narrative.Opportunities, suff),
		Insights:        insights,
		Signals:         signals,
		DataSufficiency: suff,
		Confidence:      NormalizeConfidence(narrative.Confidence, suff, len(signals) > 0),
	}
}

func normalizeQuarterly(email, quarter string, narrative quarterlyNarrative, insights []DimensionInsight, signals []Signal, suff DataSufficiency) *QuarterlySynthesis {
	trajectory := strings.TrimSpace(narrative.Trajectory)
	if trajectory == "" {
		trajectory = fmt.Sprintf("No synthesis produced for %s.", quarter)
	}
	return &QuarterlySynthesis{
		EmployeeEmail:     email,
		Quarter:           quarter,
		Trajectory:        applyUncertaintyNote(trajectory, suff),
		Strengths:         normalizeList(narrative.Strengths, suff),
		Concerns:          normalizeList(narrative.Concerns, suff),
		Assessments:       normalizeAssessments(narrative.Assessments, suff),
		Actions:           normalizeList(narrative.Actions, suff),
		EvidenceSnapshots: buildSnapshots(signals, insights),
		DataSufficiency:   suff,
		Confidence:        NormalizeConfidence(narrative.Confidence, suff, len(signals) > 0),
	}
}

// normalizeAssessments yields one assessment per dimension in canonical
// order, filling gaps with the fixed insufficient-data statement.
func normalizeAssessments(claimed []DimensionAssessment, suff DataSufficiency) []DimensionAssessment {
	byDim := make(map[string]string)
	for _, a := range claimed {
		if !ValidDimension(a.Dimension) {
			continue
		}
		if _, ok := byDim[a.Dimension]; ok {
			continue
		}
		byDim[a.Dimension] = strings.TrimSpace(a.Assessment)
	}
	out := make([]DimensionAssessment, 0, 4)
	for _, dim := range Dimensions() {
		text := byDim[dim]
		if text == "" {
			text = insufficientDataInsight(dim)
		}
		out = append(out, DimensionAssessment{Dimension: dim, Assessment: applyUncertaintyNote(text, suff)})
	}
	return out
}

// buildSnapshots preserves the citation trail: one snapshot per signal
// cited by any insight, in insight order.
func buildSnapshots(signals []Signal, insights []DimensionInsight) []EvidenceSnapshot {
	sigByID := make(map[string]Signal, len(signals))
	for _, sig := range signals {
		sigByID[sig.ID] = sig
	}
	seen := make(map[string]bool)
	out := make([]EvidenceSnapshot, 0, len(signals))
	for _, ins := range insights {
		for _, id := range ins.SupportingSignalIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			sig, ok := sigByID[id]
			if !ok {
				continue
			}
			out = append(out, EvidenceSnapshot{SignalID: sig.ID, Dimension: sig.Dimension, Evidence: sig.Evidence})
		}
	}
	return out
}

// fallbackMonthly is the fixed zero-signal synthesis. Deterministic for a
// given (employee, month, sufficiency) input.
func fallbackMonthly(email, monthKey string, suff DataSufficiency) *MonthlySynthesis {
	return &MonthlySynthesis{
		EmployeeEmail:   email,
		MonthKey:        monthKey,
		Summary:         fmt.Sprintf("Insufficient weekly activity data to synthesize %s.", monthKey),
		Risks:           []string{},
		Opportunities:   []string{},
		Insights:        NormalizeInsights(nil, nil, suff),
		Signals:         []Signal{},
		DataSufficiency: suff,
		Confidence:      ConfidenceLow,
	}
}

// fallbackQuarterly is the fixed zero-signal quarterly synthesis.
func fallbackQuarterly(email, quarter string, suff DataSufficiency) *QuarterlySynthesis {
	assessments := make([]DimensionAssessment, 0, 4)
	for _, dim := range Dimensions() {
		assessments = append(assessments, DimensionAssessment{Dimension: dim, Assessment: insufficientDataInsight(dim)})
	}
	return &QuarterlySynthesis{
		EmployeeEmail:     email,
		Quarter:           quarter,
		Trajectory:        fmt.Sprintf("Insufficient weekly activity data to synthesize %s.", quarter),
		Strengths:         []string{},
		Concerns:          []string{},
		Assessments:       assessments,
		Actions:           []string{},
		EvidenceSnapshots: []EvidenceSnapshot{},
		DataSufficiency:   suff,
		Confidence:        ConfidenceLow,
	}
}

func monthlyRecord(syn *MonthlySynthesis, model string) *store.MonthlySynthesisRecord {
	return &store.MonthlySynthesisRecord{
		EmployeeEmail:   syn.EmployeeEmail,
		MonthKey:        syn.MonthKey,
		Summary:         syn.Summary,
		Risks:           mustJSON(syn.Risks),
		Opportunities:   mustJSON(syn.Opportunities),
		Insights:        mustJSON(syn.Insights),
		Signals:         mustJSON(syn.Signals),
		DataSufficiency: mustJSON(syn.DataSufficiency),
		Confidence:      syn.Confidence,
		ModelName:       model,
	}
}

func quarterlyRecord(syn *QuarterlySynthesis, model string) *store.QuarterlySynthesisRecord {
	return &store.QuarterlySynthesisRecord{
		EmployeeEmail:     syn.EmployeeEmail,
		Quarter:           syn.Quarter,
		Trajectory:        syn.Trajectory,
		Strengths:         mustJSON(syn.Strengths),
		Concerns:          mustJSON(syn.Concerns),
		Assessments:       mustJSON(syn.Assessments),
		Actions:           mustJSON(syn.Actions),
		EvidenceSnapshots: mustJSON(syn.EvidenceSnapshots),
		DataSufficiency:   mustJSON(syn.DataSufficiency),
		Confidence:        syn.Confidence,
		ModelName:         model,
	}
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
