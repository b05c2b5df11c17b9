package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/analysis"
	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/ratelimit"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

type stubGenerator struct {
	responses []string
	err       error
	calls     int
}

func (g *stubGenerator) Generate(_ context.Context, _ *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	n := g.calls
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if n >= len(g.responses) {
		return nil, fmt.Errorf("unexpected generator call %d", n)
	}
	return &provider.GenerateResponse{
		Text:         g.responses[n],
		FinishReason: "stop",
		Usage:        provider.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

func (g *stubGenerator) DefaultModel() string { return "stub-model" }

const testEmail = "dev@example.com"

func newTestServer(t *testing.T, gen provider.Generator, authToken string) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "pulseloom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New()
	orch := analysis.NewOrchestrator(st, gen, limiter, analysis.Options{Logger: logger})
	pipe := insight.NewPipeline(st, gen, limiter, insight.Options{SinglePass: true, Logger: logger})

	cfg := config.DefaultConfig().Gateway
	cfg.AuthToken = authToken
	srv := New(cfg, st, orch, pipe, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

var q3Mondays = []string{
	"2025-07-07", "2025-07-14", "2025-07-21", "2025-07-28",
	"2025-08-04", "2025-08-11", "2025-08-18", "2025-08-25",
	"2025-09-01", "2025-09-08", "2025-09-15", "2025-09-22", "2025-09-29",
}

func seedWeeks(t *testing.T, st *store.Store, email, source string, dates ...string) {
	t.Helper()
	for _, d := range dates {
		ws, err := activity.ParseWeekStart(d)
		if err != nil {
			t.Fatalf("ParseWeekStart(%q): %v", d, err)
		}
		if err := st.UpsertWeeklyActivity(context.Background(), email, source, ws, `{"mergedPRs":4}`); err != nil {
			t.Fatalf("seed %s %s: %v", source, d, err)
		}
	}
}

func seedEmployee(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertEmployee(ctx, &store.Employee{
		Email:        testEmail,
		Name:         "Dev Example",
		Role:         "software_engineer",
		ManagerEmail: "mgr@example.com",
		Active:       true,
	}); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	if err := st.UpsertAnalysisContext(ctx, &store.AnalysisContext{
		EmployeeEmail:     testEmail,
		ManagerEmail:      "mgr@example.com",
		Role:              "software_engineer",
		BonusEligible:     true,
		PromotionEligible: true,
	}); err != nil {
		t.Fatalf("seed analysis context: %v", err)
	}
}

// seedSyntheses backfills the quarterly and monthly evidence an analysis
// run loads.
func seedSyntheses(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.InsertQuarterlySynthesis(ctx, &store.QuarterlySynthesisRecord{
		EmployeeEmail:     testEmail,
		Quarter:           "2025-Q3",
		Trajectory:        "Output climbed steadily across the quarter.",
		Strengths:         `["Fast review turnaround."]`,
		Concerns:          `["Test coverage lagging behind feature work."]`,
		Assessments:       `[{"dimension":"Execution","assessment":"Held a consistent merge cadence."}]`,
		Actions:           `["Pair on test coverage next sprint."]`,
		EvidenceSnapshots: `[]`,
		DataSufficiency:   `{"level":"sufficient","notes":"","weeks":13,"months":3,"sources":{"github":true,"slack":true}}`,
		Confidence:        "high",
	}); err != nil {
		t.Fatalf("seed quarterly synthesis: %v", err)
	}
	for _, mk := range []string{"2025-07", "2025-08", "2025-09"} {
		if _, err := st.InsertMonthlySynthesis(ctx, &store.MonthlySynthesisRecord{
			EmployeeEmail:   testEmail,
			MonthKey:        mk,
			Summary:         mk + " held a steady pace.",
			Risks:           `[]`,
			Opportunities:   `[]`,
			Insights:        `[]`,
			Signals:         `[]`,
			DataSufficiency: `{"level":"sufficient","notes":"","weeks":4,"months":1,"sources":{"github":true,"slack":true}}`,
			Confidence:      "medium",
		}); err != nil {
			t.Fatalf("seed monthly synthesis %s: %v", mk, err)
		}
	}
}

const debateJSON = `{
  "advocateAssessment": {
    "stance": "support_reward",
    "arguments": [{"claim": "Merge cadence held through the quarter.", "evidenceRefs": ["E1"]}],
    "risks": [],
    "bonusRecommendation": "approve",
    "promotionRecommendation": "defer",
    "confidence": "high"
  },
  "examinerAssessment": {
    "stance": "caution_reward",
    "arguments": [{"claim": "Coverage lag could slow future quarters.", "evidenceRefs": ["E3"]}],
    "risks": ["Coverage debt grows quarter over quarter."],
    "bonusRecommendation": "defer",
    "promotionRecommendation": "deny",
    "confidence": "medium"
  }
}`

const arbiterJSON = `{
  "bonusDecision": "approve",
  "promotionDecision": "defer",
  "rationale": "The cadence argument outweighs the coverage concern refs:[E1,E3].",
  "keyStrengths": ["Reliable delivery rhythm."],
  "keyRisks": ["Coverage debt."],
  "notesForHR": "Revisit promotion once coverage improves refs:[E2].",
  "confidence": "high"
}`

const guidanceJSON = `{
  "employeePings": [
    {"theme": "execution", "message": "Your steady merge cadence carried the quarter.", "evidenceRefs": ["E1"]}
  ],
  "managerCoaching": {
    "summary": "Reinforce the delivery rhythm and fund coverage work.",
    "coachingPoints": [
      {"topic": "test coverage", "advice": "Block out a coverage pairing day.", "evidenceRefs": ["E3"]}
    ]
  }
}`

const monthlySinglePassJSON = `{
  "signals": [
    {"id":"A","dimension":"Execution","statement":"Merged pull requests weekly.","evidence":[{"source":"github_weekly_activity","weekStart":"2025-06-02","fields":["mergedPRs"],"summary":"Merged 4 PRs"}]}
  ],
  "insights": [
    {"dimension":"Execution","insight":"Delivery held steady.","supportingSignalIds":["S1"],"confidence":"medium"}
  ],
  "synthesis": {"summary":"A steady month of delivery.","risks":[],"opportunities":[],"confidence":"medium"}
}`

const quarterlySinglePassJSON = `{
  "signals": [
    {"id":"A","dimension":"Execution","statement":"Shipped steadily.","evidence":[{"source":"github_weekly_activity","weekStart":"2025-07-07","fields":["mergedPRs"],"summary":"Release work"}]}
  ],
  "insights": [
    {"dimension":"Execution","insight":"Cadence held all quarter.","supportingSignalIds":["S1"],"confidence":"medium"}
  ],
  "synthesis": {"trajectory":"Steady contribution.","strengths":[],"concerns":[],"assessments":[{"dimension":"Execution","assessment":"Delivered consistently."}],"actions":[],"confidence":"medium"}
}`

func TestStatusNoAuthRequired(t *testing.T) {
	ts, st := newTestServer(t, &stubGenerator{}, "sekrit")
	if err := st.UpsertScheduledJobRun(context.Background(), "synthesis-monthly", "completed"); err != nil {
		t.Fatalf("seed job record: %v", err)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/status", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS header *, got %q", got)
	}

	var status struct {
		Version       string                     `json:"version"`
		UptimeSeconds int                        `json:"uptimeSeconds"`
		TokensToday   int                        `json:"tokensToday"`
		ScheduledJobs []store.ScheduledJobRecord `json:"scheduledJobs"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Version != "test" {
		t.Errorf("expected version test, got %q", status.Version)
	}
	if len(status.ScheduledJobs) != 1 || status.ScheduledJobs[0].JobName != "synthesis-monthly" {
		t.Errorf("expected the recorded job, got %+v", status.ScheduledJobs)
	}
}

func TestAuthorization(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "sekrit")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/analysis/runs", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/analysis/runs", nil, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/analysis/runs", nil, "sekrit")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", resp.StatusCode)
	}

	// Preflight must pass without credentials.
	resp, _ = doJSON(t, http.MethodOptions, ts.URL+"/api/v1/analysis/runs", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", resp.StatusCode)
	}
}

func TestAnalysisRunLifecycle(t *testing.T) {
	gen := &stubGenerator{responses: []string{debateJSON, arbiterJSON, guidanceJSON}}
	ts, st := newTestServer(t, gen, "")
	seedEmployee(t, st)
	seedSyntheses(t, st)
	seedWeeks(t, st, testEmail, activity.SourceGitHub, q3Mondays...)
	seedWeeks(t, st, testEmail, activity.SourceSlack, q3Mondays...)

	input := map[string]any{
		"employeeEmail": testEmail,
		"quarter":       "2025-Q3",
		"monthKeys":     []string{"2025-07", "2025-08", "2025-09"},
	}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/analysis/runs", input, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var result analysis.RunResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RunID <= 0 || result.EmployeeEmail != testEmail || result.Quarter != "2025-Q3" {
		t.Errorf("unexpected result envelope: %+v", result)
	}
	if result.Outputs.Debate == nil || result.Outputs.Arbiter == nil || result.Outputs.Guidance == nil {
		t.Fatal("expected all three stage outputs in the response")
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 generator calls, got %d", gen.calls)
	}

	// Poll the run by id.
	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/analysis/runs/%d", ts.URL, result.RunID), nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 polling run, got %d", resp.StatusCode)
	}
	var run store.AnalysisRun
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != store.RunStatusCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if run.TotalTokens != 450 {
		t.Errorf("expected 450 total tokens, got %d", run.TotalTokens)
	}

	// And the history listing.
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/analysis/runs?employee="+testEmail+"&quarter=2025-Q3", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing runs, got %d", resp.StatusCode)
	}
	var listing struct {
		Runs  []store.AnalysisRun `json:"runs"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 1 || len(listing.Runs) != 1 {
		t.Fatalf("expected 1 run in history, got %d", listing.Count)
	}
	if listing.Runs[0].ID != result.RunID {
		t.Errorf("expected run %d in history, got %d", result.RunID, listing.Runs[0].ID)
	}
}

func TestAnalysisRunErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		seed       func(t *testing.T, st *store.Store)
		input      map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name: "invalid quarter",
			seed: func(t *testing.T, st *store.Store) {},
			input: map[string]any{
				"employeeEmail": testEmail,
				"quarter":       "2025-Q5",
				"monthKeys":     []string{"2025-07", "2025-08", "2025-09"},
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "unknown employee",
			seed: func(t *testing.T, st *store.Store) {},
			input: map[string]any{
				"employeeEmail": "ghost@example.com",
				"quarter":       "2025-Q3",
				"monthKeys":     []string{"2025-07", "2025-08", "2025-09"},
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "employee_not_found",
		},
		{
			name: "missing quarterly evidence",
			seed: func(t *testing.T, st *store.Store) {
				seedEmployee(t, st)
			},
			input: map[string]any{
				"employeeEmail": testEmail,
				"quarter":       "2025-Q3",
				"monthKeys":     []string{"2025-07", "2025-08", "2025-09"},
			},
			wantStatus: http.StatusConflict,
			wantCode:   "missing_quarterly_evidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, st := newTestServer(t, &stubGenerator{}, "")
			tt.seed(t, st)

			resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/analysis/runs", tt.input, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			var failure failureBody
			if err := json.Unmarshal(body, &failure); err != nil {
				t.Fatalf("decode failure: %v", err)
			}
			if failure.Status != "failed" {
				t.Errorf("expected status failed, got %q", failure.Status)
			}
			if failure.ErrorCode != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, failure.ErrorCode)
			}
		})
	}
}

func TestAnalysisRunBadJSONBody(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "")

	resp, err := http.Post(ts.URL+"/api/v1/analysis/runs", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var failure failureBody
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure.ErrorCode != "invalid_request" {
		t.Errorf("expected invalid_request, got %s", failure.ErrorCode)
	}
}

func TestAnalysisRunByIDErrors(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/analysis/runs/abc", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/analysis/runs/9999", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", resp.StatusCode)
	}
}

func TestSynthesisMonthlyEndpoint(t *testing.T) {
	gen := &stubGenerator{responses: []string{monthlySinglePassJSON}}
	ts, st := newTestServer(t, gen, "")
	seedWeeks(t, st, testEmail, activity.SourceGitHub, "2025-06-02", "2025-06-09", "2025-06-16", "2025-06-23")

	input := map[string]any{"employeeEmail": testEmail, "monthKey": "2025-06"}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/synthesis/monthly", input, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var out struct {
		MonthKey  string                   `json:"monthKey"`
		Synthesis insight.MonthlySynthesis `json:"synthesis"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode synthesis: %v", err)
	}
	if out.MonthKey != "2025-06" {
		t.Errorf("expected month 2025-06, got %s", out.MonthKey)
	}
	if out.Synthesis.Summary != "A steady month of delivery." {
		t.Errorf("unexpected summary %q", out.Synthesis.Summary)
	}

	rec, err := st.LatestMonthlySynthesis(context.Background(), testEmail, "2025-06")
	if err != nil {
		t.Fatalf("LatestMonthlySynthesis: %v", err)
	}
	if rec == nil {
		t.Fatal("synthesis row was not persisted")
	}
}

func TestSynthesisQuarterlyEndpoint(t *testing.T) {
	gen := &stubGenerator{responses: []string{quarterlySinglePassJSON}}
	ts, st := newTestServer(t, gen, "")
	seedWeeks(t, st, testEmail, activity.SourceGitHub, q3Mondays...)

	input := map[string]any{"employeeEmail": testEmail, "quarter": "2025-Q3"}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/synthesis/quarterly", input, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	rec, err := st.LatestQuarterlySynthesis(context.Background(), testEmail, "2025-Q3")
	if err != nil {
		t.Fatalf("LatestQuarterlySynthesis: %v", err)
	}
	if rec == nil {
		t.Fatal("quarterly row was not persisted")
	}
}

func TestSynthesisValidation(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/synthesis/monthly",
		map[string]any{"employeeEmail": testEmail, "monthKey": "2025-13"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad month key, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/synthesis/quarterly",
		map[string]any{"employeeEmail": testEmail, "quarter": "2025-Q5"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad quarter, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/synthesis/monthly",
		map[string]any{"monthKey": "2025-06"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing email, got %d", resp.StatusCode)
	}
}

func TestSynthesisGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("provider unavailable")}
	ts, st := newTestServer(t, gen, "")
	// The generator is only consulted when activity exists.
	seedWeeks(t, st, testEmail, activity.SourceGitHub, "2025-06-02")

	input := map[string]any{"employeeEmail": testEmail, "monthKey": "2025-06"}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/synthesis/monthly", input, "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", resp.StatusCode, body)
	}
	var failure failureBody
	if err := json.Unmarshal(body, &failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure.ErrorCode != insight.CodeGenerationFailed {
		t.Errorf("expected generation_failed, got %s", failure.ErrorCode)
	}
	if failure.FailedStage != insight.StageSynthesis {
		t.Errorf("expected synthesis stage, got %s", failure.FailedStage)
	}
}

func TestActivityWeeklyStoreAndList(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "")

	github := map[string]any{
		"employeeEmail": testEmail,
		"source":        "github",
		"weekStart":     "2025-06-02",
		"payload":       map[string]any{"mergedPRs": 4},
	}
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/activity/weekly", github, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var stored struct {
		Status string `json:"status"`
		Week   string `json:"week"`
	}
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Status != "stored" || stored.Week != "2025-06-02" {
		t.Errorf("unexpected store response: %+v", stored)
	}

	slack := map[string]any{
		"employeeEmail": testEmail,
		"source":        "slack",
		"weekStart":     "2025-06-02",
		"payload":       map[string]any{"messagesSent": 40},
	}
	if resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/activity/weekly", slack, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for slack week, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/activity?employee="+testEmail, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d", resp.StatusCode)
	}
	var listing struct {
		Weeks []activity.WeeklyActivity `json:"weeks"`
		Count int                       `json:"count"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 2 {
		t.Fatalf("expected 2 weeks, got %d", listing.Count)
	}
	if listing.Weeks[0].Source != "github" || listing.Weeks[1].Source != "slack" {
		t.Errorf("expected github then slack, got %s, %s", listing.Weeks[0].Source, listing.Weeks[1].Source)
	}

	// Range filter that excludes the stored week.
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/activity?employee="+testEmail+"&from=2025-07-01&to=2025-08-01", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for ranged listing, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode ranged listing: %v", err)
	}
	if listing.Count != 0 {
		t.Errorf("expected 0 weeks outside range, got %d", listing.Count)
	}
}

func TestActivityWeeklyValidation(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing email", map[string]any{"source": "github", "weekStart": "2025-06-02"}},
		{"bad source", map[string]any{"employeeEmail": testEmail, "source": "jira", "weekStart": "2025-06-02"}},
		{"bad week start", map[string]any{"employeeEmail": testEmail, "source": "github", "weekStart": "June 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/activity/weekly", tt.body, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/activity", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without employee param, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{}, "")

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/v1/analysis/runs"},
		{http.MethodGet, "/api/v1/synthesis/monthly"},
		{http.MethodPut, "/api/v1/activity/weekly"},
		{http.MethodPost, "/api/v1/activity"},
	} {
		resp, _ := doJSON(t, tc.method, ts.URL+tc.path, nil, "")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}
}
