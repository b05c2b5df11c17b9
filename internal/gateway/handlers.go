package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/activity"
	"github.com/PulseLoom/PulseLoom/internal/analysis"
	"github.com/PulseLoom/PulseLoom/internal/ingest"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

func (s *Server) handleAnalysisRuns(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.createAnalysisRun(w, r)
	case http.MethodGet:
		s.listAnalysisRuns(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createAnalysisRun(w http.ResponseWriter, r *http.Request) {
	var in analysis.RunInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, failureBody{
			Status:    "failed",
			ErrorCode: analysis.CodeInvalidRequest,
			Message:   "invalid JSON body",
		})
		return
	}

	// Once accepted, a run completes or fails on the server regardless of
	// whether the client sticks around for the response.
	result, err := s.orch.Run(context.WithoutCancel(r.Context()), in)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listAnalysisRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.ListAnalysisRuns(r.Context(), strings.TrimSpace(q.Get("employee")), strings.TrimSpace(q.Get("quarter")), limit, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.AnalysisRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleAnalysisRunByID(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/analysis/runs/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.store.GetAnalysisRun(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type synthesisRequest struct {
	EmployeeEmail string `json:"employeeEmail"`
	MonthKey      string `json:"monthKey,omitempty"`
	Quarter       string `json:"quarter,omitempty"`
}

func (s *Server) handleSynthesisMonthly(w http.ResponseWriter, r *http.Request) {
	req, ok := s.acceptSynthesis(w, r)
	if !ok {
		return
	}
	if _, err := activity.ParseMonthKey(req.MonthKey); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	syn, err := s.pipeline.SynthesizeMonthly(context.WithoutCancel(r.Context()), req.EmployeeEmail, req.MonthKey)
	if err != nil {
		writeInsightError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employeeEmail": req.EmployeeEmail,
		"monthKey":      req.MonthKey,
		"synthesis":     syn,
	})
}

func (s *Server) handleSynthesisQuarterly(w http.ResponseWriter, r *http.Request) {
	req, ok := s.acceptSynthesis(w, r)
	if !ok {
		return
	}
	if _, _, err := activity.ParseQuarter(req.Quarter); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	syn, err := s.pipeline.SynthesizeQuarterly(context.WithoutCancel(r.Context()), req.EmployeeEmail, req.Quarter)
	if err != nil {
		writeInsightError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employeeEmail": req.EmployeeEmail,
		"quarter":       req.Quarter,
		"synthesis":     syn,
	})
}

// acceptSynthesis handles the method, auth, and body boilerplate shared by
// both synthesis endpoints.
func (s *Server) acceptSynthesis(w http.ResponseWriter, r *http.Request) (*synthesisRequest, bool) {
	allowCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return nil, false
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	var req synthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	req.EmployeeEmail = strings.TrimSpace(req.EmployeeEmail)
	if req.EmployeeEmail == "" {
		http.Error(w, "employeeEmail required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// handleActivityWeekly is the HTTP fallback for collectors that cannot
// publish to Kafka. Same message shape, same upsert.
func (s *Server) handleActivityWeekly(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg ingest.WeeklyMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	msg.EmployeeEmail = strings.TrimSpace(msg.EmployeeEmail)
	if msg.EmployeeEmail == "" {
		http.Error(w, "employeeEmail required", http.StatusBadRequest)
		return
	}
	if !activity.ValidSource(msg.Source) {
		http.Error(w, "source must be github or slack", http.StatusBadRequest)
		return
	}
	weekStart, err := activity.ParseWeekStart(msg.WeekStart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.UpsertWeeklyActivity(r.Context(), msg.EmployeeEmail, msg.Source, weekStart, string(msg.Payload)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "stored",
		"source": msg.Source,
		"week":   activity.WeekKey(weekStart),
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("employee"))
	if email == "" {
		http.Error(w, "employee required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	from, to := now.AddDate(-1, 0, 0), now
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = activity.ParseWeekStart(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = activity.ParseWeekStart(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	weeks, err := s.store.ListWeeklyActivity(r.Context(), email, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if weeks == nil {
		weeks = []activity.WeeklyActivity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee": email,
		"weeks":    weeks,
		"count":    len(weeks),
	})
}

// handleStatus is the unauthenticated health check.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tokensToday, _ := s.store.GetDailyTokenUsage(r.Context())
	jobs, _ := s.store.ListScheduledJobs(r.Context())
	if jobs == nil {
		jobs = []store.ScheduledJobRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":       s.version,
		"uptimeSeconds": int(time.Since(s.started).Seconds()),
		"tokensToday":   tokensToday,
		"scheduledJobs": jobs,
	})
}
