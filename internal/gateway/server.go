// Package gateway serves the HTTP API: analysis runs, synthesis
// invocations, weekly activity intake, and status.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/analysis"
	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

// Server exposes the analysis orchestrator and insight pipeline over HTTP.
type Server struct {
	cfg      config.GatewayConfig
	store    *store.Store
	orch     *analysis.Orchestrator
	pipeline *insight.Pipeline
	version  string
	started  time.Time
}

// New wires a gateway server around the given store and engines.
func New(cfg config.GatewayConfig, st *store.Store, orch *analysis.Orchestrator, pipe *insight.Pipeline, version string) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		orch:     orch,
		pipeline: pipe,
		version:  version,
		started:  time.Now(),
	}
}

// Handler builds the API mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/analysis/runs", s.handleAnalysisRuns)
	mux.HandleFunc("/api/v1/analysis/runs/", s.handleAnalysisRunByID)
	mux.HandleFunc("/api/v1/synthesis/monthly", s.handleSynthesisMonthly)
	mux.HandleFunc("/api/v1/synthesis/quarterly", s.handleSynthesisQuarterly)
	mux.HandleFunc("/api/v1/activity/weekly", s.handleActivityWeekly)
	mux.HandleFunc("/api/v1/activity", s.handleActivity)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	return mux
}

// Run serves the API until the context is cancelled. TLS is enabled when
// both cert and key paths are configured.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	useTLS := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS key pair: %w", err)
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	errCh := make(chan error, 1)
	go func() {
		if useTLS {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Gateway listening", "addr", addr, "tls", useTLS)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		slog.Info("Gateway stopped")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// failureBody is the JSON error envelope for analysis and synthesis
// failures. Status is always "failed".
type failureBody struct {
	Status      string `json:"status"`
	RunID       int64  `json:"runId,omitempty"`
	FailedStage string `json:"failedStage,omitempty"`
	ErrorCode   string `json:"errorCode"`
	Message     string `json:"message"`
}

func allowCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// authorized checks the bearer token when one is configured.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return token == s.cfg.AuthToken
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAnalysisError maps an orchestrator error to the taxonomy's HTTP
// status and failure envelope. Unknown errors become internal_error 500s.
func writeAnalysisError(w http.ResponseWriter, err error) {
	var e *analysis.Error
	if errors.As(err, &e) {
		writeJSON(w, analysis.HTTPStatus(e.Code), failureBody{
			Status:      "failed",
			RunID:       e.RunID,
			FailedStage: e.Stage,
			ErrorCode:   e.Code,
			Message:     e.Detail(),
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, failureBody{
		Status:    "failed",
		ErrorCode: "internal_error",
		Message:   err.Error(),
	})
}

// writeInsightError maps a pipeline error to the failure envelope.
func writeInsightError(w http.ResponseWriter, err error) {
	var e *insight.PipelineError
	if errors.As(err, &e) {
		msg := e.Code
		if e.Err != nil {
			msg = e.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, failureBody{
			Status:      "failed",
			FailedStage: e.Stage,
			ErrorCode:   e.Code,
			Message:     msg,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, failureBody{
		Status:    "failed",
		ErrorCode: "internal_error",
		Message:   err.Error(),
	})
}
