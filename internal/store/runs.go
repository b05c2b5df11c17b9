package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateAnalysisRun inserts a new run in status "running". The partial
// unique index on (employee_email, quarter) rejects a second running run;
// callers should treat IsUniqueViolation as a conflict, not a bug.
func (s *Store) CreateAnalysisRun(ctx context.Context, run *AnalysisRun) (*AnalysisRun, error) {
	if run.RunUID == "" {
		run.RunUID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_uid, employee_email, manager_email, quarter, status, request_payload, evidence_catalog, data_sufficiency, stage_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunUID, run.EmployeeEmail, run.ManagerEmail, run.Quarter, run.Status,
		jsonOr(run.RequestPayload, "{}"), jsonOr(run.EvidenceCatalog, "[]"),
		jsonOr(run.DataSufficiency, "{}"), jsonOr(run.StageUsage, "{}"))
	if err != nil {
		return nil, fmt.Errorf("create analysis run: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetAnalysisRun(ctx, id)
}

const runColumns = `id, run_uid, employee_email, manager_email, quarter, status,
	COALESCE(failed_stage,''), COALESCE(error_code,''), COALESCE(failure_reason,''),
	request_payload, evidence_catalog, data_sufficiency, stage_usage,
	prompt_tokens, completion_tokens, total_tokens,
	started_at, updated_at, completed_at`

func scanRun(row *sql.Row) (*AnalysisRun, error) {
	var r AnalysisRun
	var completedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.RunUID, &r.EmployeeEmail, &r.ManagerEmail, &r.Quarter, &r.Status,
		&r.FailedStage, &r.ErrorCode, &r.FailureReason,
		&r.RequestPayload, &r.EvidenceCatalog, &r.DataSufficiency, &r.StageUsage,
		&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
		&r.StartedAt, &r.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

// GetAnalysisRun returns a run by numeric id. Returns (nil, nil) if not found.
func (s *Store) GetAnalysisRun(ctx context.Context, id int64) (*AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis run: %w", err)
	}
	return run, nil
}

// FindRunningRun returns the in-progress run for (employee, quarter).
// Returns (nil, nil) when no run is in progress — critical for the
// conflict check.
func (s *Store) FindRunningRun(ctx context.Context, employeeEmail, quarter string) (*AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM analysis_runs
		WHERE employee_email = ? AND quarter = ? AND status = ?
	`, employeeEmail, quarter, RunStatusRunning)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find running run: %w", err)
	}
	return run, nil
}

// ListAnalysisRuns returns run history, newest first. Empty filter values
// match everything.
func (s *Store) ListAnalysisRuns(ctx context.Context, employeeEmail, quarter string, limit, offset int) ([]AnalysisRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM analysis_runs WHERE 1=1`
	args := []interface{}{}
	if employeeEmail != "" {
		query += ` AND employee_email = ?`
		args = append(args, employeeEmail)
	}
	if quarter != "" {
		query += ` AND quarter = ?`
		args = append(args, quarter)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()
	var out []AnalysisRun
	for rows.Next() {
		var r AnalysisRun
		var completedAt sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.RunUID, &r.EmployeeEmail, &r.ManagerEmail, &r.Quarter, &r.Status,
			&r.FailedStage, &r.ErrorCode, &r.FailureReason,
			&r.RequestPayload, &r.EvidenceCatalog, &r.DataSufficiency, &r.StageUsage,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&r.StartedAt, &r.UpdatedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkRunFailed transitions a run to terminal failed state, freezing the
// stage tag and reason for the audit trail.
func (s *Store) MarkRunFailed(ctx context.Context, runID int64, failedStage, errorCode, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, failed_stage = ?, error_code = ?, failure_reason = ?,
			updated_at = datetime('now'), completed_at = datetime('now')
		WHERE id = ?
	`, RunStatusFailed, failedStage, errorCode, reason, runID)
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	return nil
}

// UpdateRunUsage replaces the per-stage usage JSON and token totals.
// Called after every generator call so partial usage survives failures.
func (s *Store) UpdateRunUsage(ctx context.Context, runID int64, stageUsage string, prompt, completion, total int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET stage_usage = ?, prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, updated_at = datetime('now')
		WHERE id = ?
	`, jsonOr(stageUsage, "{}"), prompt, completion, total, runID)
	if err != nil {
		return fmt.Errorf("update run usage: %w", err)
	}
	return nil
}

// SaveDebateResponses persists both debate rows in one transaction.
// Either both assessments land or neither does.
func (s *Store) SaveDebateResponses(ctx context.Context, runID int64, advocate, examiner *DebateResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin debate tx: %w", err)
	}
	defer tx.Rollback()

	for _, resp := range []*DebateResponse{advocate, examiner} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO debate_responses (run_id, agent_role, stance, payload, confidence)
			VALUES (?, ?, ?, ?, ?)
		`, runID, resp.AgentRole, resp.Stance, jsonOr(resp.Payload, "{}"), resp.Confidence); err != nil {
			return fmt.Errorf("insert debate response %s: %w", resp.AgentRole, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit debate tx: %w", err)
	}
	return nil
}

func (s *Store) ListDebateResponses(ctx context.Context, runID int64) ([]DebateResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, agent_role, stance, payload, confidence, created_at
		FROM debate_responses WHERE run_id = ? ORDER BY agent_role
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list debate responses: %w", err)
	}
	defer rows.Close()
	var out []DebateResponse
	for rows.Next() {
		var d DebateResponse
		if err := rows.Scan(&d.ID, &d.RunID, &d.AgentRole, &d.Stance, &d.Payload, &d.Confidence, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveArbiterDecision persists the arbiter output. The UNIQUE(run_id)
// constraint guarantees at most one decision per run.
func (s *Store) SaveArbiterDecision(ctx context.Context, runID int64, payload, confidence string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO arbiter_decisions (run_id, payload, confidence) VALUES (?, ?, ?)
	`, runID, jsonOr(payload, "{}"), confidence)
	if err != nil {
		return fmt.Errorf("insert arbiter decision: %w", err)
	}
	return nil
}

// GetArbiterDecision returns (nil, nil) if the run has no decision.
func (s *Store) GetArbiterDecision(ctx context.Context, runID int64) (*ArbiterDecision, error) {
	var d ArbiterDecision
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, payload, confidence, created_at
		FROM arbiter_decisions WHERE run_id = ?
	`, runID).Scan(&d.ID, &d.RunID, &d.Payload, &d.Confidence, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get arbiter decision: %w", err)
	}
	return &d, nil
}

// SaveGuidanceAndComplete persists the employee prompts, the manager
// feedback row, and the completed transition in one transaction. A run is
// only ever "completed" with all guidance rows durably in place.
func (s *Store) SaveGuidanceAndComplete(ctx context.Context, runID int64, prompts []EmployeePrompt, feedbackPayload string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin guidance tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range prompts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employee_prompts (run_id, theme, message, evidence_refs)
			VALUES (?, ?, ?, ?)
		`, runID, p.Theme, p.Message, jsonOr(p.EvidenceRefs, "[]")); err != nil {
			return fmt.Errorf("insert employee prompt: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manager_feedback (run_id, payload) VALUES (?, ?)
	`, runID, jsonOr(feedbackPayload, "{}")); err != nil {
		return fmt.Errorf("insert manager feedback: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, updated_at = datetime('now'), completed_at = datetime('now')
		WHERE id = ?
	`, RunStatusCompleted, runID); err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit guidance tx: %w", err)
	}
	return nil
}

func (s *Store) ListEmployeePrompts(ctx context.Context, runID int64) ([]EmployeePrompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, theme, message, evidence_refs, created_at
		FROM employee_prompts WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list employee prompts: %w", err)
	}
	defer rows.Close()
	var out []EmployeePrompt
	for rows.Next() {
		var p EmployeePrompt
		if err := rows.Scan(&p.ID, &p.RunID, &p.Theme, &p.Message, &p.EvidenceRefs, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetManagerFeedback returns (nil, nil) if the run has no feedback row.
func (s *Store) GetManagerFeedback(ctx context.Context, runID int64) (*ManagerFeedback, error) {
	var f ManagerFeedback
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, payload, created_at
		FROM manager_feedback WHERE run_id = ?
	`, runID).Scan(&f.ID, &f.RunID, &f.Payload, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get manager feedback: %w", err)
	}
	return &f, nil
}

// GetDailyTokenUsage sums total tokens across runs started today.
func (s *Store) GetDailyTokenUsage(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_tokens), 0) FROM analysis_runs
		WHERE started_at >= date('now')
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("daily token usage: %w", err)
	}
	return total, nil
}

// UpsertScheduledJobRun records one scheduler job execution.
func (s *Store) UpsertScheduledJobRun(ctx context.Context, jobName, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (job_name, last_status, last_run_at, run_count, updated_at)
		VALUES (?, ?, datetime('now'), 1, datetime('now'))
		ON CONFLICT(job_name) DO UPDATE SET
			last_status = excluded.last_status,
			last_run_at = excluded.last_run_at,
			run_count = scheduled_jobs.run_count + 1,
			updated_at = excluded.updated_at
	`, jobName, status)
	if err != nil {
		return fmt.Errorf("upsert scheduled job: %w", err)
	}
	return nil
}

// ListScheduledJobs returns all recorded scheduler jobs ordered by name.
func (s *Store) ListScheduledJobs(ctx context.Context) ([]ScheduledJobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, last_status, COALESCE(last_run_at, created_at), run_count, created_at
		FROM scheduled_jobs ORDER BY job_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ScheduledJobRecord
	for rows.Next() {
		var j ScheduledJobRecord
		if err := rows.Scan(&j.ID, &j.JobName, &j.LastStatus, &j.LastRunAt, &j.RunCount, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
