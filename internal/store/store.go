package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PulseLoom/PulseLoom/internal/activity"
)

// Store wraps the SQLite database holding activity, syntheses, and
// analysis workflow state.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migrations for existing dbs (no-op if column exists).
	_, _ = db.Exec(`ALTER TABLE analysis_runs ADD COLUMN error_code TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE analysis_runs ADD COLUMN prompt_tokens INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE analysis_runs ADD COLUMN completion_tokens INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE analysis_runs ADD COLUMN total_tokens INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE monthly_synthesis ADD COLUMN model_name TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE quarterly_synthesis ADD COLUMN model_name TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE analysis_context ADD COLUMN notes TEXT DEFAULT ''`)
	_, _ = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_analysis_runs_running ON analysis_runs(employee_email, quarter) WHERE status = 'running'`)

	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetSetting persists a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

// --- Employees ---

func (s *Store) UpsertEmployee(ctx context.Context, e *Employee) error {
	if e.Email == "" {
		return fmt.Errorf("employee email required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (email, name, role, manager_email, active, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			manager_email = excluded.manager_email,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, e.Email, e.Name, e.Role, e.ManagerEmail, e.Active)
	if err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	return nil
}

// GetEmployee returns an employee by email. Returns (nil, nil) if not found.
func (s *Store) GetEmployee(ctx context.Context, email string) (*Employee, error) {
	var e Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT email, name, role, manager_email, active, created_at, updated_at
		FROM employees WHERE email = ?
	`, email).Scan(&e.Email, &e.Name, &e.Role, &e.ManagerEmail, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	query := `SELECT email, name, role, manager_email, active, created_at, updated_at FROM employees`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY email`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.Email, &e.Name, &e.Role, &e.ManagerEmail, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Analysis context ---

func (s *Store) UpsertAnalysisContext(ctx context.Context, ac *AnalysisContext) error {
	if ac.EmployeeEmail == "" || ac.ManagerEmail == "" {
		return fmt.Errorf("analysis context requires employee and manager emails")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_context (employee_email, manager_email, role, bonus_eligible, promotion_eligible, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(employee_email) DO UPDATE SET
			manager_email = excluded.manager_email,
			role = excluded.role,
			bonus_eligible = excluded.bonus_eligible,
			promotion_eligible = excluded.promotion_eligible,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, ac.EmployeeEmail, ac.ManagerEmail, ac.Role, ac.BonusEligible, ac.PromotionEligible, ac.Notes)
	if err != nil {
		return fmt.Errorf("upsert analysis context: %w", err)
	}
	return nil
}

// GetAnalysisContext returns the configuration row for an employee.
// Returns (nil, nil) if not found — the caller decides how fatal that is.
func (s *Store) GetAnalysisContext(ctx context.Context, employeeEmail string) (*AnalysisContext, error) {
	var ac AnalysisContext
	err := s.db.QueryRowContext(ctx, `
		SELECT employee_email, manager_email, role, bonus_eligible, promotion_eligible, COALESCE(notes,''), updated_at
		FROM analysis_context WHERE employee_email = ?
	`, employeeEmail).Scan(&ac.EmployeeEmail, &ac.ManagerEmail, &ac.Role, &ac.BonusEligible, &ac.PromotionEligible, &ac.Notes, &ac.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis context: %w", err)
	}
	return &ac, nil
}

// --- Weekly activity ---

// UpsertWeeklyActivity inserts or replaces the rollup for one
// (employee, source, week). Collector re-runs are routine, so the payload
// is replaced rather than duplicated.
func (s *Store) UpsertWeeklyActivity(ctx context.Context, employeeEmail, source string, weekStart time.Time, payload string) error {
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weekly_activity (employee_email, source, week_start, payload, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(employee_email, source, week_start) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, employeeEmail, source, weekStart.UTC(), payload)
	if err != nil {
		return fmt.Errorf("upsert weekly activity: %w", err)
	}
	return nil
}

// ListWeeklyActivity returns all rollups for an employee with week_start
// in [from, to), ordered by week then source.
func (s *Store) ListWeeklyActivity(ctx context.Context, employeeEmail string, from, to time.Time) ([]activity.WeeklyActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_email, source, week_start, payload, created_at, updated_at
		FROM weekly_activity
		WHERE employee_email = ? AND week_start >= ? AND week_start < ?
		ORDER BY week_start, source
	`, employeeEmail, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list weekly activity: %w", err)
	}
	defer rows.Close()
	var out []activity.WeeklyActivity
	for rows.Next() {
		var w activity.WeeklyActivity
		if err := rows.Scan(&w.ID, &w.EmployeeEmail, &w.Source, &w.WeekStart, &w.Payload, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ActiveEmployeeEmails returns employees with any activity in [from, to).
func (s *Store) ActiveEmployeeEmails(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT employee_email FROM weekly_activity
		WHERE week_start >= ? AND week_start < ?
		ORDER BY employee_email
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("active employees: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

// --- Monthly synthesis ---

// InsertMonthlySynthesis appends a synthesis row. Rows are never updated;
// history is part of the audit trail.
func (s *Store) InsertMonthlySynthesis(ctx context.Context, rec *MonthlySynthesisRecord) (*MonthlySynthesisRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_synthesis (employee_email, month_key, summary, risks, opportunities, insights, signals, data_sufficiency, confidence, model_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.EmployeeEmail, rec.MonthKey, rec.Summary, jsonOr(rec.Risks, "[]"), jsonOr(rec.Opportunities, "[]"),
		jsonOr(rec.Insights, "[]"), jsonOr(rec.Signals, "[]"), jsonOr(rec.DataSufficiency, "{}"), rec.Confidence, rec.ModelName)
	if err != nil {
		return nil, fmt.Errorf("insert monthly synthesis: %w", err)
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return s.getMonthlySynthesisByID(ctx, id)
}

func (s *Store) getMonthlySynthesisByID(ctx context.Context, id int64) (*MonthlySynthesisRecord, error) {
	var rec MonthlySynthesisRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_email, month_key, summary, risks, opportunities, insights, signals, data_sufficiency, confidence, COALESCE(model_name,''), created_at
		FROM monthly_synthesis WHERE id = ?
	`, id).Scan(&rec.ID, &rec.EmployeeEmail, &rec.MonthKey, &rec.Summary, &rec.Risks, &rec.Opportunities,
		&rec.Insights, &rec.Signals, &rec.DataSufficiency, &rec.Confidence, &rec.ModelName, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get monthly synthesis: %w", err)
	}
	return &rec, nil
}

// LatestMonthlySynthesis returns the newest synthesis for a month.
// Returns (nil, nil) if none exists.
func (s *Store) LatestMonthlySynthesis(ctx context.Context, employeeEmail, monthKey string) (*MonthlySynthesisRecord, error) {
	var rec MonthlySynthesisRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_email, month_key, summary, risks, opportunities, insights, signals, data_sufficiency, confidence, COALESCE(model_name,''), created_at
		FROM monthly_synthesis
		WHERE employee_email = ? AND month_key = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, employeeEmail, monthKey).Scan(&rec.ID, &rec.EmployeeEmail, &rec.MonthKey, &rec.Summary, &rec.Risks, &rec.Opportunities,
		&rec.Insights, &rec.Signals, &rec.DataSufficiency, &rec.Confidence, &rec.ModelName, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest monthly synthesis: %w", err)
	}
	return &rec, nil
}

// --- Quarterly synthesis ---

func (s *Store) InsertQuarterlySynthesis(ctx context.Context, rec *QuarterlySynthesisRecord) (*QuarterlySynthesisRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quarterly_synthesis (employee_email, quarter, trajectory, strengths, concerns, assessments, actions, evidence_snapshots, data_sufficiency, confidence, model_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.EmployeeEmail, rec.Quarter, rec.Trajectory, jsonOr(rec.Strengths, "[]"), jsonOr(rec.Concerns, "[]"),
		jsonOr(rec.Assessments, "[]"), jsonOr(rec.Actions, "[]"), jsonOr(rec.EvidenceSnapshots, "[]"),
		jsonOr(rec.DataSufficiency, "{}"), rec.Confidence, rec.ModelName)
	if err != nil {
		return nil, fmt.Errorf("insert quarterly synthesis: %w", err)
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return s.getQuarterlySynthesisByID(ctx, id)
}

func (s *Store) getQuarterlySynthesisByID(ctx context.Context, id int64) (*QuarterlySynthesisRecord, error) {
	var rec QuarterlySynthesisRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_email, quarter, trajectory, strengths, concerns, assessments, actions, evidence_snapshots, data_sufficiency, confidence, COALESCE(model_name,''), created_at
		FROM quarterly_synthesis WHERE id = ?
	`, id).Scan(&rec.ID, &rec.EmployeeEmail, &rec.Quarter, &rec.Trajectory, &rec.Strengths, &rec.Concerns,
		&rec.Assessments, &rec.Actions, &rec.EvidenceSnapshots, &rec.DataSufficiency, &rec.Confidence, &rec.ModelName, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get quarterly synthesis: %w", err)
	}
	return &rec, nil
}

// LatestQuarterlySynthesis returns the newest synthesis for a quarter.
// Returns (nil, nil) if none exists.
func (s *Store) LatestQuarterlySynthesis(ctx context.Context, employeeEmail, quarter string) (*QuarterlySynthesisRecord, error) {
	var rec QuarterlySynthesisRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_email, quarter, trajectory, strengths, concerns, assessments, actions, evidence_snapshots, data_sufficiency, confidence, COALESCE(model_name,''), created_at
		FROM quarterly_synthesis
		WHERE employee_email = ? AND quarter = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, employeeEmail, quarter).Scan(&rec.ID, &rec.EmployeeEmail, &rec.Quarter, &rec.Trajectory, &rec.Strengths, &rec.Concerns,
		&rec.Assessments, &rec.Actions, &rec.EvidenceSnapshots, &rec.DataSufficiency, &rec.Confidence, &rec.ModelName, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest quarterly synthesis: %w", err)
	}
	return &rec, nil
}

func jsonOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
