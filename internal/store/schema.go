package store

import (
	"time"
)

// Employee is a person whose activity is tracked.
type Employee struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	ManagerEmail string    `json:"managerEmail"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AnalysisContext is the per-employee configuration row consumed by
// manager analysis: reporting line plus reward eligibility flags.
type AnalysisContext struct {
	EmployeeEmail     string    `json:"employeeEmail"`
	ManagerEmail      string    `json:"managerEmail"`
	Role              string    `json:"role"`
	BonusEligible     bool      `json:"bonusEligible"`
	PromotionEligible bool      `json:"promotionEligible"`
	Notes             string    `json:"notes,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MonthlySynthesisRecord is one persisted monthly synthesis. Rows are
// append-only; readers take the latest by created_at.
type MonthlySynthesisRecord struct {
	ID              int64     `json:"id"`
	EmployeeEmail   string    `json:"employeeEmail"`
	MonthKey        string    `json:"monthKey"`
	Summary         string    `json:"summary"`
	Risks           string    `json:"risks"`           // JSON array
	Opportunities   string    `json:"opportunities"`   // JSON array
	Insights        string    `json:"insights"`        // JSON array of dimension insights
	Signals         string    `json:"signals"`         // JSON array
	DataSufficiency string    `json:"dataSufficiency"` // JSON object
	Confidence      string    `json:"confidence"`
	ModelName       string    `json:"modelName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// QuarterlySynthesisRecord is one persisted quarterly synthesis, append-only.
type QuarterlySynthesisRecord struct {
	ID                int64     `json:"id"`
	EmployeeEmail     string    `json:"employeeEmail"`
	Quarter           string    `json:"quarter"`
	Trajectory        string    `json:"trajectory"`
	Strengths         string    `json:"strengths"`         // JSON array
	Concerns          string    `json:"concerns"`          // JSON array
	Assessments       string    `json:"assessments"`       // JSON array of dimension assessments
	Actions           string    `json:"actions"`           // JSON array
	EvidenceSnapshots string    `json:"evidenceSnapshots"` // JSON array
	DataSufficiency   string    `json:"dataSufficiency"`   // JSON object
	Confidence        string    `json:"confidence"`
	ModelName         string    `json:"modelName,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// AnalysisRun tracks one debate/arbiter/guidance workflow execution.
type AnalysisRun struct {
	ID               int64      `json:"id"`
	RunUID           string     `json:"runUid"`
	EmployeeEmail    string     `json:"employeeEmail"`
	ManagerEmail     string     `json:"managerEmail"`
	Quarter          string     `json:"quarter"`
	Status           string     `json:"status"`
	FailedStage      string     `json:"failedStage,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	FailureReason    string     `json:"failureReason,omitempty"`
	RequestPayload   string     `json:"requestPayload"`  // JSON object
	EvidenceCatalog  string     `json:"evidenceCatalog"` // JSON array, frozen at creation
	DataSufficiency  string     `json:"dataSufficiency"` // JSON object, frozen at creation
	StageUsage       string     `json:"stageUsage"`      // JSON object keyed by stage
	PromptTokens     int        `json:"promptTokens"`
	CompletionTokens int        `json:"completionTokens"`
	TotalTokens      int        `json:"totalTokens"`
	StartedAt        time.Time  `json:"startedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// DebateResponse is one persisted debate assessment (advocate or examiner).
type DebateResponse struct {
	ID         int64     `json:"id"`
	RunID      int64     `json:"runId"`
	AgentRole  string    `json:"agentRole"`
	Stance     string    `json:"stance"`
	Payload    string    `json:"payload"` // JSON object, the validated assessment
	Confidence string    `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	AgentRoleAdvocate = "advocate"
	AgentRoleExaminer = "examiner"
)

// ArbiterDecision is the persisted arbiter output, one per run.
type ArbiterDecision struct {
	ID         int64     `json:"id"`
	RunID      int64     `json:"runId"`
	Payload    string    `json:"payload"` // JSON object
	Confidence string    `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EmployeePrompt is one theme-tagged conversation prompt for the employee.
type EmployeePrompt struct {
	ID           int64     `json:"id"`
	RunID        int64     `json:"runId"`
	Theme        string    `json:"theme"`
	Message      string    `json:"message"`
	EvidenceRefs string    `json:"evidenceRefs"` // JSON array of catalog ids
	CreatedAt    time.Time `json:"createdAt"`
}

// ManagerFeedback is the persisted manager coaching payload, one per run.
type ManagerFeedback struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"runId"`
	Payload   string    `json:"payload"` // JSON object
	CreatedAt time.Time `json:"createdAt"`
}

// ScheduledJobRecord tracks persisted scheduler job state.
type ScheduledJobRecord struct {
	ID         int64     `json:"id"`
	JobName    string    `json:"jobName"`
	LastStatus string    `json:"lastStatus"`
	LastRunAt  time.Time `json:"lastRunAt"`
	RunCount   int       `json:"runCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

const Schema = `
CREATE TABLE IF NOT EXISTS employees (
	email TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'software_engineer',
	manager_email TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_employees_manager ON employees(manager_email);

CREATE TABLE IF NOT EXISTS analysis_context (
	employee_email TEXT PRIMARY KEY,
	manager_email TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'software_engineer',
	bonus_eligible BOOLEAN NOT NULL DEFAULT 0,
	promotion_eligible BOOLEAN NOT NULL DEFAULT 0,
	notes TEXT DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS weekly_activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	employee_email TEXT NOT NULL,
	source TEXT NOT NULL,
	week_start DATETIME NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(employee_email, source, week_start)
);
CREATE INDEX IF NOT EXISTS idx_weekly_activity_employee ON weekly_activity(employee_email, week_start);

CREATE TABLE IF NOT EXISTS monthly_synthesis (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	employee_email TEXT NOT NULL,
	month_key TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	risks TEXT NOT NULL DEFAULT '[]',
	opportunities TEXT NOT NULL DEFAULT '[]',
	insights TEXT NOT NULL DEFAULT '[]',
	signals TEXT NOT NULL DEFAULT '[]',
	data_sufficiency TEXT NOT NULL DEFAULT '{}',
	confidence TEXT NOT NULL DEFAULT 'low',
	model_name TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_monthly_synthesis_key ON monthly_synthesis(employee_email, month_key);

CREATE TABLE IF NOT EXISTS quarterly_synthesis (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	employee_email TEXT NOT NULL,
	quarter TEXT NOT NULL,
	trajectory TEXT NOT NULL DEFAULT '',
	strengths TEXT NOT NULL DEFAULT '[]',
	concerns TEXT NOT NULL DEFAULT '[]',
	assessments TEXT NOT NULL DEFAULT '[]',
	actions TEXT NOT NULL DEFAULT '[]',
	evidence_snapshots TEXT NOT NULL DEFAULT '[]',
	data_sufficiency TEXT NOT NULL DEFAULT '{}',
	confidence TEXT NOT NULL DEFAULT 'low',
	model_name TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_quarterly_synthesis_key ON quarterly_synthesis(employee_email, quarter);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_uid TEXT UNIQUE NOT NULL,
	employee_email TEXT NOT NULL,
	manager_email TEXT NOT NULL DEFAULT '',
	quarter TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'running',
	failed_stage TEXT,
	error_code TEXT DEFAULT '',
	failure_reason TEXT DEFAULT '',
	request_payload TEXT NOT NULL DEFAULT '{}',
	evidence_catalog TEXT NOT NULL DEFAULT '[]',
	data_sufficiency TEXT NOT NULL DEFAULT '{}',
	stage_usage TEXT NOT NULL DEFAULT '{}',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_analysis_runs_running ON analysis_runs(employee_email, quarter) WHERE status = 'running';
CREATE INDEX IF NOT EXISTS idx_analysis_runs_employee ON analysis_runs(employee_email, quarter);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_status ON analysis_runs(status);

CREATE TABLE IF NOT EXISTS debate_responses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL,
	agent_role TEXT NOT NULL,
	stance TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	confidence TEXT NOT NULL DEFAULT 'low',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(run_id, agent_role)
);

CREATE TABLE IF NOT EXISTS arbiter_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER UNIQUE NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	confidence TEXT NOT NULL DEFAULT 'low',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS employee_prompts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL,
	theme TEXT NOT NULL,
	message TEXT NOT NULL,
	evidence_refs TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_employee_prompts_run ON employee_prompts(run_id);

CREATE TABLE IF NOT EXISTS manager_feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER UNIQUE NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_name TEXT UNIQUE NOT NULL,
	last_status TEXT DEFAULT '',
	last_run_at DATETIME,
	run_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
