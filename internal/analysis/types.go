// Package analysis runs the manager-facing debate, arbiter, and guidance
// stages over the persisted synthesis evidence for one employee quarter.
// The orchestrator owns all run-row writes; stage functions transform
// validated generator output and never touch storage themselves.
package analysis

// Evidence catalog source types.
const (
	SourceQuarterlySynthesis = "quarterly_synthesis"
	SourceMonthlySynthesis   = "monthly_synthesis"
)

// Debate stances. Never taken from the generator: the orchestrator forces
// them onto the parsed assessments.
const (
	StanceSupportReward = "support_reward"
	StanceCautionReward = "caution_reward"
)

// Recommendation and decision enums shared by debate and arbiter.
const (
	RecommendationApprove = "approve"
	RecommendationDefer   = "defer"
	RecommendationDeny    = "deny"
)

// Employee ping themes.
const (
	ThemeExecution     = "execution"
	ThemeEngagement    = "engagement"
	ThemeCollaboration = "collaboration"
	ThemeGrowth        = "growth"
	ThemeRecognition   = "recognition"
)

// CatalogEntry is one citable fragment of persisted synthesis evidence.
// IDs are "E<n>", sequential within a run, never reused across runs.
type CatalogEntry struct {
	ID         string `json:"id"`
	SourceType string `json:"sourceType"`
	SourceKey  string `json:"sourceKey"`
	Field      string `json:"field"`
	Summary    string `json:"summary"`
}

// Eligibility carries the HR flags the arbiter's coercion rule enforces.
type Eligibility struct {
	Bonus     bool `json:"bonus"`
	Promotion bool `json:"promotion"`
}

// DebateArgument is one claim with the catalog refs that ground it.
type DebateArgument struct {
	Claim        string   `json:"claim"`
	EvidenceRefs []string `json:"evidenceRefs"`
}

// DebateAssessment is one side of the debate.
type DebateAssessment struct {
	Stance                  string           `json:"stance"`
	Arguments               []DebateArgument `json:"arguments"`
	Risks                   []string         `json:"risks"`
	BonusRecommendation     string           `json:"bonusRecommendation"`
	PromotionRecommendation string           `json:"promotionRecommendation"`
	Confidence              string           `json:"confidence"`
}

// DebateOutput is the single combined response of the debate stage.
type DebateOutput struct {
	Advocate DebateAssessment `json:"advocateAssessment"`
	Examiner DebateAssessment `json:"examinerAssessment"`
}

// ArbiterOutcome is the arbiter's reconciled decision.
type ArbiterOutcome struct {
	BonusDecision     string   `json:"bonusDecision"`
	PromotionDecision string   `json:"promotionDecision"`
	Rationale         string   `json:"rationale"`
	KeyStrengths      []string `json:"keyStrengths"`
	KeyRisks          []string `json:"keyRisks"`
	NotesForHR        string   `json:"notesForHR"`
	Confidence        string   `json:"confidence"`
}

// EmployeePing is one theme-tagged employee-facing message. Messages must
// never mention compensation; the guidance stage hard-fails if one does.
type EmployeePing struct {
	Theme        string   `json:"theme"`
	Message      string   `json:"message"`
	EvidenceRefs []string `json:"evidenceRefs"`
}

// CoachingPoint is one manager-facing coaching item.
type CoachingPoint struct {
	Topic        string   `json:"topic"`
	Advice       string   `json:"advice"`
	EvidenceRefs []string `json:"evidenceRefs"`
}

// ManagerCoaching is the manager-facing half of the guidance output.
type ManagerCoaching struct {
	Summary        string          `json:"summary"`
	CoachingPoints []CoachingPoint `json:"coachingPoints"`
}

// GuidanceOutput is the guidance stage response.
type GuidanceOutput struct {
	EmployeePings   []EmployeePing  `json:"employeePings"`
	ManagerCoaching ManagerCoaching `json:"managerCoaching"`
}

// RunInput is the orchestrator entry-point request.
type RunInput struct {
	EmployeeEmail string   `json:"employeeEmail"`
	Quarter       string   `json:"quarter"`
	MonthKeys     []string `json:"monthKeys"`
}

// RunOutputs bundles the three validated stage outputs of a completed run.
type RunOutputs struct {
	Debate   *DebateOutput   `json:"debate"`
	Arbiter  *ArbiterOutcome `json:"arbiter"`
	Guidance *GuidanceOutput `json:"guidance"`
}

// RunResult is returned to the caller after a run completes.
type RunResult struct {
	RunID         int64      `json:"runId"`
	RunUID        string     `json:"runUid"`
	EmployeeEmail string     `json:"employeeEmail"`
	Quarter       string     `json:"quarter"`
	Outputs       RunOutputs `json:"outputs"`
}

func validRecommendation(v string) bool {
	switch v {
	case RecommendationApprove, RecommendationDefer, RecommendationDeny:
		return true
	}
	return false
}

func validTheme(v string) bool {
	switch v {
	case ThemeExecution, ThemeEngagement, ThemeCollaboration, ThemeGrowth, ThemeRecognition:
		return true
	}
	return false
}
