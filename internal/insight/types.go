// Package insight turns weekly activity records into evidence-grounded
// monthly and quarterly narrative syntheses.
package insight

// Dimensions are the fixed buckets signals and insights are grouped by.
const (
	DimensionExecution     = "Execution"
	DimensionEngagement    = "Engagement"
	DimensionCollaboration = "Collaboration"
	DimensionGrowth        = "Growth"
)

// Dimensions returns the canonical dimension order used everywhere output
// is rendered or persisted.
func Dimensions() []string {
	return []string{DimensionExecution, DimensionEngagement, DimensionCollaboration, DimensionGrowth}
}

// ValidDimension reports whether d is one of the four fixed dimensions.
func ValidDimension(d string) bool {
	switch d {
	case DimensionExecution, DimensionEngagement, DimensionCollaboration, DimensionGrowth:
		return true
	}
	return false
}

// Confidence levels, lowest to highest.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Data sufficiency levels, lowest to highest.
const (
	SufficiencyInsufficient = "insufficient"
	SufficiencyPartial      = "partial"
	SufficiencySufficient   = "sufficient"
)

// Evidence source identifiers as cited in signal evidence.
const (
	SourceGitHubWeekly = "github_weekly_activity"
	SourceSlackWeekly  = "slack_weekly_activity"
)

// Period types for sufficiency assessment.
const (
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
)

// EvidenceRef cites one weekly activity record backing a signal.
type EvidenceRef struct {
	Source    string   `json:"source"`
	WeekStart string   `json:"weekStart"`
	Fields    []string `json:"fields"`
	Summary   string   `json:"summary"`
}

// Signal is an atomic, evidence-cited observation. Signals with no valid
// evidence are dropped during normalization, never persisted.
type Signal struct {
	ID        string        `json:"id"`
	Dimension string        `json:"dimension"`
	Statement string        `json:"statement"`
	Evidence  []EvidenceRef `json:"evidence"`
}

// SourcePresence records which ingestion sources contributed weeks.
type SourcePresence struct {
	GitHub bool `json:"github"`
	Slack  bool `json:"slack"`
}

// DataSufficiency classifies weekly coverage for a period. Downstream
// confidence never exceeds the ceiling it implies.
type DataSufficiency struct {
	Level   string         `json:"level"`
	Notes   string         `json:"notes"`
	Weeks   int            `json:"weeks"`
	Months  int            `json:"months"`
	Sources SourcePresence `json:"sources"`
}

// DimensionInsight is a short narrative insight for one dimension.
type DimensionInsight struct {
	Dimension           string   `json:"dimension"`
	Insight             string   `json:"insight"`
	SupportingSignalIDs []string `json:"supportingSignalIds"`
	Confidence          string   `json:"confidence"`
}

// DimensionAssessment is a quarterly per-dimension narrative judgment.
type DimensionAssessment struct {
	Dimension  string `json:"dimension"`
	Assessment string `json:"assessment"`
}

// EvidenceSnapshot preserves the citation trail from quarterly claims back
// to the signals they rest on.
type EvidenceSnapshot struct {
	SignalID  string        `json:"signalId"`
	Dimension string        `json:"dimension"`
	Evidence  []EvidenceRef `json:"evidence"`
}

// MonthlySynthesis is the period-level narrative for one calendar month.
// Persistence timestamps live on the store row, not here, so synthesis
// output for identical inputs is byte-identical.
type MonthlySynthesis struct {
	EmployeeEmail   string             `json:"employeeEmail"`
	MonthKey        string             `json:"monthKey"`
	Summary         string             `json:"summary"`
	Risks           []string           `json:"risks"`
	Opportunities   []string           `json:"opportunities"`
	Insights        []DimensionInsight `json:"insights"`
	Signals         []Signal           `json:"signals"`
	DataSufficiency DataSufficiency    `json:"dataSufficiency"`
	Confidence      string             `json:"confidence"`
}

// QuarterlySynthesis is the period-level narrative for one quarter.
type QuarterlySynthesis struct {
	EmployeeEmail     string                `json:"employeeEmail"`
	Quarter           string                `json:"quarter"`
	Trajectory        string                `json:"trajectory"`
	Strengths         []string              `json:"strengths"`
	Concerns          []string              `json:"concerns"`
	Assessments       []DimensionAssessment `json:"assessments"`
	Actions           []string              `json:"actions"`
	EvidenceSnapshots []EvidenceSnapshot    `json:"evidenceSnapshots"`
	DataSufficiency   DataSufficiency       `json:"dataSufficiency"`
	Confidence        string                `json:"confidence"`
}
