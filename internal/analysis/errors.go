package analysis

import (
	"fmt"
	"net/http"
)

// Stage names identify where in the pipeline a run failed. They are
// persisted on failed run rows and returned to API callers.
const (
	StageInputValidation = "input_validation"
	StageEvidenceLoad    = "evidence_load"
	StageDebate          = "debate"
	StageArbiter         = "arbiter"
	StageGuidance        = "guidance"
	StagePersistence     = "persistence"
)

// Error codes. Precondition codes are raised before any run row exists;
// stage codes are stamped onto the failed run row.
const (
	CodeInvalidRequest           = "invalid_request"
	CodeEmployeeNotFound         = "employee_not_found"
	CodeRunAlreadyInProgress     = "run_already_in_progress"
	CodeMissingAnalysisContext   = "missing_analysis_context"
	CodeMissingQuarterlyEvidence = "missing_quarterly_evidence"
	CodeMissingMonthlyEvidence   = "missing_monthly_evidence"
	CodeEmptyEvidenceCatalog     = "empty_evidence_catalog"

	CodeInvalidJSON         = "invalid_json"
	CodeInvalidSchema       = "invalid_schema"
	CodeInvalidEvidenceRefs = "invalid_evidence_refs"
	CodeInvalidCitations    = "invalid_citations"
	CodeProhibitedContent   = "prohibited_content"

	// CodeInvalidPeerComparison is reserved. Peer-comparison text is
	// replaced in place across every stage, so this code is never raised.
	CodeInvalidPeerComparison = "invalid_peer_comparison"

	CodeDebateGenerationFailed    = "debate_generation_failed"
	CodeArbiterGenerationFailed   = "arbiter_generation_failed"
	CodeGuidanceGenerationFailed  = "guidance_generation_failed"
	CodeDebatePersistenceFailed   = "debate_persistence_failed"
	CodeArbiterPersistenceFailed  = "arbiter_persistence_failed"
	CodeGuidancePersistenceFailed = "guidance_persistence_failed"
)

// Error is a run failure with the stage and code the run failed at.
// RunID and RunUID are zero when the failure happened before a row was
// written; for run_already_in_progress RunID carries the existing run's id.
type Error struct {
	Stage   string
	Code    string
	RunID   int64
	RunUID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis %s: %s: %s", e.Stage, e.Code, e.Detail())
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the human-readable part of the error, without the stage and
// code prefix already stored in their own run columns.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// HTTPStatus maps an error code to the status the HTTP gateway responds
// with. Unknown codes map to 500.
func HTTPStatus(code string) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeEmployeeNotFound:
		return http.StatusNotFound
	case CodeRunAlreadyInProgress, CodeMissingQuarterlyEvidence, CodeMissingMonthlyEvidence, CodeEmptyEvidenceCatalog:
		return http.StatusConflict
	case CodeMissingAnalysisContext:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
