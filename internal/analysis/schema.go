package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/llmjson"
)

// decodeStrict extracts the JSON object from raw generator text and decodes
// it with unknown fields rejected. Extraction failures are invalid_json;
// anything the decoder rejects after that is invalid_schema. There is no
// partial recovery: a response either decodes cleanly or the stage fails.
func decodeStrict(stage, text string, v any) *Error {
	raw, err := llmjson.Extract(text)
	if err != nil {
		return &Error{Stage: stage, Code: CodeInvalidJSON, Message: err.Error(), Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &Error{Stage: stage, Code: CodeInvalidSchema, Message: err.Error(), Err: err}
	}
	return nil
}

// Required-field checks. Missing arrays arrive as nil slices, which is how
// "field absent" is told apart from "present but empty".

func validateDebate(out *DebateOutput) error {
	if err := validateAssessment("advocateAssessment", &out.Advocate); err != nil {
		return err
	}
	return validateAssessment("examinerAssessment", &out.Examiner)
}

func validateAssessment(side string, a *DebateAssessment) error {
	if len(a.Arguments) == 0 {
		return fmt.Errorf("%s: at least one argument required", side)
	}
	for i, arg := range a.Arguments {
		if strings.TrimSpace(arg.Claim) == "" {
			return fmt.Errorf("%s: argument %d has an empty claim", side, i+1)
		}
		if len(arg.EvidenceRefs) == 0 {
			return fmt.Errorf("%s: argument %d cites no evidence", side, i+1)
		}
	}
	if a.Risks == nil {
		return fmt.Errorf("%s: risks field missing", side)
	}
	if !validRecommendation(a.BonusRecommendation) {
		return fmt.Errorf("%s: invalid bonusRecommendation %q", side, a.BonusRecommendation)
	}
	if !validRecommendation(a.PromotionRecommendation) {
		return fmt.Errorf("%s: invalid promotionRecommendation %q", side, a.PromotionRecommendation)
	}
	if strings.TrimSpace(a.Confidence) == "" {
		return fmt.Errorf("%s: confidence field missing", side)
	}
	return nil
}

func validateArbiter(out *ArbiterOutcome) error {
	if !validRecommendation(out.BonusDecision) {
		return fmt.Errorf("invalid bonusDecision %q", out.BonusDecision)
	}
	if !validRecommendation(out.PromotionDecision) {
		return fmt.Errorf("invalid promotionDecision %q", out.PromotionDecision)
	}
	if strings.TrimSpace(out.Rationale) == "" {
		return fmt.Errorf("rationale field missing")
	}
	if out.KeyStrengths == nil {
		return fmt.Errorf("keyStrengths field missing")
	}
	if out.KeyRisks == nil {
		return fmt.Errorf("keyRisks field missing")
	}
	if strings.TrimSpace(out.NotesForHR) == "" {
		return fmt.Errorf("notesForHR field missing")
	}
	if strings.TrimSpace(out.Confidence) == "" {
		return fmt.Errorf("confidence field missing")
	}
	return nil
}

func validateGuidance(out *GuidanceOutput) error {
	if len(out.EmployeePings) == 0 {
		return fmt.Errorf("employeePings: at least one ping required")
	}
	for i, ping := range out.EmployeePings {
		if !validTheme(ping.Theme) {
			return fmt.Errorf("employeePings[%d]: invalid theme %q", i, ping.Theme)
		}
		if strings.TrimSpace(ping.Message) == "" {
			return fmt.Errorf("employeePings[%d]: message field missing", i)
		}
		if ping.EvidenceRefs == nil {
			return fmt.Errorf("employeePings[%d]: evidenceRefs field missing", i)
		}
	}
	if strings.TrimSpace(out.ManagerCoaching.Summary) == "" {
		return fmt.Errorf("managerCoaching: summary field missing")
	}
	if len(out.ManagerCoaching.CoachingPoints) == 0 {
		return fmt.Errorf("managerCoaching: at least one coaching point required")
	}
	for i, cp := range out.ManagerCoaching.CoachingPoints {
		if strings.TrimSpace(cp.Topic) == "" {
			return fmt.Errorf("managerCoaching.coachingPoints[%d]: topic field missing", i)
		}
		if strings.TrimSpace(cp.Advice) == "" {
			return fmt.Errorf("managerCoaching.coachingPoints[%d]: advice field missing", i)
		}
		if cp.EvidenceRefs == nil {
			return fmt.Errorf("managerCoaching.coachingPoints[%d]: evidenceRefs field missing", i)
		}
	}
	return nil
}
