package analysis

import (
	"strings"
	"testing"
)

const validDebateJSON = `{
  "advocateAssessment": {
    "stance": "support_reward",
    "arguments": [{"claim": "Merge cadence held all quarter.", "evidenceRefs": ["E1"]}],
    "risks": [],
    "bonusRecommendation": "approve",
    "promotionRecommendation": "defer",
    "confidence": "high"
  },
  "examinerAssessment": {
    "stance": "caution_reward",
    "arguments": [{"claim": "Test coverage lags behind feature work.", "evidenceRefs": ["E3"]}],
    "risks": ["Coverage debt may grow."],
    "bonusRecommendation": "defer",
    "promotionRecommendation": "deny",
    "confidence": "medium"
  }
}`

func TestDecodeStrictAcceptsWrappedJSON(t *testing.T) {
	text := "Here is the result:\n```json\n" + validDebateJSON + "\n```\nDone."
	var out DebateOutput
	if err := decodeStrict(StageDebate, text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Advocate.Arguments[0].Claim != "Merge cadence held all quarter." {
		t.Errorf("unexpected claim %q", out.Advocate.Arguments[0].Claim)
	}
	if out.Advocate.Risks == nil {
		t.Error("expected empty risks list to decode non-nil")
	}
}

func TestDecodeStrictInvalidJSON(t *testing.T) {
	var out DebateOutput
	err := decodeStrict(StageDebate, "no json here at all", &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Code != CodeInvalidJSON {
		t.Errorf("expected code %s, got %s", CodeInvalidJSON, err.Code)
	}
	if err.Stage != StageDebate {
		t.Errorf("expected stage %s, got %s", StageDebate, err.Stage)
	}
}

func TestDecodeStrictRejectsUnknownFields(t *testing.T) {
	text := strings.Replace(validDebateJSON, `"risks": [],`, `"risks": [], "score": 9,`, 1)
	var out DebateOutput
	err := decodeStrict(StageDebate, text, &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Code != CodeInvalidSchema {
		t.Errorf("expected code %s, got %s", CodeInvalidSchema, err.Code)
	}
}

func TestValidateDebate(t *testing.T) {
	base := func() DebateOutput {
		var out DebateOutput
		if err := decodeStrict(StageDebate, validDebateJSON, &out); err != nil {
			t.Fatalf("decode fixture: %v", err)
		}
		return out
	}

	out := base()
	if err := validateDebate(&out); err != nil {
		t.Fatalf("valid output rejected: %v", err)
	}

	out = base()
	out.Advocate.Arguments = nil
	if err := validateDebate(&out); err == nil || !strings.Contains(err.Error(), "at least one argument") {
		t.Errorf("expected missing-arguments error, got %v", err)
	}

	out = base()
	out.Examiner.Arguments[0].EvidenceRefs = []string{}
	if err := validateDebate(&out); err == nil || !strings.Contains(err.Error(), "cites no evidence") {
		t.Errorf("expected missing-evidence error, got %v", err)
	}

	out = base()
	out.Advocate.Risks = nil
	if err := validateDebate(&out); err == nil || !strings.Contains(err.Error(), "risks field missing") {
		t.Errorf("expected missing-risks error, got %v", err)
	}

	out = base()
	out.Advocate.BonusRecommendation = "maybe"
	if err := validateDebate(&out); err == nil || !strings.Contains(err.Error(), "bonusRecommendation") {
		t.Errorf("expected recommendation error, got %v", err)
	}

	out = base()
	out.Examiner.Confidence = ""
	if err := validateDebate(&out); err == nil || !strings.Contains(err.Error(), "confidence") {
		t.Errorf("expected confidence error, got %v", err)
	}
}

func TestValidateArbiter(t *testing.T) {
	base := func() ArbiterOutcome {
		return ArbiterOutcome{
			BonusDecision:     "approve",
			PromotionDecision: "defer",
			Rationale:         "Cadence held refs:[E1].",
			KeyStrengths:      []string{"Reliable delivery."},
			KeyRisks:          []string{},
			NotesForHR:        "Review next quarter refs:[E1].",
			Confidence:        "medium",
		}
	}

	out := base()
	if err := validateArbiter(&out); err != nil {
		t.Fatalf("valid outcome rejected: %v", err)
	}

	out = base()
	out.BonusDecision = "grant"
	if err := validateArbiter(&out); err == nil || !strings.Contains(err.Error(), "bonusDecision") {
		t.Errorf("expected decision error, got %v", err)
	}

	out = base()
	out.NotesForHR = "  "
	if err := validateArbiter(&out); err == nil || !strings.Contains(err.Error(), "notesForHR") {
		t.Errorf("expected notesForHR error, got %v", err)
	}

	out = base()
	out.KeyRisks = nil
	if err := validateArbiter(&out); err == nil || !strings.Contains(err.Error(), "keyRisks") {
		t.Errorf("expected keyRisks error, got %v", err)
	}
}

func TestValidateGuidance(t *testing.T) {
	base := func() GuidanceOutput {
		return GuidanceOutput{
			EmployeePings: []EmployeePing{
				{Theme: ThemeExecution, Message: "Your merge cadence carried the quarter.", EvidenceRefs: []string{"E1"}},
			},
			ManagerCoaching: ManagerCoaching{
				Summary: "Keep the delivery rhythm, invest in coverage.",
				CoachingPoints: []CoachingPoint{
					{Topic: "test coverage", Advice: "Schedule a coverage pairing session.", EvidenceRefs: []string{"E3"}},
				},
			},
		}
	}

	out := base()
	if err := validateGuidance(&out); err != nil {
		t.Fatalf("valid output rejected: %v", err)
	}

	out = base()
	out.EmployeePings = nil
	if err := validateGuidance(&out); err == nil || !strings.Contains(err.Error(), "at least one ping") {
		t.Errorf("expected missing-pings error, got %v", err)
	}

	out = base()
	out.EmployeePings[0].Theme = "compensation"
	if err := validateGuidance(&out); err == nil || !strings.Contains(err.Error(), "invalid theme") {
		t.Errorf("expected theme error, got %v", err)
	}

	out = base()
	out.EmployeePings[0].EvidenceRefs = nil
	if err := validateGuidance(&out); err == nil || !strings.Contains(err.Error(), "evidenceRefs") {
		t.Errorf("expected evidenceRefs error, got %v", err)
	}

	out = base()
	out.ManagerCoaching.CoachingPoints = nil
	if err := validateGuidance(&out); err == nil || !strings.Contains(err.Error(), "coaching point") {
		t.Errorf("expected coaching-points error, got %v", err)
	}
}
