package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/provider"
)

// citationPattern matches the literal token form refs:[E1,E2]. Both
// rationale and notesForHR must carry at least one.
var citationPattern = regexp.MustCompile(`refs:\[\s*(E\d+(?:\s*,\s*E\d+)*)\s*\]`)

// citationRefs returns every id cited in refs:[...] tokens in the text.
func citationRefs(text string) []string {
	var refs []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, id := range strings.Split(m[1], ",") {
			refs = append(refs, strings.TrimSpace(id))
		}
	}
	return refs
}

// runArbiter executes the arbiter stage. Citation discipline is checked
// before eligibility coercion so a response with no refs:[...] token fails
// as invalid_citations even when a coercion would also have applied.
func (o *Orchestrator) runArbiter(ctx context.Context, ev *runEvidence, debate *DebateOutput) (*ArbiterOutcome, provider.Usage, error) {
	text, usage, err := o.generate(ctx, buildArbiterPrompt(ev, debate))
	if err != nil {
		return nil, usage, &Error{Stage: StageArbiter, Code: CodeArbiterGenerationFailed, Message: "arbiter generation failed", Err: err}
	}

	var out ArbiterOutcome
	if derr := decodeStrict(StageArbiter, text, &out); derr != nil {
		return nil, usage, derr
	}
	if verr := validateArbiter(&out); verr != nil {
		return nil, usage, &Error{Stage: StageArbiter, Code: CodeInvalidSchema, Message: verr.Error(), Err: verr}
	}

	rationaleRefs := citationRefs(out.Rationale)
	notesRefs := citationRefs(out.NotesForHR)
	if len(rationaleRefs) == 0 || len(notesRefs) == 0 {
		field := "rationale"
		if len(rationaleRefs) > 0 {
			field = "notesForHR"
		}
		return nil, usage, &Error{
			Stage:   StageArbiter,
			Code:    CodeInvalidCitations,
			Message: fmt.Sprintf("%s contains no refs:[...] citation token", field),
		}
	}
	if missing := missingRefs(append(rationaleRefs, notesRefs...), ev.catalogIDs); len(missing) > 0 {
		return nil, usage, &Error{
			Stage:   StageArbiter,
			Code:    CodeInvalidEvidenceRefs,
			Message: fmt.Sprintf("unknown evidence refs: %s", strings.Join(missing, ", ")),
		}
	}

	o.coerceEligibility(&out, ev)

	for i := range out.KeyStrengths {
		out.KeyStrengths[i], _ = o.screen.NeutralizePeerComparison(out.KeyStrengths[i])
	}
	for i := range out.KeyRisks {
		out.KeyRisks[i], _ = o.screen.NeutralizePeerComparison(out.KeyRisks[i])
	}
	out.Confidence = insight.NormalizeConfidence(out.Confidence, ev.sufficiency, true)
	return &out, usage, nil
}

// coerceEligibility downgrades approve decisions the eligibility flags
// forbid. The appended note cites the first catalog entry so the override
// itself stays citation-disciplined.
func (o *Orchestrator) coerceEligibility(out *ArbiterOutcome, ev *runEvidence) {
	firstRef := ev.catalog[0].ID
	if !ev.eligibility.Bonus && out.BonusDecision == RecommendationApprove {
		out.BonusDecision = RecommendationDefer
		out.NotesForHR += fmt.Sprintf(" Bonus decision downgraded from approve to defer: the employee is not bonus-eligible this quarter refs:[%s].", firstRef)
	}
	if !ev.eligibility.Promotion && out.PromotionDecision == RecommendationApprove {
		out.PromotionDecision = RecommendationDefer
		out.NotesForHR += fmt.Sprintf(" Promotion decision downgraded from approve to defer: the employee is not promotion-eligible this quarter refs:[%s].", firstRef)
	}
}
