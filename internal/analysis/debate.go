package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/insight"
	"github.com/PulseLoom/PulseLoom/internal/provider"
)

// runDebate executes the debate stage: one generator call returns both
// assessments. After strict decoding the stances are overwritten with the
// fixed values, every cited ref is checked against the catalog, peer
// comparisons are neutralized, and confidence is clamped to sufficiency.
func (o *Orchestrator) runDebate(ctx context.Context, ev *runEvidence) (*DebateOutput, provider.Usage, error) {
	text, usage, err := o.generate(ctx, buildDebatePrompt(ev))
	if err != nil {
		return nil, usage, &Error{Stage: StageDebate, Code: CodeDebateGenerationFailed, Message: "debate generation failed", Err: err}
	}

	var out DebateOutput
	if derr := decodeStrict(StageDebate, text, &out); derr != nil {
		return nil, usage, derr
	}
	if verr := validateDebate(&out); verr != nil {
		return nil, usage, &Error{Stage: StageDebate, Code: CodeInvalidSchema, Message: verr.Error(), Err: verr}
	}

	// Stances are never trusted from the generator.
	out.Advocate.Stance = StanceSupportReward
	out.Examiner.Stance = StanceCautionReward

	var cited []string
	for _, a := range []*DebateAssessment{&out.Advocate, &out.Examiner} {
		for _, arg := range a.Arguments {
			cited = append(cited, arg.EvidenceRefs...)
		}
	}
	if missing := missingRefs(cited, ev.catalogIDs); len(missing) > 0 {
		return nil, usage, &Error{
			Stage:   StageDebate,
			Code:    CodeInvalidEvidenceRefs,
			Message: fmt.Sprintf("unknown evidence refs: %s", strings.Join(missing, ", ")),
		}
	}

	o.sanitizeAssessment(&out.Advocate, ev)
	o.sanitizeAssessment(&out.Examiner, ev)
	return &out, usage, nil
}

func (o *Orchestrator) sanitizeAssessment(a *DebateAssessment, ev *runEvidence) {
	for i := range a.Arguments {
		a.Arguments[i].Claim, _ = o.screen.NeutralizePeerComparison(a.Arguments[i].Claim)
	}
	for i := range a.Risks {
		a.Risks[i], _ = o.screen.NeutralizePeerComparison(a.Risks[i])
	}
	a.Confidence = insight.NormalizeConfidence(a.Confidence, ev.sufficiency, true)
}
