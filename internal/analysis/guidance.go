package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/provider"
)

// runGuidance executes the guidance stage. Compensation language in an
// employee-facing message fails the whole stage; it is never sanitized
// away. Manager coaching is allowed to reference compensation context.
func (o *Orchestrator) runGuidance(ctx context.Context, ev *runEvidence, debate *DebateOutput, arbiter *ArbiterOutcome) (*GuidanceOutput, provider.Usage, error) {
	text, usage, err := o.generate(ctx, buildGuidancePrompt(ev, debate, arbiter))
	if err != nil {
		return nil, usage, &Error{Stage: StageGuidance, Code: CodeGuidanceGenerationFailed, Message: "guidance generation failed", Err: err}
	}

	var out GuidanceOutput
	if derr := decodeStrict(StageGuidance, text, &out); derr != nil {
		return nil, usage, derr
	}
	if verr := validateGuidance(&out); verr != nil {
		return nil, usage, &Error{Stage: StageGuidance, Code: CodeInvalidSchema, Message: verr.Error(), Err: verr}
	}

	for i, ping := range out.EmployeePings {
		if terms := o.screen.CompensationTerms(ping.Message); len(terms) > 0 {
			return nil, usage, &Error{
				Stage:   StageGuidance,
				Code:    CodeProhibitedContent,
				Message: fmt.Sprintf("employee ping %d mentions compensation (%s)", i+1, strings.Join(terms, ", ")),
			}
		}
	}

	var cited []string
	for _, ping := range out.EmployeePings {
		cited = append(cited, ping.EvidenceRefs...)
	}
	for _, cp := range out.ManagerCoaching.CoachingPoints {
		cited = append(cited, cp.EvidenceRefs...)
	}
	if missing := missingRefs(cited, ev.catalogIDs); len(missing) > 0 {
		return nil, usage, &Error{
			Stage:   StageGuidance,
			Code:    CodeInvalidEvidenceRefs,
			Message: fmt.Sprintf("unknown evidence refs: %s", strings.Join(missing, ", ")),
		}
	}

	for i := range out.EmployeePings {
		out.EmployeePings[i].Message, _ = o.screen.NeutralizePeerComparison(out.EmployeePings[i].Message)
	}
	out.ManagerCoaching.Summary, _ = o.screen.NeutralizePeerComparison(out.ManagerCoaching.Summary)
	for i := range out.ManagerCoaching.CoachingPoints {
		out.ManagerCoaching.CoachingPoints[i].Advice, _ = o.screen.NeutralizePeerComparison(out.ManagerCoaching.CoachingPoints[i].Advice)
	}
	return &out, usage, nil
}
