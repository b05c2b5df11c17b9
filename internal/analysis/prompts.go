package analysis

import (
	"encoding/json"
	"fmt"
)

// analysisSystemPrompt is the shared constraints block for every stage.
const analysisSystemPrompt = `You are part of a manager-support panel reviewing one employee's quarter. You work only from the numbered evidence catalog you are given.

Rules:
- Ground every claim in catalog entries and cite their ids. Never invent facts.
- No numeric scores, rankings, or grades. Narrative text only.
- You advise. Final HR decisions are made by humans, never by you.
- Never compare the employee to peers, teammates, or team averages.
- Lower your confidence when data sufficiency is partial or insufficient.
- Respond with a single JSON object. No prose before or after it.`

const debatePromptTmpl = `Assess the employee's quarter twice from the evidence below: once as an advocate arguing the recorded activity supports reward, once as an examiner arguing for caution. Return both assessments in one response.

%s
Data sufficiency:
%s

Evidence catalog (cite entries by id):
%s

Respond with JSON matching exactly:
{
  "advocateAssessment": {
    "stance": "support_reward",
    "arguments": [
      {"claim": "<one or two sentences>", "evidenceRefs": ["E1"]}
    ],
    "risks": ["<short risk statement>"],
    "bonusRecommendation": "approve|defer|deny",
    "promotionRecommendation": "approve|defer|deny",
    "confidence": "low|medium|high"
  },
  "examinerAssessment": {
    "stance": "caution_reward",
    "arguments": [
      {"claim": "<one or two sentences>", "evidenceRefs": ["E2"]}
    ],
    "risks": ["<short risk statement>"],
    "bonusRecommendation": "approve|defer|deny",
    "promotionRecommendation": "approve|defer|deny",
    "confidence": "low|medium|high"
  }
}

Every argument needs at least one evidenceRefs entry naming a catalog id. Risks may be an empty list when the evidence shows none.`

const arbiterPromptTmpl = `Reconcile the advocate and examiner assessments below into one decision, weighing the evidence catalog and the eligibility flags.

%s
Data sufficiency:
%s

Evidence catalog (cite entries by id):
%s

Eligibility:
%s

Debate assessments:
%s

Respond with JSON matching exactly:
{
  "bonusDecision": "approve|defer|deny",
  "promotionDecision": "approve|defer|deny",
  "rationale": "<one paragraph>",
  "keyStrengths": ["<short strength statement>"],
  "keyRisks": ["<short risk statement>"],
  "notesForHR": "<one paragraph>",
  "confidence": "low|medium|high"
}

Both rationale and notesForHR must embed at least one citation token of the literal form refs:[E1,E2] naming catalog ids.`

const guidancePromptTmpl = `Turn the debate and arbiter outputs below into guidance: short employee-facing pings and coaching for the manager.

%s
Data sufficiency:
%s

Evidence catalog (cite entries by id):
%s

Arbiter decision:
%s

Debate assessments:
%s

Respond with JSON matching exactly:
{
  "employeePings": [
    {
      "theme": "execution|engagement|collaboration|growth|recognition",
      "message": "<two or three sentences addressed directly to the employee>",
      "evidenceRefs": ["E1"]
    }
  ],
  "managerCoaching": {
    "summary": "<one paragraph for the manager>",
    "coachingPoints": [
      {"topic": "<short topic>", "advice": "<one or two sentences>", "evidenceRefs": ["E1"]}
    ]
  }
}

Employee messages must never mention bonuses, promotions, salary, or any other compensation topic. Manager coaching may reference compensation context where the decision requires it.`

func buildDebatePrompt(ev *runEvidence) string {
	return fmt.Sprintf(debatePromptTmpl, ev.rubric.PromptBlock(), jsonBlock(ev.sufficiency), jsonBlock(ev.catalog))
}

func buildArbiterPrompt(ev *runEvidence, debate *DebateOutput) string {
	return fmt.Sprintf(arbiterPromptTmpl,
		ev.rubric.PromptBlock(), jsonBlock(ev.sufficiency), jsonBlock(ev.catalog),
		jsonBlock(ev.eligibility), jsonBlock(debate))
}

func buildGuidancePrompt(ev *runEvidence, debate *DebateOutput, arbiter *ArbiterOutcome) string {
	return fmt.Sprintf(guidancePromptTmpl,
		ev.rubric.PromptBlock(), jsonBlock(ev.sufficiency), jsonBlock(ev.catalog),
		jsonBlock(arbiter), jsonBlock(debate))
}

func jsonBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
