package insight

import "fmt"

// insightSystemPrompt is shared by every synthesis stage.
const insightSystemPrompt = `You are an engineering activity analyst. You study weekly GitHub and Slack activity rollups for one employee and produce structured, evidence-grounded observations.

Rules:
- Ground every statement in the provided records. Never invent facts.
- No numeric scores, rankings, or grades. Narrative text only.
- No HR decisions and no compensation language.
- Never compare the employee to peers, teammates, or team averages.
- Lower your confidence when data sufficiency is partial or insufficient.
- Respond with a single JSON object. No prose before or after it.`

const extractionPromptTmpl = `Extract atomic signals from the weekly activity below.

A signal is one specific, evidence-backed observation about the employee's work. Assign each signal to exactly one dimension: Execution, Engagement, Collaboration, or Growth.

Respond with JSON matching exactly:
{
  "signals": [
    {
      "id": "S1",
      "dimension": "Execution",
      "statement": "<one-sentence observation>",
      "evidence": [
        {
          "source": "github_weekly_activity",
          "weekStart": "YYYY-MM-DD",
          "fields": ["<metric name>"],
          "summary": "<what the cited fields show>"
        }
      ]
    }
  ]
}

Number signals sequentially from S1. Every signal needs at least one evidence entry citing a week present in the input, with source "github_weekly_activity" or "slack_weekly_activity".

Input:
%s`

const reasoningPromptTmpl = `Write one short insight per dimension from the signals below. Cite the signal ids that support each insight.

Respond with JSON matching exactly:
{
  "insights": [
    {
      "dimension": "Execution",
      "insight": "<two or three sentences>",
      "supportingSignalIds": ["S1"],
      "confidence": "low|medium|high"
    }
  ]
}

Cover each of Execution, Engagement, Collaboration, and Growth at most once. Only cite signal ids that exist in the input.

Input:
%s`

const monthlySynthesisPromptTmpl = `Reduce the dimension insights below into a monthly narrative for %s.

Respond with JSON matching exactly:
{
  "summary": "<one paragraph>",
  "risks": ["<short risk statement>"],
  "opportunities": ["<short opportunity statement>"],
  "confidence": "low|medium|high"
}

Risks and opportunities may be empty lists when the evidence shows none.

Input:
%s`

const quarterlySynthesisPromptTmpl = `Reduce the dimension insights below into a quarterly narrative for %s.

Respond with JSON matching exactly:
{
  "trajectory": "<one paragraph on the overall arc of the quarter>",
  "strengths": ["<short strength statement>"],
  "concerns": ["<short concern statement>"],
  "assessments": [
    {"dimension": "Execution", "assessment": "<one or two sentences>"}
  ],
  "actions": ["<concrete suggested action>"],
  "confidence": "low|medium|high"
}

Provide one assessment per dimension: Execution, Engagement, Collaboration, Growth.

Input:
%s`

const monthlySinglePassPromptTmpl = `Analyze the weekly activity below for the month %s in three steps inside one response: extract atomic signals, write one insight per dimension, then reduce them into a monthly narrative.

Respond with JSON matching exactly:
{
  "signals": [
    {
      "id": "S1",
      "dimension": "Execution",
      "statement": "<one-sentence observation>",
      "evidence": [
        {
          "source": "github_weekly_activity",
          "weekStart": "YYYY-MM-DD",
          "fields": ["<metric name>"],
          "summary": "<what the cited fields show>"
        }
      ]
    }
  ],
  "insights": [
    {
      "dimension": "Execution",
      "insight": "<two or three sentences>",
      "supportingSignalIds": ["S1"],
      "confidence": "low|medium|high"
    }
  ],
  "synthesis": {
    "summary": "<one paragraph>",
    "risks": ["<short risk statement>"],
    "opportunities": ["<short opportunity statement>"],
    "confidence": "low|medium|high"
  }
}

Number signals sequentially from S1. Every signal needs at least one evidence entry citing a week present in the input. Cover each dimension (Execution, Engagement, Collaboration, Growth) at most once in insights.

Input:
%s`

const quarterlySinglePassPromptTmpl = `Analyze the weekly activity below for the quarter %s in three steps inside one response: extract atomic signals, write one insight per dimension, then reduce them into a quarterly narrative.

Respond with JSON matching exactly:
{
  "signals": [
    {
      "id": "S1",
      "dimension": "Execution",
      "statement": "<one-sentence observation>",
      "evidence": [
        {
          "source": "github_weekly_activity",
          "weekStart": "YYYY-MM-DD",
          "fields": ["<metric name>"],
          "summary": "<what the cited fields show>"
        }
      ]
    }
  ],
  "insights": [
    {
      "dimension": "Execution",
      "insight": "<two or three sentences>",
      "supportingSignalIds": ["S1"],
      "confidence": "low|medium|high"
    }
  ],
  "synthesis": {
    "trajectory": "<one paragraph on the overall arc of the quarter>",
    "strengths": ["<short strength statement>"],
    "concerns": ["<short concern statement>"],
    "assessments": [
      {"dimension": "Execution", "assessment": "<one or two sentences>"}
    ],
    "actions": ["<concrete suggested action>"],
    "confidence": "low|medium|high"
  }
}

Number signals sequentially from S1. Every signal needs at least one evidence entry citing a week present in the input. Provide one assessment per dimension.

Input:
%s`

func buildExtractionPrompt(payload string) string {
	return fmt.Sprintf(extractionPromptTmpl, payload)
}

func buildReasoningPrompt(payload string) string {
	return fmt.Sprintf(reasoningPromptTmpl, payload)
}

func buildMonthlySynthesisPrompt(monthKey, payload string) string {
	return fmt.Sprintf(monthlySynthesisPromptTmpl, monthKey, payload)
}

func buildQuarterlySynthesisPrompt(quarter, payload string) string {
	return fmt.Sprintf(quarterlySynthesisPromptTmpl, quarter, payload)
}

func buildMonthlySinglePassPrompt(monthKey, payload string) string {
	return fmt.Sprintf(monthlySinglePassPromptTmpl, monthKey, payload)
}

func buildQuarterlySinglePassPrompt(quarter, payload string) string {
	return fmt.Sprintf(quarterlySinglePassPromptTmpl, quarter, payload)
}
