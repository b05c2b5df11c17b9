package insight

import (
	"fmt"
	"strings"
)

// uncertaintyNote is appended to narrative text produced under insufficient
// coverage when the text itself carries no hedging term.
const uncertaintyNote = "Data coverage is insufficient, so this insight is uncertain."

// sanitizeEvidence drops refs missing any of the four required fields.
func sanitizeEvidence(refs []EvidenceRef) []EvidenceRef {
	out := make([]EvidenceRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Source == "" || ref.WeekStart == "" || len(ref.Fields) == 0 || ref.Summary == "" {
			continue
		}
		if ref.Source != SourceGitHubWeekly && ref.Source != SourceSlackWeekly {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// NormalizeSignals sanitizes evidence, drops signals left without evidence
// or with an unknown dimension, and reassigns ids sequentially ("S1".."Sn")
// in input order. Generator-supplied ids are discarded, which also resolves
// reused or missing ids.
func NormalizeSignals(raw []Signal) []Signal {
	out := make([]Signal, 0, len(raw))
	for _, sig := range raw {
		if !ValidDimension(sig.Dimension) || strings.TrimSpace(sig.Statement) == "" {
			continue
		}
		evidence := sanitizeEvidence(sig.Evidence)
		if len(evidence) == 0 {
			continue
		}
		sig.Evidence = evidence
		sig.ID = fmt.Sprintf("S%d", len(out)+1)
		out = append(out, sig)
	}
	return out
}

// NormalizeConfidence applies the confidence ceiling implied by data
// sufficiency. Insufficient coverage or missing grounding forces "low";
// partial coverage caps "high" at "medium"; an unrecognized claim becomes
// "medium" when grounded, "low" otherwise.
func NormalizeConfidence(claimed string, suff DataSufficiency, grounded bool) string {
	if suff.Level == SufficiencyInsufficient || !grounded {
		return ConfidenceLow
	}
	switch claimed {
	case ConfidenceLow:
		return ConfidenceLow
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceHigh:
		if suff.Level == SufficiencyPartial {
			return ConfidenceMedium
		}
		return ConfidenceHigh
	default:
		if grounded {
			return ConfidenceMedium
		}
		return ConfidenceLow
	}
}

// hedged reports whether text already acknowledges weak coverage.
func hedged(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "insufficient") ||
		strings.Contains(lower, "limited") ||
		strings.Contains(lower, "uncertain")
}

// applyUncertaintyNote appends the fixed hedging sentence to unhedged
// narrative text when coverage is insufficient.
func applyUncertaintyNote(text string, suff DataSufficiency) string {
	if suff.Level != SufficiencyInsufficient || text == "" || hedged(text) {
		return text
	}
	return text + " " + uncertaintyNote
}

// insufficientDataInsight is the fixed statement used when a dimension has
// no grounding signals.
func insufficientDataInsight(dimension string) string {
	return fmt.Sprintf("Insufficient data to assess %s for this period.", dimension)
}

// NormalizeInsights produces exactly one insight per dimension in canonical
// order. Supporting ids are filtered to the dimension's real signals
// (defaulting to all of them when the filtered set is empty but signals
// exist), confidence is clamped, and dimensions without signals get the
// fixed insufficient-data statement.
func NormalizeInsights(claimed []DimensionInsight, signals []Signal, suff DataSufficiency) []DimensionInsight {
	byDim := make(map[string][]string)
	for _, sig := range signals {
		byDim[sig.Dimension] = append(byDim[sig.Dimension], sig.ID)
	}

	claimedByDim := make(map[string]DimensionInsight)
	for _, ins := range claimed {
		if !ValidDimension(ins.Dimension) {
			continue
		}
		if _, ok := claimedByDim[ins.Dimension]; ok {
			continue
		}
		claimedByDim[ins.Dimension] = ins
	}

	out := make([]DimensionInsight, 0, 4)
	for _, dim := range Dimensions() {
		ids := byDim[dim]
		ins, ok := claimedByDim[dim]

		if len(ids) == 0 {
			out = append(out, DimensionInsight{
				Dimension:           dim,
				Insight:             insufficientDataInsight(dim),
				SupportingSignalIDs: []string{},
				Confidence:          ConfidenceLow,
			})
			continue
		}

		if !ok || strings.TrimSpace(ins.Insight) == "" {
			ins = DimensionInsight{
				Dimension:  dim,
				Insight:    insufficientDataInsight(dim),
				Confidence: ConfidenceLow,
			}
		}

		supporting := filterIDs(ins.SupportingSignalIDs, ids)
		if len(supporting) == 0 {
			supporting = append([]string{}, ids...)
		}

		out = append(out, DimensionInsight{
			Dimension:           dim,
			Insight:             applyUncertaintyNote(ins.Insight, suff),
			SupportingSignalIDs: supporting,
			Confidence:          NormalizeConfidence(ins.Confidence, suff, true),
		})
	}
	return out
}

// filterIDs keeps claimed ids that exist in valid, preserving valid's order
// and dropping duplicates.
func filterIDs(claimed, valid []string) []string {
	claimedSet := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		claimedSet[id] = true
	}
	out := make([]string, 0, len(claimed))
	for _, id := range valid {
		if claimedSet[id] {
			out = append(out, id)
		}
	}
	return out
}

// normalizeList trims entries, drops blanks, and applies the uncertainty
// note to each surviving entry.
func normalizeList(items []string, suff DataSufficiency) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, applyUncertaintyNote(item, suff))
	}
	return out
}
