package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/insight"
)

// BuildCatalog flattens one quarterly synthesis and its monthly syntheses
// into the numbered evidence catalog the analysis stages cite from.
// Quarterly fields come first, then each month in ascending key order.
// Blank fragments are skipped; list indices in field paths keep their
// original positions, so a skipped blank never renumbers its neighbors.
func BuildCatalog(q *insight.QuarterlySynthesis, months []insight.MonthlySynthesis) []CatalogEntry {
	var entries []CatalogEntry
	add := func(sourceType, sourceKey, field, summary string) {
		summary = strings.TrimSpace(summary)
		if summary == "" {
			return
		}
		entries = append(entries, CatalogEntry{
			ID:         fmt.Sprintf("E%d", len(entries)+1),
			SourceType: sourceType,
			SourceKey:  sourceKey,
			Field:      field,
			Summary:    summary,
		})
	}

	add(SourceQuarterlySynthesis, q.Quarter, "trajectory", q.Trajectory)
	for i, s := range q.Strengths {
		add(SourceQuarterlySynthesis, q.Quarter, fmt.Sprintf("strengths[%d]", i), s)
	}
	for i, c := range q.Concerns {
		add(SourceQuarterlySynthesis, q.Quarter, fmt.Sprintf("concerns[%d]", i), c)
	}
	for _, a := range q.Assessments {
		add(SourceQuarterlySynthesis, q.Quarter, "assessments."+a.Dimension, a.Assessment)
	}
	for i, a := range q.Actions {
		add(SourceQuarterlySynthesis, q.Quarter, fmt.Sprintf("actions[%d]", i), a)
	}

	sorted := make([]insight.MonthlySynthesis, len(months))
	copy(sorted, months)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MonthKey < sorted[j].MonthKey })
	for _, m := range sorted {
		add(SourceMonthlySynthesis, m.MonthKey, "summary", m.Summary)
		for i, r := range m.Risks {
			add(SourceMonthlySynthesis, m.MonthKey, fmt.Sprintf("risks[%d]", i), r)
		}
		for i, o := range m.Opportunities {
			add(SourceMonthlySynthesis, m.MonthKey, fmt.Sprintf("opportunities[%d]", i), o)
		}
	}
	return entries
}

func catalogIDSet(entries []CatalogEntry) map[string]bool {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	return ids
}

// missingRefs returns the cited ids that do not resolve in the catalog,
// deduplicated, in first-seen order.
func missingRefs(cited []string, ids map[string]bool) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, ref := range cited {
		if ids[ref] || seen[ref] {
			continue
		}
		seen[ref] = true
		missing = append(missing, ref)
	}
	return missing
}
