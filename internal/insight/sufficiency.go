package insight

import (
	"fmt"

	"github.com/PulseLoom/PulseLoom/internal/activity"
)

// Assess classifies weekly coverage for a period. It counts distinct
// week-start dates across both sources, distinct calendar months spanned,
// and source presence. Pure and deterministic.
func Assess(period string, github, slack []activity.WeeklyActivity) DataSufficiency {
	weekSet := make(map[string]bool)
	monthSet := make(map[string]bool)
	for _, rec := range github {
		weekSet[activity.WeekKey(rec.WeekStart)] = true
		monthSet[activity.MonthKeyOf(rec.WeekStart)] = true
	}
	for _, rec := range slack {
		weekSet[activity.WeekKey(rec.WeekStart)] = true
		monthSet[activity.MonthKeyOf(rec.WeekStart)] = true
	}

	ds := DataSufficiency{
		Weeks:  len(weekSet),
		Months: len(monthSet),
		Sources: SourcePresence{
			GitHub: len(github) > 0,
			Slack:  len(slack) > 0,
		},
	}

	if ds.Weeks == 0 {
		ds.Level = SufficiencyInsufficient
		ds.Notes = "No weekly data available"
		return ds
	}

	bothSources := ds.Sources.GitHub && ds.Sources.Slack

	switch period {
	case PeriodQuarter:
		switch {
		case ds.Months < 3:
			ds.Level = SufficiencyInsufficient
			ds.Notes = fmt.Sprintf("Activity spans %d of 3 months", ds.Months)
		case ds.Weeks < 10:
			ds.Level = SufficiencyInsufficient
			ds.Notes = fmt.Sprintf("%d of at least 10 expected weeks observed", ds.Weeks)
		case !bothSources:
			ds.Level = SufficiencyPartial
			ds.Notes = missingSourceNote(ds.Sources)
		case ds.Weeks < 12:
			ds.Level = SufficiencyPartial
			ds.Notes = fmt.Sprintf("%d of 12 expected weeks observed", ds.Weeks)
		default:
			ds.Level = SufficiencySufficient
			ds.Notes = "Full coverage across both sources"
		}
	default: // PeriodMonth
		switch {
		case ds.Weeks < 4:
			ds.Level = SufficiencyInsufficient
			ds.Notes = fmt.Sprintf("%d of at least 4 expected weeks observed", ds.Weeks)
		case !bothSources:
			ds.Level = SufficiencyPartial
			ds.Notes = missingSourceNote(ds.Sources)
		case ds.Weeks < 5:
			ds.Level = SufficiencyPartial
			ds.Notes = fmt.Sprintf("%d of 5 expected weeks observed", ds.Weeks)
		default:
			ds.Level = SufficiencySufficient
			ds.Notes = "Full coverage across both sources"
		}
	}

	return ds
}

func missingSourceNote(s SourcePresence) string {
	if !s.GitHub {
		return "GitHub activity missing"
	}
	return "Slack activity missing"
}

// sufficiencyRank orders levels insufficient < partial < sufficient.
func sufficiencyRank(level string) int {
	switch level {
	case SufficiencySufficient:
		return 2
	case SufficiencyPartial:
		return 1
	default:
		return 0
	}
}
