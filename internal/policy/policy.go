// Package policy screens generated narrative text for claims the activity
// record cannot support. Comparative language about other employees is
// replaced wholesale with a neutral statement; compensation language is
// only detected here, the caller decides how hard to fail.
package policy

import (
	"regexp"
	"strings"
)

// NeutralStatement replaces any fragment that compared the employee to
// others. The replacement is wholesale, never a partial splice.
const NeutralStatement = "This observation is limited to the employee's own recorded activity."

// Match is a single detection hit.
type Match struct {
	Name  string // pattern name, e.g. "relative_rank"
	Value string // the matched text
}

type namedRegex struct {
	name string
	re   *regexp.Regexp
}

// Comparative-language patterns. The bare word "peer" stays allowed so
// ordinary engineering phrases like "peer review" pass untouched.
var peerComparisonPatterns = map[string]string{
	"peer_comparison":      `(?i)\b(?:than|versus|vs\.?|against|among|relative\s+to|compared?\s+(?:to|with))\s+(?:most\s+|other\s+|her\s+|his\s+|their\s+)?peers\b`,
	"peer_baseline":        `(?i)\bpeer\s+(?:average|median|baseline|group|benchmark)\b`,
	"team_baseline":        `(?i)\b(?:team|org|department|company)\s+(?:average|median|baseline|norm)\b`,
	"relative_rank":        `(?i)\b(?:top|bottom)\s+\d{1,3}\s*(?:%|percent)`,
	"percentile":           `(?i)\bpercentile\b`,
	"rank_language":        `(?i)\branks?\s+(?:above|below|among|higher|lower)\b`,
	"performance_delta":    `(?i)\b(?:out|under)perform(?:s|ed|ing)?\b`,
	"colleague_comparison": `(?i)\bcompared?\s+(?:to|with)\s+(?:other|the\s+rest|colleagues?|teammates?|co-?workers?)\b`,
	"better_than_others":   `(?i)\b(?:better|worse|faster|slower|more|less)\s+than\s+(?:other|most|the\s+other)\s+(?:engineers?|developers?|employees?|teammates?|colleagues?)\b`,
}

// Compensation terms that must never appear in employee-facing prompts.
// Matched as substrings, lowercase.
var compensationTerms = []string{
	"bonus",
	"promotion",
	"promote",
	"salary",
	"salaries",
	"compensation",
	"pay band",
	"pay raise",
	"pay rise",
	"equity grant",
	"stock grant",
	"remuneration",
}

// Screen holds the compiled detectors.
type Screen struct {
	peer []namedRegex
}

// NewScreen compiles the built-in patterns.
func NewScreen() *Screen {
	s := &Screen{}
	for name, pattern := range peerComparisonPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		s.peer = append(s.peer, namedRegex{name: name, re: re})
	}
	return s
}

// PeerComparisons returns all comparative-language hits in the text.
func (s *Screen) PeerComparisons(text string) []Match {
	var matches []Match
	for _, nr := range s.peer {
		for _, m := range nr.re.FindAllString(text, -1) {
			matches = append(matches, Match{Name: nr.name, Value: m})
		}
	}
	return matches
}

// HasPeerComparison reports whether any comparative pattern matches.
func (s *Screen) HasPeerComparison(text string) bool {
	for _, nr := range s.peer {
		if nr.re.MatchString(text) {
			return true
		}
	}
	return false
}

// NeutralizePeerComparison returns NeutralStatement when the text compares
// the employee to others, and the text unchanged otherwise. The second
// return reports whether a replacement happened.
func (s *Screen) NeutralizePeerComparison(text string) (string, bool) {
	if s.HasPeerComparison(text) {
		return NeutralStatement, true
	}
	return text, false
}

// CompensationTerms returns the compensation terms present in the text,
// case-insensitive.
func (s *Screen) CompensationTerms(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range compensationTerms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}
	return found
}
