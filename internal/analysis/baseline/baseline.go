// Package baseline provides the embedded KPI rubrics the analysis stages
// evaluate evidence against. Rubrics are keyed by role; unknown roles fall
// back to the software_engineer rubric.
package baseline

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed baselines.yaml
var rubricsYAML []byte

// DefaultRole is the rubric used when an employee's role has no entry.
const DefaultRole = "software_engineer"

// Dimension is one KPI axis with its expectation bands.
type Dimension struct {
	Name    string `yaml:"name"`
	Above   string `yaml:"above"`
	Managed string `yaml:"managed"`
	Below   string `yaml:"below"`
}

// Rubric is the full KPI baseline for one role. Dimensions keep the order
// they appear in the YAML so prompt rendering is deterministic.
type Rubric struct {
	Display    string      `yaml:"display"`
	Dimensions []Dimension `yaml:"dimensions"`
}

type rubricFile struct {
	Roles map[string]Rubric `yaml:"roles"`
}

var rubricsByRole = mustParse(rubricsYAML)

func mustParse(data []byte) map[string]Rubric {
	var f rubricFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		panic(fmt.Sprintf("baseline: parse embedded baselines.yaml: %v", err))
	}
	if _, ok := f.Roles[DefaultRole]; !ok {
		panic(fmt.Sprintf("baseline: embedded baselines.yaml missing %s rubric", DefaultRole))
	}
	return f.Roles
}

// ForRole returns the rubric for a role, falling back to DefaultRole when
// the role is unknown or empty.
func ForRole(role string) Rubric {
	if r, ok := rubricsByRole[strings.TrimSpace(strings.ToLower(role))]; ok {
		return r
	}
	return rubricsByRole[DefaultRole]
}

// Roles returns the known role keys, sorted.
func Roles() []string {
	names := make([]string, 0, len(rubricsByRole))
	for name := range rubricsByRole {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PromptBlock renders the rubric as plain text for inclusion in a prompt.
func (r Rubric) PromptBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "KPI baseline for %s:\n", r.Display)
	for _, d := range r.Dimensions {
		fmt.Fprintf(&b, "- %s\n", d.Name)
		fmt.Fprintf(&b, "  above expectation: %s\n", d.Above)
		fmt.Fprintf(&b, "  managed expectation: %s\n", d.Managed)
		fmt.Fprintf(&b, "  below expectation: %s\n", d.Below)
	}
	return b.String()
}
