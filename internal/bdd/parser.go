// Package bdd parses Gherkin-style scenario text into its sections and
// individual steps. It is deliberately permissive: manual test management
// tools export loosely formatted Gherkin, so keywords match case-insensitively
// and unknown lines are skipped rather than rejected.
package bdd

import (
	"regexp"
	"strings"
)

// Scenario is one parsed BDD scenario.
type Scenario struct {
	Name       string
	GivenSteps []string
	WhenSteps  []string
	ThenSteps  []string
	FullText   string
}

// Step is one individual Given/When/Then step. And/But continuations carry
// the type of the preceding keyword.
type Step struct {
	Type  string // "Given", "When" or "Then"
	Text  string
	Index int
}

var (
	scenarioRe = regexp.MustCompile(`(?i)^Scenario(?:\s+Outline)?:\s*(.+)$`)
	featureRe  = regexp.MustCompile(`(?i)^Feature:\s*(.+)$`)
	examplesRe = regexp.MustCompile(`(?i)^Examples?:`)
	keywordRe  = regexp.MustCompile(`(?i)^(Given|When|Then)\s+(.+)$`)
	contRe     = regexp.MustCompile(`(?i)^(?:And|But)\s+(.+)$`)
)

// Parse splits scenario text into name and keyword sections. Empty input
// yields a zero Scenario.
func Parse(text string) Scenario {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Scenario{}
	}

	s := Scenario{FullText: trimmed}
	for _, step := range Steps(text) {
		switch step.Type {
		case "Given":
			s.GivenSteps = append(s.GivenSteps, step.Text)
		case "When":
			s.WhenSteps = append(s.WhenSteps, step.Text)
		case "Then":
			s.ThenSteps = append(s.ThenSteps, step.Text)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := scenarioRe.FindStringSubmatch(line); m != nil {
			s.Name = strings.TrimSpace(m[1])
			break
		}
		if m := featureRe.FindStringSubmatch(line); m != nil && s.Name == "" {
			// Feature name is a weaker fallback; keep looking for a
			// Scenario line.
			s.Name = strings.TrimSpace(m[1])
		}
	}
	return s
}

// Steps extracts the individual steps in document order. Parsing stops at an
// Examples table; comment lines and outline headers are skipped. An And/But
// line before any keyword has no type and is dropped.
func Steps(text string) []Step {
	var steps []Step
	currentType := ""
	index := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if scenarioRe.MatchString(line) || featureRe.MatchString(line) {
			continue
		}
		if examplesRe.MatchString(line) {
			break
		}

		if m := keywordRe.FindStringSubmatch(line); m != nil {
			// Normalize keyword casing so downstream grouping is stable.
			currentType = canonicalKeyword(m[1])
			steps = append(steps, Step{Type: currentType, Text: strings.TrimSpace(m[2]), Index: index})
			index++
			continue
		}
		if m := contRe.FindStringSubmatch(line); m != nil && currentType != "" {
			steps = append(steps, Step{Type: currentType, Text: strings.TrimSpace(m[1]), Index: index})
			index++
		}
	}
	return steps
}

func canonicalKeyword(kw string) string {
	switch strings.ToLower(kw) {
	case "given":
		return "Given"
	case "when":
		return "When"
	default:
		return "Then"
	}
}

// SearchableText assembles the text used for whole-scenario embedding:
// the name and every step, falling back to the raw text when nothing parsed.
func (s Scenario) SearchableText() string {
	var parts []string
	if s.Name != "" {
		parts = append(parts, s.Name)
	}
	parts = append(parts, s.GivenSteps...)
	parts = append(parts, s.WhenSteps...)
	parts = append(parts, s.ThenSteps...)
	if len(parts) == 0 {
		return s.FullText
	}
	return strings.Join(parts, " ")
}
