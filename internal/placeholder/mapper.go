// Package placeholder aligns literal values found in a query with the
// placeholder slots of a matched step template. It reports which slots can
// be filled from the query and how completely the template is satisfied.
package placeholder

import (
	"regexp"
	"strings"

	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
)

// Match is the outcome of mapping one query onto one template.
type Match struct {
	// Values maps placeholder type name ("URL", "NUMBER", ...) to the first
	// query value of that type.
	Values map[string]string
	// Score is filled slots over total slots; 1 when the template has none.
	Score float64
	// Missing lists slot types present in the template with no query value,
	// in template order.
	Missing []string
}

var (
	slotRe   = regexp.MustCompile(`<(\w+)>`)
	quotedRe = regexp.MustCompile(`["']([^"']+)["']`)
	targetRe = regexp.MustCompile(`(?:[Cc]lick|[Ss]elect|[Pp]ress|[Tt]ap)\s+([A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)*)`)
)

// Map fills the placeholder slots of templateNormalized from the query.
// queryText is the raw text (quoted UI targets are extracted from it) and
// placeholders are the typed literals the normalizer already pulled out.
func Map(queryText string, placeholders []domnorm.Placeholder, templateNormalized string) Match {
	slots := templateSlots(templateNormalized)
	if len(slots) == 0 {
		return Match{Values: map[string]string{}, Score: 1}
	}

	values := queryValues(queryText, placeholders)

	m := Match{Values: make(map[string]string, len(slots))}
	for _, slot := range slots {
		if v, ok := values[slot]; ok {
			m.Values[slot] = v
			continue
		}
		m.Missing = append(m.Missing, slot)
	}
	m.Score = float64(len(m.Values)) / float64(len(slots))
	return m
}

// templateSlots returns the distinct slot types in template order.
func templateSlots(template string) []string {
	var slots []string
	seen := map[string]struct{}{}
	for _, m := range slotRe.FindAllStringSubmatch(template, -1) {
		slot := strings.ToUpper(m[1])
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		slots = append(slots, slot)
	}
	return slots
}

// queryValues indexes the first query value per slot type. Typed literals
// come from normalization; UI targets (quoted strings or capitalized words
// after an interaction verb) fill BUTTON slots.
func queryValues(queryText string, placeholders []domnorm.Placeholder) map[string]string {
	values := map[string]string{}
	for _, p := range placeholders {
		typ := string(p.Type)
		if _, ok := values[typ]; !ok {
			values[typ] = p.Value
		}
	}

	if _, ok := values["BUTTON"]; !ok {
		if m := quotedRe.FindStringSubmatch(queryText); m != nil {
			values["BUTTON"] = m[1]
		} else if m := targetRe.FindStringSubmatch(queryText); m != nil {
			values["BUTTON"] = m[1]
		}
	}
	return values
}
