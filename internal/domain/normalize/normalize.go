// Package normalize defines the value objects produced by text normalization.
package normalize

// PlaceholderType tags a literal value detected during normalization.
type PlaceholderType string

// Placeholder types, in extraction priority order.
const (
	URL    PlaceholderType = "URL"
	Email  PlaceholderType = "EMAIL"
	Amount PlaceholderType = "AMOUNT"
	Date   PlaceholderType = "DATE"
	Number PlaceholderType = "NUMBER"
)

// Tag returns the bracketed form substituted into normalized text, e.g. "<URL>".
func (t PlaceholderType) Tag() string { return "<" + string(t) + ">" }

// Placeholder records one extracted literal value.
type Placeholder struct {
	Type     PlaceholderType
	Value    string
	Position int // byte offset in the source text
}

// Result is the immutable outcome of one normalization call.
//
// ActionVerb and PrimaryObject are empty strings when extraction failed;
// callers branch on presence, so the empty string is the "absent" marker
// and is never a legal extracted value.
type Result struct {
	NormalizedText  string
	Placeholders    []Placeholder
	ActionVerb      string
	ActionCanonical string
	PrimaryObject   string
	DomainTerms     []string
	CountPhrases    []string
	Version         string
}

// Empty reports whether normalization produced no usable text.
func (r Result) Empty() bool { return r.NormalizedText == "" }
