// Package nlp provides the part-of-speech capability the normalizer and
// chunker depend on. Two implementations exist: a syntactic tagger backed
// by the prose library and a regex/word-list fallback. Consumers hold only
// the Tagger interface and are selected at construction time.
package nlp

import "strings"

// Tag is the coarse part-of-speech class the matching engine cares about.
type Tag int

const (
	// Other covers everything that is neither a verb nor a noun.
	Other Tag = iota
	// Verb marks an action token.
	Verb
	// Noun marks an object token.
	Noun
)

// Token is one word of the input with its assigned tag.
type Token struct {
	Text string
	Tag  Tag
}

// Tagger assigns coarse part-of-speech tags to a text. Implementations are
// best-effort: an error means "no tags available", never a fatal condition.
type Tagger interface {
	Tag(text string) ([]Token, error)
}

// actionVerbs is the word list the regex tagger recognizes as verbs. It is
// tuned to the vocabulary of manual test steps, not general English.
var actionVerbs = map[string]struct{}{
	"click": {}, "select": {}, "navigate": {}, "verify": {}, "check": {},
	"enter": {}, "input": {}, "submit": {}, "press": {}, "open": {},
	"close": {}, "create": {}, "delete": {}, "update": {}, "grab": {},
	"mark": {}, "strike": {}, "scan": {}, "switch": {}, "add": {},
	"remove": {}, "void": {}, "accept": {}, "locate": {}, "use": {},
	"finish": {}, "payout": {}, "log": {}, "login": {}, "type": {},
	"hit": {}, "tap": {}, "confirm": {}, "choose": {}, "pick": {},
	"go": {}, "key": {}, "assert": {},
}

// stopWords are skipped when looking for the primary object after a verb.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "on": {}, "in": {},
	"at": {}, "for": {}, "with": {}, "and": {}, "or": {}, "then": {},
	"of": {}, "is": {}, "it": {}, "this": {}, "that": {},
}

// IsActionVerb reports whether the lowercased word is a recognized action verb.
func IsActionVerb(word string) bool {
	_, ok := actionVerbs[strings.ToLower(word)]
	return ok
}

// IsStopWord reports whether the lowercased word is a stop word.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// RegexTagger is the word-list fallback used when no syntactic parser is
// available. It tags known action verbs as Verb, stop words and placeholder
// tags as Other, and everything else as Noun.
type RegexTagger struct{}

// NewRegexTagger creates the fallback tagger.
func NewRegexTagger() *RegexTagger { return &RegexTagger{} }

// Tag implements Tagger.
func (t *RegexTagger) Tag(text string) ([]Token, error) {
	words := strings.Fields(text)
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, Token{Text: w, Tag: classify(w)})
	}
	return tokens, nil
}

func classify(word string) Tag {
	if strings.HasPrefix(word, "<") { // placeholder tag
		return Other
	}
	lower := strings.ToLower(strings.Trim(word, ".,;:!?()'"))
	if lower == "" {
		return Other
	}
	if _, ok := actionVerbs[lower]; ok {
		return Verb
	}
	if _, ok := stopWords[lower]; ok {
		return Other
	}
	return Noun
}
