// Package normalizer canonicalizes raw manual-test-step text into a
// comparable form: placeholders extracted, action verb and primary object
// identified, domain tokens preserved.
package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
	"github.com/kailas-cloud/stepmatch/internal/nlp"
)

// DefaultVersion tags results for reproducibility across normalizer revisions.
const DefaultVersion = "2.0"

// defaultActionCanon maps action-verb synonyms onto canonical action tokens.
// Prepending the canonical token makes similarity scoring sensitive to
// action synonyms (click/hit/tap all score like "press").
var defaultActionCanon = map[string]string{
	"press": "press", "click": "press", "hit": "press", "tap": "press", "confirm": "press",
	"enter": "enter", "type": "enter", "input": "enter", "key": "enter",
	"select": "select", "choose": "select", "pick": "select",
	"navigate": "navigate", "go": "navigate", "open": "navigate",
	"verify": "verify", "check": "verify", "assert": "verify",
}

// domainTermPatterns match tokens that must survive normalization verbatim:
// function keys, modifier keys, named and colored arrows. Matched before
// lowercasing so the exact token can be restored to uppercase at the end.
var domainTermPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bF(?:1[0-2]|[1-9])\b`),
	regexp.MustCompile(`(?i)\bENTER\b`),
	regexp.MustCompile(`(?i)\bTAB\b`),
	regexp.MustCompile(`(?i)\bSPACE\b`),
	regexp.MustCompile(`(?i)\bBACKSPACE\b`),
	regexp.MustCompile(`(?i)\bESC(?:APE)?\b`),
	regexp.MustCompile(`(?i)\bCTRL\b`),
	regexp.MustCompile(`(?i)\bALT\b`),
	regexp.MustCompile(`(?i)\bSHIFT\b`),
	regexp.MustCompile(`(?i)\bCMD\b`),
	regexp.MustCompile(`(?i)\bPAGEUP\b`),
	regexp.MustCompile(`(?i)\bPAGEDOWN\b`),
	regexp.MustCompile(`(?i)\bHOME\b`),
	regexp.MustCompile(`(?i)\bEND\b`),
	regexp.MustCompile(`(?i)\b(?:UP|DOWN|LEFT|RIGHT)\s+ARROW\b`),
	regexp.MustCompile(`(?i)\bARROW(?:UP|DOWN|LEFT|RIGHT)\b`),
	regexp.MustCompile(`(?i)\b(?:GREEN|PURPLE|RED)\s+ARROW\b`),
}

var (
	stepNumberRe  = regexp.MustCompile(`^\s*(?:\d+\s*[.):\-]|[A-Za-z]\s*[.):\-]|[Ss]tep\s*\d+\s*[.):\-]?)\s*`)
	countPhraseRe = regexp.MustCompile(`(?i)\b\d+\s*(?:times|x)\b`)
	bulletRe      = regexp.MustCompile(`[•\-*]\s*`)
	noiseCharRe   = regexp.MustCompile(`[^\w\s<>.,;:!?()'\-]`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
)

// Config holds the immutable tables a Normalizer instance is built from.
// Multiple normalizer configurations (e.g. versions) can coexist; nothing
// here is process-wide state.
type Config struct {
	Version     string            // result tag, defaults to DefaultVersion
	Lemmatize   bool              // verb/noun lemmas, disabled by default
	ActionCanon map[string]string // nil selects the default table
	Tagger      nlp.Tagger        // nil selects the regex fallback
}

// Normalizer canonicalizes test-step text. Safe for concurrent use: all
// state is immutable after construction.
type Normalizer struct {
	version     string
	lemmatize   bool
	actionCanon map[string]string
	tagger      nlp.Tagger
}

// New creates a Normalizer from cfg, filling defaults for zero fields.
func New(cfg Config) *Normalizer {
	n := &Normalizer{
		version:     cfg.Version,
		lemmatize:   cfg.Lemmatize,
		actionCanon: cfg.ActionCanon,
		tagger:      cfg.Tagger,
	}
	if n.version == "" {
		n.version = DefaultVersion
	}
	if n.actionCanon == nil {
		n.actionCanon = defaultActionCanon
	}
	if n.tagger == nil {
		n.tagger = nlp.NewRegexTagger()
	}
	return n
}

// Normalize canonicalizes text. Empty or whitespace-only input yields an
// all-empty result; malformed text degrades to best-effort extraction,
// never an error.
func (n *Normalizer) Normalize(text string) domnorm.Result {
	if strings.TrimSpace(text) == "" {
		return domnorm.Result{Version: n.version}
	}

	// Unicode canonicalization first so the regexes below are
	// encoding-independent.
	s := norm.NFKC.String(text)

	// Step numbering must go before placeholder extraction, otherwise
	// "2." at a line start would be claimed as a NUMBER.
	s = stripStepNumbers(s)

	s, placeholders := extractPlaceholders(s)

	// Domain terms and count phrases are captured before lowercasing so
	// the original casing can be restored at the end.
	domainTerms := extractDomainTerms(s)
	countPhrases := extractCountPhrases(s)

	s = strings.ToLower(s)
	s = cleanText(s)

	if n.lemmatize {
		s = n.lemmatizeText(s)
	}

	actionVerb, primaryObject := n.extractActionAndObject(s)
	actionCanonical := n.canonicalize(actionVerb)

	// Re-inject the canonical action token for reranker visibility.
	if actionCanonical != "" && !strings.Contains(s, actionCanonical) {
		s = strings.TrimSpace(actionCanonical + " " + s)
	}

	for _, term := range domainTerms {
		s = restoreTokenCase(s, term)
	}

	return domnorm.Result{
		NormalizedText:  s,
		Placeholders:    placeholders,
		ActionVerb:      actionVerb,
		ActionCanonical: actionCanonical,
		PrimaryObject:   primaryObject,
		DomainTerms:     domainTerms,
		CountPhrases:    countPhrases,
		Version:         n.version,
	}
}

// Version returns the normalization version tag.
func (n *Normalizer) Version() string { return n.version }

func (n *Normalizer) canonicalize(verb string) string {
	if verb == "" {
		return ""
	}
	if canon, ok := n.actionCanon[verb]; ok {
		return canon
	}
	return verb
}

// extractActionAndObject finds the first verb in the token stream and the
// first noun after it, skipping stop words and placeholder tags.
func (n *Normalizer) extractActionAndObject(text string) (verb, object string) {
	tokens, err := n.tagger.Tag(text)
	if err != nil {
		return "", ""
	}

	for i, tok := range tokens {
		if tok.Tag != nlp.Verb {
			continue
		}
		verb = strings.ToLower(tok.Text)
		for _, next := range tokens[i+1:] {
			if next.Tag != nlp.Noun {
				continue
			}
			if strings.HasPrefix(next.Text, "<") || nlp.IsStopWord(next.Text) {
				continue
			}
			object = strings.ToLower(next.Text)
			break
		}
		break
	}
	return verb, object
}

func (n *Normalizer) lemmatizeText(text string) string {
	tokens, err := n.tagger.Tag(text)
	if err != nil {
		return text
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Tag == nlp.Verb || tok.Tag == nlp.Noun {
			out = append(out, nlp.Lemma(tok.Text))
		} else {
			out = append(out, tok.Text)
		}
	}
	return strings.Join(out, " ")
}

// stripStepNumbers removes list/step markers ("1.", "a)", "Step 2:") at the
// start of every line.
func stripStepNumbers(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = stepNumberRe.ReplaceAllString(line, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractDomainTerms(text string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, re := range domainTermPatterns {
		for _, m := range re.FindAllString(text, -1) {
			term := strings.ToUpper(strings.TrimSpace(m))
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	return terms
}

func extractCountPhrases(text string) []string {
	return countPhraseRe.FindAllString(text, -1)
}

// cleanText strips bullets and punctuation noise while preserving
// placeholder tags and minimal sentence punctuation, then collapses
// whitespace.
func cleanText(text string) string {
	text = bulletRe.ReplaceAllString(text, " ")
	text = noiseCharRe.ReplaceAllString(text, " ")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = strings.Trim(text, ".,;:!? ")
	return strings.TrimSpace(text)
}

// restoreTokenCase uppercases every occurrence of term in text for
// reranker visibility.
func restoreTokenCase(text, term string) string {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.ToLower(term)) + `\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, strings.ToUpper(term))
}
