package nlp

import (
	"fmt"
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// ProseTagger is the syntactic implementation of Tagger, backed by the
// prose POS tagger (Penn Treebank tag set).
type ProseTagger struct{}

// NewProseTagger creates the syntactic tagger.
func NewProseTagger() *ProseTagger { return &ProseTagger{} }

// Tag implements Tagger. Verbs cover VB/VBD/VBG/VBN/VBP/VBZ, nouns cover
// NN/NNS/NNP/NNPS.
func (t *ProseTagger) Tag(text string) ([]Token, error) {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, fmt.Errorf("parse text: %w", err)
	}

	proseTokens := doc.Tokens()
	tokens := make([]Token, 0, len(proseTokens))
	for _, tok := range proseTokens {
		tag := Other
		switch {
		case strings.HasPrefix(tok.Tag, "VB"):
			tag = Verb
		case strings.HasPrefix(tok.Tag, "NN"):
			tag = Noun
		}
		tokens = append(tokens, Token{Text: tok.Text, Tag: tag})
	}
	return tokens, nil
}

// Lemma reduces a verb or noun to a crude base form. Prose does not ship a
// lemmatizer, so this applies standard English suffix stripping; it is only
// used when lemmatization is explicitly enabled.
func Lemma(word string) string {
	w := strings.ToLower(word)
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && strings.HasSuffix(w, "ing"):
		stem := w[:len(w)-3]
		if len(stem) > 2 && stem[len(stem)-1] == stem[len(stem)-2] {
			stem = stem[:len(stem)-1]
		}
		return stem
	case len(w) > 3 && strings.HasSuffix(w, "ed"):
		stem := w[:len(w)-2]
		if len(stem) > 2 && stem[len(stem)-1] == stem[len(stem)-2] {
			stem = stem[:len(stem)-1]
		}
		return stem
	case len(w) > 3 && strings.HasSuffix(w, "es"):
		return w[:len(w)-2]
	case len(w) > 2 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
