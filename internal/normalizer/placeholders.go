package normalizer

import (
	"regexp"
	"sort"
	"strings"

	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
)

// Placeholder patterns. Extraction runs in fixed priority order so
// higher-specificity patterns claim their spans before the generic number
// matcher sees them: URL before EMAIL (URLs may contain '@'), AMOUNT and
// DATE before NUMBER.
var (
	urlRe   = regexp.MustCompile(`(?i)https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	amountRes = []*regexp.Regexp{
		regexp.MustCompile(`[$£€]\s*\d+(?:\.\d{1,2})?`),
		regexp.MustCompile(`(?i)\d+(?:\.\d{1,2})?\s*(?:USD|EUR|GBP|dollars?|euros?|pounds?)\b`),
	}

	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}\b`),
		regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`),
	}

	numberRe       = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	quantityTailRe = regexp.MustCompile(`(?i)^\s*(?:times|x)\b`)
	functionKeyRe  = regexp.MustCompile(`(?i)^F\d{1,2}$`)
)

type span struct {
	start, end int
	ph         domnorm.Placeholder
}

// extractPlaceholders finds typed literal values in text, rewrites each as
// its bracketed tag, and returns the placeholders ordered left to right.
// Positions are byte offsets into the input.
func extractPlaceholders(text string) (string, []domnorm.Placeholder) {
	var spans []span

	claim := func(typ domnorm.PlaceholderType, loc []int) {
		if overlaps(spans, loc[0], loc[1]) {
			return
		}
		spans = append(spans, span{
			start: loc[0],
			end:   loc[1],
			ph: domnorm.Placeholder{
				Type:     typ,
				Value:    text[loc[0]:loc[1]],
				Position: loc[0],
			},
		})
	}

	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		claim(domnorm.URL, loc)
	}
	for _, loc := range emailRe.FindAllStringIndex(text, -1) {
		claim(domnorm.Email, loc)
	}
	for _, re := range amountRes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			claim(domnorm.Amount, loc)
		}
	}
	for _, re := range dateRes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			claim(domnorm.Date, loc)
		}
	}
	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		if skipNumber(text, loc[0], loc[1]) {
			continue
		}
		claim(domnorm.Number, loc)
	}

	if len(spans) == 0 {
		return text, nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	placeholders := make([]domnorm.Placeholder, 0, len(spans))
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp.start])
		b.WriteString(sp.ph.Type.Tag())
		prev = sp.end
		placeholders = append(placeholders, sp.ph)
	}
	b.WriteString(text[prev:])

	return b.String(), placeholders
}

// skipNumber rejects standalone-number matches that belong to quantity
// expressions ("4 times", "4x") or function-key tokens ("F8").
func skipNumber(text string, start, end int) bool {
	if quantityTailRe.MatchString(text[end:]) {
		return true
	}
	if start > 0 && functionKeyRe.MatchString(text[start-1:end]) {
		return true
	}
	return false
}

func overlaps(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && end > sp.start {
			return true
		}
	}
	return false
}
