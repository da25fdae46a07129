// Package quotes pulls verbatim community quotes and their attribution out of
// free-form research text.
//
// Extraction runs a fixed list of tiers in priority order and keeps the result
// of the first tier that matches anything. Patterns are compiled for Go's RE2
// engine, so matching time is linear in the input length.
package quotes

import (
	"regexp"
	"strings"

	"github.com/ayush/truth-engine/internal/models"
)

const (
	maxContext = 100

	attributedContext = "Community discussion"
	proximityContext  = "Mentioned in community research"
)

// Building blocks shared by the tier patterns.
const (
	source    = `(r/[A-Za-z0-9_]+|Indie ?Hackers|Hacker ?News|Product ?Hunt|Quora|Twitter|LinkedIn)`
	openQ     = `["“]`
	closeQ    = `["”]`
	quoteBody = `[^"“”\n]`
	dash      = `[-–—]`
	blank     = `[ \t]*`
)

var (
	// quoteTag splits text into one segment per tagged quote, so a context
	// never runs into the next quote on the same line.
	quoteTag = regexp.MustCompile(`(?i)QUOTE:`)

	strictRe = regexp.MustCompile(`(?i)^QUOTE:\s*` + openQ + `(` + quoteBody + `+)` + closeQ +
		blank + `(?:` + dash + blank + `)?` + source +
		blank + `(?:` + dash + blank + `)?(?:(?:\r?\n` + blank + `)?Context:` + blank + `)?([^\n]*)`)

	attributedRe = regexp.MustCompile(`(?i)` + openQ + `(` + quoteBody + `{20,200})` + closeQ +
		blank + `(?:` + dash + blank + `from|from|` + dash + `)` + blank + source)

	proximityRe = regexp.MustCompile(`(?i)` + source + `[^"“”\n]*?` + openQ + `(` + quoteBody + `{20,200})` + closeQ)
)

// Tier is one extraction strategy. It returns zero or more matches in input order.
type Tier func(text string) []models.ExtractedQuote

// Tiers lists the strategies in the order they are tried.
var Tiers = []Tier{Strict, Attributed, Proximity}

// Extract returns at most models.MaxQuotes quotes from text.
func Extract(text string) []models.ExtractedQuote {
	out, _ := Match(text)
	return out
}

// Match is Extract that also reports which tier produced the result
// (1-based, 0 when nothing matched).
func Match(text string) ([]models.ExtractedQuote, int) {
	for i, tier := range Tiers {
		found := tier(text)
		if len(found) == 0 {
			continue
		}
		if len(found) > models.MaxQuotes {
			found = found[:models.MaxQuotes]
		}
		return found, i + 1
	}
	return nil, 0
}

// Strict matches the tagged format requested from the community research call:
//
//	QUOTE: "<text>" - r/<community> - Context: <description>
func Strict(text string) []models.ExtractedQuote {
	var out []models.ExtractedQuote
	tags := quoteTag.FindAllStringIndex(text, -1)
	for i, tag := range tags {
		end := len(text)
		if i+1 < len(tags) {
			end = tags[i+1][0]
		}
		m := strictRe.FindStringSubmatch(text[tag[0]:end])
		if m == nil {
			continue
		}
		q := strings.TrimSpace(m[1])
		if q == "" {
			continue
		}
		out = append(out, models.ExtractedQuote{
			Quote:   q,
			Source:  strings.TrimSpace(m[2]),
			Context: flatten(m[3], maxContext),
		})
	}
	return out
}

// Attributed matches a quoted string followed by "from" or a dash and a source.
func Attributed(text string) []models.ExtractedQuote {
	var out []models.ExtractedQuote
	for _, m := range attributedRe.FindAllStringSubmatch(text, -1) {
		out = appendQuote(out, m[1], m[2], attributedContext)
	}
	return out
}

// Proximity matches a source followed on the same line by a quoted string.
func Proximity(text string) []models.ExtractedQuote {
	var out []models.ExtractedQuote
	for _, m := range proximityRe.FindAllStringSubmatch(text, -1) {
		out = appendQuote(out, m[2], m[1], proximityContext)
	}
	return out
}

func appendQuote(out []models.ExtractedQuote, quote, src, context string) []models.ExtractedQuote {
	quote = strings.TrimSpace(quote)
	if quote == "" {
		return out
	}
	return append(out, models.ExtractedQuote{
		Quote:   quote,
		Source:  strings.TrimSpace(src),
		Context: context,
	})
}

// flatten collapses whitespace runs (newlines included) to single spaces and
// truncates to limit runes.
func flatten(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		s = strings.TrimSpace(string(r[:limit]))
	}
	return s
}
