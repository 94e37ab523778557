package rag

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxKeywords caps how many keywords a message contributes to the search.
const MaxKeywords = 10

const minKeywordLen = 3

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Portuguese and English function words. Entries shorter than
// minKeywordLen are dropped by length anyway and kept for completeness.
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "os": {}, "as": {}, "de": {}, "do": {}, "da": {}, "dos": {}, "das": {},
	"e": {}, "em": {}, "no": {}, "na": {}, "nos": {}, "nas": {}, "por": {}, "para": {},
	"com": {}, "sem": {}, "um": {}, "uma": {}, "uns": {}, "umas": {}, "que": {}, "se": {},
	"como": {}, "ao": {}, "aos": {}, "à": {}, "às": {}, "é": {}, "ser": {}, "foi": {},
	"vou": {}, "vai": {}, "você": {}, "vc": {}, "eu": {}, "tu": {}, "ele": {}, "ela": {},
	"eles": {}, "elas": {}, "me": {}, "te": {}, "lhe": {}, "isso": {}, "isto": {},
	"aquilo": {}, "qual": {}, "quais": {}, "quando": {}, "onde": {}, "porque": {}, "porquê": {},
	"the": {}, "is": {}, "are": {}, "to": {}, "for": {}, "of": {},
	"in": {}, "on": {}, "and": {}, "or": {}, "an": {}, "this": {}, "that": {}, "it": {}, "you": {}, "i": {},
}

// ExtractKeywords returns up to MaxKeywords distinct search terms from msg,
// in order of first appearance.
func ExtractKeywords(msg string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(msg), " ")

	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) < minKeywordLen {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
