// Package tokenizer provides text analysis for the search engine. It
// lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and applies Snowball (Porter2) stemming.
package tokenizer

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

const minTokenLength = 2

// Analyze breaks text into an ordered stream of stemmed, lowercased terms
// with stop-words removed. The slice index of each term is its position.
func Analyze(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < minTokenLength {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := snowballeng.Stem(word, false)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// AnalyzeTerm normalises a single query term the same way indexed text is
// analyzed. Returns "" if the term is entirely filtered out.
func AnalyzeTerm(word string) string {
	terms := Analyze(word)
	if len(terms) == 0 {
		return ""
	}
	return terms[0]
}
