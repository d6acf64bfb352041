// Package textproc holds the tokenization, stemming and sentence splitting shared by
// retrieval, answering and the hash embedder.
package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	tokenPattern    = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)
	sentencePattern = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`)
)

// Tokens returns the lower-cased word tokens of text in order.
func Tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// IsStopword reports whether tok carries no retrieval signal.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Terms returns the stemmed, stopword-free tokens of text, keeping duplicates and order.
func Terms(text string) []string {
	toks := Tokens(text)
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		tok = strings.TrimSuffix(strings.TrimSuffix(tok, "'s"), "’s")
		if IsStopword(tok) {
			continue
		}
		out = append(out, Stem(tok))
	}
	return out
}

// SalientTerms returns the distinct Terms of text in first-seen order.
func SalientTerms(text string) []string {
	terms := Terms(text)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Stem strips common English inflections so that "scales", "scaled" and "scale" agree.
func Stem(w string) string {
	if utf8.RuneCountInString(w) <= 3 {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		w = w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"):
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		w = w[:len(w)-3]
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "es") && len(w) > 4 && !strings.HasSuffix(w, "ses"):
		w = w[:len(w)-1]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") &&
		!strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		w = w[:len(w)-1]
	}
	if len(w) > 4 && strings.HasSuffix(w, "e") {
		w = w[:len(w)-1]
	}
	return w
}

// Span is a slice of a larger text with rune offsets, end exclusive.
type Span struct {
	Text  string
	Start int
	End   int
}

// Sentences splits text into trimmed sentence spans carrying rune offsets into text.
// Text without terminal punctuation yields a single span.
func Sentences(text string) []Span {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		for start < end {
			r, size := utf8.DecodeRuneInString(text[start:end])
			if !unicode.IsSpace(r) {
				break
			}
			start += size
		}
		for end > start {
			r, size := utf8.DecodeLastRuneInString(text[start:end])
			if !unicode.IsSpace(r) {
				break
			}
			end -= size
		}
		if start == end {
			continue
		}
		runeStart := utf8.RuneCountInString(text[:start])
		spans = append(spans, Span{
			Text:  text[start:end],
			Start: runeStart,
			End:   runeStart + utf8.RuneCountInString(text[start:end]),
		})
	}
	return spans
}

// Overlap counts how many of terms occur among the Terms of text.
func Overlap(terms []string, text string) int {
	if len(terms) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, t := range Terms(text) {
		have[t] = struct{}{}
	}
	n := 0
	for _, t := range terms {
		if _, ok := have[t]; ok {
			n++
		}
	}
	return n
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into",
		"about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "don", "should", "now", "do", "does", "did", "doing",
		"has", "have", "had", "having", "what", "which", "who", "whom", "whose", "when", "where", "why", "how",
		"i", "me", "my", "we", "our", "you", "your", "he", "him", "his", "she", "her", "they", "them", "their",
		"there", "here", "would", "could", "may", "might", "must", "shall", "any", "all", "some", "each",
		"please", "tell", "explain",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
