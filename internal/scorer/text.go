package scorer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Words case-folds s and splits it into alphanumeric words.
func Words(s string) []string {
	folded := cases.Fold().String(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Phrase holds a pre-split phrase for word-boundary matching.
type Phrase []string

// NewPhrase splits a phrase into folded words.
func NewPhrase(s string) Phrase { return Phrase(Words(s)) }

// In reports whether the phrase occurs as consecutive whole words.
func (p Phrase) In(words []string) bool {
	if len(p) == 0 || len(p) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(p) <= len(words); i++ {
		for j, w := range p {
			if words[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

// Phrases is a list of phrases matched as a group.
type Phrases []Phrase

// NewPhrases builds a Phrases from plain strings.
func NewPhrases(ss ...string) Phrases {
	out := make(Phrases, 0, len(ss))
	for _, s := range ss {
		out = append(out, NewPhrase(s))
	}
	return out
}

// Any reports whether any phrase occurs in words.
func (ps Phrases) Any(words []string) bool {
	for _, p := range ps {
		if p.In(words) {
			return true
		}
	}
	return false
}

// Count returns how many distinct phrases occur in words.
func (ps Phrases) Count(words []string) int {
	n := 0
	for _, p := range ps {
		if p.In(words) {
			n++
		}
	}
	return n
}

// Matched returns the phrases that occur in words, joined back with spaces.
func (ps Phrases) Matched(words []string) []string {
	var out []string
	for _, p := range ps {
		if p.In(words) {
			out = append(out, strings.Join(p, " "))
		}
	}
	return out
}

// NormalizeIndustry folds an industry label into a snake_case key, so
// "Financial Services" and "financial-services" both become
// "financial_services".
func NormalizeIndustry(s string) string {
	return strings.Join(Words(s), "_")
}
