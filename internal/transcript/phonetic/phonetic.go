// Package phonetic matches misheard phrases against a vocabulary using Double
// Metaphone phonetic encoding combined with Jaro-Winkler string similarity.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the phrase and of every term. A term whose codes overlap
//     the phrase's codes is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: the phonetic candidate with the highest
//     similarity wins if it reaches the phonetic threshold. Without any
//     phonetic candidate, a term can still win on pure similarity above the
//     stricter fuzzy threshold.
//
// A phrase is only compared with terms of the same word count. Multi-word
// terms ("Tower of London") are compared as whole strings, with and without
// spaces, and their first word must line up with the phrase's first word.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched term. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term matched
// on spelling alone. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a vocabulary entry with its codes computed once.
type term struct {
	text   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Vocabulary is a prepared, immutable set of terms.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare precomputes phonetic codes for terms. Blank terms are dropped.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{text: t, lower: lower, tokens: tokens, codes: codesForTokens(tokens)})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// MaxWords returns the word count of the longest term.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Match returns the term of v that phrase most likely stands for. When
// matched is false, corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	if v == nil || len(v.terms) == 0 || phraseLower == "" {
		return phrase, 0, false
	}
	phraseTokens := strings.Fields(phraseLower)
	inputCodes := codesForTokens(phraseTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range v.terms {
		if len(t.tokens) != len(phraseTokens) {
			continue
		}
		if len(t.tokens) > 1 && !m.aligned(phraseTokens[0], t.tokens[0]) {
			continue
		}
		score := bestJWScore(phraseTokens, t.tokens, phraseLower, t.lower)
		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.text, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.text, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// aligned reports whether two words sound alike or are spelled alike.
func (m *Matcher) aligned(a, b string) bool {
	if codesOverlap(codesForTokens([]string{a}), codesForTokens([]string{b})) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= m.fuzzyThreshold
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore returns the higher Jaro-Winkler similarity of the full strings
// and the space-stripped strings. Single tokens of a multi-word term are never
// compared on their own, so a stray "of" cannot match "Tower of London".
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)
	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}
	return score
}
