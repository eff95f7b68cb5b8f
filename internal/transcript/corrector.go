// Package transcript fixes speech-to-text output for a configured
// vocabulary before it is spoken back.
//
// Recognisers routinely mishear names and jargon ("Gandolf" for "Gandalf").
// A [Corrector] scans the transcript with word windows as long as the
// longest vocabulary term and replaces windows that phonetically match a
// term. Longer windows are tried first so multi-word terms win over partial
// single-word matches.
package transcript

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/parrot/internal/transcript/phonetic"
)

// minWindowRunes is the shortest window, in letters, considered for
// replacement.
const minWindowRunes = 3

// Correction captures one substitution.
type Correction struct {
	// Original is the window as produced by the recogniser, without
	// surrounding punctuation.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64
}

// Corrector is safe for concurrent use. The vocabulary can be replaced at
// any time with SetVocabulary.
type Corrector struct {
	matcher *phonetic.Matcher
	vocab   atomic.Pointer[phonetic.Vocabulary]
}

// NewCorrector returns a Corrector for terms. An empty vocabulary leaves
// every transcript unchanged.
func NewCorrector(terms []string, opts ...phonetic.Option) *Corrector {
	c := &Corrector{matcher: phonetic.New(opts...)}
	c.SetVocabulary(terms)
	return c
}

// SetVocabulary replaces the vocabulary.
func (c *Corrector) SetVocabulary(terms []string) {
	c.vocab.Store(phonetic.Prepare(terms))
}

// Terms returns the number of vocabulary terms.
func (c *Corrector) Terms() int { return c.vocab.Load().Len() }

// Correct returns text with vocabulary corrections applied and the list of
// substitutions made. When nothing changes, text is returned as is. A window
// that already spells its term exactly is kept and not reported.
func (c *Corrector) Correct(text string) (string, []Correction) {
	v := c.vocab.Load()
	if v.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n, corrected, conf, ok := c.matchAt(tokens, i, v)
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		lead, _, _ := splitPunct(tokens[i])
		_, _, trail := splitPunct(tokens[i+n-1])
		original := windowCore(tokens[i : i+n])
		out = append(out, lead+corrected+trail)
		if original != corrected {
			corrections = append(corrections, Correction{Original: original, Corrected: corrected, Confidence: conf})
		}
		i += n
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// matchAt tries windows starting at tokens[i], longest first, and returns the
// size of the first one that matches.
func (c *Corrector) matchAt(tokens []string, i int, v *phonetic.Vocabulary) (int, string, float64, bool) {
	maxN := min(v.MaxWords(), len(tokens)-i)
	for n := maxN; n >= 1; n-- {
		window := tokens[i : i+n]
		if !innerClean(window) {
			continue
		}
		core := windowCore(window)
		if letterCount(core) < minWindowRunes {
			continue
		}
		if corrected, conf, ok := c.matcher.Match(core, v); ok {
			return n, corrected, conf, true
		}
	}
	return 0, "", 0, false
}

// windowCore joins the window's tokens without their outer punctuation.
func windowCore(window []string) string {
	parts := make([]string, len(window))
	for j, tok := range window {
		_, parts[j], _ = splitPunct(tok)
	}
	return strings.Join(parts, " ")
}

// innerClean reports whether no punctuation separates the window's tokens,
// so windows never span a clause boundary.
func innerClean(window []string) bool {
	for j, tok := range window {
		lead, _, trail := splitPunct(tok)
		if (j > 0 && lead != "") || (j < len(window)-1 && trail != "") {
			return false
		}
	}
	return true
}

// splitPunct separates leading and trailing punctuation from tok.
func splitPunct(tok string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(tok, unicode.IsPunct)
	lead = tok[:len(tok)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

func letterCount(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if unicode.IsLetter(r) {
			n++
		}
		s = s[size:]
	}
	return n
}
