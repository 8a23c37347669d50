package transcript

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/polyglot/internal/transcript/phonetic"
)

// GlossaryCorrector is the phonetic implementation of [Corrector]. It slides
// n-gram windows (up to the longest glossary term) over the transcript and
// replaces the longest window that matches a term.
//
// GlossaryCorrector is safe for concurrent use.
type GlossaryCorrector struct {
	matcher PhoneticMatcher
}

var _ Corrector = (*GlossaryCorrector)(nil)

// NewGlossaryCorrector returns a corrector backed by m. A nil m uses
// phonetic.New() with default thresholds.
func NewGlossaryCorrector(m PhoneticMatcher) *GlossaryCorrector {
	if m == nil {
		m = phonetic.New()
	}
	return &GlossaryCorrector{matcher: m}
}

// token is a whitespace-separated word split into the part that is matched
// and the punctuation around it, which is preserved verbatim.
type token struct {
	lead, core, trail string
}

func (t token) String() string { return t.lead + t.core + t.trail }

func tokenize(text string) []token {
	fields := strings.Fields(text)
	out := make([]token, 0, len(fields))
	for _, f := range fields {
		start := strings.IndexFunc(f, isWordRune)
		if start < 0 {
			out = append(out, token{lead: f})
			continue
		}
		end := strings.LastIndexFunc(f, isWordRune)
		_, size := utf8.DecodeRuneInString(f[end:])
		end += size
		out = append(out, token{lead: f[:start], core: f[start:end], trail: f[end:]})
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-'
}

// Correct implements [Corrector].
func (c *GlossaryCorrector) Correct(_ context.Context, text string, glossary []string) (*Result, error) {
	res := &Result{Original: text, Corrected: text, Corrections: []Correction{}}
	if len(glossary) == 0 || strings.TrimSpace(text) == "" {
		return res, nil
	}

	var (
		matchFn  func(string) (string, float64, bool)
		maxWords int
	)
	if pm, ok := c.matcher.(*phonetic.Matcher); ok {
		g := phonetic.Prepare(glossary)
		maxWords = g.MaxWords()
		matchFn = func(w string) (string, float64, bool) { return pm.MatchPrepared(w, g) }
	} else {
		maxWords = maxWordCount(glossary)
		matchFn = func(w string) (string, float64, bool) { return c.matcher.Match(w, glossary) }
	}
	if maxWords == 0 {
		return res, nil
	}

	tokens := tokenize(text)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n, replacement, conf := c.longestMatch(tokens[i:], maxWords, matchFn)
		if n == 0 {
			out = append(out, tokens[i].String())
			i++
			continue
		}

		if window := windowText(tokens[i : i+n]); window != replacement {
			res.Corrections = append(res.Corrections, Correction{
				Original:   window,
				Corrected:  replacement,
				Confidence: conf,
				Method:     "phonetic",
			})
		}
		out = append(out, tokens[i].lead+replacement+tokens[i+n-1].trail)
		i += n
	}

	res.Corrected = strings.Join(out, " ")
	if len(res.Corrections) == 0 {
		res.Corrected = text
	}
	return res, nil
}

// longestMatch tries windows from maxWords down to 1 and returns the number of
// tokens consumed by the first match. Windows may only carry punctuation on
// their outer edges.
func (c *GlossaryCorrector) longestMatch(tokens []token, maxWords int, matchFn func(string) (string, float64, bool)) (int, string, float64) {
	maxN := min(maxWords, len(tokens))
	for n := maxN; n >= 1; n-- {
		if !innerClean(tokens[:n]) {
			continue
		}
		window := windowText(tokens[:n])
		if window == "" {
			continue
		}
		if term, conf, ok := matchFn(window); ok {
			return n, term, conf
		}
	}
	return 0, "", 0
}

func windowText(tokens []token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.core != "" {
			parts = append(parts, t.core)
		}
	}
	return strings.Join(parts, " ")
}

// innerClean reports whether the tokens form one phrase: no punctuation
// between them and no punctuation-only tokens.
func innerClean(tokens []token) bool {
	for i, t := range tokens {
		if t.core == "" {
			return false
		}
		if i > 0 && t.lead != "" {
			return false
		}
		if i < len(tokens)-1 && t.trail != "" {
			return false
		}
	}
	return true
}

// maxWordCount returns the maximum number of words in any glossary term.
func maxWordCount(glossary []string) int {
	n := 0
	for _, g := range glossary {
		n = max(n, len(strings.Fields(g)))
	}
	return n
}
