// Package phonetic matches misheard words against a glossary of proper
// nouns. It implements [transcript.PhoneticMatcher].
//
// A candidate term must first sound like the input: the Double Metaphone
// codes of any input token must overlap those of any term token. Among sound
// alikes the best Jaro-Winkler score wins if it reaches the phonetic
// threshold. When nothing sounds alike, a term is still accepted on spelling
// alone above the stricter fuzzy threshold.
//
// Comparison ignores case and diacritics, so "familia" finds "Família".
// Multi-word terms are scored on the whole phrase, the phrase without spaces
// and every token pair.
package phonetic

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the score a sound-alike term needs. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the score a term needs when nothing sounds alike.
// Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds unless overridden.
func New(opts ...Option) *Matcher {
	m := &Matcher{phoneticThreshold: 0.70, fuzzyThreshold: 0.85}
	for _, o := range opts {
		o(m)
	}
	return m
}

// phrase is a folded string with its tokens and sorted metaphone codes.
type phrase struct {
	folded string
	tokens []string
	codes  []string
}

func newPhrase(s string) phrase {
	folded := fold(s)
	tokens := strings.Fields(folded)
	return phrase{folded: folded, tokens: tokens, codes: metaphones(tokens)}
}

// soundsLike reports whether p and q share a metaphone code.
func (p phrase) soundsLike(q phrase) bool {
	i, j := 0, 0
	for i < len(p.codes) && j < len(q.codes) {
		switch strings.Compare(p.codes[i], q.codes[j]) {
		case 0:
			return true
		case -1:
			i++
		default:
			j++
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the whole phrases, the
// phrases without spaces and every token pair.
func (p phrase) similarity(q phrase) float64 {
	score := matchr.JaroWinkler(p.folded, q.folded, false)
	if len(p.tokens) > 1 || len(q.tokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(p.tokens, ""), strings.Join(q.tokens, ""), false))
	}
	for _, a := range p.tokens {
		for _, b := range q.tokens {
			score = max(score, matchr.JaroWinkler(a, b, false))
		}
	}
	return score
}

// Glossary is a term list with its phrases computed once. Prepare it once
// per correction pass, not once per n-gram.
type Glossary struct {
	terms    []string
	phrases  []phrase
	maxWords int
}

// Prepare folds and encodes every non-blank term.
func Prepare(terms []string) *Glossary {
	g := &Glossary{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		p := newPhrase(t)
		g.terms = append(g.terms, t)
		g.phrases = append(g.phrases, p)
		g.maxWords = max(g.maxWords, len(p.tokens))
	}
	return g
}

// MaxWords is the word count of the longest term, 0 when empty.
func (g *Glossary) MaxWords() int { return g.maxWords }

// Len is the number of usable terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Match finds the term of terms closest to word, a single word or a
// space-separated n-gram. Without a match it returns word, 0, false.
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, Prepare(terms))
}

// MatchPrepared is Match against a prepared [Glossary].
func (m *Matcher) MatchPrepared(word string, g *Glossary) (corrected string, confidence float64, matched bool) {
	if g == nil || g.Len() == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}
	in := newPhrase(word)

	best, bestScore, bestAlike := -1, 0.0, false
	for i, p := range g.phrases {
		score := in.similarity(p)
		switch alike := in.soundsLike(p); {
		case alike && score >= m.phoneticThreshold && (!bestAlike || score > bestScore):
			best, bestScore, bestAlike = i, score, true
		case !alike && !bestAlike && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return word, 0, false
	}
	return g.terms[best], bestScore, true
}

// fold lower-cases s and strips combining marks.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// metaphones returns the sorted, distinct Double Metaphone codes of tokens.
func metaphones(tokens []string) []string {
	codes := make([]string, 0, 2*len(tokens))
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		for _, c := range [...]string{primary, secondary} {
			if c != "" {
				codes = append(codes, c)
			}
		}
	}
	slices.Sort(codes)
	return slices.Compact(codes)
}
