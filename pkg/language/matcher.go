package language

import (
	"strings"
)

const (
	wordWeight    = 1.0
	phraseWeight  = 2.0
	grammarWeight = 1.5

	// MinConfidence is the floor reported for any detection, including the
	// no-signal fallback.
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// Detection is the per-turn result of Matcher.Detect.
type Detection struct {
	Language   string
	Confidence float64
	// Scores holds each language's score divided by the best raw score.
	// Empty when nothing matched.
	Scores map[string]float64
	// RawScores holds the unnormalized sums, for diagnostics.
	RawScores map[string]float64
	// Ambiguous is set when no lexicon signal matched any language and the
	// default language was chosen.
	Ambiguous bool
}

type compiledProfile struct {
	code    string
	words   map[string]struct{}
	phrases []string
	grammar [][2]string
}

// Matcher scores text against a profile set. It is safe for concurrent use;
// all state is built in NewMatcher and only read afterwards.
type Matcher struct {
	set      *Set
	profiles []compiledProfile
}

// NewMatcher precompiles the lexicons of set. Lexicon entries are
// normalized the same way input text is.
func NewMatcher(set *Set) *Matcher {
	m := &Matcher{set: set, profiles: make([]compiledProfile, 0, len(set.profiles))}
	for _, p := range set.profiles {
		cp := compiledProfile{code: p.Code, words: make(map[string]struct{}, len(p.Words))}
		for _, w := range p.Words {
			if w = Normalize(w); w != "" {
				cp.words[w] = struct{}{}
			}
		}
		for _, ph := range p.Phrases {
			if ph = Normalize(ph); ph != "" {
				cp.phrases = append(cp.phrases, ph)
			}
		}
		for _, g := range p.Grammar {
			if a, b, ok := parseTemplate(g); ok {
				cp.grammar = append(cp.grammar, [2]string{a, b})
			}
		}
		m.profiles = append(m.profiles, cp)
	}
	return m
}

// Set returns the profile set the matcher was built from.
func (m *Matcher) Set() *Set { return m.set }

// Detect never fails. Ties on the top normalized score go to the language
// that comes first in priority order, and the default language is first.
func (m *Matcher) Detect(text string) Detection {
	normalized := Normalize(text)
	fallback := Detection{Language: m.set.Default(), Confidence: MinConfidence, Ambiguous: true}
	if normalized == "" {
		return fallback
	}
	tokens := Tokenize(normalized)

	raw := make(map[string]float64, len(m.profiles))
	maxScore := 0.0
	for _, p := range m.profiles {
		s := p.score(normalized, tokens)
		raw[p.code] = s
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		fallback.RawScores = raw
		return fallback
	}

	scores := make(map[string]float64, len(raw))
	best, bestScore := "", -1.0
	for _, p := range m.profiles {
		n := raw[p.code] / maxScore
		scores[p.code] = n
		if n > bestScore {
			best, bestScore = p.code, n
		}
	}
	return Detection{
		Language:   best,
		Confidence: Clamp(bestScore),
		Scores:     scores,
		RawScores:  raw,
	}
}

// Clamp bounds a confidence to [MinConfidence, MaxConfidence].
func Clamp(v float64) float64 {
	if v != v || v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

func (p compiledProfile) score(normalized string, tokens []string) float64 {
	total := 0.0
	for _, t := range tokens {
		if _, ok := p.words[t]; ok {
			total += wordWeight
		}
	}
	for _, ph := range p.phrases {
		if strings.Contains(normalized, ph) {
			total += phraseWeight
		}
	}
	for _, g := range p.grammar {
		if strings.Contains(normalized, g[0]) && strings.Contains(normalized, g[1]) {
			total += grammarWeight
		}
	}
	return total
}

func parseTemplate(tpl string) (string, string, bool) {
	left, right, ok := strings.Cut(tpl, "+")
	if !ok {
		return "", "", false
	}
	a, b := Normalize(left), Normalize(right)
	if a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
