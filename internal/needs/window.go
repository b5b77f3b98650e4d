package needs

import (
	"strings"
	"unicode"
)

type script int

const (
	scriptOther script = iota
	scriptLatin
	scriptHiragana
	scriptKatakana
	scriptHan
)

func scriptOf(r rune) script {
	switch {
	case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		return scriptLatin
	case unicode.Is(unicode.Hiragana, r):
		return scriptHiragana
	case unicode.Is(unicode.Katakana, r) || r == 'ー':
		return scriptKatakana
	case unicode.Is(unicode.Han, r):
		return scriptHan
	default:
		return scriptOther
	}
}

// tokenize splits text into runs of a single script. Runs shorter than two
// runes and pure hiragana runs (particles, inflections) are dropped.
func tokenize(text string) []string {
	var (
		tokens  []string
		current []rune
		kind    = scriptOther
	)
	flush := func() {
		if len(current) >= 2 && kind != scriptHiragana && kind != scriptOther {
			tokens = append(tokens, strings.ToLower(string(current)))
		}
		current = current[:0]
	}
	for _, r := range text {
		s := scriptOf(r)
		if s != kind {
			flush()
			kind = s
		}
		if s != scriptOther {
			current = append(current, r)
		}
	}
	flush()
	return tokens
}

// repeatedTopics counts tokens across texts and keeps those seen at least twice.
func repeatedTopics(texts []string) map[string]int {
	counts := make(map[string]int)
	for _, t := range texts {
		for _, tok := range tokenize(t) {
			counts[tok]++
		}
	}
	for tok, n := range counts {
		if n < 2 {
			delete(counts, tok)
		}
	}
	return counts
}

// windowBoost returns the strongest sentiment boost found in texts.
func windowBoost(texts []string) int {
	best := 0
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, s := range windowSentiments {
			if s.boost <= best {
				continue
			}
			for _, p := range s.phrases {
				if strings.Contains(lower, p) {
					best = s.boost
					break
				}
			}
		}
	}
	return best
}
