package moderation

import (
	"sort"
	"strings"
)

var defaultWords = []string{
	"fuck", "fucking", "motherfucker", "shit", "bullshit", "bitch", "bastard",
	"asshole", "cunt", "dickhead", "slut", "whore", "wanker", "bollocks", "piss off",
}

// Filter finds prohibited words on word boundaries.
type Filter struct {
	words   map[string]bool
	phrases [][]string
}

// NewFilter builds a filter from the default list plus extra words or phrases.
func NewFilter(extra ...string) *Filter {
	f := &Filter{words: make(map[string]bool)}
	for _, w := range append(append([]string{}, defaultWords...), extra...) {
		toks := Tokens(w)
		switch len(toks) {
		case 0:
		case 1:
			f.words[toks[0]] = true
		default:
			f.phrases = append(f.phrases, toks)
		}
	}
	return f
}

func (f *Filter) matchWord(tok string) (string, bool) {
	if f.words[tok] {
		return tok, true
	}
	for _, suffix := range []string{"s", "es", "ed", "er", "ers", "ing"} {
		if base := strings.TrimSuffix(tok, suffix); base != tok && f.words[base] {
			return base, true
		}
	}
	return "", false
}

// Check returns the prohibited terms found in any of texts, sorted and unique.
// An empty result means the content is clean.
func (f *Filter) Check(texts ...string) []string {
	found := map[string]bool{}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, toks := range [][]string{Tokens(text), leetTokens(text)} {
			for _, tok := range toks {
				if w, ok := f.matchWord(tok); ok {
					found[w] = true
				}
			}
			for _, p := range f.phrases {
				if containsSeq(toks, p) {
					found[strings.Join(p, " ")] = true
				}
			}
		}
	}

	out := make([]string, 0, len(found))
	for w := range found {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (f *Filter) Clean(texts ...string) bool { return len(f.Check(texts...)) == 0 }

func containsSeq(toks, seq []string) bool {
	for i := 0; i+len(seq) <= len(toks); i++ {
		match := true
		for j := range seq {
			if toks[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
