// Package glossary enforces fixed renderings of terms before text is sent
// to the model.
package glossary

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Entry struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Glossary replaces whole-word, case-insensitive occurrences of its terms.
// It is read-only once built and safe for concurrent use.
type Glossary struct {
	// entries sorted longest source first so the longest term wins at a
	// given position.
	entries      []Entry
	preserveCase bool
}

// New builds a glossary from source → target pairs. Blank terms are
// ignored; terms differing only by case collapse to one. With preserveCase
// an all-caps match yields an all-caps rendering and a capitalized match a
// capitalized one.
func New(terms map[string]string, preserveCase bool) *Glossary {
	byKey := make(map[string]Entry, len(terms))
	for src, dst := range terms {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		key := strings.ToLower(src)
		if prev, ok := byKey[key]; ok && prev.Source < src {
			continue
		}
		byKey[key] = Entry{Source: src, Target: strings.TrimSpace(dst)}
	}

	g := &Glossary{preserveCase: preserveCase}
	for _, e := range byKey {
		g.entries = append(g.entries, e)
	}
	sort.Slice(g.entries, func(i, j int) bool {
		a, b := g.entries[i].Source, g.entries[j].Source
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return strings.ToLower(a) < strings.ToLower(b)
	})
	return g
}

func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Terms returns the entries sorted alphabetically by source term.
func (g *Glossary) Terms() []Entry {
	if g.Len() == 0 {
		return nil
	}
	out := append([]Entry(nil), g.entries...)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Source) < strings.ToLower(out[j].Source)
	})
	return out
}

// Map returns the glossary as source → target.
func (g *Glossary) Map() map[string]string {
	out := make(map[string]string, g.Len())
	for _, e := range g.Terms() {
		out[e.Source] = e.Target
	}
	return out
}

// Apply substitutes every glossary term in text. Matching is whole-word
// except next to Han, Kana or Hangul characters, which carry no word
// separators.
func (g *Glossary) Apply(text string) string {
	if g.Len() == 0 || text == "" {
		return text
	}
	var sb strings.Builder
	last := 0
	for i := 0; i < len(text); {
		if e, n, ok := g.matchAt(text, i); ok {
			sb.WriteString(text[last:i])
			sb.WriteString(g.render(text[i:i+n], e.Target))
			i += n
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if last == 0 {
		return text
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func (g *Glossary) matchAt(text string, i int) (Entry, int, bool) {
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	for _, e := range g.entries {
		n := len(e.Source)
		if i+n > len(text) || !strings.EqualFold(text[i:i+n], e.Source) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(e.Source)
		lastRune, _ := utf8.DecodeLastRuneInString(e.Source)
		next, _ := utf8.DecodeRuneInString(text[i+n:])
		if i > 0 && !separated(prev, first) {
			continue
		}
		if i+n < len(text) && !separated(lastRune, next) {
			continue
		}
		return e, n, true
	}
	return Entry{}, 0, false
}

// separated reports whether a word boundary lies between a and b.
func separated(a, b rune) bool {
	return !isWord(a) || !isWord(b) || unspaced(a) || unspaced(b)
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func unspaced(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func (g *Glossary) render(match, target string) string {
	if !g.preserveCase || target == "" {
		return target
	}
	if isUpper(match) && utf8.RuneCountInString(match) > 1 {
		return strings.ToUpper(target)
	}
	first, _ := utf8.DecodeRuneInString(match)
	if unicode.IsUpper(first) {
		r, size := utf8.DecodeRuneInString(target)
		return string(unicode.ToUpper(r)) + target[size:]
	}
	return target
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
