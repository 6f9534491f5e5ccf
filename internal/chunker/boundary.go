package chunker

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// boundary kinds in priority order; lower is preferred.
const (
	kindParagraph = iota
	kindLine
	kindSentence
	kindSentenceCJK
	kindSpace
	kindClause
	numKinds
)

// cut is a position (in runes) directly after a boundary marker.
type cut struct {
	pos  int
	kind int
}

var reFence = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")

func isLatinSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCJKSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？' || r == '；'
}

func isClauseEnd(r rune) bool {
	return r == ',' || r == ';' || r == ':' || r == '，' || r == '、' || r == '：'
}

// isTerminal lists the last-resort characters used by the resplitter.
func isTerminal(r rune) bool {
	return isLatinSentenceEnd(r) || isCJKSentenceEnd(r) || r == ';' || r == ',' || r == '，' || r == '、'
}

// scanCuts returns every boundary cut in runes, ordered by position. At a
// given position only the strongest kind is kept.
func scanCuts(runes []rune) []cut {
	var cuts []cut
	add := func(pos, kind int) {
		if n := len(cuts); n > 0 && cuts[n-1].pos == pos {
			if kind < cuts[n-1].kind {
				cuts[n-1].kind = kind
			}
			return
		}
		cuts = append(cuts, cut{pos, kind})
	}
	for i, r := range runes {
		pos := i + 1
		switch {
		case r == '\n':
			if i > 0 && runes[i-1] == '\n' {
				add(pos, kindParagraph)
			} else {
				add(pos, kindLine)
			}
		case isLatinSentenceEnd(r):
			if pos < len(runes) && unicode.IsSpace(runes[pos]) {
				add(pos, kindSentence)
			}
		case isCJKSentenceEnd(r):
			add(pos, kindSentenceCJK)
		case r == ' ' || r == '\t':
			add(pos, kindSpace)
		case isClauseEnd(r):
			add(pos, kindClause)
		}
	}
	return cuts
}

// fenceRanges returns the rune ranges [start, end) of fenced code blocks.
func fenceRanges(s string) [][2]int {
	locs := reFence.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([][2]int, 0, len(locs))
	for _, loc := range locs {
		start := utf8.RuneCountInString(s[:loc[0]])
		end := start + utf8.RuneCountInString(s[loc[0]:loc[1]])
		out = append(out, [2]int{start, end})
	}
	return out
}

func insideFence(fences [][2]int, pos int) bool {
	for _, f := range fences {
		if pos > f[0] && pos < f[1] {
			return true
		}
	}
	return false
}

// endsOnBoundary reports whether text ends on a paragraph, line or sentence
// marker, ignoring trailing spaces.
func endsOnBoundary(runes []rune) bool {
	n := len(runes)
	for n > 0 && (runes[n-1] == ' ' || runes[n-1] == '\t') {
		n--
	}
	if n == 0 {
		return false
	}
	last := runes[n-1]
	return last == '\n' || isLatinSentenceEnd(last) || isCJKSentenceEnd(last)
}

// joint classifies the whitespace around a cut so translated pieces can be
// glued back with the same kind of separator.
func joint(runes []rune, pos int) string {
	lo, hi := pos, pos
	for lo > 0 && unicode.IsSpace(runes[lo-1]) {
		lo--
	}
	for hi < len(runes) && unicode.IsSpace(runes[hi]) {
		hi++
	}
	newlines := 0
	for _, r := range runes[lo:hi] {
		if r == '\n' {
			newlines++
		}
	}
	switch {
	case newlines >= 2:
		return "\n\n"
	case newlines == 1:
		return "\n"
	case hi > lo:
		return " "
	}
	return ""
}
