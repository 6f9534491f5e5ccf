// Package placeholder protects content that must survive translation
// byte-for-byte (fenced code blocks, inline code spans, markdown links and
// images) by replacing each occurrence with a numbered marker such as
// [PH0], [PH1], … that LLMs are instructed to preserve. Restore puts the
// originals back.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a protected span.
type Kind int

const (
	KindFence Kind = iota
	KindInlineCode
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindFence:
		return "fence"
	case KindInlineCode:
		return "code"
	case KindLink:
		return "link"
	}
	return "unknown"
}

var (
	// One alternation so a single left-to-right scan decides every span.
	// Fences come first so their backticks are never read as inline code.
	reProtected = regexp.MustCompile(
		"(?s)```.*?```" +
			"|~~~.*?~~~" +
			"|`[^`\n]+`" +
			`|!\[[^\]\n]*\]\([^)\n]+\)` +
			`|\[[^\]\n]+\]\([^)\n]+\)`)

	reFences = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")
)

const baseTag = "PH"

// Span is one protected substring and the marker that replaced it.
type Span struct {
	Token    string
	Original string
	Kind     Kind
}

// Set is the ordered list of spans extracted from one text. The zero value
// is an empty set whose Restore is the identity.
type Set struct {
	tag   string
	Spans []Span
	re    *regexp.Regexp
}

// Protect masks fenced code, inline code and links/images in text.
func Protect(text string) (string, Set) {
	return protect(text, reProtected)
}

// ProtectFences masks fenced code blocks only.
func ProtectFences(text string) (string, Set) {
	return protect(text, reFences)
}

func protect(text string, re *regexp.Regexp) (string, Set) {
	set := Set{tag: chooseTag(text)}
	masked := re.ReplaceAllStringFunc(text, func(match string) string {
		tok := fmt.Sprintf("[%s%d]", set.tag, len(set.Spans))
		set.Spans = append(set.Spans, Span{Token: tok, Original: match, Kind: kindOf(match)})
		return tok
	})
	if len(set.Spans) > 0 {
		set.re = regexp.MustCompile(`\[` + regexp.QuoteMeta(set.tag) + `(\d+)\]`)
	}
	return masked, set
}

// chooseTag returns a marker prefix that does not occur after "[" anywhere in
// text, so no marker can be confused with document content.
func chooseTag(text string) string {
	tag := baseTag
	for strings.Contains(text, "["+tag) {
		tag += "X"
	}
	return tag
}

func kindOf(match string) Kind {
	switch {
	case strings.HasPrefix(match, "```"), strings.HasPrefix(match, "~~~"):
		return KindFence
	case strings.HasPrefix(match, "`"):
		return KindInlineCode
	}
	return KindLink
}

// Len returns the number of protected spans.
func (s Set) Len() int { return len(s.Spans) }

// Restore substitutes markers in text back with the originals. Markers with
// unknown indices are left as they are.
func Restore(text string, s Set) string {
	if len(s.Spans) == 0 || s.re == nil {
		return text
	}
	return s.re.ReplaceAllStringFunc(text, func(match string) string {
		sub := s.re.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(s.Spans) {
			return match
		}
		return s.Spans[idx].Original
	})
}

// Missing returns the indices of spans whose marker is absent from text.
func (s Set) Missing(text string) []int {
	var missing []int
	for i, sp := range s.Spans {
		if !strings.Contains(text, sp.Token) {
			missing = append(missing, i)
		}
	}
	return missing
}

// Hint returns a prompt sentence telling the model to keep the markers.
func (s Set) Hint() string {
	if len(s.Spans) == 0 {
		return ""
	}
	return fmt.Sprintf("The text contains markers such as [%s0]. Keep every marker exactly as it appears: do not translate, move, or remove them.", s.tag)
}
