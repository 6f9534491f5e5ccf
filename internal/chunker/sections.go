package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const maxHeadingDepth = 6

// Section is a heading-delimited unit of a document. The leading content
// before the first heading becomes a Section with Level 0 and no heading.
type Section struct {
	Index   int
	Level   int
	Heading string
	Body    string
	// Path holds the titles of the enclosing headings, outermost first,
	// ending with this section's own heading.
	Path []string
}

// Marker returns the ATX marker for the section heading ("" for level 0).
func (s Section) Marker() string {
	return strings.Repeat("#", s.Level)
}

type headingMark struct {
	level      int
	title      string
	start, end int // byte range of the whole heading line
}

// SplitByHeadings splits markdown into sections at top-level ATX headings.
// Heading-like lines inside code blocks, block quotes or lists are left in
// the body because the markdown parser does not report them as headings.
func SplitByHeadings(doc string) []Section {
	src := []byte(doc)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var marks []headingMark
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		first := h.Lines().At(0)
		start := lineStart(src, first.Start)
		if !isATX(src[start:first.Start]) {
			continue
		}
		end := lineEnd(src, h.Lines().At(h.Lines().Len()-1).Stop)
		marks = append(marks, headingMark{
			level: h.Level,
			title: headingTitle(string(src[start:end])),
			start: start,
			end:   end,
		})
	}

	var sections []Section
	add := func(s Section) {
		s.Index = len(sections)
		sections = append(sections, s)
	}

	leadEnd := len(src)
	if len(marks) > 0 {
		leadEnd = marks[0].start
	}
	if lead := trimBlankLines(string(src[:leadEnd])); lead != "" {
		add(Section{Body: lead})
	}

	type frame struct {
		level int
		title string
	}
	var stack []frame
	for i, m := range marks {
		for len(stack) > 0 && stack[len(stack)-1].level >= m.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, frame{m.level, m.title})
		if len(stack) > maxHeadingDepth {
			stack = stack[len(stack)-maxHeadingDepth:]
		}
		path := make([]string, len(stack))
		for j, f := range stack {
			path[j] = f.title
		}

		bodyEnd := len(src)
		if i+1 < len(marks) {
			bodyEnd = marks[i+1].start
		}
		add(Section{
			Level:   m.level,
			Heading: m.title,
			Body:    trimBlankLines(string(src[m.end:bodyEnd])),
			Path:    path,
		})
	}
	return sections
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(src []byte, pos int) int {
	for pos < len(src) && src[pos] != '\n' {
		pos++
	}
	return pos
}

// isATX reports whether the text before the heading content is an ATX
// opening sequence rather than setext content.
func isATX(prefix []byte) bool {
	return strings.HasPrefix(strings.TrimLeft(string(prefix), " "), "#")
}

func headingTitle(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "#")
	line = strings.TrimSpace(line)
	if trimmed := strings.TrimRight(line, "#"); trimmed != line && (trimmed == "" || strings.HasSuffix(trimmed, " ")) {
		line = strings.TrimSpace(trimmed)
	}
	return line
}

// trimBlankLines removes leading blank lines and trailing whitespace while
// keeping the indentation of the first content line.
func trimBlankLines(s string) string {
	s = strings.TrimRight(s, " \t\n")
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 || strings.TrimSpace(s[:i]) != "" {
			break
		}
		s = s[i+1:]
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
