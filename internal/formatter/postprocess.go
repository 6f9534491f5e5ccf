package formatter

import (
	"regexp"
	"strings"

	"github.com/valpere/infinitran/internal/placeholder"
)

var (
	reHeadingLine  = regexp.MustCompile(`^ {0,3}(#{1,6})[ \t]+(\S.*)$`)
	reClosingHash  = regexp.MustCompile(`[ \t]+#+[ \t]*$`)
	reStrongStar   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reEmStar       = regexp.MustCompile(`\*([^*]+)\*`)
	reStrongUnder  = regexp.MustCompile(`(^|[^\p{L}\p{N}_])__([^_]+)__([^\p{L}\p{N}_]|$)`)
	reEmUnder      = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_]+)_([^\p{L}\p{N}_]|$)`)
	reInlineTicks  = regexp.MustCompile("`([^`]+)`")
	reInteriorRuns = regexp.MustCompile(`[ \t]+`)
)

// Postprocess normalizes translated markdown: heading lines are re-derived
// with their emphasis and inline-code markup removed, every heading gets
// exactly one blank line above and below, runs of blank lines collapse to
// one, leading blank lines and trailing whitespace are dropped. The first
// line keeps its indentation so that indented code never turns into a
// heading. Postprocess(Postprocess(x)) equals Postprocess(x).
func Postprocess(text string) string {
	masked, fences := placeholder.ProtectFences(lineBreaks.Replace(text))

	var out []string
	blank := func() bool { return len(out) == 0 || out[len(out)-1] == "" }

	for _, line := range strings.Split(masked, "\n") {
		line = normalizeSpaces(line)
		if line == "" {
			if !blank() {
				out = append(out, "")
			}
			continue
		}

		if m := reHeadingLine.FindStringSubmatch(line); m != nil {
			if !blank() {
				out = append(out, "")
			}
			out = append(out, m[1]+" "+cleanHeading(m[2]), "")
			continue
		}
		out = append(out, line)
	}

	result := strings.Join(out, "\n")
	return strings.TrimRight(placeholder.Restore(result, fences), " \t\n")
}

// normalizeSpaces keeps leading indentation, collapses interior runs of
// blanks and drops trailing ones. Whitespace-only lines become empty.
func normalizeSpaces(line string) string {
	body := strings.TrimLeft(line, " \t")
	if strings.TrimSpace(body) == "" {
		return ""
	}
	indent := line[:len(line)-len(body)]
	return indent + reInteriorRuns.ReplaceAllString(strings.TrimRight(body, " \t"), " ")
}

// cleanHeading strips closing hashes, emphasis and inline code from heading
// content until nothing changes, so a second pass is a no-op.
func cleanHeading(content string) string {
	orig := content
	for {
		prev := content
		content = reClosingHash.ReplaceAllString(content, "")
		content = reStrongStar.ReplaceAllString(content, "$1")
		content = reEmStar.ReplaceAllString(content, "$1")
		content = reStrongUnder.ReplaceAllString(content, "$1$2$3")
		content = reEmUnder.ReplaceAllString(content, "$1$2$3")
		content = reInlineTicks.ReplaceAllString(content, "$1")
		content = strings.TrimSpace(reInteriorRuns.ReplaceAllString(content, " "))
		if content == prev {
			break
		}
	}
	if content == "" {
		return orig
	}
	return content
}
