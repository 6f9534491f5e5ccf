package formatter

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/valpere/infinitran/internal/placeholder"
)

var (
	reHorizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	// word-<newline>word, as left by hard-wrapped or PDF-extracted text
	reHyphenBreak = regexp.MustCompile(`([\p{L}\p{N}]+)-[ \t]*\n[ \t]*([\p{L}\p{N}]+)`)

	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Preprocess prepares source markdown for splitting: NFC normalization,
// LF line endings, collapsed horizontal whitespace, stripped lines and
// re-joined end-of-line hyphenation. Fenced code blocks keep their layout.
func Preprocess(text string) string {
	text = norm.NFC.String(text)
	text = lineBreaks.Replace(text)

	masked, fences := placeholder.ProtectFences(text)

	masked = reHorizontalSpace.ReplaceAllString(masked, " ")
	masked = reHyphenBreak.ReplaceAllString(masked, "$1$2\n")

	lines := strings.Split(masked, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	masked = strings.Join(lines, "\n")

	return strings.TrimSpace(placeholder.Restore(masked, fences))
}
