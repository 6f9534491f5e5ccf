// Package composer assembles translated sections into the final document
// and names the output file.
package composer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/valpere/infinitran/internal/markdown"
)

const timestampLayout = "20060102_150405"

type Output struct {
	Content  []byte
	Filename string
}

// Compose joins the non-empty sections with one blank line and prepends an
// attribution line naming the provider and model.
func Compose(sections []string, provider, model, original string, now time.Time) Output {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translated by %s: %s\n\n", provider, model)
	first := true
	for _, s := range sections {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !first {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s)
		first = false
	}
	sb.WriteByte('\n')
	return Output{Content: []byte(sb.String()), Filename: Filename(original, now)}
}

// Filename returns translated_<stem>_<YYYYMMDD_HHMMSS>.md.
func Filename(original string, now time.Time) string {
	return fmt.Sprintf("translated_%s_%s.md", stem(original), now.Format(timestampLayout))
}

func stem(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}

// HTML converts a composed markdown output into a standalone HTML page.
func (o Output) HTML() Output {
	name := strings.TrimSuffix(o.Filename, filepath.Ext(o.Filename))
	return Output{
		Content:  markdown.Page(o.Content, name),
		Filename: name + ".html",
	}
}
