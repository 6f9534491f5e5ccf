package orchestrator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/valpere/infinitran/internal/glossary"
	"github.com/valpere/infinitran/internal/translator"
)

type promptInput struct {
	target   string
	text     string
	hint     string
	terms    []glossary.Entry
	window   []string
	lead     string
	headings []string
}

// languageName turns a tag such as "zh-Hans" into "Simplified Chinese
// (zh-Hans)". Unknown tags are used verbatim.
func languageName(tag string) string {
	t, err := language.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil {
		return tag
	}
	name := display.English.Tags().Name(t)
	if name == "" {
		return tag
	}
	return fmt.Sprintf("%s (%s)", name, tag)
}

func buildChunkPrompt(in promptInput) translator.Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a professional translator. Translate the markdown text from the user into %s.\n", languageName(in.target))
	sb.WriteString("Write fluent, natural text a native reader would expect. ")
	sb.WriteString("Keep the markdown structure: headings, lists, tables, emphasis and line breaks. ")
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no notes, no source text.")
	if in.hint != "" {
		sb.WriteString("\n")
		sb.WriteString(in.hint)
	}

	if len(in.headings) > 0 {
		sb.WriteString("\n\nSECTION: ")
		sb.WriteString(strings.Join(in.headings, " > "))
	}

	if len(in.terms) > 0 {
		sb.WriteString("\n\nTERMINOLOGY (use these exact translations):\n")
		for _, e := range in.terms {
			fmt.Fprintf(&sb, "  %s → %s\n", e.Source, e.Target)
		}
	}

	if len(in.window) > 0 {
		sb.WriteString("\n\nCONTEXT (recent translated passages for consistent terms and style, do NOT repeat them):\n")
		for _, w := range in.window {
			sb.WriteString("---\n")
			sb.WriteString(strings.TrimSpace(w))
			sb.WriteString("\n")
		}
	}

	if in.lead != "" {
		sb.WriteString("\n\nPRECEDING SOURCE (already translated, for continuity only, do NOT translate it):\n...")
		sb.WriteString(strings.TrimSpace(in.lead))
	}

	return translator.Prompt{System: sb.String(), User: in.text}
}

func buildHeadingPrompt(target, hint, heading string) translator.Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a professional translator. Translate the document heading from the user into %s.\n", languageName(target))
	sb.WriteString("Respond with the translated heading on a single line, without '#' markers, quotes or explanations.")
	if hint != "" {
		sb.WriteString("\n")
		sb.WriteString(hint)
	}
	return translator.Prompt{System: sb.String(), User: heading}
}
