package markdown_test

import (
	"strings"
	"testing"

	"github.com/valpere/infinitran/internal/markdown"
)

func TestToHTML(t *testing.T) {
	got := markdown.ToHTML([]byte("# Title\n\nSome *text* with a [link](https://example.com)."))
	for _, want := range []string{"<h1", "Title</h1>", "<em>text</em>", `target="_blank"`} {
		if !strings.Contains(got, want) {
			t.Errorf("ToHTML output missing %q:\n%s", want, got)
		}
	}
}

func TestPage(t *testing.T) {
	got := string(markdown.Page([]byte("Hello"), "translated_doc"))
	if !strings.Contains(got, "<html") || !strings.Contains(got, "<title>translated_doc</title>") {
		t.Errorf("expected a complete page, got:\n%s", got)
	}
}

func TestToPlainText(t *testing.T) {
	md := "# Heading\n\nA paragraph with `code` and **bold**.\n\n```go\nfunc main() {}\n```\n\n- item one\n- item two\n"
	got := markdown.ToPlainText([]byte(md))

	for _, want := range []string{"Heading", "A paragraph with  and bold.", "item one", "item two"} {
		if !strings.Contains(got, want) {
			t.Errorf("plain text missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "func main") {
		t.Errorf("code block should be dropped:\n%s", got)
	}
}
