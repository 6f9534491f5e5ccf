// Package markdown renders translated documents to HTML and extracts their
// prose for language detection.
package markdown

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const extensions = parser.CommonExtensions | parser.Attributes | parser.AutoHeadingIDs

func parse(md []byte) ast.Node {
	// gomarkdown parsers keep state; one per document.
	return parser.NewWithExtensions(extensions).Parse(md)
}

// ToHTML renders an HTML fragment.
func ToHTML(md []byte) string {
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	return string(markdown.Render(parse(md), renderer))
}

// Page renders a standalone HTML document titled title.
func Page(md []byte, title string) []byte {
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank | html.CompletePage,
		Title: title,
	})
	return markdown.Render(parse(md), renderer)
}

// ToPlainText returns the prose of a document: code blocks, inline code and
// HTML are dropped, block elements end with a newline.
func ToPlainText(md []byte) string {
	var sb strings.Builder
	ast.WalkFunc(parse(md), func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.CodeBlock, *ast.Code, *ast.HTMLBlock, *ast.HTMLSpan:
			return ast.SkipChildren
		case *ast.Text:
			if entering {
				sb.Write(n.Literal)
			}
		case *ast.Softbreak:
			sb.WriteByte(' ')
		case *ast.Hardbreak:
			sb.WriteByte('\n')
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.TableCell:
			if !entering {
				sb.WriteByte('\n')
			}
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(sb.String())
}
