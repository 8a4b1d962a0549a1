package render

import (
	"bytes"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"

	lderrors "livedoc/internal/errors"
)

// navigationEnd terminates the generated navigation block. Everything up to
// and including the first occurrence belongs to the navigation fragment.
const navigationEnd = "</div>"

// Document is the output of one render: a navigation fragment and a content
// fragment.
type Document struct {
	Navigation string
	Content    string
}

// Renderer is a wrapper around the Goldmark markdown parser with
// pre-configured extensions. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.GFM,
			extension.Table,
			extension.Footnote,
			extension.DefinitionList,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithWrapperRenderer(renderCodeBlockWrapper),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &Renderer{md: md}
}

// Render converts markdown source into navigation and content fragments.
// The same source always yields the same Document.
func (r *Renderer) Render(source []byte) (Document, error) {
	doc := r.md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	buf.WriteString(tableOfContents(doc, source))
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return Document{}, lderrors.Wrap(err, lderrors.CodeRenderFailed, "rendering markdown")
	}

	nav, content := SplitNavigation(buf.String())
	return Document{Navigation: nav, Content: content}, nil
}

// SplitNavigation splits rendered output after the first navigation
// terminator. When the terminator is missing the whole input is content and
// the navigation is empty.
func SplitNavigation(rendered string) (nav string, content string) {
	idx := strings.Index(rendered, navigationEnd)
	if idx < 0 {
		return "", rendered
	}
	end := idx + len(navigationEnd)
	return rendered[:end], rendered[end:]
}

// renderCodeBlockWrapper wraps fenced code blocks in a div carrying the
// block language so the live page can offer to run it. Blocks the
// highlighter could not lex fall back to a plain pre/code pair.
func renderCodeBlockWrapper(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
	highlighted := context != nil && context.Highlighted()

	if entering {
		_, _ = w.WriteString(`<div class="code-block"`)
		if lang := codeBlockLanguage(context); lang != "" {
			_, _ = w.WriteString(` data-lang="`)
			_, _ = w.Write(util.EscapeHTML([]byte(lang)))
			_ = w.WriteByte('"')
		}
		_ = w.WriteByte('>')
		if !highlighted {
			_, _ = w.WriteString("<pre><code>")
		}
		return
	}

	if !highlighted {
		_, _ = w.WriteString("</code></pre>")
	}
	_, _ = w.WriteString("</div>\n")
}

func codeBlockLanguage(context highlighting.CodeBlockContext) string {
	if context == nil {
		return ""
	}
	lang, ok := context.Language()
	if !ok || len(lang) == 0 {
		return ""
	}
	return strings.ToLower(string(lang))
}
