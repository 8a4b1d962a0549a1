// Package reconcile converts an edited content fragment back into markdown.
//
// The conversion is a best-effort inverse of the renderer restricted to a
// whitelist: tables, headings 1-6, paragraphs, fenced and inline code,
// bold, italic, underline, list items and links. Underline has no markdown
// form and is kept as a literal <u> tag. Every other tag is stripped and its
// text kept. Nested lists are flattened one level.
package reconcile

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	lderrors "livedoc/internal/errors"
)

var (
	blankRuns = regexp.MustCompile(`\n\s*\n\s*\n`)

	// residual only lets a bare <u> through. Every other tag the writer
	// passes on is reduced to its text, and script or style bodies are
	// dropped with their tags.
	residual = bluemonday.NewPolicy().AllowElements("u")

	voidElements = map[atom.Atom]bool{
		atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
		atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
		atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
		atom.Wbr: true,
	}
)

// ToMarkdown converts a rendered content fragment into markdown source.
func ToMarkdown(fragment string) (md string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = lderrors.New(lderrors.CodeReconcileFailed, fmt.Sprintf("reconciling content: %v", r))
		}
	}()

	nodes, err := nethtml.ParseFragment(strings.NewReader(fragment), &nethtml.Node{
		Type:     nethtml.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return "", lderrors.Wrap(err, lderrors.CodeReconcileFailed, "parsing content")
	}

	w := &writer{}
	for _, n := range nodes {
		w.visit(n)
	}

	out := residual.Sanitize(w.String())
	out = html.UnescapeString(out)
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), nil
}

// writer accumulates markdown whose literal text is still entity-escaped so
// the residual pass can tell text from tags. Elements without a markdown form
// are written out as tags for that pass to strip.
type writer struct {
	strings.Builder
	lang string
}

func (w *writer) visit(n *nethtml.Node) {
	switch n.Type {
	case nethtml.TextNode:
		w.text(n)
		return
	case nethtml.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Table:
		w.table(n)
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.heading(n)
	case atom.P:
		w.lineStart()
		w.WriteString(w.inner(n))
		w.WriteString("\n\n")
	case atom.Pre:
		if code := firstElementChild(n); code != nil && code.DataAtom == atom.Code {
			w.fence(n, code)
			return
		}
		w.children(n)
	case atom.Code:
		w.inlineCode(n)
	case atom.Strong, atom.B:
		w.wrapInline(n, "**", "**")
	case atom.Em, atom.I:
		w.wrapInline(n, "*", "*")
	case atom.U:
		w.wrapInline(n, startTag(n), "</u>")
	case atom.Ul, atom.Ol:
		// A list ends with a blank line, otherwise a following paragraph
		// becomes a lazy continuation of the last item.
		w.lineStart()
		w.withLanguage(n, func() { w.children(n) })
		w.lineStart()
		w.WriteString("\n")
	case atom.Li:
		w.lineStart()
		w.WriteString("- ")
		w.WriteString(w.inner(n))
		w.WriteString("\n")
	case atom.A:
		w.link(n)
	default:
		w.element(n)
	}
}

func (w *writer) element(n *nethtml.Node) {
	w.WriteString(startTag(n))
	if voidElements[n.DataAtom] {
		return
	}
	w.withLanguage(n, func() { w.children(n) })
	w.WriteString("</")
	w.WriteString(n.Data)
	w.WriteString(">")
}

func (w *writer) children(n *nethtml.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

// inner renders the children of n into a separate buffer and returns the
// trimmed result.
func (w *writer) inner(n *nethtml.Node) string {
	sub := &writer{lang: w.lang}
	sub.children(n)
	return strings.TrimSpace(sub.String())
}

func (w *writer) text(n *nethtml.Node) {
	if strings.TrimSpace(n.Data) == "" && strings.Contains(n.Data, "\n") {
		// Newlines between blocks are formatting; inside inline content
		// they are soft breaks.
		if isBlockContainer(n.Parent) {
			return
		}
		w.WriteString("\n")
		return
	}
	w.WriteString(html.EscapeString(n.Data))
}

// lineStart terminates the current line unless output is empty or already
// at a line start.
func (w *writer) lineStart() {
	s := w.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		w.WriteString("\n")
	}
}

func (w *writer) heading(n *nethtml.Node) {
	level := int(n.Data[1] - '0')
	w.lineStart()
	w.WriteString(strings.Repeat("#", level))
	w.WriteString(" ")
	w.WriteString(w.inner(n))
	w.WriteString("\n\n")
}

// wrapInline emits open+content+close, moving surrounding whitespace outside
// the markers so emphasis stays valid markdown.
func (w *writer) wrapInline(n *nethtml.Node, open, close string) {
	sub := &writer{lang: w.lang}
	sub.children(n)
	raw := sub.String()
	content := strings.TrimSpace(raw)
	if content == "" {
		w.WriteString(raw)
		return
	}
	if raw[0] == ' ' {
		w.WriteString(" ")
	}
	w.WriteString(open)
	w.WriteString(content)
	w.WriteString(close)
	if raw[len(raw)-1] == ' ' {
		w.WriteString(" ")
	}
}

func (w *writer) inlineCode(n *nethtml.Node) {
	code := textContent(n)
	delim := "`"
	if strings.Contains(code, "`") {
		delim = "``"
		code = " " + code + " "
	}
	w.WriteString(delim)
	w.WriteString(html.EscapeString(code))
	w.WriteString(delim)
}

func (w *writer) fence(pre, code *nethtml.Node) {
	lang := w.lang
	if l := languageClass(code); l != "" {
		lang = l
	} else if l := attr(pre, "data-lang"); l != "" {
		lang = l
	}

	w.lineStart()
	w.WriteString("```")
	w.WriteString(html.EscapeString(lang))
	w.WriteString("\n")
	w.WriteString(html.EscapeString(strings.TrimRight(textContent(code), "\n")))
	w.WriteString("\n```\n\n")
}

func (w *writer) link(n *nethtml.Node) {
	href, ok := attrOK(n, "href")
	if !ok {
		w.children(n)
		return
	}
	w.WriteString("[")
	w.WriteString(w.inner(n))
	w.WriteString("](")
	w.WriteString(html.EscapeString(href))
	w.WriteString(")")
}

// table emits a pipe table. The first row with cells is the header and is
// followed by a separator sized to its column count. A table without rows
// contributes only its text.
func (w *writer) table(n *nethtml.Node) {
	var rows [][]string
	walk(n, func(c *nethtml.Node) bool {
		if c.Type != nethtml.ElementNode || c.DataAtom != atom.Tr {
			return true
		}
		var cells []string
		for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
			if cell.Type == nethtml.ElementNode && (cell.DataAtom == atom.Th || cell.DataAtom == atom.Td) {
				cells = append(cells, cellText(cell))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
		return false
	})

	if len(rows) == 0 {
		w.children(n)
		return
	}

	w.lineStart()
	w.WriteString("\n")
	for i, row := range rows {
		w.WriteString("| ")
		w.WriteString(strings.Join(row, " | "))
		w.WriteString(" |\n")
		if i == 0 {
			sep := make([]string, len(row))
			for j := range sep {
				sep[j] = "---"
			}
			w.WriteString("| ")
			w.WriteString(strings.Join(sep, " | "))
			w.WriteString(" |\n")
		}
	}
	w.WriteString("\n")
}

func (w *writer) withLanguage(n *nethtml.Node, fn func()) {
	lang, ok := attrOK(n, "data-lang")
	if !ok {
		fn()
		return
	}
	prev := w.lang
	w.lang = lang
	fn()
	w.lang = prev
}

func startTag(n *nethtml.Node) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	return b.String()
}

func cellText(n *nethtml.Node) string {
	text := strings.Join(strings.Fields(textContent(n)), " ")
	return html.EscapeString(strings.ReplaceAll(text, "|", `\|`))
}

func textContent(n *nethtml.Node) string {
	var b strings.Builder
	walk(n, func(c *nethtml.Node) bool {
		if c.Type == nethtml.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// walk visits n and its descendants depth first; fn returning false skips
// the children of the visited node.
func walk(n *nethtml.Node, fn func(*nethtml.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func firstElementChild(n *nethtml.Node) *nethtml.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == nethtml.ElementNode {
			return c
		}
		if c.Type == nethtml.TextNode && strings.TrimSpace(c.Data) != "" {
			return nil
		}
	}
	return nil
}

func isBlockContainer(n *nethtml.Node) bool {
	if n == nil {
		return true
	}
	switch n.DataAtom {
	case atom.Div, atom.Ul, atom.Ol, atom.Table, atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr,
		atom.Blockquote, atom.Section, atom.Article, atom.Main, atom.Body, atom.Dl, atom.Nav,
		atom.Header, atom.Footer:
		return true
	default:
		return false
	}
}

func languageClass(n *nethtml.Node) string {
	for _, class := range strings.Fields(attr(n, "class")) {
		if lang, ok := strings.CutPrefix(class, "language-"); ok {
			return lang
		}
	}
	return ""
}

func attr(n *nethtml.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *nethtml.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
