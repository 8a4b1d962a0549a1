package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark/ast"
)

type tocEntry struct {
	level    int
	id       string
	title    string
	children []*tocEntry
}

// tableOfContents walks the parsed document once and builds the navigation
// block from its headings. A document without headings still yields an
// empty toc container so the navigation split stays anchored.
func tableOfContents(doc ast.Node, source []byte) string {
	var root tocEntry
	stack := []*tocEntry{&root}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		entry := &tocEntry{
			level: heading.Level,
			id:    headingID(heading),
			title: strings.TrimSpace(inlineText(heading, source)),
		}
		for len(stack) > 1 && stack[len(stack)-1].level >= entry.level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		parent.children = append(parent.children, entry)
		stack = append(stack, entry)

		return ast.WalkSkipChildren, nil
	})

	var b strings.Builder
	b.WriteString(`<div class="toc">` + "\n")
	writeTOCList(&b, root.children)
	b.WriteString(navigationEnd + "\n")
	return b.String()
}

func writeTOCList(b *strings.Builder, entries []*tocEntry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("<ul>\n")
	for _, e := range entries {
		b.WriteString(`<li><a href="#`)
		b.WriteString(html.EscapeString(e.id))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(e.title))
		b.WriteString("</a>")
		if len(e.children) > 0 {
			b.WriteString("\n")
			writeTOCList(b, e.children)
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n")
}

func headingID(n ast.Node) string {
	v, ok := n.AttributeString("id")
	if !ok {
		return ""
	}
	switch typed := v.(type) {
	case []byte:
		return string(typed)
	case string:
		return typed
	default:
		return ""
	}
}

// inlineText concatenates the text segments below n.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch typed := c.(type) {
		case *ast.Text:
			buf.Write(typed.Segment.Value(source))
			if typed.SoftLineBreak() || typed.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(typed.Value)
		default:
			buf.WriteString(inlineText(c, source))
		}
	}
	return buf.String()
}
