package render

import (
	"bytes"
	_ "embed"
	"strconv"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
)

//go:embed page.html
var pageTemplate string

//go:embed assets/style.css
var baseStyle string

//go:embed assets/toc.js
var tocScript string

//go:embed assets/live.js
var liveScript string

const highlightStyle = "github"

var (
	styleOnce sync.Once
	pageStyle string
)

// PageOptions controls page assembly.
type PageOptions struct {
	Title string
	// Live injects the push-channel script that reloads on change, saves
	// in-page edits and runs code blocks.
	Live     bool
	PushPort int
}

// Page assembles the full HTML page around a rendered Document.
func Page(doc Document, opts PageOptions) string {
	title := opts.Title
	if title == "" {
		title = "Local docs"
	}

	script := tocScript
	if opts.Live {
		script += "\nconst LIVEDOC_PUSH_PORT = " + strconv.Itoa(opts.PushPort) + ";\n" + liveScript
	}

	return strings.NewReplacer(
		"{{TITLE}}", escapeTitle(title),
		"{{STYLE}}", stylesheet(),
		"{{NAVIGATION}}", doc.Navigation,
		"{{CONTENT}}", doc.Content,
		"{{SCRIPT}}", script,
	).Replace(pageTemplate)
}

// stylesheet returns the base style followed by the chroma classes used by
// highlighted code blocks.
func stylesheet() string {
	styleOnce.Do(func() {
		var buf bytes.Buffer
		buf.WriteString(baseStyle)

		formatter := chromahtml.New(chromahtml.WithClasses(true))
		if err := formatter.WriteCSS(&buf, styles.Get(highlightStyle)); err != nil {
			buf.Reset()
			buf.WriteString(baseStyle)
		}
		pageStyle = buf.String()
	})
	return pageStyle
}

func escapeTitle(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
