package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"livedoc/internal/render"
)

func TestToMarkdown(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "heading and paragraph",
			in:   "\n<h1 id=\"title\">Title</h1>\n<p>Hello <strong>world</strong>.</p>\n",
			want: "# Title\n\nHello **world**.",
		},
		{
			name: "all heading levels",
			in:   "<h1>a</h1><h2>b</h2><h3>c</h3><h4>d</h4><h5>e</h5><h6>f</h6>",
			want: "# a\n\n## b\n\n### c\n\n#### d\n\n##### e\n\n###### f",
		},
		{
			name: "table",
			in:   "<table>\n<thead>\n<tr>\n<th>A</th>\n<th>B</th>\n</tr>\n</thead>\n<tbody>\n<tr>\n<td>1</td>\n<td>2</td>\n</tr>\n</tbody>\n</table>",
			want: "| A | B |\n| --- | --- |\n| 1 | 2 |",
		},
		{
			name: "table cells lose inner tags and keep entities",
			in:   "<table><tr><th><em>x</em> &amp; y</th></tr><tr><td>a|b</td></tr></table>",
			want: "| x & y |\n| --- |\n| a\\|b |",
		},
		{
			name: "table without rows keeps its text",
			in:   "<table><caption>empty</caption></table>",
			want: "empty",
		},
		{
			name: "bold and italic variants",
			in:   "<p><b>b</b> <strong>s</strong> <i>i</i> <em>e</em></p>",
			want: "**b** **s** *i* *e*",
		},
		{
			name: "whitespace moves outside emphasis",
			in:   "<p>a<strong> b </strong>c</p>",
			want: "a **b** c",
		},
		{
			name: "underline kept as tag",
			in:   "<p>keep <u>this</u> <u class=\"x\">too</u></p>",
			want: "keep <u>this</u> <u>too</u>",
		},
		{
			name: "inline code",
			in:   "<p>run <code>go test</code> and <code>a`b</code></p>",
			want: "run `go test` and `` a`b ``",
		},
		{
			name: "fenced code keeps text verbatim",
			in:   "<pre><code>if a &lt; b {\n  **not bold**\n}\n</code></pre>",
			want: "```\nif a < b {\n  **not bold**\n}\n```",
		},
		{
			name: "fenced code language from class",
			in:   "<pre><code class=\"language-go\">package main\n</code></pre>",
			want: "```go\npackage main\n```",
		},
		{
			name: "fenced code language from wrapper",
			in:   "<div class=\"code-block\" data-lang=\"python\"><pre class=\"chroma\"><code><span class=\"nb\">print</span>(1)\n</code></pre></div>",
			want: "```python\nprint(1)\n```",
		},
		{
			name: "unordered and ordered lists",
			in:   "<ul>\n<li>one</li>\n<li>two</li>\n</ul>\n<ol>\n<li>three</li>\n</ol>",
			want: "- one\n- two\n\n- three",
		},
		{
			name: "paragraph after a list stays separate",
			in:   "<ul>\n<li>a</li>\n<li>b</li>\n</ul>\n<p>After the list.</p>",
			want: "- a\n- b\n\nAfter the list.",
		},
		{
			name: "list items without whitespace between them",
			in:   "<ul><li>a</li><li>b</li></ul>",
			want: "- a\n- b",
		},
		{
			name: "nested lists flatten one level",
			in:   "<ul>\n<li>outer\n<ul>\n<li>inner</li>\n</ul>\n</li>\n</ul>",
			want: "- outer\n- inner",
		},
		{
			name: "link",
			in:   "<p>see <a href=\"https://example.com/a?b=1&amp;c=2\">the <em>docs</em></a></p>",
			want: "see [the *docs*](https://example.com/a?b=1&c=2)",
		},
		{
			name: "anchor without href is stripped",
			in:   "<p><a name=\"x\">plain</a></p>",
			want: "plain",
		},
		{
			name: "unknown tags are stripped",
			in:   "<section><p>text <span style=\"color:red\">red</span> <del>gone</del></p></section>",
			want: "text red gone",
		},
		{
			name: "unknown block tags are stripped",
			in:   "<div class=\"note\"><p>inside</p></div><div>typed<br>line</div>",
			want: "inside\n\ntypedline",
		},
		{
			name: "script and style bodies are dropped",
			in:   "<p>safe<script>alert(1)</script></p><style>p { color: red; }</style><p>tail</p>",
			want: "safe\n\ntail",
		},
		{
			name: "underline attributes are removed",
			in:   "<p><u style=\"color:red\" onclick=\"x()\">marked</u></p>",
			want: "<u>marked</u>",
		},
		{
			name: "text that looks like a tag survives stripping",
			in:   "<p><span>&lt;u&gt;not a tag&lt;/u&gt; &amp;lt;</span></p>",
			want: "<u>not a tag</u> &lt;",
		},
		{
			name: "entities unescaped",
			in:   "<p>&lt;tag&gt; &amp; &quot;quoted&quot; &#39;x&#39;</p>",
			want: "<tag> & \"quoted\" 'x'",
		},
		{
			name: "blank line runs collapse",
			in:   "<p>a</p>\n\n\n\n<p>b</p>",
			want: "a\n\nb",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToMarkdown(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoundTripThroughRenderer(t *testing.T) {
	sources := []string{
		"# Title\n\nHello **world**.",
		"## Section\n\nSome *italic* and **bold** with a [link](https://example.com).",
		"- one\n- two\n- three",
		"| A | B |\n| --- | --- |\n| 1 | 2 |",
		"```python\nprint(\"hi\")\n```",
		"Inline `code` here.",
		"# A\n\nfirst\n\n## B\n\nsecond",
		"- a\n- b\n\nAfter the list.",
		"Intro\n\n- a\n- b\n\n## Next\n\nbody",
	}

	r := render.NewRenderer()
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			doc, err := r.Render([]byte(src))
			require.NoError(t, err)

			md, err := ToMarkdown(doc.Content)
			require.NoError(t, err)

			again, err := r.Render([]byte(md))
			require.NoError(t, err)
			assert.Equal(t, doc.Content, again.Content)

			md2, err := ToMarkdown(again.Content)
			require.NoError(t, err)
			assert.Equal(t, md, md2)
		})
	}
}

func TestTitleRoundTripIsExact(t *testing.T) {
	doc, err := render.NewRenderer().Render([]byte("# Title\n\nHello **world**."))
	require.NoError(t, err)

	md, err := ToMarkdown(doc.Content)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nHello **world**.", md)
}

func TestListFollowedByParagraph(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "ordered list",
			src:  "1. one\n2. two\n\nNext para",
			want: "- one\n- two\n\nNext para",
		},
		{
			name: "loose list",
			src:  "- a\n\n- b\n\nAfter",
			want: "- a\n- b\n\nAfter",
		},
	}

	r := render.NewRenderer()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := r.Render([]byte(tc.src))
			require.NoError(t, err)

			md, err := ToMarkdown(doc.Content)
			require.NoError(t, err)
			assert.Equal(t, tc.want, md)

			again, err := r.Render([]byte(md))
			require.NoError(t, err)
			assert.Contains(t, again.Content, "<p>"+tc.want[strings.LastIndex(tc.want, "\n")+1:]+"</p>")
		})
	}
}

func TestWriterPassesUnknownTagsToSanitizer(t *testing.T) {
	nodes, err := nethtml.ParseFragment(strings.NewReader(`<p>a <span class="x">b</span><br>c</p>`), &nethtml.Node{
		Type:     nethtml.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	require.NoError(t, err)

	w := &writer{}
	for _, n := range nodes {
		w.visit(n)
	}
	assert.Equal(t, "a <span class=\"x\">b</span><br>c\n\n", w.String())
	assert.Equal(t, "a bc\n\n", residual.Sanitize(w.String()))
}
