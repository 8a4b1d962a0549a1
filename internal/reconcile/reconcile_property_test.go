//go:build property

package reconcile

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"livedoc/internal/render"
)

func TestReconcileProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	renderer := render.NewRenderer()
	word := gen.RegexMatch(`[a-z]{1,8}`)

	properties.Property("paragraph text survives a round trip", prop.ForAll(
		func(words []string) bool {
			if len(words) == 0 {
				return true
			}
			src := strings.Join(words, " ")
			doc, err := renderer.Render([]byte(src))
			if err != nil {
				return false
			}
			md, err := ToMarkdown(doc.Content)
			return err == nil && md == src
		},
		gen.SliceOf(word),
	))

	properties.Property("reconciled markup is stable under one more round trip", prop.ForAll(
		func(title, body, item string) bool {
			src := "# " + title + "\n\n" + body + " **" + item + "**\n\n- " + item + "\n"
			first, err := renderer.Render([]byte(src))
			if err != nil {
				return false
			}
			md, err := ToMarkdown(first.Content)
			if err != nil {
				return false
			}
			second, err := renderer.Render([]byte(md))
			if err != nil {
				return false
			}
			again, err := ToMarkdown(second.Content)
			return err == nil && again == md
		},
		word, word, word,
	))

	properties.Property("output never has three consecutive newlines", prop.ForAll(
		func(words []string) bool {
			var b strings.Builder
			for _, w := range words {
				b.WriteString("<p>" + w + "</p>\n\n\n<div>\n\n</div>")
			}
			md, err := ToMarkdown(b.String())
			return err == nil && !strings.Contains(md, "\n\n\n") && md == strings.TrimSpace(md)
		},
		gen.SliceOf(word),
	))

	properties.TestingRun(t)
}
