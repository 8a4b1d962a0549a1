package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"livedoc/internal/app"
)

func newRenderCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <file.md>",
		Short: "Render a markdown file to a static HTML page",
		Example: `  livedoc render README.md
  livedoc render notes.md --out notes.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd.Flags(), map[string]string{"out": "output"})
			if err != nil {
				return err
			}
			if err := app.RenderOnce(args[0], cfg.Output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Output)
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "output HTML file (default index.html)")
	return cmd
}
