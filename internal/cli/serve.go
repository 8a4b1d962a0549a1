package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"livedoc/internal/app"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <file.md>",
		Short: "Serve a live, editable page for a markdown file",
		Long: `Serve renders the file, serves the page over HTTP and opens a push
channel on port+1. Changes to markdown files next to the source reload every
viewer; edits made in the browser are saved back to the source.

Interrupt (Ctrl-C) shuts the server down cleanly.`,
		Example: `  livedoc serve README.md
  livedoc serve notes.md --port 9000 --open`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd.Flags(), map[string]string{
				"out":  "output",
				"port": "server.port",
				"host": "server.host",
				"open": "server.open",
			})
			if err != nil {
				return err
			}

			engine, err := app.NewEngine(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s\n", engine.Source(), engine.URL())
			return engine.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringP("out", "o", "", "output HTML file (default index.html)")
	flags.IntP("port", "p", 0, "HTTP port; the push channel uses port+1 (default 8000)")
	flags.String("host", "", "host to bind (default localhost)")
	flags.Bool("open", false, "open the page in the default browser")
	return cmd
}
