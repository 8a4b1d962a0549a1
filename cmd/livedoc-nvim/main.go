package main

import (
	"github.com/neovim/go-client/nvim/plugin"

	"livedoc/internal/host"
	"livedoc/internal/logging"
)

// Set up the connection to Neovim, register the commands and serve requests
// until Neovim goes away. Stdout carries the RPC stream, so logs go to stderr.
func main() {
	plugin.Main(func(p *plugin.Plugin) error {
		logging.NewLogger("nvim").Info("registering handlers")
		return host.Register(p)
	})
}
