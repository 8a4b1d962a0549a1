package main

import (
	"os"

	"livedoc/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
