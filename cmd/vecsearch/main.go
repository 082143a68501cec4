// Command vecsearch manages collections of transcript embeddings and runs
// similarity queries against them.
package main

import (
	"os"

	"github.com/hupe1980/vecsearch/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
