// Command tandem is the coding agent server and CLI.
package main

import (
	"os"

	"github.com/tandemcode/tandem/cmd/tandem/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
