// Command queryc is the CLI entrypoint, modeled on the teacher's
// cli/main.go: it does nothing but hand off to the command tree.
package main

import (
	"fmt"
	"os"

	"github.com/relionix/queryc/cmd/queryc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
