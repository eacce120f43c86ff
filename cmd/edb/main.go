// Command edb is the command line interface of the engineering database.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/edb/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
