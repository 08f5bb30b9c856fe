// Command ledcore simulates LED projects and checks them for export.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ledcore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
