// Command patchd serves and administers a patchd record store.
package main

import (
	"fmt"
	"os"

	"github.com/dropsheet/patchd/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "patchd:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
