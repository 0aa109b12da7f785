package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/voxstt/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	cmd := cli.NewRootCmd()
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, err)
	if cli.IsUsageError(err) {
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", helpHintTarget(cmd, os.Args[1:]))
	}
	os.Exit(cli.ExitCode(err))
}

// helpHintTarget names the deepest command the arguments resolve to.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "voxstt"
	}

	target := root.CommandPath()
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return target
	}

	found, _, err := root.Find(args)
	if err == nil && found != nil {
		return found.CommandPath()
	}
	return target
}
